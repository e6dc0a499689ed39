// Copyright 2018 The CUE Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"os"
	"path/filepath"

	"github.com/kr/pretty"
	"github.com/spf13/cobra"

	"blockdsl.dev/go/codegen"
	"blockdsl.dev/go/flatten"
	"blockdsl.dev/go/simresult"
	"blockdsl.dev/go/validate"
)

func newGenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen <model-file>",
		Short: "generate a C99 header, source, and library-properties record for a model",
		Args:  cobra.ExactArgs(1),
		RunE:  runGen,
	}
	cmd.Flags().String("out-dir", "", "write <name>.h, <name>.c, and <name>.properties here instead of printing JSON")
	cmd.Flags().String("name", "", "override the generated model name (default: main sheet name, else file base name)")
	return cmd
}

func runGen(cmd *cobra.Command, args []string) error {
	m, err := loadModel(args[0])
	if err != nil {
		return err
	}

	if vr := validate.Validate(m); !vr.Valid {
		return printInvalid(cmd, vr)
	}

	flat := flatten.Flatten(m)
	if len(flat.Errors) > 0 {
		return printFlattenErrors(cmd, flat.Errors)
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = modelName(m, args[0])
	}

	gen := codegen.Generate(name, flat.Flattened, m.Settings)
	result := simresult.FromCodegen(gen)

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		pretty.Fprintf(os.Stderr, "%# v\n", result)
	}

	outDir, _ := cmd.Flags().GetString("out-dir")
	if outDir == "" {
		return printJSON(cmd.OutOrStdout(), result)
	}
	return writeGenFiles(outDir, result)
}

// writeGenFiles persists a CodeGenerationResult's three text artifacts to
// dir, the on-disk counterpart to spec.md §6's in-memory result envelope.
func writeGenFiles(dir string, r simresult.CodeGenerationResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := map[string]string{
		r.FileName + ".h":          r.HeaderFile,
		r.FileName + ".c":          r.SourceFile,
		r.FileName + ".properties": r.LibraryProperties,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}
