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
	"context"
	"os"

	"github.com/kr/pretty"
	"github.com/spf13/cobra"

	"blockdsl.dev/go/flatten"
	"blockdsl.dev/go/simresult"
	"blockdsl.dev/go/simulate"
	"blockdsl.dev/go/validate"
)

func newSimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate <model-file>",
		Short: "run a fixed-step simulation and print the output envelope",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulate,
	}
}

// runSimulate follows spec.md §2's pipeline: decode, validate, flatten,
// then run — the same gate the library itself enforces, just invoked from
// the demo binary instead of a test.
func runSimulate(cmd *cobra.Command, args []string) error {
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

	run := simulate.Run(context.Background(), flat.Flattened, m.Settings, simulate.Options{})
	result := simresult.FromSimulate(run)

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		pretty.Fprintf(os.Stderr, "%# v\n", result)
	}
	if err := printJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.Success {
		return errSimulationFailed
	}
	return nil
}
