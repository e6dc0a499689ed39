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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"blockdsl.dev/go/blockerrors"
	"blockdsl.dev/go/blockmodel"
	"blockdsl.dev/go/modelio"
	"blockdsl.dev/go/simresult"
	"blockdsl.dev/go/validate"
)

var (
	errValidationFailed = errors.New("blockc: model failed validation")
	errSimulationFailed = errors.New("blockc: simulation reported failure")
)

// loadModel reads and decodes the model document at path, sniffing
// JSON/YAML the way package modelio does (spec.md §6's "JSON-shaped"
// document, not JSON-exclusive).
func loadModel(path string) (*blockmodel.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("blockc: reading %s: %w", path, err)
	}
	m, err := modelio.Decode(data, modelio.AutoFormat)
	if err != nil {
		return nil, fmt.Errorf("blockc: decoding %s: %w", path, err)
	}
	return m, nil
}

// printJSON encodes v to w as indented JSON, the envelope format every
// blockc subcommand prints on stdout.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// modelName derives a code-generation name: the main sheet's Name if it has
// one, otherwise the source file's base name.
func modelName(m *blockmodel.Model, path string) string {
	if sheet, ok := m.MainSheet(); ok && sheet.Name != "" {
		return sheet.Name
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// printInvalid reports a failed validate.Validate result to stdout and
// returns the sentinel that makes Main exit non-zero.
func printInvalid(cmd *cobra.Command, vr validate.Result) error {
	if err := printJSON(cmd.OutOrStdout(), simresult.FromValidate(vr)); err != nil {
		return err
	}
	return errValidationFailed
}

// printFlattenErrors reports flatten-stage errors (which have no envelope
// type of their own) using the same ValidationResult shape, so simulate and
// gen present a uniform error surface to a caller regardless of which
// pipeline stage rejected the model.
func printFlattenErrors(cmd *cobra.Command, errs []blockerrors.Error) error {
	vr := simresult.ValidationResult{Errors: simresult.ErrorInfos(errs)}
	if err := printJSON(cmd.OutOrStdout(), vr); err != nil {
		return err
	}
	return errValidationFailed
}
