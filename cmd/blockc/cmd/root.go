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

// Package cmd implements the blockc subcommands, mirroring cmd/cue/cmd's
// shape: one cobra.Command constructor per subcommand, a shared root that
// wires global flags, and a Main entry point returning a process exit code
// so it can be registered directly with testscript.RunMain in tests.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// New builds the blockc root command: validate, simulate, and gen
// subcommands, each taking a model file on disk (spec.md §6's external
// interfaces).
func New() *cobra.Command {
	root := &cobra.Command{
		Use:   "blockc",
		Short: "validate, simulate, and generate C99 from block diagram models",

		// We print the returned error ourselves in Main; don't dump the
		// whole usage text on every error.
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().Bool("debug", false, "pretty-print the raw result to stderr before the JSON envelope")

	root.AddCommand(newValidateCmd())
	root.AddCommand(newSimulateCmd())
	root.AddCommand(newGenCmd())

	return root
}

// Main runs blockc against os.Args and returns the process exit code.
func Main() int {
	if err := New().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
