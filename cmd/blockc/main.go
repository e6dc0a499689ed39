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

// Command blockc is the library's own smoke-test/reference CLI, playing the
// same role over package validate/simulate/codegen that cmd/cue plays over
// cuelang.org/go/cue: it is not the product's external API (spec.md §6
// scopes the real HTTP/RPC facade to an external host), it exists so the
// module is runnable and testable end to end.
package main

import (
	"os"

	"blockdsl.dev/go/cmd/blockc/cmd"
)

func main() {
	os.Exit(cmd.Main())
}
