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

// Package blockreg is the declarative catalog of block kinds: default
// parameters, port counts, and port labels (spec.md §2 component 3, §3).
// It deliberately knows nothing about sheets, wires, or subsystems — those
// live in package blockmodel, which imports blockreg rather than the other
// way around, so the registry stays a leaf package.
package blockreg

import "fmt"

// Kind identifies one of the closed set of block kinds spec.md §3 names.
type Kind string

const (
	Source           Kind = "source"
	InputPort        Kind = "input_port"
	OutputPort       Kind = "output_port"
	Sum              Kind = "sum"
	Multiply         Kind = "multiply"
	Scale            Kind = "scale"
	Abs              Kind = "abs"
	Uminus           Kind = "uminus"
	Trig             Kind = "trig"
	Evaluate         Kind = "evaluate"
	TransferFunction Kind = "transfer_function"
	Lookup1D         Kind = "lookup_1d"
	Lookup2D         Kind = "lookup_2d"
	MatrixMultiply   Kind = "matrix_multiply"
	Transpose        Kind = "transpose"
	Mux              Kind = "mux"
	Demux            Kind = "demux"
	Cross            Kind = "cross"
	Dot              Kind = "dot"
	Mag              Kind = "mag"
	If               Kind = "if"
	Condition        Kind = "condition"
	SignalDisplay    Kind = "signal_display"
	SignalLogger     Kind = "signal_logger"
	SheetLabelSink   Kind = "sheet_label_sink"
	SheetLabelSource Kind = "sheet_label_source"
	Subsystem        Kind = "subsystem"
)

// PortArity describes how many ports a block kind exposes.
type PortArity struct {
	// Fixed is used when the count never depends on parameters or
	// upstream types.
	Fixed int
	// Dynamic is true when the count depends on parameters (resolved via
	// Params.PortCount) or on upstream signal types (resolved by the type
	// propagation pass, spec.md §2 component 6); Fixed is ignored then.
	Dynamic bool
}

// Descriptor is the registry entry for one block kind.
type Descriptor struct {
	Kind     Kind
	Stateful bool // owns continuous state (only transfer_function with order >= 1)
	Inputs   PortArity
	Outputs  PortArity
	// HasEnable is true for subsystem blocks that may carry an enable
	// input at port -1.
	HasEnable bool
}

var registry = map[Kind]Descriptor{
	Source:           {Kind: Source, Inputs: PortArity{Fixed: 0}, Outputs: PortArity{Fixed: 1}},
	InputPort:        {Kind: InputPort, Inputs: PortArity{Fixed: 0}, Outputs: PortArity{Fixed: 1}},
	OutputPort:       {Kind: OutputPort, Inputs: PortArity{Fixed: 1}, Outputs: PortArity{Fixed: 0}},
	Sum:              {Kind: Sum, Inputs: PortArity{Dynamic: true}, Outputs: PortArity{Fixed: 1}},
	Multiply:         {Kind: Multiply, Inputs: PortArity{Dynamic: true}, Outputs: PortArity{Fixed: 1}},
	Scale:            {Kind: Scale, Inputs: PortArity{Fixed: 1}, Outputs: PortArity{Fixed: 1}},
	Abs:              {Kind: Abs, Inputs: PortArity{Fixed: 1}, Outputs: PortArity{Fixed: 1}},
	Uminus:           {Kind: Uminus, Inputs: PortArity{Fixed: 1}, Outputs: PortArity{Fixed: 1}},
	Trig:             {Kind: Trig, Inputs: PortArity{Dynamic: true}, Outputs: PortArity{Fixed: 1}},
	Evaluate:         {Kind: Evaluate, Inputs: PortArity{Dynamic: true}, Outputs: PortArity{Fixed: 1}},
	TransferFunction: {Kind: TransferFunction, Stateful: true, Inputs: PortArity{Fixed: 1}, Outputs: PortArity{Fixed: 1}},
	Lookup1D:         {Kind: Lookup1D, Inputs: PortArity{Fixed: 1}, Outputs: PortArity{Fixed: 1}},
	Lookup2D:         {Kind: Lookup2D, Inputs: PortArity{Fixed: 2}, Outputs: PortArity{Fixed: 1}},
	MatrixMultiply:   {Kind: MatrixMultiply, Inputs: PortArity{Fixed: 2}, Outputs: PortArity{Fixed: 1}},
	Transpose:        {Kind: Transpose, Inputs: PortArity{Fixed: 1}, Outputs: PortArity{Fixed: 1}},
	Mux:              {Kind: Mux, Inputs: PortArity{Dynamic: true}, Outputs: PortArity{Fixed: 1}},
	Demux:            {Kind: Demux, Inputs: PortArity{Fixed: 1}, Outputs: PortArity{Dynamic: true}},
	Cross:            {Kind: Cross, Inputs: PortArity{Fixed: 2}, Outputs: PortArity{Fixed: 1}},
	Dot:              {Kind: Dot, Inputs: PortArity{Fixed: 2}, Outputs: PortArity{Fixed: 1}},
	Mag:              {Kind: Mag, Inputs: PortArity{Fixed: 1}, Outputs: PortArity{Fixed: 1}},
	If:               {Kind: If, Inputs: PortArity{Fixed: 3}, Outputs: PortArity{Fixed: 1}},
	Condition:        {Kind: Condition, Inputs: PortArity{Fixed: 1}, Outputs: PortArity{Fixed: 1}},
	SignalDisplay:    {Kind: SignalDisplay, Inputs: PortArity{Fixed: 1}, Outputs: PortArity{Fixed: 0}},
	SignalLogger:     {Kind: SignalLogger, Inputs: PortArity{Fixed: 1}, Outputs: PortArity{Fixed: 0}},
	SheetLabelSink:   {Kind: SheetLabelSink, Inputs: PortArity{Fixed: 1}, Outputs: PortArity{Fixed: 0}},
	SheetLabelSource: {Kind: SheetLabelSource, Inputs: PortArity{Fixed: 0}, Outputs: PortArity{Fixed: 1}},
	Subsystem:        {Kind: Subsystem, Inputs: PortArity{Dynamic: true}, Outputs: PortArity{Dynamic: true}, HasEnable: true},
}

// Lookup returns the Descriptor for kind.
func Lookup(kind Kind) (Descriptor, bool) {
	d, ok := registry[kind]
	return d, ok
}

// MustLookup is like Lookup but panics on an unknown kind; it is meant for
// call sites that already validated the kind exists (e.g. after
// ParseParams succeeded).
func MustLookup(kind Kind) Descriptor {
	d, ok := registry[kind]
	if !ok {
		panic(fmt.Sprintf("blockreg: unknown kind %q", kind))
	}
	return d
}

// Known reports whether kind is one of the closed set of block kinds.
func Known(kind Kind) bool {
	_, ok := registry[kind]
	return ok
}
