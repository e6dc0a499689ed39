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

// Package typeprop infers every block's output signal type(s) from its
// inputs and parameters, and reports type/dimension mismatches (spec.md §2
// component 6, §4.3). Inference walks each sheet in topological order so
// that an input's type is always known before the block consuming it is
// visited; blocks whose inputs cannot be resolved (an upstream error, or a
// still-unresolved sheet label) are simply skipped for the checks that need
// them, rather than cascading a second error.
//
// input_port and output_port blocks always carry their own declared type
// (spec.md §3); typeprop never infers one for them, it only checks that
// what flows into an output_port, or across a subsystem boundary, is
// compatible with the declared type on the other side. That lets subsystem
// and sheet-label port types be resolved by name lookup rather than by a
// cross-scope propagation order.
//
// Sheet-label sources are resolved in a second pass per scope, once every
// sink in that scope has been visited. That pass records only the source's
// own output type (or, for a source with no matching sink, an error); it
// does not re-visit the blocks downstream of any source, so they keep an
// unresolved input type and the checks that need it are skipped. A type
// mismatch carried across a sheet label is therefore not reported here,
// and Validate does not re-check the model after flatten (§4.4) replaces
// both label ends with a direct wire.
package typeprop

import (
	"strings"

	"blockdsl.dev/go/blockerrors"
	"blockdsl.dev/go/blockmodel"
	"blockdsl.dev/go/blockreg"
	"blockdsl.dev/go/sigtype"
)

// PortTypes is the resolved type of every input and output port of one
// block.
type PortTypes struct {
	Inputs  []sigtype.Type
	Outputs []sigtype.Type
}

// SheetTypes maps block id to its resolved port types, for one sheet.
type SheetTypes struct {
	Blocks map[string]*PortTypes
}

// ModelTypes maps a scope path (subsystem block ids from the root, joined
// with sheet id by "/", e.g. "main" or "main/sub1/inner") to that sheet's
// resolved types.
type ModelTypes struct {
	Sheets map[string]*SheetTypes
}

// Result is the outcome of Propagate.
type Result struct {
	Types    *ModelTypes
	Errors   []blockerrors.Error
	Warnings []blockerrors.Error
}

// Propagate infers types for every sheet of m, recursing into subsystems.
func Propagate(m *blockmodel.Model) Result {
	mt := &ModelTypes{Sheets: map[string]*SheetTypes{}}
	var errs, warns blockerrors.List
	propagateScope(m.Sheets, nil, mt, &errs, &warns)
	return Result{Types: mt, Errors: errs.Errs(), Warnings: warns.Errs()}
}

func scopeKey(scopePath []string, sheetID string) string {
	return strings.Join(append(append([]string{}, scopePath...), sheetID), "/")
}

// propagateScope processes one sibling group of sheets (the model root, or
// one subsystem's interior), resolving sheet labels shared among them, then
// recurses into any subsystem blocks found.
func propagateScope(sheets []blockmodel.Sheet, scopePath []string, mt *ModelTypes, errs, warns *blockerrors.List) {
	sinkType := map[string]sigtype.Type{}

	for i := range sheets {
		sheetPath := append(append([]string{}, scopePath...), sheets[i].ID)
		st := propagateOneSheet(&sheets[i], sheetPath, errs, warns, sinkType)
		mt.Sheets[scopeKey(scopePath, sheets[i].ID)] = st
	}

	for i := range sheets {
		sheetPath := append(append([]string{}, scopePath...), sheets[i].ID)
		st := mt.Sheets[scopeKey(scopePath, sheets[i].ID)]
		for bi := range sheets[i].Blocks {
			b := &sheets[i].Blocks[bi]
			if b.Kind != blockreg.SheetLabelSource {
				continue
			}
			p := b.Params.(*blockreg.SheetLabelSourceParams)
			path := append(append([]string{}, sheetPath...), "block:"+b.ID)
			t, ok := sinkType[p.SignalName]
			if p.SignalName == "" {
				warns.Addf(blockerrors.SheetLabelUnmatched, path, "sheet label source has an empty signal name")
				continue
			}
			if !ok {
				errs.Addf(blockerrors.SheetLabelUnmatched, path, "sheet label source %q has no matching sink in this scope", p.SignalName)
				continue
			}
			st.Blocks[b.ID].Outputs = []sigtype.Type{t}
		}
	}

	for i := range sheets {
		for bi := range sheets[i].Blocks {
			b := &sheets[i].Blocks[bi]
			if b.Kind == blockreg.Subsystem && b.Subsystem != nil {
				childPath := append(append([]string{}, scopePath...), sheets[i].ID, b.ID)
				propagateScope(b.Subsystem.Sheets, childPath, mt, errs, warns)
			}
		}
	}
}

func propagateOneSheet(sheet *blockmodel.Sheet, sheetPath []string, errs, warns *blockerrors.List, sinkType map[string]sigtype.Type) *SheetTypes {
	st := &SheetTypes{Blocks: map[string]*PortTypes{}}

	blockByID := map[string]*blockmodel.Block{}
	for i := range sheet.Blocks {
		blockByID[sheet.Blocks[i].ID] = &sheet.Blocks[i]
	}

	incoming := map[string]map[int]blockmodel.Port{}
	for _, w := range sheet.Wires {
		m, ok := incoming[w.Target.BlockID]
		if !ok {
			m = map[int]blockmodel.Port{}
			incoming[w.Target.BlockID] = m
		}
		m[w.Target.Index] = w.Source
	}

	order := topoOrder(sheet)
	outputs := map[string][]sigtype.Type{}

	for _, id := range order {
		b := blockByID[id]
		path := append(append([]string{}, sheetPath...), "block:"+id)
			in := gatherInputs(b, incoming[id], outputs)
		st.Blocks[id] = &PortTypes{Inputs: in}

		if b.Kind == blockreg.Subsystem && b.Subsystem != nil && b.Subsystem.ShowEnableInput {
			checkEnable(incoming[id], outputs, path, errs)
		}

		var out []sigtype.Type
		switch b.Kind {
		case blockreg.SheetLabelSink:
			p := b.Params.(*blockreg.SheetLabelSinkParams)
			switch {
			case p.SignalName == "":
				warns.Addf(blockerrors.SheetLabelUnmatched, path, "sheet label sink has an empty signal name")
			case sinkAlreadySeen(sinkType, p.SignalName):
				errs.Addf(blockerrors.DuplicateSheetLabelSink, path, "duplicate sheet label sink name %q in this scope", p.SignalName)
			default:
				sinkType[p.SignalName] = in[0]
			}
		case blockreg.SheetLabelSource:
			out = []sigtype.Type{sigtype.Type{}} // resolved in the scope's second pass
		case blockreg.Subsystem:
			out = subsystemTypes(b, in, path, errs)
		default:
			out = inferPort(b, in, path, errs)
		}
		outputs[id] = out
		st.Blocks[id].Outputs = out
	}
	return st
}

// sinkAlreadySeen reports whether name is already present in sinkType,
// without the zero-value/"not present" ambiguity map indexing alone would
// have for a sink whose absorbed type happens to be the zero Type.
func sinkAlreadySeen(sinkType map[string]sigtype.Type, name string) bool {
	_, ok := sinkType[name]
	return ok
}

func checkEnable(incoming map[int]blockmodel.Port, outputs map[string][]sigtype.Type, path []string, errs *blockerrors.List) {
	src, ok := incoming[blockmodel.EnablePort]
	if !ok {
		return
	}
	outs := outputs[src.BlockID]
	if src.Index < 0 || src.Index >= len(outs) {
		return
	}
	t := outs[src.Index]
	if known(t) && (t.ShapeKind() != sigtype.Scalar || t.Base() != sigtype.Bool) {
		errs.Addf(blockerrors.TypeMismatch, path, "subsystem enable input must be a scalar bool, got %s", t)
	}
}

func gatherInputs(b *blockmodel.Block, in map[int]blockmodel.Port, outputs map[string][]sigtype.Type) []sigtype.Type {
	n := InputPortCount(b)
	res := make([]sigtype.Type, n)
	for i := 0; i < n; i++ {
		src, ok := in[i]
		if !ok {
			continue
		}
		outs := outputs[src.BlockID]
		if src.Index >= 0 && src.Index < len(outs) {
			res[i] = outs[src.Index]
		}
	}
	return res
}

// InputPortCount returns the number of input ports b currently has, taking
// the block kind's dynamic-arity parameters (sum's sign count, multiply's
// input count, mux's row*col count, and so on) into account; validate
// reuses this so its port-index-range checks agree with inference exactly.
func InputPortCount(b *blockmodel.Block) int {
	switch p := b.Params.(type) {
	case *blockreg.SumParams:
		return len(p.Signs)
	case *blockreg.MultiplyParams:
		return p.InputCount
	case *blockreg.TrigParams:
		if p.Function.IsBinary() {
			return 2
		}
		return 1
	case *blockreg.EvaluateParams:
		return p.InputCount
	case *blockreg.MuxParams:
		return p.InputCount()
	}
	if b.Kind == blockreg.Subsystem && b.Subsystem != nil {
		return len(b.Subsystem.InputPorts)
	}
	d := blockreg.MustLookup(b.Kind)
	return d.Inputs.Fixed
}

// topoOrder returns sheet's block ids in a topological order derived from
// its wires (index >= 0 edges only would suffice, but enable edges impose
// a valid dependency too, so all wires participate). Any block left over
// after Kahn's algorithm terminates (an algebraic loop) is appended in
// declaration order; cycle handling proper is the simulation engine's job
// (spec.md §4.5), not type propagation's.
func topoOrder(sheet *blockmodel.Sheet) []string {
	remaining := map[string]int{}
	for _, b := range sheet.Blocks {
		remaining[b.ID] = 0
	}
	outAdj := map[string][]string{}
	for _, w := range sheet.Wires {
		remaining[w.Target.BlockID]++
		outAdj[w.Source.BlockID] = append(outAdj[w.Source.BlockID], w.Target.BlockID)
	}

	var queue []string
	for _, b := range sheet.Blocks {
		if remaining[b.ID] == 0 {
			queue = append(queue, b.ID)
		}
	}
	visited := map[string]bool{}
	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		order = append(order, id)
		for _, t := range outAdj[id] {
			remaining[t]--
			if remaining[t] == 0 {
				queue = append(queue, t)
			}
		}
	}
	for _, b := range sheet.Blocks {
		if !visited[b.ID] {
			order = append(order, b.ID)
		}
	}
	return order
}

func known(t sigtype.Type) bool { return t.Base() != "" }

func subsystemPortType(sub *blockmodel.Subsystem, name string, input bool) (sigtype.Type, bool) {
	for i := range sub.Sheets {
		for j := range sub.Sheets[i].Blocks {
			b := &sub.Sheets[i].Blocks[j]
			if input && b.Kind == blockreg.InputPort {
				p := b.Params.(*blockreg.InputPortParams)
				if p.PortName == name {
					return p.Type, true
				}
			}
			if !input && b.Kind == blockreg.OutputPort {
				p := b.Params.(*blockreg.OutputPortParams)
				if p.PortName == name {
					return p.Type, true
				}
			}
		}
	}
	return sigtype.Type{}, false
}

func subsystemTypes(b *blockmodel.Block, in []sigtype.Type, path []string, errs *blockerrors.List) []sigtype.Type {
	sub := b.Subsystem
	for i, name := range sub.InputPorts {
		want, ok := subsystemPortType(sub, name, true)
		if !ok {
			errs.Addf(blockerrors.UnknownSubsystemPort, path, "subsystem has no interior input_port named %q", name)
			continue
		}
		if i < len(in) && known(in[i]) && !in[i].Equal(want) {
			errs.Addf(blockerrors.TypeMismatch, path, "subsystem input %d (%q) expects %s, got %s", i, name, want, in[i])
		}
	}
	out := make([]sigtype.Type, len(sub.OutputPorts))
	for i, name := range sub.OutputPorts {
		t, ok := subsystemPortType(sub, name, false)
		if !ok {
			errs.Addf(blockerrors.UnknownSubsystemPort, path, "subsystem has no interior output_port named %q", name)
			continue
		}
		out[i] = t
	}
	return out
}

// inferPort computes the output type(s) of an ordinary (non-subsystem,
// non-sheet-label) block from its already-resolved input types, reporting
// any type or dimension mismatch along the way.
func inferPort(b *blockmodel.Block, in []sigtype.Type, path []string, errs *blockerrors.List) []sigtype.Type {
	switch p := b.Params.(type) {
	case *blockreg.SourceParams:
		return []sigtype.Type{p.OutputType}
	case *blockreg.InputPortParams:
		return []sigtype.Type{p.Type}
	case *blockreg.OutputPortParams:
		if known(in[0]) && !in[0].Equal(p.Type) {
			errs.Addf(blockerrors.TypeMismatch, path, "output port %q declared as %s but fed %s", p.PortName, p.Type, in[0])
		}
		return nil
	case *blockreg.SumParams:
		return []sigtype.Type{sameAll(in, path, errs)}
	case *blockreg.MultiplyParams:
		return []sigtype.Type{sameAll(in, path, errs)}
	case *blockreg.ScaleParams:
		return []sigtype.Type{in[0]}
	case *blockreg.AbsParams:
		if known(in[0]) {
			if in[0].ShapeKind() != sigtype.Scalar {
				errs.Addf(blockerrors.DimensionMismatch, path, "abs requires a scalar input, got %s", in[0])
			} else if in[0].Base() == sigtype.Bool {
				errs.Addf(blockerrors.TypeMismatch, path, "abs does not accept bool")
			}
		}
		return []sigtype.Type{in[0]}
	case *blockreg.UminusParams:
		if known(in[0]) && in[0].Base() == sigtype.Bool {
			errs.Addf(blockerrors.TypeMismatch, path, "uminus does not accept bool")
		}
		return []sigtype.Type{in[0]}
	case *blockreg.TrigParams:
		n := 1
		if p.Function.IsBinary() {
			n = 2
		}
		for i := 0; i < n && i < len(in); i++ {
			if known(in[i]) && in[i].ShapeKind() != sigtype.Scalar {
				errs.Addf(blockerrors.DimensionMismatch, path, "trig %q requires scalar inputs, got %s at index %d", p.Function, in[i], i)
			}
		}
		return []sigtype.Type{sigtype.NewScalar(sigtype.Double)}
	case *blockreg.EvaluateParams:
		for i, t := range in {
			if known(t) && t.ShapeKind() != sigtype.Scalar {
				errs.Addf(blockerrors.DimensionMismatch, path, "evaluate input %d must be scalar, got %s", i, t)
			}
		}
		return []sigtype.Type{sigtype.NewScalar(sigtype.Double)}
	case *blockreg.TransferFunctionParams:
		if known(in[0]) && in[0].Base() == sigtype.Bool {
			errs.Addf(blockerrors.TypeMismatch, path, "transfer_function does not accept bool")
		}
		return []sigtype.Type{in[0]}
	case *blockreg.Lookup1DParams:
		if known(in[0]) && in[0].ShapeKind() != sigtype.Scalar {
			errs.Addf(blockerrors.DimensionMismatch, path, "lookup_1d requires a scalar input, got %s", in[0])
		}
		return []sigtype.Type{in[0]}
	case *blockreg.Lookup2DParams:
		for i, t := range in {
			if known(t) && t.ShapeKind() != sigtype.Scalar {
				errs.Addf(blockerrors.DimensionMismatch, path, "lookup_2d input %d must be scalar, got %s", i, t)
			}
		}
		return []sigtype.Type{in[0]}
	case *blockreg.MatrixMultiplyParams:
		return []sigtype.Type{matrixMultiplyType(in, path, errs)}
	case *blockreg.TransposeParams:
		return []sigtype.Type{transposeType(in[0], path, errs)}
	case *blockreg.MuxParams:
		return []sigtype.Type{muxType(p, in, path, errs)}
	case *blockreg.DemuxParams:
		return demuxTypes(in[0])
	case *blockreg.CrossParams:
		return []sigtype.Type{crossType(in, path, errs)}
	case *blockreg.DotParams:
		return []sigtype.Type{dotType(in, path, errs)}
	case *blockreg.MagParams:
		if known(in[0]) && in[0].ShapeKind() == sigtype.Scalar {
			errs.Addf(blockerrors.DimensionMismatch, path, "mag requires a vector or matrix input, got scalar %s", in[0])
		}
		base := sigtype.Double
		if known(in[0]) {
			base = in[0].Base()
		}
		return []sigtype.Type{sigtype.NewScalar(base)}
	case *blockreg.IfParams:
		if known(in[2]) && in[2].ShapeKind() != sigtype.Scalar {
			errs.Addf(blockerrors.DimensionMismatch, path, "if control input must be scalar, got %s", in[2])
		}
		return []sigtype.Type{sameAll(in[:2], path, errs)}
	case *blockreg.ConditionParams:
		if known(in[0]) && in[0].ShapeKind() != sigtype.Scalar {
			errs.Addf(blockerrors.DimensionMismatch, path, "condition requires a scalar input, got %s", in[0])
		}
		return []sigtype.Type{sigtype.NewScalar(sigtype.Bool)}
	case *blockreg.SignalDisplayParams, *blockreg.SignalLoggerParams:
		return nil
	}
	return nil
}

func sameAll(in []sigtype.Type, path []string, errs *blockerrors.List) sigtype.Type {
	var first sigtype.Type
	have := false
	for _, t := range in {
		if !known(t) {
			continue
		}
		if !have {
			first, have = t, true
			continue
		}
		if !first.Equal(t) {
			errs.Addf(blockerrors.TypeMismatch, path, "mismatched input types: %s vs %s", first, t)
		}
	}
	return first
}

func matrixMultiplyType(in []sigtype.Type, path []string, errs *blockerrors.List) sigtype.Type {
	a, b := in[0], in[1]
	if !known(a) || !known(b) {
		return sigtype.Type{}
	}
	if a.Base() != b.Base() {
		errs.Addf(blockerrors.TypeMismatch, path, "matrix_multiply operand base mismatch: %s vs %s", a, b)
		return sigtype.Type{}
	}
	base := a.Base()
	switch {
	case a.ShapeKind() == sigtype.Scalar && b.ShapeKind() == sigtype.Scalar:
		return sigtype.NewScalar(base)
	case a.ShapeKind() == sigtype.Scalar:
		return b
	case a.ShapeKind() == sigtype.Vector && b.ShapeKind() == sigtype.Matrix:
		n := a.Size()
		rows, cols := b.Dims()
		if n != rows {
			errs.Addf(blockerrors.DimensionMismatch, path, "matrix_multiply: vector length %d does not match matrix rows %d", n, rows)
			return sigtype.Type{}
		}
		out, _ := sigtype.NewVector(base, cols)
		return out
	case a.ShapeKind() == sigtype.Matrix && b.ShapeKind() == sigtype.Vector:
		rows, cols := a.Dims()
		n := b.Size()
		if cols != n {
			errs.Addf(blockerrors.DimensionMismatch, path, "matrix_multiply: matrix cols %d does not match vector length %d", cols, n)
			return sigtype.Type{}
		}
		out, _ := sigtype.NewVector(base, rows)
		return out
	case a.ShapeKind() == sigtype.Matrix && b.ShapeKind() == sigtype.Matrix:
		arows, acols := a.Dims()
		brows, bcols := b.Dims()
		if acols != brows {
			errs.Addf(blockerrors.DimensionMismatch, path, "matrix_multiply: %dx%d times %dx%d is not conformable", arows, acols, brows, bcols)
			return sigtype.Type{}
		}
		out, _ := sigtype.NewMatrix(base, arows, bcols)
		return out
	default:
		errs.Addf(blockerrors.DimensionMismatch, path, "matrix_multiply: unsupported shape combination %s x %s", a, b)
		return sigtype.Type{}
	}
}

func transposeType(t sigtype.Type, path []string, errs *blockerrors.List) sigtype.Type {
	if !known(t) {
		return sigtype.Type{}
	}
	switch t.ShapeKind() {
	case sigtype.Scalar:
		return t
	case sigtype.Vector:
		out, _ := sigtype.NewMatrix(t.Base(), t.Size(), 1)
		return out
	default:
		rows, cols := t.Dims()
		out, _ := sigtype.NewMatrix(t.Base(), cols, rows)
		return out
	}
}

func muxType(p *blockreg.MuxParams, in []sigtype.Type, path []string, errs *blockerrors.List) sigtype.Type {
	for i, t := range in {
		if !known(t) {
			continue
		}
		if t.ShapeKind() != sigtype.Scalar || t.Base() != p.Base {
			errs.Addf(blockerrors.TypeMismatch, path, "mux input %d must be scalar %s, got %s", i, p.Base, t)
		}
	}
	var out sigtype.Type
	var err error
	switch {
	case p.Rows == 1 && p.Cols == 1:
		out = sigtype.NewScalar(p.Base)
	case p.Rows == 1:
		out, err = sigtype.NewVector(p.Base, p.Cols)
	case p.Cols == 1:
		out, err = sigtype.NewVector(p.Base, p.Rows)
	default:
		out, err = sigtype.NewMatrix(p.Base, p.Rows, p.Cols)
	}
	if err != nil {
		errs.Addf(blockerrors.DimensionMismatch, path, "%v", err)
	}
	return out
}

func demuxTypes(t sigtype.Type) []sigtype.Type {
	n, base := 1, sigtype.Double
	if known(t) {
		n, base = t.ElementCount(), t.Base()
	}
	out := make([]sigtype.Type, n)
	for i := range out {
		out[i] = sigtype.NewScalar(base)
	}
	return out
}

func crossType(in []sigtype.Type, path []string, errs *blockerrors.List) sigtype.Type {
	a, b := in[0], in[1]
	if !known(a) || !known(b) {
		return sigtype.Type{}
	}
	ok := a.ShapeKind() == sigtype.Vector && b.ShapeKind() == sigtype.Vector &&
		a.Size() == b.Size() && (a.Size() == 2 || a.Size() == 3) && a.Base() == b.Base()
	if !ok {
		errs.Addf(blockerrors.DimensionMismatch, path, "cross requires two equal-length 2-D or 3-D vectors of the same base, got %s and %s", a, b)
		return sigtype.Type{}
	}
	if a.Size() == 2 {
		return sigtype.NewScalar(a.Base())
	}
	out, _ := sigtype.NewVector(a.Base(), 3)
	return out
}

func dotType(in []sigtype.Type, path []string, errs *blockerrors.List) sigtype.Type {
	a, b := in[0], in[1]
	if !known(a) || !known(b) {
		return sigtype.Type{}
	}
	if a.ShapeKind() != sigtype.Vector || b.ShapeKind() != sigtype.Vector || a.Size() != b.Size() || a.Base() != b.Base() {
		errs.Addf(blockerrors.DimensionMismatch, path, "dot requires two equal-length vectors of the same base, got %s and %s", a, b)
		return sigtype.Type{}
	}
	return sigtype.NewScalar(a.Base())
}
