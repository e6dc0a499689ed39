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

// Package validate runs the structural and parameter checks spec.md §7 and
// §3's V1-V5 wire invariants call for, on top of the type errors package
// typeprop already reports. It is the last gate before a model may be
// flattened for simulation or code generation (spec.md §2's "Model IR ->
// Validator -> Flattener -> (Simulator | Code Emitter)" data flow): the
// wire-level checks here operate on the hierarchical model directly, sheet
// by sheet, rather than waiting for flatten to merge everything into one
// scope, so an error is always reported against the block/wire ids the
// author actually wrote.
package validate

import (
	"sort"

	"blockdsl.dev/go/blockerrors"
	"blockdsl.dev/go/blockmodel"
	"blockdsl.dev/go/blockreg"
	"blockdsl.dev/go/expr"
	"blockdsl.dev/go/typeprop"
)

// Summary reports the gross shape of a validated model, echoed back in the
// public Validation result (spec.md §6).
type Summary struct {
	TotalBlocks      int
	TotalConnections int
	Sheets           int
}

// Result is the outcome of Validate.
type Result struct {
	Valid    bool
	Errors   []blockerrors.Error
	Warnings []blockerrors.Error
	Summary  Summary
	Types    *typeprop.ModelTypes
}

// Validate checks m for structural and type errors and returns every one it
// finds; it never stops at the first problem (spec.md §7: "accumulates all
// errors before reporting, it does not stop at the first").
func Validate(m *blockmodel.Model) Result {
	tp := typeprop.Propagate(m)
	var errs, warns blockerrors.List
	for _, e := range tp.Errors {
		errs.Add(e)
	}
	for _, w := range tp.Warnings {
		warns.Add(w)
	}

	sum := Summary{}
	m.Walk(func(sheet *blockmodel.Sheet, scopePath []string) {
		sum.Sheets++
		sum.TotalBlocks += len(sheet.Blocks)
		sum.TotalConnections += len(sheet.Wires)

		sheetKey := scopeKey(scopePath, sheet.ID)
		st := tp.Types.Sheets[sheetKey]
		path := append(append([]string{}, scopePath...), sheet.ID)

		for i := range sheet.Blocks {
			checkBlockParams(&sheet.Blocks[i], append(append([]string{}, path...), "block:"+sheet.Blocks[i].ID), &errs, &warns)
		}
		checkWires(sheet, st, path, &errs)
	})

	return Result{
		Valid:    errs.Len() == 0,
		Errors:   errs.Sorted(),
		Warnings: warns.Sorted(),
		Summary:  sum,
		Types:    tp.Types,
	}
}

func scopeKey(scopePath []string, sheetID string) string {
	parts := append(append([]string{}, scopePath...), sheetID)
	key := ""
	for i, p := range parts {
		if i > 0 {
			key += "/"
		}
		key += p
	}
	return key
}

// checkWires enforces spec.md §3's V1-V5 wire invariants within one sheet:
// both endpoints exist and have a compatible kind, source and target blocks
// differ, a target port is fed by at most one wire, and every port index is
// within the (possibly dynamic) arity of its block.
func checkWires(sheet *blockmodel.Sheet, st *typeprop.SheetTypes, path []string, errs *blockerrors.List) {
	targetCount := map[blockmodel.Port]int{}
	for _, w := range sheet.Wires {
		targetCount[w.Target]++
	}

	for _, w := range sheet.Wires {
		wpath := append(append([]string{}, path...), "wire:"+w.ID)

		if w.Source.BlockID == w.Target.BlockID {
			errs.Addf(blockerrors.SelfConnection, wpath, "wire %q connects block %q to itself", w.ID, w.Source.BlockID)
		}

		if targetCount[w.Target] > 1 {
			errs.Addf(blockerrors.PortAlreadyConnected, wpath, "port %s.%d is fed by more than one wire", w.Target.BlockID, w.Target.Index)
		}

		src, ok := sheet.BlockByID(w.Source.BlockID)
		if !ok {
			errs.Addf(blockerrors.PortIndexOutOfRange, wpath, "wire %q source references unknown block %q", w.ID, w.Source.BlockID)
		} else if n := outputCount(src, st); w.Source.Index < 0 || w.Source.Index >= n {
			errs.Addf(blockerrors.PortIndexOutOfRange, wpath, "wire %q source port index %d is out of range for %q (has %d output port(s))", w.ID, w.Source.Index, src.ID, n)
		}

		tgt, ok := sheet.BlockByID(w.Target.BlockID)
		if !ok {
			errs.Addf(blockerrors.PortIndexOutOfRange, wpath, "wire %q target references unknown block %q", w.ID, w.Target.BlockID)
			continue
		}
		if w.Target.Index == blockmodel.EnablePort {
			d, ok := blockreg.Lookup(tgt.Kind)
			if !ok || !d.HasEnable {
				errs.Addf(blockerrors.PortIndexOutOfRange, wpath, "wire %q targets the enable port of %q, which has none", w.ID, tgt.ID)
			}
			continue
		}
		if n := typeprop.InputPortCount(tgt); w.Target.Index < 0 || w.Target.Index >= n {
			errs.Addf(blockerrors.PortIndexOutOfRange, wpath, "wire %q target port index %d is out of range for %q (has %d input port(s))", w.ID, w.Target.Index, tgt.ID, n)
		}
	}
}

// outputCount returns the current number of output ports of b, resolving
// the two kinds whose output arity is dynamic (demux, from its already
// type-propagated input; subsystem, from its declared output port names).
func outputCount(b *blockmodel.Block, st *typeprop.SheetTypes) int {
	switch b.Kind {
	case blockreg.Demux:
		if st != nil {
			if pt, ok := st.Blocks[b.ID]; ok {
				return len(pt.Outputs)
			}
		}
		return 1
	case blockreg.Subsystem:
		if b.Subsystem != nil {
			return len(b.Subsystem.OutputPorts)
		}
		return 0
	}
	d, ok := blockreg.Lookup(b.Kind)
	if !ok {
		return 0
	}
	return d.Outputs.Fixed
}

// checkBlockParams validates the parameters spec.md §7 calls out as
// checkable independently of wiring: transfer function coefficients,
// lookup table shapes and ordering, sum/multiply/mux arities, subsystems
// with no sheets, unregistered block kinds, and evaluate expressions.
func checkBlockParams(b *blockmodel.Block, path []string, errs, warns *blockerrors.List) {
	if !blockreg.Known(b.Kind) {
		errs.Addf(blockerrors.UnknownBlockType, path, "unknown block kind %q", b.Kind)
		return
	}

	switch p := b.Params.(type) {
	case *blockreg.TransferFunctionParams:
		checkTransferFunction(p, path, errs)
	case *blockreg.Lookup1DParams:
		checkLookup1D(p, path, errs)
	case *blockreg.Lookup2DParams:
		checkLookup2D(p, path, errs)
	case *blockreg.SumParams:
		if len(p.Signs) == 0 {
			errs.Addf(blockerrors.ValidationFailed, path, "sum requires at least one signed input")
		}
		for _, c := range p.Signs {
			if c != '+' && c != '-' {
				errs.Addf(blockerrors.ValidationFailed, path, "sum sign %q must be '+' or '-'", c)
			}
		}
	case *blockreg.MultiplyParams:
		if p.InputCount < 1 {
			errs.Addf(blockerrors.ValidationFailed, path, "multiply requires at least one input, got %d", p.InputCount)
		}
	case *blockreg.MuxParams:
		if p.Rows < 1 || p.Cols < 1 {
			errs.Addf(blockerrors.ValidationFailed, path, "mux rows and cols must each be at least 1, got %dx%d", p.Rows, p.Cols)
		}
	case *blockreg.EvaluateParams:
		checkEvaluate(p, path, errs, warns)
	}

	if b.Kind == blockreg.Subsystem && b.Subsystem != nil && len(b.Subsystem.Sheets) == 0 {
		errs.Addf(blockerrors.MissingSheet, path, "subsystem has no sheets")
	}
}

func checkTransferFunction(p *blockreg.TransferFunctionParams, path []string, errs *blockerrors.List) {
	if len(p.Numerator) == 0 {
		errs.Addf(blockerrors.ValidationFailed, path, "numerator must be a non-empty array of numbers")
	}
	if len(p.Denominator) == 0 || p.Denominator[0] == 0 {
		errs.Addf(blockerrors.ValidationFailed, path, "denominator leading coefficient cannot be zero")
		return
	}
	// deg(D) == 0 degenerates to a scalar gain (spec.md §4.3): the usual
	// deg(N) < deg(D) requirement relaxes to allowing deg(N) == 0 too,
	// since a strict inequality against deg(D) == 0 would forbid even a
	// constant numerator.
	if len(p.Denominator) == 1 {
		if len(p.Numerator) > 1 {
			errs.Addf(blockerrors.ValidationFailed, path, "transfer function numerator degree (%d) must be 0 when the denominator is a constant", len(p.Numerator)-1)
		}
		return
	}
	if len(p.Numerator) >= len(p.Denominator) {
		errs.Addf(blockerrors.ValidationFailed, path, "transfer function numerator degree (%d) must be less than denominator degree (%d)", len(p.Numerator)-1, len(p.Denominator)-1)
	}
}

func checkLookup1D(p *blockreg.Lookup1DParams, path []string, errs *blockerrors.List) {
	if len(p.Breakpoints) == 0 {
		errs.Addf(blockerrors.ValidationFailed, path, "lookup_1d requires at least one breakpoint")
		return
	}
	if len(p.Breakpoints) != len(p.Values) {
		errs.Addf(blockerrors.ValidationFailed, path, "lookup_1d has %d breakpoints but %d values", len(p.Breakpoints), len(p.Values))
	}
	if !sort.Float64sAreSorted(p.Breakpoints) {
		errs.Addf(blockerrors.ValidationFailed, path, "lookup_1d breakpoints must be sorted in ascending order")
	}
}

func checkLookup2D(p *blockreg.Lookup2DParams, path []string, errs *blockerrors.List) {
	if len(p.RowBreakpoints) == 0 || len(p.ColBreakpoints) == 0 {
		errs.Addf(blockerrors.ValidationFailed, path, "lookup_2d requires at least one row and one column breakpoint")
		return
	}
	if !sort.Float64sAreSorted(p.RowBreakpoints) || !sort.Float64sAreSorted(p.ColBreakpoints) {
		errs.Addf(blockerrors.ValidationFailed, path, "lookup_2d breakpoints must be sorted in ascending order")
	}
	if len(p.Table) != len(p.RowBreakpoints) {
		errs.Addf(blockerrors.ValidationFailed, path, "lookup_2d table has %d rows but %d row breakpoints", len(p.Table), len(p.RowBreakpoints))
		return
	}
	for i, row := range p.Table {
		if len(row) != len(p.ColBreakpoints) {
			errs.Addf(blockerrors.ValidationFailed, path, "lookup_2d table row %d has %d values but %d column breakpoints", i, len(row), len(p.ColBreakpoints))
		}
	}
}

func checkEvaluate(p *blockreg.EvaluateParams, path []string, errs, warns *blockerrors.List) {
	if p.InputCount < 0 {
		errs.Addf(blockerrors.ValidationFailed, path, "evaluate input count cannot be negative, got %d", p.InputCount)
		return
	}
	n, err := expr.Parse(p.Expression, path)
	if err != nil {
		errs.Add(err)
		return
	}
	v := expr.Validate(n, p.InputCount, path)
	for _, e := range v.Errors {
		errs.Add(e)
	}
	for _, w := range v.Warnings {
		warns.Add(w)
	}
}
