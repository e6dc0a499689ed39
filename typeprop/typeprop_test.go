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

package typeprop

import (
	"testing"

	"github.com/go-quicktest/qt"

	"blockdsl.dev/go/blockerrors"
	"blockdsl.dev/go/blockmodel"
	"blockdsl.dev/go/blockreg"
	"blockdsl.dev/go/sigtype"
)

func port(id string, i int) blockmodel.Port { return blockmodel.Port{BlockID: id, Index: i} }

// TestScaleScenario mirrors spec.md §8 scenario 1: source(5.0) -> scale(3) -> output.
func TestScaleScenario(t *testing.T) {
	m := &blockmodel.Model{Sheets: []blockmodel.Sheet{{
		ID: "main",
		Blocks: []blockmodel.Block{
			{ID: "src", Kind: blockreg.Source, Params: &blockreg.SourceParams{OutputType: sigtype.NewScalar(sigtype.Double), Variant: blockreg.SourceConstant, Value: 5}},
			{ID: "sc", Kind: blockreg.Scale, Params: &blockreg.ScaleParams{Gain: 3}},
			{ID: "out", Kind: blockreg.OutputPort, Params: &blockreg.OutputPortParams{PortName: "y", Type: sigtype.NewScalar(sigtype.Double)}},
		},
		Wires: []blockmodel.Wire{
			{ID: "w1", Source: port("src", 0), Target: port("sc", 0)},
			{ID: "w2", Source: port("sc", 0), Target: port("out", 0)},
		},
	}}}

	res := Propagate(m)
	qt.Assert(t, qt.Equals(len(res.Errors), 0))
	scaleOut := res.Types.Sheets["main"].Blocks["sc"].Outputs[0]
	qt.Assert(t, qt.IsTrue(scaleOut.Equal(sigtype.NewScalar(sigtype.Double))))
}

// TestMatrixMultiplyDimensionMismatch mirrors spec.md §8 scenario 5's negative case.
func TestMatrixMultiplyDimensionMismatch(t *testing.T) {
	a, err := sigtype.NewMatrix(sigtype.Double, 2, 3)
	qt.Assert(t, qt.IsNil(err))
	bvec, err := sigtype.NewVector(sigtype.Double, 2) // incompatible: should be 3
	qt.Assert(t, qt.IsNil(err))

	m := &blockmodel.Model{Sheets: []blockmodel.Sheet{{
		ID: "main",
		Blocks: []blockmodel.Block{
			{ID: "a", Kind: blockreg.Source, Params: &blockreg.SourceParams{OutputType: a, Variant: blockreg.SourceConstant}},
			{ID: "b", Kind: blockreg.Source, Params: &blockreg.SourceParams{OutputType: bvec, Variant: blockreg.SourceConstant}},
			{ID: "mm", Kind: blockreg.MatrixMultiply, Params: &blockreg.MatrixMultiplyParams{}},
		},
		Wires: []blockmodel.Wire{
			{ID: "w1", Source: port("a", 0), Target: port("mm", 0)},
			{ID: "w2", Source: port("b", 0), Target: port("mm", 1)},
		},
	}}}

	res := Propagate(m)
	qt.Assert(t, qt.Equals(len(res.Errors), 1))
	qt.Assert(t, qt.Equals(res.Errors[0].Code(), blockerrors.DimensionMismatch))
}

// TestEvaluateRejectsNonScalar checks evaluate's scalar-only input rule.
func TestEvaluateRejectsNonScalar(t *testing.T) {
	vec, err := sigtype.NewVector(sigtype.Double, 2)
	qt.Assert(t, qt.IsNil(err))

	m := &blockmodel.Model{Sheets: []blockmodel.Sheet{{
		ID: "main",
		Blocks: []blockmodel.Block{
			{ID: "src", Kind: blockreg.Source, Params: &blockreg.SourceParams{OutputType: vec, Variant: blockreg.SourceConstant}},
			{ID: "ev", Kind: blockreg.Evaluate, Params: &blockreg.EvaluateParams{Expression: "in(0)", InputCount: 1}},
		},
		Wires: []blockmodel.Wire{
			{ID: "w1", Source: port("src", 0), Target: port("ev", 0)},
		},
	}}}

	res := Propagate(m)
	qt.Assert(t, qt.Equals(len(res.Errors), 1))
	out := res.Types.Sheets["main"].Blocks["ev"].Outputs[0]
	qt.Assert(t, qt.IsTrue(out.Equal(sigtype.NewScalar(sigtype.Double))))
}

// TestSheetLabelAcrossSheets resolves a sink on one sheet against a source
// on a sibling sheet of the same scope (spec.md §8 scenario 4's type half).
func TestSheetLabelAcrossSheets(t *testing.T) {
	m := &blockmodel.Model{Sheets: []blockmodel.Sheet{
		{
			ID: "main",
			Blocks: []blockmodel.Block{
				{ID: "src", Kind: blockreg.Source, Params: &blockreg.SourceParams{OutputType: sigtype.NewScalar(sigtype.Double), Variant: blockreg.SourceConstant, Value: 3}},
				{ID: "sink", Kind: blockreg.SheetLabelSink, Params: &blockreg.SheetLabelSinkParams{SignalName: "SignalA"}},
			},
			Wires: []blockmodel.Wire{{ID: "w1", Source: port("src", 0), Target: port("sink", 0)}},
		},
		{
			ID: "second",
			Blocks: []blockmodel.Block{
				{ID: "source2", Kind: blockreg.SheetLabelSource, Params: &blockreg.SheetLabelSourceParams{SignalName: "SignalA"}},
				{ID: "sc", Kind: blockreg.Scale, Params: &blockreg.ScaleParams{Gain: 2}},
			},
			Wires: []blockmodel.Wire{{ID: "w2", Source: port("source2", 0), Target: port("sc", 0)}},
		},
	}}

	res := Propagate(m)
	qt.Assert(t, qt.Equals(len(res.Errors), 0))
	got := res.Types.Sheets["second"].Blocks["source2"].Outputs[0]
	qt.Assert(t, qt.IsTrue(got.Equal(sigtype.NewScalar(sigtype.Double))))
}
