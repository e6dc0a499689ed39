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

package validate

import (
	"testing"

	"github.com/go-quicktest/qt"

	"blockdsl.dev/go/blockerrors"
	"blockdsl.dev/go/blockmodel"
	"blockdsl.dev/go/blockreg"
	"blockdsl.dev/go/sigtype"
)

func port(id string, i int) blockmodel.Port { return blockmodel.Port{BlockID: id, Index: i} }

func hasCode(errs []blockerrors.Error, code blockerrors.Code) bool {
	for _, e := range errs {
		if e.Code() == code {
			return true
		}
	}
	return false
}

// TestSelfConnection mirrors spec.md §8's "connecting a block's output to
// its own input" scenario.
func TestSelfConnection(t *testing.T) {
	m := &blockmodel.Model{Sheets: []blockmodel.Sheet{{
		ID: "main",
		Blocks: []blockmodel.Block{
			{ID: "sc", Kind: blockreg.Scale, Params: &blockreg.ScaleParams{Gain: 2}},
		},
		Wires: []blockmodel.Wire{{ID: "w1", Source: port("sc", 0), Target: port("sc", 0)}},
	}}}

	res := Validate(m)
	qt.Assert(t, qt.IsFalse(res.Valid))
	qt.Assert(t, qt.IsTrue(hasCode(res.Errors, blockerrors.SelfConnection)))
}

// TestPortAlreadyConnected mirrors spec.md §8's "second wire at an
// already-connected target port" scenario.
func TestPortAlreadyConnected(t *testing.T) {
	m := &blockmodel.Model{Sheets: []blockmodel.Sheet{{
		ID: "main",
		Blocks: []blockmodel.Block{
			{ID: "a", Kind: blockreg.Source, Params: &blockreg.SourceParams{OutputType: sigtype.NewScalar(sigtype.Double), Variant: blockreg.SourceConstant, Value: 1}},
			{ID: "b", Kind: blockreg.Source, Params: &blockreg.SourceParams{OutputType: sigtype.NewScalar(sigtype.Double), Variant: blockreg.SourceConstant, Value: 2}},
			{ID: "sc", Kind: blockreg.Scale, Params: &blockreg.ScaleParams{Gain: 2}},
		},
		Wires: []blockmodel.Wire{
			{ID: "w1", Source: port("a", 0), Target: port("sc", 0)},
			{ID: "w2", Source: port("b", 0), Target: port("sc", 0)},
		},
	}}}

	res := Validate(m)
	qt.Assert(t, qt.IsFalse(res.Valid))
	qt.Assert(t, qt.IsTrue(hasCode(res.Errors, blockerrors.PortAlreadyConnected)))
}

// TestTransferFunctionBadCoefficients mirrors spec.md §8's literal-value
// scenario for an empty numerator and a zero leading denominator
// coefficient.
func TestTransferFunctionBadCoefficients(t *testing.T) {
	m := &blockmodel.Model{Sheets: []blockmodel.Sheet{{
		ID: "main",
		Blocks: []blockmodel.Block{
			{ID: "a", Kind: blockreg.Source, Params: &blockreg.SourceParams{OutputType: sigtype.NewScalar(sigtype.Double), Variant: blockreg.SourceConstant, Value: 1}},
			{ID: "tf", Kind: blockreg.TransferFunction, Params: &blockreg.TransferFunctionParams{
				Numerator:   nil,
				Denominator: []float64{0, 1, 1},
			}},
		},
		Wires: []blockmodel.Wire{{ID: "w1", Source: port("a", 0), Target: port("tf", 0)}},
	}}}

	res := Validate(m)
	qt.Assert(t, qt.IsFalse(res.Valid))
	qt.Assert(t, qt.IsTrue(hasCode(res.Errors, blockerrors.ValidationFailed)))

	var sawEmptyNum, sawZeroLeading bool
	for _, e := range res.Errors {
		switch e.Error() {
		case "main.block:tf: numerator must be a non-empty array of numbers":
			sawEmptyNum = true
		case "main.block:tf: denominator leading coefficient cannot be zero":
			sawZeroLeading = true
		}
	}
	qt.Assert(t, qt.IsTrue(sawEmptyNum))
	qt.Assert(t, qt.IsTrue(sawZeroLeading))
}

// TestPortIndexOutOfRange checks V4: a wire addressing a port index beyond
// a block's (here, dynamic) arity.
func TestPortIndexOutOfRange(t *testing.T) {
	m := &blockmodel.Model{Sheets: []blockmodel.Sheet{{
		ID: "main",
		Blocks: []blockmodel.Block{
			{ID: "a", Kind: blockreg.Source, Params: &blockreg.SourceParams{OutputType: sigtype.NewScalar(sigtype.Double), Variant: blockreg.SourceConstant, Value: 1}},
			{ID: "sum1", Kind: blockreg.Sum, Params: &blockreg.SumParams{Signs: "+"}},
		},
		Wires: []blockmodel.Wire{{ID: "w1", Source: port("a", 0), Target: port("sum1", 1)}},
	}}}

	res := Validate(m)
	qt.Assert(t, qt.IsFalse(res.Valid))
	qt.Assert(t, qt.IsTrue(hasCode(res.Errors, blockerrors.PortIndexOutOfRange)))
}

// TestLookup1DUnsortedBreakpoints checks the lookup table ordering rule.
func TestLookup1DUnsortedBreakpoints(t *testing.T) {
	m := &blockmodel.Model{Sheets: []blockmodel.Sheet{{
		ID: "main",
		Blocks: []blockmodel.Block{
			{ID: "a", Kind: blockreg.Source, Params: &blockreg.SourceParams{OutputType: sigtype.NewScalar(sigtype.Double), Variant: blockreg.SourceConstant, Value: 1}},
			{ID: "lk", Kind: blockreg.Lookup1D, Params: &blockreg.Lookup1DParams{
				Breakpoints: []float64{1, 0, 2},
				Values:      []float64{1, 2, 3},
			}},
		},
		Wires: []blockmodel.Wire{{ID: "w1", Source: port("a", 0), Target: port("lk", 0)}},
	}}}

	res := Validate(m)
	qt.Assert(t, qt.IsFalse(res.Valid))
	qt.Assert(t, qt.IsTrue(hasCode(res.Errors, blockerrors.ValidationFailed)))
}

// TestValidModelSummary checks that a clean model reports Valid and a
// correct block/connection/sheet summary.
func TestValidModelSummary(t *testing.T) {
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

	res := Validate(m)
	qt.Assert(t, qt.IsTrue(res.Valid))
	qt.Assert(t, qt.Equals(len(res.Errors), 0))
	qt.Assert(t, qt.DeepEquals(res.Summary, Summary{TotalBlocks: 3, TotalConnections: 2, Sheets: 1}))
}
