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

package schedule

import (
	"testing"

	"github.com/go-quicktest/qt"

	"blockdsl.dev/go/blockmodel"
	"blockdsl.dev/go/blockreg"
	"blockdsl.dev/go/sigtype"
)

func port(id string, i int) blockmodel.Port { return blockmodel.Port{BlockID: id, Index: i} }

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// TestStatefulFeedbackIsNotAnAlgebraicLoop checks spec.md §4.5 phase 1's
// rule: a loop closed only through a stateful transfer_function's output
// (which depends on state, not its current input, since deg(N) < deg(D))
// is not an algebraic loop and requires no arbitrary break.
func TestStatefulFeedbackIsNotAnAlgebraicLoop(t *testing.T) {
	sheet := &blockmodel.Sheet{
		ID: "main",
		Blocks: []blockmodel.Block{
			{ID: "src", Kind: blockreg.Source, Params: &blockreg.SourceParams{OutputType: sigtype.NewScalar(sigtype.Double), Variant: blockreg.SourceConstant, Value: 1}},
			{ID: "sum1", Kind: blockreg.Sum, Params: &blockreg.SumParams{Signs: "+-"}},
			{ID: "tf1", Kind: blockreg.TransferFunction, Params: &blockreg.TransferFunctionParams{Numerator: []float64{1}, Denominator: []float64{1, 1}}},
		},
		Wires: []blockmodel.Wire{
			{ID: "w1", Source: port("src", 0), Target: port("sum1", 0)},
			{ID: "w2", Source: port("tf1", 0), Target: port("sum1", 1)},
			{ID: "w3", Source: port("sum1", 0), Target: port("tf1", 0)},
		},
	}

	order := Compute(sheet)
	qt.Assert(t, qt.Equals(len(order.Warnings()), 0))
	qt.Assert(t, qt.Equals(len(order.IDs()), 3))
	qt.Assert(t, qt.IsTrue(indexOf(order.IDs(), "src") < indexOf(order.IDs(), "sum1")))
	qt.Assert(t, qt.IsTrue(indexOf(order.IDs(), "tf1") < indexOf(order.IDs(), "sum1")))
}

// TestGenuineAlgebraicLoopWarns checks that a cycle closed entirely through
// non-stateful blocks is reported as a warning and broken arbitrarily.
func TestGenuineAlgebraicLoopWarns(t *testing.T) {
	sheet := &blockmodel.Sheet{
		ID: "main",
		Blocks: []blockmodel.Block{
			{ID: "sc1", Kind: blockreg.Scale, Params: &blockreg.ScaleParams{Gain: 1}},
			{ID: "sc2", Kind: blockreg.Scale, Params: &blockreg.ScaleParams{Gain: 1}},
		},
		Wires: []blockmodel.Wire{
			{ID: "w1", Source: port("sc1", 0), Target: port("sc2", 0)},
			{ID: "w2", Source: port("sc2", 0), Target: port("sc1", 0)},
		},
	}

	order := Compute(sheet)
	qt.Assert(t, qt.Equals(len(order.Warnings()), 2))
	qt.Assert(t, qt.Equals(len(order.IDs()), 2))
}
