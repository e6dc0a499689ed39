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

package semantics

import (
	"math"
	"testing"

	"github.com/go-quicktest/qt"

	"blockdsl.dev/go/blockerrors"
	"blockdsl.dev/go/blockmodel"
	"blockdsl.dev/go/blockreg"
	"blockdsl.dev/go/signal"
	"blockdsl.dev/go/sigtype"
)

func scalarBlock(kind blockreg.Kind, params blockreg.Params) *blockmodel.Block {
	return &blockmodel.Block{ID: "b", Kind: kind, Params: params}
}

func TestSumAndMultiply(t *testing.T) {
	var errs blockerrors.List
	b := scalarBlock(blockreg.Sum, &blockreg.SumParams{Signs: "+-"})
	in := []signal.Value{signal.NewScalar(sigtype.Double, 5), signal.NewScalar(sigtype.Double, 2)}
	out := Step(b, in, 0, signal.Value{}, nil, nil, &errs)
	qt.Assert(t, qt.Equals(out[0].Scalar, 3.0))
	qt.Assert(t, qt.Equals(errs.Len(), 0))

	b2 := scalarBlock(blockreg.Multiply, &blockreg.MultiplyParams{InputCount: 2})
	out2 := Step(b2, in, 0, signal.Value{}, nil, nil, &errs)
	qt.Assert(t, qt.Equals(out2[0].Scalar, 10.0))
}

func TestScaleAbsUminus(t *testing.T) {
	var errs blockerrors.List
	in := []signal.Value{signal.NewScalar(sigtype.Double, -4)}

	scale := scalarBlock(blockreg.Scale, &blockreg.ScaleParams{Gain: 1.5})
	out := Step(scale, in, 0, signal.Value{}, nil, nil, &errs)
	qt.Assert(t, qt.Equals(out[0].Scalar, -6.0))

	abs := scalarBlock(blockreg.Abs, &blockreg.AbsParams{})
	out = Step(abs, in, 0, signal.Value{}, nil, nil, &errs)
	qt.Assert(t, qt.Equals(out[0].Scalar, 4.0))

	uminus := scalarBlock(blockreg.Uminus, &blockreg.UminusParams{})
	out = Step(uminus, in, 0, signal.Value{}, nil, nil, &errs)
	qt.Assert(t, qt.Equals(out[0].Scalar, 4.0))
}

func TestSourceVariants(t *testing.T) {
	var errs blockerrors.List
	step := scalarBlock(blockreg.Source, &blockreg.SourceParams{
		OutputType:   sigtype.NewScalar(sigtype.Double),
		Variant:      blockreg.SourceStep,
		StepTime:     1,
		InitialValue: 0,
		FinalValue:   2,
	})
	before := Step(step, nil, 0.5, signal.Value{}, nil, nil, &errs)
	qt.Assert(t, qt.Equals(before[0].Scalar, 0.0))
	after := Step(step, nil, 1.5, signal.Value{}, nil, nil, &errs)
	qt.Assert(t, qt.Equals(after[0].Scalar, 2.0))
}

func TestInputPortReturnsExternal(t *testing.T) {
	var errs blockerrors.List
	b := scalarBlock(blockreg.InputPort, &blockreg.InputPortParams{})
	ext := signal.NewScalar(sigtype.Double, 42)
	out := Step(b, nil, 0, ext, nil, nil, &errs)
	qt.Assert(t, qt.Equals(out[0].Scalar, 42.0))
}

// TestFirstOrderTransferFunctionConvergence checks spec.md §8's
// H(s) = 1/(s+1) property: starting from rest with a unit step input, the
// companion-form derivative integrates toward the analytic y(t) = 1-e^-t.
func TestFirstOrderTransferFunctionConvergence(t *testing.T) {
	p := &blockreg.TransferFunctionParams{Numerator: []float64{1}, Denominator: []float64{1, 1}}
	inputType := sigtype.NewScalar(sigtype.Double)
	state := InitialState(p, inputType)
	qt.Assert(t, qt.Equals(len(state), 1))
	qt.Assert(t, qt.Equals(len(state[0]), 1))

	in := signal.NewScalar(sigtype.Double, 1)
	const dt = 1e-4
	const steps = 100000 // t = 10, e^-10 is negligible
	for i := 0; i < steps; i++ {
		d := Derivative(p, in, state)
		state[0][0] += d[0][0] * dt
	}
	y := transferFunctionOutput(p, in, state)
	want := 1 - math.Exp(-10)
	qt.Assert(t, qt.IsTrue(math.Abs(y.Scalar-want) < 1e-3))
}

// TestTransferFunctionPureGain checks the deg(D) == 0 special case: the
// block degenerates to a scalar gain with no state.
func TestTransferFunctionPureGain(t *testing.T) {
	p := &blockreg.TransferFunctionParams{Numerator: []float64{3}, Denominator: []float64{5}}
	qt.Assert(t, qt.Equals(p.Order(), 0))
	in := signal.NewScalar(sigtype.Double, 10)
	out := transferFunctionOutput(p, in, nil)
	qt.Assert(t, qt.Equals(out.Scalar, 6.0))
	qt.Assert(t, qt.IsNil(Derivative(p, in, nil)))
}

func TestLookup1DInterpolatesAndClamps(t *testing.T) {
	p := &blockreg.Lookup1DParams{
		Breakpoints:   []float64{0, 10},
		Values:        []float64{0, 100},
		Extrapolation: blockreg.Clamp,
	}
	qt.Assert(t, qt.Equals(interp1D(p.Breakpoints, p.Values, 5, p.Extrapolation), 50.0))
	qt.Assert(t, qt.Equals(interp1D(p.Breakpoints, p.Values, -5, p.Extrapolation), 0.0))
}

func TestMatrixMultiplyShapes(t *testing.T) {
	at, _ := sigtype.NewMatrix(sigtype.Double, 2, 2)
	a := signal.Value{Type: at, Matrix: [][]float64{{1, 2}, {3, 4}}}
	b := signal.Value{Type: at, Matrix: [][]float64{{5, 6}, {7, 8}}}
	out := matrixMultiplyValue(a, b)
	qt.Assert(t, qt.Equals(out.Matrix[0][0], 19.0))
	qt.Assert(t, qt.Equals(out.Matrix[0][1], 22.0))
	qt.Assert(t, qt.Equals(out.Matrix[1][0], 43.0))
	qt.Assert(t, qt.Equals(out.Matrix[1][1], 50.0))
}

func TestMuxDemuxRoundTrip(t *testing.T) {
	p := &blockreg.MuxParams{Rows: 1, Cols: 2, Base: sigtype.Double}
	in := []signal.Value{signal.NewScalar(sigtype.Double, 1), signal.NewScalar(sigtype.Double, 2)}
	muxed := muxValue(p, in)
	qt.Assert(t, qt.DeepEquals(muxed.Vector, []float64{1, 2}))

	demuxed := demuxValues(muxed)
	qt.Assert(t, qt.Equals(len(demuxed), 2))
	qt.Assert(t, qt.Equals(demuxed[0].Scalar, 1.0))
	qt.Assert(t, qt.Equals(demuxed[1].Scalar, 2.0))
}

func TestConditionAndIf(t *testing.T) {
	var errs blockerrors.List
	cond := scalarBlock(blockreg.Condition, &blockreg.ConditionParams{Comparator: blockreg.CmpGT, Value: 0})
	out := Step(cond, []signal.Value{signal.NewScalar(sigtype.Double, 5)}, 0, signal.Value{}, nil, nil, &errs)
	qt.Assert(t, qt.Equals(out[0].Scalar, 1.0))

	ifBlk := scalarBlock(blockreg.If, &blockreg.IfParams{})
	in := []signal.Value{signal.NewScalar(sigtype.Double, 10), signal.NewScalar(sigtype.Double, 20), signal.NewScalar(sigtype.Double, 1)}
	out = Step(ifBlk, in, 0, signal.Value{}, nil, nil, &errs)
	qt.Assert(t, qt.Equals(out[0].Scalar, 20.0))
}
