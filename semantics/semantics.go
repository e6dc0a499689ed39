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

// Package semantics implements the per-kind algebraic function of spec.md
// §4.3: pure functions from (inputs, params, state) to outputs, per
// spec.md §9's re-architecture hint ("block semantics are pure functions
// from (inputs, params, state) → (outputs, Δstate)"). Nothing here mutates
// a block's state; package simulate owns state and calls Derivative
// itself during RK4 integration (spec.md §4.5 phase 2).
package semantics

import (
	"math"
	"sort"

	"blockdsl.dev/go/blockerrors"
	"blockdsl.dev/go/blockmodel"
	"blockdsl.dev/go/blockreg"
	"blockdsl.dev/go/expr"
	"blockdsl.dev/go/signal"
	"blockdsl.dev/go/sigtype"
)

// Step computes b's algebraic output(s) at time t from its resolved input
// values. external supplies the live sample for a top-level input_port (it
// is ignored for every other kind; input_port has no wired inputs of its
// own, spec.md §4.3, so its value can only come from outside the graph).
// state is the block's current per-element continuous state, read but
// never written here.
func Step(b *blockmodel.Block, in []signal.Value, t float64, external signal.Value, state [][]float64, path []string, errs *blockerrors.List) []signal.Value {
	switch p := b.Params.(type) {
	case *blockreg.SourceParams:
		return []signal.Value{signal.NewScalar(p.OutputType.Base(), sourceValue(p, t))}
	case *blockreg.InputPortParams:
		return []signal.Value{external}
	case *blockreg.OutputPortParams:
		return nil
	case *blockreg.SumParams:
		return []signal.Value{sumValue(p, in)}
	case *blockreg.MultiplyParams:
		return []signal.Value{multiplyValue(in)}
	case *blockreg.ScaleParams:
		return []signal.Value{signal.Map(in[0], func(x float64) float64 { return p.Gain * x })}
	case *blockreg.AbsParams:
		return []signal.Value{signal.Map(in[0], math.Abs)}
	case *blockreg.UminusParams:
		return []signal.Value{signal.Map(in[0], func(x float64) float64 { return -x })}
	case *blockreg.TrigParams:
		return []signal.Value{trigValue(p, in)}
	case *blockreg.EvaluateParams:
		return []signal.Value{evaluateValue(p, in, path, errs)}
	case *blockreg.TransferFunctionParams:
		return []signal.Value{transferFunctionOutput(p, in[0], state)}
	case *blockreg.Lookup1DParams:
		return []signal.Value{signal.Map(in[0], func(x float64) float64 { return interp1D(p.Breakpoints, p.Values, x, p.Extrapolation) })}
	case *blockreg.Lookup2DParams:
		return []signal.Value{signal.NewScalar(sigtype.Double, interp2D(p, in[0].Scalar, in[1].Scalar))}
	case *blockreg.MatrixMultiplyParams:
		return []signal.Value{matrixMultiplyValue(in[0], in[1])}
	case *blockreg.TransposeParams:
		return []signal.Value{transposeValue(in[0])}
	case *blockreg.MuxParams:
		return []signal.Value{muxValue(p, in)}
	case *blockreg.DemuxParams:
		return demuxValues(in[0])
	case *blockreg.CrossParams:
		return []signal.Value{crossValue(in[0], in[1])}
	case *blockreg.DotParams:
		return []signal.Value{dotValue(in[0], in[1])}
	case *blockreg.MagParams:
		return []signal.Value{magValue(in[0])}
	case *blockreg.IfParams:
		if in[2].Scalar != 0 {
			return []signal.Value{in[1]}
		}
		return []signal.Value{in[0]}
	case *blockreg.ConditionParams:
		return []signal.Value{signal.NewScalar(sigtype.Bool, boolf(compare(p.Comparator, in[0].Scalar, p.Value)))}
	case *blockreg.SignalDisplayParams, *blockreg.SignalLoggerParams:
		return nil
	}
	return nil
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func compare(c blockreg.Comparator, x, value float64) bool {
	switch c {
	case blockreg.CmpGT:
		return x > value
	case blockreg.CmpGE:
		return x >= value
	case blockreg.CmpLT:
		return x < value
	case blockreg.CmpLE:
		return x <= value
	case blockreg.CmpEQ:
		return x == value
	case blockreg.CmpNE:
		return x != value
	}
	return false
}

func sourceValue(p *blockreg.SourceParams, t float64) float64 {
	switch p.Variant {
	case blockreg.SourceConstant:
		return p.Value
	case blockreg.SourceSine:
		return p.Amplitude*math.Sin(2*math.Pi*p.Frequency*t+p.Phase) + p.Offset
	case blockreg.SourceStep:
		if t < p.StepTime {
			return p.InitialValue
		}
		return p.FinalValue
	case blockreg.SourceRamp:
		if t < p.StartTime {
			return 0
		}
		return p.Slope * (t - p.StartTime)
	}
	return 0
}

func sumValue(p *blockreg.SumParams, in []signal.Value) signal.Value {
	out := signal.Zero(in[0].Type)
	n := out.ElementCount()
	for k := 0; k < n; k++ {
		var acc float64
		for i, sign := range p.Signs {
			x := in[i].At(k)
			if sign == '-' {
				acc -= x
			} else {
				acc += x
			}
		}
		out.Set(k, acc)
	}
	return out
}

func multiplyValue(in []signal.Value) signal.Value {
	out := signal.Zero(in[0].Type)
	n := out.ElementCount()
	for k := 0; k < n; k++ {
		acc := 1.0
		for _, v := range in {
			acc *= v.At(k)
		}
		out.Set(k, acc)
	}
	return out
}

func trigValue(p *blockreg.TrigParams, in []signal.Value) signal.Value {
	var y float64
	switch p.Function {
	case blockreg.TrigSin:
		y = math.Sin(in[0].Scalar)
	case blockreg.TrigCos:
		y = math.Cos(in[0].Scalar)
	case blockreg.TrigTan:
		y = math.Tan(in[0].Scalar)
	case blockreg.TrigAsin:
		y = math.Asin(in[0].Scalar)
	case blockreg.TrigAcos:
		y = math.Acos(in[0].Scalar)
	case blockreg.TrigAtan:
		y = math.Atan(in[0].Scalar)
	case blockreg.TrigAtan2:
		y = math.Atan2(in[0].Scalar, in[1].Scalar)
	}
	return signal.NewScalar(sigtype.Double, y)
}

func evaluateValue(p *blockreg.EvaluateParams, in []signal.Value, path []string, errs *blockerrors.List) signal.Value {
	n, perr := expr.Parse(p.Expression, path)
	if perr != nil {
		errs.Add(perr)
		return signal.NewScalar(sigtype.Double, 0)
	}
	inputs := make([]float64, len(in))
	for i, v := range in {
		inputs[i] = v.Scalar
	}
	y, err := expr.Eval(n, inputs)
	if err != nil {
		errs.Addf(blockerrors.ValidationFailed, path, "%v", err)
		return signal.NewScalar(sigtype.Double, 0)
	}
	return signal.NewScalar(sigtype.Double, y)
}

// transferFunctionOutput computes a transfer function's elementwise output
// from its current state alone. spec.md §4.3 requires deg(N) < deg(D), so a
// stateful block's output never depends on its current input sample; state
// is addressed [element][state index] in the companion (controller
// canonical) form fixed by InitialState. The deg(D) == 0 case degenerates
// to a scalar gain applied directly to the input, with no state.
func transferFunctionOutput(p *blockreg.TransferFunctionParams, in signal.Value, state [][]float64) signal.Value {
	n := p.Order()
	out := signal.Zero(in.Type)
	if n == 0 {
		num := 0.0
		if len(p.Numerator) > 0 {
			num = p.Numerator[0]
		}
		gain := num / p.Denominator[0]
		for k := 0; k < out.ElementCount(); k++ {
			out.Set(k, gain*in.At(k))
		}
		return out
	}
	_, paddedNum := companionForm(p, n)
	for k := 0; k < out.ElementCount(); k++ {
		x := state[k]
		var y float64
		for i := 0; i < n; i++ {
			y += paddedNum[n-1-i] * x[i]
		}
		out.Set(k, y)
	}
	return out
}

// Derivative computes a stateful transfer function's state derivative in
// controller canonical form: dx[k] = x[k+1] for k < n-1, and the last state
// feeds back the monic-normalized denominator coefficients plus the
// current input. simulate's RK4 integrator calls this at each stage.
func Derivative(p *blockreg.TransferFunctionParams, in signal.Value, state [][]float64) [][]float64 {
	n := p.Order()
	if n == 0 {
		return nil
	}
	aNorm, _ := companionForm(p, n)
	d := make([][]float64, len(state))
	for k := range state {
		x := state[k]
		dx := make([]float64, n)
		for i := 0; i < n-1; i++ {
			dx[i] = x[i+1]
		}
		var fb float64
		for i := 0; i < n; i++ {
			fb += aNorm[n-1-i] * x[i]
		}
		dx[n-1] = -fb + in.At(k)
		d[k] = dx
	}
	return d
}

// InitialState returns a transfer function's zeroed per-element state: n ==
// p.Order() states per element of inputType, all starting at rest.
func InitialState(p *blockreg.TransferFunctionParams, inputType sigtype.Type) [][]float64 {
	n := p.Order()
	state := make([][]float64, inputType.ElementCount())
	for k := range state {
		state[k] = make([]float64, n)
	}
	return state
}

// companionForm normalizes p's denominator to monic and zero-pads its
// numerator to length n, the controller canonical realization implied by
// deg(N) < deg(D): aNorm[k] = Denominator[k+1]/lead, and paddedNum
// right-aligns Numerator since it always has fewer coefficients than n.
func companionForm(p *blockreg.TransferFunctionParams, n int) (aNorm, paddedNum []float64) {
	lead := p.Denominator[0]
	aNorm = make([]float64, n)
	for k := 0; k < n; k++ {
		aNorm[k] = p.Denominator[k+1] / lead
	}
	paddedNum = make([]float64, n)
	offset := n - len(p.Numerator)
	for j, c := range p.Numerator {
		paddedNum[offset+j] = c / lead
	}
	return aNorm, paddedNum
}

func interp1D(bp, vals []float64, x float64, mode blockreg.ExtrapolationMode) float64 {
	if len(bp) == 1 {
		return vals[0]
	}
	if x <= bp[0] {
		if mode == blockreg.Extrapolate {
			return lerp(bp[0], vals[0], bp[1], vals[1], x)
		}
		return vals[0]
	}
	last := len(bp) - 1
	if x >= bp[last] {
		if mode == blockreg.Extrapolate {
			return lerp(bp[last-1], vals[last-1], bp[last], vals[last], x)
		}
		return vals[last]
	}
	i := sort.Search(len(bp), func(i int) bool { return bp[i] >= x })
	if bp[i] == x {
		return vals[i]
	}
	return lerp(bp[i-1], vals[i-1], bp[i], vals[i], x)
}

func lerp(x0, y0, x1, y1, x float64) float64 {
	if x1 == x0 {
		return y0
	}
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}

func clampIndex(bp []float64, x float64, mode blockreg.ExtrapolationMode) (lo, hi int, frac float64) {
	last := len(bp) - 1
	if len(bp) == 1 {
		return 0, 0, 0
	}
	if x <= bp[0] {
		if mode != blockreg.Extrapolate {
			return 0, 0, 0
		}
		return 0, 1, (x - bp[0]) / (bp[1] - bp[0])
	}
	if x >= bp[last] {
		if mode != blockreg.Extrapolate {
			return last, last, 0
		}
		return last - 1, last, (x - bp[last-1]) / (bp[last] - bp[last-1])
	}
	i := sort.Search(len(bp), func(i int) bool { return bp[i] >= x })
	if bp[i] == x {
		return i, i, 0
	}
	return i - 1, i, (x - bp[i-1]) / (bp[i] - bp[i-1])
}

func interp2D(p *blockreg.Lookup2DParams, x, y float64) float64 {
	rlo, rhi, rfrac := clampIndex(p.RowBreakpoints, x, p.Extrapolation)
	clo, chi, cfrac := clampIndex(p.ColBreakpoints, y, p.Extrapolation)
	v00 := p.Table[rlo][clo]
	v01 := p.Table[rlo][chi]
	v10 := p.Table[rhi][clo]
	v11 := p.Table[rhi][chi]
	top := v00 + (v01-v00)*cfrac
	bottom := v10 + (v11-v10)*cfrac
	return top + (bottom-top)*rfrac
}

func matrixMultiplyValue(a, b signal.Value) signal.Value {
	switch {
	case a.Type.ShapeKind() == sigtype.Scalar && b.Type.ShapeKind() == sigtype.Scalar:
		return signal.NewScalar(a.Type.Base(), a.Scalar*b.Scalar)
	case a.Type.ShapeKind() == sigtype.Scalar:
		return signal.Map(b, func(x float64) float64 { return a.Scalar * x })
	case a.Type.ShapeKind() == sigtype.Vector && b.Type.ShapeKind() == sigtype.Matrix:
		_, cols := b.Type.Dims()
		out := signal.Zero(mustVector(a.Type.Base(), cols))
		for j := 0; j < cols; j++ {
			var acc float64
			for i, x := range a.Vector {
				acc += x * b.Matrix[i][j]
			}
			out.Vector[j] = acc
		}
		return out
	case a.Type.ShapeKind() == sigtype.Matrix && b.Type.ShapeKind() == sigtype.Vector:
		rows, _ := a.Type.Dims()
		out := signal.Zero(mustVector(a.Type.Base(), rows))
		for i := 0; i < rows; i++ {
			var acc float64
			for j, x := range b.Vector {
				acc += a.Matrix[i][j] * x
			}
			out.Vector[i] = acc
		}
		return out
	default:
		arows, acols := a.Type.Dims()
		_, bcols := b.Type.Dims()
		out := signal.Zero(mustMatrix(a.Type.Base(), arows, bcols))
		for i := 0; i < arows; i++ {
			for j := 0; j < bcols; j++ {
				var acc float64
				for k := 0; k < acols; k++ {
					acc += a.Matrix[i][k] * b.Matrix[k][j]
				}
				out.Matrix[i][j] = acc
			}
		}
		return out
	}
}

func mustVector(base sigtype.Base, n int) sigtype.Type {
	t, _ := sigtype.NewVector(base, n)
	return t
}

func mustMatrix(base sigtype.Base, rows, cols int) sigtype.Type {
	t, _ := sigtype.NewMatrix(base, rows, cols)
	return t
}

func transposeValue(a signal.Value) signal.Value {
	switch a.Type.ShapeKind() {
	case sigtype.Scalar:
		return a
	case sigtype.Vector:
		out := signal.Zero(mustMatrix(a.Type.Base(), len(a.Vector), 1))
		for i, x := range a.Vector {
			out.Matrix[i][0] = x
		}
		return out
	default:
		rows, cols := a.Type.Dims()
		out := signal.Zero(mustMatrix(a.Type.Base(), cols, rows))
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				out.Matrix[j][i] = a.Matrix[i][j]
			}
		}
		return out
	}
}

func muxValue(p *blockreg.MuxParams, in []signal.Value) signal.Value {
	vals := make([]float64, len(in))
	for i, v := range in {
		vals[i] = v.Scalar
	}
	switch {
	case p.Rows == 1 && p.Cols == 1:
		return signal.NewScalar(p.Base, vals[0])
	case p.Rows == 1:
		out := signal.Zero(mustVector(p.Base, p.Cols))
		copy(out.Vector, vals)
		return out
	case p.Cols == 1:
		out := signal.Zero(mustVector(p.Base, p.Rows))
		copy(out.Vector, vals)
		return out
	default:
		out := signal.Zero(mustMatrix(p.Base, p.Rows, p.Cols))
		for i := 0; i < p.Rows; i++ {
			for j := 0; j < p.Cols; j++ {
				out.Matrix[i][j] = vals[i*p.Cols+j]
			}
		}
		return out
	}
}

func demuxValues(in signal.Value) []signal.Value {
	n := in.ElementCount()
	out := make([]signal.Value, n)
	for k := 0; k < n; k++ {
		out[k] = signal.NewScalar(in.Type.Base(), in.At(k))
	}
	return out
}

func crossValue(a, b signal.Value) signal.Value {
	if len(a.Vector) == 2 {
		return signal.NewScalar(a.Type.Base(), a.Vector[0]*b.Vector[1]-a.Vector[1]*b.Vector[0])
	}
	out := signal.Zero(mustVector(a.Type.Base(), 3))
	out.Vector[0] = a.Vector[1]*b.Vector[2] - a.Vector[2]*b.Vector[1]
	out.Vector[1] = a.Vector[2]*b.Vector[0] - a.Vector[0]*b.Vector[2]
	out.Vector[2] = a.Vector[0]*b.Vector[1] - a.Vector[1]*b.Vector[0]
	return out
}

func dotValue(a, b signal.Value) signal.Value {
	var acc float64
	for i, x := range a.Vector {
		acc += x * b.Vector[i]
	}
	return signal.NewScalar(a.Type.Base(), acc)
}

func magValue(a signal.Value) signal.Value {
	n := a.ElementCount()
	var acc float64
	for k := 0; k < n; k++ {
		x := a.At(k)
		acc += x * x
	}
	return signal.NewScalar(a.Type.Base(), math.Sqrt(acc))
}
