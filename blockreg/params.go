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

package blockreg

import "blockdsl.dev/go/sigtype"

// Params is implemented by every per-kind parameter record. It is a closed
// tagged union, not a free-form property bag (spec.md §9 re-architecture
// hint): the semantic layer type-switches on the concrete type, and
// BlockKind ties each record back to its registry entry.
type Params interface {
	BlockKind() Kind
}

// SourceVariant selects the closed-form time function a source block
// computes (spec.md §4.3).
type SourceVariant string

const (
	SourceConstant SourceVariant = "constant"
	SourceSine     SourceVariant = "sine"
	SourceStep     SourceVariant = "step"
	SourceRamp     SourceVariant = "ramp"
)

// SourceParams configures a source block.
type SourceParams struct {
	OutputType sigtype.Type
	Variant    SourceVariant

	// constant
	Value float64

	// sine: amplitude*sin(2*pi*frequency*t + phase) + offset
	Amplitude, Frequency, Phase, Offset float64

	// step: InitialValue before StepTime, FinalValue at/after
	StepTime     float64
	InitialValue float64
	FinalValue   float64

	// ramp: Slope*(t - StartTime) for t >= StartTime, else 0
	Slope     float64
	StartTime float64
}

func (*SourceParams) BlockKind() Kind { return Source }

// InputPortParams configures a top-level or subsystem-exterior input port.
type InputPortParams struct {
	PortName string
	Type     sigtype.Type
	Default  float64
}

func (*InputPortParams) BlockKind() Kind { return InputPort }

// OutputPortParams configures a top-level or subsystem-exterior output
// port.
type OutputPortParams struct {
	PortName string
	Type     sigtype.Type
}

func (*OutputPortParams) BlockKind() Kind { return OutputPort }

// SumParams configures a sum block; Signs has one '+' or '-' character per
// input, and its length is the input count (spec.md §4.3).
type SumParams struct {
	Signs string
}

func (*SumParams) BlockKind() Kind { return Sum }

// MultiplyParams configures a multiply block; InputCount is the number of
// elementwise-multiplied inputs.
type MultiplyParams struct {
	InputCount int
}

func (*MultiplyParams) BlockKind() Kind { return Multiply }

// ScaleParams configures a scale block: y = Gain * x.
type ScaleParams struct {
	Gain float64
}

func (*ScaleParams) BlockKind() Kind { return Scale }

// AbsParams configures an abs block (scalar only).
type AbsParams struct{}

func (*AbsParams) BlockKind() Kind { return Abs }

// UminusParams configures a uminus block (elementwise negation).
type UminusParams struct{}

func (*UminusParams) BlockKind() Kind { return Uminus }

// TrigFunction is one of the unary or binary math functions a trig block
// may compute.
type TrigFunction string

const (
	TrigSin   TrigFunction = "sin"
	TrigCos   TrigFunction = "cos"
	TrigTan   TrigFunction = "tan"
	TrigAsin  TrigFunction = "asin"
	TrigAcos  TrigFunction = "acos"
	TrigAtan  TrigFunction = "atan"
	TrigAtan2 TrigFunction = "atan2"
)

// IsBinary reports whether the function takes two scalar inputs.
func (f TrigFunction) IsBinary() bool { return f == TrigAtan2 }

// TrigParams configures a trig block.
type TrigParams struct {
	Function TrigFunction
}

func (*TrigParams) BlockKind() Kind { return Trig }

// EvaluateParams configures an evaluate block: a C99 expression over
// InputCount scalar double inputs (spec.md §4.2, §4.3).
type EvaluateParams struct {
	Expression string
	InputCount int
}

func (*EvaluateParams) BlockKind() Kind { return Evaluate }

// TransferFunctionParams configures a transfer_function block: H(s) =
// Numerator(s)/Denominator(s), with deg(Numerator) < deg(Denominator).
// Coefficients are ordered highest-degree first, matching common
// control-systems convention.
type TransferFunctionParams struct {
	Numerator   []float64
	Denominator []float64
}

// Order returns deg(Denominator), the number of continuous states the
// block owns (0 means a pure gain).
func (p *TransferFunctionParams) Order() int {
	if len(p.Denominator) == 0 {
		return 0
	}
	return len(p.Denominator) - 1
}

func (*TransferFunctionParams) BlockKind() Kind { return TransferFunction }

// ExtrapolationMode selects lookup-table behavior outside the breakpoint
// range.
type ExtrapolationMode string

const (
	Clamp       ExtrapolationMode = "clamp"
	Extrapolate ExtrapolationMode = "extrapolate"
)

// Lookup1DParams configures a lookup_1d block: linear interpolation over a
// sorted breakpoint table.
type Lookup1DParams struct {
	Breakpoints   []float64
	Values        []float64
	Extrapolation ExtrapolationMode
}

func (*Lookup1DParams) BlockKind() Kind { return Lookup1D }

// Lookup2DParams configures a lookup_2d block: bilinear interpolation over
// sorted row/column breakpoints. Table is indexed Table[row][col].
type Lookup2DParams struct {
	RowBreakpoints []float64
	ColBreakpoints []float64
	Table          [][]float64
	Extrapolation  ExtrapolationMode
}

func (*Lookup2DParams) BlockKind() Kind { return Lookup2D }

// MatrixMultiplyParams configures a matrix_multiply block (no tunable
// parameters beyond the two input shapes, resolved during type
// propagation).
type MatrixMultiplyParams struct{}

func (*MatrixMultiplyParams) BlockKind() Kind { return MatrixMultiply }

// TransposeParams configures a transpose block.
type TransposeParams struct{}

func (*TransposeParams) BlockKind() Kind { return Transpose }

// MuxParams configures a mux block: Rows*Cols scalar inputs assembled
// row-major into a vector (if Rows==1 or Cols==1) or matrix.
type MuxParams struct {
	Rows, Cols int
	Base       sigtype.Base
}

// InputCount returns Rows*Cols.
func (p *MuxParams) InputCount() int { return p.Rows * p.Cols }

func (*MuxParams) BlockKind() Kind { return Mux }

// DemuxParams configures a demux block. It carries no static count: the
// output count equals the resolved input type's ElementCount (spec.md
// §4.3), computed by package typeprop.
type DemuxParams struct{}

func (*DemuxParams) BlockKind() Kind { return Demux }

// CrossParams configures a cross-product block (2-D or 3-D vector inputs).
type CrossParams struct{}

func (*CrossParams) BlockKind() Kind { return Cross }

// DotParams configures a dot-product block over two equal-length vectors.
type DotParams struct{}

func (*DotParams) BlockKind() Kind { return Dot }

// MagParams configures a magnitude block: sqrt(sum(x_i^2)).
type MagParams struct{}

func (*MagParams) BlockKind() Kind { return Mag }

// IfParams configures an if-select block: output = control!=0 ? input2 :
// input1. Port 0 is input1, port 1 is input2, port 2 is control.
type IfParams struct{}

func (*IfParams) BlockKind() Kind { return If }

// Comparator is the closed set of comparison operators a condition block
// may use.
type Comparator string

const (
	CmpGT Comparator = ">"
	CmpGE Comparator = ">="
	CmpLT Comparator = "<"
	CmpLE Comparator = "<="
	CmpEQ Comparator = "=="
	CmpNE Comparator = "!="
)

// ConditionParams configures a condition block: output = input Comparator
// Value, producing bool.
type ConditionParams struct {
	Comparator Comparator
	Value      float64
}

func (*ConditionParams) BlockKind() Kind { return Condition }

// BufferPolicy selects how a display/logger block retains samples.
type BufferPolicy string

const (
	BufferRing      BufferPolicy = "ring"
	BufferUnbounded BufferPolicy = "unbounded"
)

// SignalDisplayParams configures a signal_display block.
type SignalDisplayParams struct {
	MaxSamples int // only meaningful when Policy == BufferRing
	Policy     BufferPolicy
}

func (*SignalDisplayParams) BlockKind() Kind { return SignalDisplay }

// SignalLoggerParams configures a signal_logger block. Loggers are
// unbounded within a single run per spec.md §4.3.
type SignalLoggerParams struct {
	MaxSamples int
	Policy     BufferPolicy
}

func (*SignalLoggerParams) BlockKind() Kind { return SignalLogger }

// SheetLabelSinkParams configures a sheet_label_sink block.
type SheetLabelSinkParams struct {
	SignalName string
}

func (*SheetLabelSinkParams) BlockKind() Kind { return SheetLabelSink }

// SheetLabelSourceParams configures a sheet_label_source block.
type SheetLabelSourceParams struct {
	SignalName string
}

func (*SheetLabelSourceParams) BlockKind() Kind { return SheetLabelSource }
