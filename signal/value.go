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

// Package signal is the runtime counterpart of package sigtype: a signal
// type describes a value's shape, package signal holds one. Both
// package semantics (spec.md §4.3's per-kind algebraic functions) and
// package simulate (spec.md §4.5's engine) pass these around; elements
// are always float64 internally, including bool (0/1) and long (truncated
// toward zero at the edges that need it, mirroring the emitted C's own
// double-to-long casts) so that elementwise broadcast is one code path
// regardless of base type.
package signal

import "blockdsl.dev/go/sigtype"

// Value is a scalar, vector, or matrix signal sample. Exactly one of
// Scalar, Vector, or Matrix is meaningful, selected by Type.ShapeKind().
type Value struct {
	Type   sigtype.Type
	Scalar float64
	Vector []float64
	Matrix [][]float64 // row-major, len(Matrix) rows each len(Matrix[r]) == cols
}

// NewScalar returns a scalar Value.
func NewScalar(base sigtype.Base, v float64) Value {
	return Value{Type: sigtype.NewScalar(base), Scalar: v}
}

// Zero returns the zero-valued Value of type t: 0 for a scalar, and an
// all-zero vector/matrix of t's dimensions.
func Zero(t sigtype.Type) Value {
	switch t.ShapeKind() {
	case sigtype.Vector:
		return Value{Type: t, Vector: make([]float64, t.Size())}
	case sigtype.Matrix:
		rows, cols := t.Dims()
		m := make([][]float64, rows)
		for r := range m {
			m[r] = make([]float64, cols)
		}
		return Value{Type: t, Matrix: m}
	default:
		return Value{Type: t}
	}
}

// ElementCount returns the number of scalar elements in v.
func (v Value) ElementCount() int { return v.Type.ElementCount() }

// At returns the k-th scalar element in row-major order (k==0 for a
// scalar).
func (v Value) At(k int) float64 {
	switch v.Type.ShapeKind() {
	case sigtype.Vector:
		return v.Vector[k]
	case sigtype.Matrix:
		_, cols := v.Type.Dims()
		return v.Matrix[k/cols][k%cols]
	default:
		return v.Scalar
	}
}

// Set assigns the k-th scalar element in row-major order. v must be
// addressed through a pointer for a scalar Value's assignment to be
// visible to the caller (Vector/Matrix are reference types already).
func (v *Value) Set(k int, x float64) {
	switch v.Type.ShapeKind() {
	case sigtype.Vector:
		v.Vector[k] = x
	case sigtype.Matrix:
		_, cols := v.Type.Dims()
		v.Matrix[k/cols][k%cols] = x
	default:
		v.Scalar = x
	}
}

// Map applies f to every element of v, returning a new Value of the same
// type.
func Map(v Value, f func(float64) float64) Value {
	out := Zero(v.Type)
	n := v.ElementCount()
	for k := 0; k < n; k++ {
		out.Set(k, f(v.At(k)))
	}
	return out
}

// Zip combines a and b elementwise with f; a and b must have the same
// type.
func Zip(a, b Value, f func(x, y float64) float64) Value {
	out := Zero(a.Type)
	n := a.ElementCount()
	for k := 0; k < n; k++ {
		out.Set(k, f(a.At(k), b.At(k)))
	}
	return out
}
