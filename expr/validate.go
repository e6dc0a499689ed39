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

package expr

import (
	"sort"

	"blockdsl.dev/go/blockerrors"
)

// mathArity is the closed set of allowed math function names and their
// required argument counts (spec.md §4.2).
var mathArity = map[string]int{
	"sqrt": 1, "sin": 1, "cos": 1, "tan": 1,
	"asin": 1, "acos": 1, "atan": 1, "atan2": 2,
	"ceil": 1, "floor": 1, "trunc": 1, "round": 1, "lround": 1,
	"log": 1, "log2": 1, "log10": 1,
	"abs": 1, "labs": 1, "fabs": 1,
	"fmax": 2, "fmin": 2, "pow": 2, "signbit": 1,
}

// positiveOnly is the subset of mathArity whose single argument must be
// positive for the result to be real-valued; a literal non-positive
// argument is a warning, not a hard error.
var positiveOnly = map[string]bool{
	"sqrt": true, "log": true, "log2": true, "log10": true,
}

// Validation is the result of validating an expression AST against a
// configured input count, matching the "Validator contract" of spec.md
// §4.2.
type Validation struct {
	Valid        bool
	Errors       []blockerrors.Error
	Warnings     []blockerrors.Error
	UsedInputs   []int // sorted, de-duplicated in(k) indices referenced
	HasFloatOps  bool
	UsesMath     bool
}

// Validate walks expression tree n, checking it against the closed set of
// allowed names, in() index range, function arities, and reporting the
// warnings spec.md §4.2 calls out. path is used to scope error messages
// (e.g. the owning block's id).
func Validate(n Node, inputCount int, path []string) Validation {
	v := &validator{inputCount: inputCount, path: path, used: map[int]bool{}}
	v.walk(n)
	var errs, warns []blockerrors.Error
	for _, e := range v.errs.Errs() {
		errs = append(errs, e)
	}
	for _, e := range v.warns.Errs() {
		warns = append(warns, e)
	}
	used := make([]int, 0, len(v.used))
	for k := range v.used {
		used = append(used, k)
	}
	sort.Ints(used)
	return Validation{
		Valid:       len(errs) == 0,
		Errors:      errs,
		Warnings:    warns,
		UsedInputs:  used,
		HasFloatOps: v.hasFloat,
		UsesMath:    v.usesMath,
	}
}

type validator struct {
	inputCount int
	path       []string
	used       map[int]bool
	hasFloat   bool
	usesMath   bool
	errs       blockerrors.List
	warns      blockerrors.List
}

func (v *validator) walk(n Node) {
	switch t := n.(type) {
	case nil:
		return
	case *NumberLit:
		if t.IsFloat {
			v.hasFloat = true
		}
	case *Ident:
		v.errs.Add(blockerrors.NewAt(blockerrors.ExpressionError, v.path, t.Pos(),
			"bare identifier %q is not allowed; only in(k) and the allowed math functions may be called", t.Name))
	case *UnaryExpr:
		if isBitwiseUnary(t.Op) {
			if lit, ok := t.X.(*NumberLit); ok && lit.IsFloat {
				v.warns.Add(blockerrors.NewAt(blockerrors.ExpressionError, v.path, t.Pos(),
					"bitwise operator %q applied to a float literal", t.Op))
			}
		}
		v.walk(t.X)
	case *BinaryExpr:
		v.checkBinary(t)
		v.walk(t.X)
		v.walk(t.Y)
	case *CondExpr:
		v.walk(t.Cond)
		v.walk(t.Then)
		v.walk(t.Else)
	case *CallExpr:
		v.checkCall(t)
		for _, a := range t.Args {
			v.walk(a)
		}
	}
}

func isBitwiseUnary(op Kind) bool { return op == TILDE }
func isBitwiseBinary(op Kind) bool {
	switch op {
	case AMP, PIPE, CARET, SHL, SHR:
		return true
	}
	return false
}

func (v *validator) checkBinary(b *BinaryExpr) {
	if (b.Op == SLASH || b.Op == PCT) && isLiteralZero(b.Y) {
		v.errs.Add(blockerrors.NewAt(blockerrors.ExpressionError, v.path, b.Pos(),
			"division by literal zero"))
	}
	if isBitwiseBinary(b.Op) {
		if lit, ok := b.X.(*NumberLit); ok && lit.IsFloat {
			v.warns.Add(blockerrors.NewAt(blockerrors.ExpressionError, v.path, b.Pos(),
				"bitwise operator %q applied to a float literal", b.Op))
		}
		if lit, ok := b.Y.(*NumberLit); ok && lit.IsFloat {
			v.warns.Add(blockerrors.NewAt(blockerrors.ExpressionError, v.path, b.Pos(),
				"bitwise operator %q applied to a float literal", b.Op))
		}
	}
}

func isLiteralZero(n Node) bool {
	lit, ok := n.(*NumberLit)
	return ok && lit.Value == 0
}

func (v *validator) checkCall(c *CallExpr) {
	if c.Name == "in" {
		v.usedInput(c)
		return
	}
	arity, ok := mathArity[c.Name]
	if !ok {
		v.errs.Add(blockerrors.NewAt(blockerrors.ExpressionError, v.path, c.Pos(),
			"unknown function %q", c.Name))
		return
	}
	v.usesMath = true
	v.hasFloat = true
	if len(c.Args) != arity {
		v.errs.Add(blockerrors.NewAt(blockerrors.ExpressionError, v.path, c.Pos(),
			"%q takes %d argument(s), got %d", c.Name, arity, len(c.Args)))
		return
	}
	if positiveOnly[c.Name] {
		if lit, ok := c.Args[0].(*NumberLit); ok && lit.Value <= 0 {
			v.warns.Add(blockerrors.NewAt(blockerrors.ExpressionError, v.path, c.Pos(),
				"%s of literal non-positive argument %v", c.Name, lit.Value))
		}
	}
}

func (v *validator) usedInput(c *CallExpr) {
	if len(c.Args) != 1 {
		v.errs.Add(blockerrors.NewAt(blockerrors.ExpressionError, v.path, c.Pos(),
			"in() takes exactly 1 argument, got %d", len(c.Args)))
		return
	}
	lit, ok := c.Args[0].(*NumberLit)
	if !ok || lit.IsFloat {
		v.errs.Add(blockerrors.NewAt(blockerrors.ExpressionError, v.path, c.Pos(),
			"in(k) requires a non-negative integer literal argument"))
		return
	}
	k := int(lit.Value)
	if k < 0 || k >= v.inputCount {
		v.errs.Add(blockerrors.NewAt(blockerrors.ExpressionError, v.path, c.Pos(),
			"in(%d) is out of range for %d configured input(s)", k, v.inputCount))
		return
	}
	v.used[k] = true
}
