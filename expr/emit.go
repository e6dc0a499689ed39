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
	"fmt"
	"strconv"
	"strings"
)

// Emission is the result of emitting an expression as C99 source text.
type Emission struct {
	Source    string
	NeedsMath bool
}

// Emit renders n as a C99 expression in which every unary, binary, and
// ternary operator node is wrapped in parentheses. inputNames[k]
// supplies the sanitized C identifier substituted for in(k); the caller
// (codegen) is responsible for producing names that are already valid C
// identifiers.
func Emit(n Node, inputNames []string) Emission {
	e := &emitter{inputNames: inputNames}
	src := e.emit(n)
	return Emission{Source: src, NeedsMath: e.needsMath}
}

type emitter struct {
	inputNames []string
	needsMath  bool
}

func (e *emitter) emit(n Node) string {
	switch t := n.(type) {
	case *NumberLit:
		return emitNumber(t)
	case *UnaryExpr:
		return fmt.Sprintf("(%s%s)", t.Op, e.emit(t.X))
	case *BinaryExpr:
		return fmt.Sprintf("(%s %s %s)", e.emit(t.X), t.Op, e.emit(t.Y))
	case *CondExpr:
		return fmt.Sprintf("(%s ? %s : %s)", e.emit(t.Cond), e.emit(t.Then), e.emit(t.Else))
	case *CallExpr:
		return e.emitCall(t)
	case *Ident:
		return t.Name
	}
	return "0"
}

func emitNumber(n *NumberLit) string {
	if !n.IsFloat {
		return strconv.FormatInt(int64(n.Value), 10)
	}
	s := strconv.FormatFloat(n.Value, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func (e *emitter) emitCall(c *CallExpr) string {
	if c.Name == "in" {
		lit := c.Args[0].(*NumberLit)
		k := int(lit.Value)
		if k >= 0 && k < len(e.inputNames) {
			return e.inputNames[k]
		}
		return fmt.Sprintf("/* in(%d) out of range */ 0.0", k)
	}
	e.needsMath = true
	switch c.Name {
	case "signbit":
		return fmt.Sprintf("(signbit(%s) ? 1 : 0)", e.emit(c.Args[0]))
	case "abs":
		return fmt.Sprintf("abs((int)(%s))", e.emit(c.Args[0]))
	case "labs":
		return fmt.Sprintf("labs((long)(%s))", e.emit(c.Args[0]))
	}
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = e.emit(a)
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(args, ", "))
}
