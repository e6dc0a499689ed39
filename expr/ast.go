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

import "blockdsl.dev/go/token"

// Node is the common interface of every expression AST node. The AST
// produced by Parse is never mutated afterward: Validate, Eval, and Emit
// are three independent read-only consumers of the same tree (spec.md §9).
type Node interface {
	Pos() token.Pos
}

// NumberLit is an integer or float literal.
type NumberLit struct {
	Offset  int
	IsFloat bool
	Value   float64
}

func (n *NumberLit) Pos() token.Pos { return token.Pos_(n.Offset) }

// Ident is a bare identifier appearing outside of call position. The
// grammar has no use for one — it always signals a validator error — but
// the parser accepts it so the validator can report a precise position
// instead of a generic syntax error.
type Ident struct {
	Offset int
	Name   string
}

func (n *Ident) Pos() token.Pos { return token.Pos_(n.Offset) }

// CallExpr is a function call: either the pseudo-function in(k) or one of
// the closed set of math functions.
type CallExpr struct {
	Offset int
	Name   string
	Args   []Node
}

func (n *CallExpr) Pos() token.Pos { return token.Pos_(n.Offset) }

// UnaryExpr is a prefix unary operator: + - ! ~.
type UnaryExpr struct {
	Offset int
	Op     Kind
	X      Node
}

func (n *UnaryExpr) Pos() token.Pos { return token.Pos_(n.Offset) }

// BinaryExpr is any binary infix operator.
type BinaryExpr struct {
	Offset int
	Op     Kind
	X, Y   Node
}

func (n *BinaryExpr) Pos() token.Pos { return token.Pos_(n.Offset) }

// CondExpr is the ternary conditional operator, right-associative.
type CondExpr struct {
	Offset          int
	Cond, Then, Else Node
}

func (n *CondExpr) Pos() token.Pos { return token.Pos_(n.Offset) }
