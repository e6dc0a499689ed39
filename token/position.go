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

// Package token defines source positions for the expression language used by
// "evaluate" and "condition" blocks (spec.md §4.2). An expression source is
// always a single block parameter string, so positions only need an offset
// and a column within that string — there is no multi-file bookkeeping here,
// unlike the language this package's shape is borrowed from.
package token

import "fmt"

// NoPos is the zero value of Pos; it is never a valid source position.
const NoPos Pos = 0

// Pos is a 1-based byte offset into an expression's source string. The zero
// value, NoPos, means "unknown/synthetic".
type Pos int

// IsValid reports whether p is a real position within some source.
func (p Pos) IsValid() bool { return p != NoPos }

// Offset returns the 0-based byte offset corresponding to p.
func (p Pos) Offset() int {
	if p == NoPos {
		return -1
	}
	return int(p) - 1
}

// Pos_ constructs a position from a 0-based byte offset.
func Pos_(offset int) Pos { return Pos(offset + 1) }

// Position is the human-readable rendering of a Pos against its source text.
type Position struct {
	Offset int // 0-based byte offset
	Line   int // 1-based line number
	Column int // 1-based column (byte count) on that line
}

// IsValid reports whether the position is valid.
func (p Position) IsValid() bool { return p.Line > 0 }

// String renders "line:column", or "-" if invalid.
func (p Position) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Resolve converts p into a human-readable Position relative to src, the
// same expression source text the position's offset was computed against.
func (p Pos) Resolve(src string) Position {
	if !p.IsValid() {
		return Position{}
	}
	off := p.Offset()
	line, col := 1, 1
	for i := 0; i < off && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return Position{Offset: off, Line: line, Column: col}
}
