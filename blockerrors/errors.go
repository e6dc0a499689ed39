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

// Package blockerrors defines the structured error type shared by the
// validator, simulator, and code emitter (spec.md §7). Errors are returned
// as values, never used as control flow, and validation accumulates all of
// them into a single list before reporting.
package blockerrors

import (
	"fmt"
	"sort"
	"strings"

	"blockdsl.dev/go/token"
)

// Code is a machine-readable error classification, e.g. "SELF_CONNECTION" or
// "TYPE_MISMATCH" (spec.md §6).
type Code string

const (
	SelfConnection      Code = "SELF_CONNECTION"
	PortAlreadyConnected Code = "PORT_ALREADY_CONNECTED"
	ValidationFailed    Code = "VALIDATION_FAILED"
	TypeMismatch        Code = "TYPE_MISMATCH"
	DimensionMismatch   Code = "DIMENSION_MISMATCH"
	SheetLabelUnmatched Code = "SHEET_LABEL_UNMATCHED"
	UnknownBlockType    Code = "UNKNOWN_BLOCK_TYPE"
	PortIndexOutOfRange Code = "PORT_INDEX_OUT_OF_RANGE"
	MissingSheet        Code = "MISSING_SHEET"
	UnknownSubsystemPort Code = "UNKNOWN_SUBSYSTEM_PORT"
	DuplicateSheetLabelSink Code = "DUPLICATE_SHEET_LABEL_SINK"
	ExpressionError     Code = "EXPRESSION_ERROR"
)

// Error is the common interface implemented by every error this module
// returns to a caller, mirroring cue/errors.Error but adding a machine
// Code() alongside the positional/path information.
type Error interface {
	error
	// Code reports the machine-readable classification, or "" if none
	// applies (e.g. a wrapped low-level error).
	Code() Code
	// Path names the block/wire/sheet path the error is about, e.g.
	// []string{"main", "block:sum1"}.
	Path() []string
	// Position reports the source position within an expression string,
	// if the error originated from the expression language. It is the
	// zero Pos otherwise.
	Position() token.Pos
}

type baseErr struct {
	code Code
	msg  string
	path []string
	pos  token.Pos
}

func (e *baseErr) Error() string {
	if len(e.path) == 0 {
		return e.msg
	}
	return strings.Join(e.path, ".") + ": " + e.msg
}

func (e *baseErr) Code() Code        { return e.code }
func (e *baseErr) Path() []string    { return e.path }
func (e *baseErr) Position() token.Pos { return e.pos }

// Newf creates an Error with a code, a path, and a formatted message.
func Newf(code Code, path []string, format string, args ...interface{}) Error {
	return &baseErr{code: code, path: path, msg: fmt.Sprintf(format, args...)}
}

// NewAt is like Newf but additionally records a source position within an
// expression string, used by the expression tokenizer/parser/validator.
func NewAt(code Code, path []string, pos token.Pos, format string, args ...interface{}) Error {
	return &baseErr{code: code, path: path, pos: pos, msg: fmt.Sprintf(format, args...)}
}

// List is an accumulating, sortable collection of errors. The zero value is
// an empty list ready to use.
type List struct {
	errs []Error
}

// Add appends a non-nil error to the list.
func (l *List) Add(err Error) {
	if err == nil {
		return
	}
	l.errs = append(l.errs, err)
}

// Addf is a convenience wrapper combining Newf and Add.
func (l *List) Addf(code Code, path []string, format string, args ...interface{}) {
	l.Add(Newf(code, path, format, args...))
}

// Len reports the number of accumulated errors.
func (l *List) Len() int { return len(l.errs) }

// Errs returns the accumulated errors in insertion order.
func (l *List) Errs() []Error { return l.errs }

// Sorted returns a copy of the accumulated errors sorted by path then
// message, for deterministic reporting.
func (l *List) Sorted() []Error {
	out := make([]Error, len(l.errs))
	copy(out, l.errs)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := strings.Join(out[i].Path(), "."), strings.Join(out[j].Path(), ".")
		if pi != pj {
			return pi < pj
		}
		return out[i].Error() < out[j].Error()
	})
	return out
}

// Err returns a plain error aggregating the list, or nil if the list is
// empty. It satisfies the standard error interface so a List can be
// returned from functions with a conventional `error` result.
func (l *List) Err() error {
	if len(l.errs) == 0 {
		return nil
	}
	msgs := make([]string, len(l.errs))
	for i, e := range l.errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
