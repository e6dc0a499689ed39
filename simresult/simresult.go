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

// Package simresult holds the public result-contract types of spec.md §6:
// the JSON-shaped envelopes returned across the validate/simulate/codegen
// boundary to an external host. Package validate, package simulate, and
// package codegen each return their own internal Result type built around
// blockerrors.Error and signal.Value, neither of which is meant to cross a
// wire boundary directly (blockerrors.Error's concrete type carries no
// exported fields, and signal.Value carries its sigtype.Type alongside the
// data); simresult flattens both into plain, json-tagged structs matching
// spec.md §6's field names.
package simresult

import (
	"github.com/google/uuid"

	"blockdsl.dev/go/blockerrors"
	"blockdsl.dev/go/codegen"
	"blockdsl.dev/go/sigtype"
	"blockdsl.dev/go/signal"
	"blockdsl.dev/go/simulate"
	"blockdsl.dev/go/validate"
)

// ErrorInfo is a blockerrors.Error flattened to exported fields. The
// interface's concrete type is unexported and carries no json tags of its
// own, so a caller that needs the code/message/path triple at the wire
// boundary (spec.md §6: "Errors carry a machine-readable code ... and a
// human message") goes through this type rather than encoding/json-ing the
// interface value directly, which would marshal to an empty object.
type ErrorInfo struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"`
}

func newErrorInfo(e blockerrors.Error) ErrorInfo {
	return ErrorInfo{Code: string(e.Code()), Message: e.Error(), Path: e.Path()}
}

// ErrorInfos flattens a raw blockerrors.Error slice to ErrorInfo, for
// callers (such as cmd/blockc) that need to report errors from a stage —
// like package flatten's — that has no envelope type of its own in this
// package.
func ErrorInfos(errs []blockerrors.Error) []ErrorInfo {
	return errorInfos(errs)
}

func errorInfos(errs []blockerrors.Error) []ErrorInfo {
	if len(errs) == 0 {
		return nil
	}
	out := make([]ErrorInfo, len(errs))
	for i, e := range errs {
		out[i] = newErrorInfo(e)
	}
	return out
}

// ValidationResult is spec.md §6's validation result envelope: "{ valid,
// errors[], warnings[], summary{ totalBlocks, totalConnections, sheets } }".
type ValidationResult struct {
	Valid    bool             `json:"valid"`
	Errors   []ErrorInfo      `json:"errors,omitempty"`
	Warnings []ErrorInfo      `json:"warnings,omitempty"`
	Summary  validate.Summary `json:"summary"`
}

// FromValidate builds a ValidationResult from package validate's internal
// Result.
func FromValidate(r validate.Result) ValidationResult {
	return ValidationResult{
		Valid:    r.Valid,
		Errors:   errorInfos(r.Errors),
		Warnings: errorInfos(r.Warnings),
		Summary:  r.Summary,
	}
}

// SimulationResult is spec.md §6's simulator result envelope: "{ success,
// outputs: portName -> number | number[] | number[][], phaseExecutionLogs?,
// executionOrder?, simulationTime, error? }". RunID stamps each result with
// a fresh identifier (SPEC_FULL.md's domain stack: google/uuid distinguishes
// repeated runs of an unchanged graph in logs and stored artifacts).
type SimulationResult struct {
	RunID          string                 `json:"runId"`
	Success        bool                   `json:"success"`
	Outputs        map[string]interface{} `json:"outputs"`
	ExecutionOrder []string               `json:"executionOrder,omitempty"`
	SimulationTime float64                `json:"simulationTime"`
	Warnings       []ErrorInfo            `json:"warnings,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// FromSimulate builds a SimulationResult from package simulate's internal
// Result.
func FromSimulate(r simulate.Result) SimulationResult {
	outputs := make(map[string]interface{}, len(r.Outputs))
	for name, v := range r.Outputs {
		outputs[name] = signalToJSON(v)
	}
	out := SimulationResult{
		RunID:          uuid.NewString(),
		Success:        r.Success,
		Outputs:        outputs,
		ExecutionOrder: r.ExecutionOrder,
		SimulationTime: r.SimulationTime,
		Warnings:       errorInfos(r.Warnings),
	}
	if r.Error != nil {
		out.Error = r.Error.Error()
	}
	return out
}

// signalToJSON renders v as spec.md §6's "number | number[] | number[][]"
// union: a bare float64, a []float64, or a [][]float64, selected by v's
// shape.
func signalToJSON(v signal.Value) interface{} {
	switch v.Type.ShapeKind() {
	case sigtype.Matrix:
		return v.Matrix
	case sigtype.Vector:
		return v.Vector
	default:
		return v.Scalar
	}
}

// CodeGenerationResult is spec.md §6's code generation result envelope:
// "{ fileName, headerFile: string, sourceFile: string, libraryProperties:
// string }". RunID identifies this particular generation invocation,
// independent of the build_id stamped inside LibraryProperties itself (that
// one identifies the generated library artifact; this one identifies the
// act of generating it).
type CodeGenerationResult struct {
	RunID             string `json:"runId"`
	FileName          string `json:"fileName"`
	HeaderFile        string `json:"headerFile"`
	SourceFile        string `json:"sourceFile"`
	LibraryProperties string `json:"libraryProperties"`
}

// FromCodegen builds a CodeGenerationResult from package codegen's internal
// Result.
func FromCodegen(r codegen.Result) CodeGenerationResult {
	return CodeGenerationResult{
		RunID:             uuid.NewString(),
		FileName:          r.FileName,
		HeaderFile:        r.HeaderFile,
		SourceFile:        r.SourceFile,
		LibraryProperties: r.LibraryProperties,
	}
}
