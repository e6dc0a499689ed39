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

package simresult

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-quicktest/qt"

	"blockdsl.dev/go/blockmodel"
	"blockdsl.dev/go/blockreg"
	"blockdsl.dev/go/codegen"
	"blockdsl.dev/go/flatten"
	"blockdsl.dev/go/sigtype"
	"blockdsl.dev/go/simulate"
	"blockdsl.dev/go/validate"
)

func scaleModel() *blockmodel.Model {
	return &blockmodel.Model{Sheets: []blockmodel.Sheet{{
		ID: blockmodel.MainSheetID,
		Blocks: []blockmodel.Block{
			{ID: "in", Kind: blockreg.InputPort, Params: &blockreg.InputPortParams{PortName: "In", Type: sigtype.NewScalar(sigtype.Double), Default: 5}},
			{ID: "scale", Kind: blockreg.Scale, Params: &blockreg.ScaleParams{Gain: 3}},
			{ID: "out", Kind: blockreg.OutputPort, Params: &blockreg.OutputPortParams{PortName: "Out", Type: sigtype.NewScalar(sigtype.Double)}},
		},
		Wires: []blockmodel.Wire{
			{ID: "w1", Source: blockmodel.Port{BlockID: "in"}, Target: blockmodel.Port{BlockID: "scale"}},
			{ID: "w2", Source: blockmodel.Port{BlockID: "scale"}, Target: blockmodel.Port{BlockID: "out"}},
		},
	}}}
}

// TestFromValidateFlattensErrors grounds spec.md §6's validation envelope:
// an invalid model (self-connected wire) reports a non-empty Errors slice
// whose entries carry a machine-readable code that survives a JSON
// round-trip.
func TestFromValidateFlattensErrors(t *testing.T) {
	m := &blockmodel.Model{Sheets: []blockmodel.Sheet{{
		ID: blockmodel.MainSheetID,
		Blocks: []blockmodel.Block{
			{ID: "scale", Kind: blockreg.Scale, Params: &blockreg.ScaleParams{Gain: 2}},
		},
		Wires: []blockmodel.Wire{
			{ID: "w1", Source: blockmodel.Port{BlockID: "scale"}, Target: blockmodel.Port{BlockID: "scale"}},
		},
	}}}

	vr := FromValidate(validate.Validate(m))
	qt.Assert(t, qt.IsFalse(vr.Valid))
	qt.Assert(t, qt.IsTrue(len(vr.Errors) > 0))
	qt.Assert(t, qt.Equals(vr.Errors[0].Code, "SELF_CONNECTION"))

	data, err := json.Marshal(vr)
	qt.Assert(t, qt.IsNil(err))

	var back ValidationResult
	qt.Assert(t, qt.IsNil(json.Unmarshal(data, &back)))
	qt.Assert(t, qt.Equals(back.Errors[0].Code, "SELF_CONNECTION"))
}

// TestFromValidateValidModel grounds the success path: a clean scale model
// reports Valid and an accurate block/sheet summary.
func TestFromValidateValidModel(t *testing.T) {
	vr := FromValidate(validate.Validate(scaleModel()))
	qt.Assert(t, qt.IsTrue(vr.Valid))
	qt.Assert(t, qt.Equals(len(vr.Errors), 0))
	qt.Assert(t, qt.Equals(vr.Summary.TotalBlocks, 3))
	qt.Assert(t, qt.Equals(vr.Summary.Sheets, 1))
}

// TestFromSimulateRendersScalarOutput grounds spec.md §6's
// "outputs: portName -> number" case, and confirms each call stamps a fresh
// RunID rather than reusing one across runs.
func TestFromSimulateRendersScalarOutput(t *testing.T) {
	m := scaleModel()
	res := flatten.Flatten(m)
	qt.Assert(t, qt.Equals(len(res.Errors), 0))
	settings := blockmodel.GlobalSettings{SimulationTimeStep: 0.01, SimulationDuration: 0.05}

	r1 := FromSimulate(simulate.Run(context.Background(), res.Flattened, settings, simulate.Options{}))
	r2 := FromSimulate(simulate.Run(context.Background(), res.Flattened, settings, simulate.Options{}))

	qt.Assert(t, qt.IsTrue(r1.Success))
	qt.Assert(t, qt.Equals(r1.Outputs["Out"], 15.0))
	qt.Assert(t, qt.IsTrue(r1.RunID != ""))
	qt.Assert(t, qt.IsTrue(r1.RunID != r2.RunID))

	data, err := json.Marshal(r1)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(len(data) > 0))
}

// TestFromSimulateRendersVectorOutput grounds the "number[]" arm of spec.md
// §6's outputs union.
func TestFromSimulateRendersVectorOutput(t *testing.T) {
	vecType, err := sigtype.NewVector(sigtype.Double, 3)
	qt.Assert(t, qt.IsNil(err))

	m := &blockmodel.Model{Sheets: []blockmodel.Sheet{{
		ID: blockmodel.MainSheetID,
		Blocks: []blockmodel.Block{
			{ID: "in", Kind: blockreg.InputPort, Params: &blockreg.InputPortParams{PortName: "In", Type: vecType}},
			{ID: "out", Kind: blockreg.OutputPort, Params: &blockreg.OutputPortParams{PortName: "Out", Type: vecType}},
		},
		Wires: []blockmodel.Wire{
			{ID: "w1", Source: blockmodel.Port{BlockID: "in"}, Target: blockmodel.Port{BlockID: "out"}},
		},
	}}}

	res := flatten.Flatten(m)
	qt.Assert(t, qt.Equals(len(res.Errors), 0))
	settings := blockmodel.GlobalSettings{SimulationTimeStep: 0.1, SimulationDuration: 0.1}

	sr := FromSimulate(simulate.Run(context.Background(), res.Flattened, settings, simulate.Options{}))
	vec, ok := sr.Outputs["Out"].([]float64)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(len(vec), 3))
}

// TestFromCodegenWrapsEnvelope grounds spec.md §6's code generation
// envelope, confirming RunID is distinct from the build_id embedded in
// LibraryProperties.
func TestFromCodegenWrapsEnvelope(t *testing.T) {
	m := scaleModel()
	res := flatten.Flatten(m)
	qt.Assert(t, qt.Equals(len(res.Errors), 0))
	settings := blockmodel.GlobalSettings{SimulationTimeStep: 0.01, SimulationDuration: 1}

	cr := FromCodegen(codegen.Generate("Scale Model", res.Flattened, settings))
	qt.Assert(t, qt.Equals(cr.FileName, "scale_model"))
	qt.Assert(t, qt.IsTrue(cr.RunID != ""))

	data, err := json.Marshal(cr)
	qt.Assert(t, qt.IsNil(err))

	var back CodeGenerationResult
	qt.Assert(t, qt.IsNil(json.Unmarshal(data, &back)))
	qt.Assert(t, qt.Equals(back.FileName, "scale_model"))
}
