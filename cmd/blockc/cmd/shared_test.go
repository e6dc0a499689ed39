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

package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"blockdsl.dev/go/blockmodel"
)

func TestModelNamePrefersSheetName(t *testing.T) {
	m := &blockmodel.Model{Sheets: []blockmodel.Sheet{{ID: blockmodel.MainSheetID, Name: "Scale Model"}}}
	if got := modelName(m, "/tmp/ignored.json"); got != "Scale Model" {
		t.Fatalf("modelName = %q, want %q", got, "Scale Model")
	}
}

func TestModelNameFallsBackToFileBase(t *testing.T) {
	m := &blockmodel.Model{Sheets: []blockmodel.Sheet{{ID: blockmodel.MainSheetID}}}
	if got := modelName(m, "/tmp/my-model.yaml"); got != "my-model" {
		t.Fatalf("modelName = %q, want %q", got, "my-model")
	}
}

// wirePair is a Params-free projection of a blockmodel.Wire, used so the
// comparison below doesn't have to reckon with blockreg.Params' concrete
// interface types.
type wirePair struct {
	Source, Target string
}

// TestLoadModelDecodesWiring grounds loadModel against a JSON fixture,
// checking block ids/kinds and wire endpoints with a structural diff
// (SPEC_FULL.md's ambient stack: google/go-cmp for deep model comparisons)
// rather than field-by-field equality assertions.
func TestLoadModelDecodesWiring(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	doc := `{
		"version": "1",
		"sheets": [{
			"id": "main",
			"name": "Scale Model",
			"blocks": [
				{"id": "in", "type": "input_port", "name": "In", "position": {"x": 0, "y": 0}, "parameters": {"portName": "In", "type": "double", "default": 5}},
				{"id": "scale", "type": "scale", "name": "Scale", "position": {"x": 1, "y": 0}, "parameters": {"gain": 3}},
				{"id": "out", "type": "output_port", "name": "Out", "position": {"x": 2, "y": 0}, "parameters": {"portName": "Out", "type": "double"}}
			],
			"connections": [
				{"id": "w1", "sourceBlockId": "in", "sourcePortIndex": 0, "targetBlockId": "scale", "targetPortIndex": 0},
				{"id": "w2", "sourceBlockId": "scale", "sourcePortIndex": 0, "targetBlockId": "out", "targetPortIndex": 0}
			],
			"extents": {"width": 100, "height": 100}
		}],
		"globalSettings": {"simulationTimeStep": 0.01, "simulationDuration": 1}
	}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := loadModel(path)
	if err != nil {
		t.Fatal(err)
	}

	var gotIDs []string
	for _, b := range m.Sheets[0].Blocks {
		gotIDs = append(gotIDs, string(b.Kind)+":"+b.ID)
	}
	wantIDs := []string{"input_port:in", "scale:scale", "output_port:out"}
	if diff := cmp.Diff(wantIDs, gotIDs); diff != "" {
		t.Errorf("block ids/kinds mismatch (-want +got):\n%s", diff)
	}

	var gotWires []wirePair
	for _, w := range m.Sheets[0].Wires {
		gotWires = append(gotWires, wirePair{Source: w.Source.BlockID, Target: w.Target.BlockID})
	}
	wantWires := []wirePair{{Source: "in", Target: "scale"}, {Source: "scale", Target: "out"}}
	if diff := cmp.Diff(wantWires, gotWires); diff != "" {
		t.Errorf("wire endpoints mismatch (-want +got):\n%s", diff)
	}
}
