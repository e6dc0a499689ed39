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

package modelio

import (
	"testing"

	"github.com/go-quicktest/qt"

	"blockdsl.dev/go/blockreg"
)

const scaleModelJSON = `{
  "version": "1",
  "sheets": [{
    "id": "main",
    "name": "Main",
    "blocks": [
      {"id": "src", "type": "source", "name": "Src", "position": {"x":0,"y":0},
       "parameters": {"outputType":"double","variant":"constant","value":5}},
      {"id": "scale1", "type": "scale", "name": "Scale", "position": {"x":1,"y":0},
       "parameters": {"gain":3}},
      {"id": "out", "type": "output_port", "name": "y", "position": {"x":2,"y":0},
       "parameters": {"portName":"y","type":"double"}}
    ],
    "connections": [
      {"id":"w1","sourceBlockId":"src","sourcePortIndex":0,"targetBlockId":"scale1","targetPortIndex":0},
      {"id":"w2","sourceBlockId":"scale1","sourcePortIndex":0,"targetBlockId":"out","targetPortIndex":0}
    ],
    "extents": {"width": 800, "height": 600}
  }],
  "globalSettings": {"simulationTimeStep": 0.01, "simulationDuration": 5}
}`

func TestDecodeScaleModel(t *testing.T) {
	m, err := Decode([]byte(scaleModelJSON), AutoFormat)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(len(m.Sheets), 1))

	main := m.Sheets[0]
	qt.Assert(t, qt.Equals(len(main.Blocks), 3))
	qt.Assert(t, qt.Equals(len(main.Wires), 2))

	scale, ok := main.BlockByID("scale1")
	qt.Assert(t, qt.IsTrue(ok))
	sp, ok := scale.Params.(*blockreg.ScaleParams)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(sp.Gain, 3.0))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m, err := Decode([]byte(scaleModelJSON), AutoFormat)
	qt.Assert(t, qt.IsNil(err))

	yamlBytes, err := Encode(m, YAML)
	qt.Assert(t, qt.IsNil(err))

	m2, err := Decode(yamlBytes, YAML)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(len(m2.Sheets[0].Blocks), len(m.Sheets[0].Blocks)))

	scale, ok := m2.Sheets[0].BlockByID("scale1")
	qt.Assert(t, qt.IsTrue(ok))
	sp := scale.Params.(*blockreg.ScaleParams)
	qt.Assert(t, qt.Equals(sp.Gain, 3.0))
}

func TestDecodeUnknownBlockType(t *testing.T) {
	_, err := Decode([]byte(`{"version":"1","sheets":[{"id":"main","name":"m",
		"blocks":[{"id":"b1","type":"nonsense","name":"n","position":{"x":0,"y":0},"parameters":{}}],
		"connections":[]}],"globalSettings":{"simulationTimeStep":0.01,"simulationDuration":1}}`), JSON)
	qt.Assert(t, qt.IsNotNil(err))
}
