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
	"encoding/json"
	"fmt"
	"strings"

	"blockdsl.dev/go/blockmodel"
	"blockdsl.dev/go/blockreg"
	"blockdsl.dev/go/sigtype"
	"gopkg.in/yaml.v3"
)

// Format selects the wire document's serialization.
type Format int

const (
	// AutoFormat sniffs the input: a leading '{' is treated as JSON,
	// anything else as YAML.
	AutoFormat Format = iota
	JSON
	YAML
)

// Decode parses a model document in the given format (spec.md §6) into the
// in-memory IR.
func Decode(data []byte, format Format) (*blockmodel.Model, error) {
	if format == AutoFormat {
		format = sniff(data)
	}
	var doc wireDoc
	switch format {
	case JSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("modelio: decoding JSON: %w", err)
		}
	case YAML:
		jsonBytes, err := yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("modelio: converting YAML: %w", err)
		}
		if err := json.Unmarshal(jsonBytes, &doc); err != nil {
			return nil, fmt.Errorf("modelio: decoding YAML-derived JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("modelio: unknown format %d", format)
	}
	return docToModel(&doc)
}

func sniff(data []byte) Format {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return JSON
		default:
			return YAML
		}
	}
	return JSON
}

// yamlToJSON decodes YAML into a generic tree and re-marshals it as JSON,
// the same indirection sigs.k8s.io/yaml uses, so the rest of the decoder
// only ever has to deal with one representation.
func yamlToJSON(data []byte) ([]byte, error) {
	var v interface{}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(cleanupYAML(v))
}

// cleanupYAML recursively converts map[string]interface{} keys that
// yaml.v3 may produce as non-string scalars back into a JSON-safe shape.
func cleanupYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cleanupYAML(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cleanupYAML(val)
		}
		return out
	default:
		return v
	}
}

func docToModel(doc *wireDoc) (*blockmodel.Model, error) {
	m := &blockmodel.Model{
		Version: doc.Version,
		Settings: blockmodel.GlobalSettings{
			SimulationTimeStep: doc.GlobalSettings.SimulationTimeStep,
			SimulationDuration: doc.GlobalSettings.SimulationDuration,
		},
	}
	sheets, err := convertSheets(doc.Sheets)
	if err != nil {
		return nil, err
	}
	m.Sheets = sheets
	return m, nil
}

func convertSheets(wireSheets []wireSheet) ([]blockmodel.Sheet, error) {
	sheets := make([]blockmodel.Sheet, len(wireSheets))
	for i, ws := range wireSheets {
		s, err := convertSheet(ws)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", ws.ID, err)
		}
		sheets[i] = s
	}
	return sheets, nil
}

func convertSheet(ws wireSheet) (blockmodel.Sheet, error) {
	blocks := make([]blockmodel.Block, len(ws.Blocks))
	for i, wb := range ws.Blocks {
		b, err := convertBlock(wb)
		if err != nil {
			return blockmodel.Sheet{}, fmt.Errorf("block %q: %w", wb.ID, err)
		}
		blocks[i] = b
	}
	wires := make([]blockmodel.Wire, len(ws.Connections))
	for i, wc := range ws.Connections {
		wires[i] = blockmodel.Wire{
			ID:     wc.ID,
			Source: blockmodel.Port{BlockID: wc.SourceBlockID, Index: wc.SourcePortIndex},
			Target: blockmodel.Port{BlockID: wc.TargetBlockID, Index: wc.TargetPortIndex},
		}
	}
	return blockmodel.Sheet{
		ID:      ws.ID,
		Name:    ws.Name,
		Blocks:  blocks,
		Wires:   wires,
		Extents: blockmodel.Extents{Width: ws.Extents.Width, Height: ws.Extents.Height},
	}, nil
}

func convertBlock(wb wireBlock) (blockmodel.Block, error) {
	kind := blockreg.Kind(wb.Type)
	if !blockreg.Known(kind) {
		return blockmodel.Block{}, fmt.Errorf("unknown block type %q", wb.Type)
	}
	b := blockmodel.Block{
		ID:       wb.ID,
		Kind:     kind,
		Name:     wb.Name,
		Position: blockmodel.Position{X: wb.Position.X, Y: wb.Position.Y},
	}
	if kind == blockreg.Subsystem {
		sub, err := convertSubsystemParams(wb.Parameters)
		if err != nil {
			return blockmodel.Block{}, err
		}
		b.Subsystem = sub
		return b, nil
	}
	params, err := decodeParams(kind, wb.Parameters)
	if err != nil {
		return blockmodel.Block{}, err
	}
	b.Params = params
	return b, nil
}

func convertSubsystemParams(raw json.RawMessage) (*blockmodel.Subsystem, error) {
	var wp subsystemWireParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &wp); err != nil {
			return nil, fmt.Errorf("subsystem parameters: %w", err)
		}
	}
	sheets, err := convertSheets(wp.Sheets)
	if err != nil {
		return nil, err
	}
	return &blockmodel.Subsystem{
		InputPorts:      wp.InputPorts,
		OutputPorts:     wp.OutputPorts,
		Sheets:          sheets,
		ShowEnableInput: wp.ShowEnableInput,
	}, nil
}

func parseType(s string) (sigtype.Type, error) {
	if s == "" {
		return sigtype.NewScalar(sigtype.Double), nil
	}
	return sigtype.Parse(s)
}

func decodeParams(kind blockreg.Kind, raw json.RawMessage) (blockreg.Params, error) {
	unmarshal := func(v interface{}) error {
		if len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, v)
	}
	switch kind {
	case blockreg.Source:
		var wp sourceWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		ty, err := parseType(wp.OutputType)
		if err != nil {
			return nil, err
		}
		return &blockreg.SourceParams{
			OutputType:   ty,
			Variant:      blockreg.SourceVariant(defaultStr(wp.Variant, "constant")),
			Value:        wp.Value,
			Amplitude:    wp.Amplitude,
			Frequency:    wp.Frequency,
			Phase:        wp.Phase,
			Offset:       wp.Offset,
			StepTime:     wp.StepTime,
			InitialValue: wp.InitialValue,
			FinalValue:   wp.FinalValue,
			Slope:        wp.Slope,
			StartTime:    wp.StartTime,
		}, nil
	case blockreg.InputPort:
		var wp ioPortWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		ty, err := parseType(wp.Type)
		if err != nil {
			return nil, err
		}
		return &blockreg.InputPortParams{PortName: wp.PortName, Type: ty, Default: wp.Default}, nil
	case blockreg.OutputPort:
		var wp ioPortWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		ty, err := parseType(wp.Type)
		if err != nil {
			return nil, err
		}
		return &blockreg.OutputPortParams{PortName: wp.PortName, Type: ty}, nil
	case blockreg.Sum:
		var wp sumWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		return &blockreg.SumParams{Signs: wp.Signs}, nil
	case blockreg.Multiply:
		var wp multiplyWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		if wp.InputCount == 0 {
			wp.InputCount = 2
		}
		return &blockreg.MultiplyParams{InputCount: wp.InputCount}, nil
	case blockreg.Scale:
		var wp scaleWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		return &blockreg.ScaleParams{Gain: wp.Gain}, nil
	case blockreg.Abs:
		return &blockreg.AbsParams{}, nil
	case blockreg.Uminus:
		return &blockreg.UminusParams{}, nil
	case blockreg.Trig:
		var wp trigWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		return &blockreg.TrigParams{Function: blockreg.TrigFunction(wp.Function)}, nil
	case blockreg.Evaluate:
		var wp evaluateWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		return &blockreg.EvaluateParams{Expression: wp.Expression, InputCount: wp.InputCount}, nil
	case blockreg.TransferFunction:
		var wp transferFunctionWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		return &blockreg.TransferFunctionParams{Numerator: wp.Numerator, Denominator: wp.Denominator}, nil
	case blockreg.Lookup1D:
		var wp lookup1DWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		return &blockreg.Lookup1DParams{
			Breakpoints:   wp.Breakpoints,
			Values:        wp.Values,
			Extrapolation: blockreg.ExtrapolationMode(defaultStr(wp.Extrapolation, "clamp")),
		}, nil
	case blockreg.Lookup2D:
		var wp lookup2DWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		return &blockreg.Lookup2DParams{
			RowBreakpoints: wp.RowBreakpoints,
			ColBreakpoints: wp.ColBreakpoints,
			Table:          wp.Table,
			Extrapolation:  blockreg.ExtrapolationMode(defaultStr(wp.Extrapolation, "clamp")),
		}, nil
	case blockreg.MatrixMultiply:
		return &blockreg.MatrixMultiplyParams{}, nil
	case blockreg.Transpose:
		return &blockreg.TransposeParams{}, nil
	case blockreg.Mux:
		var wp muxWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		base := sigtype.Base(defaultStr(wp.Base, "double"))
		if wp.Rows == 0 {
			wp.Rows = 1
		}
		if wp.Cols == 0 {
			wp.Cols = 1
		}
		return &blockreg.MuxParams{Rows: wp.Rows, Cols: wp.Cols, Base: base}, nil
	case blockreg.Demux:
		return &blockreg.DemuxParams{}, nil
	case blockreg.Cross:
		return &blockreg.CrossParams{}, nil
	case blockreg.Dot:
		return &blockreg.DotParams{}, nil
	case blockreg.Mag:
		return &blockreg.MagParams{}, nil
	case blockreg.If:
		return &blockreg.IfParams{}, nil
	case blockreg.Condition:
		var wp conditionWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		return &blockreg.ConditionParams{Comparator: blockreg.Comparator(wp.Comparator), Value: wp.Value}, nil
	case blockreg.SignalDisplay:
		var wp bufferWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		return &blockreg.SignalDisplayParams{MaxSamples: wp.MaxSamples, Policy: blockreg.BufferPolicy(defaultStr(wp.Policy, "ring"))}, nil
	case blockreg.SignalLogger:
		var wp bufferWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		return &blockreg.SignalLoggerParams{MaxSamples: wp.MaxSamples, Policy: blockreg.BufferPolicy(defaultStr(wp.Policy, "unbounded"))}, nil
	case blockreg.SheetLabelSink:
		var wp sheetLabelWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		return &blockreg.SheetLabelSinkParams{SignalName: wp.SignalName}, nil
	case blockreg.SheetLabelSource:
		var wp sheetLabelWireParams
		if err := unmarshal(&wp); err != nil {
			return nil, err
		}
		return &blockreg.SheetLabelSourceParams{SignalName: wp.SignalName}, nil
	}
	return nil, fmt.Errorf("modelio: no parameter decoder registered for kind %q", kind)
}

func defaultStr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
