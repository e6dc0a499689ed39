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

	"blockdsl.dev/go/blockmodel"
	"blockdsl.dev/go/blockreg"
	"gopkg.in/yaml.v3"
)

// Encode serializes m back into the wire format described in spec.md §6,
// the inverse of Decode. It is mainly used by tests and by callers that
// want to persist a programmatically built model; the core library itself
// never writes files.
func Encode(m *blockmodel.Model, format Format) ([]byte, error) {
	doc, err := modelToDoc(m)
	if err != nil {
		return nil, err
	}
	switch format {
	case JSON, AutoFormat:
		return json.MarshalIndent(doc, "", "  ")
	case YAML:
		// yaml.v3 does not honour json.RawMessage, so the parameters go
		// through a generic JSON tree to stay mappings Decode can read.
		js, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		var generic interface{}
		if err := json.Unmarshal(js, &generic); err != nil {
			return nil, err
		}
		return yaml.Marshal(generic)
	}
	return nil, fmt.Errorf("modelio: unknown format %d", format)
}

func modelToDoc(m *blockmodel.Model) (*wireDoc, error) {
	sheets, err := sheetsToWire(m.Sheets)
	if err != nil {
		return nil, err
	}
	return &wireDoc{
		Version: m.Version,
		Sheets:  sheets,
		GlobalSettings: wireGlobalSettings{
			SimulationTimeStep: m.Settings.SimulationTimeStep,
			SimulationDuration: m.Settings.SimulationDuration,
		},
	}, nil
}

func sheetsToWire(sheets []blockmodel.Sheet) ([]wireSheet, error) {
	out := make([]wireSheet, len(sheets))
	for i, s := range sheets {
		ws, err := sheetToWire(s)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", s.ID, err)
		}
		out[i] = ws
	}
	return out, nil
}

func sheetToWire(s blockmodel.Sheet) (wireSheet, error) {
	blocks := make([]wireBlock, len(s.Blocks))
	for i, b := range s.Blocks {
		wb, err := blockToWire(b)
		if err != nil {
			return wireSheet{}, fmt.Errorf("block %q: %w", b.ID, err)
		}
		blocks[i] = wb
	}
	conns := make([]wireConnection, len(s.Wires))
	for i, w := range s.Wires {
		conns[i] = wireConnection{
			ID:              w.ID,
			SourceBlockID:   w.Source.BlockID,
			SourcePortIndex: w.Source.Index,
			TargetBlockID:   w.Target.BlockID,
			TargetPortIndex: w.Target.Index,
		}
	}
	return wireSheet{
		ID:          s.ID,
		Name:        s.Name,
		Blocks:      blocks,
		Connections: conns,
		Extents:     wireExtents{Width: s.Extents.Width, Height: s.Extents.Height},
	}, nil
}

func blockToWire(b blockmodel.Block) (wireBlock, error) {
	wb := wireBlock{
		ID:       b.ID,
		Type:     string(b.Kind),
		Name:     b.Name,
		Position: wirePosition{X: b.Position.X, Y: b.Position.Y},
	}
	if b.Kind == blockreg.Subsystem {
		sheets, err := sheetsToWire(b.Subsystem.Sheets)
		if err != nil {
			return wireBlock{}, err
		}
		raw, err := json.Marshal(subsystemWireParams{
			InputPorts:      b.Subsystem.InputPorts,
			OutputPorts:     b.Subsystem.OutputPorts,
			Sheets:          sheets,
			ShowEnableInput: b.Subsystem.ShowEnableInput,
		})
		if err != nil {
			return wireBlock{}, err
		}
		wb.Parameters = raw
		return wb, nil
	}
	raw, err := encodeParams(b.Params)
	if err != nil {
		return wireBlock{}, err
	}
	wb.Parameters = raw
	return wb, nil
}

func encodeParams(p blockreg.Params) (json.RawMessage, error) {
	var v interface{}
	switch t := p.(type) {
	case *blockreg.SourceParams:
		v = sourceWireParams{
			OutputType: t.OutputType.String(), Variant: string(t.Variant), Value: t.Value,
			Amplitude: t.Amplitude, Frequency: t.Frequency, Phase: t.Phase, Offset: t.Offset,
			StepTime: t.StepTime, InitialValue: t.InitialValue, FinalValue: t.FinalValue,
			Slope: t.Slope, StartTime: t.StartTime,
		}
	case *blockreg.InputPortParams:
		v = ioPortWireParams{PortName: t.PortName, Type: t.Type.String(), Default: t.Default}
	case *blockreg.OutputPortParams:
		v = ioPortWireParams{PortName: t.PortName, Type: t.Type.String()}
	case *blockreg.SumParams:
		v = sumWireParams{Signs: t.Signs}
	case *blockreg.MultiplyParams:
		v = multiplyWireParams{InputCount: t.InputCount}
	case *blockreg.ScaleParams:
		v = scaleWireParams{Gain: t.Gain}
	case *blockreg.AbsParams, *blockreg.UminusParams, *blockreg.MatrixMultiplyParams,
		*blockreg.TransposeParams, *blockreg.DemuxParams, *blockreg.CrossParams,
		*blockreg.DotParams, *blockreg.MagParams, *blockreg.IfParams:
		v = struct{}{}
	case *blockreg.TrigParams:
		v = trigWireParams{Function: string(t.Function)}
	case *blockreg.EvaluateParams:
		v = evaluateWireParams{Expression: t.Expression, InputCount: t.InputCount}
	case *blockreg.TransferFunctionParams:
		v = transferFunctionWireParams{Numerator: t.Numerator, Denominator: t.Denominator}
	case *blockreg.Lookup1DParams:
		v = lookup1DWireParams{Breakpoints: t.Breakpoints, Values: t.Values, Extrapolation: string(t.Extrapolation)}
	case *blockreg.Lookup2DParams:
		v = lookup2DWireParams{RowBreakpoints: t.RowBreakpoints, ColBreakpoints: t.ColBreakpoints, Table: t.Table, Extrapolation: string(t.Extrapolation)}
	case *blockreg.MuxParams:
		v = muxWireParams{Rows: t.Rows, Cols: t.Cols, Base: string(t.Base)}
	case *blockreg.ConditionParams:
		v = conditionWireParams{Comparator: string(t.Comparator), Value: t.Value}
	case *blockreg.SignalDisplayParams:
		v = bufferWireParams{MaxSamples: t.MaxSamples, Policy: string(t.Policy)}
	case *blockreg.SignalLoggerParams:
		v = bufferWireParams{MaxSamples: t.MaxSamples, Policy: string(t.Policy)}
	case *blockreg.SheetLabelSinkParams:
		v = sheetLabelWireParams{SignalName: t.SignalName}
	case *blockreg.SheetLabelSourceParams:
		v = sheetLabelWireParams{SignalName: t.SignalName}
	default:
		return nil, fmt.Errorf("modelio: no wire encoder registered for %T", p)
	}
	return json.Marshal(v)
}
