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

// Package blockmodel is the model IR: sheets, blocks, wires, and
// hierarchical subsystems (spec.md §2 component 4, §3). It holds identity
// and cheap structural lookups; the heavier structural/type validation
// rules (spec.md §7, §3 V1-V5) live in package validate so this package
// stays a plain, mutation-free data model.
package blockmodel

import "blockdsl.dev/go/blockreg"

// MainSheetID is the well-known id of the top-level sheet.
const MainSheetID = "main"

// EnablePort is the special input port index a subsystem's enable input is
// addressed at (spec.md §3).
const EnablePort = -1

// Port addresses one port of one block by (BlockID, Index). Index 0 is the
// default; EnablePort(-1) on a subsystem block denotes its enable input.
type Port struct {
	BlockID string
	Index   int
}

// Position is a purely cosmetic 2-D editor coordinate, carried through
// because the wire format has it, never consulted by any core algorithm.
type Position struct {
	X, Y float64
}

// Block is one node of a Sheet: an id, a kind, a display name, a cosmetic
// position, and kind-specific parameters.
//
// Params is nil for kind == Subsystem; a subsystem's configuration lives in
// Subsystem instead, because its nested Sheets would otherwise force
// blockreg (a leaf package) to import blockmodel, creating an import cycle
// (spec.md §9 calls for a closed tagged union at the semantic layer; this
// split preserves that while keeping Subsystem's recursive sheets here).
type Block struct {
	ID       string
	Kind     blockreg.Kind
	Name     string
	Position Position
	Params   blockreg.Params

	Subsystem *Subsystem // non-nil iff Kind == blockreg.Subsystem
}

// Wire connects one output port to one input (or enable) port.
type Wire struct {
	ID     string
	Source Port
	Target Port
}

// Extents is the cosmetic size of a sheet's editor canvas.
type Extents struct {
	Width, Height float64
}

// Sheet is a connected graph of blocks and wires belonging to the top-level
// model or to a subsystem.
type Sheet struct {
	ID      string
	Name    string
	Blocks  []Block
	Wires   []Wire
	Extents Extents
}

// BlockByID returns the block with the given id and whether it was found.
func (s *Sheet) BlockByID(id string) (*Block, bool) {
	for i := range s.Blocks {
		if s.Blocks[i].ID == id {
			return &s.Blocks[i], true
		}
	}
	return nil, false
}

// Subsystem is the configuration carried by a block of kind
// blockreg.Subsystem: its nested sheets (a private scope for sheet labels),
// declared ordered input/output port names, and whether it exposes an
// enable input.
type Subsystem struct {
	InputPorts      []string
	OutputPorts     []string
	Sheets          []Sheet
	ShowEnableInput bool
}

// Model is a whole simulatable/compilable document: an ordered list of
// sheets (the first is always MainSheetID) plus the global simulation
// settings spec.md §6 calls out.
type Model struct {
	Version  string
	Sheets   []Sheet
	Settings GlobalSettings
}

// GlobalSettings are the top-level simulation parameters (spec.md §6).
type GlobalSettings struct {
	SimulationTimeStep float64
	SimulationDuration float64
}

// MainSheet returns the model's top-level sheet.
func (m *Model) MainSheet() (*Sheet, bool) {
	for i := range m.Sheets {
		if m.Sheets[i].ID == MainSheetID {
			return &m.Sheets[i], true
		}
	}
	return nil, false
}

// Walk calls fn for every sheet in the model, including every subsystem's
// nested sheets at every depth, main sheet first. fn may be called with
// sheets in any order beyond that guarantee.
func (m *Model) Walk(fn func(sheet *Sheet, scopePath []string)) {
	for i := range m.Sheets {
		walkSheet(&m.Sheets[i], nil, fn)
	}
}

func walkSheet(s *Sheet, scopePath []string, fn func(*Sheet, []string)) {
	fn(s, scopePath)
	for bi := range s.Blocks {
		b := &s.Blocks[bi]
		if b.Kind != blockreg.Subsystem || b.Subsystem == nil {
			continue
		}
		childPath := append(append([]string{}, scopePath...), b.ID)
		for si := range b.Subsystem.Sheets {
			walkSheet(&b.Subsystem.Sheets[si], childPath, fn)
		}
	}
}
