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

// Package flatten resolves subsystems and sheet labels into a single-sheet
// executable graph (spec.md §2 component 5, §4.4). It works bottom-up and
// recursively: flattening a subsystem's own nested sheets first yields a
// fully subsystem- and sheet-label-free scope named relative to that
// subsystem alone, which the caller then splices into its own scope behind
// one more name prefix. The result is that every recursion level only ever
// has to reason about a single extra layer of naming, never the whole
// ancestor chain at once.
package flatten

import (
	"blockdsl.dev/go/blockerrors"
	"blockdsl.dev/go/blockmodel"
	"blockdsl.dev/go/blockreg"
)

// EnableGate is one link of the chain of subsystem enable inputs that must
// all be true for a flattened block to execute (spec.md §3 "Flattened
// graph"). Source is the flattened port carrying that subsystem's enable
// value.
type EnableGate struct {
	SubsystemID string
	Source      blockmodel.Port
}

// Flattened is a single-sheet graph with no remaining subsystem,
// sheet_label_sink, or sheet_label_source blocks.
type Flattened struct {
	Sheet blockmodel.Sheet
	// EnableChains maps a flattened block id to its ordered (innermost
	// first) chain of enabling subsystems; blocks absent from the map are
	// never gated.
	EnableChains map[string][]EnableGate
}

// Result is the outcome of Flatten.
type Result struct {
	Flattened *Flattened
	Errors    []blockerrors.Error
	Warnings  []blockerrors.Error
}

// Flatten produces the single-sheet executable graph for m.
func Flatten(m *blockmodel.Model) Result {
	var errs, warns blockerrors.List
	sc := flattenScope(m.Sheets, &errs, &warns)
	sheet := blockmodel.Sheet{ID: blockmodel.MainSheetID, Name: "flattened", Blocks: sc.blocks, Wires: sc.wires}
	return Result{
		Flattened: &Flattened{Sheet: sheet, EnableChains: sc.enableChains},
		Errors:    errs.Errs(),
		Warnings:  warns.Errs(),
	}
}

// scopeResult is a fully flattened, locally-named sibling-sheet group: a
// subsystem's interior, or the model's top-level sheets. Names are
// relative to this scope alone; a caller splicing it into an outer scope
// must apply one more prefix layer via prefixScopeIDs.
type scopeResult struct {
	blocks       []blockmodel.Block
	wires        []blockmodel.Wire
	enableChains map[string][]EnableGate
}

func flattenScope(sheets []blockmodel.Sheet, errs, warns *blockerrors.List) scopeResult {
	res := scopeResult{enableChains: map[string][]EnableGate{}}

	for _, sheet := range sheets {
		prefix := ""
		if sheet.ID != blockmodel.MainSheetID {
			prefix = sheet.ID + "."
		}
		for _, b := range sheet.Blocks {
			nb := b
			nb.ID = prefix + b.ID
			res.blocks = append(res.blocks, nb)
		}
		for _, w := range sheet.Wires {
			nw := w
			nw.Source.BlockID = prefix + w.Source.BlockID
			nw.Target.BlockID = prefix + w.Target.BlockID
			res.wires = append(res.wires, nw)
		}
	}

	resolveSheetLabels(&res, errs, warns)

	var subsystems []blockmodel.Block
	for _, b := range res.blocks {
		if b.Kind == blockreg.Subsystem && b.Subsystem != nil {
			subsystems = append(subsystems, b)
		}
	}
	for _, sub := range subsystems {
		expandSubsystem(&res, sub, errs, warns)
	}

	return res
}

// resolveSheetLabels rewrites every (sheet_label_sink, sheet_label_source)
// pair sharing a signal_name into a direct wire and removes both endpoint
// blocks (spec.md §4.4(c)); it operates within res's single merged scope,
// matching the "same scope" rule of spec.md §3.
func resolveSheetLabels(res *scopeResult, errs, warns *blockerrors.List) {
	sinkFeed := map[string]blockmodel.Port{}
	seenSink := map[string]bool{}
	removed := map[string]bool{}

	for _, b := range res.blocks {
		if b.Kind != blockreg.SheetLabelSink {
			continue
		}
		removed[b.ID] = true
		p := b.Params.(*blockreg.SheetLabelSinkParams)
		path := []string{"block:" + b.ID}
		switch {
		case p.SignalName == "":
			warns.Addf(blockerrors.SheetLabelUnmatched, path, "sheet label sink has an empty signal name")
		case seenSink[p.SignalName]:
			errs.Addf(blockerrors.DuplicateSheetLabelSink, path, "duplicate sheet label sink name %q in this scope", p.SignalName)
		default:
			seenSink[p.SignalName] = true
			if feed, ok := findSourceFeeding(res.wires, b.ID, 0); ok {
				sinkFeed[p.SignalName] = feed
			}
		}
	}

	for i := range res.blocks {
		b := &res.blocks[i]
		if b.Kind != blockreg.SheetLabelSource {
			continue
		}
		removed[b.ID] = true
		p := b.Params.(*blockreg.SheetLabelSourceParams)
		path := []string{"block:" + b.ID}
		feed, ok := sinkFeed[p.SignalName]
		switch {
		case p.SignalName == "":
			warns.Addf(blockerrors.SheetLabelUnmatched, path, "sheet label source has an empty signal name")
		case !ok:
			errs.Addf(blockerrors.SheetLabelUnmatched, path, "sheet label source %q has no matching sink in this scope", p.SignalName)
		default:
			for j := range res.wires {
				if res.wires[j].Source.BlockID == b.ID {
					res.wires[j].Source = feed
				}
			}
		}
	}

	var keptWires []blockmodel.Wire
	for _, w := range res.wires {
		if removed[w.Source.BlockID] || removed[w.Target.BlockID] {
			continue
		}
		keptWires = append(keptWires, w)
	}
	res.wires = keptWires

	var keptBlocks []blockmodel.Block
	for _, b := range res.blocks {
		if removed[b.ID] {
			continue
		}
		keptBlocks = append(keptBlocks, b)
	}
	res.blocks = keptBlocks
}

// expandSubsystem replaces sub with its interior blocks (spec.md §4.4(a,b,d)).
func expandSubsystem(res *scopeResult, sub blockmodel.Block, errs, warns *blockerrors.List) {
	inner := flattenScope(sub.Subsystem.Sheets, errs, warns)
	prefixScopeIDs(&inner, sub.ID+".")

	for id, chain := range inner.enableChains {
		res.enableChains[id] = chain
	}

	removedPort := map[string]bool{}
	inputReplacement := map[string]blockmodel.Port{}
	path := []string{"block:" + sub.ID}

	for i, name := range sub.Subsystem.InputPorts {
		ipID, ok := findPortBlockID(inner.blocks, blockreg.InputPort, name)
		if !ok {
			errs.Addf(blockerrors.UnknownSubsystemPort, path, "subsystem has no interior input_port named %q", name)
			continue
		}
		removedPort[ipID] = true
		if feed, ok := findSourceFeeding(res.wires, sub.ID, i); ok {
			inputReplacement[ipID] = feed
		}
		removeWiresTargeting(res, sub.ID, i)
	}

	outputFeed := map[int]blockmodel.Port{}
	for j, name := range sub.Subsystem.OutputPorts {
		opID, ok := findPortBlockID(inner.blocks, blockreg.OutputPort, name)
		if !ok {
			errs.Addf(blockerrors.UnknownSubsystemPort, path, "subsystem has no interior output_port named %q", name)
			continue
		}
		removedPort[opID] = true
		if feed, ok := findSourceFeeding(inner.wires, opID, 0); ok {
			outputFeed[j] = feed
		}
	}

	var keptInnerWires []blockmodel.Wire
	for _, w := range inner.wires {
		if repl, ok := inputReplacement[w.Source.BlockID]; ok {
			w.Source = repl
			keptInnerWires = append(keptInnerWires, w)
			continue
		}
		if removedPort[w.Source.BlockID] || removedPort[w.Target.BlockID] {
			continue
		}
		keptInnerWires = append(keptInnerWires, w)
	}

	var keptInnerBlocks []blockmodel.Block
	for _, b := range inner.blocks {
		if removedPort[b.ID] {
			continue
		}
		keptInnerBlocks = append(keptInnerBlocks, b)
	}

	res.blocks = removeBlockByID(res.blocks, sub.ID)
	res.blocks = append(res.blocks, keptInnerBlocks...)
	res.wires = append(res.wires, keptInnerWires...)

	for i := range res.wires {
		w := &res.wires[i]
		if w.Source.BlockID == sub.ID {
			if feed, ok := outputFeed[w.Source.Index]; ok {
				w.Source = feed
			}
		}
	}

	if sub.Subsystem.ShowEnableInput {
		feed, ok := findSourceFeeding(res.wires, sub.ID, blockmodel.EnablePort)
		removeWiresTargeting(res, sub.ID, blockmodel.EnablePort)
		if ok {
			gate := EnableGate{SubsystemID: sub.ID, Source: feed}
			for _, b := range keptInnerBlocks {
				res.enableChains[b.ID] = append(res.enableChains[b.ID], gate)
			}
		} else {
			warns.Addf(blockerrors.ValidationFailed, path, "subsystem declares an enable input but nothing feeds it")
		}
	}
}

// prefixScopeIDs renames every block id, wire endpoint, and enable-chain
// reference in sc by prepending prefix, turning a locally-named scope
// result into one ready to splice into its parent.
func prefixScopeIDs(sc *scopeResult, prefix string) {
	for i := range sc.blocks {
		sc.blocks[i].ID = prefix + sc.blocks[i].ID
	}
	for i := range sc.wires {
		sc.wires[i].Source.BlockID = prefix + sc.wires[i].Source.BlockID
		sc.wires[i].Target.BlockID = prefix + sc.wires[i].Target.BlockID
	}
	renamed := map[string][]EnableGate{}
	for id, chain := range sc.enableChains {
		nc := make([]EnableGate, len(chain))
		for i, g := range chain {
			nc[i] = EnableGate{
				SubsystemID: prefix + g.SubsystemID,
				Source:      blockmodel.Port{BlockID: prefix + g.Source.BlockID, Index: g.Source.Index},
			}
		}
		renamed[prefix+id] = nc
	}
	sc.enableChains = renamed
}

func findPortBlockID(blocks []blockmodel.Block, kind blockreg.Kind, name string) (string, bool) {
	for _, b := range blocks {
		if b.Kind != kind {
			continue
		}
		switch p := b.Params.(type) {
		case *blockreg.InputPortParams:
			if p.PortName == name {
				return b.ID, true
			}
		case *blockreg.OutputPortParams:
			if p.PortName == name {
				return b.ID, true
			}
		}
	}
	return "", false
}

// findSourceFeeding returns the source endpoint of the wire targeting
// (blockID, index) in wires, if any.
func findSourceFeeding(wires []blockmodel.Wire, blockID string, index int) (blockmodel.Port, bool) {
	for _, w := range wires {
		if w.Target.BlockID == blockID && w.Target.Index == index {
			return w.Source, true
		}
	}
	return blockmodel.Port{}, false
}

func removeWiresTargeting(res *scopeResult, blockID string, index int) {
	var kept []blockmodel.Wire
	for _, w := range res.wires {
		if w.Target.BlockID == blockID && w.Target.Index == index {
			continue
		}
		kept = append(kept, w)
	}
	res.wires = kept
}

func removeBlockByID(blocks []blockmodel.Block, id string) []blockmodel.Block {
	var kept []blockmodel.Block
	for _, b := range blocks {
		if b.ID == id {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}
