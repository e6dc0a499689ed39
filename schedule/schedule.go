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

// Package schedule computes the single topological block ordering spec.md
// §9 calls for: "the algebraic scheduler, derivative collector, and
// emitter all walk the same flattened IR; expose a single
// for_each_block_in_topo_order iterator used by all three". Package
// simulate and package codegen both build their Order from the same
// flattened sheet and iterate it the same way, so a simulated run and its
// generated C counterpart always visit blocks in an identical sequence.
package schedule

import (
	"sort"

	"blockdsl.dev/go/blockerrors"
	"blockdsl.dev/go/blockmodel"
	"blockdsl.dev/go/blockreg"
)

// Order is a cached topological ordering of one flattened sheet's blocks.
type Order struct {
	ids      []string
	warnings []blockerrors.Error
}

// IDs returns the block visitation order.
func (o *Order) IDs() []string { return o.ids }

// Warnings reports one warning per block the topological sort could not
// place: every block on an algebraic loop and every block downstream of
// one, all appended in declaration order (spec.md §4.5 phase 1).
func (o *Order) Warnings() []blockerrors.Error { return o.warnings }

// ForEach calls fn for each block id in topological order.
func (o *Order) ForEach(fn func(blockID string)) {
	for _, id := range o.ids {
		fn(id)
	}
}

// Compute orders sheet's blocks so that every non-stateful block is
// visited after all of its algebraic inputs. A stateful transfer_function
// (order >= 1) is exempted from gating on its own input wire: spec.md
// §4.3 requires deg(N) < deg(D), so its algebraic output is a function of
// its state alone, not of the current sample of its input — exactly the
// property spec.md §4.5 phase 1 relies on to say that "cycles that do not
// pass through a stateful block's integrator edge" are real algebraic
// loops, while a loop closed only through such a block is not one at all.
func Compute(sheet *blockmodel.Sheet) *Order {
	blockByID := map[string]*blockmodel.Block{}
	for i := range sheet.Blocks {
		blockByID[sheet.Blocks[i].ID] = &sheet.Blocks[i]
	}

	remaining := map[string]int{}
	for _, b := range sheet.Blocks {
		remaining[b.ID] = 0
	}
	outAdj := map[string][]string{}
	for _, w := range sheet.Wires {
		tgt := blockByID[w.Target.BlockID]
		if tgt != nil && isStateful(tgt) {
			continue
		}
		remaining[w.Target.BlockID]++
		outAdj[w.Source.BlockID] = append(outAdj[w.Source.BlockID], w.Target.BlockID)
	}

	var queue []string
	for _, b := range sheet.Blocks {
		if remaining[b.ID] == 0 {
			queue = append(queue, b.ID)
		}
	}
	sort.Strings(queue)

	visited := map[string]bool{}
	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		order = append(order, id)
		var ready []string
		for _, t := range outAdj[id] {
			remaining[t]--
			if remaining[t] == 0 {
				ready = append(ready, t)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	var warnings []blockerrors.Error
	for _, b := range sheet.Blocks {
		if !visited[b.ID] {
			order = append(order, b.ID)
			warnings = append(warnings, blockerrors.Newf(blockerrors.ValidationFailed,
				[]string{"block:" + b.ID},
				"block %q is part of an algebraic loop; the cycle was broken arbitrarily and the previous step's output is reused for the feedback edge", b.ID))
		}
	}

	return &Order{ids: order, warnings: warnings}
}

func isStateful(b *blockmodel.Block) bool {
	if b.Kind != blockreg.TransferFunction {
		return false
	}
	p, ok := b.Params.(*blockreg.TransferFunctionParams)
	return ok && p.Order() >= 1
}
