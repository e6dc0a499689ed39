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

// Package simulate is the fixed-step simulation engine of spec.md §4.5: a
// single-threaded, deterministic, floor(duration/dt)-step loop over a
// flattened graph. Each step runs three serial phases — an algebraic phase
// in the graph's cached topological order, an RK4 integration phase over
// every stateful transfer_function's continuous state, and a time advance —
// exactly the phase breakdown spec.md §9 calls for: block semantics stay
// pure functions (package semantics); this package is the only place that
// owns and mutates state.
package simulate

import (
	"context"
	"math"
	"sort"

	"blockdsl.dev/go/blockerrors"
	"blockdsl.dev/go/blockmodel"
	"blockdsl.dev/go/blockreg"
	"blockdsl.dev/go/flatten"
	"blockdsl.dev/go/schedule"
	"blockdsl.dev/go/semantics"
	"blockdsl.dev/go/signal"
	"blockdsl.dev/go/sigtype"
	"blockdsl.dev/go/typeprop"
)

// Phase identifies which of spec.md §4.5's three per-step phases a LogEntry
// belongs to.
type Phase int

const (
	AlgebraicPhase Phase = iota
	IntegrationPhase
	TimeAdvancePhase
)

// String renders p for debug output.
func (p Phase) String() string {
	switch p {
	case AlgebraicPhase:
		return "algebraic"
	case IntegrationPhase:
		return "integration"
	case TimeAdvancePhase:
		return "time_advance"
	default:
		return "unknown"
	}
}

// LogEntry is one {phase, time, block_id} record of spec.md §4.5's optional
// per-phase execution log. BlockID is empty for a TimeAdvancePhase entry,
// which is not specific to any one block.
type LogEntry struct {
	Phase   Phase
	Time    float64
	BlockID string
}

// Recorder consumes LogEntry values as a run produces them. A caller that
// does not need the log may leave Options.Recorder nil.
type Recorder interface {
	Record(e LogEntry)
}

// InMemoryRecorder is the default Recorder: it simply appends every entry,
// since "the simulator exposes optional per-phase execution logs" (spec.md
// §4.5) implies an interface callers can supply, and a library should not
// force callers to write their own before they can use the feature.
type InMemoryRecorder struct {
	Entries []LogEntry
}

// Record appends e.
func (r *InMemoryRecorder) Record(e LogEntry) { r.Entries = append(r.Entries, e) }

// Options configures a Run.
type Options struct {
	// Inputs supplies a constant-for-the-run sample per input_port, keyed
	// by its declared PortName. A port absent here falls back to its
	// InputPortParams.Default, broadcast across every element of its type.
	Inputs map[string]signal.Value
	// Recorder, if non-nil, receives a LogEntry for every phase spec.md
	// §4.5 defines as the run executes.
	Recorder Recorder
}

// Result is spec.md §6's simulator result envelope.
type Result struct {
	Success        bool
	Outputs        map[string]signal.Value
	ExecutionOrder []string
	SimulationTime float64
	Warnings       []blockerrors.Error
	Error          error
}

// Run executes flat's flattened graph for floor(settings.SimulationDuration
// / settings.SimulationTimeStep) fixed steps. ctx is polled at phase
// boundaries only (spec.md §5: cancellation is a cooperative poll, not
// suspension mid-phase); on cancellation Run returns the latest consistent
// state with Success false and Error set to ctx.Err().
func Run(ctx context.Context, flat *flatten.Flattened, settings blockmodel.GlobalSettings, opts Options) Result {
	sheet := &flat.Sheet
	order := schedule.Compute(sheet)

	var warnings []blockerrors.Error
	warnings = append(warnings, order.Warnings()...)

	eng := newEngine(flat, order, opts)

	var steps int
	if settings.SimulationTimeStep > 0 {
		steps = int(settings.SimulationDuration / settings.SimulationTimeStep)
	}
	dt := settings.SimulationTimeStep
	t := 0.0

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return eng.result(order.IDs(), t, warnings, false, ctx.Err())
		default:
		}

		if ok := eng.step(t, dt); !ok {
			warnings = append(warnings, blockerrors.Newf(blockerrors.ValidationFailed, nil,
				"step at t=%.6g aborted: a derivative was non-finite or exceeded magnitude 1e10; state rolled back to its pre-step value", t))
		}
		t = float64(i+1) * dt
		if eng.recorder != nil {
			eng.recorder.Record(LogEntry{Phase: TimeAdvancePhase, Time: t})
		}
	}

	// Re-sample the output ports from the final state so Outputs are the
	// values at time t, not at the start of the last step.
	eng.runAlgebraic(t, nil, false)

	warnings = append(warnings, eng.errs.Errs()...)
	return eng.result(order.IDs(), t, warnings, true, nil)
}

// engine owns all mutable run state: block outputs, transfer-function
// state, and the resolved wiring needed to re-derive inputs each phase.
type engine struct {
	blockByID    map[string]*blockmodel.Block
	incoming     map[string]map[int]blockmodel.Port
	order        *schedule.Order
	enableChains map[string][]flatten.EnableGate

	externalInputs map[string]signal.Value

	state       map[string][][]float64
	outputs     map[string][]signal.Value
	outputPorts map[string]signal.Value
	statefulIDs []string

	recorder Recorder
	errs     *blockerrors.List
}

func newEngine(flat *flatten.Flattened, order *schedule.Order, opts Options) *engine {
	sheet := &flat.Sheet
	blockByID := map[string]*blockmodel.Block{}
	for i := range sheet.Blocks {
		blockByID[sheet.Blocks[i].ID] = &sheet.Blocks[i]
	}

	incoming := map[string]map[int]blockmodel.Port{}
	for _, w := range sheet.Wires {
		m, ok := incoming[w.Target.BlockID]
		if !ok {
			m = map[int]blockmodel.Port{}
			incoming[w.Target.BlockID] = m
		}
		m[w.Target.Index] = w.Source
	}

	tp := typeprop.Propagate(&blockmodel.Model{Sheets: []blockmodel.Sheet{*sheet}})
	st := tp.Types.Sheets[blockmodel.MainSheetID]

	e := &engine{
		blockByID:      blockByID,
		incoming:       incoming,
		order:          order,
		enableChains:   flat.EnableChains,
		externalInputs: opts.Inputs,
		state:          map[string][][]float64{},
		outputs:        map[string][]signal.Value{},
		outputPorts:    map[string]signal.Value{},
		recorder:       opts.Recorder,
		errs:           &blockerrors.List{},
	}

	for _, id := range order.IDs() {
		b := blockByID[id]
		if !isStateful(b) {
			continue
		}
		p := b.Params.(*blockreg.TransferFunctionParams)
		inputType := sigtype.NewScalar(sigtype.Double)
		if st != nil {
			if pt, ok := st.Blocks[id]; ok && len(pt.Inputs) > 0 && pt.Inputs[0].Base() != "" {
				inputType = pt.Inputs[0]
			}
		}
		e.state[id] = semantics.InitialState(p, inputType)
		e.statefulIDs = append(e.statefulIDs, id)
	}
	sort.Strings(e.statefulIDs)

	// Seed e.outputs with a t=0 algebraic pass (not logged, not part of
	// any simulated step) so the first real step's held-value fallbacks
	// and enable-gate lookups have a defined pre-step state to read.
	zero, _ := e.runAlgebraic(0, nil, false)
	e.outputs = zero

	return e
}

// isStateful reports whether b owns continuous RK4 state: only a
// transfer_function with deg(Denominator) >= 1 (spec.md §4.3); a deg(D)==0
// transfer function degenerates to a pure gain with no state.
func isStateful(b *blockmodel.Block) bool {
	if b.Kind != blockreg.TransferFunction {
		return false
	}
	p, ok := b.Params.(*blockreg.TransferFunctionParams)
	return ok && p.Order() >= 1
}

// step advances the engine by one fixed dt starting at time t, running the
// algebraic phase once (reused as RK4's k1 evaluation) and, if any block is
// stateful, a whole-system classical RK4 integration phase. It reports false
// if the step's derivatives diverged and its state was rolled back.
func (e *engine) step(t, dt float64) bool {
	k1out, k1tf := e.runAlgebraic(t, nil, true)

	if len(e.statefulIDs) == 0 {
		e.outputs = k1out
		return true
	}

	k1d := e.derivativesFrom(k1tf, e.state)
	if !validDerivatives(k1d) {
		e.outputs = k1out
		return false
	}

	s2 := addScaledStates(e.state, k1d, dt/2)
	_, tf2 := e.runAlgebraic(t+dt/2, s2, false)
	k2d := e.derivativesFrom(tf2, s2)
	if !validDerivatives(k2d) {
		e.outputs = k1out
		return false
	}

	s3 := addScaledStates(e.state, k2d, dt/2)
	_, tf3 := e.runAlgebraic(t+dt/2, s3, false)
	k3d := e.derivativesFrom(tf3, s3)
	if !validDerivatives(k3d) {
		e.outputs = k1out
		return false
	}

	s4 := addScaledStates(e.state, k3d, dt)
	_, tf4 := e.runAlgebraic(t+dt, s4, false)
	k4d := e.derivativesFrom(tf4, s4)
	if !validDerivatives(k4d) {
		e.outputs = k1out
		return false
	}

	newState := make(map[string][][]float64, len(e.statefulIDs))
	for _, id := range e.statefulIDs {
		newState[id] = combineRK4(e.state[id], k1d[id], k2d[id], k3d[id], k4d[id], dt)
		if e.recorder != nil {
			e.recorder.Record(LogEntry{Phase: IntegrationPhase, Time: t, BlockID: id})
		}
	}

	e.outputs = k1out
	e.state = newState
	return true
}

// runAlgebraic computes every block's output in topological order at time
// t, using stateOverride in place of e.state for any stateful block it
// names (the fresh re-evaluation spec.md §4.5 phase 2 requires at each RK4
// sub-stage). isPrimary marks the one true phase-1 pass of a step: only
// that pass is logged and counted toward the run's warnings, since the
// other three are purely internal to computing derivatives.
func (e *engine) runAlgebraic(t float64, stateOverride map[string][][]float64, isPrimary bool) (outputs map[string][]signal.Value, tfInputs map[string]signal.Value) {
	outputs = make(map[string][]signal.Value, len(e.order.IDs()))
	tfInputs = map[string]signal.Value{}
	errs := e.errs
	if !isPrimary {
		errs = &blockerrors.List{}
	}

	for _, id := range e.order.IDs() {
		b := e.blockByID[id]

		if e.isDisabled(id, outputs) {
			outputs[id] = e.outputs[id]
			if isPrimary && e.recorder != nil {
				e.recorder.Record(LogEntry{Phase: AlgebraicPhase, Time: t, BlockID: id})
			}
			continue
		}

		in := e.gatherInputs(id, outputs)

		var external signal.Value
		if ip, ok := b.Params.(*blockreg.InputPortParams); ok {
			external = e.resolveExternal(ip)
		}

		var state [][]float64
		if override, ok := stateOverride[id]; ok {
			state = override
		} else if cur, ok := e.state[id]; ok {
			state = cur
		}

		before := errs.Len()
		out := semantics.Step(b, in, t, external, state, []string{"block:" + id}, errs)
		if errs.Len() > before && len(e.outputs[id]) > 0 {
			// Runtime failure inside the block (e.g. division by zero in an
			// evaluate expression): abort this block's step and hold its
			// previous sample (spec.md §7).
			out = e.outputs[id]
		}
		outputs[id] = out

		if isStateful(b) {
			if len(in) > 0 {
				tfInputs[id] = in[0]
			}
		}

		if b.Kind == blockreg.OutputPort {
			if p, ok := b.Params.(*blockreg.OutputPortParams); ok && len(in) > 0 {
				e.outputPorts[p.PortName] = in[0]
			}
		}

		if isPrimary && e.recorder != nil {
			e.recorder.Record(LogEntry{Phase: AlgebraicPhase, Time: t, BlockID: id})
		}
	}
	return outputs, tfInputs
}

// isDisabled reports whether id is currently gated off by a false link in
// its enable chain (spec.md §4.5 "Scope and enable"). A gate whose source
// has not been computed yet this pass, nor in any previous step, is
// treated as enabled: the model has no other defined value to consult.
func (e *engine) isDisabled(id string, outputsThisPass map[string][]signal.Value) bool {
	for _, g := range e.enableChains[id] {
		v, ok := e.lookupPort(g.Source, outputsThisPass)
		if ok && v.At(0) == 0 {
			return true
		}
	}
	return false
}

func (e *engine) lookupPort(p blockmodel.Port, outputsThisPass map[string][]signal.Value) (signal.Value, bool) {
	if outs, ok := outputsThisPass[p.BlockID]; ok && p.Index >= 0 && p.Index < len(outs) {
		return outs[p.Index], true
	}
	if outs, ok := e.outputs[p.BlockID]; ok && p.Index >= 0 && p.Index < len(outs) {
		return outs[p.Index], true
	}
	return signal.Value{}, false
}

func (e *engine) gatherInputs(id string, outputsThisPass map[string][]signal.Value) []signal.Value {
	b := e.blockByID[id]
	n := typeprop.InputPortCount(b)
	in := make([]signal.Value, n)
	for i := 0; i < n; i++ {
		src, ok := e.incoming[id][i]
		if !ok {
			continue
		}
		if v, ok := e.lookupPort(src, outputsThisPass); ok {
			in[i] = v
		}
	}
	return in
}

func (e *engine) resolveExternal(p *blockreg.InputPortParams) signal.Value {
	if v, ok := e.externalInputs[p.PortName]; ok {
		return v
	}
	v := signal.Zero(p.Type)
	n := v.ElementCount()
	for k := 0; k < n; k++ {
		v.Set(k, p.Default)
	}
	return v
}

func (e *engine) derivativesFrom(tfInputs map[string]signal.Value, state map[string][][]float64) map[string][][]float64 {
	d := make(map[string][][]float64, len(e.statefulIDs))
	for _, id := range e.statefulIDs {
		p := e.blockByID[id].Params.(*blockreg.TransferFunctionParams)
		d[id] = semantics.Derivative(p, tfInputs[id], state[id])
	}
	return d
}

func (e *engine) result(order []string, t float64, warnings []blockerrors.Error, success bool, err error) Result {
	outputs := make(map[string]signal.Value, len(e.outputPorts))
	for name, v := range e.outputPorts {
		outputs[name] = v
	}
	return Result{
		Success:        success && err == nil,
		Outputs:        outputs,
		ExecutionOrder: append([]string(nil), order...),
		SimulationTime: t,
		Warnings:       warnings,
		Error:          err,
	}
}

// addScaledStates returns base with scale*deriv added elementwise, for
// every stateful block base names — the state + h/2*k pattern RK4's
// intermediate stages need.
func addScaledStates(base, deriv map[string][][]float64, scale float64) map[string][][]float64 {
	out := make(map[string][][]float64, len(base))
	for id, bstate := range base {
		d := deriv[id]
		ns := make([][]float64, len(bstate))
		for k := range bstate {
			ns[k] = make([]float64, len(bstate[k]))
			for i := range bstate[k] {
				ns[k][i] = bstate[k][i] + scale*d[k][i]
			}
		}
		out[id] = ns
	}
	return out
}

// combineRK4 applies the classical weighted-average RK4 update to one
// block's state.
func combineRK4(base, k1, k2, k3, k4 [][]float64, dt float64) [][]float64 {
	out := make([][]float64, len(base))
	for k := range base {
		out[k] = make([]float64, len(base[k]))
		for i := range base[k] {
			out[k][i] = base[k][i] + dt/6*(k1[k][i]+2*k2[k][i]+2*k3[k][i]+k4[k][i])
		}
	}
	return out
}

// validDerivatives reports whether every value across every stateful
// block's derivative is finite and within spec.md §4.5's magnitude bound.
func validDerivatives(d map[string][][]float64) bool {
	for _, per := range d {
		for _, x := range per {
			for _, v := range x {
				if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > 1e10 {
					return false
				}
			}
		}
	}
	return true
}
