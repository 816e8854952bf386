// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package desim

import "github.com/rs/zerolog"

// Counters aggregates dispatch-loop statistics across a Run, mirroring
// spec section 4.2's "counter aggregate (dispatched, handled,
// zero-delta events)".
type Counters struct {
	// Dispatched is the number of events popped from the Future Event
	// Set and handed to a handler.
	Dispatched uint64
	// Handled is the number of handler invocations that returned
	// without error.
	Handled uint64
	// ZeroDelta is the number of dispatched events whose time equaled
	// the previously dispatched event's time (spec's "zero-event").
	ZeroDelta uint64
}

// Result is what Run returns: the final sim time, the counter
// aggregate, why the loop stopped, and (on clean termination) the
// app state handed back to the caller.
type Result struct {
	FinalTime SimTime
	Counters  Counters
	Reason    TerminationReason
	Err       error
	AppState  any
}

// Runtime owns the Future Event Set, the simulation clock, the RNG,
// and drives the event dispatch loop described in spec section 4.2.
// It is not safe for concurrent use: spec section 5 fixes the model
// as single-threaded cooperative virtual-time simulation.
type Runtime struct {
	simTime          SimTime
	iterationCounter uint64
	maxItr           uint64 // 0 means unlimited
	maxTime          SimTime
	fes              FES
	rng              *RNG
	appState         any
	Trace            zerolog.Logger

	counters      Counters
	haveLastTime  bool
	lastEventTime SimTime
}

// NewRuntime returns a Runtime driven by fes, seeded with seed, capped
// at maxIterations dispatched events (0 for unlimited) and maxTime
// (SimTimeMax for unlimited), carrying appState as the opaque user
// state handlers may mutate.
func NewRuntime(fes FES, seed int64, maxIterations uint64, maxTime SimTime, appState any) *Runtime {
	return &Runtime{
		maxItr:   maxIterations,
		maxTime:  maxTime,
		fes:      fes,
		rng:      NewRNG(seed),
		appState: appState,
		Trace:    zerolog.Nop(),
	}
}

// Now returns the Runtime's current simulation time.
func (rt *Runtime) Now() SimTime {
	return rt.simTime
}

// Rand returns the Runtime's single seeded RNG.
func (rt *Runtime) Rand() *RNG {
	return rt.rng
}

// AppState returns the opaque application state passed to NewRuntime.
func (rt *Runtime) AppState() any {
	return rt.appState
}

// SetAppState replaces the opaque application state.
func (rt *Runtime) SetAppState(s any) {
	rt.appState = s
}

// AddEventAt schedules event to run at t, which must be >= Now().
func (rt *Runtime) AddEventAt(t SimTime, event Event) error {
	if t < rt.simTime {
		return ErrPastEvent
	}
	return rt.fes.Add(t, event)
}

// AddEventIn schedules event to run d after Now().
func (rt *Runtime) AddEventIn(d Duration, event Event) error {
	return rt.AddEventAt(rt.simTime.Add(d), event)
}

// Counters returns a snapshot of the dispatch-loop counters so far.
func (rt *Runtime) Counters() Counters {
	return rt.counters
}

// checkTermination implements step 1 of spec section 4.2's Step: it
// reports whether the loop should stop before attempting to pop
// another event, and why.
func (rt *Runtime) checkTermination() (TerminationReason, bool) {
	if rt.fes.IsEmpty() {
		if rt.counters.Dispatched == 0 {
			return EmptySimulation, true
		}
		return Finished, true
	}
	if rt.maxItr > 0 && rt.iterationCounter >= rt.maxItr {
		return IterationCap, true
	}
	if rt.simTime > rt.maxTime {
		return TimeCap, true
	}
	return 0, false
}

// Step runs one iteration of the dispatch loop: it either determines
// the simulation should terminate (returning done=true and why), or
// pops the next event, advances sim time to its timestamp, and
// invokes its handler.
func (rt *Runtime) Step() (done bool, reason TerminationReason, err error) {
	if reason, done = rt.checkTermination(); done {
		return
	}

	t, ev, ferr := rt.fes.FetchNext()
	if ferr != nil {
		// checkTermination already ensured the set was non-empty;
		// this can only mean a programmer error elsewhere.
		return true, PrematureAbort, ferr
	}

	if rt.haveLastTime && t == rt.lastEventTime {
		rt.counters.ZeroDelta++
	}
	rt.lastEventTime = t
	rt.haveLastTime = true

	rt.simTime = t
	rt.iterationCounter++
	rt.counters.Dispatched++

	if err = ev.Dispatch(rt); err != nil {
		return true, PrematureAbort, err
	}
	rt.counters.Handled++
	return false, 0, nil
}

// Run loops Step until the dispatch loop terminates, then returns the
// aggregated Result.
func (rt *Runtime) Run() Result {
	for {
		done, reason, err := rt.Step()
		if done {
			return Result{
				FinalTime: rt.simTime,
				Counters:  rt.counters,
				Reason:    reason,
				Err:       err,
				AppState:  rt.appState,
			}
		}
	}
}
