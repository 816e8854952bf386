// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package desim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeEmptySimulation(t *testing.T) {
	rt := NewRuntime(NewHeapFES(), 1, 0, SimTimeMax, nil)
	res := rt.Run()
	assert.Equal(t, EmptySimulation, res.Reason)
	assert.Equal(t, uint64(0), res.Counters.Dispatched)
}

func TestRuntimeDispatchesInTimeOrder(t *testing.T) {
	rt := NewRuntime(NewHeapFES(), 1, 0, SimTimeMax, nil)
	var order []int
	for i, at := range []SimTime{30, 10, 20} {
		i, at := i, at
		require.NoError(t, rt.AddEventAt(at, EventFunc(func(rt *Runtime) error {
			order = append(order, i)
			return nil
		})))
	}
	res := rt.Run()
	assert.Equal(t, Finished, res.Reason)
	assert.Equal(t, []int{1, 2, 0}, order)
	assert.Equal(t, uint64(3), res.Counters.Dispatched)
	assert.Equal(t, uint64(3), res.Counters.Handled)
}

func TestRuntimeIterationCap(t *testing.T) {
	rt := NewRuntime(NewHeapFES(), 1, 2, SimTimeMax, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, rt.AddEventIn(Duration(i), EventFunc(func(rt *Runtime) error { return nil })))
	}
	res := rt.Run()
	assert.Equal(t, IterationCap, res.Reason)
	assert.Equal(t, uint64(2), res.Counters.Dispatched)
}

func TestRuntimeTimeCap(t *testing.T) {
	rt := NewRuntime(NewHeapFES(), 1, 0, FromSeconds(1), nil)
	require.NoError(t, rt.AddEventAt(FromSeconds(0.5), EventFunc(func(rt *Runtime) error { return nil })))
	require.NoError(t, rt.AddEventAt(FromSeconds(2), EventFunc(func(rt *Runtime) error { return nil })))
	require.NoError(t, rt.AddEventAt(FromSeconds(3), EventFunc(func(rt *Runtime) error { return nil })))
	res := rt.Run()
	// The cap is checked against the last dispatched time before each
	// pop, so the t=2s event still runs and the t=3s one does not.
	assert.Equal(t, TimeCap, res.Reason)
	assert.Equal(t, uint64(2), res.Counters.Dispatched)
}

func TestRuntimeHandlerErrorAborts(t *testing.T) {
	rt := NewRuntime(NewHeapFES(), 1, 0, SimTimeMax, nil)
	boom := errors.New("boom")
	require.NoError(t, rt.AddEventAt(0, EventFunc(func(rt *Runtime) error { return boom })))
	res := rt.Run()
	assert.Equal(t, PrematureAbort, res.Reason)
	assert.ErrorIs(t, res.Err, boom)
}

func TestRuntimeZeroDeltaCounter(t *testing.T) {
	rt := NewRuntime(NewHeapFES(), 1, 0, SimTimeMax, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, rt.AddEventAt(100, EventFunc(func(rt *Runtime) error { return nil })))
	}
	res := rt.Run()
	assert.Equal(t, uint64(2), res.Counters.ZeroDelta)
}

func TestRuntimeHandlerCanScheduleFurtherEvents(t *testing.T) {
	rt := NewRuntime(NewHeapFES(), 1, 0, SimTimeMax, nil)
	var fired int
	var step EventFunc
	step = func(rt *Runtime) error {
		fired++
		if fired < 5 {
			return rt.AddEventIn(1, step)
		}
		return nil
	}
	require.NoError(t, rt.AddEventIn(1, step))
	res := rt.Run()
	assert.Equal(t, Finished, res.Reason)
	assert.Equal(t, 5, fired)
	assert.Equal(t, SimTime(5), res.FinalTime)
}

func TestRuntimeAppState(t *testing.T) {
	type state struct{ n int }
	s := &state{}
	rt := NewRuntime(NewHeapFES(), 1, 0, SimTimeMax, s)
	require.NoError(t, rt.AddEventAt(0, EventFunc(func(rt *Runtime) error {
		rt.AppState().(*state).n++
		return nil
	})))
	res := rt.Run()
	assert.Same(t, s, res.AppState)
	assert.Equal(t, 1, s.n)
}
