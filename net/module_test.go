// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package net

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heistp/desim"
)

type bareState struct{}

func (bareState) HandleMessage(msg *Message, ctx *Context) error { return nil }

func TestModuleGraphAndGates(t *testing.T) {
	parent := NewModule(NewObjectPath("parent"), bareState{})
	child := NewModule(NewObjectPath("parent.child"), bareState{})
	parent.AddChild(child)

	assert.Same(t, parent, child.Parent())
	assert.Equal(t, []*Module{child}, parent.Children())

	g0 := NewGate(GateDescription{Owner: parent, Name: "io", Size: 2}, 0)
	g1 := NewGate(GateDescription{Owner: parent, Name: "io", Size: 2}, 1)
	parent.AddGate(g0)
	parent.AddGate(g1)

	got, ok := parent.Gate("io", 1)
	require.True(t, ok)
	assert.Same(t, g1, got)

	_, ok = parent.Gate("io", 2)
	assert.False(t, ok)
}

func TestModuleStartsUninitializedAndInactive(t *testing.T) {
	m := NewModule(NewObjectPath("node"), bareState{})
	assert.False(t, m.IsActive())
}

type numStagedState struct{ bareState }

func (numStagedState) NumSimStartStages() int { return 3 }

func TestModuleNumSimStartStagesDefaultAndOverride(t *testing.T) {
	def := NewModule(NewObjectPath("a"), bareState{})
	assert.Equal(t, 1, def.numSimStartStages())

	staged := NewModule(NewObjectPath("b"), numStagedState{})
	assert.Equal(t, 3, staged.numSimStartStages())
}

type policiedState struct{ bareState }

func (policiedState) FailurePolicy() Policy { return PolicyContinue }

func TestModuleFailurePolicyDefaultAndOverride(t *testing.T) {
	def := NewModule(NewObjectPath("a"), bareState{})
	assert.Equal(t, PolicyPanic, def.failurePolicy())

	p := NewModule(NewObjectPath("b"), policiedState{})
	assert.Equal(t, PolicyContinue, p.failurePolicy())
}

type countingStage struct{ builds int }

type stackState struct {
	bareState
	built *countingStage
}

func (s stackState) Stack() []ProcessingElement {
	s.built.builds++
	return []ProcessingElement{}
}

func TestModuleStackBuiltOnceAndCached(t *testing.T) {
	counter := &countingStage{}
	m := NewModule(NewObjectPath("node"), stackState{built: counter})

	m.builtStack()
	m.builtStack()
	m.builtStack()

	assert.Equal(t, 1, counter.builds)
}

// errState fails its first HandleMessage call only, letting tests
// distinguish PolicyPanic/PolicyContinue/PolicyRestart outcomes.
type errState struct {
	policy  Policy
	calls   int
	resets  int
	starts  int
	failOn1 bool
}

func (s *errState) FailurePolicy() Policy { return s.policy }

func (s *errState) Reset() { s.resets++ }

func (s *errState) AtSimStart(stage int, ctx *Context) error {
	s.starts++
	return nil
}

func (s *errState) HandleMessage(msg *Message, ctx *Context) error {
	s.calls++
	if s.calls == 1 && s.failOn1 {
		return errors.New("boom")
	}
	return nil
}

func networkWithErrState(t *testing.T, policy Policy) (*Network, *Module, *errState) {
	t.Helper()
	network := NewNetwork(desim.NewHeapFES(), 1, 0, desim.SimTimeMax)
	state := &errState{policy: policy, failOn1: true}
	mod := NewModule(NewObjectPath("node"), state)
	require.NoError(t, network.RegisterModule(mod))
	require.NoError(t, network.Start())
	return network, mod, state
}

func TestModuleFailurePolicyPanicAbortsRun(t *testing.T) {
	network, mod, _ := networkWithErrState(t, PolicyPanic)
	require.NoError(t, network.ScheduleAt(NewMessage(0, mod.Path(), mod.Path(), 0, 1, nil), mod, 1))

	res := network.Run()
	assert.Equal(t, desim.PrematureAbort, res.Reason)
	assert.EqualError(t, res.Err, "boom")
}

func TestModuleFailurePolicyContinueSwallowsError(t *testing.T) {
	network, mod, state := networkWithErrState(t, PolicyContinue)
	require.NoError(t, network.ScheduleAt(NewMessage(0, mod.Path(), mod.Path(), 0, 1, nil), mod, 1))
	require.NoError(t, network.ScheduleAt(NewMessage(0, mod.Path(), mod.Path(), 0, 2, nil), mod, 2))

	res := network.Run()
	assert.Equal(t, desim.Finished, res.Reason)
	assert.Equal(t, 2, state.calls)
}

func TestModuleFailurePolicyRestartResetsAndReplaysSimStart(t *testing.T) {
	network, mod, state := networkWithErrState(t, PolicyRestart)
	require.NoError(t, network.ScheduleAt(NewMessage(0, mod.Path(), mod.Path(), 0, 1, nil), mod, 1))
	require.NoError(t, network.ScheduleAt(NewMessage(0, mod.Path(), mod.Path(), 0, 2, nil), mod, 2))

	res := network.Run()
	assert.Equal(t, desim.Finished, res.Reason)
	assert.True(t, mod.IsActive())
	assert.Equal(t, 1, state.resets)
	assert.Equal(t, 2, state.starts) // once from Start(), once from the restart
	assert.Equal(t, 2, state.calls)  // the failing call plus the t=2 call after restart
}
