// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package net

import (
	"github.com/google/uuid"

	"github.com/heistp/desim"
)

// Policy governs what the dispatch loop does when a module's
// HandleMessage returns an error, per spec section 7.
type Policy int

const (
	// PolicyPanic propagates the error, aborting the simulation
	// (TerminationReason = PrematureAbort).
	PolicyPanic Policy = iota
	// PolicyContinue logs the error and proceeds as if the handler
	// had returned nil.
	PolicyContinue
	// PolicyRestart aborts the current handler invocation and
	// restarts the module (Reset plus AtSimStart), same as an
	// explicit ShutdownAndRestartAt(now).
	PolicyRestart
)

// ModuleState is the required capability of every module: the
// polymorphic user-defined behavior named in spec section 3
// ("specified only by its capability set"). Optional behaviors
// (AtSimStart, AtSimEnd, AtRestart, Reset, Stack,
// NumSimStartStages, FailurePolicy) are detected by type assertion
// against the interfaces below, generalizing the teacher's
// Starter/Stopper/Dinger pattern in node.go.
type ModuleState interface {
	HandleMessage(msg *Message, ctx *Context) error
}

// SimStarter runs once per sim-start stage, before any user event.
type SimStarter interface {
	AtSimStart(stage int, ctx *Context) error
}

// NumSimStartStager reports how many sim-start stages a module needs.
// A module without this capability gets exactly one stage (0).
type NumSimStartStager interface {
	NumSimStartStages() int
}

// SimEnder runs once when the dispatch loop terminates cleanly.
type SimEnder interface {
	AtSimEnd(ctx *Context) error
}

// Restarter runs once a module's transient state has been reset but
// before AtSimStart is replayed, as part of a scheduled restart.
type Restarter interface {
	AtRestart(ctx *Context) error
}

// Resetter clears a module's transient/volatile state, leaving any
// persistent state untouched. Called on restart, before AtRestart.
type Resetter interface {
	Reset()
}

// StackBuilder supplies a module's processing-stack elements. Called
// once, lazily, the first time the module's stack is needed.
type StackBuilder interface {
	Stack() []ProcessingElement
}

// FailurePolicier lets a module opt into a failure policy other than
// the default PolicyPanic.
type FailurePolicier interface {
	FailurePolicy() Policy
}

// lifecycleState is a module's position in the state machine from
// spec section 4.5: Uninitialized -> Active -> (ShutDown <-> Active).
type lifecycleState int

const (
	lifecycleUninitialized lifecycleState = iota
	lifecycleActive
	lifecycleShutDown
)

// Module is a node in the network tree, transcribed from spec
// section 3's Module data model.
type Module struct {
	RuntimeID uuid.UUID
	path      ObjectPath

	parent   *Module
	children []*Module
	gates    []*Gate

	State ModuleState

	lifecycle  lifecycleState
	restartAt  *desim.SimTime
	stackBuilt bool
	stack      []ProcessingElement
}

// NewModule constructs an uninitialized module at path, owning no
// gates or children yet.
func NewModule(path ObjectPath, state ModuleState) *Module {
	return &Module{
		RuntimeID: uuid.New(),
		path:      path,
		State:     state,
		lifecycle: lifecycleUninitialized,
	}
}

// Path returns the module's dotted object path.
func (m *Module) Path() ObjectPath {
	return m.path
}

// Parent returns the module's parent, or nil at the tree root. The
// reference is non-owning: Module never keeps its parent alive.
func (m *Module) Parent() *Module {
	return m.parent
}

// Children returns the module's owned child modules.
func (m *Module) Children() []*Module {
	return m.children
}

// AddChild installs child as an owned child of m, and sets child's
// back-reference to m.
func (m *Module) AddChild(child *Module) {
	child.parent = m
	m.children = append(m.children, child)
}

// Gates returns the module's owned gates in declaration order.
func (m *Module) Gates() []*Gate {
	return m.gates
}

// AddGate appends a gate owned by m.
func (m *Module) AddGate(g *Gate) {
	m.gates = append(m.gates, g)
}

// Gate resolves a gate by name and cluster index.
func (m *Module) Gate(name string, index int) (*Gate, bool) {
	pos := 0
	for _, g := range m.gates {
		if g.Name() != name {
			continue
		}
		if pos == index {
			return g, true
		}
		pos++
	}
	return nil, false
}

// IsActive reports whether the module will accept HandleMessage
// calls.
func (m *Module) IsActive() bool {
	return m.lifecycle == lifecycleActive
}

// RestartAt returns the time a pending restart is scheduled for, and
// true, if the module is currently shut down with a restart pending.
// It reports false once the module has restarted or if it was shut
// down with Context.Shutdown rather than ShutdownAndRestartAt/In.
func (m *Module) RestartAt() (desim.SimTime, bool) {
	if m.restartAt == nil {
		return desim.SimTimeZero, false
	}
	return *m.restartAt, true
}

// numSimStartStages returns the module's declared stage count, or 1
// if it doesn't implement NumSimStartStager.
func (m *Module) numSimStartStages() int {
	if n, ok := m.State.(NumSimStartStager); ok {
		return n.NumSimStartStages()
	}
	return 1
}

// failurePolicy returns the module's declared failure policy, or
// PolicyPanic if it doesn't implement FailurePolicier.
func (m *Module) failurePolicy() Policy {
	if p, ok := m.State.(FailurePolicier); ok {
		return p.FailurePolicy()
	}
	return PolicyPanic
}

// builtStack lazily builds and caches the module's processing stack.
// Construction is idempotent: calling it again after the first build
// is a no-op, matching spec section 4.4.
func (m *Module) builtStack() []ProcessingElement {
	if m.stackBuilt {
		return m.stack
	}
	if b, ok := m.State.(StackBuilder); ok {
		m.stack = b.Stack()
	}
	m.stackBuilt = true
	return m.stack
}
