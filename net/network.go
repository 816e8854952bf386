// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package net

import (
	"fmt"

	"github.com/heistp/desim"
)

// ErrModuleExists is returned by RegisterModule for a path already in
// use.
var ErrModuleExists = fmt.Errorf("net: module already registered at this path")

// Network wraps a *desim.Runtime with the module graph, gate/channel
// wiring and parameter tree from spec section 3's "Ownership &
// lifecycle": the Runtime exclusively owns the module registry, the
// FES and the parameter tree, all reached through this type.
type Network struct {
	rt *desim.Runtime

	modules map[string]*Module
	order   []*Module

	pars *ParTree

	// DeadLetterHook, when set, is also passed any message dropped
	// because its target module is in ShutDown (spec's Open Question
	// 1: default is silent drop, with this hook left as the escape
	// hatch).
	DeadLetterHook func(*Message)
}

// NewNetwork constructs a Network driven by fes, seeded with seed and
// capped at maxIterations/maxTime exactly as desim.NewRuntime.
func NewNetwork(fes desim.FES, seed int64, maxIterations uint64, maxTime desim.SimTime) *Network {
	n := &Network{
		modules: make(map[string]*Module),
		pars:    NewParTree(),
	}
	n.rt = desim.NewRuntime(fes, seed, maxIterations, maxTime, n)
	return n
}

// Runtime returns the underlying dispatch-loop runtime.
func (n *Network) Runtime() *desim.Runtime {
	return n.rt
}

// Now returns the network's current simulation time.
func (n *Network) Now() desim.SimTime {
	return n.rt.Now()
}

// Parameters returns the network's parameter tree.
func (n *Network) Parameters() *ParTree {
	return n.pars
}

// RegisterModule installs m into the graph at its declared path.
func (n *Network) RegisterModule(m *Module) error {
	key := m.path.String()
	if _, exists := n.modules[key]; exists {
		return ErrModuleExists
	}
	n.modules[key] = m
	n.order = append(n.order, m)
	return nil
}

// ModuleByPath resolves a module by its object path.
func (n *Network) ModuleByPath(p ObjectPath) (*Module, bool) {
	m, ok := n.modules[p.String()]
	return m, ok
}

// Gate resolves a gate on module m by name and cluster index.
func (n *Network) Gate(m *Module, name string, index int) (*Gate, bool) {
	return m.Gate(name, index)
}

// Start runs AtSimStart for every registered module, in registration
// order, once per declared sim-start stage, exactly as spec section
// 4.3 describes: called once, synchronously, before anything is
// popped from the dispatch loop, the same way the teacher's node.run
// calls Starter.Start before entering its input loop in node.go.
func (n *Network) Start() error {
	for _, m := range n.order {
		m.lifecycle = lifecycleActive
		if err := n.runSimStartStages(m); err != nil {
			return err
		}
	}
	return nil
}

func (n *Network) runSimStartStages(m *Module) error {
	s, ok := m.State.(SimStarter)
	if !ok {
		return nil
	}
	stages := m.numSimStartStages()
	var deferred []func(*Network)
	ctx := &Context{net: n, mod: m, now: n.rt.Now(), deferred: &deferred}
	for stage := 0; stage < stages; stage++ {
		if err := s.AtSimStart(stage, ctx); err != nil {
			return err
		}
	}
	n.flush(deferred)
	return nil
}

// Run drives the dispatch loop to completion and, on clean
// termination, calls AtSimEnd for every module in registration order.
// Events scheduled from AtSimEnd are discarded, per spec section 4.3:
// the per-handler deferred-send buffer used during AtSimEnd is
// deliberately never flushed.
func (n *Network) Run() desim.Result {
	res := n.rt.Run()
	if res.Reason == desim.Finished || res.Reason == desim.EmptySimulation {
		n.runSimEnd()
	}
	return res
}

func (n *Network) runSimEnd() {
	for _, m := range n.order {
		e, ok := m.State.(SimEnder)
		if !ok {
			continue
		}
		var discarded []func(*Network)
		ctx := &Context{net: n, mod: m, now: n.rt.Now(), deferred: &discarded}
		if err := e.AtSimEnd(ctx); err != nil {
			n.rt.Trace.Warn().Str("module", m.Path().String()).Err(err).Msg("at-sim-end error")
		}
	}
}

func (n *Network) flush(ops []func(*Network)) {
	for _, op := range ops {
		op(n)
	}
}

// Send begins gate traversal for msg at via, at the current sim
// time. It is the non-deferred counterpart of Context.Send, for use
// by setup code before the dispatch loop starts running.
func (n *Network) Send(msg *Message, via *Gate) error {
	return n.send(msg, via)
}

// SendAt schedules gate traversal for msg at via to begin at t.
func (n *Network) SendAt(msg *Message, via *Gate, t desim.SimTime) error {
	return n.rt.AddEventAt(t, sendEvent{msg: msg, gate: via})
}

// SendIn schedules gate traversal for msg at via to begin d after
// now.
func (n *Network) SendIn(msg *Message, via *Gate, d desim.Duration) error {
	return n.rt.AddEventIn(d, sendEvent{msg: msg, gate: via})
}

// ScheduleAt re-enters target's HandleMessage at t, with no gate
// traversal (a timer / self-message).
func (n *Network) ScheduleAt(msg *Message, target *Module, t desim.SimTime) error {
	return n.rt.AddEventAt(t, handleMessageEvent{msg: msg, target: target})
}

// ScheduleIn is ScheduleAt, d after now.
func (n *Network) ScheduleIn(msg *Message, target *Module, d desim.Duration) error {
	return n.rt.AddEventIn(d, handleMessageEvent{msg: msg, target: target})
}

// send implements the gate traversal protocol of spec section 4.3,
// after running the sending module's outgoing processing stack.
func (n *Network) send(msg *Message, g *Gate) error {
	if owner := g.Owner(); owner != nil {
		out, ok := runOutgoing(owner.builtStack(), msg)
		if !ok {
			return nil
		}
		msg = out
	}
	msg.RegisterHop(g)
	return n.traverse(msg, g)
}

func (n *Network) traverse(msg *Message, g *Gate) error {
	for {
		next := g.NextGate()
		if next == nil {
			owner := g.Owner()
			msg.SetArrival(owner.Path(), g)
			return n.rt.AddEventAt(n.rt.Now(), handleMessageEvent{msg: msg, target: owner})
		}

		ch := g.Channel()
		if ch == nil {
			g = next
			continue
		}

		now := n.rt.Now()
		if ch.IsBusy(now) {
			switch ch.Metrics().Policy {
			case Queue:
				if ch.enqueue(msg) {
					return nil
				}
			}
			n.rt.Trace.Debug().Str("channel", ch.Path().String()).Msg("channel saturated, message dropped")
			return nil
		}

		metrics := ch.Metrics()
		busyDur := metrics.transmissionTime(msg)
		deliveryDur := metrics.deliveryDuration(msg, n.rt.Rand())
		ch.setBusyUntil(now.Add(busyDur))

		n.rt.Trace.Debug().
			Str("channel", ch.Path().String()).
			Str("metrics", metrics.String()).
			Str("busy_for", busyDur.String()).
			Msg("channel transmitting")

		if err := n.rt.AddEventAt(ch.BusyUntil(), channelUnbusyEvent{gate: g}); err != nil {
			return err
		}
		if err := n.rt.AddEventAt(now.Add(deliveryDur), messageAtGateEvent{msg: msg, gate: next}); err != nil {
			return err
		}
		return nil
	}
}

// handleMessage runs the incoming processing stack and, if the
// message survives, the module's HandleMessage, exactly as spec
// section 4.3's HandleMessage event.
func (n *Network) handleMessage(msg *Message, target *Module) error {
	if !target.IsActive() {
		if n.DeadLetterHook != nil {
			n.DeadLetterHook(msg)
		}
		n.rt.Trace.Debug().Str("module", target.Path().String()).Msg("message delivered to shut-down module, dropped")
		return nil
	}

	stack := target.builtStack()
	runEventStart(stack)
	defer runEventEnd(stack)

	msg, ok := runIncoming(stack, msg)
	if !ok {
		return nil
	}

	var deferred []func(*Network)
	ctx := &Context{net: n, mod: target, now: n.rt.Now(), deferred: &deferred}

	if err := target.State.HandleMessage(msg, ctx); err != nil {
		switch target.failurePolicy() {
		case PolicyContinue:
			n.rt.Trace.Warn().Str("module", target.Path().String()).Err(err).Msg("handler failure, continuing")
			return nil
		case PolicyRestart:
			n.rt.Trace.Warn().Str("module", target.Path().String()).Err(err).Msg("handler failure, restarting")
			return n.restart(target)
		default:
			return err
		}
	}

	n.flush(deferred)
	return nil
}

func (n *Network) shutdown(m *Module) {
	m.lifecycle = lifecycleShutDown
}

func (n *Network) scheduleRestart(m *Module, t desim.SimTime) error {
	n.shutdown(m)
	m.restartAt = &t
	return n.rt.AddEventAt(t, restartEvent{module: m})
}

func (n *Network) restart(m *Module) error {
	if r, ok := m.State.(Resetter); ok {
		r.Reset()
	}
	m.lifecycle = lifecycleActive
	m.restartAt = nil

	var deferred []func(*Network)
	ctx := &Context{net: n, mod: m, now: n.rt.Now(), deferred: &deferred}

	if r, ok := m.State.(Restarter); ok {
		if err := r.AtRestart(ctx); err != nil {
			return err
		}
	}
	if s, ok := m.State.(SimStarter); ok {
		stages := m.numSimStartStages()
		for stage := 0; stage < stages; stage++ {
			if err := s.AtSimStart(stage, ctx); err != nil {
				return err
			}
		}
	}

	n.flush(deferred)
	return nil
}

// sendEvent begins gate traversal when dispatched; used by
// SendAt/SendIn to delay the start of a send.
type sendEvent struct {
	msg  *Message
	gate *Gate
}

func (e sendEvent) Dispatch(rt *desim.Runtime) error {
	return rt.AppState().(*Network).send(e.msg, e.gate)
}

// handleMessageEvent is the spec's HandleMessage event.
type handleMessageEvent struct {
	msg    *Message
	target *Module
}

func (e handleMessageEvent) Dispatch(rt *desim.Runtime) error {
	return rt.AppState().(*Network).handleMessage(e.msg, e.target)
}

// messageAtGateEvent delivers msg to the gate following a channel
// crossing, then resumes the traversal loop from there.
type messageAtGateEvent struct {
	msg  *Message
	gate *Gate
}

func (e messageAtGateEvent) Dispatch(rt *desim.Runtime) error {
	n := rt.AppState().(*Network)
	e.msg.RegisterHop(e.gate)
	return n.traverse(e.msg, e.gate)
}

// channelUnbusyEvent fires when a channel finishes transmitting the
// message currently on the medium; it pops the next queued message,
// if any, and resumes the traversal loop at the same gate, exactly as
// spec section 4.3 describes.
type channelUnbusyEvent struct {
	gate *Gate
}

func (e channelUnbusyEvent) Dispatch(rt *desim.Runtime) error {
	n := rt.AppState().(*Network)
	ch := e.gate.Channel()
	msg := ch.dequeue()
	if msg == nil {
		ch.unbusy()
		return nil
	}
	return n.traverse(msg, e.gate)
}

// restartEvent re-activates a shut-down module, per
// ShutdownAndRestartAt.
type restartEvent struct {
	module *Module
}

func (e restartEvent) Dispatch(rt *desim.Runtime) error {
	return rt.AppState().(*Network).restart(e.module)
}

// Context is the scoped, handler-duration-only "current module"
// handle described in spec section 9's design notes: pushed by the
// dispatch loop immediately before a handler runs, discarded
// immediately after, never stored by the module. It generalizes the
// teacher's Node interface in node.go (Timer/Send/Now/Logf/Shutdown)
// to the network runtime's richer scheduling API.
//
// Every mutating call buffers a closure rather than acting
// immediately, so a handler can never observe the FES or module
// registry in a partially-updated state mid-dispatch (spec section
// 9's "deferred side effects in handlers", grounded on the teacher's
// own deferred-output idiom in sim.go).
type Context struct {
	net      *Network
	mod      *Module
	now      desim.SimTime
	deferred *[]func(*Network)
}

// Now returns the current simulation time.
func (c *Context) Now() desim.SimTime {
	return c.now
}

// Module returns the module this context is scoped to.
func (c *Context) Module() *Module {
	return c.mod
}

// Rand returns the runtime's single seeded RNG.
func (c *Context) Rand() *desim.RNG {
	return c.net.rt.Rand()
}

// Par looks up a parameter visible from this module.
func (c *Context) Par(key string) (*ParLease, bool) {
	return c.net.pars.Get(key)
}

// Logf emits a structured trace line scoped to this module and the
// current sim time.
func (c *Context) Logf(format string, a ...any) {
	c.net.rt.Trace.Debug().
		Str("module", c.mod.Path().LoggerScope()).
		Str("sim_time", c.now.String()).
		Msgf(format, a...)
}

func (c *Context) deferOp(op func(*Network)) {
	*c.deferred = append(*c.deferred, op)
}

// Send begins gate traversal for msg at via, at the current sim time.
func (c *Context) Send(msg *Message, via *Gate) {
	c.deferOp(func(n *Network) { n.send(msg, via) })
}

// SendAt schedules gate traversal for msg at via to begin at t.
func (c *Context) SendAt(msg *Message, via *Gate, t desim.SimTime) {
	c.deferOp(func(n *Network) { n.rt.AddEventAt(t, sendEvent{msg: msg, gate: via}) })
}

// SendIn schedules gate traversal for msg at via to begin d after
// now.
func (c *Context) SendIn(msg *Message, via *Gate, d desim.Duration) {
	c.deferOp(func(n *Network) { n.rt.AddEventIn(d, sendEvent{msg: msg, gate: via}) })
}

// ScheduleAt re-enters this module's HandleMessage at t, with no
// gate traversal.
func (c *Context) ScheduleAt(msg *Message, t desim.SimTime) {
	mod := c.mod
	c.deferOp(func(n *Network) { n.rt.AddEventAt(t, handleMessageEvent{msg: msg, target: mod}) })
}

// ScheduleIn is ScheduleAt, d after now.
func (c *Context) ScheduleIn(msg *Message, d desim.Duration) {
	mod := c.mod
	c.deferOp(func(n *Network) { n.rt.AddEventIn(d, handleMessageEvent{msg: msg, target: mod}) })
}

// NewMessage constructs a message originating from this module.
// Sender and target both start out as this module's path (so an
// unsent message IsSelfMessage), until gate traversal reassigns the
// target on arrival.
func (c *Context) NewMessage(kind Kind, payload any) *Message {
	return NewMessage(kind, c.mod.Path(), c.mod.Path(), c.now, c.now, payload)
}

// Shutdown moves this module into the ShutDown state; subsequent
// messages to it are dropped until a restart.
func (c *Context) Shutdown() {
	mod := c.mod
	c.deferOp(func(n *Network) { n.shutdown(mod) })
}

// ShutdownAndRestartAt shuts this module down and schedules a
// restart at t.
func (c *Context) ShutdownAndRestartAt(t desim.SimTime) {
	mod := c.mod
	c.deferOp(func(n *Network) { n.scheduleRestart(mod, t) })
}

// ShutdownAndRestartIn is ShutdownAndRestartAt, d after now.
func (c *Context) ShutdownAndRestartIn(d desim.Duration) {
	mod := c.mod
	restartAt := c.now.Add(d)
	c.deferOp(func(n *Network) { n.scheduleRestart(mod, restartAt) })
}
