// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package net

// ProcessingElement is one stage of a module's processing stack
// (spec section 4.4). Each stage may implement any subset of the
// optional interfaces below; a stage implementing none of them is
// legal but inert.
type ProcessingElement interface{}

// IncomingFilter is invoked on message receipt, before the module's
// own HandleMessage. Returning ok=false consumes the message.
type IncomingFilter interface {
	Incoming(msg *Message) (*Message, bool)
}

// OutgoingFilter is invoked on message send, symmetric to
// IncomingFilter.
type OutgoingFilter interface {
	Outgoing(msg *Message) (*Message, bool)
}

// EventBracket brackets each event dispatch into the owning module.
type EventBracket interface {
	EventStart()
	EventEnd()
}

// runIncoming runs stack forward over msg; it returns ok=false as
// soon as any stage consumes the message.
func runIncoming(stack []ProcessingElement, msg *Message) (*Message, bool) {
	for _, pe := range stack {
		f, ok := pe.(IncomingFilter)
		if !ok {
			continue
		}
		msg, ok = f.Incoming(msg)
		if !ok {
			return nil, false
		}
	}
	return msg, true
}

// runOutgoing runs stack in reverse over msg, symmetric to
// runIncoming.
func runOutgoing(stack []ProcessingElement, msg *Message) (*Message, bool) {
	for i := len(stack) - 1; i >= 0; i-- {
		f, ok := stack[i].(OutgoingFilter)
		if !ok {
			continue
		}
		msg, ok = f.Outgoing(msg)
		if !ok {
			return nil, false
		}
	}
	return msg, true
}

// runEventStart fires EventStart on every stage that implements
// EventBracket, in declared order.
func runEventStart(stack []ProcessingElement) {
	for _, pe := range stack {
		if b, ok := pe.(EventBracket); ok {
			b.EventStart()
		}
	}
}

// runEventEnd fires EventEnd on every stage that implements
// EventBracket, in reverse order.
func runEventEnd(stack []ProcessingElement) {
	for i := len(stack) - 1; i >= 0; i-- {
		if b, ok := stack[i].(EventBracket); ok {
			b.EventEnd()
		}
	}
}
