// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package net

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/heistp/desim"
)

// Kind is a message classifier similar to the TOS field in an IP
// packet: handlers and processing-stack elements may branch on it.
// Zero is unclassified.
type Kind uint16

// Sized is implemented by payloads that know their own wire size in
// bytes. Message.ByteLen checks for it via type assertion, and
// channels (see channel.go) size messages through it; a payload that
// doesn't implement it is treated as zero bytes.
type Sized interface {
	ByteLen() int
}

// BitSized is implemented by payloads whose natural size isn't a
// whole number of bytes (e.g. a short control ping). When present, it
// takes precedence over Sized for channel transmission-time
// calculations, which are defined in bits (spec section 4.3's
// bit_len/bitrate).
type BitSized interface {
	BitLen() int
}

// Message is a generic network message: a header plus an arbitrary
// payload, transcribed from
// original_source/des_core/src/net/message.rs's Message<T>, with the
// payload held as `any` instead of a generic type parameter (Go's
// generics don't buy anything here since the processing stack already
// dispatches on payload type via type assertion).
type Message struct {
	Kind Kind

	// ID is runtime-unique to this message. TreeID is shared by a
	// message and every clone derived from it, so a retransmission or
	// a protocol-stack wrapper can be traced back to its origin.
	ID     uuid.UUID
	TreeID uuid.UUID

	SenderPath ObjectPath
	TargetPath ObjectPath

	// LastGate is the gate this message most recently arrived through,
	// nil for a message that was scheduled rather than sent.
	LastGate  *Gate
	HopCount  int

	CreationTime desim.SimTime
	SendTime     desim.SimTime
	Timestamp    desim.SimTime

	Payload any
}

// NewMessage constructs a message with a fresh ID and TreeID rooted
// at that ID, addressed from sender to target and carrying payload,
// timestamped for delivery at t.
func NewMessage(kind Kind, sender, target ObjectPath, now, t desim.SimTime, payload any) *Message {
	id := uuid.New()
	return &Message{
		Kind:         kind,
		ID:           id,
		TreeID:       id,
		SenderPath:   sender,
		TargetPath:   target,
		CreationTime: now,
		Timestamp:    t,
		Payload:      payload,
	}
}

// IsSelfMessage reports whether sender and target name the same
// module, which marks this as a timer/self-event rather than a
// transported message (original's Message::is_self_msg).
func (m *Message) IsSelfMessage() bool {
	return m.SenderPath == m.TargetPath
}

// RegisterHop records a gate traversal.
func (m *Message) RegisterHop(g *Gate) {
	m.LastGate = g
	m.HopCount++
}

// SetArrival sets the message's current target and arrival gate, used
// when a message is handed off across a channel boundary.
func (m *Message) SetArrival(target ObjectPath, g *Gate) {
	m.TargetPath = target
	m.LastGate = g
}

// Clone returns a copy of m with a fresh ID but the same TreeID,
// mirroring the original's Clone impl (fresh message_id, shared
// message_tree_id).
func (m *Message) Clone() *Message {
	c := *m
	c.ID = uuid.New()
	return &c
}

// ByteLen returns the payload's wire size if it implements Sized,
// else 0.
func (m *Message) ByteLen() int {
	if s, ok := m.Payload.(Sized); ok {
		return s.ByteLen()
	}
	return 0
}

// BitLen returns the payload's wire size in bits: BitLen() if the
// payload implements BitSized, else ByteLen()*8.
func (m *Message) BitLen() int {
	if b, ok := m.Payload.(BitSized); ok {
		return b.BitLen()
	}
	return m.ByteLen() * 8
}

func (m *Message) String() string {
	return fmt.Sprintf("Message{id=%s kind=%d %s->%s}", m.ID, m.Kind, m.SenderPath, m.TargetPath)
}
