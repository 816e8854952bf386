// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package net

import "fmt"

// GateServiceType restricts how a gate cluster may be wired.
type GateServiceType int

const (
	// Input gates accept an incoming connection in a topology document.
	Input GateServiceType = iota
	// Output gates may be pointed at another gate.
	Output
	// Undefined gates carry no restriction.
	Undefined
)

// GateDescription describes a gate cluster: its owning module, name,
// cluster size and service type, shared by every gate in the cluster
// (transcribed from original's GateDescription).
type GateDescription struct {
	Owner *Module
	Name  string
	Size  int
	Type  GateServiceType
}

// IsCluster reports whether the description names more than one gate.
func (d GateDescription) IsCluster() bool {
	return d.Size != 1
}

// Gate is a message insertion or extraction point on a module, one
// element of a GateDescription's cluster. Chained gates (next/previous)
// form the path a message travels as it crosses module boundaries,
// transcribed from original_source/des/src/net/gate.rs.
type Gate struct {
	description GateDescription
	pos         int

	channel *Channel

	nextGate     *Gate
	previousGate *Gate
}

// NewGate constructs a gate at position pos within description's
// cluster.
func NewGate(description GateDescription, pos int) *Gate {
	return &Gate{description: description, pos: pos}
}

// Pos returns the gate's position within its cluster.
func (g *Gate) Pos() int {
	return g.pos
}

// Size returns the size of the gate's cluster.
func (g *Gate) Size() int {
	return g.description.Size
}

// Name returns the gate cluster's human-readable name.
func (g *Gate) Name() string {
	return g.description.Name
}

// ServiceType returns the gate's service type.
func (g *Gate) ServiceType() GateServiceType {
	return g.description.Type
}

// Owner returns the module that owns this gate.
func (g *Gate) Owner() *Module {
	return g.description.Owner
}

// Channel returns the channel attached to this gate, or nil.
func (g *Gate) Channel() *Channel {
	return g.channel
}

// SetChannel attaches a channel to this gate.
func (g *Gate) SetChannel(c *Channel) {
	g.channel = c
}

// NextGate returns the next gate in the chain, or nil at a chain end.
func (g *Gate) NextGate() *Gate {
	return g.nextGate
}

// PreviousGate returns the previous gate in the chain, or nil at a
// chain start.
func (g *Gate) PreviousGate() *Gate {
	return g.previousGate
}

// SetNextGate links next as the gate following g in the chain, and
// links g as next's previous gate.
func (g *Gate) SetNextGate(next *Gate) {
	next.previousGate = g
	g.nextGate = next
}

// PathStart follows previousGate links to the first gate in the
// chain g belongs to. It returns g itself if g has no previous gate.
func (g *Gate) PathStart() *Gate {
	current := g
	for current.previousGate != nil {
		current = current.previousGate
	}
	return current
}

// PathEnd follows nextGate links to the last gate in the chain g
// belongs to. It returns g itself if g has no next gate.
func (g *Gate) PathEnd() *Gate {
	current := g
	for current.nextGate != nil {
		current = current.nextGate
	}
	return current
}

func (g *Gate) nameWithPos() string {
	if g.description.IsCluster() {
		return fmt.Sprintf("%s[%d]", g.Name(), g.pos)
	}
	return g.Name()
}

// String renders "name[pos] (input|output)", matching the original's
// Gate::str.
func (g *Gate) String() string {
	switch g.description.Type {
	case Input:
		return fmt.Sprintf("%s (input)", g.nameWithPos())
	case Output:
		return fmt.Sprintf("%s (output)", g.nameWithPos())
	default:
		return g.nameWithPos()
	}
}

// Path returns the gate's full tree path: owner path + ":" + name[pos].
func (g *Gate) Path() string {
	return fmt.Sprintf("%s:%s", g.description.Owner.Path(), g.nameWithPos())
}
