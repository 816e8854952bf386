// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package net

import "strings"

// ObjectPath is a unique, dotted identifier for a module or gate,
// naming its parental inheritance ("node.link[0].queue"). It is a
// small value type over a shared immutable string, transcribed from
// original_source/des/src/net/path.rs: Name/Parent/Appended never
// mutate the receiver, they return a new value, so a path handed to
// one module can be freely shared with another.
type ObjectPath struct {
	data              string
	lastElementOffset int
	length            int
	isGate            bool
}

// RootPath returns the path of the simulation root.
func RootPath() ObjectPath {
	return ObjectPath{}
}

// NewObjectPath parses a dotted path string such as "node.child.leaf".
// An empty string is the root path.
func NewObjectPath(s string) ObjectPath {
	var lastElementOffset, length int
	for i, c := range s {
		if c == '.' {
			lastElementOffset = i + 1
			length++
		}
	}
	if len(s) != lastElementOffset {
		length++
	}
	return ObjectPath{data: s, lastElementOffset: lastElementOffset, length: length}
}

// IsRoot reports whether p points to the simulation root.
func (p ObjectPath) IsRoot() bool {
	return p.length == 0
}

// IsGate reports whether p points to a gate rather than a module.
func (p ObjectPath) IsGate() bool {
	return p.isGate
}

// Len returns the depth of the path; the root has depth 0.
func (p ObjectPath) Len() int {
	return p.length
}

// Name returns the last path component.
func (p ObjectPath) Name() string {
	return p.data[p.lastElementOffset:]
}

// String returns the full dotted path.
func (p ObjectPath) String() string {
	return p.data
}

// LoggerScope returns the path for use as a structured logging scope,
// rendering the root as "@root" rather than an empty string.
func (p ObjectPath) LoggerScope() string {
	if p.IsRoot() {
		return "@root"
	}
	return p.data
}

// Parent returns the path to the parent object and true, or the zero
// value and false if p is already the root.
func (p ObjectPath) Parent() (ObjectPath, bool) {
	if p.length == 0 {
		return ObjectPath{}, false
	}

	cut := p.lastElementOffset
	if cut > 0 {
		cut--
	}
	data := p.data[:cut]

	var lastElementOffset int
	if i := strings.LastIndexByte(data, '.'); i >= 0 {
		lastElementOffset = i + 1
	}

	return ObjectPath{
		data:              data,
		lastElementOffset: lastElementOffset,
		length:            p.length - 1,
	}, true
}

// NonzeroParent is Parent, except it also reports false if the parent
// would be the root.
func (p ObjectPath) NonzeroParent() (ObjectPath, bool) {
	parent, ok := p.Parent()
	if !ok || parent.IsRoot() {
		return ObjectPath{}, false
	}
	return parent, true
}

// Appended returns a new path with a module name component appended.
// It panics if p already points to a gate: a gate path is a leaf.
func (p ObjectPath) Appended(name string) ObjectPath {
	if p.isGate {
		panic("net: cannot append to a path that points to a gate")
	}
	if name == "" {
		return p
	}

	data := p.data
	lastElementOffset := p.lastElementOffset
	if p.length != 0 {
		lastElementOffset = len(data) + 1
		data += "."
	}
	data += name

	return ObjectPath{
		data:              data,
		lastElementOffset: lastElementOffset,
		length:            p.length + 1,
	}
}

// AppendedGate returns a new path pointing at a gate named name on
// the module p refers to.
func (p ObjectPath) AppendedGate(name string) ObjectPath {
	g := p.Appended(name)
	g.isGate = true
	return g
}
