// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package net

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrParameterLocked is returned by Insert when the target leaf has
// active readers; never fatal, per spec section 7.
var ErrParameterLocked = fmt.Errorf("net: parameter has active readers")

// parEntry is one leaf value plus its outstanding reader count. A
// write is refused in place while readers > 0, transcribed from
// original_source/des/src/net/par/mod.rs's AtomicUsize-guarded insert.
type parEntry struct {
	value   string
	readers int
}

// parBranch matches one path component on the way down the tree.
type parBranch struct {
	any     bool
	segment string
	node    *ParTree
}

func (b *parBranch) matchesRead(segment string) bool {
	return b.any || b.segment == segment
}

func (b *parBranch) matchesWrite(segment string) bool {
	if b.any {
		return segment == "*"
	}
	return b.segment == segment
}

// ParTree is a hierarchical, wildcard-matching key/value store, one
// node per path component, transcribed from
// original_source/des/src/net/par/mod.rs's ParTree. Exact matches an
// exact segment name; Any ("*") matches every segment on read but
// only another literal "*" on write.
type ParTree struct {
	pars     map[string]*parEntry
	branches []*parBranch
}

// NewParTree returns an empty parameter tree.
func NewParTree() *ParTree {
	return &ParTree{pars: make(map[string]*parEntry)}
}

// ParLease is a handle to a leaf value held while a reader is
// consulting it, modeling the refcounted read lock described in
// spec section 4.6, and original_source/des/src/net/par/mod.rs's
// Par<Exists> typestate (Go has no linear types, so Release is the
// explicit equivalent of the original's Drop impl).
type ParLease struct {
	entry    *parEntry
	value    string
	released bool
}

// Value returns the leaf's value at the time the lease was taken.
func (l *ParLease) Value() string {
	return l.value
}

// Release drops the read lock. Calling Release twice is a no-op.
func (l *ParLease) Release() {
	if l.released {
		return
	}
	l.entry.readers--
	l.released = true
}

// Get resolves key (a dotted path, possibly containing literal "*"
// wildcard components on the tree side, matched against on read) and
// returns a lease over its value, or false if no leaf matches.
func (t *ParTree) Get(key string) (*ParLease, bool) {
	entry := t.getRLock(key)
	if entry == nil {
		return nil, false
	}
	return &ParLease{entry: entry, value: entry.value}, true
}

func (t *ParTree) getRLock(key string) *parEntry {
	comp, rest, more := cutPath(key)
	if !more {
		entry, ok := t.pars[key]
		if !ok {
			return nil
		}
		entry.readers++
		return entry
	}
	for _, b := range t.branches {
		if !b.matchesRead(comp) {
			continue
		}
		if e := b.node.getRLock(rest); e != nil {
			return e
		}
	}
	return nil
}

// Insert writes value at key, creating intermediate branches as
// needed. It fails (returning ErrParameterLocked) if the leaf
// already exists and has active readers.
func (t *ParTree) Insert(key, value string) error {
	if !t.insert(key, value) {
		return ErrParameterLocked
	}
	return nil
}

func (t *ParTree) insert(key, value string) bool {
	comp, rest, more := cutPath(key)
	if !more {
		entry, ok := t.pars[key]
		if !ok {
			entry = &parEntry{}
			t.pars[key] = entry
		}
		if entry.readers != 0 {
			return false
		}
		entry.value = value
		return true
	}

	for _, b := range t.branches {
		if b.matchesWrite(comp) {
			return b.node.insert(rest, value)
		}
	}

	node := NewParTree()
	ok := node.insert(rest, value)
	t.branches = append(t.branches, &parBranch{
		any:     comp == "*",
		segment: comp,
		node:    node,
	})
	return ok
}

// cutPath splits key on its first ".", reporting whether a remainder
// follows.
func cutPath(key string) (comp, rest string, more bool) {
	i := strings.IndexByte(key, '.')
	if i < 0 {
		return key, "", false
	}
	return key[:i], key[i+1:], true
}

// Build bulk-loads yamlText (a nested YAML document) into the tree:
// the document is flattened into dotted paths, with scalars and
// lists rendered as fmt-formatted string leaf values, matching spec
// section 4.6's "values are strings, caller parses".
func (t *ParTree) Build(yamlText string) error {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(yamlText), &doc); err != nil {
		return fmt.Errorf("net: decode parameter document: %w", err)
	}
	flat := make(map[string]string)
	flatten("", doc, flat)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := t.Insert(k, flat[k]); err != nil {
			return fmt.Errorf("net: insert parameter %q: %w", k, err)
		}
	}
	return nil
}

func flatten(prefix string, v any, out map[string]string) {
	switch val := v.(type) {
	case map[string]any:
		for k, sub := range val {
			flatten(joinPath(prefix, k), sub, out)
		}
	case map[any]any:
		for k, sub := range val {
			flatten(joinPath(prefix, fmt.Sprint(k)), sub, out)
		}
	default:
		out[prefix] = fmt.Sprint(val)
	}
}

func joinPath(prefix, comp string) string {
	if prefix == "" {
		return comp
	}
	return prefix + "." + comp
}
