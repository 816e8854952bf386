// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package net

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/heistp/desim"
)

// TopologyError is raised by a Loader at load time — never during
// dispatch, per spec section 7.
type TopologyError struct {
	Msg string
}

func (e *TopologyError) Error() string {
	return "net: topology error: " + e.Msg
}

func topologyErrorf(format string, a ...any) error {
	return &TopologyError{Msg: fmt.Sprintf(format, a...)}
}

// GateDef describes one gate cluster a ModuleDef declares.
type GateDef struct {
	Name string          `yaml:"name"`
	Size int             `yaml:"size"`
	Type GateServiceType `yaml:"-"`
	Typ  string          `yaml:"type"`
}

// ConnectionDef wires two gate-cluster endpoints together, optionally
// through a named link (channel metrics).
type ConnectionDef struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Link string `yaml:"link"`
}

// ModuleDef describes one module type: its gate clusters, its
// submodule field refs (name -> module-type symbol) and the
// connections wiring them together, exactly as spec section 6
// describes.
type ModuleDef struct {
	Parent      string            `yaml:"parent"`
	Gates       []GateDef         `yaml:"gates"`
	Submodules  map[string]string `yaml:"submodules"`
	Connections []ConnectionDef   `yaml:"connections"`
}

// LinkDef describes a named channel template, referenced by
// ConnectionDef.Link.
type LinkDef struct {
	Latency float64 `yaml:"latency"` // seconds
	Jitter  float64 `yaml:"jitter"`  // seconds
	Bitrate int64   `yaml:"bitrate"` // bits/s
}

// TopologyDef is the loader input IR of spec section 6.
type TopologyDef struct {
	Entry   string               `yaml:"entry"`
	Modules map[string]ModuleDef `yaml:"modules"`
	Links   map[string]LinkDef   `yaml:"links"`
}

// ModuleFactory constructs the ModuleState for a module-type symbol,
// given the module's assigned path. The loader is deliberately
// ignorant of concrete module types: callers register one factory
// per symbol used in a TopologyDef.
type ModuleFactory func(path ObjectPath) (ModuleState, error)

// Loader wires a TopologyDef's modules, gates and channels into a
// Network. It is the external-collaborator boundary named in spec
// section 1 — this package is not the NDL parser, only its consumer
// interface.
type Loader interface {
	Load(n *Network, topo TopologyDef, factories map[string]ModuleFactory) error
}

// YAMLLoader is a minimal, concrete Loader: it decodes a TopologyDef
// from YAML text and performs the cluster-expansion / connection
// wiring rules of spec section 6. It exists so Loader has one
// testable implementation, not so this module grows an NDL parser.
type YAMLLoader struct{}

// DecodeTopologyYAML decodes text into a TopologyDef.
func DecodeTopologyYAML(text string) (TopologyDef, error) {
	var topo TopologyDef
	if err := yaml.Unmarshal([]byte(text), &topo); err != nil {
		return TopologyDef{}, fmt.Errorf("net: decode topology: %w", err)
	}
	for sym, def := range topo.Modules {
		for i, g := range def.Gates {
			def.Gates[i].Type = parseGateServiceType(g.Typ)
			if def.Gates[i].Size == 0 {
				def.Gates[i].Size = 1
			}
		}
		topo.Modules[sym] = def
	}
	return topo, nil
}

func parseGateServiceType(s string) GateServiceType {
	switch s {
	case "input":
		return Input
	case "output":
		return Output
	default:
		return Undefined
	}
}

// Load implements Loader.
func (YAMLLoader) Load(n *Network, topo TopologyDef, factories map[string]ModuleFactory) error {
	if topo.Entry == "" {
		return topologyErrorf("topology has no entry module")
	}
	root, err := instantiate(n, topo, factories, topo.Entry, RootPath(), nil)
	if err != nil {
		return err
	}
	_ = root
	return nil
}

// instantiate recursively builds the module tree rooted at symbol,
// registers every module and gate with n, and wires every
// ConnectionDef once all of a module's submodules exist.
func instantiate(n *Network, topo TopologyDef, factories map[string]ModuleFactory, symbol string, path ObjectPath, parent *Module) (*Module, error) {
	def, ok := topo.Modules[symbol]
	if !ok {
		return nil, topologyErrorf("unknown module symbol %q", symbol)
	}
	factory, ok := factories[symbol]
	if !ok {
		return nil, topologyErrorf("no factory registered for module symbol %q", symbol)
	}

	state, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("net: construct module %q: %w", path, err)
	}
	m := NewModule(path, state)
	if parent != nil {
		parent.AddChild(m)
	}
	if err := n.RegisterModule(m); err != nil {
		return nil, err
	}

	for _, g := range def.Gates {
		desc := GateDescription{Owner: m, Name: g.Name, Size: g.Size, Type: g.Type}
		for i := 0; i < g.Size; i++ {
			m.AddGate(NewGate(desc, i))
		}
	}

	children := make(map[string][]*Module)
	for fieldRef, childSymbol := range def.Submodules {
		ref, err := parseFieldRef(fieldRef)
		if err != nil {
			return nil, err
		}
		if !ref.hasIndex {
			child, err := instantiate(n, topo, factories, childSymbol, path.Appended(ref.name), m)
			if err != nil {
				return nil, err
			}
			children[ref.name] = []*Module{child}
			continue
		}
		cluster := make([]*Module, ref.index)
		for i := 0; i < ref.index; i++ {
			childPath := path.Appended(fmt.Sprintf("%s[%d]", ref.name, i))
			child, err := instantiate(n, topo, factories, childSymbol, childPath, m)
			if err != nil {
				return nil, err
			}
			cluster[i] = child
		}
		children[ref.name] = cluster
	}

	for _, conn := range def.Connections {
		if err := wireConnection(topo, m, children, conn); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// fieldRef is a parsed "ident" or "ident[N]" reference, per spec
// section 6.
type fieldRef struct {
	name     string
	index    int
	hasIndex bool
}

func parseFieldRef(s string) (fieldRef, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '[')
	if open < 0 {
		return fieldRef{name: s}, nil
	}
	if !strings.HasSuffix(s, "]") {
		return fieldRef{}, topologyErrorf("malformed field ref %q", s)
	}
	n, err := strconv.Atoi(s[open+1 : len(s)-1])
	if err != nil || n < 0 {
		return fieldRef{}, topologyErrorf("malformed field ref index in %q", s)
	}
	return fieldRef{name: s[:open], index: n, hasIndex: true}, nil
}

// endpoint is a parsed connection endpoint: "gate[i]" (local) or
// "child[i]/gate[j]" (through a submodule), per spec section 6.
type endpoint struct {
	child fieldRef
	gate  fieldRef
	local bool
}

func parseEndpoint(s string) (endpoint, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 1 {
		g, err := parseFieldRef(parts[0])
		if err != nil {
			return endpoint{}, err
		}
		return endpoint{gate: g, local: true}, nil
	}
	c, err := parseFieldRef(parts[0])
	if err != nil {
		return endpoint{}, err
	}
	g, err := parseFieldRef(parts[1])
	if err != nil {
		return endpoint{}, err
	}
	return endpoint{child: c, gate: g}, nil
}

// resolveGates expands an endpoint to the concrete gates it names: a
// single gate if the endpoint carries an explicit index, otherwise
// every gate in the named cluster (a "cluster access").
func resolveGates(owner *Module, children map[string][]*Module, ep endpoint) ([]*Gate, error) {
	var mods []*Module
	if ep.local {
		mods = []*Module{owner}
	} else {
		var ok bool
		mods, ok = children[ep.child.name]
		if !ok {
			return nil, topologyErrorf("unknown submodule %q", ep.child.name)
		}
		if ep.child.hasIndex {
			if ep.child.index >= len(mods) {
				return nil, topologyErrorf("submodule index out of range: %s[%d]", ep.child.name, ep.child.index)
			}
			mods = []*Module{mods[ep.child.index]}
		}
	}

	var gates []*Gate
	for _, mod := range mods {
		if ep.gate.hasIndex {
			g, ok := mod.Gate(ep.gate.name, ep.gate.index)
			if !ok {
				return nil, topologyErrorf("unknown gate %s[%d] on %s", ep.gate.name, ep.gate.index, mod.Path())
			}
			gates = append(gates, g)
			continue
		}
		for _, g := range mod.Gates() {
			if g.Name() == ep.gate.name {
				gates = append(gates, g)
			}
		}
	}
	if len(gates) == 0 {
		return nil, topologyErrorf("gate ref %q resolved to no gates", ep.gate.name)
	}
	return gates, nil
}

// wireConnection resolves both endpoints of conn and links their
// gates, pairing equal-length clusters one-to-one, per spec section 6.
// A cluster "from" endpoint against a single "to" gate links every
// gate of the cluster to it. A single "from" gate against a cluster
// "to" endpoint is linked to each gate in turn, but a gate holds one
// next gate, so it ends up pointing only at the last gate of the
// cluster.
func wireConnection(topo TopologyDef, owner *Module, children map[string][]*Module, conn ConnectionDef) error {
	from, err := parseEndpoint(conn.From)
	if err != nil {
		return err
	}
	to, err := parseEndpoint(conn.To)
	if err != nil {
		return err
	}

	fromGates, err := resolveGates(owner, children, from)
	if err != nil {
		return err
	}
	toGates, err := resolveGates(owner, children, to)
	if err != nil {
		return err
	}

	var metrics *ChannelMetrics
	if conn.Link != "" {
		link, ok := topo.Links[conn.Link]
		if !ok {
			return topologyErrorf("unknown link %q", conn.Link)
		}
		const nanosPerSecond = 1e9
		m := ChannelMetrics{
			Bitrate: Bitrate(link.Bitrate),
			Latency: desim.Duration(link.Latency * nanosPerSecond),
			Jitter:  desim.Duration(link.Jitter * nanosPerSecond),
		}
		metrics = &m
	}

	switch {
	case len(fromGates) == len(toGates):
		for i := range fromGates {
			link(fromGates[i], toGates[i], metrics)
		}
	case len(fromGates) == 1:
		for _, g := range toGates {
			link(fromGates[0], g, metrics)
		}
	case len(toGates) == 1:
		for _, g := range fromGates {
			link(g, toGates[0], metrics)
		}
	default:
		return topologyErrorf("connection %s -> %s: cluster size mismatch (%d vs %d)",
			conn.From, conn.To, len(fromGates), len(toGates))
	}
	return nil
}

func link(from, to *Gate, metrics *ChannelMetrics) {
	from.SetNextGate(to)
	if metrics != nil {
		ch := NewChannel(from.Owner().Path().AppendedGate(from.Name()), *metrics)
		from.SetChannel(ch)
	}
}
