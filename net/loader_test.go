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

func bareFactory(path ObjectPath) (ModuleState, error) {
	return bareState{}, nil
}

func TestYAMLLoaderAtomFieldRefs(t *testing.T) {
	topo, err := DecodeTopologyYAML(`
entry: root
modules:
  root:
    submodules:
      ping: node
      pong: node
    connections:
      - from: ping/out
        to: pong/in
        link: fast
  node:
    gates:
      - name: out
        size: 1
        type: output
      - name: in
        size: 1
        type: input
links:
  fast:
    latency: 0.02
    jitter: 0
    bitrate: 1000000
`)
	require.NoError(t, err)

	network := NewNetwork(desim.NewHeapFES(), 1, 0, desim.SimTimeMax)
	factories := map[string]ModuleFactory{"root": bareFactory, "node": bareFactory}
	require.NoError(t, (YAMLLoader{}).Load(network, topo, factories))

	ping, ok := network.ModuleByPath(NewObjectPath("ping"))
	require.True(t, ok)
	pong, ok := network.ModuleByPath(NewObjectPath("pong"))
	require.True(t, ok)

	pingOut, ok := ping.Gate("out", 0)
	require.True(t, ok)
	pongIn, ok := pong.Gate("in", 0)
	require.True(t, ok)

	assert.Same(t, pongIn, pingOut.NextGate())
	require.NotNil(t, pingOut.Channel())
	assert.Equal(t, 1_000_000*Bps, pingOut.Channel().Metrics().Bitrate)
}

func TestYAMLLoaderClusterFieldRefsPairwise(t *testing.T) {
	topo, err := DecodeTopologyYAML(`
entry: root
modules:
  root:
    submodules:
      hub: node
      worker[3]: node
    connections:
      - from: hub/fanout
        to: worker/in
  node:
    gates:
      - name: fanout
        size: 3
        type: output
      - name: in
        size: 1
        type: input
`)
	require.NoError(t, err)

	network := NewNetwork(desim.NewHeapFES(), 1, 0, desim.SimTimeMax)
	factories := map[string]ModuleFactory{"root": bareFactory, "node": bareFactory}
	require.NoError(t, (YAMLLoader{}).Load(network, topo, factories))

	hub, ok := network.ModuleByPath(NewObjectPath("hub"))
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		worker, ok := network.ModuleByPath(NewObjectPath("worker[" + string(rune('0'+i)) + "]"))
		require.True(t, ok, "worker %d should be registered", i)

		hubGate, ok := hub.Gate("fanout", i)
		require.True(t, ok)
		workerIn, ok := worker.Gate("in", 0)
		require.True(t, ok)

		assert.Same(t, workerIn, hubGate.NextGate(), "fanout[%d] should pair with worker[%d]'s in gate", i, i)
	}
}

func TestYAMLLoaderClusterSizeMismatchIsTopologyError(t *testing.T) {
	topo, err := DecodeTopologyYAML(`
entry: root
modules:
  root:
    submodules:
      hub: node
      worker[3]: node
    connections:
      - from: hub/fanout
        to: worker/in
  node:
    gates:
      - name: fanout
        size: 2
        type: output
      - name: in
        size: 1
        type: input
`)
	require.NoError(t, err)

	network := NewNetwork(desim.NewHeapFES(), 1, 0, desim.SimTimeMax)
	factories := map[string]ModuleFactory{"root": bareFactory, "node": bareFactory}
	err = (YAMLLoader{}).Load(network, topo, factories)

	require.Error(t, err)
	var topoErr *TopologyError
	require.True(t, errors.As(err, &topoErr))
	assert.Contains(t, topoErr.Error(), "cluster size mismatch")
}

func TestYAMLLoaderUnknownEntryIsTopologyError(t *testing.T) {
	network := NewNetwork(desim.NewHeapFES(), 1, 0, desim.SimTimeMax)
	err := (YAMLLoader{}).Load(network, TopologyDef{}, nil)
	require.Error(t, err)
	var topoErr *TopologyError
	require.True(t, errors.As(err, &topoErr))
}

func TestYAMLLoaderUnknownSubmoduleSymbolIsTopologyError(t *testing.T) {
	topo, err := DecodeTopologyYAML(`
entry: root
modules:
  root:
    submodules:
      orphan: missing
`)
	require.NoError(t, err)

	network := NewNetwork(desim.NewHeapFES(), 1, 0, desim.SimTimeMax)
	factories := map[string]ModuleFactory{"root": bareFactory}
	err = (YAMLLoader{}).Load(network, topo, factories)

	require.Error(t, err)
	var topoErr *TopologyError
	require.True(t, errors.As(err, &topoErr))
	assert.Contains(t, topoErr.Error(), "missing")
}

func TestDecodeTopologyYAMLDefaultsGateSize(t *testing.T) {
	topo, err := DecodeTopologyYAML(`
entry: root
modules:
  root:
    gates:
      - name: out
        type: output
`)
	require.NoError(t, err)
	assert.Equal(t, 1, topo.Modules["root"].Gates[0].Size)
	assert.Equal(t, Output, topo.Modules["root"].Gates[0].Type)
}
