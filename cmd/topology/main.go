// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Command topology builds the same ping/pong topology as cmd/pingpong,
// but wires it through net.YAMLLoader instead of hand-calling
// RegisterModule/AddGate/SetChannel, exercising the loader's topology
// document, factory registry and connection wiring end to end.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/heistp/desim"
	"github.com/heistp/desim/net"
)

const topologyYAML = `
entry: root
modules:
  root:
    submodules:
      ping: ping
      pong: pong
    connections:
      - from: ping/out
        to: pong/in
        link: wire
      - from: pong/out
        to: ping/in
        link: wire
  ping:
    gates:
      - name: out
        size: 1
        type: output
      - name: in
        size: 1
        type: input
  pong:
    gates:
      - name: in
        size: 1
        type: input
      - name: out
        size: 1
        type: output
links:
  wire:
    latency: 0.02
    jitter: 0
    bitrate: 1000000
`

const (
	kindTimer net.Kind = iota
	kindPing
	kindPong
)

// pingPayload is a 100-bit control message, short enough that it
// implements net.BitSized directly rather than net.Sized.
type pingPayload struct{}

func (pingPayload) BitLen() int { return 100 }

// ping and pong resolve their own outbound gate via ctx.Module().Gate
// on every send, rather than caching it at wiring time: under the
// loader, a factory only gets a path, not the gates the loader will
// go on to attach.
type ping struct {
	sent int
	recv int
}

func (p *ping) AtSimStart(stage int, ctx *net.Context) error {
	ctx.ScheduleIn(ctx.NewMessage(kindTimer, nil), 0)
	return nil
}

func (p *ping) HandleMessage(msg *net.Message, ctx *net.Context) error {
	switch msg.Kind {
	case kindTimer:
		p.sent++
		gate, _ := ctx.Module().Gate("out", 0)
		ctx.Send(ctx.NewMessage(kindPing, pingPayload{}), gate)
		if next := ctx.Now().Add(time.Second); next.Seconds() < 30 {
			ctx.ScheduleAt(ctx.NewMessage(kindTimer, nil), next)
		}
	case kindPong:
		p.recv++
	}
	return nil
}

type pong struct {
	sent int
	recv int
}

func (p *pong) HandleMessage(msg *net.Message, ctx *net.Context) error {
	if msg.Kind != kindPing {
		return nil
	}
	p.recv++
	gate, _ := ctx.Module().Gate("out", 0)
	ctx.Send(ctx.NewMessage(kindPong, pingPayload{}), gate)
	p.sent++
	return nil
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	topo, err := net.DecodeTopologyYAML(topologyYAML)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	pingState := &ping{}
	pongState := &pong{}

	factories := map[string]net.ModuleFactory{
		"root": func(path net.ObjectPath) (net.ModuleState, error) { return bareModule{}, nil },
		"ping": func(path net.ObjectPath) (net.ModuleState, error) { return pingState, nil },
		"pong": func(path net.ObjectPath) (net.ModuleState, error) { return pongState, nil },
	}

	network := net.NewNetwork(desim.NewHeapFES(), 1, 0, desim.FromSeconds(60))
	network.Runtime().Trace = logger

	if err := (net.YAMLLoader{}).Load(network, topo, factories); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := network.Start(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	res := network.Run()
	fmt.Printf("finished: reason=%s final_time=%s dispatched=%d handled=%d\n",
		res.Reason, res.FinalTime, res.Counters.Dispatched, res.Counters.Handled)
	fmt.Printf("pings_sent=%d pings_recv=%d pongs_sent=%d pongs_recv=%d\n",
		pingState.sent, pongState.recv, pongState.sent, pingState.recv)
}

// bareModule is the root module's state: it owns no gates of its own
// and never receives a message directly.
type bareModule struct{}

func (bareModule) HandleMessage(msg *net.Message, ctx *net.Context) error { return nil }
