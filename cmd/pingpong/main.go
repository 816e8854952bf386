// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Command pingpong hand-wires the two-module topology of scenario S1:
// Ping schedules an interval timer every second for 30 seconds,
// sending a 100-bit ping each time; Pong replies immediately on
// receipt. It mirrors the way the teacher's main.go hand-wires its
// four-stage pipeline and calls Sim.Run.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/heistp/desim"
	"github.com/heistp/desim/net"
)

const (
	kindTimer net.Kind = iota
	kindPing
	kindPong
)

// pingPayload is a 100-bit control message: short enough that it
// isn't a whole number of bytes, so it implements net.BitSized
// directly rather than net.Sized.
type pingPayload struct{}

func (pingPayload) BitLen() int { return 100 }

type ping struct {
	gate *net.Gate
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
		ctx.Send(ctx.NewMessage(kindPing, pingPayload{}), p.gate)
		if next := ctx.Now().Add(time.Second); next.Seconds() < 30 {
			ctx.ScheduleAt(ctx.NewMessage(kindTimer, nil), next)
		}
	case kindPong:
		p.recv++
	}
	return nil
}

type pong struct {
	gate *net.Gate
	sent int
	recv int
}

func (p *pong) HandleMessage(msg *net.Message, ctx *net.Context) error {
	if msg.Kind != kindPing {
		return nil
	}
	p.recv++
	ctx.Send(ctx.NewMessage(kindPong, pingPayload{}), p.gate)
	p.sent++
	return nil
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	network := net.NewNetwork(desim.NewHeapFES(), 1, 0, desim.FromSeconds(60))
	network.Runtime().Trace = logger

	pingState := &ping{}
	pongState := &pong{}

	pingModule := net.NewModule(net.NewObjectPath("ping"), pingState)
	pongModule := net.NewModule(net.NewObjectPath("pong"), pongState)

	pingOut := net.NewGate(net.GateDescription{Owner: pingModule, Name: "out", Size: 1}, 0)
	pongIn := net.NewGate(net.GateDescription{Owner: pongModule, Name: "in", Size: 1}, 0)
	pongOut := net.NewGate(net.GateDescription{Owner: pongModule, Name: "out", Size: 1}, 0)
	pingIn := net.NewGate(net.GateDescription{Owner: pingModule, Name: "in", Size: 1}, 0)

	metrics := net.ChannelMetrics{Bitrate: 1_000_000 * net.Bps, Latency: 20 * time.Millisecond}
	pingOut.SetChannel(net.NewChannel(pingModule.Path().AppendedGate("out"), metrics))
	pongOut.SetChannel(net.NewChannel(pongModule.Path().AppendedGate("out"), metrics))

	pingOut.SetNextGate(pongIn)
	pongOut.SetNextGate(pingIn)

	pingModule.AddGate(pingOut)
	pingModule.AddGate(pingIn)
	pongModule.AddGate(pongIn)
	pongModule.AddGate(pongOut)

	pingState.gate = pingOut
	pongState.gate = pongOut

	if err := network.RegisterModule(pingModule); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := network.RegisterModule(pongModule); err != nil {
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
