// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package net

import (
	"fmt"

	"github.com/heistp/desim"
)

// Bitrate is a channel's transmission rate in bits per second. Unlike
// the teacher's standalone bitrate.go, this type carries no
// general-purpose unit-conversion API of its own — transmissionTime
// below does the bits/bitrate division directly, and String exists
// only to make a channel's trace line human-readable.
type Bitrate int64

const (
	Bps  Bitrate = 1
	Kbps         = 1000 * Bps
	Mbps         = 1000 * Kbps
	Gbps         = 1000 * Mbps
	Tbps         = 1000 * Gbps
)

func (b Bitrate) String() string {
	switch {
	case b >= Tbps:
		return fmt.Sprintf("%.2fTbps", float64(b)/float64(Tbps))
	case b >= Gbps:
		return fmt.Sprintf("%.2fGbps", float64(b)/float64(Gbps))
	case b >= Mbps:
		return fmt.Sprintf("%.2fMbps", float64(b)/float64(Mbps))
	case b >= Kbps:
		return fmt.Sprintf("%.2fKbps", float64(b)/float64(Kbps))
	default:
		return fmt.Sprintf("%dbps", int64(b))
	}
}

// Bytes is a number of bytes, used for a channel's queue capacity and
// a payload's byte-granular wire size. Only the subset of the
// teacher's bytes.go that QueueCapacity and Message.ByteLen actually
// need survives here.
type Bytes uint64

const (
	Byte     Bytes = 1
	Kilobyte       = 1000 * Byte
	Megabyte       = 1000 * Kilobyte
	Gigabyte       = 1000 * Megabyte
)

func (b Bytes) String() string {
	return fmt.Sprintf("%dB", uint64(b))
}

// DropPolicy governs what a channel does with a message that arrives
// while the channel is already busy transmitting.
type DropPolicy int

const (
	// Drop discards the message immediately.
	Drop DropPolicy = iota
	// Queue holds the message in a FIFO until capacity (in bytes, see
	// ChannelMetrics.QueueCapacity) is exhausted, then drops it.
	Queue
)

// ChannelMetrics describes a channel's capabilities, independent of
// its current busy/queued state, transcribed from
// original_source/des/src/net/channel.rs's ChannelMetrics.
type ChannelMetrics struct {
	Bitrate Bitrate
	Latency desim.Duration
	Jitter  desim.Duration

	Policy        DropPolicy
	QueueCapacity Bytes // only meaningful when Policy == Queue
}

// transmissionTime is the time it takes to put msg's bits onto the
// medium; zero for a zero-bitrate (instantaneous) channel.
func (m ChannelMetrics) transmissionTime(msg *Message) desim.Duration {
	if m.Bitrate == 0 {
		return 0
	}
	return desim.Duration(float64(msg.BitLen()) / float64(m.Bitrate) * 1e9)
}

// deliveryDuration is latency + transmission time + a uniform jitter
// sample in [0, jitter), drawn from rng. Fixes spec's Open Question 3
// (uniform, not symmetric ± jitter/2).
func (m ChannelMetrics) deliveryDuration(msg *Message, rng *desim.RNG) desim.Duration {
	d := m.Latency + m.transmissionTime(msg)
	if m.Jitter > 0 {
		d += rng.UniformDuration(m.Jitter)
	}
	return d
}

func (m ChannelMetrics) String() string {
	return fmt.Sprintf("ChannelMetrics{bitrate=%s latency=%s jitter=%s}", m.Bitrate, m.Latency, m.Jitter)
}

// Channel is a one-directional delayed link attached to a gate's
// outbound side, transcribed from
// original_source/des/src/net/channel.rs. Busy-tracking is explicit
// (busyUntil plus a ChannelUnbusy self-event scheduled by the
// network runtime) rather than inferred, per the design notes'
// "channel busy-tracking" guidance.
type Channel struct {
	path    ObjectPath
	metrics ChannelMetrics

	busyUntil desim.SimTime
	queue     []*Message
	queued    Bytes // sum of queued messages' byte length, tracked against QueueCapacity
}

// NewChannel constructs an initially-idle channel.
func NewChannel(path ObjectPath, metrics ChannelMetrics) *Channel {
	return &Channel{path: path, metrics: metrics}
}

// Path returns the channel's object path.
func (c *Channel) Path() ObjectPath {
	return c.path
}

// Metrics returns the channel's static capabilities.
func (c *Channel) Metrics() ChannelMetrics {
	return c.metrics
}

// IsBusy reports whether the channel is still transmitting the bits
// of a previous message onto the medium.
func (c *Channel) IsBusy(now desim.SimTime) bool {
	return c.busyUntil > now
}

// BusyUntil returns the time the channel finishes transmitting the
// message currently on the medium, or SimTimeZero if idle.
func (c *Channel) BusyUntil() desim.SimTime {
	return c.busyUntil
}

// setBusyUntil marks the channel busy until t.
func (c *Channel) setBusyUntil(t desim.SimTime) {
	c.busyUntil = t
}

// unbusy resets the channel's busy state.
func (c *Channel) unbusy() {
	c.busyUntil = desim.SimTimeZero
}

// enqueue attempts to push msg onto the channel's pending queue,
// reporting whether there was capacity. Only meaningful under the
// Queue policy.
func (c *Channel) enqueue(msg *Message) bool {
	n := Bytes(msg.ByteLen())
	if c.queued+n > c.metrics.QueueCapacity {
		return false
	}
	c.queue = append(c.queue, msg)
	c.queued += n
	return true
}

// dequeue pops the next queued message, or nil if the queue is
// empty.
func (c *Channel) dequeue() *Message {
	if len(c.queue) == 0 {
		return nil
	}
	msg := c.queue[0]
	c.queue = c.queue[1:]
	c.queued -= Bytes(msg.ByteLen())
	return msg
}

// QueueLen returns the number of messages currently queued.
func (c *Channel) QueueLen() int {
	return len(c.queue)
}
