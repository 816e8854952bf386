// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

// Package desim implements the core of a discrete-event network
// simulator: a Future Event Set, a single-threaded dispatch loop that
// drives virtual time forward, and the scaffolding a richer network
// runtime (see the net subpackage) is built on top of.
package desim

import (
	"fmt"
	"math"
	"time"
)

// SimTime is a virtual simulation timestamp, measured in nanoseconds.
// It is totally ordered and non-decreasing over the life of a Runtime.
type SimTime int64

// Duration is a span of virtual time. It reuses time.Duration's
// nanosecond representation so that conversions to/from wall-clock
// durations (for Channel latency/jitter, user timers, etc.) are free.
type Duration = time.Duration

const (
	// SimTimeZero is the start of simulation time.
	SimTimeZero SimTime = 0
	// SimTimeMax is the largest representable SimTime.
	SimTimeMax SimTime = math.MaxInt64
)

// FromSeconds returns the SimTime corresponding to the given number of
// seconds after SimTimeZero.
func FromSeconds(s float64) SimTime {
	return SimTime(s * float64(time.Second))
}

// Add returns t+d, saturating at SimTimeMax instead of overflowing and
// at SimTimeZero instead of going negative.
func (t SimTime) Add(d Duration) SimTime {
	if d > 0 && int64(t) > int64(SimTimeMax)-int64(d) {
		return SimTimeMax
	}
	if d < 0 && int64(t) < math.MinInt64-int64(d) {
		return 0
	}
	if d < 0 && t >= 0 && int64(t)+int64(d) < 0 {
		return 0
	}
	return t + SimTime(d)
}

// Sub returns the Duration elapsed between other and t (t-other).
func (t SimTime) Sub(other SimTime) Duration {
	return Duration(t - other)
}

// Before reports whether t is strictly earlier than other.
func (t SimTime) Before(other SimTime) bool {
	return t < other
}

// After reports whether t is strictly later than other.
func (t SimTime) After(other SimTime) bool {
	return t > other
}

// Compare returns -1, 0 or 1 as t is before, equal to, or after other.
func (t SimTime) Compare(other SimTime) int {
	switch {
	case t < other:
		return -1
	case t > other:
		return 1
	default:
		return 0
	}
}

// Duration returns t as a time.Duration since SimTimeZero.
func (t SimTime) Duration() time.Duration {
	return time.Duration(t)
}

// Seconds returns t as a floating point number of seconds since
// SimTimeZero.
func (t SimTime) Seconds() float64 {
	return time.Duration(t).Seconds()
}

func (t SimTime) String() string {
	return fmt.Sprintf("%.9f", t.Seconds())
}
