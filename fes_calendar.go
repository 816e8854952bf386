// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package desim

import (
	"container/heap"
	"sort"
)

// DefaultCalendarBuckets and DefaultCalendarSpan are reasonable
// defaults for NewCalendarFES, tuned for a sub-second-resolution
// simulation; callers with a different event density should retune
// both, as spec section 4.1 allows.
const (
	DefaultCalendarBuckets = 64
	DefaultCalendarSpan    = Duration(200 * 1e6) // 200ms, as nanoseconds
)

// calendarFES is the calendar-queue-with-overflow Future Event Set
// implementation from spec section 4.1, transcribed from
// original_source/des/src/core/runtime/future_event_set.rs's cqueue
// module: a zero-bucket FIFO for same-instant events, n ring-ordered
// finite buckets covering (time, time+n*span], and an overflow heap
// for anything beyond the window.
//
// Finite-bucket insertion uses sort.Search to binary-search the
// insertion point, the same technique the teacher's sim.go uses to
// keep its timer list sorted (timer.handleSim).
type calendarFES struct {
	n           int
	span        Duration
	upperBounds []SimTime

	zeroBucket []fesNode
	buckets    [][]fesNode
	overflow   fesHeap

	length     int
	time       SimTime
	nextCookie uint64
}

// NewCalendarFES returns a new calendar-queue FES with n finite
// buckets of width span, based at timeBase. n must be >= 2.
func NewCalendarFES(n int, span Duration, timeBase SimTime) FES {
	f := &calendarFES{
		n:    n,
		span: span,
	}
	f.resetBuckets(timeBase)
	return f
}

func (f *calendarFES) resetBuckets(timeBase SimTime) {
	f.upperBounds = make([]SimTime, f.n)
	f.buckets = make([][]fesNode, f.n)
	t := timeBase
	for i := 0; i < f.n; i++ {
		t = t.Add(f.span)
		f.upperBounds[i] = t
		f.buckets[i] = nil
	}
	f.zeroBucket = nil
	f.overflow = nil
	f.length = 0
	f.time = timeBase
}

func (f *calendarFES) Add(time SimTime, event Event) error {
	if time < f.time {
		return ErrPastEvent
	}
	node := fesNode{time, f.nextCookie, event}
	f.nextCookie++
	f.length++

	if time == f.time {
		f.zeroBucket = append(f.zeroBucket, node)
		return nil
	}

	for i := 0; i < f.n; i++ {
		if time > f.upperBounds[i] {
			continue
		}
		f.buckets[i] = insertSorted(f.buckets[i], node)
		return nil
	}

	heap.Push(&f.overflow, node)
	return nil
}

// insertSorted inserts node into a time-ordered bucket, preserving
// FIFO order among equal-time nodes, the same way sim.go's
// timer.handleSim finds its insertion point.
func insertSorted(bucket []fesNode, node fesNode) []fesNode {
	i := sort.Search(len(bucket), func(i int) bool {
		return bucket[i].time > node.time
	})
	bucket = append(bucket, fesNode{})
	copy(bucket[i+1:], bucket[i:])
	bucket[i] = node
	return bucket
}

func (f *calendarFES) FetchNext() (SimTime, Event, error) {
	if f.length == 0 {
		return 0, nil, ErrEmptyFES
	}

	// Events in bucket 0 at the current time were added before the
	// clock reached it, so they precede the zero bucket in FIFO order.
	if len(f.zeroBucket) > 0 && (len(f.buckets[0]) == 0 || f.buckets[0][0].time > f.time) {
		n := f.zeroBucket[0]
		f.zeroBucket = f.zeroBucket[1:]
		f.length--
		return n.time, n.event, nil
	}

	f.cleanupEmptyBuckets()

	n := f.buckets[0][0]
	f.buckets[0] = f.buckets[0][1:]
	f.length--
	f.time = n.time
	return n.time, n.event, nil
}

// cleanupEmptyBuckets shifts the bucket ring forward until bucket 0
// is non-empty, draining matured events out of the overflow heap into
// the newly opened trailing slot as it goes.
func (f *calendarFES) cleanupEmptyBuckets() {
	for len(f.buckets[0]) == 0 {
		for i := 0; i < f.n-1; i++ {
			f.buckets[i], f.buckets[i+1] = f.buckets[i+1], f.buckets[i]
			f.upperBounds[i], f.upperBounds[i+1] = f.upperBounds[i+1], f.upperBounds[i]
		}

		bound := f.upperBounds[f.n-2].Add(f.span)
		f.upperBounds[f.n-1] = bound
		f.buckets[f.n-1] = nil

		for len(f.overflow) > 0 && f.overflow[0].time <= bound {
			n := heap.Pop(&f.overflow).(fesNode)
			f.buckets[f.n-1] = append(f.buckets[f.n-1], n)
		}
	}
}

func (f *calendarFES) Len() int {
	return f.length
}

func (f *calendarFES) IsEmpty() bool {
	return f.length == 0
}

func (f *calendarFES) Reset(timeBase SimTime) {
	f.resetBuckets(timeBase)
}
