// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package desim

import "container/heap"

// heapFES is the binary-heap baseline Future Event Set implementation
// from spec section 4.1: O(log n) per operation, correct and simple.
//
// The heap itself is modeled the same way the teacher's packet.go
// models a packet reorder buffer (pktbuf): a slice type implementing
// container/heap.Interface, generalized from ordering by Seq to
// ordering by (SimTime, cookie).
type heapFES struct {
	h        fesHeap
	nextCookie uint64
	lastTime SimTime
}

// NewHeapFES returns a new FES backed by a container/heap binary heap.
func NewHeapFES() FES {
	f := &heapFES{}
	f.h = make(fesHeap, 0, 64)
	heap.Init(&f.h)
	return f
}

func (f *heapFES) Add(time SimTime, event Event) error {
	if time < f.lastTime {
		return ErrPastEvent
	}
	heap.Push(&f.h, fesNode{time, f.nextCookie, event})
	f.nextCookie++
	return nil
}

func (f *heapFES) FetchNext() (SimTime, Event, error) {
	if f.h.Len() == 0 {
		return 0, nil, ErrEmptyFES
	}
	n := heap.Pop(&f.h).(fesNode)
	f.lastTime = n.time
	return n.time, n.event, nil
}

func (f *heapFES) Len() int {
	return f.h.Len()
}

func (f *heapFES) IsEmpty() bool {
	return f.h.Len() == 0
}

func (f *heapFES) Reset(timeBase SimTime) {
	f.h = f.h[:0]
	f.nextCookie = 0
	f.lastTime = timeBase
}

// fesHeap is a min-heap of fesNode ordered by (time, cookie), using
// the heap package the same way pktbuf does in the teacher's
// packet.go.
type fesHeap []fesNode

// Len implements heap.Interface.
func (h fesHeap) Len() int {
	return len(h)
}

// Less implements heap.Interface.
func (h fesHeap) Less(i, j int) bool {
	return fesLess(h[i], h[j])
}

// Swap implements heap.Interface.
func (h fesHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

// Push implements heap.Interface.
func (h *fesHeap) Push(x any) {
	*h = append(*h, x.(fesNode))
}

// Pop implements heap.Interface.
func (h *fesHeap) Pop() any {
	o := *h
	n := len(o)
	t := o[n-1]
	*h = o[:n-1]
	return t
}
