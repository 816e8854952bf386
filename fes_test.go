// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package desim

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEvent appends its own ordinal to a shared slice on
// Dispatch, letting a test observe dispatch order directly.
type recordingEvent struct {
	ordinal int
	out     *[]int
}

func (e recordingEvent) Dispatch(rt *Runtime) error {
	*e.out = append(*e.out, e.ordinal)
	return nil
}

func newFESConstructors() map[string]func() FES {
	return map[string]func() FES{
		"heap": func() FES { return NewHeapFES() },
		"calendar": func() FES {
			return NewCalendarFES(DefaultCalendarBuckets, DefaultCalendarSpan, SimTimeZero)
		},
	}
}

func TestFESBasicOrdering(t *testing.T) {
	for name, newFES := range newFESConstructors() {
		t.Run(name, func(t *testing.T) {
			f := newFES()
			require.True(t, f.IsEmpty())

			var out []int
			require.NoError(t, f.Add(30, recordingEvent{3, &out}))
			require.NoError(t, f.Add(10, recordingEvent{1, &out}))
			require.NoError(t, f.Add(20, recordingEvent{2, &out}))

			assert.Equal(t, 3, f.Len())

			for i := 0; i < 3; i++ {
				_, ev, err := f.FetchNext()
				require.NoError(t, err)
				require.NoError(t, ev.Dispatch(nil))
			}
			assert.Equal(t, []int{1, 2, 3}, out)
			assert.True(t, f.IsEmpty())
		})
	}
}

func TestFESFIFOWithinTimestamp(t *testing.T) {
	for name, newFES := range newFESConstructors() {
		t.Run(name, func(t *testing.T) {
			f := newFES()
			var out []int
			for i := 0; i < 10; i++ {
				require.NoError(t, f.Add(100, recordingEvent{i, &out}))
			}
			for i := 0; i < 10; i++ {
				_, ev, err := f.FetchNext()
				require.NoError(t, err)
				require.NoError(t, ev.Dispatch(nil))
			}
			for i, v := range out {
				assert.Equal(t, i, v)
			}
		})
	}
}

func TestFESEmptyFetchError(t *testing.T) {
	for name, newFES := range newFESConstructors() {
		t.Run(name, func(t *testing.T) {
			f := newFES()
			_, _, err := f.FetchNext()
			assert.ErrorIs(t, err, ErrEmptyFES)
		})
	}
}

func TestFESPastEventRejected(t *testing.T) {
	for name, newFES := range newFESConstructors() {
		t.Run(name, func(t *testing.T) {
			f := newFES()
			require.NoError(t, f.Add(100, recordingEvent{0, nil}))
			_, _, err := f.FetchNext()
			require.NoError(t, err)
			err = f.Add(50, recordingEvent{0, nil})
			assert.ErrorIs(t, err, ErrPastEvent)
		})
	}
}

func TestFESReset(t *testing.T) {
	for name, newFES := range newFESConstructors() {
		t.Run(name, func(t *testing.T) {
			f := newFES()
			require.NoError(t, f.Add(100, recordingEvent{0, nil}))
			f.Reset(500)
			assert.True(t, f.IsEmpty())
			require.NoError(t, f.Add(500, recordingEvent{0, nil}))
			assert.ErrorIs(t, f.Add(499, recordingEvent{0, nil}), ErrPastEvent)
		})
	}
}

// TestFESRandomInsertionOrdering is scenario S4 from spec section 8:
// 100,000 events with monotonically increasing times (randomized
// micro-gaps), shuffled on insertion, must dequeue in time order, with
// FIFO of insertion order preserved within any equal-time run.
func TestFESRandomInsertionOrdering(t *testing.T) {
	const n = 100000
	r := rand.New(rand.NewSource(42))

	type scheduled struct {
		time  SimTime
		order int
	}
	events := make([]scheduled, n)
	var t0 SimTime
	for i := 0; i < n; i++ {
		if r.Intn(4) != 0 {
			t0 = t0.Add(Duration(r.Intn(1000)))
		}
		events[i] = scheduled{time: t0, order: i}
	}

	shuffled := make([]scheduled, n)
	copy(shuffled, events)
	r.Shuffle(n, func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	expected := make([]scheduled, n)
	copy(expected, shuffled)
	sort.SliceStable(expected, func(i, j int) bool { return expected[i].time < expected[j].time })

	for name, newFES := range newFESConstructors() {
		t.Run(name, func(t *testing.T) {
			f := newFES()
			var out []int
			for _, s := range shuffled {
				require.NoError(t, f.Add(s.time, recordingEvent{s.order, &out}))
			}
			require.Equal(t, n, f.Len())

			for i := 0; i < n; i++ {
				_, ev, err := f.FetchNext()
				require.NoError(t, err)
				require.NoError(t, ev.Dispatch(nil))
			}

			require.Len(t, out, n)
			for i, ord := range out {
				assert.Equal(t, expected[i].order, ord)
			}
		})
	}
}
