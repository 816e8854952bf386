// SPDX-License-Identifier: GPL-3.0
// Copyright 2024 Pete Heist

package desim

import "math/rand"

// RNG is the Runtime's single seeded source of randomness. Every draw
// of randomness anywhere in a simulation — channel jitter, a handler's
// own dice roll — must come from here, so that an identical seed plus
// an identical sequence of initial events reproduces an identical run
// (spec section 4.3's "Determinism").
type RNG struct {
	r *rand.Rand
}

// NewRNG returns an RNG seeded deterministically from seed.
func NewRNG(seed int64) *RNG {
	return &RNG{r: rand.New(rand.NewSource(seed))}
}

// Float64 returns a pseudo-random number in [0.0, 1.0).
func (g *RNG) Float64() float64 {
	return g.r.Float64()
}

// UniformDuration returns a pseudo-random Duration in [0, max).
func (g *RNG) UniformDuration(max Duration) Duration {
	if max <= 0 {
		return 0
	}
	return Duration(g.r.Int63n(int64(max)))
}

// Intn returns a pseudo-random int in [0, n).
func (g *RNG) Intn(n int) int {
	return g.r.Intn(n)
}
