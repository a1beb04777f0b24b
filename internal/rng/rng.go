// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rng provides the seedable per-replica random stream used
// throughout the sweep engine and the coordinator. It generalizes
// pointlander-qmc's single rand.New(rand.NewSource(seed)) idiom (see its
// Original/Ising/Model functions, each of which opens its own rand.Rand)
// into a stream that is explicitly derived from a base seed, a
// simulation index and a process index.
package rng

import "math/rand"

// Stream is a per-replica random source: uniform reals, integer ranges
// and Gaussian draws, all backed by a single math/rand.Rand.
type Stream struct {
	r *rand.Rand
}

// Seed combines a base seed with a simulation index and a process index
// into a single int64 seed. The mixing uses the same kind of
// large-odd-constant multiply-xor pointlander-qmc's Ising/System code
// relies on implicitly via rand's own splitmix, kept explicit here so
// two different (simindex, processIndex) pairs never collide for small
// bases.
func Seed(base int64, simIndex, processIndex int) int64 {
	s := uint64(base)
	s ^= uint64(simIndex)*0x9E3779B97F4A7C15 + 0x1
	s ^= uint64(processIndex)*0xBF58476D1CE4E5B9 + 0x2
	s ^= s >> 33
	s *= 0xFF51AFD7ED558CCD
	s ^= s >> 33
	return int64(s)
}

// New creates a Stream seeded deterministically from seed.
func New(seed int64) *Stream {
	return &Stream{r: rand.New(rand.NewSource(seed))}
}

// Float64 returns a uniform real in [0,1).
func (s *Stream) Float64() float64 {
	return s.r.Float64()
}

// Uniform returns a uniform real in [lo, hi).
func (s *Stream) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.r.Float64()
}

// Intn returns a uniform integer in [0,n).
func (s *Stream) Intn(n int) int {
	return s.r.Intn(n)
}

// NormFloat64 returns a standard-normal Gaussian draw.
func (s *Stream) NormFloat64() float64 {
	return s.r.NormFloat64()
}

// Vec3 draws each of three components uniformly in [-limit, +limit]; used
// for the random initial field and for the symmetric local-move proposal.
func (s *Stream) Vec3(limit float64) [3]float64 {
	return [3]float64{
		s.Uniform(-limit, limit),
		s.Uniform(-limit, limit),
		s.Uniform(-limit, limit),
	}
}

// State captures a stream's seed and draw count: math/rand.Rand does not
// expose its internal state for serialization, so the persisted archive
// instead stores the seed that produced the stream plus the number of
// draws consumed, and Restore fast-forwards by re-drawing that many
// Float64 values. This avoids depending on an unexported rand.Source
// layout. The replay is exact when every counted draw consumed one
// source value, as Float64, Uniform and Vec3 do; Intn and NormFloat64
// are counted once but can consume more than one source value, and only
// draws made through the Counting methods are counted.
type State struct {
	Seed  int64
	Draws uint64
}

// Counting wraps a Stream and counts draws so its State can be
// checkpointed and restored exactly.
type Counting struct {
	*Stream
	seed  int64
	draws uint64
}

// NewCounting creates a Counting stream from a seed.
func NewCounting(seed int64) *Counting {
	return &Counting{Stream: New(seed), seed: seed}
}

// RestoreCounting recreates a Counting stream from a checkpointed State,
// fast-forwarding to the exact same point in the sequence.
func RestoreCounting(st State) *Counting {
	c := &Counting{Stream: New(st.Seed), seed: st.Seed}
	for i := uint64(0); i < st.Draws; i++ {
		c.Stream.r.Float64()
	}
	c.draws = st.Draws
	return c
}

// State snapshots the stream for checkpointing.
func (c *Counting) State() State {
	return State{Seed: c.seed, Draws: c.draws}
}

func (c *Counting) Float64() float64 {
	c.draws++
	return c.Stream.Float64()
}

func (c *Counting) Uniform(lo, hi float64) float64 {
	c.draws++
	return lo + (hi-lo)*c.Stream.r.Float64()
}

func (c *Counting) Intn(n int) int {
	c.draws++
	return c.Stream.r.Intn(n)
}

func (c *Counting) NormFloat64() float64 {
	c.draws++
	return c.Stream.r.NormFloat64()
}

func (c *Counting) Vec3(limit float64) [3]float64 {
	return [3]float64{
		c.Uniform(-limit, limit),
		c.Uniform(-limit, limit),
		c.Uniform(-limit, limit),
	}
}
