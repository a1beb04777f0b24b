// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package observable collects scalar, vector and key-value measurements
// tagged by the current control-parameter index, generalizing
// detqmc.h's ObservableHandler hierarchy (scalar/vector observables fed
// by a model's measure calls) into plain accumulators the run loop
// drives directly.
package observable

import "github.com/pointlander/detqmcpt/internal/lattice"

// Scalar accumulates a running mean and variance of a single
// floating-point quantity sampled once per measurement sweep.
type Scalar struct {
	Name    string
	count   int64
	sum     float64
	sumSq   float64
	samples []float64
}

// NewScalar creates an empty Scalar observable under name.
func NewScalar(name string) *Scalar {
	return &Scalar{Name: name}
}

// LoadScalar reconstructs a Scalar from a previously archived sample
// series, replaying each Add so count/sum/sumSq are consistent with the
// restored Samples (used when resuming from a checkpoint).
func LoadScalar(name string, samples []float64) *Scalar {
	s := NewScalar(name)
	for _, v := range samples {
		s.Add(v)
	}
	return s
}

// Add records one sample.
func (s *Scalar) Add(v float64) {
	s.count++
	s.sum += v
	s.sumSq += v * v
	s.samples = append(s.samples, v)
}

// Mean returns the running sample mean.
func (s *Scalar) Mean() float64 {
	if s.count == 0 {
		return 0
	}
	return s.sum / float64(s.count)
}

// Variance returns the variance of the recorded samples, normalised by
// their count n (not n-1); it is 0 for fewer than two samples.
func (s *Scalar) Variance() float64 {
	if s.count < 2 {
		return 0
	}
	mean := s.Mean()
	return s.sumSq/float64(s.count) - mean*mean
}

// Count returns the number of samples recorded so far.
func (s *Scalar) Count() int64 { return s.count }

// Samples returns the raw recorded series, for archival.
func (s *Scalar) Samples() []float64 { return s.samples }

// Vector accumulates a running mean of a fixed-length vector quantity,
// e.g. a per-site correlation profile.
type Vector struct {
	Name  string
	count int64
	sum   []float64
}

// NewVector creates an empty Vector observable of the given length.
func NewVector(name string, n int) *Vector {
	return &Vector{Name: name, sum: make([]float64, n)}
}

// Add records one vector sample; v must have the same length as sum.
func (vec *Vector) Add(v []float64) {
	vec.count++
	for i, x := range v {
		vec.sum[i] += x
	}
}

// Mean returns the running per-component sample mean.
func (vec *Vector) Mean() []float64 {
	out := make([]float64, len(vec.sum))
	if vec.count == 0 {
		return out
	}
	for i, s := range vec.sum {
		out[i] = s / float64(vec.count)
	}
	return out
}

// Set bundles the standard scalar observables of a replica at one
// control-parameter index, mirroring the handful of quantities
// detsdw.cpp's measure feeds its ObservableHandlers: phi's RMS norm, the
// per-slice acceptance ratio and the proposal step PhiDelta.
type Set struct {
	ControlParamIndex int
	NormPhi           *Scalar
	AccRatio          *Scalar
	PhiDelta          *Scalar
}

// NewSet builds a fresh observable Set for the given control-parameter
// index and lattice size.
func NewSet(controlParamIndex int, lat *lattice.Square) *Set {
	return &Set{
		ControlParamIndex: controlParamIndex,
		NormPhi:           NewScalar("normPhi"),
		AccRatio:          NewScalar("accRatio"),
		PhiDelta:          NewScalar("phiDelta"),
	}
}
