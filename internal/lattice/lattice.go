// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lattice builds neighbor tables for periodic cubic lattices,
// grounded on _examples/original_source/neighbortable.h's
// PeriodicCubicLatticeNearestNeighbors / PeriodicSquareLatticeNearestNeighbors
// / PeriodicChainNearestNeighbors, and on pointlander-qmc's own periodic
// (a+1)%N / (a-1+N)%N indexing idiom used throughout pointlander-qmc's
// Ising/Model functions.
package lattice

// Direction indexes one of the 2*d nearest-neighbor directions of a
// d-dimensional periodic cubic lattice, ordered +x,-x,+y,-y,... as in
// neighbortable.h's NeighDir enum.
type Direction int

const (
	XPlus Direction = iota
	XMinus
	YPlus
	YMinus
)

// Square is a periodic L×L square lattice neighbor table: the spatial
// lattice the SDW field lives on (N = L²).
type Square struct {
	L int
	N int
	// neigh[dir][site] is the neighbor of site in direction dir.
	neigh [4][]int
}

// NewSquare builds the neighbor table for an L×L periodic square lattice.
func NewSquare(l int) *Square {
	n := l * l
	s := &Square{L: l, N: n}
	for d := range s.neigh {
		s.neigh[d] = make([]int, n)
	}
	coord := func(site int) (x, y int) {
		return site % l, site / l
	}
	index := func(x, y int) int {
		x = ((x % l) + l) % l
		y = ((y % l) + l) % l
		return y*l + x
	}
	for site := 0; site < n; site++ {
		x, y := coord(site)
		s.neigh[XPlus][site] = index(x+1, y)
		s.neigh[XMinus][site] = index(x-1, y)
		s.neigh[YPlus][site] = index(x, y+1)
		s.neigh[YMinus][site] = index(x, y-1)
	}
	return s
}

// Neighbor returns the neighbor of site in direction dir.
func (s *Square) Neighbor(dir Direction, site int) int {
	return s.neigh[dir][site]
}

// Neighbors returns the four nearest neighbors of site in +x,-x,+y,-y order.
func (s *Square) Neighbors(site int) [4]int {
	return [4]int{
		s.neigh[XPlus][site],
		s.neigh[XMinus][site],
		s.neigh[YPlus][site],
		s.neigh[YMinus][site],
	}
}

// SumNeighbors3 sums a [3]float64-valued field over the four spatial
// neighbors of site, used by the gradient term of ΔS_φ and by
// the PeriodicChainNearestNeighbors-style time-axis sum.
func (s *Square) SumNeighbors3(site int, at func(site int) [3]float64) [3]float64 {
	var sum [3]float64
	for _, d := range []Direction{XPlus, XMinus, YPlus, YMinus} {
		v := at(s.Neighbor(d, site))
		sum[0] += v[0]
		sum[1] += v[1]
		sum[2] += v[2]
	}
	return sum
}

// CheckerboardBonds returns the bonds in direction dir belonging to
// color (0 or 1), partitioning all bonds of that direction into two
// disjoint sets that together cover every bond exactly once — the
// 2-sublattice coloring the checkerboard decomposition needs (only
// valid when L is even, enforced by the caller).
func (s *Square) CheckerboardBonds(dir Direction, color int) [][2]int {
	var bonds [][2]int
	for site := 0; site < s.N; site++ {
		x, y := site%s.L, site/s.L
		var coord int
		switch dir {
		case XPlus:
			coord = x
		case YPlus:
			coord = y
		default:
			panic("lattice: CheckerboardBonds only defined for XPlus/YPlus")
		}
		if coord%2 != color {
			continue
		}
		bonds = append(bonds, [2]int{site, s.Neighbor(dir, site)})
	}
	return bonds
}

// Chain is a periodic 1-d neighbor table over the imaginary-time axis,
// used for the kEarlier/kLater lookups of ΔS_φ's kinetic term. The live
// slice range is 1..M inclusive (slice 0 is the unused sentinel every
// field array still allocates); Plus/Minus wrap within that 1..M range,
// since slice M and slice 1 represent the same periodic boundary.
type Chain struct {
	M int
}

// NewChain builds a periodic chain neighbor table over m time slices.
func NewChain(m int) *Chain {
	return &Chain{M: m}
}

// Plus returns k+1 wrapped into [1,M], so Plus(M) == 1.
func (c *Chain) Plus(k int) int {
	return k%c.M + 1
}

// Minus returns k-1 wrapped into [1,M], so Minus(1) == M.
func (c *Chain) Minus(k int) int {
	return (k-2+c.M)%c.M + 1
}
