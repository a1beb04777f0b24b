// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdw

import (
	"math"

	"github.com/pointlander/detqmcpt/internal/lattice"
	"github.com/pointlander/detqmcpt/internal/linalg"
)

// Band indexes the two bands the SDW vertex mixes ("4
// bands-of-spin blocks of size N", paired up into 2 bands of 2N each).
type Band int

const (
	BandX Band = iota
	BandY
)

// Hopping owns the single-particle hopping+chemical-potential matrix K
// and its dense propagator e^{-Δτ K} per band, plus the scalar
// coefficients the checkerboard decomposition needs. Grounded on
// detsdw.cpp's hopHor/hopVer/sinhHopHor/coshHopHor member setup in the
// DetSDW constructor.
type Hopping struct {
	lat *lattice.Square
	n int

	// PropK[band] = e^{-Δτ K_band}, dense 2N×2N, built once and
	// immutable thereafter.
	PropK [2]*linalg.Matrix

	// Checkerboard bond coefficients, shared by both bands since Params
	// carries a single (THor,TVer) amplitude pair: cosh(-Δτ t) and
	// sinh(-Δτ t) for the horizontal/vertical bond factors. The caller
	// supplies the σ ∈ {+1,-1} sign (forward vs. inverse propagation)
	// when applying a bond factor.
	CoshHor, SinhHor float64
	CoshVer, SinhVer float64
}

// NewHopping builds K for both bands (a 2N×2N block made of an N×N
// nearest-neighbor tight-binding matrix minus μ on the diagonal, repeated
// identically across the two spin blocks) and exponentiates it once.
func NewHopping(p Params, lat *lattice.Square) *Hopping {
	n := lat.N
	h := &Hopping{
		lat: lat,
		n: n,
		CoshHor: math.Cosh(-p.Dtau * p.THor),
		SinhHor: math.Sinh(-p.Dtau * p.THor),
		CoshVer: math.Cosh(-p.Dtau * p.TVer),
		SinhVer: math.Sinh(-p.Dtau * p.TVer),
	}
	k := buildK(lat, p.THor, p.TVer, p.Mu)
	prop := linalg.Expm(scale(k, -p.Dtau))
	h.PropK[BandX] = prop
	h.PropK[BandY] = prop.Clone()
	return h
}

// buildK constructs the 2N×2N single-particle matrix: two identical
// N×N nearest-neighbor hopping blocks (one per spin) minus μ on the
// diagonal, block-diagonal in spin as describes.
func buildK(lat *lattice.Square, tHor, tVer, mu float64) *linalg.Matrix {
	n := lat.N
	k := linalg.NewMatrix(2*n, 2*n)
	bonds := []struct {
		dir lattice.Direction
		t float64
	}{
		{lattice.XPlus, tHor},
		{lattice.YPlus, tVer},
	}
	for spin := 0; spin < 2; spin++ {
		off := spin * n
		for site := 0; site < n; site++ {
			k.Add(off+site, off+site, complex(-mu, 0))
			for _, bond := range bonds {
				nb := lat.Neighbor(bond.dir, site)
				k.Add(off+site, off+nb, complex(-bond.t, 0))
				k.Add(off+nb, off+site, complex(-bond.t, 0))
			}
		}
	}
	return k
}

func scale(m *linalg.Matrix, s float64) *linalg.Matrix {
	out := m.Clone()
	factor := complex(s, 0)
	for i := 0; i < out.Rows; i++ {
		for j := 0; j < out.Cols; j++ {
			out.Set(i, j, out.At(i, j)*factor)
		}
	}
	return out
}
