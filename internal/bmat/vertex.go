// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bmat supplies the B-matrix multiplier: B(k2,k1), its inverse,
// and left/right products against an arbitrary matrix, either by dense
// multiplication or by the checkerboard bond-factor decomposition.
// Grounded on detsdw.cpp's computeBmatSDW/applyBondFactors*
// and on the updateInSlice's evMatrix lambda for the per-site vertex
// exponential.
package bmat

import (
	"github.com/pointlander/detqmcpt/internal/linalg"
)

// VertexBlock returns the dense 4×4 matrix e^{σΔτV} for a single site
// with field (φ0,φ1,φ2), cached cosh(Δτ|φ|)=c and sinh(Δτ|φ|)/|φ|=s.
// sign is σ ∈ {+1,-1}.
func VertexBlock(sign float64, phi [3]float64, c, s float64) [4][4]complex128 {
	var ev [4][4]complex128
	for i := 0; i < 4; i++ {
		ev[i][i] = complex(c, 0)
	}
	sig := complex(sign, 0)
	phi2s := sig * complex(phi[2]*s, 0)
	ev[0][2], ev[2][0] = phi2s, phi2s
	ev[1][3], ev[3][1] = -phi2s, -phi2s

	real03 := sign * phi[0] * s
	imag03 := -sign * phi[1] * s
	v03 := complex(real03, imag03)
	ev[0][3], ev[2][1] = v03, v03

	real12 := sign * phi[0] * s
	imag12 := sign * phi[1] * s
	v12 := complex(real12, imag12)
	ev[1][2], ev[3][0] = v12, v12
	return ev
}

// VertexMatrixDense assembles the full 4N×4N e^{σΔτV} by summing the
// per-site 4×4 blocks at block offsets {site, site+N, site+2N, site+3N},
// for reference/test use only ("Operations exposed").
func VertexMatrixDense(n int, sign float64, phiAt func(site int) [3]float64, coshAt, sinhAt func(site int) float64) *linalg.Matrix {
	m := linalg.NewMatrix(4*n, 4*n)
	for site := 0; site < n; site++ {
		block := VertexBlock(sign, phiAt(site), coshAt(site), sinhAt(site))
		for a := 0; a < 4; a++ {
			for b := 0; b < 4; b++ {
				if block[a][b] != 0 {
					m.Set(site+a*n, site+b*n, block[a][b])
				}
			}
		}
	}
	return m
}

// DenseDelta computes the local 4×4 Δ = e^{-Δτ V'(s)}·e^{+Δτ V(s)} − I of
// step 3: old field (phiOld,coshOld,sinhOld) vs. proposed field
// (phiNew,coshNew,sinhNew).
func DenseDelta(phiOld [3]float64, coshOld, sinhOld float64, phiNew [3]float64, coshNew, sinhNew float64) [4][4]complex128 {
	evOld := VertexBlock(+1, phiOld, coshOld, sinhOld)
	evNew := VertexBlock(-1, phiNew, coshNew, sinhNew)
	var delta [4][4]complex128
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum complex128
			for k := 0; k < 4; k++ {
				sum += evNew[i][k] * evOld[k][j]
			}
			delta[i][j] = sum
		}
	}
	for i := 0; i < 4; i++ {
		delta[i][i] -= 1
	}
	return delta
}
