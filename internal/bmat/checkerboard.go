// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bmat

import (
	"math"

	"github.com/pointlander/detqmcpt/internal/lattice"
	"github.com/pointlander/detqmcpt/internal/linalg"
	"github.com/pointlander/detqmcpt/internal/sdw"
)

// applyBondRowsLeft mutates a in place, applying the 2-row hyperbolic
// bond factor (cosh, sign*sinh) to every bond in dir across all four
// band-spin blocks of a ("2-row Givens-like update per
// bond"). Grounded on detsdw.cpp's applyBondFactorsLeft. Bonds of one
// color are disjoint, but the two colors share sites and do not commute:
// a sign=-1 pass applies color 0 then color 1 (the factor P = C1·C0), and
// a sign=+1 pass applies color 1 then color 0, which is exactly P^{-1}.
func applyBondRowsLeft(lat *lattice.Square, a *linalg.Matrix, dir lattice.Direction, cosh, sinh, sign float64) {
	n := lat.N
	c := complex(cosh, 0)
	sgnSinh := complex(sign*sinh, 0)
	colors := [2]int{0, 1}
	if sign > 0 {
		colors = [2]int{1, 0}
	}
	for _, color := range colors {
		for _, bond := range lat.CheckerboardBonds(dir, color) {
			i, j := bond[0], bond[1]
			for _, off := range []int{0, n, 2 * n, 3 * n} {
				ri, rj := off+i, off+j
				rowI, rowJ := a.Row(ri), a.Row(rj)
				for k := range rowI {
					newI := c*rowI[k] + sgnSinh*rowJ[k]
					newJ := sgnSinh*rowI[k] + c*rowJ[k]
					rowI[k], rowJ[k] = newI, newJ
				}
				a.SetRow(ri, rowI)
				a.SetRow(rj, rowJ)
			}
		}
	}
}

// applyBondColsRight mutates a in place, applying the bond factor to
// columns (the right-multiplication analogue of applyBondRowsLeft).
// Grounded on detsdw.cpp's applyBondFactorsRight. A sign=-1 pass applies
// color 1 then color 0 to columns, i.e. A*P with the same P = C1·C0 as
// applyBondRowsLeft; a sign=+1 pass applies color 0 then color 1, i.e.
// A*P^{-1}.
func applyBondColsRight(lat *lattice.Square, a *linalg.Matrix, dir lattice.Direction, cosh, sinh, sign float64) {
	n := lat.N
	c := complex(cosh, 0)
	sgnSinh := complex(sign*sinh, 0)
	colors := [2]int{1, 0}
	if sign > 0 {
		colors = [2]int{0, 1}
	}
	for _, color := range colors {
		for _, bond := range lat.CheckerboardBonds(dir, color) {
			i, j := bond[0], bond[1]
			for _, off := range []int{0, n, 2 * n, 3 * n} {
				ci, cj := off+i, off+j
				for row := 0; row < a.Rows; row++ {
					vi, vj := a.At(row, ci), a.At(row, cj)
					newI := c*vi + sgnSinh*vj
					newJ := sgnSinh*vi + c*vj
					a.Set(row, ci, newI)
					a.Set(row, cj, newJ)
				}
			}
		}
	}
}

// checkerboardK applies the single-slice checkerboard approximation of
// e^{sign*Δτ K} to a's rows (forward propagation when sign=-1, matching
// the dense e^{-Δτ K} convention elsewhere in this package), including
// the aggregated μ factor. The code order Hor-then-Ver realizes the
// approximation e^{sign Δτ K} ≈ Ver·Hor for a single slice — see
// checkerboardKInvLeft / checkerboardKRight for why the *right*
// multiplication and the inverse must apply the two bond directions in
// the opposite order (Open Question about the apparent typo
// in the original right-multiply routine: whichever order reproduces
// (A*Hor)*Ver = A*(Hor*Ver) for the actual factor ordering is correct,
// and that order is NOT the same as the left-multiply code order).
func checkerboardKLeft(h *sdw.Hopping, lat *lattice.Square, mu, dtau float64, a *linalg.Matrix, sign float64) *linalg.Matrix {
	out := a.Clone()
	applyBondRowsLeft(lat, out, lattice.XPlus, h.CoshHor, h.SinhHor, sign)
	applyBondRowsLeft(lat, out, lattice.YPlus, h.CoshVer, h.SinhVer, sign)
	scaleInPlace(out, math.Exp(-sign*dtau*mu))
	return out
}

// checkerboardKRight applies e^{sign*Δτ K} on the right of a. Since the
// left-multiply factor is Ver·Hor (applied Hor-then-Ver to rows), the
// right-multiply A*(Ver·Hor) = (A*Ver)*Hor requires the opposite bond
// order, Ver-then-Hor, on columns.
func checkerboardKRight(h *sdw.Hopping, lat *lattice.Square, mu, dtau float64, a *linalg.Matrix, sign float64) *linalg.Matrix {
	out := a.Clone()
	applyBondColsRight(lat, out, lattice.YPlus, h.CoshVer, h.SinhVer, sign)
	applyBondColsRight(lat, out, lattice.XPlus, h.CoshHor, h.SinhHor, sign)
	scaleInPlace(out, math.Exp(-sign*dtau*mu))
	return out
}

// checkerboardKInvLeft applies (e^{sign*Δτ K})^{-1} on the left of a.
// The inverse of Ver·Hor is Hor^{-1}·Ver^{-1}, so (Hor^{-1}·Ver^{-1})*A
// requires applying Ver^{-1} first, then Hor^{-1}, on rows — the
// opposite order from the forward left-multiply.
func checkerboardKInvLeft(h *sdw.Hopping, lat *lattice.Square, mu, dtau float64, a *linalg.Matrix, sign float64) *linalg.Matrix {
	out := a.Clone()
	applyBondRowsLeft(lat, out, lattice.YPlus, h.CoshVer, h.SinhVer, -sign)
	applyBondRowsLeft(lat, out, lattice.XPlus, h.CoshHor, h.SinhHor, -sign)
	scaleInPlace(out, math.Exp(sign*dtau*mu))
	return out
}

// checkerboardKInvRight applies (e^{sign*Δτ K})^{-1} on the right of a:
// A*(Hor^{-1}·Ver^{-1}) = (A*Hor^{-1})*Ver^{-1}, Hor^{-1} first then
// Ver^{-1} on columns.
func checkerboardKInvRight(h *sdw.Hopping, lat *lattice.Square, mu, dtau float64, a *linalg.Matrix, sign float64) *linalg.Matrix {
	out := a.Clone()
	applyBondColsRight(lat, out, lattice.XPlus, h.CoshHor, h.SinhHor, -sign)
	applyBondColsRight(lat, out, lattice.YPlus, h.CoshVer, h.SinhVer, -sign)
	scaleInPlace(out, math.Exp(sign*dtau*mu))
	return out
}

func scaleInPlace(m *linalg.Matrix, s float64) {
	factor := complex(s, 0)
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			m.Set(i, j, m.At(i, j)*factor)
		}
	}
}
