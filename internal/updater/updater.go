// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package updater implements the local Metropolis updater: proposing a
// field move, evaluating the bosonic action change and the 4x4
// Sherman-Morrison-Woodbury determinant ratio, and refreshing the
// Green's function by a rank-4 outer-product correction on acceptance.
// Grounded closely on detsdw.cpp's updateInSlice.
package updater

import (
	"math"

	"github.com/pointlander/detqmcpt/internal/bmat"
	"github.com/pointlander/detqmcpt/internal/linalg"
	"github.com/pointlander/detqmcpt/internal/rng"
	"github.com/pointlander/detqmcpt/internal/sdw"
)

// Updater walks the sites of a single time slice, proposing and
// accepting/rejecting local field moves against the current Green's
// function.
type Updater struct {
	Model *sdw.Model
}

// New binds an Updater to model.
func New(model *sdw.Model) *Updater {
	return &Updater{Model: model}
}

// UpdateSlice performs one local-update pass over every site of slice,
// mutating G in place on each acceptance and refreshing phi's caches. If
// thermalizing, PhiDelta is tuned afterwards via the model's adaptive
// scheme.
func (u *Updater) UpdateSlice(slice int, g *linalg.Matrix, stream *rng.Counting, thermalizing bool) {
	model := u.Model
	n := model.N()
	accepted := 0.0
	for site := 0; site < n; site++ {
		if u.proposeAndAccept(site, slice, g, stream) {
			accepted++
		}
	}
	model.RecordAcceptance(accepted / float64(n))
	if thermalizing {
		model.AdjustPhiDelta()
	}
}

// proposeAndAccept proposes a new field value at (site,slice), evaluates
// its acceptance probability, and applies the update if accepted,
// returning whether the move was accepted.
func (u *Updater) proposeAndAccept(site, slice int, g *linalg.Matrix, stream *rng.Counting) bool {
	model := u.Model
	n := model.N()
	dtau := model.Params.Dtau

	oldPhi := model.Field.At(site, slice)
	delta := stream.Vec3(model.PhiDelta)
	newPhi := [3]float64{oldPhi[0] + delta[0], oldPhi[1] + delta[1], oldPhi[2] + delta[2]}

	dsPhi := model.DeltaSPhi(site, slice, newPhi)
	propSPhi := math.Exp(-dsPhi)

	coshOld, sinhOld := model.Field.Cosh(site, slice), model.Field.Sinh(site, slice)
	coshNew, sinhNew := sdw.CoshSinh(dtau, newPhi)
	deltaBlock := bmat.DenseDelta(oldPhi, coshOld, sinhOld, newPhi, coshNew, sinhNew)

	rows := sparseRows(deltaBlock, g, site, n)
	det, invRows := invertRows(rows, site, n)
	propSFermion := real(det)

	prop := propSPhi * propSFermion
	if !(prop > 1.0 || stream.Float64() < prop) {
		return false
	}

	model.Field.Set(site, slice, newPhi, dtau)
	applyRankFourUpdate(g, invRows, site, n)
	return true
}

// sparseRows computes the four non-zero rows {site,site+N,site+2N,
// site+3N} of Δ·(I − G) (step 4), cost O(N).
func sparseRows(deltaBlock [4][4]complex128, g *linalg.Matrix, site, n int) [4][]complex128 {
	dim := 4 * n
	var rows [4][]complex128
	for r := 0; r < 4; r++ {
		row := make([]complex128, dim)
		for dc := 0; dc < 4; dc++ {
			coeff := deltaBlock[r][dc]
			if coeff == 0 {
				continue
			}
			gRow := g.Row(site + dc*n)
			for col := 0; col < dim; col++ {
				row[col] -= coeff * gRow[col]
			}
			row[site+dc*n] += coeff
		}
		rows[r] = row
	}
	return rows
}

// invertRows computes det(I + Δ(I−G)) and the corresponding rows of
// [I + Δ(I−G)]^{-1} iteratively across l=0..3 (step 5),
// following detsdw.cpp's in-place Gauss-Jordan-style elimination over
// just the four pivot columns {site, site+N, site+2N, site+3N}.
func invertRows(rows [4][]complex128, site, n int) (complex128, [4][]complex128) {
	det := complex(1, 0)
	pivotCol := func(l int) int { return site + l*n }
	for l := 0; l < 4; l++ {
		row := append([]complex128(nil), rows[l]...)
		for k := l - 1; k >= 0; k-- {
			row[pivotCol(k)] = 0
		}
		for k := l - 1; k >= 0; k-- {
			coeff := rows[l][pivotCol(k)]
			if coeff == 0 {
				continue
			}
			for j := range row {
				row[j] += coeff * rows[k][j]
			}
		}
		divisor := complex(1, 0) + row[pivotCol(l)]
		newRow := make([]complex128, len(row))
		for j := range row {
			newRow[j] = -row[j] / divisor
		}
		newRow[pivotCol(l)] += 1
		rows[l] = newRow
		for k := 0; k < l; k++ {
			factor := rows[k][pivotCol(l)] / divisor
			if factor == 0 {
				continue
			}
			for j := range rows[k] {
				rows[k][j] -= factor * row[j]
			}
		}
		det *= divisor
	}
	return det, rows
}

// applyRankFourUpdate computes G' = G·[I + Δ(I−G)]^{-1} = G + G·invRows
// and overwrites g with it, following detsdw.cpp's gTimesInvRows
// construction (step 5's final sentence, "G ← G +
// G[:,site+bN]·rows_b").
func applyRankFourUpdate(g *linalg.Matrix, invRows [4][]complex128, site, n int) {
	dim := 4 * n
	// Undo the already-included diagonal 1s so invRows holds only the
	// correction term.
	invRows[0][site] -= 1
	invRows[1][site+n] -= 1
	invRows[2][site+2*n] -= 1
	invRows[3][site+3*n] -= 1

	cols := [4]int{site, site + n, site + 2*n, site + 3*n}
	for row := 0; row < dim; row++ {
		var gCols [4]complex128
		for b := 0; b < 4; b++ {
			gCols[b] = g.At(row, cols[b])
		}
		rowSlice := g.Row(row)
		for col := 0; col < dim; col++ {
			var add complex128
			for b := 0; b < 4; b++ {
				add += gCols[b] * invRows[b][col]
			}
			rowSlice[col] += add
		}
		g.SetRow(row, rowSlice)
	}
}
