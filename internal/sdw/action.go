// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdw

// DeltaSPhi computes ΔS_φ for a proposed field value newPhi at
// (site,slice), using the asymmetric discrete derivative of /
// detsdw.cpp's deltaSPhi. z = 2d = 4 for the square lattice.
func (m *Model) DeltaSPhi(site, slice int, newPhi [3]float64) float64 {
	p := m.Params
	oldPhi := m.Field.At(site, slice)
	var diff [3]float64
	for a := 0; a < 3; a++ {
		diff[a] = newPhi[a] - oldPhi[a]
	}
	oldSq := dot3(oldPhi, oldPhi)
	newSq := dot3(newPhi, newPhi)
	sqDiff := newSq - oldSq

	oldPow4 := oldSq * oldSq
	newPow4 := newSq * newSq
	pow4Diff := newPow4 - oldPow4

	earlier := m.Field.At(site, m.Chain.Minus(slice))
	later := m.Field.At(site, m.Chain.Plus(slice))
	var timeNeigh [3]float64
	for a := 0; a < 3; a++ {
		timeNeigh[a] = later[a] + earlier[a]
	}

	spaceNeigh := m.Lattice.SumNeighbors3(site, func(s int) [3]float64 { return m.Field.At(s, slice) })

	const z = 4.0
	c := p.C
	dtau := p.Dtau

	delta1 := (1.0 / (c * c * dtau)) * (sqDiff - dot3(timeNeigh, diff))
	delta2 := 0.5 * dtau * (z*sqDiff - 2.0*dot3(spaceNeigh, diff))
	delta3 := dtau * (0.5*p.R*sqDiff + 0.25*p.U*pow4Diff)

	return delta1 + delta2 + delta3
}
