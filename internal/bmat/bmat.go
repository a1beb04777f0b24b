// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bmat

import (
	"github.com/pointlander/detqmcpt/internal/linalg"
	"github.com/pointlander/detqmcpt/internal/sdw"
)

// Provider is the capability set the sweep engine needs from a
// B-matrix implementation, expressed as an interface so the engine is
// generic over "a B-matrix provider" (dependency-inversion
// design note breaking the sweep-engine/model cyclic dependency).
type Provider interface {
	// Dense computes B(k2,k1) densely; reference/test use only.
	Dense(k2, k1 int) *linalg.Matrix
	// LeftMult returns B(k2,k1) * a.
	LeftMult(a *linalg.Matrix, k2, k1 int) *linalg.Matrix
	// RightMult returns a * B(k2,k1).
	RightMult(a *linalg.Matrix, k2, k1 int) *linalg.Matrix
	// LeftMultInv returns B(k2,k1)^{-1} * a.
	LeftMultInv(a *linalg.Matrix, k2, k1 int) *linalg.Matrix
	// RightMultInv returns a * B(k2,k1)^{-1}.
	RightMultInv(a *linalg.Matrix, k2, k1 int) *linalg.Matrix
}

// Multiplier implements Provider against an sdw.Model, dispatching to
// the dense or checkerboard path depending on Model.Params.Checkerboard
// (detsdw.cpp's computeBmat[] function-pointer table, generalized into a
// runtime branch: Go has no per-instance vtable swap as convenient as a
// captured lambda, but the effect — one decision fixed at construction
// time — is the same).
type Multiplier struct {
	model *sdw.Model
}

// New builds a Multiplier bound to model.
func New(model *sdw.Model) *Multiplier {
	return &Multiplier{model: model}
}

func (b *Multiplier) n() int { return b.model.N() }

// Dense computes B(k2,k1) = Π_{k=k1+1}^{k2} e^{-Δτ V(φ_k)} e^{-Δτ K} by
// direct dense multiplication, for k2 > k1 ("Operations
// exposed", reference/test use only — production code goes through
// LeftMult/RightMult so the checkerboard path, when enabled, never pays
// the O(N²) dense cost).
func (b *Multiplier) Dense(k2, k1 int) *linalg.Matrix {
	n := b.n()
	result := linalg.Identity(4 * n)
	propK := blockDiagPropK(b.model)
	for k := k1 + 1; k <= k2; k++ {
		step := linalg.Mul(b.vertexAt(k, -1), propK)
		result = linalg.Mul(step, result)
	}
	return result
}

func (b *Multiplier) vertexAt(slice int, sign float64) *linalg.Matrix {
	n := b.n()
	f := b.model.Field
	return VertexMatrixDense(n, sign,
		func(site int) [3]float64 { return f.At(site, slice) },
		func(site int) float64 { return f.Cosh(site, slice) },
		func(site int) float64 { return f.Sinh(site, slice) })
}

func blockDiagPropK(m *sdw.Model) *linalg.Matrix {
	n := m.N()
	out := linalg.NewMatrix(4*n, 4*n)
	bandBlock := func(band sdw.Band, bandOffset int) {
		prop := m.Hopping.PropK[band]
		for i := 0; i < 2*n; i++ {
			for j := 0; j < 2*n; j++ {
				if v := prop.At(i, j); v != 0 {
					out.Set(bandOffset+i, bandOffset+j, v)
				}
			}
		}
	}
	bandBlock(sdw.BandX, 0)
	bandBlock(sdw.BandY, 2*n)
	return out
}

// LeftMult computes B(k2,k1) * a, walking slice by slice so the
// checkerboard path (when enabled) never materializes a dense B.
func (b *Multiplier) LeftMult(a *linalg.Matrix, k2, k1 int) *linalg.Matrix {
	if !b.model.Params.Checkerboard {
		return linalg.Mul(b.Dense(k2, k1), a)
	}
	out := a.Clone()
	p := b.model.Params
	lat := b.model.Lattice
	for k := k1 + 1; k <= k2; k++ {
		out = checkerboardKLeft(b.model.Hopping, lat, p.Mu, p.Dtau, out, -1)
		out = linalg.Mul(b.vertexAt(k, -1), out)
	}
	return out
}

// RightMult computes a * B(k2,k1).
func (b *Multiplier) RightMult(a *linalg.Matrix, k2, k1 int) *linalg.Matrix {
	if !b.model.Params.Checkerboard {
		return linalg.Mul(a, b.Dense(k2, k1))
	}
	out := a.Clone()
	p := b.model.Params
	lat := b.model.Lattice
	for k := k1 + 1; k <= k2; k++ {
		out = linalg.Mul(out, b.vertexAt(k, -1))
		out = checkerboardKRight(b.model.Hopping, lat, p.Mu, p.Dtau, out, -1)
	}
	return out
}

// LeftMultInv computes B(k2,k1)^{-1} * a by walking the slices in
// reverse, each step undoing one B(k,k-1) factor.
func (b *Multiplier) LeftMultInv(a *linalg.Matrix, k2, k1 int) *linalg.Matrix {
	if !b.model.Params.Checkerboard {
		inv, err := linalg.Inverse(b.Dense(k2, k1))
		if err != nil {
			panic(err)
		}
		return linalg.Mul(inv, a)
	}
	out := a.Clone()
	p := b.model.Params
	lat := b.model.Lattice
	for k := k2; k > k1; k-- {
		vinv, err := linalg.Inverse(b.vertexAt(k, -1))
		if err != nil {
			panic(err)
		}
		out = linalg.Mul(vinv, out)
		out = checkerboardKInvLeft(b.model.Hopping, lat, p.Mu, p.Dtau, out, -1)
	}
	return out
}

// RightMultInv computes a * B(k2,k1)^{-1}.
func (b *Multiplier) RightMultInv(a *linalg.Matrix, k2, k1 int) *linalg.Matrix {
	if !b.model.Params.Checkerboard {
		inv, err := linalg.Inverse(b.Dense(k2, k1))
		if err != nil {
			panic(err)
		}
		return linalg.Mul(a, inv)
	}
	out := a.Clone()
	p := b.model.Params
	lat := b.model.Lattice
	for k := k2; k > k1; k-- {
		out = checkerboardKInvRight(b.model.Hopping, lat, p.Mu, p.Dtau, out, -1)
		vinv, err := linalg.Inverse(b.vertexAt(k, -1))
		if err != nil {
			panic(err)
		}
		out = linalg.Mul(out, vinv)
	}
	return out
}
