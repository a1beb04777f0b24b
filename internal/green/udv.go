// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package green maintains the UDV stack and the stabilized equal-time
// Green's function, grounded on detqmc.h/detsdw.cpp's stabilization
// machinery (the "sweep/stabilize" cycle referenced throughout
// detsdw.cpp's sweepSimple vs. sweep variants) and on its UDV-based
// explicit recomputation formula.
package green

import (
	"github.com/pkg/errors"

	"github.com/pointlander/detqmcpt/internal/bmat"
	"github.com/pointlander/detqmcpt/internal/linalg"
)

// Triple is one stored UDV factorization: the product of B-matrices
// over some contiguous slice range equals U*diag(D)*V to within
// stabilization tolerance (UDV stack entity).
type Triple struct {
	U *linalg.Matrix
	D []float64
	V *linalg.Matrix
}

// Stack maintains the ring of UDV triples covering the time axis and
// recomputes the equal-time Green's function at stabilization points.
type Stack struct {
	provider bmat.Provider
	dim int // 4N
	nStab int
	m int
	Triples []Triple // checkpoints at slices 0, nStab, 2*nStab, ...
}

// NewStack builds an (initially empty) stack for a time lattice of m
// slices, dim = 4N, stabilizing every nStab slices.
func NewStack(provider bmat.Provider, dim, nStab, m int) *Stack {
	return &Stack{provider: provider, dim: dim, nStab: nStab, m: m}
}

// identityTriple returns the UDV factorization of the identity, the
// seed for building up a product from scratch.
func (s *Stack) identityTriple() Triple {
	d := make([]float64, s.dim)
	for i := range d {
		d[i] = 1
	}
	return Triple{U: linalg.Identity(s.dim), D: d, V: linalg.Identity(s.dim)}
}

// mergeStep extends the product represented by t with one more
// B(k,k-1) factor on the left (t represents B(k-1,k1) so far; the
// caller advances k1..k2 one slice at a time), via the QDR-style
// stabilization step: M = B(k,k-1)*U, scale its columns by D, QR it,
// and fold the triangular factor into V.
func (s *Stack) mergeStep(t Triple, k int) Triple {
	bu := s.provider.LeftMult(t.U, k, k-1)
	dComplex := make([]complex128, s.dim)
	for i, d := range t.D {
		dComplex[i] = complex(d, 0)
	}
	m := linalg.ScaleCols(bu, dComplex)
	q, r := linalg.QR(m)
	newD := make([]float64, s.dim)
	invDComplex := make([]complex128, s.dim)
	for i := 0; i < s.dim; i++ {
		newD[i] = real(r.At(i, i))
		if newD[i] < 1e-300 {
			newD[i] = 1e-300
		}
		invDComplex[i] = complex(1/newD[i], 0)
	}
	scaledR := linalg.ScaleRows(invDComplex, r)
	newV := linalg.Mul(scaledR, t.V)
	return Triple{U: q, D: newD, V: newV}
}

// BuildUpTo computes the UDV factorization of B(k,0) by walking slices
// 1..k, re-stabilizing (QR-merging) at every slice — the inner loop is
// cheap relative to the local-move cost, so merging every slice rather
// than only every nStab slices only affects how often Triples snapshots
// are recorded, not correctness.
func (s *Stack) BuildUpTo(k int) Triple {
	t := s.identityTriple()
	s.Triples = s.Triples[:0]
	s.Triples = append(s.Triples, t)
	for slice := 1; slice <= k; slice++ {
		t = s.mergeStep(t, slice)
		if slice%s.nStab == 0 {
			s.Triples = append(s.Triples, t)
		}
	}
	return t
}

// FreshGreen computes G_fresh = (I + U D V)^{-1} from a UDV triple using
// the identity U(D + U^{-1}V^{-1})V = UDV + I, which gives
//
//	G_fresh = V^{-1} · (D + U^{-1}V^{-1})^{-1} · U^{-1}
//
// D is split into large/small diagonal parts (Dbig·Dsmall = D
// elementwise) to avoid loss of precision in the inversion:
//
//	D + M = Dbig · (Dsmall + Dbig^{-1}M), M = U^{-1}V^{-1}
//	G_fresh = V^{-1} · (Dsmall + Dbig^{-1}M)^{-1} · Dbig^{-1} · U^{-1}
func FreshGreen(t Triple) (*linalg.Matrix, error) {
	uinv := t.U.ConjTranspose() // U is unitary out of QR, so U^{-1} = U^H.
	vinv, err := linalg.Inverse(t.V)
	if err != nil {
		return nil, errors.Wrap(err, "green: V not invertible")
	}
	m := linalg.Mul(uinv, vinv)

	n := len(t.D)
	dbigInv := make([]complex128, n)
	dsmall := make([]complex128, n)
	for i, d := range t.D {
		if d >= 1 {
			dbigInv[i] = complex(1/d, 0)
			dsmall[i] = 1
		} else {
			dbigInv[i] = 1
			dsmall[i] = complex(d, 0)
		}
	}
	scaledM := linalg.ScaleRows(dbigInv, m)
	inner := scaledM.Clone()
	for i := 0; i < n; i++ {
		inner.Add(i, i, dsmall[i])
	}
	innerInv, err := linalg.Inverse(inner)
	if err != nil {
		return nil, errors.Wrap(err, "green: I+UDV not invertible at stabilization point")
	}
	rightPart := linalg.ScaleRows(dbigInv, uinv)
	return linalg.Mul(vinv, linalg.Mul(innerInv, rightPart)), nil
}
