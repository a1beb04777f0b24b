// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package green

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pointlander/detqmcpt/internal/bmat"
	"github.com/pointlander/detqmcpt/internal/linalg"
)

// ErrNumerical tags unrecoverable numerical failures (NaN/Inf in G),
// fatal and unrecoverable rather than a candidate for a stabilization
// retry.
var ErrNumerical = errors.New("green: unrecoverable numerical error")

// Engine owns the current equal-time Green's function and drives wrap
// advances plus periodic re-stabilization. One Engine per replica,
// matching the one-replica-per-process ownership rule.
type Engine struct {
	provider bmat.Provider
	stack *Stack
	log logrus.FieldLogger

	G *linalg.Matrix
	K int // current slice the Green's function refers to
	NStab int
	EpsStab float64
	LastDiag float64 // last ‖G_wrap − G_fresh‖_∞ / ‖G_fresh‖_∞
}

// NewEngine builds an Engine and performs the initial fresh
// recomputation at slice 0.
func NewEngine(provider bmat.Provider, dim, nStab, m int, epsStab float64, log logrus.FieldLogger) (*Engine, error) {
	stack := NewStack(provider, dim, nStab, m)
	e := &Engine{provider: provider, stack: stack, log: log, NStab: nStab, EpsStab: epsStab}
	if err := e.Recompute(0); err != nil {
		return nil, err
	}
	return e, nil
}

// Recompute rebuilds the UDV product up to slice k from scratch and
// overwrites G with the fresh Green's function, recording the
// diagnostic drift between the previous wrap-advanced G and G_fresh
// (contract).
func (e *Engine) Recompute(k int) error {
	t := e.stack.BuildUpTo(k)
	fresh, err := FreshGreen(t)
	if err != nil {
		return err
	}
	if e.G != nil {
		diff := linalg.SubMat(e.G, fresh).InfNorm()
		denom := fresh.InfNorm()
		if denom > 0 {
			e.LastDiag = diff / denom
		} else {
			e.LastDiag = diff
		}
		if e.LastDiag > e.EpsStab {
			e.log.WithFields(logrus.Fields{"slice": k, "drift": e.LastDiag, "eps": e.EpsStab}).
				Warn("green: stabilization drift exceeded tolerance, restored from fresh recomputation")
		}
	}
	if hasNaN(fresh) {
		return errors.Wrap(ErrNumerical, "fresh Green's function contains NaN/Inf")
	}
	e.G = fresh
	e.K = k
	return nil
}

func hasNaN(m *linalg.Matrix) bool {
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			v := m.At(i, j)
			if isNaNOrInf(real(v)) || isNaNOrInf(imag(v)) {
				return true
			}
		}
	}
	return false
}

func isNaNOrInf(f float64) bool {
	return f != f || f > 1e300 || f < -1e300
}

// WrapUp advances G from slice k to k+1 by a single wrap multiplication
// G ← B(k+1,k) · G · B(k+1,k)^{-1}. When stabilize is true and k+1 is a
// stabilization point, the wrap is followed by a fresh UDV
// recomputation (the "stabilized" sweep); when stabilize is false the
// wrap result is kept as-is regardless of k+1 (the "simple" sweep),
// letting numerical drift accumulate unchecked.
func (e *Engine) WrapUp(stabilize bool) error {
	k := e.K
	next := k + 1
	rightInv := e.provider.RightMultInv(e.G, next, k)
	e.G = e.provider.LeftMult(rightInv, next, k)
	e.K = next
	if stabilize && next%e.NStab == 0 {
		return e.Recompute(next)
	}
	return nil
}

// WrapDown advances G from slice k to k-1 by a single inverse wrap
// multiplication G ← B(k,k-1)^{-1} · G · B(k,k-1), with the same
// stabilize contract as WrapUp.
func (e *Engine) WrapDown(stabilize bool) error {
	k := e.K
	prev := k - 1
	right := e.provider.RightMult(e.G, k, prev)
	e.G = e.provider.LeftMultInv(right, k, prev)
	e.K = prev
	if stabilize && prev%e.NStab == 0 {
		return e.Recompute(prev)
	}
	return nil
}

// SetG overwrites the current Green's function and slice index (used on
// checkpoint resume).
func (e *Engine) SetG(g *linalg.Matrix, k int) {
	e.G = g
	e.K = k
}
