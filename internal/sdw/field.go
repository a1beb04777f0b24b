// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sdw implements the model state of the spin-density-wave
// auxiliary field: the field φ(site,slice) ∈ ℝ³, its derived cosh/sinh
// caches, and the hopping propagator. Grounded on
// _examples/original_source/detsdw.cpp's phi0/phi1/phi2/phiCosh/phiSinh
// member arrays and its DetSDW constructor, generalized from Armadillo
// fixed-size columns into flat Go slices.
package sdw

import (
	"math"

	"github.com/pkg/errors"

	"github.com/pointlander/detqmcpt/internal/lattice"
	"github.com/pointlander/detqmcpt/internal/rng"
)

// Params collects the model parameters plus the proposal-tuning knobs
// of the local-update step.
type Params struct {
	L, M int
	Dtau float64
	Mu float64
	R float64
	U float64
	C float64 // "speed of light" in the kinetic term
	THor, TVer float64 // hopping amplitudes per bond direction
	Checkerboard bool
	PhiDeltaInit float64
	TargetAccRatio float64
	AccRatioAdjustmentSamples int
}

// Field holds φ(site,slice) for site ∈ [0,N), slice ∈ [0,M], plus its
// cosh(Δτ|φ|) / sinh(Δτ|φ|)/|φ| caches (Field φ entity).
type Field struct {
	N, M int
	phi [][3]float64 // flattened [site*(M+1)+slice]
	cosh []float64
	sinh []float64
}

func newField(n, m int) *Field {
	size := n * (m + 1)
	return &Field{
		N: n, M: m,
		phi: make([][3]float64, size),
		cosh: make([]float64, size),
		sinh: make([]float64, size),
	}
}

func (f *Field) idx(site, slice int) int { return site*(f.M+1) + slice }

// At returns φ(site,slice).
func (f *Field) At(site, slice int) [3]float64 { return f.phi[f.idx(site, slice)] }

// Cosh returns the cached cosh(Δτ|φ(site,slice)|).
func (f *Field) Cosh(site, slice int) float64 { return f.cosh[f.idx(site, slice)] }

// Sinh returns the cached sinh(Δτ|φ(site,slice)|)/|φ(site,slice)|.
func (f *Field) Sinh(site, slice int) float64 { return f.sinh[f.idx(site, slice)] }

// set writes φ(site,slice) and refreshes its cosh/sinh caches from dtau,
// maintaining the invariant of ("caches... are consistent with φ
// after each accepted move").
func (f *Field) set(site, slice int, v [3]float64, dtau float64) {
	i := f.idx(site, slice)
	f.phi[i] = v
	norm := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if norm < 1e-12 {
		// Degenerate field: cosh(0)=1, and sinh(x)/x -> 1 as x -> 0.
		f.cosh[i] = 1
		f.sinh[i] = dtau
		return
	}
	f.cosh[i] = math.Cosh(dtau * norm)
	f.sinh[i] = math.Sinh(dtau*norm) / norm
}

// Set writes φ(site,slice) and refreshes its cosh/sinh caches, exported
// for the updater to call on an accepted local move.
func (f *Field) Set(site, slice int, v [3]float64, dtau float64) {
	f.set(site, slice, v, dtau)
}

// CoshSinh computes cosh(Δτ|φ|) and sinh(Δτ|φ|)/|φ| for an arbitrary
// field value, the same degenerate-norm handling set uses internally;
// exposed so the updater can evaluate a proposed field before deciding
// whether to accept it.
func CoshSinh(dtau float64, phi [3]float64) (c, s float64) {
	norm := math.Sqrt(phi[0]*phi[0] + phi[1]*phi[1] + phi[2]*phi[2])
	if norm < 1e-12 {
		return 1, dtau
	}
	return math.Cosh(dtau * norm), math.Sinh(dtau*norm) / norm
}

// InitRandom fills φ with independent components uniform in [-1,1]³ at
// every (site,slice).
func InitRandom(n, m int, dtau float64, r *rng.Stream) *Field {
	f := newField(n, m)
	for site := 0; site < n; site++ {
		for slice := 0; slice <= m; slice++ {
			f.set(site, slice, r.Vec3(1), dtau)
		}
	}
	return f
}

// Load reconstructs a Field from a flat checkpointed array of φ values
// (used by internal/archive on resume).
func Load(n, m int, dtau float64, values [][3]float64) (*Field, error) {
	if len(values) != n*(m+1) {
		return nil, errors.Errorf("sdw: field load expects %d entries, got %d", n*(m+1), len(values))
	}
	f := newField(n, m)
	for site := 0; site < n; site++ {
		for slice := 0; slice <= m; slice++ {
			f.set(site, slice, values[f.idx(site, slice)], dtau)
		}
	}
	return f, nil
}

// Snapshot flattens φ for checkpointing, in the same (site,slice) order
// Load expects.
func (f *Field) Snapshot() [][3]float64 {
	out := make([][3]float64, len(f.phi))
	copy(out, f.phi)
	return out
}

// NormPhi returns the RMS norm of φ over the whole space-time lattice,
// the `normPhi` scalar observable referenced by scenario 1.
func (f *Field) NormPhi() float64 {
	sum := 0.0
	count := 0
	for slice := 1; slice <= f.M; slice++ {
		for site := 0; site < f.N; site++ {
			v := f.At(site, slice)
			sum += v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}

// Model owns the field, its caches, the lattice, hopping propagator and
// the tunable proposal step, i.e. the SDW "replica" bound by the
// one-replica-per-process ownership rule (each process exclusively
// owns one replica).
type Model struct {
	Params Params
	Lattice *lattice.Square
	Chain *lattice.Chain
	Field *Field
	Hopping *Hopping
	PhiDelta float64
	LastAccRat float64
	accSamples int
	accAccepted float64
}

// NewModel constructs a Model with a freshly randomized field.
func NewModel(p Params, r *rng.Stream) (*Model, error) {
	if p.Checkerboard && p.L%2 != 0 {
		return nil, errors.New("sdw: checkerboard decomposition requires even L")
	}
	lat := lattice.NewSquare(p.L)
	n := lat.N
	hop := NewHopping(p, lat)
	field := InitRandom(n, p.M, p.Dtau, r)
	return &Model{
		Params: p,
		Lattice: lat,
		Chain: lattice.NewChain(p.M),
		Field: field,
		Hopping: hop,
		PhiDelta: p.PhiDeltaInit,
	}, nil
}

// SetField swaps in a field reconstructed from a checkpoint.
func (m *Model) SetField(f *Field) { m.Field = f }

// N is the number of spatial sites.
func (m *Model) N() int { return m.Lattice.N }

// AdjustPhiDelta applies a geometric shrink/grow tuning: every
// AccRatioAdjustmentSamples slices during thermalization, nudge
// PhiDelta toward the target acceptance ratio.
func (m *Model) AdjustPhiDelta() {
	m.accSamples++
	if m.accSamples < m.Params.AccRatioAdjustmentSamples {
		return
	}
	ratio := m.accAccepted / float64(m.accSamples)
	const shrinkGrow = 1.05
	if ratio < m.Params.TargetAccRatio {
		m.PhiDelta /= shrinkGrow
	} else {
		m.PhiDelta *= shrinkGrow
	}
	m.accSamples = 0
	m.accAccepted = 0
}

// RecordAcceptance feeds one slice's lastAccRatio into the adjustment
// accumulator; called once per slice from the updater.
func (m *Model) RecordAcceptance(ratio float64) {
	m.LastAccRat = ratio
	m.accAccepted += ratio
}

// TotalBosonicAction recomputes the full bosonic action S_φ directly
// from φ (/ original detsdw.cpp's phiAction). Nothing in this
// repository calls it, and no running total of ΔS_φ is kept to
// compare it with; it is not on the hot path.
func (m *Model) TotalBosonicAction() float64 {
	p := m.Params
	z := 4.0
	action := 0.0
	for slice := 1; slice <= p.M; slice++ {
		for site := 0; site < m.N(); site++ {
			cur := m.Field.At(site, slice)
			earlier := m.Field.At(site, m.Chain.Minus(slice))
			var dt [3]float64
			for a := 0; a < 3; a++ {
				dt[a] = (cur[a] - earlier[a]) / p.Dtau
			}
			action += (p.Dtau / (2 * p.C * p.C)) * dot3(dt, dt)

			xn := m.Field.At(m.Lattice.Neighbor(lattice.XPlus, site), slice)
			yn := m.Field.At(m.Lattice.Neighbor(lattice.YPlus, site), slice)
			var dx, dy [3]float64
			for a := 0; a < 3; a++ {
				dx[a] = cur[a] - xn[a]
				dy[a] = cur[a] - yn[a]
			}
			action += 0.5 * p.Dtau * dot3(dx, dx)
			action += 0.5 * p.Dtau * dot3(dy, dy)

			phiSq := dot3(cur, cur)
			action += 0.5 * p.Dtau * p.R * phiSq
			action += 0.25 * p.Dtau * p.U * phiSq * phiSq
			_ = z
		}
	}
	return action
}

func dot3(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}
