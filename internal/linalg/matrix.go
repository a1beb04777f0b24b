// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package linalg implements the dense complex matrix primitives the
// sweep engine needs: multiplication, LU-based solve/determinant/
// inverse, and a Householder QR step used by the UDV stack.
//
// No repository or file in the retrieval pack imports a BLAS/LAPACK
// binding or gonum; pointlander-qmc represents all of its
// numeric state as plain [][]float64 and multiplies it by hand. This
// package follows that idiom for complex dense matrices, built directly
// on math/cmplx (see DESIGN.md for the full justification).
package linalg

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
)

// ErrSingular is returned when a matrix has no usable pivot during LU
// factorization (up to the package's pivotEps tolerance).
var ErrSingular = errors.New("linalg: matrix is numerically singular")

const pivotEps = 1e-300

// Matrix is a dense, row-major complex matrix.
type Matrix struct {
	Rows, Cols int
	data []complex128
}

// NewMatrix allocates a zeroed rows×cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, data: make([]complex128, rows*cols)}
}

// Identity returns the n×n identity matrix.
func Identity(n int) *Matrix {
	m := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// At returns A[i][j].
func (a *Matrix) At(i, j int) complex128 {
	return a.data[i*a.Cols+j]
}

// Set assigns A[i][j] = v.
func (a *Matrix) Set(i, j int, v complex128) {
	a.data[i*a.Cols+j] = v
}

// Add adds v into A[i][j].
func (a *Matrix) Add(i, j int, v complex128) {
	a.data[i*a.Cols+j] += v
}

// Clone returns a deep copy.
func (a *Matrix) Clone() *Matrix {
	out := &Matrix{Rows: a.Rows, Cols: a.Cols, data: make([]complex128, len(a.data))}
	copy(out.data, a.data)
	return out
}

// CopyFrom overwrites a's contents with b's; a and b must have equal shape.
func (a *Matrix) CopyFrom(b *Matrix) {
	copy(a.data, b.data)
}

// Row returns a copy of row i as a slice of length Cols.
func (a *Matrix) Row(i int) []complex128 {
	out := make([]complex128, a.Cols)
	copy(out, a.data[i*a.Cols:(i+1)*a.Cols])
	return out
}

// SetRow overwrites row i with row.
func (a *Matrix) SetRow(i int, row []complex128) {
	copy(a.data[i*a.Cols:(i+1)*a.Cols], row)
}

// Col returns a copy of column j.
func (a *Matrix) Col(j int) []complex128 {
	out := make([]complex128, a.Rows)
	for i := 0; i < a.Rows; i++ {
		out[i] = a.At(i, j)
	}
	return out
}

// Mul computes a*b.
func Mul(a, b *Matrix) *Matrix {
	if a.Cols != b.Rows {
		panic("linalg: Mul dimension mismatch")
	}
	out := NewMatrix(a.Rows, b.Cols)
	for i := 0; i < a.Rows; i++ {
		ai := a.data[i*a.Cols : (i+1)*a.Cols]
		oi := out.data[i*out.Cols : (i+1)*out.Cols]
		for k := 0; k < a.Cols; k++ {
			aik := ai[k]
			if aik == 0 {
				continue
			}
			bk := b.data[k*b.Cols : (k+1)*b.Cols]
			for j := 0; j < b.Cols; j++ {
				oi[j] += aik * bk[j]
			}
		}
	}
	return out
}

// AddMat returns a+b elementwise.
func AddMat(a, b *Matrix) *Matrix {
	out := NewMatrix(a.Rows, a.Cols)
	for i := range out.data {
		out.data[i] = a.data[i] + b.data[i]
	}
	return out
}

// SubMat returns a-b elementwise.
func SubMat(a, b *Matrix) *Matrix {
	out := NewMatrix(a.Rows, a.Cols)
	for i := range out.data {
		out.data[i] = a.data[i] - b.data[i]
	}
	return out
}

// ScaleRows returns diag(d) * a, i.e. row i scaled by d[i].
func ScaleRows(d []complex128, a *Matrix) *Matrix {
	out := NewMatrix(a.Rows, a.Cols)
	for i := 0; i < a.Rows; i++ {
		di := d[i]
		for j := 0; j < a.Cols; j++ {
			out.Set(i, j, di*a.At(i, j))
		}
	}
	return out
}

// ScaleCols returns a * diag(d), i.e. column j scaled by d[j].
func ScaleCols(a *Matrix, d []complex128) *Matrix {
	out := NewMatrix(a.Rows, a.Cols)
	for i := 0; i < a.Rows; i++ {
		for j := 0; j < a.Cols; j++ {
			out.Set(i, j, a.At(i, j)*d[j])
		}
	}
	return out
}

// ConjTranspose returns A^H.
func (a *Matrix) ConjTranspose() *Matrix {
	out := NewMatrix(a.Cols, a.Rows)
	for i := 0; i < a.Rows; i++ {
		for j := 0; j < a.Cols; j++ {
			out.Set(j, i, cmplx.Conj(a.At(i, j)))
		}
	}
	return out
}

// FrobeniusNorm returns ||A||_F.
func (a *Matrix) FrobeniusNorm() float64 {
	sum := 0.0
	for _, v := range a.data {
		sum += real(v)*real(v) + imag(v)*imag(v)
	}
	return math.Sqrt(sum)
}

// InfNorm returns the max-absolute-entry norm ||A||_inf (elementwise max,
// matching the ‖G_wrap − G_fresh‖_∞ stabilization-drift diagnostic).
func (a *Matrix) InfNorm() float64 {
	maxv := 0.0
	for _, v := range a.data {
		if m := cmplx.Abs(v); m > maxv {
			maxv = m
		}
	}
	return maxv
}

// LU holds an LU factorization with partial pivoting: P*A = L*U, L unit
// lower triangular, U upper triangular, perm the row permutation and
// parity its sign (+1/-1) for determinant bookkeeping.
type LU struct {
	n int
	lu *Matrix
	perm []int
	parity float64
}

// Factorize computes the LU decomposition of the square matrix a with
// partial pivoting.
func Factorize(a *Matrix) (*LU, error) {
	if a.Rows != a.Cols {
		return nil, errors.New("linalg: LU requires a square matrix")
	}
	n := a.Rows
	lu := a.Clone()
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	parity := 1.0
	for k := 0; k < n; k++ {
		pivotRow, pivotMag := k, cmplx.Abs(lu.At(k, k))
		for i := k + 1; i < n; i++ {
			if m := cmplx.Abs(lu.At(i, k)); m > pivotMag {
				pivotRow, pivotMag = i, m
			}
		}
		if pivotMag < pivotEps {
			return nil, errors.Wrapf(ErrSingular, "pivot %d magnitude %.3e", k, pivotMag)
		}
		if pivotRow != k {
			rowK, rowP := lu.Row(k), lu.Row(pivotRow)
			lu.SetRow(k, rowP)
			lu.SetRow(pivotRow, rowK)
			perm[k], perm[pivotRow] = perm[pivotRow], perm[k]
			parity = -parity
		}
		pivot := lu.At(k, k)
		for i := k + 1; i < n; i++ {
			factor := lu.At(i, k) / pivot
			lu.Set(i, k, factor)
			for j := k + 1; j < n; j++ {
				lu.Add(i, j, -factor*lu.At(k, j))
			}
		}
	}
	return &LU{n: n, lu: lu, perm: perm, parity: parity}, nil
}

// Det returns det(A).
func (f *LU) Det() complex128 {
	det := complex(f.parity, 0)
	for i := 0; i < f.n; i++ {
		det *= f.lu.At(i, i)
	}
	return det
}

// Solve solves A*X = B for X, given B with the same row count as A.
func (f *LU) Solve(b *Matrix) *Matrix {
	n := f.n
	// Apply the row permutation to B.
	pb := NewMatrix(n, b.Cols)
	for i := 0; i < n; i++ {
		pb.SetRow(i, b.Row(f.perm[i]))
	}
	// Forward substitution (L has unit diagonal).
	y := NewMatrix(n, b.Cols)
	for i := 0; i < n; i++ {
		row := pb.Row(i)
		for k := 0; k < i; k++ {
			lik := f.lu.At(i, k)
			if lik == 0 {
				continue
			}
			yk := y.Row(k)
			for j := range row {
				row[j] -= lik * yk[j]
			}
		}
		y.SetRow(i, row)
	}
	// Backward substitution.
	x := NewMatrix(n, b.Cols)
	for i := n - 1; i >= 0; i-- {
		row := y.Row(i)
		for k := i + 1; k < n; k++ {
			uik := f.lu.At(i, k)
			if uik == 0 {
				continue
			}
			xk := x.Row(k)
			for j := range row {
				row[j] -= uik * xk[j]
			}
		}
		uii := f.lu.At(i, i)
		for j := range row {
			row[j] /= uii
		}
		x.SetRow(i, row)
	}
	return x
}

// Inverse returns A^{-1} by solving A*X = I.
func (f *LU) Inverse() *Matrix {
	return f.Solve(Identity(f.n))
}

// Det is a convenience wrapper: det(a).
func Det(a *Matrix) (complex128, error) {
	f, err := Factorize(a)
	if err != nil {
		return 0, err
	}
	return f.Det(), nil
}

// Inverse is a convenience wrapper: a^{-1}.
func Inverse(a *Matrix) (*Matrix, error) {
	f, err := Factorize(a)
	if err != nil {
		return nil, err
	}
	return f.Inverse(), nil
}

// Solve is a convenience wrapper: solves a*x = b.
func Solve(a, b *Matrix) (*Matrix, error) {
	f, err := Factorize(a)
	if err != nil {
		return nil, err
	}
	return f.Solve(b), nil
}

// Expm computes e^A for a square complex matrix by scaling-and-squaring
// combined with a truncated Taylor series: no repository in the pack
// carries a matrix-exponential routine (or a library that does), so this
// follows pointlander-qmc's hand-rolled-numerics idiom, applied to the
// dense e^{-Δτ K} hopping propagator.
func Expm(a *Matrix) *Matrix {
	const terms = 18
	norm := a.InfNorm() * float64(a.Rows)
	scale := 0
	for norm > 0.5 {
		norm /= 2
		scale++
	}
	scaled := a.Clone()
	factor := complex(math.Pow(2, -float64(scale)), 0)
	for i := range scaled.data {
		scaled.data[i] *= factor
	}
	result := Identity(a.Rows)
	term := Identity(a.Rows)
	fact := 1.0
	for k := 1; k <= terms; k++ {
		term = Mul(term, scaled)
		fact *= float64(k)
		invFact := complex(1/fact, 0)
		weighted := term.Clone()
		for i := range weighted.data {
			weighted.data[i] *= invFact
		}
		result = AddMat(result, weighted)
	}
	for s := 0; s < scale; s++ {
		result = Mul(result, result)
	}
	return result
}

// QR computes a Householder QR factorization of the square matrix a:
// a = Q*R with Q unitary and R upper triangular with non-negative real
// diagonal entries (the sign/phase convention the UDV stack in
// package green relies on to keep D's diagonal real and positive).
func QR(a *Matrix) (q, r *Matrix) {
	n := a.Rows
	r = a.Clone()
	q = Identity(n)
	for k := 0; k < n; k++ {
		// Build the Householder vector for column k, rows k..n-1.
		normSq := 0.0
		for i := k; i < n; i++ {
			v := r.At(i, k)
			normSq += real(v)*real(v) + imag(v)*imag(v)
		}
		normX := math.Sqrt(normSq)
		if normX == 0 {
			continue
		}
		akk := r.At(k, k)
		phase := complex(1, 0)
		if cmplx.Abs(akk) > 0 {
			phase = akk / complex(cmplx.Abs(akk), 0)
		}
		alpha := -phase * complex(normX, 0)
		v := make([]complex128, n-k)
		v[0] = r.At(k, k) - alpha
		for i := k + 1; i < n; i++ {
			v[i-k] = r.At(i, k)
		}
		vNormSq := 0.0
		for _, vi := range v {
			vNormSq += real(vi)*real(vi) + imag(vi)*imag(vi)
		}
		if vNormSq < 1e-300 {
			continue
		}
		// Apply the reflector H = I - 2*v*v^H/(v^H v) to R (left) and to
		// Q (right, since we accumulate Q = H_1*H_2*...*H_n applied to I
		// from the left is equivalent to updating Q := Q*H_k on the
		// right when H_k acts on rows k..n-1 of R).
		applyLeft := func(m *Matrix) {
			for j := 0; j < m.Cols; j++ {
				var dot complex128
				for i := k; i < n; i++ {
					dot += cmplx.Conj(v[i-k]) * m.At(i, j)
				}
				factor := 2 * dot / complex(vNormSq, 0)
				for i := k; i < n; i++ {
					m.Add(i, j, -factor*v[i-k])
				}
			}
		}
		applyLeft(r)
		applyRight := func(m *Matrix) {
			for i := 0; i < m.Rows; i++ {
				var dot complex128
				for j := k; j < n; j++ {
					dot += m.At(i, j) * v[j-k]
				}
				factor := 2 * dot / complex(vNormSq, 0)
				for j := k; j < n; j++ {
					m.Add(i, j, -factor*cmplx.Conj(v[j-k]))
				}
			}
		}
		applyRight(q)
	}
	// Fix the sign/phase of R's diagonal so it is real and non-negative,
	// folding the correction into Q.
	for k := 0; k < n; k++ {
		rkk := r.At(k, k)
		mag := cmplx.Abs(rkk)
		if mag < 1e-300 {
			continue
		}
		phase := rkk / complex(mag, 0)
		for j := 0; j < r.Cols; j++ {
			r.Set(k, j, r.At(k, j)/phase)
		}
		for i := 0; i < q.Rows; i++ {
			q.Set(i, k, q.At(i, k)*phase)
		}
	}
	return q, r
}
