package linalg_test

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointlander/detqmcpt/internal/linalg"
)

func approxEqMat(t *testing.T, want, got *linalg.Matrix, tol float64) {
	t.Helper()
	require.Equal(t, want.Rows, got.Rows)
	require.Equal(t, want.Cols, got.Cols)
	for i := 0; i < want.Rows; i++ {
		for j := 0; j < want.Cols; j++ {
			diff := cmplx.Abs(want.At(i, j) - got.At(i, j))
			assert.LessOrEqualf(t, diff, tol, "mismatch at (%d,%d): want %v got %v", i, j, want.At(i, j), got.At(i, j))
		}
	}
}

func TestMul_IdentityIsNoop(t *testing.T) {
	a := linalg.NewMatrix(2, 2)
	a.Set(0, 0, 1)
	a.Set(0, 1, 2)
	a.Set(1, 0, 3)
	a.Set(1, 1, 4)
	id := linalg.Identity(2)
	got := linalg.Mul(a, id)
	approxEqMat(t, a, got, 1e-12)
}

func TestConjTranspose(t *testing.T) {
	a := linalg.NewMatrix(2, 2)
	a.Set(0, 0, complex(1, 2))
	a.Set(0, 1, complex(3, -4))
	a.Set(1, 0, complex(0, 1))
	a.Set(1, 1, complex(5, 0))

	at := a.ConjTranspose()
	assert.Equal(t, cmplx.Conj(a.At(0, 1)), at.At(1, 0))
	assert.Equal(t, cmplx.Conj(a.At(1, 0)), at.At(0, 1))
}

func TestFactorize_DetAndInverse(t *testing.T) {
	a := linalg.NewMatrix(3, 3)
	vals := [][3]float64{{4, 3, 2}, {1, 5, 1}, {2, 1, 6}}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			a.Set(i, j, complex(vals[i][j], 0))
		}
	}
	lu, err := linalg.Factorize(a)
	require.NoError(t, err)

	det := lu.Det()
	assert.InDelta(t, 86.0, real(det), 1e-9)

	inv := lu.Inverse()
	product := linalg.Mul(a, inv)
	approxEqMat(t, linalg.Identity(3), product, 1e-9)
}

func TestFactorize_SingularMatrixErrors(t *testing.T) {
	a := linalg.NewMatrix(2, 2)
	// Row 1 is a multiple of row 0: singular.
	a.Set(0, 0, 1)
	a.Set(0, 1, 2)
	a.Set(1, 0, 2)
	a.Set(1, 1, 4)
	_, err := linalg.Factorize(a)
	assert.ErrorIs(t, err, linalg.ErrSingular)
}

func TestSolve_MatchesDirectInverse(t *testing.T) {
	a := linalg.NewMatrix(2, 2)
	a.Set(0, 0, 2)
	a.Set(0, 1, 0)
	a.Set(1, 0, 0)
	a.Set(1, 1, 4)
	b := linalg.NewMatrix(2, 1)
	b.Set(0, 0, 6)
	b.Set(1, 0, 8)

	x, err := linalg.Solve(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, real(x.At(0, 0)), 1e-9)
	assert.InDelta(t, 2.0, real(x.At(1, 0)), 1e-9)
}

func TestExpm_ZeroMatrixIsIdentity(t *testing.T) {
	z := linalg.NewMatrix(3, 3)
	got := linalg.Expm(z)
	approxEqMat(t, linalg.Identity(3), got, 1e-9)
}

func TestExpm_DiagonalMatchesScalarExp(t *testing.T) {
	a := linalg.NewMatrix(2, 2)
	a.Set(0, 0, complex(1, 0))
	a.Set(1, 1, complex(-2, 0))
	got := linalg.Expm(a)
	assert.InDelta(t, math.Exp(1), real(got.At(0, 0)), 1e-6)
	assert.InDelta(t, math.Exp(-2), real(got.At(1, 1)), 1e-6)
	assert.InDelta(t, 0, real(got.At(0, 1)), 1e-9)
	assert.InDelta(t, 0, real(got.At(1, 0)), 1e-9)
}

func TestQR_ReconstructsOriginalMatrix(t *testing.T) {
	a := linalg.NewMatrix(3, 3)
	vals := [][3]float64{{12, -51, 4}, {6, 167, -68}, {-4, 24, -41}}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			a.Set(i, j, complex(vals[i][j], 0))
		}
	}
	q, r := linalg.QR(a)

	qr := linalg.Mul(q, r)
	approxEqMat(t, a, qr, 1e-6)

	// Q must be unitary: Q^H * Q = I.
	qhq := linalg.Mul(q.ConjTranspose(), q)
	approxEqMat(t, linalg.Identity(3), qhq, 1e-6)

	// R's diagonal must be real and non-negative.
	for k := 0; k < 3; k++ {
		assert.GreaterOrEqual(t, real(r.At(k, k)), 0.0)
		assert.InDelta(t, 0.0, imag(r.At(k, k)), 1e-9)
	}
}

func TestFrobeniusAndInfNorm(t *testing.T) {
	a := linalg.NewMatrix(2, 2)
	a.Set(0, 0, complex(3, 0))
	a.Set(0, 1, complex(0, 4))
	a.Set(1, 0, complex(0, 0))
	a.Set(1, 1, complex(0, 0))
	assert.InDelta(t, 5.0, a.FrobeniusNorm(), 1e-12)
	assert.InDelta(t, 4.0, a.InfNorm(), 1e-12)
}
