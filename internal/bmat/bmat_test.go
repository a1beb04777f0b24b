package bmat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointlander/detqmcpt/internal/bmat"
	"github.com/pointlander/detqmcpt/internal/linalg"
	"github.com/pointlander/detqmcpt/internal/rng"
	"github.com/pointlander/detqmcpt/internal/sdw"
)

func denseModel(t *testing.T, checkerboard bool) *sdw.Model {
	t.Helper()
	p := sdw.Params{
		L: 4, M: 3,
		Dtau: 0.01, Mu: 0.1, R: -1, U: 1, C: 1,
		THor: 1, TVer: 1,
		Checkerboard: checkerboard,
	}
	m, err := sdw.NewModel(p, rng.New(11))
	require.NoError(t, err)
	return m
}

// Dense B(k2,k1) always multiplies the exact (non-checkerboard-factored)
// per-slice vertex/hopping product, so it serves as ground truth
// regardless of the model's own Checkerboard flag.
func TestMultiplier_CheckerboardMatchesDenseWithinTrotterTolerance(t *testing.T) {
	model := denseModel(t, true)
	mult := bmat.New(model)
	n := model.N()

	want := mult.Dense(2, 0)
	got := mult.LeftMult(linalg.Identity(4*n), 2, 0)

	diff := linalg.SubMat(want, got).FrobeniusNorm()
	assert.Less(t, diff, 1e-3, "checkerboard LeftMult(I,2,0) should match dense B(2,0) within Trotter tolerance")
}

func TestMultiplier_LeftMultInvUndoesLeftMult(t *testing.T) {
	for _, checkerboard := range []bool{false, true} {
		model := denseModel(t, checkerboard)
		mult := bmat.New(model)
		n := model.N()
		a := linalg.Identity(4 * n)
		for i := 0; i < 4*n; i++ {
			a.Set(i, i, complex(1+0.01*float64(i), 0))
		}

		wrapped := mult.LeftMult(a, 2, 0)
		roundTrip := mult.LeftMultInv(wrapped, 2, 0)

		diff := linalg.SubMat(a, roundTrip).FrobeniusNorm()
		assert.Less(t, diff, 1e-6, "LeftMultInv(LeftMult(a)) should round-trip, checkerboard=%v", checkerboard)
	}
}

func TestMultiplier_RightMultInvUndoesRightMult(t *testing.T) {
	for _, checkerboard := range []bool{false, true} {
		model := denseModel(t, checkerboard)
		mult := bmat.New(model)
		n := model.N()
		a := linalg.Identity(4 * n)
		for i := 0; i < 4*n; i++ {
			a.Set(i, i, complex(1+0.01*float64(i), 0))
		}

		wrapped := mult.RightMult(a, 2, 0)
		roundTrip := mult.RightMultInv(wrapped, 2, 0)

		diff := linalg.SubMat(a, roundTrip).FrobeniusNorm()
		assert.Less(t, diff, 1e-6, "RightMultInv(RightMult(a)) should round-trip, checkerboard=%v", checkerboard)
	}
}
