package observable_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointlander/detqmcpt/internal/lattice"
	"github.com/pointlander/detqmcpt/internal/observable"
)

func TestScalar_MeanAndVariance(t *testing.T) {
	s := observable.NewScalar("normPhi")
	for _, v := range []float64{1, 2, 3, 4, 5} {
		s.Add(v)
	}
	assert.Equal(t, int64(5), s.Count())
	assert.InDelta(t, 3.0, s.Mean(), 1e-12)
	assert.InDelta(t, 2.0, s.Variance(), 1e-12)
}

func TestScalar_EmptyMeanIsZero(t *testing.T) {
	s := observable.NewScalar("empty")
	assert.Equal(t, 0.0, s.Mean())
	assert.Equal(t, 0.0, s.Variance())
	assert.Equal(t, int64(0), s.Count())
}

func TestLoadScalar_MatchesDirectAccumulation(t *testing.T) {
	samples := []float64{0.5, 1.5, -0.5, 2.0}
	direct := observable.NewScalar("x")
	for _, v := range samples {
		direct.Add(v)
	}
	loaded := observable.LoadScalar("x", samples)
	require.Equal(t, direct.Count(), loaded.Count())
	assert.InDelta(t, direct.Mean(), loaded.Mean(), 1e-12)
	assert.InDelta(t, direct.Variance(), loaded.Variance(), 1e-12)
	assert.Equal(t, samples, loaded.Samples())
}

func TestVector_Mean(t *testing.T) {
	v := observable.NewVector("siteCorrelation", 3)
	v.Add([]float64{1, 2, 3})
	v.Add([]float64{3, 2, 1})
	mean := v.Mean()
	require.Len(t, mean, 3)
	assert.InDelta(t, 2.0, mean[0], 1e-12)
	assert.InDelta(t, 2.0, mean[1], 1e-12)
	assert.InDelta(t, 2.0, mean[2], 1e-12)
}

func TestVector_EmptyMeanIsZeroVector(t *testing.T) {
	v := observable.NewVector("empty", 4)
	mean := v.Mean()
	require.Len(t, mean, 4)
	for _, x := range mean {
		assert.Equal(t, 0.0, x)
	}
}

func TestNewSet_InitializesAllFields(t *testing.T) {
	lat := lattice.NewSquare(2)
	set := observable.NewSet(3, lat)
	assert.Equal(t, 3, set.ControlParamIndex)
	require.NotNil(t, set.NormPhi)
	require.NotNil(t, set.AccRatio)
	require.NotNil(t, set.PhiDelta)
}
