package rng_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointlander/detqmcpt/internal/rng"
)

func TestSeed_DistinctForDistinctIndices(t *testing.T) {
	base := int64(42)
	seeds := map[int64]bool{}
	for sim := 0; sim < 4; sim++ {
		for proc := 0; proc < 4; proc++ {
			s := rng.Seed(base, sim, proc)
			assert.False(t, seeds[s], "seed collision at sim=%d proc=%d", sim, proc)
			seeds[s] = true
		}
	}
}

func TestSeed_Deterministic(t *testing.T) {
	a := rng.Seed(7, 2, 3)
	b := rng.Seed(7, 2, 3)
	assert.Equal(t, a, b, "same inputs must produce the same seed")
}

func TestStream_Float64Range(t *testing.T) {
	s := rng.New(1)
	for i := 0; i < 1000; i++ {
		v := s.Float64()
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}

func TestStream_UniformRange(t *testing.T) {
	s := rng.New(2)
	for i := 0; i < 1000; i++ {
		v := s.Uniform(-3.0, 5.0)
		assert.GreaterOrEqual(t, v, -3.0)
		assert.Less(t, v, 5.0)
	}
}

func TestStream_Vec3Range(t *testing.T) {
	s := rng.New(3)
	for i := 0; i < 200; i++ {
		v := s.Vec3(1.0)
		for a := 0; a < 3; a++ {
			assert.GreaterOrEqual(t, v[a], -1.0)
			assert.LessOrEqual(t, v[a], 1.0)
		}
	}
}

func TestCounting_RestoreExactSequence(t *testing.T) {
	seed := int64(99)
	c := rng.NewCounting(seed)

	var prefix []float64
	for i := 0; i < 10; i++ {
		prefix = append(prefix, c.Float64())
	}
	checkpoint := c.State()

	var tail []float64
	for i := 0; i < 5; i++ {
		tail = append(tail, c.Float64())
	}

	restored := rng.RestoreCounting(checkpoint)
	require.Equal(t, checkpoint, restored.State())
	for i := 0; i < 5; i++ {
		got := restored.Float64()
		assert.Equal(t, tail[i], got, "resumed draw %d must match the uninterrupted sequence", i)
	}
}
