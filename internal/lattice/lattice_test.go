package lattice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointlander/detqmcpt/internal/lattice"
)

func TestNewSquare_NeighborsWrapPeriodically(t *testing.T) {
	sq := lattice.NewSquare(3)
	require.Equal(t, 9, sq.N)

	// site 0 is (x=0, y=0); +x steps to x=1, same row.
	assert.Equal(t, 1, sq.Neighbor(lattice.XPlus, 0))
	// -x from x=0 wraps to x=2.
	assert.Equal(t, 2, sq.Neighbor(lattice.XMinus, 0))
	// +y from y=0 steps to y=1, same column (site 3).
	assert.Equal(t, 3, sq.Neighbor(lattice.YPlus, 0))
}

func TestSquare_NeighborsAreMutual(t *testing.T) {
	sq := lattice.NewSquare(4)
	for site := 0; site < sq.N; site++ {
		xp := sq.Neighbor(lattice.XPlus, site)
		assert.Equal(t, site, sq.Neighbor(lattice.XMinus, xp), "XPlus/XMinus must be inverse")
		yp := sq.Neighbor(lattice.YPlus, site)
		assert.Equal(t, site, sq.Neighbor(lattice.YMinus, yp), "YPlus/YMinus must be inverse")
	}
}

func TestSquare_CheckerboardBondsPartitionAllBonds(t *testing.T) {
	sq := lattice.NewSquare(4)
	color0 := sq.CheckerboardBonds(lattice.XPlus, 0)
	color1 := sq.CheckerboardBonds(lattice.XPlus, 1)
	assert.Len(t, color0, sq.N/2)
	assert.Len(t, color1, sq.N/2)
	assert.Equal(t, sq.N, len(color0)+len(color1))
}

func TestSquare_SumNeighbors3(t *testing.T) {
	sq := lattice.NewSquare(2)
	at := func(site int) [3]float64 { return [3]float64{float64(site), 0, 0} }
	sum := sq.SumNeighbors3(0, at)
	// On a 2x2 periodic lattice XPlus and XMinus from site 0 both land on
	// site 1, and YPlus and YMinus both land on site 2, so the four
	// neighbors are 1,1,2,2.
	assert.Equal(t, 6.0, sum[0])
}

func TestChain_PlusMinusWrapPeriodically(t *testing.T) {
	c := lattice.NewChain(5)
	// Live slices run 1..M inclusive; slice 0 is the unused sentinel, so
	// the periodic boundary wraps M<->1, not M<->0.
	assert.Equal(t, 1, c.Plus(5))
	assert.Equal(t, 5, c.Minus(1))
	assert.Equal(t, 3, c.Plus(2))
	assert.Equal(t, 1, c.Minus(2))
}

func TestChain_PlusMinusAreInverses(t *testing.T) {
	c := lattice.NewChain(6)
	for k := 1; k <= c.M; k++ {
		assert.Equal(t, k, c.Minus(c.Plus(k)), "Minus(Plus(%d)) must round-trip", k)
		assert.Equal(t, k, c.Plus(c.Minus(k)), "Plus(Minus(%d)) must round-trip", k)
	}
}
