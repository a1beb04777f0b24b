package timing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointlander/detqmcpt/internal/timing"
)

func TestRegistry_StartAccumulatesCallsAndDuration(t *testing.T) {
	r := timing.New()
	for i := 0; i < 3; i++ {
		stop := r.Start("exchange")
		time.Sleep(time.Millisecond)
		stop()
	}
	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "exchange", snap[0].Name)
	assert.Equal(t, uint64(3), snap[0].Calls)
	assert.Greater(t, snap[0].Duration, time.Duration(0))
}

func TestRegistry_SnapshotSortedByDescendingDuration(t *testing.T) {
	r := timing.New()
	stopShort := r.Start("short")
	time.Sleep(time.Millisecond)
	stopShort()

	stopLong := r.Start("long")
	time.Sleep(5 * time.Millisecond)
	stopLong()

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "long", snap[0].Name)
	assert.Equal(t, "short", snap[1].Name)
}

func TestRegistry_Reset(t *testing.T) {
	r := timing.New()
	stop := r.Start("section")
	stop()
	require.Len(t, r.Snapshot(), 1)

	r.Reset()
	assert.Empty(t, r.Snapshot())
}
