package collective_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointlander/detqmcpt/internal/collective"
)

func TestGroup_RunExecutesEveryProcess(t *testing.T) {
	g := collective.New(5)
	assert.Equal(t, 5, g.N())

	var mu sync.Mutex
	var seen []int
	err := g.Run(context.Background(), func(_ context.Context, processIndex int) error {
		mu.Lock()
		seen = append(seen, processIndex)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	sort.Ints(seen)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
}

func TestGroup_RunPropagatesFirstError(t *testing.T) {
	g := collective.New(4)
	wantErr := errors.New("boom")
	err := g.Run(context.Background(), func(_ context.Context, processIndex int) error {
		if processIndex == 2 {
			return wantErr
		}
		return nil
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestBarrier_ReleasesAllParticipantsTogether(t *testing.T) {
	n := 8
	b := collective.NewBarrier(n)
	var wg sync.WaitGroup
	var mu sync.Mutex
	releasedBeforeAnyReturn := 0

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			b.Wait()
			mu.Lock()
			releasedBeforeAnyReturn++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, n, releasedBeforeAnyReturn)
}

func TestBarrier_ReusableAcrossMultipleRounds(t *testing.T) {
	n := 4
	rounds := 20
	b := collective.NewBarrier(n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				b.Wait()
			}
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("barrier did not release on every round")
	}
}

func TestGather_CollectsToRankZeroOnly(t *testing.T) {
	n := 4
	g := collective.NewGather[int](n)
	var wg sync.WaitGroup
	results := make([][]int, n)
	wg.Add(n)
	for p := 0; p < n; p++ {
		p := p
		go func() {
			defer wg.Done()
			results[p] = g.Collect(p, p*10)
		}()
	}
	wg.Wait()

	require.NotNil(t, results[0])
	assert.Equal(t, []int{0, 10, 20, 30}, results[0])
	for p := 1; p < n; p++ {
		assert.Nil(t, results[p], "non-root must receive nil")
	}
}

func TestScatter_DistributesFromRankZero(t *testing.T) {
	n := 3
	s := collective.NewScatter[string](n)
	fromRoot := []string{"a", "b", "c"}
	var wg sync.WaitGroup
	got := make([]string, n)
	wg.Add(n)
	for p := 0; p < n; p++ {
		p := p
		go func() {
			defer wg.Done()
			got[p] = s.Distribute(p, fromRoot)
		}()
	}
	wg.Wait()
	assert.Equal(t, fromRoot, got)
}

func TestBroadcast_SendsRankZeroValueToAll(t *testing.T) {
	n := 5
	b := collective.NewBroadcast[int](n)
	var wg sync.WaitGroup
	got := make([]int, n)
	wg.Add(n)
	for p := 0; p < n; p++ {
		p := p
		go func() {
			defer wg.Done()
			got[p] = b.Send(p, 99)
		}()
	}
	wg.Wait()
	for _, v := range got {
		assert.Equal(t, 99, v)
	}
}
