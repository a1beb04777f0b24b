// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package collective provides the small set of collective operations
// the replica-exchange coordinator needs — gather, scatter, broadcast
// and barrier — implemented over in-process goroutines and channels
// rather than a message-passing library. No repository anywhere in the
// retrieval pack imports an MPI binding, so each simulated process
// becomes one goroutine, and each collective becomes a rendezvous
// coordinated with golang.org/x/sync/errgroup, in the spirit of
// Ribengame-hunter's errgroup-per-phase orchestration.
package collective

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Group runs numProcesses worker functions concurrently, one per
// simulated process, cancelling all of them if any returns an error.
// It is the Go stand-in for "mpirun -n numProcesses".
type Group struct {
	numProcesses int
}

// New creates a Group of n simulated processes.
func New(n int) *Group {
	return &Group{numProcesses: n}
}

// N returns the number of simulated processes.
func (g *Group) N() int { return g.numProcesses }

// Run executes fn(ctx, processIndex) for every process concurrently and
// waits for them all, short-circuiting on the first error (errgroup's
// contract), mirroring an MPI job's all-or-nothing failure semantics.
func (g *Group) Run(ctx context.Context, fn func(ctx context.Context, processIndex int) error) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for p := 0; p < g.numProcesses; p++ {
		p := p
		eg.Go(func() error { return fn(egCtx, p) })
	}
	return eg.Wait()
}

// Barrier is a reusable rendezvous point for exactly n participants,
// standing in for MPI_Barrier.
type Barrier struct {
	n     int
	mu    sync.Mutex
	count int
	ch    chan struct{}
}

// NewBarrier creates a Barrier for n participants.
func NewBarrier(n int) *Barrier {
	return &Barrier{n: n, ch: make(chan struct{})}
}

// Wait blocks until all n participants have called Wait, then releases
// them all together. A Barrier starts a fresh generation on every
// release, so the same Barrier can be waited on again for the next
// round.
func (b *Barrier) Wait() {
	b.mu.Lock()
	ch := b.ch
	b.count++
	if b.count == b.n {
		b.count = 0
		b.ch = make(chan struct{})
		close(ch)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	<-ch
}

// Gather collects one value per process into a rank-0-visible slice.
// Every process (including rank 0) calls Gather with its own value;
// the call returns the full slice only to the caller with
// processIndex == 0, and nil to everyone else — mirroring MPI_Gather's
// "only root receives" contract.
type Gather[T any] struct {
	n       int
	barrier *Barrier
	mu      sync.Mutex
	values  []T
}

// NewGather creates a Gather collective for n participants.
func NewGather[T any](n int) *Gather[T] {
	return &Gather[T]{n: n, barrier: NewBarrier(n), values: make([]T, n)}
}

// Collect is called once per process; it stores value at processIndex
// and blocks until every process has called Collect, then returns the
// full slice to processIndex==0 and nil otherwise.
func (g *Gather[T]) Collect(processIndex int, value T) []T {
	g.mu.Lock()
	g.values[processIndex] = value
	g.mu.Unlock()
	g.barrier.Wait()
	if processIndex == 0 {
		out := make([]T, g.n)
		copy(out, g.values)
		return out
	}
	return nil
}

// Scatter distributes one value per process from rank 0's input slice.
type Scatter[T any] struct {
	n       int
	barrier *Barrier
	mu      sync.Mutex
	values  []T
}

// NewScatter creates a Scatter collective for n participants.
func NewScatter[T any](n int) *Scatter[T] {
	return &Scatter[T]{n: n, barrier: NewBarrier(n)}
}

// Distribute is called once per process. The call from processIndex==0
// must carry the full slice to distribute (fromRoot); every other call's
// fromRoot argument is ignored. All calls block until rank 0 has
// supplied its slice and every process has rendezvoused, then each
// returns its own entry.
func (s *Scatter[T]) Distribute(processIndex int, fromRoot []T) T {
	if processIndex == 0 {
		s.mu.Lock()
		s.values = fromRoot
		s.mu.Unlock()
	}
	s.barrier.Wait()
	return s.values[processIndex]
}

// Broadcast distributes one value from rank 0 to every process.
type Broadcast[T any] struct {
	n       int
	barrier *Barrier
	mu      sync.Mutex
	value   T
}

// NewBroadcast creates a Broadcast collective for n participants.
func NewBroadcast[T any](n int) *Broadcast[T] {
	return &Broadcast[T]{n: n, barrier: NewBarrier(n)}
}

// Send is called once per process; the call from processIndex==0 must
// carry the value to broadcast. Every call returns that value once all
// processes have rendezvoused.
func (b *Broadcast[T]) Send(processIndex int, value T) T {
	if processIndex == 0 {
		b.mu.Lock()
		b.value = value
		b.mu.Unlock()
	}
	b.barrier.Wait()
	return b.value
}
