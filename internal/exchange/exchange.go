// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package exchange implements the replica-exchange (parallel tempering)
// coordinator: rank-0 bookkeeping of the process<->parameter permutations,
// the serial pairwise swap pass, and the diffusion/acceptance
// statistics. Grounded on detqmcpt.h's replicaExchangeStep and
// replicaExchangeConsistencyCheck, with boost::mpi's gather/scatter
// calls replaced by package collective's goroutine-based equivalents.
package exchange

import (
	"math"

	"github.com/pkg/errors"

	"github.com/pointlander/detqmcpt/internal/collective"
	"github.com/pointlander/detqmcpt/internal/rng"
)

// ErrConsistency is returned when the post-exchange consistency check
// fails: the permutation table has drifted out of sync with a replica's
// actual control parameter value.
var ErrConsistency = errors.New("exchange: control parameter value mismatch")

// Replica is the capability set the coordinator needs from whatever a
// process is running: reading/writing its control parameter, its
// tunable control-data blob, and its exchange-action contribution.
type Replica interface {
	GetExchangeParameterValue() float64
	SetExchangeParameterValue(v float64)
	GetExchangeActionContribution() float64
	GetControlData() []byte
	SetControlData(data []byte)
}

// ProbabilityFunc computes the Metropolis acceptance probability for
// swapping two replicas at adjacent control-parameter values, the
// model-supplied get_replica_exchange_probability(par1,S1,par2,S2)
// contract.
type ProbabilityFunc func(par1, action1, par2, action2 float64) float64

// DefaultProbability implements the reference SDW model's exchange
// probability. For the SDW model the control parameter r enters the
// action only through a term linear in r, so S_i(par) = par*action_i
// where action_i is the replica's exchange_action_contribution; the
// general p_exch = exp(-(S1(par2)-S1(par1) + S2(par1)-S2(par2))) formula
// then collapses to exp(-(par2-par1)*(action1-action2)).
func DefaultProbability(par1, action1, par2, action2 float64) float64 {
	return math.Exp(-(par2 - par1) * (action1 - action2))
}

// Extreme tags whether a process last touched the low or high end of the
// parameter ladder, tracked per process for the diffusion statistics.
type Extreme int

const (
	ExtremeNone Extreme = iota
	ExtremeUp
	ExtremeDown
)

// Stats accumulates the monotonic swap/diffusion counters, one slot per
// adjacent-pair index c in [0, P-2] for swap counters and one slot per
// parameter index for diffusion counters.
type Stats struct {
	SwapProposed []int64
	SwapAccepted []int64
	GoingUp      []int64
	GoingDown    []int64
	LastExtreme  []Extreme // indexed by process
}

// NewStats allocates zeroed statistics for p parameter values.
func NewStats(p int) *Stats {
	return &Stats{
		SwapProposed: make([]int64, p-1),
		SwapAccepted: make([]int64, p-1),
		GoingUp:      make([]int64, p),
		GoingDown:    make([]int64, p),
		LastExtreme:  make([]Extreme, p),
	}
}

// Coordinator owns the process<->parameter permutations and drives one
// replica-exchange round at a time. It is constructed once and its
// Round method is called by every simulated process concurrently,
// typically from inside a collective.Group.Run callback.
type Coordinator struct {
	ControlParameterValues []float64
	Probability            ProbabilityFunc

	// parOfProcess[p] is the parameter index currently assigned to
	// process p; processOfPar[c] is its inverse.
	parOfProcess []int
	processOfPar []int

	Stats *Stats

	gather  *collective.Gather[exchangeInput]
	scatter *collective.Scatter[exchangeOutput]
}

type exchangeInput struct {
	controlData []byte
	action      float64
}

type exchangeOutput struct {
	paramIndex  int
	controlData []byte
}

// NewCoordinator builds a Coordinator for len(controlParameterValues)
// processes, initially assigning process p to parameter index p.
func NewCoordinator(controlParameterValues []float64, probability ProbabilityFunc) *Coordinator {
	p := len(controlParameterValues)
	parOfProcess := make([]int, p)
	processOfPar := make([]int, p)
	for i := range parOfProcess {
		parOfProcess[i] = i
		processOfPar[i] = i
	}
	if probability == nil {
		probability = DefaultProbability
	}
	return &Coordinator{
		ControlParameterValues: controlParameterValues,
		Probability:            probability,
		parOfProcess:           parOfProcess,
		processOfPar:           processOfPar,
		Stats:                  NewStats(p),
	}
}

// ParOfProcess returns the parameter index currently assigned to process p.
func (c *Coordinator) ParOfProcess(p int) int { return c.parOfProcess[p] }

// ProcessOfPar returns the process currently assigned parameter index c.
func (c *Coordinator) ProcessOfPar(cpi int) int { return c.processOfPar[cpi] }

// BeginRound must be called by exactly one goroutine before the round's
// participants call Round, to install fresh one-shot gather/scatter
// collectives (collective.Gather/Scatter are single-use per round).
func (c *Coordinator) BeginRound() {
	p := len(c.ControlParameterValues)
	c.gather = collective.NewGather[exchangeInput](p)
	c.scatter = collective.NewScatter[exchangeOutput](p)
}

// Round performs one process's side of an exchange round: gather this
// process's control data and exchange-action contribution to rank 0,
// let rank 0 run the serial swap pass, then scatter back the (possibly
// new) parameter index and control data, finally applying them to the
// replica. Call BeginRound once before every concurrent invocation of
// Round across all processes. rootStream is only consulted at
// processIndex == 0; every other caller may pass nil.
func (c *Coordinator) Round(processIndex int, replica Replica, rootStream *rng.Counting) {
	localAction := replica.GetExchangeActionContribution()
	localData := replica.GetControlData()

	gathered := c.gather.Collect(processIndex, exchangeInput{controlData: localData, action: localAction})

	var scatterFrom []exchangeOutput
	if processIndex == 0 {
		c.runSwapPass(gathered, rootStream)
		scatterFrom = make([]exchangeOutput, len(gathered))
		for proc := range scatterFrom {
			cpi := c.parOfProcess[proc]
			scatterFrom[proc] = exchangeOutput{
				paramIndex:  cpi,
				controlData: gathered[c.processOfPar[cpi]].controlData,
			}
		}
	}
	out := c.scatter.Distribute(processIndex, scatterFrom)

	replica.SetExchangeParameterValue(c.ControlParameterValues[out.paramIndex])
	replica.SetControlData(out.controlData)
}

// runSwapPass updates the diffusion histograms, then walks adjacent
// parameter pairs proposing swaps, using only the actions gathered
// before the pass began.
func (c *Coordinator) runSwapPass(gathered []exchangeInput, stream *rng.Counting) {
	p := len(c.ControlParameterValues)
	for proc := 0; proc < p; proc++ {
		cpi := c.parOfProcess[proc]
		switch cpi {
		case 0:
			c.Stats.LastExtreme[proc] = ExtremeUp
		case p - 1:
			c.Stats.LastExtreme[proc] = ExtremeDown
		}
		switch c.Stats.LastExtreme[proc] {
		case ExtremeUp:
			c.Stats.GoingUp[cpi]++
		case ExtremeDown:
			c.Stats.GoingDown[cpi]++
		}
	}

	// Each control-data buffer moves with its process index; track it
	// here so the swap pass can exchange buffers alongside permutation
	// entries without mutating the caller's gathered slice ordering.
	controlData := make([][]byte, p)
	for proc, in := range gathered {
		controlData[proc] = in.controlData
	}

	for cpi1 := 0; cpi1 < p-1; cpi1++ {
		cpi2 := cpi1 + 1
		par1, par2 := c.ControlParameterValues[cpi1], c.ControlParameterValues[cpi2]
		proc1, proc2 := c.processOfPar[cpi1], c.processOfPar[cpi2]
		action1, action2 := gathered[proc1].action, gathered[proc2].action

		prob := c.Probability(par1, action1, par2, action2)
		c.Stats.SwapProposed[cpi1]++
		accept := prob >= 1 || stream.Float64() < prob
		if !accept {
			continue
		}
		c.Stats.SwapAccepted[cpi1]++
		c.parOfProcess[proc1], c.parOfProcess[proc2] = cpi2, cpi1
		c.processOfPar[cpi1], c.processOfPar[cpi2] = proc2, proc1
		controlData[proc1], controlData[proc2] = controlData[proc2], controlData[proc1]
		gathered[proc1].controlData, gathered[proc2].controlData = controlData[proc1], controlData[proc2]
	}
}

// ConsistencyCheck checks that the replica's own exchange-parameter
// value matches the permutation table's record for it, to within
// 1e-10.
func (c *Coordinator) ConsistencyCheck(processIndex int, replica Replica) error {
	got := replica.GetExchangeParameterValue()
	want := c.ControlParameterValues[c.parOfProcess[processIndex]]
	if math.Abs(got-want) > 1e-10 {
		return errors.Wrapf(ErrConsistency, "process %d: got %.12g want %.12g", processIndex, got, want)
	}
	return nil
}

// RootConsistencyCheck additionally verifies, at rank 0, every gathered
// value against the permutation table.
func (c *Coordinator) RootConsistencyCheck(values []float64) error {
	for p, v := range values {
		want := c.ControlParameterValues[c.parOfProcess[p]]
		if math.Abs(v-want) > 1e-10 {
			return errors.Wrapf(ErrConsistency, "process %d: got %.12g want %.12g", p, v, want)
		}
	}
	return nil
}
