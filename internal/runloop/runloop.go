// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package runloop drives the thermalize/measure/finished state machine,
// scheduling measurement, checkpoint-save and replica-exchange rounds
// and handling graceful shutdown on walltime expiry or an external
// abort sentinel file.
package runloop

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pointlander/detqmcpt/internal/collective"
	"github.com/pointlander/detqmcpt/internal/exchange"
	"github.com/pointlander/detqmcpt/internal/observable"
	"github.com/pointlander/detqmcpt/internal/rng"
	"github.com/pointlander/detqmcpt/internal/sweep"
	"github.com/pointlander/detqmcpt/internal/timing"
)

// Stage is one of the three states of the run loop's state machine.
type Stage int

const (
	Thermalize Stage = iota
	Measure
	Finished
)

func (s Stage) String() string {
	switch s {
	case Thermalize:
		return "thermalize"
	case Measure:
		return "measure"
	default:
		return "finished"
	}
}

// GreenUpdateType selects which pair of sweep.Driver methods the loop
// dispatches to.
type GreenUpdateType string

const (
	GreenUpdateSimple     GreenUpdateType = "simple"
	GreenUpdateStabilized GreenUpdateType = "stabilized"
)

// Params collects the run-loop scheduling knobs.
type Params struct {
	Thermalization   int
	Sweeps           int
	MeasureInterval  int
	SaveInterval     int
	ExchangeInterval int
	GreenUpdateType  GreenUpdateType
	GrantedWalltime  time.Duration
	AbortFilePaths   []string
	SafetyMargin     time.Duration
}

// Counters is the run-loop's own persisted bookkeeping: sweepsDone,
// sweepsDoneThermalization, swCounter and the accumulated wall-clock time.
type Counters struct {
	SweepsDone               int
	SweepsDoneThermalization int
	SwCounter                int
	TotalWalltime            time.Duration
}

// Saver persists the current state (and, in the Measure stage, results)
// to disk; the run loop calls it on every saveInterval boundary and on
// graceful shutdown.
type Saver interface {
	Save(stage Stage, counters Counters) error
}

// Hooks are the model-facing callbacks the loop drives: one sweep call
// per iteration (dispatched to the right sweepX variant by the loop
// itself), a measurement sink, and the one-shot thermalization-over
// notification.
type Hooks struct {
	Driver             *sweep.Driver
	Stream             *rng.Counting
	Observables        *observable.Set
	ThermalizationOver func()
}

// Loop owns one process's replica-exchange participation (nil Coord
// disables exchange entirely, the single-replica boundary case) and
// drives Hooks through the T/M/F state machine. When Coord is set,
// Barrier must be a barrier shared by every process's Loop so that
// process 0's Coord.BeginRound() happens-before every process's
// Coord.Round() call for the same round.
type Loop struct {
	Params       Params
	Hooks        Hooks
	Coord        *exchange.Coordinator
	Barrier      *collective.Barrier
	Replica      exchange.Replica
	ProcessIndex int
	Saver        Saver
	Log          logrus.FieldLogger
	Timing       *timing.Registry

	Counters  Counters
	stage     Stage
	startTime time.Time
}

// New constructs a Loop, choosing the initial stage from persisted
// counters: T if thermalization incomplete, else M if measurement
// incomplete, else F.
func New(p Params, hooks Hooks, counters Counters) *Loop {
	l := &Loop{Params: p, Hooks: hooks, Counters: counters, Timing: timing.New()}
	l.stage = initialStage(p, counters)
	return l
}

func initialStage(p Params, c Counters) Stage {
	if c.SweepsDoneThermalization < p.Thermalization {
		return Thermalize
	}
	if c.SweepsDone < p.Sweeps {
		return Measure
	}
	return Finished
}

// Stage returns the loop's current stage.
func (l *Loop) Stage() Stage { return l.stage }

// Run executes the big loop until it reaches Finished or ctx is
// cancelled, returning nil on a clean finish or graceful shutdown.
func (l *Loop) Run(ctx context.Context) error {
	if l.Log == nil {
		l.Log = logrus.StandardLogger()
	}
	l.startTime = time.Now()
	for l.stage != Finished {
		if ctx.Err() != nil {
			return l.saveAndExit(Finished)
		}
		if l.Counters.SwCounter%2 == 0 {
			if l.shouldStopNow() {
				return l.saveAndExit(l.stage)
			}
		}
		if err := l.step(); err != nil {
			return err
		}
		if l.exchangeDue() {
			if err := l.runExchange(); err != nil {
				return err
			}
		}
	}
	return nil
}

// shouldStopNow implements the walltime/abort-file poll: only rank 0
// actually checks, but every process must agree, so the caller is
// expected to broadcast this result across processes when running
// multi-replica (package collective.Broadcast); a single-process run
// simply uses its own answer directly.
func (l *Loop) shouldStopNow() bool {
	elapsed := l.Counters.TotalWalltime + time.Since(l.startTime)
	if l.Params.GrantedWalltime > 0 && elapsed > l.Params.GrantedWalltime-l.Params.SafetyMargin {
		l.Log.Warn("runloop: granted walltime nearly exceeded, stopping")
		return true
	}
	for _, path := range l.Params.AbortFilePaths {
		if _, err := os.Stat(path); err == nil {
			l.Log.WithField("path", path).Warn("runloop: abort sentinel file found, stopping")
			return true
		}
	}
	return false
}

func (l *Loop) saveAndExit(stage Stage) error {
	l.Counters.TotalWalltime += time.Since(l.startTime)
	if l.Saver != nil {
		return l.Saver.Save(stage, l.Counters)
	}
	return nil
}

func (l *Loop) exchangeDue() bool {
	if l.stage == Finished || l.Params.ExchangeInterval == 0 {
		return false
	}
	total := l.Counters.SweepsDone + l.Counters.SweepsDoneThermalization
	return total%l.Params.ExchangeInterval == 0
}

func (l *Loop) runExchange() error {
	if l.Coord == nil {
		return nil
	}
	stop := l.Timing.Start("exchange")
	defer stop()
	if l.ProcessIndex == 0 {
		l.Coord.BeginRound()
	}
	if l.Barrier != nil {
		l.Barrier.Wait()
	}
	l.Coord.Round(l.ProcessIndex, l.Replica, l.Hooks.Stream)
	if err := l.Coord.ConsistencyCheck(l.ProcessIndex, l.Replica); err != nil {
		return err
	}
	return nil
}

func (l *Loop) step() error {
	switch l.stage {
	case Thermalize:
		return l.stepThermalize()
	case Measure:
		return l.stepMeasure()
	default:
		return nil
	}
}

func (l *Loop) stepThermalize() error {
	stop := l.Timing.Start("sweep")
	var err error
	if l.Params.GreenUpdateType == GreenUpdateSimple {
		err = l.Hooks.Driver.SweepSimpleThermalization(l.Hooks.Stream)
	} else {
		err = l.Hooks.Driver.SweepThermalization(l.Hooks.Stream)
	}
	stop()
	if err != nil {
		return err
	}
	l.Counters.SweepsDoneThermalization++
	l.Counters.SwCounter++
	if l.Counters.SwCounter == l.Params.SaveInterval {
		l.Counters.SwCounter = 0
		if err := l.saveAndExit(Thermalize); err != nil {
			return err
		}
	}
	if l.Counters.SweepsDoneThermalization == l.Params.Thermalization {
		if l.Hooks.ThermalizationOver != nil {
			l.Hooks.ThermalizationOver()
		}
		l.Counters.SwCounter = 0
		if l.Params.Sweeps == 0 {
			l.stage = Finished
		} else {
			l.stage = Measure
		}
	}
	return nil
}

func (l *Loop) stepMeasure() error {
	l.Counters.SwCounter++
	takeMeasurement := l.Params.MeasureInterval > 0 && l.Counters.SwCounter%l.Params.MeasureInterval == 0

	stop := l.Timing.Start("sweep")
	var err error
	if l.Params.GreenUpdateType == GreenUpdateSimple {
		err = l.Hooks.Driver.SweepSimple(l.Hooks.Stream)
	} else {
		err = l.Hooks.Driver.Sweep(l.Hooks.Stream)
	}
	stop()
	if err != nil {
		return err
	}

	if takeMeasurement && l.Hooks.Observables != nil {
		l.Hooks.Driver.Model.Measure(l.Hooks.Observables)
	}

	l.Counters.SweepsDone++
	if l.Counters.SwCounter == l.Params.SaveInterval {
		l.Counters.SwCounter = 0
		if err := l.saveAndExit(Measure); err != nil {
			return err
		}
	}
	if l.Counters.SweepsDone == l.Params.Sweeps {
		l.Counters.SwCounter = 0
		l.stage = Finished
	}
	return nil
}
