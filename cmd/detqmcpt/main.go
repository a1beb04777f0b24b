// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command detqmcpt runs a determinant quantum Monte Carlo simulation of
// the SDW model, optionally under replica-exchange (parallel tempering)
// across a ladder of control-parameter values. Flags and config file
// wiring follow Ribengame-hunter's cobra/viper rootCmd idiom.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pointlander/detqmcpt/internal/archive"
	"github.com/pointlander/detqmcpt/internal/bmat"
	"github.com/pointlander/detqmcpt/internal/collective"
	"github.com/pointlander/detqmcpt/internal/config"
	"github.com/pointlander/detqmcpt/internal/exchange"
	"github.com/pointlander/detqmcpt/internal/green"
	"github.com/pointlander/detqmcpt/internal/observable"
	"github.com/pointlander/detqmcpt/internal/report"
	"github.com/pointlander/detqmcpt/internal/rng"
	"github.com/pointlander/detqmcpt/internal/runloop"
	"github.com/pointlander/detqmcpt/internal/sdw"
	"github.com/pointlander/detqmcpt/internal/sweep"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "detqmcpt",
	Short: "Determinant QMC with replica exchange for the SDW model",
	Long: `detqmcpt runs a determinant quantum Monte Carlo simulation of the
spin-density-wave auxiliary field model on a periodic square lattice,
optionally exchanging replicas across a ladder of control-parameter
values (parallel tempering).`,
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", "detqmcpt.yaml", "configuration file path")
	config.BindFlags(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}

	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Logging.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	runID := uuid.NewString()
	log.WithFields(logrus.Fields{"run_id": runID, "job_id": cfg.JobID}).Info("detqmcpt: starting")

	values := cfg.PT.ControlParameterValues
	if len(values) == 0 {
		values = []float64{cfg.Model.R}
	}
	p := len(values)

	outDir := filepath.Dir(cfg.MC.StateFileName)
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Warn("detqmcpt: signal received, requesting graceful shutdown")
		cancel()
	}()

	if p == 1 {
		return runSingle(ctx, log, cfg, values[0], runID)
	}
	return runEnsemble(ctx, log, cfg, values, runID)
}

// replicaContext bundles the per-process pieces a single replica needs
// to build its runloop.Loop, so runSingle and runEnsemble can share the
// bulk of the wiring.
type replicaContext struct {
	processIndex int
	model        *sdw.Model
	engine       *green.Engine
	driver       *sweep.Driver
	stream       *rng.Counting
	observables  *observable.Set
	counters     runloop.Counters
	statePath    string
	subdir       string
}

func buildReplica(cfg *config.Config, processIndex int, controlValue float64, log logrus.FieldLogger) (*replicaContext, error) {
	modelParams, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	modelParams.R = controlValue

	seed := rng.Seed(cfg.MC.RNGSeed, 0, processIndex)
	stream := rng.NewCounting(seed)

	model, err := sdw.NewModel(modelParams, stream.Stream)
	if err != nil {
		return nil, errors.Wrap(err, "build model")
	}

	statePath := stateFilePath(cfg.MC.StateFileName, processIndex)
	subdir := report.ParameterSubdir(processIndex, cfg.PT.ControlParameterName, controlValue)

	rc := &replicaContext{
		processIndex: processIndex,
		model:        model,
		stream:       stream,
		observables:  observable.NewSet(processIndex, model.Lattice),
		statePath:    statePath,
		subdir:       subdir,
	}

	if err := rc.loadOrInit(cfg, log); err != nil {
		return nil, err
	}
	return rc, nil
}

// loadOrInit resumes rc's model/engine/observables from a checkpoint at
// rc.statePath when one exists, otherwise builds them fresh.
func (rc *replicaContext) loadOrInit(cfg *config.Config, log logrus.FieldLogger) error {
	multiplier := bmat.New(rc.model)
	dim := 4 * rc.model.N()

	if _, err := os.Stat(rc.statePath); err == nil {
		state, err := archive.Load(rc.statePath)
		if err != nil {
			return errors.Wrapf(err, "resume: load %s", rc.statePath)
		}
		field, err := sdw.Load(rc.model.N(), rc.model.Params.M, rc.model.Params.Dtau, state.Replica.Phi)
		if err != nil {
			return errors.Wrap(err, "resume: restore field")
		}
		rc.model.SetField(field)
		rc.model.PhiDelta = state.Replica.PhiDelta
		rc.model.LastAccRat = state.Replica.LastAccRat
		rc.model.SetExchangeParameterValue(state.Replica.ExchangeParamVal)
		rc.stream = rng.RestoreCounting(state.RNG)
		rc.observables = archive.SnapshotToObservables(state.Observables)
		rc.counters = state.Counters

		engine, err := green.NewEngine(multiplier, dim, cfg.MC.NStab, rc.model.Params.M, cfg.MC.EpsStab, log)
		if err != nil {
			return errors.Wrap(err, "resume: rebuild green engine")
		}
		engine.SetG(state.Replica.GreenReal.Restore(), state.Replica.CurrentSlice)
		rc.engine = engine
		rc.driver = sweep.New(rc.model, rc.engine)
		return nil
	}

	engine, err := green.NewEngine(multiplier, dim, cfg.MC.NStab, rc.model.Params.M, cfg.MC.EpsStab, log)
	if err != nil {
		return errors.Wrap(err, "build green engine")
	}
	rc.engine = engine
	rc.driver = sweep.New(rc.model, rc.engine)
	return nil
}

// stateFilePath returns the per-process checkpoint path: process 0 (the
// only process of a single-replica run) uses the configured base name,
// and every other process a `.p<processIndex>` suffixed variant.
func stateFilePath(base string, processIndex int) string {
	if processIndex == 0 {
		return base
	}
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s.p%d%s", base[:len(base)-len(ext)], processIndex, ext)
}

// stateSaver adapts one replica's archival needs to runloop.Saver:
// writing a resumable binary checkpoint, and on Measure/Finished
// boundaries also flushing the plain-text report artifacts.
type stateSaver struct {
	cfg    *config.Config
	values []float64
	rc     *replicaContext
	coord  *exchange.Coordinator
	log    logrus.FieldLogger
}

func (s *stateSaver) Save(stage runloop.Stage, counters runloop.Counters) error {
	rc := s.rc
	state := archive.State{
		Logging: s.cfg.Logging,
		Model:   s.cfg.Model,
		MC:      s.cfg.MC,
		PT:      s.cfg.PT,

		RNG:         rc.stream.State(),
		Observables: archive.ObservablesToSnapshot(rc.observables),
		Counters:    counters,

		LocalCurrentParameterIndex: rc.processIndex,

		Replica: archive.ReplicaSnapshot{
			Phi:              rc.model.Field.Snapshot(),
			GreenReal:        archive.SnapshotMatrix(rc.engine.G),
			CurrentSlice:     rc.engine.K,
			PhiDelta:         rc.model.PhiDelta,
			LastAccRat:       rc.model.LastAccRat,
			ExchangeParamVal: rc.model.GetExchangeParameterValue(),
		},
	}
	if s.coord != nil && rc.processIndex == 0 {
		p := len(s.values)
		parOfProcess := make([]int, p)
		processOfPar := make([]int, p)
		for i := 0; i < p; i++ {
			parOfProcess[i] = s.coord.ParOfProcess(i)
			processOfPar[i] = s.coord.ProcessOfPar(i)
		}
		state.Exchange = archive.ExchangeSnapshot{
			ParOfProcess: parOfProcess,
			ProcessOfPar: processOfPar,
			Stats:        *s.coord.Stats,
		}
	}
	if err := archive.Save(rc.statePath, state); err != nil {
		return errors.Wrap(err, "stateSaver: save checkpoint")
	}
	manifest := archive.Manifest{
		Stage: stage.String(),
		Model: s.cfg.Model,
		MC:    s.cfg.MC,

		SweepsDone:               counters.SweepsDone,
		SweepsDoneThermalization: counters.SweepsDoneThermalization,

		LastAccRat: rc.model.LastAccRat,
		PhiDelta:   rc.model.PhiDelta,
	}
	if err := archive.WriteManifest(archive.ManifestPath(rc.statePath), manifest); err != nil {
		return errors.Wrap(err, "stateSaver: write manifest")
	}

	if stage == runloop.Measure || stage == runloop.Finished {
		if err := s.writeReport(); err != nil {
			return errors.Wrap(err, "stateSaver: write report")
		}
	}
	return nil
}

func (s *stateSaver) writeReport() error {
	rc := s.rc
	dir := filepath.Join(filepath.Dir(rc.statePath), rc.subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	kv := rc.model.PrepareModelMetadataMap()
	if err := report.WriteInfoDat(dir, "detqmcpt run metadata", kv, map[string]string{
		"job_id": s.cfg.JobID,
	}); err != nil {
		return err
	}
	if err := report.WriteSeries(dir, rc.observables.NormPhi); err != nil {
		return err
	}
	if err := report.WriteSeries(dir, rc.observables.AccRatio); err != nil {
		return err
	}
	if err := report.WriteSeries(dir, rc.observables.PhiDelta); err != nil {
		return err
	}
	if s.coord != nil && rc.processIndex == 0 {
		top := filepath.Dir(rc.statePath)
		if err := report.WriteExchangeValues(top, s.values, s.coord.Stats); err != nil {
			return err
		}
	}
	return nil
}

// runSingle drives one replica with no exchange coordinator, the P=1
// boundary case: no collective.Group, no barrier, no gather/scatter.
func runSingle(ctx context.Context, log *logrus.Logger, cfg *config.Config, controlValue float64, runID string) error {
	rc, err := buildReplica(cfg, 0, controlValue, log)
	if err != nil {
		return err
	}

	loop := runloop.New(runloopParams(cfg), runloop.Hooks{
		Driver:      rc.driver,
		Stream:      rc.stream,
		Observables: rc.observables,
	}, rc.counters)
	loop.Log = log
	loop.Saver = &stateSaver{cfg: cfg, values: []float64{controlValue}, rc: rc, log: log}

	if err := loop.Run(ctx); err != nil {
		return errors.Wrap(err, "run loop")
	}
	log.WithField("run_id", runID).Info("detqmcpt: finished")
	return nil
}

// runEnsemble drives len(values) replicas concurrently, each in its own
// goroutine under a collective.Group, sharing one exchange.Coordinator
// and one collective.Barrier to keep every process's replica-exchange
// round aligned with rank 0's BeginRound call.
func runEnsemble(ctx context.Context, log *logrus.Logger, cfg *config.Config, values []float64, runID string) error {
	p := len(values)
	group := collective.New(p)
	barrier := collective.NewBarrier(p)
	coord := exchange.NewCoordinator(values, nil)

	return group.Run(ctx, func(ctx context.Context, processIndex int) error {
		replicaLog := log.WithField("process", processIndex)
		rc, err := buildReplica(cfg, processIndex, values[processIndex], replicaLog)
		if err != nil {
			return errors.Wrapf(err, "process %d: build replica", processIndex)
		}

		loop := runloop.New(runloopParams(cfg), runloop.Hooks{
			Driver:             rc.driver,
			Stream:             rc.stream,
			Observables:        rc.observables,
			ThermalizationOver: func() { rc.model.ThermalizationOver(processIndex) },
		}, rc.counters)
		loop.Log = replicaLog
		loop.Coord = coord
		loop.Barrier = barrier
		loop.Replica = rc.model
		loop.ProcessIndex = processIndex
		loop.Saver = &stateSaver{cfg: cfg, values: values, rc: rc, coord: coord, log: replicaLog}

		if err := loop.Run(ctx); err != nil {
			return errors.Wrapf(err, "process %d: run loop", processIndex)
		}
		replicaLog.WithField("run_id", runID).Info("detqmcpt: replica finished")
		return nil
	})
}

func runloopParams(cfg *config.Config) runloop.Params {
	return runloop.Params{
		Thermalization:   cfg.MC.Thermalization,
		Sweeps:           cfg.MC.Sweeps,
		MeasureInterval:  cfg.MC.MeasureInterval,
		SaveInterval:     cfg.MC.SaveInterval,
		ExchangeInterval: cfg.PT.ExchangeInterval,
		GreenUpdateType:  runloop.GreenUpdateType(cfg.MC.GreenUpdateType),
		GrantedWalltime:  cfg.GrantedWalltime,
		SafetyMargin:     0,
		AbortFilePaths:   config.AbortFilePaths(cfg.JobID),
	}
}
