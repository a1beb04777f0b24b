package runloop_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/pointlander/detqmcpt/internal/bmat"
	"github.com/pointlander/detqmcpt/internal/green"
	"github.com/pointlander/detqmcpt/internal/rng"
	"github.com/pointlander/detqmcpt/internal/runloop"
	"github.com/pointlander/detqmcpt/internal/sdw"
	"github.com/pointlander/detqmcpt/internal/sweep"
)

type fakeSaver struct {
	calls  int
	stages []runloop.Stage
}

func (f *fakeSaver) Save(stage runloop.Stage, _ runloop.Counters) error {
	f.calls++
	f.stages = append(f.stages, stage)
	return nil
}

func newTestDriver(t *testing.T) *sweep.Driver {
	t.Helper()
	p := sdw.Params{
		L: 2, M: 2,
		Dtau: 0.1, Mu: 0, R: 1, U: 1, C: 1,
		THor: 1, TVer: 1,
		PhiDeltaInit: 0.5, TargetAccRatio: 0.5, AccRatioAdjustmentSamples: 1,
	}
	model, err := sdw.NewModel(p, rng.New(1))
	require.NoError(t, err)
	provider := bmat.New(model)
	engine, err := green.NewEngine(provider, 4*model.N(), 1, p.M, 1e-6, logrus.StandardLogger())
	require.NoError(t, err)
	return sweep.New(model, engine)
}

// With Sweeps=0 and nonzero Thermalization, the loop must reach Finished
// immediately after thermalization completes rather than entering Measure
// and sweeping forever.
func TestLoop_ZeroSweepsFinishesAfterThermalization(t *testing.T) {
	driver := newTestDriver(t)
	l := runloop.New(runloop.Params{
		Thermalization: 2,
		Sweeps:         0,
		SaveInterval:   1000,
	}, runloop.Hooks{
		Driver: driver,
		Stream: rng.NewCounting(2),
	}, runloop.Counters{})

	err := l.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, runloop.Finished, l.Stage())
	require.Equal(t, 2, l.Counters.SweepsDoneThermalization)
	require.Equal(t, 0, l.Counters.SweepsDone)
}

func TestLoop_NonzeroSweepsReachesFinishedAfterMeasuring(t *testing.T) {
	driver := newTestDriver(t)
	l := runloop.New(runloop.Params{
		Thermalization: 1,
		Sweeps:         2,
		SaveInterval:   1000,
	}, runloop.Hooks{
		Driver: driver,
		Stream: rng.NewCounting(3),
	}, runloop.Counters{})

	err := l.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, runloop.Finished, l.Stage())
	require.Equal(t, 2, l.Counters.SweepsDone)
}

// When one of Params.AbortFilePaths exists on disk, Run must return via
// saveAndExit as soon as it next polls shouldStopNow, well short of the
// configured sweep count, rather than completing thermalization and
// measurement.
func TestLoop_AbortFilePresentStopsBeforeFinished(t *testing.T) {
	driver := newTestDriver(t)
	abortPath := filepath.Join(t.TempDir(), "ABORT.nojobid")
	require.NoError(t, os.WriteFile(abortPath, []byte{}, 0o644))

	saver := &fakeSaver{}
	l := runloop.New(runloop.Params{
		Thermalization: 5,
		Sweeps:         5,
		SaveInterval:   1000,
		AbortFilePaths: []string{abortPath},
	}, runloop.Hooks{
		Driver: driver,
		Stream: rng.NewCounting(4),
	}, runloop.Counters{})
	l.Saver = saver

	err := l.Run(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, runloop.Finished, l.Stage())
	require.Less(t, l.Counters.SweepsDoneThermalization, 5)
	require.Equal(t, 1, saver.calls)
}
