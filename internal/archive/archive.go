// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package archive persists and restores the full simulation state as a
// single gob-encoded binary file: parameter groups, then RNG state, all
// observable handler contents, run-loop counters, the exchange
// permutation tables and statistics, and finally the replica's own
// state (field, current slice, Green's function). Grounded on
// detsdw.cpp/detqmcpt.h's boost::serialization archives, replaced with
// encoding/gob since no repository in the retrieval pack depends on a
// boost-serialization equivalent and gob is the only binary archive
// format stdlib or the pack's stack provides natively.
package archive

import (
	"bytes"
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/pointlander/detqmcpt/internal/config"
	"github.com/pointlander/detqmcpt/internal/exchange"
	"github.com/pointlander/detqmcpt/internal/linalg"
	"github.com/pointlander/detqmcpt/internal/observable"
	"github.com/pointlander/detqmcpt/internal/rng"
	"github.com/pointlander/detqmcpt/internal/runloop"
)

// ErrVersionMismatch is returned when a loaded archive's format version
// does not match the current reader.
var ErrVersionMismatch = errors.New("archive: state file version mismatch")

const formatVersion = 1

// MatrixSnapshot is a serializable copy of a linalg.Matrix, since
// *linalg.Matrix holds an unexported backing slice gob cannot reach.
type MatrixSnapshot struct {
	Rows, Cols int
	Real, Imag []float64
}

// SnapshotMatrix flattens m's real/imaginary parts for encoding.
func SnapshotMatrix(m *linalg.Matrix) MatrixSnapshot {
	s := MatrixSnapshot{Rows: m.Rows, Cols: m.Cols, Real: make([]float64, m.Rows*m.Cols), Imag: make([]float64, m.Rows*m.Cols)}
	idx := 0
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			v := m.At(i, j)
			s.Real[idx], s.Imag[idx] = real(v), imag(v)
			idx++
		}
	}
	return s
}

// Restore reconstructs a *linalg.Matrix from a MatrixSnapshot.
func (s MatrixSnapshot) Restore() *linalg.Matrix {
	m := linalg.NewMatrix(s.Rows, s.Cols)
	idx := 0
	for i := 0; i < s.Rows; i++ {
		for j := 0; j < s.Cols; j++ {
			m.Set(i, j, complex(s.Real[idx], s.Imag[idx]))
			idx++
		}
	}
	return m
}

// ObservableSnapshot is the serializable form of observable.Set's
// accumulators.
type ObservableSnapshot struct {
	ControlParamIndex int
	NormPhi           []float64
	AccRatio          []float64
	PhiDelta          []float64
}

// ExchangeSnapshot persists the coordinator's permutation tables and
// statistics (rank 0 only; zero-valued on worker processes).
type ExchangeSnapshot struct {
	ParOfProcess []int
	ProcessOfPar []int
	Stats        exchange.Stats
}

// ReplicaSnapshot is the model-specific state: the field, the current
// Green's function and slice, and the adaptive step/acceptance values.
// The UDV stack itself is not persisted — it is cheap to rebuild from
// the field via green.Engine.Recompute on resume, so only the field and
// current Green's function/slice need to survive a checkpoint.
type ReplicaSnapshot struct {
	Phi              [][3]float64
	GreenReal        MatrixSnapshot
	CurrentSlice     int
	PhiDelta         float64
	LastAccRat       float64
	ExchangeParamVal float64
}

// State is the full persisted archive.
type State struct {
	Version int

	Logging config.LoggingParams
	Model   config.ModelParams
	MC      config.MCParams
	PT      config.PTParams

	RNG         rng.State
	Observables ObservableSnapshot
	Counters    runloop.Counters

	LocalCurrentParameterIndex int
	Exchange                   ExchangeSnapshot

	Replica ReplicaSnapshot
}

// Save writes state to path as a gob-encoded binary archive; an I/O
// error on checkpoint is surfaced directly to the caller rather than
// retried.
func Save(path string, state State) error {
	state.Version = formatVersion
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return errors.Wrap(err, "archive: encode")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, "archive: write")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "archive: rename")
	}
	return nil
}

// Load reads and decodes a State from path.
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, errors.Wrap(err, "archive: read")
	}
	var state State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return State{}, errors.Wrap(err, "archive: decode")
	}
	if state.Version != formatVersion {
		return State{}, errors.Wrapf(ErrVersionMismatch, "file version %d, reader version %d", state.Version, formatVersion)
	}
	return state, nil
}

// Manifest is a human-readable summary of a checkpoint, written
// alongside the gob-encoded State so an operator can inspect a run's
// progress without decoding the binary archive.
type Manifest struct {
	Version int    `yaml:"version"`
	Stage   string `yaml:"stage"`

	Model config.ModelParams `yaml:"model"`
	MC    config.MCParams    `yaml:"mc"`

	SweepsDone               int `yaml:"sweeps_done"`
	SweepsDoneThermalization int `yaml:"sweeps_done_thermalization"`

	LastAccRat float64 `yaml:"last_acc_ratio"`
	PhiDelta   float64 `yaml:"phi_delta"`
}

// ManifestPath derives the manifest sidecar path from a checkpoint path.
func ManifestPath(statePath string) string {
	return statePath + ".manifest.yaml"
}

// WriteManifest renders m as YAML and writes it to path.
func WriteManifest(path string, m Manifest) error {
	m.Version = formatVersion
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "archive: marshal manifest")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "archive: write manifest")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "archive: rename manifest")
	}
	return nil
}

// ObservablesToSnapshot captures an observable.Set's accumulated series
// for archival.
func ObservablesToSnapshot(s *observable.Set) ObservableSnapshot {
	return ObservableSnapshot{
		ControlParamIndex: s.ControlParamIndex,
		NormPhi:           s.NormPhi.Samples(),
		AccRatio:          s.AccRatio.Samples(),
		PhiDelta:          s.PhiDelta.Samples(),
	}
}

// SnapshotToObservables rebuilds an observable.Set's scalar series from
// an archived snapshot.
func SnapshotToObservables(snap ObservableSnapshot) *observable.Set {
	return &observable.Set{
		ControlParamIndex: snap.ControlParamIndex,
		NormPhi:           observable.LoadScalar("normPhi", snap.NormPhi),
		AccRatio:          observable.LoadScalar("accRatio", snap.AccRatio),
		PhiDelta:          observable.LoadScalar("phiDelta", snap.PhiDelta),
	}
}
