// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sweep drives one full up/down pass of local updates across all
// time slices, alternating direction between successive calls and
// delegating the per-slice Metropolis work to package updater and the
// Green's function bookkeeping to package green. Grounded on
// detqmc.h's sweepSimple/sweep/sweepSimpleThermalization/
// sweepThermalization quartet.
package sweep

import (
	"github.com/pointlander/detqmcpt/internal/green"
	"github.com/pointlander/detqmcpt/internal/rng"
	"github.com/pointlander/detqmcpt/internal/sdw"
	"github.com/pointlander/detqmcpt/internal/updater"
)

// Driver owns one replica's model, Green's function engine and local
// updater, and alternates sweep direction every call.
type Driver struct {
	Model *sdw.Model
	Engine *green.Engine
	Updater *updater.Updater
	up bool // current sweep direction; flips after each full sweep
}

// New builds a Driver, starting with an upward sweep.
func New(model *sdw.Model, engine *green.Engine) *Driver {
	return &Driver{
		Model: model,
		Engine: engine,
		Updater: updater.New(model),
		up: true,
	}
}

// SweepSimple performs one full sweep advancing G by wrap
// multiplication only, never re-stabilizing against a fresh UDV
// recomputation regardless of NStab, matching detqmc.h's sweepSimple:
// the `--greenUpdateType simple` path.
func (d *Driver) SweepSimple(stream *rng.Counting) error {
	return d.sweep(stream, false, false)
}

// Sweep performs one full sweep advancing G by wrap multiplication plus
// periodic UDV re-stabilization at every NStab-th slice, matching
// detqmc.h's sweep: the `--greenUpdateType stabilized` path (the
// default).
func (d *Driver) Sweep(stream *rng.Counting) error {
	return d.sweep(stream, false, true)
}

// SweepSimpleThermalization is SweepSimple with φ-step adaptation
// enabled, matching detqmc.h's sweepSimpleThermalization.
func (d *Driver) SweepSimpleThermalization(stream *rng.Counting) error {
	return d.sweep(stream, true, false)
}

// SweepThermalization is Sweep with φ-step adaptation enabled, matching
// detqmc.h's sweepThermalization.
func (d *Driver) SweepThermalization(stream *rng.Counting) error {
	return d.sweep(stream, true, true)
}

func (d *Driver) sweep(stream *rng.Counting, thermalizing, stabilize bool) error {
	m := d.Model.Params.M
	if d.up {
		for k := 1; k <= m; k++ {
			if err := d.Engine.WrapUp(stabilize); err != nil {
				return err
			}
			d.Updater.UpdateSlice(k, d.Engine.G, stream, thermalizing)
		}
	} else {
		for k := m; k >= 1; k-- {
			d.Updater.UpdateSlice(k, d.Engine.G, stream, thermalizing)
			if err := d.Engine.WrapDown(stabilize); err != nil {
				return err
			}
		}
	}
	d.up = !d.up
	return nil
}
