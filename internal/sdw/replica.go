// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdw

import (
	"bytes"
	"encoding/gob"
	"strconv"

	"github.com/pkg/errors"
)

// GetExchangeParameterValue returns the model's current control
// parameter value. The reference SDW model exchanges on r, the tuning
// parameter closest to the quantum critical point in detsdw.cpp.
func (m *Model) GetExchangeParameterValue() float64 { return m.Params.R }

// SetExchangeParameterValue installs a new control parameter value
// after a replica-exchange swap.
func (m *Model) SetExchangeParameterValue(v float64) { m.Params.R = v }

// GetExchangeActionContribution returns the part of the bosonic action
// linear in r, summed over the whole space-time lattice: 0.5*dtau*phi^2.
// Because S(r) = r * contribution + (terms independent of r), this is
// exactly the quantity the replica-exchange probability needs (package
// exchange's DefaultProbability), without requiring an r-dependent
// action recomputation at two different r values.
func (m *Model) GetExchangeActionContribution() float64 {
	sum := 0.0
	for slice := 1; slice <= m.Params.M; slice++ {
		for site := 0; site < m.N(); site++ {
			v := m.Field.At(site, slice)
			sum += 0.5 * m.Params.Dtau * dot3(v, v)
		}
	}
	return sum
}

// controlData is the tunable, non-field state a replica carries across
// an exchange swap: just PhiDelta for the reference SDW model, mirroring
// detsdw.cpp's narrow get_control_data/set_control_data contract (the
// field configuration itself does NOT move between processes on a
// parameter swap — only the control parameter and its tuning state do).
type controlData struct {
	PhiDelta float64
}

// GetControlData serializes the replica's tunable control state.
func (m *Model) GetControlData() []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(controlData{PhiDelta: m.PhiDelta}); err != nil {
		panic(errors.Wrap(err, "sdw: control data encode"))
	}
	return buf.Bytes()
}

// SetControlData deserializes and installs a replica's tunable control
// state, replacing the current PhiDelta.
func (m *Model) SetControlData(data []byte) {
	var cd controlData
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cd); err != nil {
		panic(errors.Wrap(err, "sdw: control data decode"))
	}
	m.PhiDelta = cd.PhiDelta
}

// ThermalizationOver freezes the tunable proposal step once
// thermalization ends, per one-shot thermalizationOver hook.
func (m *Model) ThermalizationOver(processIndex int) {
	_ = processIndex
	m.accSamples = 0
	m.accAccepted = 0
}

// PrepareModelMetadataMap returns the model parameters worth recording
// in info.dat, in the ordered key/value form package report expects.
func (m *Model) PrepareModelMetadataMap() []KeyValue {
	p := m.Params
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return []KeyValue{
		{Key: "L", Value: strconv.Itoa(p.L)},
		{Key: "M", Value: strconv.Itoa(p.M)},
		{Key: "dtau", Value: f(p.Dtau)},
		{Key: "mu", Value: f(p.Mu)},
		{Key: "r", Value: f(p.R)},
		{Key: "u", Value: f(p.U)},
		{Key: "c", Value: f(p.C)},
		{Key: "thor", Value: f(p.THor)},
		{Key: "tver", Value: f(p.TVer)},
		{Key: "checkerboard", Value: strconv.FormatBool(p.Checkerboard)},
	}
}

// KeyValue is one ordered metadata entry for info.dat-style output.
type KeyValue struct {
	Key, Value string
}
