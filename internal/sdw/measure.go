// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdw

import "github.com/pointlander/detqmcpt/internal/observable"

// Measure samples the current replica state into set: the field's RMS
// norm, the last-recorded local acceptance ratio and the current
// proposal step, matching the small set of per-measurement quantities
// detsdw.cpp's measure feeds its ObservableHandlers.
func (m *Model) Measure(set *observable.Set) {
	set.NormPhi.Add(m.Field.NormPhi())
	set.AccRatio.Add(m.LastAccRat)
	set.PhiDelta.Add(m.PhiDelta)
}
