// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report writes the plain-text on-disk artifacts: info.dat
// metadata files, per-observable .series time series, and the
// top-level exchange-*.values summaries, using the `# key = value` /
// `## comment` convention of the original driver's info.dat files,
// rendered with pointlander-qmc's plain fmt.Fprintf-to-writer idiom (no
// templating library appears anywhere in the retrieval pack for this
// kind of output).
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/pointlander/detqmcpt/internal/exchange"
	"github.com/pointlander/detqmcpt/internal/observable"
	"github.com/pointlander/detqmcpt/internal/sdw"
)

// WriteInfoDat writes dir/info.dat: a `## ` free-text header followed
// by `# key = value` metadata lines, one per entry in kv plus extra.
func WriteInfoDat(dir string, header string, kv []sdw.KeyValue, extra map[string]string) error {
	path := filepath.Join(dir, "info.dat")
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "report: create info.dat")
	}
	defer f.Close()
	return writeInfoDat(f, header, kv, extra)
}

func writeInfoDat(w io.Writer, header string, kv []sdw.KeyValue, extra map[string]string) error {
	if header != "" {
		if _, err := fmt.Fprintf(w, "## %s\n", header); err != nil {
			return err
		}
	}
	for _, e := range kv {
		if _, err := fmt.Fprintf(w, "# %s = %s\n", e.Key, e.Value); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "# %s = %s\n", k, extra[k]); err != nil {
			return err
		}
	}
	return nil
}

// WriteSeries writes one *.series file for a scalar observable: one
// sample per line, in measurement order.
func WriteSeries(dir string, s *observable.Scalar) error {
	path := filepath.Join(dir, s.Name+".series")
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "report: create series file")
	}
	defer f.Close()
	for i, v := range s.Samples() {
		if _, err := fmt.Fprintf(f, "%d\t%.15g\n", i, v); err != nil {
			return errors.Wrap(err, "report: write series sample")
		}
	}
	return nil
}

// WriteVector writes a tabular text file for one vector observable
// sample, indexed vs. value per line.
func WriteVector(dir, name string, values []float64) error {
	path := filepath.Join(dir, name+".values")
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "report: create vector file")
	}
	defer f.Close()
	for i, v := range values {
		if _, err := fmt.Fprintf(f, "%d\t%.15g\n", i, v); err != nil {
			return errors.Wrap(err, "report: write vector entry")
		}
	}
	return nil
}

// WriteExchangeValues writes the three top-level exchange-*.values
// files: exchange-parameters, exchange-acceptance, exchange-diffusion.
func WriteExchangeValues(dir string, controlParameterValues []float64, stats *exchange.Stats) error {
	if err := writeLines(filepath.Join(dir, "exchange-parameters.values"), func(w io.Writer) error {
		for i, v := range controlParameterValues {
			if _, err := fmt.Fprintf(w, "%d\t%.15g\n", i, v); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := writeLines(filepath.Join(dir, "exchange-acceptance.values"), func(w io.Writer) error {
		fmt.Fprintf(w, "## pairIndex\tproposed\taccepted\tratio\n")
		for c := range stats.SwapProposed {
			ratio := 0.0
			if stats.SwapProposed[c] > 0 {
				ratio = float64(stats.SwapAccepted[c]) / float64(stats.SwapProposed[c])
			}
			if _, err := fmt.Fprintf(w, "%d\t%d\t%d\t%.6g\n", c, stats.SwapProposed[c], stats.SwapAccepted[c], ratio); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	return writeLines(filepath.Join(dir, "exchange-diffusion.values"), func(w io.Writer) error {
		fmt.Fprintf(w, "## paramIndex\tgoingUp\tgoingDown\n")
		for c := range stats.GoingUp {
			if _, err := fmt.Fprintf(w, "%d\t%d\t%d\n", c, stats.GoingUp[c], stats.GoingDown[c]); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeLines(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "report: create %s", path)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return errors.Wrapf(err, "report: write %s", path)
	}
	return nil
}

// ParameterSubdir returns the per-parameter output directory name:
// `p<cpi>_<parname><parvalue>`.
func ParameterSubdir(cpi int, parName string, parValue float64) string {
	return fmt.Sprintf("p%d_%s%g", cpi, parName, parValue)
}
