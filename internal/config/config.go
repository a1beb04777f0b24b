// Copyright 2025 The DetQMCPT Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config collects the parameter groups lists under
// "CLI (reference surface)" and wires them to a cobra/viper front end,
// following Ribengame-hunter's loadConfigFromFile/setDefaults/
// BindPFlag idiom: a YAML file provides defaults, persistent flags
// override it, and viper.Unmarshal assembles the typed struct.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pointlander/detqmcpt/internal/sdw"
)

// LoggingParams controls the logrus front end.
type LoggingParams struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON bool `mapstructure:"json" yaml:"json"`
}

// MCParams are the Monte Carlo run-loop scheduling options.
type MCParams struct {
	Sweeps int `mapstructure:"sweeps" yaml:"sweeps"`
	Thermalization int `mapstructure:"thermalization" yaml:"thermalization"`
	MeasureInterval int `mapstructure:"measure_interval" yaml:"measure_interval"`
	SaveInterval int `mapstructure:"save_interval" yaml:"save_interval"`
	JKBlocks int `mapstructure:"jk_blocks" yaml:"jk_blocks"`
	Timeseries bool `mapstructure:"timeseries" yaml:"timeseries"`
	RNGSeed int64 `mapstructure:"rng_seed" yaml:"rng_seed"`
	GreenUpdateType string `mapstructure:"green_update_type" yaml:"green_update_type"` // "simple"|"stabilized"
	StateFileName string `mapstructure:"state_file_name" yaml:"state_file_name"`
	SaveConfigurationStreamText bool `mapstructure:"save_configuration_stream_text" yaml:"save_configuration_stream_text"`
	SaveConfigurationStreamBinary bool `mapstructure:"save_configuration_stream_binary" yaml:"save_configuration_stream_binary"`
	SaveConfigurationStreamInterval int `mapstructure:"save_configuration_stream_interval" yaml:"save_configuration_stream_interval"`
	NStab int `mapstructure:"n_stab" yaml:"n_stab"`
	EpsStab float64 `mapstructure:"eps_stab" yaml:"eps_stab"`
}

// PTParams configure the replica-exchange (parallel tempering) ladder.
type PTParams struct {
	ControlParameterName string `mapstructure:"control_parameter_name" yaml:"control_parameter_name"`
	ControlParameterValues []float64 `mapstructure:"control_parameter_values" yaml:"control_parameter_values"`
	ExchangeInterval int `mapstructure:"exchange_interval" yaml:"exchange_interval"`
}

// ModelParams mirrors the subset of model options the SDW model
// consumes, unmarshaled into sdw.Params by Resolve.
type ModelParams struct {
	Model string `mapstructure:"model" yaml:"model"`
	L int `mapstructure:"l" yaml:"l"`
	Beta float64 `mapstructure:"beta" yaml:"beta"`
	M int `mapstructure:"m" yaml:"m"`
	Dtau float64 `mapstructure:"dtau" yaml:"dtau"`
	Mu float64 `mapstructure:"mu" yaml:"mu"`
	R float64 `mapstructure:"r" yaml:"r"`
	U float64 `mapstructure:"u" yaml:"u"`
	C float64 `mapstructure:"c" yaml:"c"`
	THop float64 `mapstructure:"thop" yaml:"thop"`
	AccRatio float64 `mapstructure:"acc_ratio" yaml:"acc_ratio"`
	Checkerboard bool `mapstructure:"checkerboard" yaml:"checkerboard"`
	TimeDisplaced bool `mapstructure:"timedisplaced" yaml:"timedisplaced"`
}

// Config is the full parameter tree: logging, model, MC, PT.
type Config struct {
	Logging LoggingParams `mapstructure:"logging" yaml:"logging"`
	Model ModelParams `mapstructure:"model_params" yaml:"model_params"`
	MC MCParams `mapstructure:"mc" yaml:"mc"`
	PT PTParams `mapstructure:"pt" yaml:"pt"`

	GrantedWalltime time.Duration `mapstructure:"-" yaml:"-"`
	JobID string `mapstructure:"-" yaml:"-"`
}

// Resolve builds an sdw.Params from the loaded Config, validating the
// checkerboard-with-odd-L configuration error (P !=
// len(controlParameterValues) is checked by the caller that knows the
// process count).
func (c *Config) Resolve() (sdw.Params, error) {
	m := c.Model
	if m.L <= 0 {
		return sdw.Params{}, errors.New("config: L must be positive")
	}
	if m.Checkerboard && m.L%2 != 0 {
		return sdw.Params{}, errors.New("config: checkerboard decomposition requires even L")
	}
	steps := m.M
	if steps == 0 && m.Beta > 0 && m.Dtau > 0 {
		steps = int(m.Beta/m.Dtau + 0.5)
	}
	return sdw.Params{
		L: m.L,
		M: steps,
		Dtau: m.Dtau,
		Mu: m.Mu,
		R: m.R,
		U: m.U,
		C: orDefault(m.C, 1),
		THor: m.THop,
		TVer: m.THop,
		Checkerboard: m.Checkerboard,
		PhiDeltaInit: orDefault(m.AccRatio, 0.5),
		TargetAccRatio: orDefault(m.AccRatio, 0.5),
		AccRatioAdjustmentSamples: 100,
	}, nil
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// EnvWalltime reads PBS_WALLTIME (seconds); defaults to max uint32
// seconds when unset.
func EnvWalltime() time.Duration {
	const maxUint32Seconds = 1<<32 - 1
	v := os.Getenv("PBS_WALLTIME")
	if v == "" {
		return time.Duration(maxUint32Seconds) * time.Second
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return time.Duration(maxUint32Seconds) * time.Second
	}
	return time.Duration(secs) * time.Second
}

// EnvJobID reads SLURM_JOBID, defaulting to "nojobid".
func EnvJobID() string {
	if v := os.Getenv("SLURM_JOBID"); v != "" {
		return v
	}
	return "nojobid"
}

// AbortFilePaths returns the four sentinel abort-file paths for jobID.
func AbortFilePaths(jobID string) []string {
	return []string{
		"ABORT." + jobID,
		"../ABORT." + jobID,
		"ABORT.all",
		"../ABORT.all",
	}
}

// setDefaults installs viper defaults for every field Load can
// populate, mirroring Ribengame-hunter's setDefaults.
func setDefaults() {
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.json", false)

	viper.SetDefault("model_params.model", "sdw")
	viper.SetDefault("model_params.l", 4)
	viper.SetDefault("model_params.dtau", 0.1)
	viper.SetDefault("model_params.mu", 0.0)
	viper.SetDefault("model_params.r", 1.0)
	viper.SetDefault("model_params.u", 1.0)
	viper.SetDefault("model_params.c", 1.0)
	viper.SetDefault("model_params.thop", 1.0)
	viper.SetDefault("model_params.acc_ratio", 0.5)
	viper.SetDefault("model_params.checkerboard", false)

	viper.SetDefault("mc.sweeps", 1000)
	viper.SetDefault("mc.thermalization", 100)
	viper.SetDefault("mc.measure_interval", 1)
	viper.SetDefault("mc.save_interval", 100)
	viper.SetDefault("mc.rng_seed", 42)
	viper.SetDefault("mc.green_update_type", "stabilized")
	viper.SetDefault("mc.state_file_name", "state.dqmc")
	viper.SetDefault("mc.n_stab", 10)
	viper.SetDefault("mc.eps_stab", 1e-6)

	viper.SetDefault("pt.control_parameter_name", "r")
	viper.SetDefault("pt.control_parameter_values", []float64{})
	viper.SetDefault("pt.exchange_interval", 10)
}

// Load reads configPath (YAML) via viper, overlays flags already bound
// to viper through BindPFlags, and unmarshals into a Config, following
// Ribengame-hunter's loadConfigFromFile.
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	setDefaults()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "config: read config")
		}
	}
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: unmarshal")
	}
	cfg.GrantedWalltime = EnvWalltime()
	cfg.JobID = EnvJobID()
	return &cfg, nil
}

// BindFlags registers the CLI surface on cmd and binds each flag into
// viper, following Ribengame-hunter's rootCmd wiring.
func BindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("model", "", "model name {hubbard|sdw}")
	flags.Int("l", 0, "linear lattice size L")
	flags.Float64("beta", 0, "inverse temperature")
	flags.Int("m", 0, "number of imaginary-time slices")
	flags.Float64("dtau", 0, "imaginary-time step")
	flags.Float64("mu", 0, "chemical potential")
	flags.Float64("r", 0, "SDW tuning parameter")
	flags.Float64("accratio", 0, "target local-update acceptance ratio")
	flags.Bool("checkerboard", false, "enable checkerboard B-matrix decomposition")
	flags.Bool("timedisplaced", false, "enable time-displaced observables")

	flags.Int("sweeps", 0, "measurement sweeps")
	flags.Int("thermalization", 0, "thermalization sweeps")
	flags.Int("measureinterval", 0, "sweeps between measurements")
	flags.Int("saveinterval", 0, "sweeps between checkpoints")
	flags.Int("jkblocks", 0, "jackknife block count")
	flags.Bool("timeseries", false, "write per-observable time series")
	flags.Int64("rngseed", 0, "base RNG seed")
	flags.String("greenupdatetype", "", "Green's function update strategy {simple|stabilized}")
	flags.String("statefilename", "", "persistent state file path")
	flags.Bool("saveconfigurationstreamtext", false, "append field configurations to a text stream")
	flags.Bool("saveconfigurationstreambinary", false, "append field configurations to a binary stream")
	flags.Int("saveconfigurationstreaminterval", 0, "sweeps between configuration-stream writes")

	flags.String("controlparametername", "", "name of the exchanged control parameter")
	flags.Float64Slice("controlparametervalues", nil, "control-parameter ladder values")
	flags.Int("exchangeinterval", 0, "sweeps between replica-exchange rounds")

	bindings := map[string]string{
		"model_params.model": "model",
		"model_params.l": "l",
		"model_params.beta": "beta",
		"model_params.m": "m",
		"model_params.dtau": "dtau",
		"model_params.mu": "mu",
		"model_params.r": "r",
		"model_params.acc_ratio": "accratio",
		"model_params.checkerboard": "checkerboard",
		"model_params.timedisplaced": "timedisplaced",
		"mc.sweeps": "sweeps",
		"mc.thermalization": "thermalization",
		"mc.measure_interval": "measureinterval",
		"mc.save_interval": "saveinterval",
		"mc.jk_blocks": "jkblocks",
		"mc.timeseries": "timeseries",
		"mc.rng_seed": "rngseed",
		"mc.green_update_type": "greenupdatetype",
		"mc.state_file_name": "statefilename",
		"mc.save_configuration_stream_text": "saveconfigurationstreamtext",
		"mc.save_configuration_stream_binary": "saveconfigurationstreambinary",
		"mc.save_configuration_stream_interval": "saveconfigurationstreaminterval",
		"pt.control_parameter_name": "controlparametername",
		"pt.control_parameter_values": "controlparametervalues",
		"pt.exchange_interval": "exchangeinterval",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("config: bind flag %s: %v", flag, err))
		}
	}
}
