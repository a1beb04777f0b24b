package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pointlander/detqmcpt/internal/config"
)

// Load reads through the package-level viper singleton, so every test
// that calls it must reset that global state first to stay independent
// of test execution order.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
}

func TestLoad_DefaultsWhenConfigMissing(t *testing.T) {
	resetViper(t)
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "stabilized", cfg.MC.GreenUpdateType)
	assert.Equal(t, 1000, cfg.MC.Sweeps)
	assert.Equal(t, 100, cfg.MC.Thermalization)
	assert.Equal(t, 10, cfg.MC.NStab)
	assert.InDelta(t, 1e-6, cfg.MC.EpsStab, 1e-12)
	assert.Equal(t, 10, cfg.PT.ExchangeInterval)
	assert.Equal(t, "r", cfg.PT.ControlParameterName)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "run.yaml")
	contents := "mc:\n  green_update_type: simple\n  sweeps: 50\nmodel_params:\n  l: 6\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "simple", cfg.MC.GreenUpdateType)
	assert.Equal(t, 50, cfg.MC.Sweeps)
	assert.Equal(t, 6, cfg.Model.L)
	// Untouched keys keep their defaults.
	assert.Equal(t, 100, cfg.MC.Thermalization)
}

func TestMCParams_YAMLTagsRoundTrip(t *testing.T) {
	want := config.MCParams{
		Sweeps:          50,
		Thermalization:  10,
		MeasureInterval: 2,
		GreenUpdateType: "simple",
		StateFileName:   "state.dqmc",
		NStab:           10,
		EpsStab:         1e-6,
	}
	data, err := yaml.Marshal(want)
	require.NoError(t, err)

	var got config.MCParams
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, want, got)
	assert.Contains(t, string(data), "green_update_type: simple")
}

func TestConfig_Resolve_RejectsOddLWithCheckerboard(t *testing.T) {
	cfg := &config.Config{Model: config.ModelParams{L: 3, M: 4, Checkerboard: true}}
	_, err := cfg.Resolve()
	assert.Error(t, err)
}

func TestConfig_Resolve_DerivesMFromBetaAndDtau(t *testing.T) {
	cfg := &config.Config{Model: config.ModelParams{L: 4, Beta: 2.0, Dtau: 0.1}}
	p, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 20, p.M)
}

func TestAbortFilePaths(t *testing.T) {
	paths := config.AbortFilePaths("1234")
	assert.Equal(t, []string{"ABORT.1234", "../ABORT.1234", "ABORT.all", "../ABORT.all"}, paths)
}
