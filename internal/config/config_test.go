package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "claude", cfg.Runner)
	assert.Equal(t, "github", cfg.TeamMode)
	assert.Equal(t, 3, cfg.MaxIterations)
	assert.Equal(t, 300, cfg.Poll.MaxSecs)
}

func TestValidate_RejectsIdleNotBelowTotal(t *testing.T) {
	cfg := Default()
	cfg.IdleTimeoutSecs = cfg.TimeoutSecs
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownRunner(t *testing.T) {
	cfg := Default()
	cfg.Runner = "copilot"
	assert.Error(t, cfg.Validate())
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("team_mode: pingpong\nmax_iterations: 5\n"), 0o644))
	t.Setenv("CRUISE_CONFIG", path)

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "pingpong", cfg.TeamMode)
	assert.Equal(t, 5, cfg.MaxIterations)
	assert.Equal(t, "claude", cfg.Runner) // untouched default
}

func TestLoad_EnvOverridesProjectConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("team_mode: pingpong\n"), 0o644))
	t.Setenv("CRUISE_CONFIG", path)
	t.Setenv("CRUISE_TEAM_MODE", "sequential")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "sequential", cfg.TeamMode)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	t.Setenv("CRUISE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CRUISE_TEAM_MODE", "sequential")

	cfg, err := Load(&Config{TeamMode: "pingpong"})
	require.NoError(t, err)
	assert.Equal(t, "pingpong", cfg.TeamMode)
}

func TestLoad_DebugAndFailFastEnvVars(t *testing.T) {
	t.Setenv("CRUISE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DEBUG", "1")
	t.Setenv("FAIL_FAST", "true")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.FailFast)
}

func TestLoad_RejectsInvalidMergedConfig(t *testing.T) {
	t.Setenv("CRUISE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("CRUISE_TEAM_MODE", "freeform")

	_, err := Load(nil)
	assert.Error(t, err)
}
