package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pointConfigPathAt redirects the global config path for the duration of a test.
func pointConfigPathAt(t *testing.T, path string) {
	t.Helper()
	prev := getConfigPath
	getConfigPath = func() (string, error) { return path, nil }
	t.Cleanup(func() { getConfigPath = prev })
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvRegionID, "")
	t.Setenv(EnvEndpoint, "")
	t.Setenv(EnvTimeoutMs, "")
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Equal(t, "cn-shanghai", cfg.RegionID)
	assert.Equal(t, "wuyingai.cn-shanghai.aliyuncs.com", cfg.Endpoint)
	assert.Equal(t, 60000, cfg.TimeoutMs)
}

func TestLoadDefaultsWhenNothingSet(t *testing.T) { //nolint:paralleltest // mutates env and cwd
	clearEnv(t)
	t.Chdir(t.TempDir())
	pointConfigPathAt(t, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load(nil)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEnvOverridesDefaults(t *testing.T) { //nolint:paralleltest // mutates env and cwd
	clearEnv(t)
	t.Chdir(t.TempDir())
	pointConfigPathAt(t, filepath.Join(t.TempDir(), "missing.yaml"))

	t.Setenv(EnvRegionID, "ap-southeast-1")
	t.Setenv(EnvTimeoutMs, "30000")

	cfg := Load(nil)
	assert.Equal(t, "ap-southeast-1", cfg.RegionID)
	assert.Equal(t, "wuyingai.cn-shanghai.aliyuncs.com", cfg.Endpoint)
	assert.Equal(t, 30000, cfg.TimeoutMs)
}

func TestLoadInvalidTimeoutEnvIgnored(t *testing.T) { //nolint:paralleltest // mutates env and cwd
	clearEnv(t)
	t.Chdir(t.TempDir())
	pointConfigPathAt(t, filepath.Join(t.TempDir(), "missing.yaml"))

	t.Setenv(EnvTimeoutMs, "not-a-number")

	cfg := Load(nil)
	assert.Equal(t, 60000, cfg.TimeoutMs)
}

func TestLoadDotfileOverridesEnv(t *testing.T) { //nolint:paralleltest // mutates env and cwd
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, Dotfile),
		[]byte("region_id: eu-central-1\nendpoint: wuyingai.eu-central-1.aliyuncs.com\n"),
		0o600,
	))
	t.Chdir(dir)
	pointConfigPathAt(t, filepath.Join(t.TempDir(), "missing.yaml"))

	t.Setenv(EnvRegionID, "ap-southeast-1")
	t.Setenv(EnvTimeoutMs, "30000")

	cfg := Load(nil)
	assert.Equal(t, "eu-central-1", cfg.RegionID)
	assert.Equal(t, "wuyingai.eu-central-1.aliyuncs.com", cfg.Endpoint)
	// The dotfile does not set a timeout, so the env value survives.
	assert.Equal(t, 30000, cfg.TimeoutMs)
}

func TestLoadDotfileFoundInParentDir(t *testing.T) { //nolint:paralleltest // mutates env and cwd
	clearEnv(t)
	parent := t.TempDir()
	child := filepath.Join(parent, "nested", "deeper")
	require.NoError(t, os.MkdirAll(child, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(parent, Dotfile),
		[]byte("region_id: us-west-1\n"),
		0o600,
	))
	t.Chdir(child)
	pointConfigPathAt(t, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load(nil)
	assert.Equal(t, "us-west-1", cfg.RegionID)
}

func TestLoadGlobalConfigFallback(t *testing.T) { //nolint:paralleltest // mutates env and cwd
	clearEnv(t)
	t.Chdir(t.TempDir())

	global := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(global, []byte("timeout_ms: 90000\n"), 0o600))
	pointConfigPathAt(t, global)

	cfg := Load(nil)
	assert.Equal(t, 90000, cfg.TimeoutMs)
	assert.Equal(t, "cn-shanghai", cfg.RegionID)
}

func TestLoadMalformedDotfileFallsThrough(t *testing.T) { //nolint:paralleltest // mutates env and cwd
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, Dotfile), []byte("{{nope"), 0o600))
	t.Chdir(dir)
	pointConfigPathAt(t, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load(nil)
	assert.Equal(t, Default(), cfg)
}

func TestLoadExplicitOverrideWinsOverEverything(t *testing.T) { //nolint:paralleltest // mutates env and cwd
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, Dotfile),
		[]byte("region_id: eu-central-1\ntimeout_ms: 10000\n"),
		0o600,
	))
	t.Chdir(dir)
	pointConfigPathAt(t, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv(EnvRegionID, "ap-southeast-1")

	cfg := Load(&Config{RegionID: "us-east-1"})
	assert.Equal(t, "us-east-1", cfg.RegionID)
	// Fields the override leaves empty fall through to the dotfile.
	assert.Equal(t, 10000, cfg.TimeoutMs)
}
