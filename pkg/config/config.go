// Package config contains the definition of the client configuration
// structure and the logic required to resolve it.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/agentbay/agentbay-go/pkg/logger"
)

// Dotfile is the project-local configuration file searched for from the
// working directory upward.
const Dotfile = ".agentbay.yaml"

// Environment variable names recognized during resolution.
const (
	EnvRegionID  = "AGENTBAY_REGION_ID"
	EnvEndpoint  = "AGENTBAY_ENDPOINT"
	EnvTimeoutMs = "AGENTBAY_TIMEOUT_MS"
)

// Config represents the connection configuration of the client.
type Config struct {
	RegionID  string `yaml:"region_id"`
	Endpoint  string `yaml:"endpoint"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Default returns the built-in configuration used when nothing overrides it.
func Default() Config {
	return Config{
		RegionID:  "cn-shanghai",
		Endpoint:  "wuyingai.cn-shanghai.aliyuncs.com",
		TimeoutMs: 60000,
	}
}

// defaultPathGenerator generates the global config path using xdg
var defaultPathGenerator = func() (string, error) {
	return xdg.ConfigFile("agentbay/config.yaml")
}

// getConfigPath is the current path generator, can be replaced in tests
var getConfigPath = defaultPathGenerator

// Load resolves the effective configuration. Precedence, highest first:
// the explicit override, a config file (project dotfile, then the global
// config), environment variables, built-in defaults. Empty fields of the
// override never shadow lower layers.
func Load(override *Config) Config {
	cfg := Default()
	cfg.merge(fromEnv())
	if path, ok := findConfigFile(); ok {
		cfg.merge(fromFile(path))
	}
	if override != nil {
		cfg.merge(*override)
	}
	return cfg
}

// merge overlays non-zero fields of other onto c.
func (c *Config) merge(other Config) {
	if other.RegionID != "" {
		c.RegionID = other.RegionID
	}
	if other.Endpoint != "" {
		c.Endpoint = other.Endpoint
	}
	if other.TimeoutMs > 0 {
		c.TimeoutMs = other.TimeoutMs
	}
}

func fromEnv() Config {
	var cfg Config
	cfg.RegionID = os.Getenv(EnvRegionID)
	cfg.Endpoint = os.Getenv(EnvEndpoint)
	if raw := os.Getenv(EnvTimeoutMs); raw != "" {
		timeout, err := strconv.Atoi(raw)
		if err != nil || timeout <= 0 {
			logger.Warnf("ignoring invalid %s value %q", EnvTimeoutMs, raw)
		} else {
			cfg.TimeoutMs = timeout
		}
	}
	return cfg
}

// findConfigFile looks for the project dotfile from the working directory
// upward, then falls back to the global config path.
func findConfigFile() (string, bool) {
	dir, err := os.Getwd()
	if err == nil {
		for {
			candidate := filepath.Join(dir, Dotfile)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, true
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	path, err := getConfigPath()
	if err != nil {
		return "", false
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path, true
	}
	return "", false
}

// fromFile reads a YAML config file. Malformed files are logged and
// ignored so a broken dotfile never takes the client down.
func fromFile(path string) Config {
	var cfg Config
	data, err := os.ReadFile(path) //nolint:gosec // path comes from our own search
	if err != nil {
		logger.Warnf("failed to read config file %s: %v", path, err)
		return Config{}
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Warnf("failed to parse config file %s: %v", path, err)
		return Config{}
	}
	return cfg
}
