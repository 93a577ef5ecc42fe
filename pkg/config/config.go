package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds all configuration for the build intelligence layer.
// The cache settings are passed explicitly to the cache at construction
// time; there is no global cache directory.
type Config struct {
	Project          string  `koanf:"project"`
	CacheDir         string  `koanf:"cache-dir"`
	CacheMaxSizeMB   int64   `koanf:"cache-max-size-mb"`
	CacheMaxAgeHours int     `koanf:"cache-max-age-hours"`
	HistorySize      int     `koanf:"history-size"`
	HitRateThreshold float64 `koanf:"hit-rate-threshold"`
	Watch            bool    `koanf:"watch"`
	SinceHours       int     `koanf:"since-hours"`
	Verbosity        string  `koanf:"verbosity"`
	VerboseCnt       int     `koanf:"verbose"`
}

// CacheMaxSize returns the cache size cap in bytes
func (c *Config) CacheMaxSize() int64 {
	return c.CacheMaxSizeMB * 1024 * 1024
}

// CacheMaxAge returns the maximum age of a cache entry before it is stale
func (c *Config) CacheMaxAge() time.Duration {
	return time.Duration(c.CacheMaxAgeHours) * time.Hour
}

// Since returns the reference timestamp for change analysis
func (c *Config) Since() time.Time {
	return time.Now().Add(-time.Duration(c.SinceHours) * time.Hour)
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"project":             ".",
		"cache-dir":           filepath.Join(".build-intel", "cache"),
		"cache-max-size-mb":   1024,
		"cache-max-age-hours": 24 * 7,
		"history-size":        100,
		"hit-rate-threshold":  0.8,
		"watch":               false,
		"since-hours":         24,
		"verbosity":           "",
		"verbose":             0,
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional) - build-intel.toml
	// We ignore errors here as the file might not exist
	_ = k.Load(file.Provider("build-intel.toml"), toml.Parser())

	// 3. Environment Variables
	// Prefix: BUILD_INTEL_ (e.g., BUILD_INTEL_CACHE_DIR=/var/cache)
	if err := k.Load(env.Provider("BUILD_INTEL_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, "BUILD_INTEL_")), "_", "-")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
