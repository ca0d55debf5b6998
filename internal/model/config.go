package model

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds every setting the CLI, batch runner and proxy server read.
// Field names double as config file keys and BIRTHPLACE_* environment names.
type Config struct {
	HTTP         HTTPConfig        `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitConfig   `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Output       OutputConfig      `yaml:"output" mapstructure:"output"`
	State        StateConfig       `yaml:"state" mapstructure:"state"`
	Mappings     MappingsConfig    `yaml:"mappings" mapstructure:"mappings"`
	Correction   CorrectionConfig  `yaml:"correction" mapstructure:"correction"`
	Server       ServerConfig      `yaml:"server" mapstructure:"server"`
}

// HTTPConfig controls how article pages are fetched
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// CacheConfig controls the fetched page cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig sizes the worker pools
type ConcurrencyConfig struct {
	Workers       int `yaml:"workers" mapstructure:"workers"`
	VerifyWorkers int `yaml:"verify_workers" mapstructure:"verify_workers"`
}

// RateLimitConfig is applied per domain
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// OutputConfig controls reports
type OutputConfig struct {
	Verbose       bool   `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool   `yaml:"include_footer" mapstructure:"include_footer"`
	Dir           string `yaml:"dir" mapstructure:"dir"`
}

// StateConfig locates the enabled flag and replacement tally
type StateConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
	// Ephemeral keeps state in memory only
	Ephemeral bool `yaml:"ephemeral" mapstructure:"ephemeral"`
}

// MappingsConfig points at a replacement name table. Empty means the
// bundled table.
type MappingsConfig struct {
	File string `yaml:"file,omitempty" mapstructure:"file"`
}

// CorrectionConfig tunes the corrector
type CorrectionConfig struct {
	Indicator bool          `yaml:"indicator" mapstructure:"indicator"`
	Debounce  time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// ServerConfig configures the correcting proxy
type ServerConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Upstream string `yaml:"upstream" mapstructure:"upstream"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	base := filepath.Join(home, ".birthplace")

	return &Config{
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "Birthplace/0.1 (+https://github.com/ppiankov/birthplace)",
			MaxBodyBytes:  5_000_000,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       filepath.Join(base, "cache"),
			MemoryTTL: 15 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers:       4,
			VerifyWorkers: 8,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 2,
			BurstSize:         4,
		},
		Output: OutputConfig{
			IncludeFooter: true,
			Dir:           "./birthplace-out",
		},
		State: StateConfig{
			Path: filepath.Join(base, "state.db"),
		},
		Correction: CorrectionConfig{
			Indicator: true,
			Debounce:  500 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr:     "127.0.0.1:8089",
			Upstream: "https://en.wikipedia.org",
		},
	}
}
