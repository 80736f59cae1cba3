package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration settings.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Auth     *AuthConfig     `yaml:"auth,omitempty"`
	Scan     ScanConfig      `yaml:"scan"`
	Policy   *PolicyConfig   `yaml:"policy,omitempty"`
	Baseline []BaselineEntry `yaml:"baseline,omitempty"`
}

// ServerConfig holds the operational HTTP surface configuration.
type ServerConfig struct {
	Port                int      `yaml:"port"`
	TrustedProxiesCIDRs []string `yaml:"trusted_proxies_cidrs"`
}

type AuthConfig struct {
	Basic       BasicAuthConfig `yaml:"basic"`
	BearerToken string          `yaml:"bearer_token"`
}

// BasicAuthConfig holds basic authentication credentials.
type BasicAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ScanConfig holds deployment defaults and retention knobs for scans.
// Per-request parameters always win over these.
type ScanConfig struct {
	DefaultTimeoutSeconds float64 `yaml:"default_timeout_seconds"`
	DefaultMaxWorkers     int     `yaml:"default_max_workers"`
	MetricTTL             string  `yaml:"metric_ttl"`      // per-target series retention, e.g. "1h"
	HistoryMax            int     `yaml:"history_max"`     // tracker record cap
	HistoryMaxAge         string  `yaml:"history_max_age"` // tracker record retention, e.g. "1h"
}

// PolicyConfig guards the HTTP API (client allow-list, rate, concurrency,
// request size). Zero values disable each guard. The MCP stdio surface is a
// trusted local boundary and is not subject to these.
type PolicyConfig struct {
	ClientAllowCIDRs   []string `yaml:"client_allow_cidrs"`
	RateLimitRPS       float64  `yaml:"rate_limit_rps"`
	RateBurst          int      `yaml:"rate_burst"`
	PerIPRPS           float64  `yaml:"per_ip_rps"`
	PerIPBurst         int      `yaml:"per_ip_burst"`
	MaxConcurrent      int      `yaml:"max_concurrent"`
	MaxPortsPerRequest int      `yaml:"max_ports_per_request"`
}

// BaselineEntry declares expected open services for a target; open ports
// outside the baseline are exported as unexpected exposure.
type BaselineEntry struct {
	Target string   `yaml:"target"`
	Ports  []string `yaml:"ports"`
}

// Default constants for fallback values.
const (
	DefaultServerPort     = 9919
	DefaultTimeoutSeconds = 0.5
	DefaultMaxWorkers     = 200
	DefaultMetricTTL      = time.Hour
	DefaultHistoryMax     = 256
	DefaultHistoryMaxAge  = time.Hour
)

// Default returns the built-in configuration used when no config file is
// present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads the configuration from a YAML file.
func LoadConfig(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Scan.DefaultTimeoutSeconds <= 0 {
		c.Scan.DefaultTimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.Scan.DefaultMaxWorkers <= 0 {
		c.Scan.DefaultMaxWorkers = DefaultMaxWorkers
	}
	if c.Scan.HistoryMax <= 0 {
		c.Scan.HistoryMax = DefaultHistoryMax
	}
}

// TimeoutDuration returns the configured default probe timeout.
func (sc ScanConfig) TimeoutDuration() time.Duration {
	if sc.DefaultTimeoutSeconds <= 0 {
		return time.Duration(DefaultTimeoutSeconds * float64(time.Second))
	}
	return time.Duration(sc.DefaultTimeoutSeconds * float64(time.Second))
}

// MetricTTLDuration returns the per-target metric retention window.
func (sc ScanConfig) MetricTTLDuration() time.Duration {
	if d, err := time.ParseDuration(sc.MetricTTL); err == nil && d > 0 {
		return d
	}
	return DefaultMetricTTL
}

// TTLForConfig resolves the metric TTL for a possibly nil config.
func TTLForConfig(c *Config) time.Duration {
	if c == nil {
		return DefaultMetricTTL
	}
	return c.Scan.MetricTTLDuration()
}

// HistoryMaxAgeDuration returns the tracker record retention window.
func (sc ScanConfig) HistoryMaxAgeDuration() time.Duration {
	if d, err := time.ParseDuration(sc.HistoryMaxAge); err == nil && d > 0 {
		return d
	}
	return DefaultHistoryMaxAge
}
