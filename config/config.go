// Package config defines the immutable runtime configuration surface
// of spec §6, built via functional options in the style of the
// teacher's fs/config option-surface conventions, with an optional
// YAML override file loaded via gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is an immutable value; build one with New and a list of
// Options, or load one from disk with Load.
type Config struct {
	UseHTTPS          bool
	AppendedUserAgent string

	ConnectTimeout            time.Duration
	RequestTimeout            time.Duration
	TCPKeepAliveIdleTimeout   time.Duration
	TCPKeepAliveProbeInterval time.Duration
	LowTransferSpeed          int64 // bytes/sec
	LowTransferSpeedTimeout   time.Duration

	MaxRetriesPerEndpoint int
	MaxRetriesTotal       int

	BackoffBase        time.Duration
	BackoffMinRatio    float64
	BackoffMaxRatio    float64
	BackoffMaxDuration time.Duration

	ChooserBlockDuration     time.Duration
	ChooserShrinkInterval    time.Duration
	ChooserIPv4PrefixLen     int
	ChooserIPv6PrefixLen     int
	ChooserRandomChooseRatio float64

	ResolveTimeout         time.Duration
	DNSCacheLifetime       time.Duration
	DNSCacheShrinkInterval time.Duration

	PartSize           int64
	Concurrency        int
	UploadedPartTTL    time.Duration
	ResumableThreshold int64
}

// Option mutates a Config under construction.
type Option func(*Config)

func WithUseHTTPS(v bool) Option                { return func(c *Config) { c.UseHTTPS = v } }
func WithAppendedUserAgent(s string) Option     { return func(c *Config) { c.AppendedUserAgent = s } }
func WithConnectTimeout(d time.Duration) Option { return func(c *Config) { c.ConnectTimeout = d } }
func WithRequestTimeout(d time.Duration) Option { return func(c *Config) { c.RequestTimeout = d } }
func WithMaxRetriesPerEndpoint(n int) Option    { return func(c *Config) { c.MaxRetriesPerEndpoint = n } }
func WithMaxRetriesTotal(n int) Option          { return func(c *Config) { c.MaxRetriesTotal = n } }
func WithBackoffBase(d time.Duration) Option    { return func(c *Config) { c.BackoffBase = d } }
func WithBackoffMaxDuration(d time.Duration) Option {
	return func(c *Config) { c.BackoffMaxDuration = d }
}
func WithChooserBlockDuration(d time.Duration) Option {
	return func(c *Config) { c.ChooserBlockDuration = d }
}
func WithChooserShrinkInterval(d time.Duration) Option {
	return func(c *Config) { c.ChooserShrinkInterval = d }
}
func WithResolveTimeout(d time.Duration) Option { return func(c *Config) { c.ResolveTimeout = d } }
func WithPartSize(n int64) Option               { return func(c *Config) { c.PartSize = n } }
func WithConcurrency(n int) Option              { return func(c *Config) { c.Concurrency = n } }

// New builds a Config starting from the defaults of spec §6, applying
// opts in order.
func New(opts ...Option) *Config {
	c := &Config{
		UseHTTPS: true,

		ConnectTimeout:            30 * time.Second,
		RequestTimeout:            300 * time.Second,
		TCPKeepAliveIdleTimeout:   300 * time.Second,
		TCPKeepAliveProbeInterval: 5 * time.Second,

		MaxRetriesPerEndpoint: 2,
		MaxRetriesTotal:       0,

		BackoffBase:        100 * time.Millisecond,
		BackoffMinRatio:    0.5,
		BackoffMaxRatio:    1.5,
		BackoffMaxDuration: 10 * time.Second,

		ChooserBlockDuration:     30 * time.Second,
		ChooserShrinkInterval:    120 * time.Second,
		ChooserIPv4PrefixLen:     24,
		ChooserIPv6PrefixLen:     64,
		ChooserRandomChooseRatio: 0.5,

		ResolveTimeout:         5 * time.Second,
		DNSCacheLifetime:       10 * time.Minute,
		DNSCacheShrinkInterval: time.Minute,

		PartSize:           4 << 20,
		Concurrency:        4,
		UploadedPartTTL:    5 * 24 * time.Hour,
		ResumableThreshold: 4 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// fileConfig mirrors the struct-tag convention used by backend Options
// structs in the teacher (e.g. `config:"idle_timeout"`), except
// expressed through yaml tags since this module loads YAML, not INI.
type fileConfig struct {
	UseHTTPS              *bool   `yaml:"use_https"`
	AppendedUserAgent     string  `yaml:"appended_user_agent"`
	ConnectTimeoutSeconds float64 `yaml:"connect_timeout_seconds"`
	RequestTimeoutSeconds float64 `yaml:"request_timeout_seconds"`
	MaxRetriesPerEndpoint int     `yaml:"max_retries_per_endpoint"`
	MaxRetriesTotal       int     `yaml:"max_retries_total"`
	BackoffBaseMillis     int64   `yaml:"backoff_base_millis"`
	ChooserBlockSeconds   float64 `yaml:"chooser_block_duration_seconds"`
	ResolveTimeoutSeconds float64 `yaml:"resolve_timeout_seconds"`
	PartSizeBytes         int64   `yaml:"part_size_bytes"`
	Concurrency           int     `yaml:"concurrency"`
}

// Load reads an optional YAML override file at path and merges its
// non-zero fields onto New()'s defaults, letting operators pin the
// knobs of spec §6 without recompiling.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c := New()
	if fc.UseHTTPS != nil {
		c.UseHTTPS = *fc.UseHTTPS
	}
	if fc.AppendedUserAgent != "" {
		c.AppendedUserAgent = fc.AppendedUserAgent
	}
	if fc.ConnectTimeoutSeconds > 0 {
		c.ConnectTimeout = time.Duration(fc.ConnectTimeoutSeconds * float64(time.Second))
	}
	if fc.RequestTimeoutSeconds > 0 {
		c.RequestTimeout = time.Duration(fc.RequestTimeoutSeconds * float64(time.Second))
	}
	if fc.MaxRetriesPerEndpoint > 0 {
		c.MaxRetriesPerEndpoint = fc.MaxRetriesPerEndpoint
	}
	if fc.MaxRetriesTotal > 0 {
		c.MaxRetriesTotal = fc.MaxRetriesTotal
	}
	if fc.BackoffBaseMillis > 0 {
		c.BackoffBase = time.Duration(fc.BackoffBaseMillis) * time.Millisecond
	}
	if fc.ChooserBlockSeconds > 0 {
		c.ChooserBlockDuration = time.Duration(fc.ChooserBlockSeconds * float64(time.Second))
	}
	if fc.ResolveTimeoutSeconds > 0 {
		c.ResolveTimeout = time.Duration(fc.ResolveTimeoutSeconds * float64(time.Second))
	}
	if fc.PartSizeBytes > 0 {
		c.PartSize = fc.PartSizeBytes
	}
	if fc.Concurrency > 0 {
		c.Concurrency = fc.Concurrency
	}
	return c, nil
}
