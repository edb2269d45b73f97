// Package eqlconfig defines the engine's Config and the functional
// options that build it, shared by the programmatic Open path, the
// cmd/eqlcli flags, and a YAML config file -- all three populate the
// same struct (spec.md §6's external open(path), sharpened by
// SPEC_FULL.md's Configuration section).
package eqlconfig

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultBackfillFlushEvery matches recordstore's own default so a zero
// Config (no options applied) reproduces the hardcoded behavior exactly.
const DefaultBackfillFlushEvery = 1000

// Config controls how a database handle is opened and operated.
type Config struct {
	// DBPath is the filesystem root the KV engine and catalog file live
	// under. Required; Open rejects an empty path.
	DBPath string `yaml:"db_path"`

	// ReadOnly opens the underlying environment without write access;
	// Insert/Delete/CreateIndex/DropIndex fail against a read-only handle.
	ReadOnly bool `yaml:"read_only"`

	// BackfillFlushEvery bounds how many index entries CreateIndex
	// buffers before flushing a write batch during back-fill (spec.md §3
	// Lifecycle). Zero means DefaultBackfillFlushEvery.
	BackfillFlushEvery int `yaml:"backfill_flush_every"`

	// ReadBufferSize is the number of entries the storage façade
	// prefetches ahead of the caller during a forward range scan. Zero
	// disables prefetching (each Next() call blocks on the cursor
	// directly).
	ReadBufferSize int `yaml:"read_buffer_size"`

	// Debug selects a human-readable, more verbose logging configuration
	// over the default production JSON logging.
	Debug bool `yaml:"debug"`
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithDBPath sets the database root path.
func WithDBPath(path string) Option { return func(c *Config) { c.DBPath = path } }

// WithReadOnly toggles read-only mode.
func WithReadOnly(ro bool) Option { return func(c *Config) { c.ReadOnly = ro } }

// WithBackfillFlushEvery overrides the index back-fill flush threshold.
func WithBackfillFlushEvery(n int) Option {
	return func(c *Config) { c.BackfillFlushEvery = n }
}

// WithReadBufferSize overrides the range-scan prefetch buffer size.
func WithReadBufferSize(n int) Option {
	return func(c *Config) { c.ReadBufferSize = n }
}

// WithDebug toggles development-mode logging.
func WithDebug(debug bool) Option { return func(c *Config) { c.Debug = debug } }

// New builds a Config from defaults plus opts, in order.
func New(opts ...Option) Config {
	c := Config{BackfillFlushEvery: DefaultBackfillFlushEvery}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Normalized returns c with zero-valued numeric fields replaced by their
// defaults, so a Config read from a sparse YAML file or left partially
// unset by flags still behaves like New()'s defaults.
func (c Config) Normalized() Config {
	if c.BackfillFlushEvery <= 0 {
		c.BackfillFlushEvery = DefaultBackfillFlushEvery
	}
	return c
}

// Load reads a YAML config file at path and layers opts on top of it,
// the way cmd/eqlcli combines a config file with CLI flag overrides.
func Load(path string, opts ...Option) (Config, error) {
	c := New()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %q", path)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %q", path)
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c.Normalized(), nil
}
