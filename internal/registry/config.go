package registry

import (
	"errors"
	"fmt"
)

// Config holds store configuration.
type Config struct {
	// Backend specifies the storage engine to use.
	Backend string `json:"backend" yaml:"backend"`

	// Path specifies the file system path for persistent backends.
	Path string `json:"path" yaml:"path"`

	// CacheSize is the record cache capacity in entries. Zero disables
	// the cache.
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// Compressor names the value compression algorithm.
	Compressor string `json:"compressor" yaml:"compressor"`

	// CreateIfMissing controls whether a missing database is created on
	// open.
	CreateIfMissing bool `json:"create_if_missing" yaml:"create_if_missing"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend:         "pebble",
		Path:            "./data/registry",
		CacheSize:       4096,
		Compressor:      "lz4",
		CreateIfMissing: true,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Backend == "" {
		return errors.New("backend must be specified")
	}
	if c.Backend != "memory" && c.Path == "" {
		return errors.New("path must be specified for persistent backends")
	}
	if c.CacheSize < 0 {
		return errors.New("cache_size must be non-negative")
	}
	switch c.Compressor {
	case "", "none", "lz4":
	default:
		return fmt.Errorf("unsupported compressor: %s", c.Compressor)
	}
	return nil
}

// Option is a functional option for the store configuration.
type Option func(*Config)

// WithBackend sets the storage engine.
func WithBackend(backend string) Option {
	return func(c *Config) { c.Backend = backend }
}

// WithPath sets the storage path.
func WithPath(path string) Option {
	return func(c *Config) { c.Path = path }
}

// WithCacheSize sets the record cache capacity.
func WithCacheSize(size int) Option {
	return func(c *Config) { c.CacheSize = size }
}

// WithCompressor sets the value compression algorithm.
func WithCompressor(name string) Option {
	return func(c *Config) { c.Compressor = name }
}

// WithCreateIfMissing controls database creation on open.
func WithCreateIfMissing(create bool) Option {
	return func(c *Config) { c.CreateIfMissing = create }
}

// ApplyOptions applies the given options to the config.
func (c *Config) ApplyOptions(options ...Option) {
	for _, option := range options {
		option(c)
	}
}

// String returns a short description of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("registry config backend=%s path=%s cache=%d compressor=%s",
		c.Backend, c.Path, c.CacheSize, c.Compressor)
}
