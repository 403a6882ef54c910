// Package config loads and validates the node configuration from
// defaults, an optional TOML file and TOKEND_* environment variables,
// in that order of precedence.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the complete node configuration.
type Config struct {
	Server    ServerConfig    `toml:"server" mapstructure:"server"`
	GRPC      GRPCConfig      `toml:"grpc" mapstructure:"grpc"`
	Storage   StorageConfig   `toml:"storage" mapstructure:"storage"`
	Archive   ArchiveConfig   `toml:"archive" mapstructure:"archive"`
	Sweeper   SweeperConfig   `toml:"sweeper" mapstructure:"sweeper"`
	Retention RetentionConfig `toml:"retention" mapstructure:"retention"`
	Metrics   MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	Logging   LoggingConfig   `toml:"logging" mapstructure:"logging"`
	API       APIConfig       `toml:"api" mapstructure:"api"`

	configPath string
}

// GetConfigPath returns the file the configuration was loaded from,
// empty when only defaults and environment were used.
func (c *Config) GetConfigPath() string { return c.configPath }

// ServerConfig configures the HTTP JSON-RPC server.
type ServerConfig struct {
	// Port is the HTTP listen port.
	Port int `toml:"port" mapstructure:"port"`
	// Bind is the listen address; empty binds every interface.
	Bind string `toml:"bind" mapstructure:"bind"`
	// RPCTimeoutSeconds bounds each RPC call.
	RPCTimeoutSeconds int `toml:"rpc_timeout_seconds" mapstructure:"rpc_timeout_seconds"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// RPCTimeout returns the per-call timeout as a duration.
func (c ServerConfig) RPCTimeout() time.Duration {
	return time.Duration(c.RPCTimeoutSeconds) * time.Second
}

// GRPCConfig configures the gRPC health endpoint.
type GRPCConfig struct {
	Enabled        bool   `toml:"enabled" mapstructure:"enabled"`
	Address        string `toml:"address" mapstructure:"address"`
	MaxRecvMsgSize int    `toml:"max_recv_msg_size" mapstructure:"max_recv_msg_size"`
	MaxSendMsgSize int    `toml:"max_send_msg_size" mapstructure:"max_send_msg_size"`
}

// StorageConfig configures the registry store.
type StorageConfig struct {
	// Backend selects the storage engine: pebble, leveldb or memory.
	Backend string `toml:"backend" mapstructure:"backend"`
	// Path is the database directory for persistent backends.
	Path string `toml:"path" mapstructure:"path"`
	// CacheSize is the record cache capacity in entries.
	CacheSize int `toml:"cache_size" mapstructure:"cache_size"`
	// Compression toggles LZ4 value compression.
	Compression bool `toml:"compression" mapstructure:"compression"`
}

// Compressor maps the compression toggle to the store's compressor
// name.
func (c StorageConfig) Compressor() string {
	if c.Compression {
		return "lz4"
	}
	return "none"
}

// ArchiveConfig configures the long-term archive sink used by the
// retention sweeper.
type ArchiveConfig struct {
	PostgresEnabled bool   `toml:"postgres_enabled" mapstructure:"postgres_enabled"`
	PostgresDSN     string `toml:"postgres_dsn" mapstructure:"postgres_dsn"`
}

// SweeperConfig configures the background expired-hold sweeper.
type SweeperConfig struct {
	Enabled           bool `toml:"enabled" mapstructure:"enabled"`
	IntervalSeconds   int  `toml:"interval_seconds" mapstructure:"interval_seconds"`
	BatchSize         int  `toml:"batch_size" mapstructure:"batch_size"`
	ExpiredForSeconds int  `toml:"expired_for_seconds" mapstructure:"expired_for_seconds"`
}

// Interval returns the sweep cadence as a duration.
func (c SweeperConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// RetentionConfig configures the background retention sweeper.
type RetentionConfig struct {
	Enabled       bool `toml:"enabled" mapstructure:"enabled"`
	IntervalHours int  `toml:"interval_hours" mapstructure:"interval_hours"`
	OlderThanDays int  `toml:"older_than_days" mapstructure:"older_than_days"`
	Limit         int  `toml:"limit" mapstructure:"limit"`
	DryRun        bool `toml:"dry_run" mapstructure:"dry_run"`
	Archive       bool `toml:"archive" mapstructure:"archive"`
	MaxSeconds    int  `toml:"max_seconds" mapstructure:"max_seconds"`
}

// Interval returns the retention cadence as a duration.
func (c RetentionConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Address string `toml:"address" mapstructure:"address"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" mapstructure:"level"`
	// Development switches to the human-readable console encoder.
	Development bool `toml:"development" mapstructure:"development"`
}

// APIConfig configures API access control.
type APIConfig struct {
	// AdminIPs lists client addresses granted the admin role.
	AdminIPs []string `toml:"admin_ips" mapstructure:"admin_ips"`
}
