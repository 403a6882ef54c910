package config

import (
	"fmt"
	"net"
)

// ValidateConfig checks the complete configuration.
func ValidateConfig(config *Config) error {
	if err := validateServer(&config.Server); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}
	if err := validateGRPC(&config.GRPC); err != nil {
		return fmt.Errorf("grpc config validation failed: %w", err)
	}
	if err := validateStorage(&config.Storage); err != nil {
		return fmt.Errorf("storage config validation failed: %w", err)
	}
	if err := validateArchive(&config.Archive); err != nil {
		return fmt.Errorf("archive config validation failed: %w", err)
	}
	if err := validateSweeper(&config.Sweeper); err != nil {
		return fmt.Errorf("sweeper config validation failed: %w", err)
	}
	if err := validateRetention(&config.Retention); err != nil {
		return fmt.Errorf("retention config validation failed: %w", err)
	}
	if err := validateMetrics(&config.Metrics); err != nil {
		return fmt.Errorf("metrics config validation failed: %w", err)
	}
	if err := validateLogging(&config.Logging); err != nil {
		return fmt.Errorf("logging config validation failed: %w", err)
	}
	if err := validateAPI(&config.API); err != nil {
		return fmt.Errorf("api config validation failed: %w", err)
	}
	return nil
}

func validateServer(c *ServerConfig) error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port number must be between 1 and 65535, got %d", c.Port)
	}
	if c.Bind != "" && net.ParseIP(c.Bind) == nil {
		return fmt.Errorf("invalid bind address: %s", c.Bind)
	}
	if c.RPCTimeoutSeconds <= 0 {
		return fmt.Errorf("rpc_timeout_seconds must be positive, got %d", c.RPCTimeoutSeconds)
	}
	return nil
}

func validateGRPC(c *GRPCConfig) error {
	if !c.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}
	if c.MaxRecvMsgSize <= 0 {
		return fmt.Errorf("max_recv_msg_size must be positive, got %d", c.MaxRecvMsgSize)
	}
	if c.MaxSendMsgSize <= 0 {
		return fmt.Errorf("max_send_msg_size must be positive, got %d", c.MaxSendMsgSize)
	}
	return nil
}

func validateStorage(c *StorageConfig) error {
	switch c.Backend {
	case "pebble", "leveldb", "memory":
	default:
		return fmt.Errorf("unknown storage backend: %s (supported: pebble, leveldb, memory)", c.Backend)
	}
	if c.Backend != "memory" && c.Path == "" {
		return fmt.Errorf("path is required for the %s backend", c.Backend)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative, got %d", c.CacheSize)
	}
	return nil
}

func validateArchive(c *ArchiveConfig) error {
	if c.PostgresEnabled && c.PostgresDSN == "" {
		return fmt.Errorf("postgres_dsn is required when postgres_enabled is set")
	}
	return nil
}

func validateSweeper(c *SweeperConfig) error {
	if !c.Enabled {
		return nil
	}
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("interval_seconds must be positive, got %d", c.IntervalSeconds)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.ExpiredForSeconds < 0 {
		return fmt.Errorf("expired_for_seconds must be non-negative, got %d", c.ExpiredForSeconds)
	}
	return nil
}

func validateRetention(c *RetentionConfig) error {
	if !c.Enabled {
		return nil
	}
	if c.IntervalHours <= 0 {
		return fmt.Errorf("interval_hours must be positive, got %d", c.IntervalHours)
	}
	if c.OlderThanDays < 1 {
		return fmt.Errorf("older_than_days must be at least 1, got %d", c.OlderThanDays)
	}
	if c.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", c.Limit)
	}
	if c.MaxSeconds < 0 {
		return fmt.Errorf("max_seconds must be non-negative, got %d", c.MaxSeconds)
	}
	return nil
}

func validateMetrics(c *MetricsConfig) error {
	if !c.Enabled {
		return nil
	}
	if c.Address == "" {
		return fmt.Errorf("address is required when metrics are enabled")
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}
	return nil
}

func validateLogging(c *LoggingConfig) error {
	switch c.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unknown log level: %s (supported: debug, info, warn, error)", c.Level)
}

func validateAPI(c *APIConfig) error {
	for _, ip := range c.AdminIPs {
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("invalid admin IP: %s", ip)
		}
	}
	return nil
}
