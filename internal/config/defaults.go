package config

import "github.com/spf13/viper"

// setDefaults registers the default for every configuration key. Every
// key must appear here: viper only surfaces environment overrides for
// keys it knows about.
func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.bind", "")
	v.SetDefault("server.rpc_timeout_seconds", 30)

	// gRPC health endpoint
	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.address", "127.0.0.1:50051")
	v.SetDefault("grpc.max_recv_msg_size", 4*1024*1024)
	v.SetDefault("grpc.max_send_msg_size", 4*1024*1024)

	// Storage
	v.SetDefault("storage.backend", "pebble")
	v.SetDefault("storage.path", "data/registry")
	v.SetDefault("storage.cache_size", 4096)
	v.SetDefault("storage.compression", true)

	// Long-term archive
	v.SetDefault("archive.postgres_enabled", false)
	v.SetDefault("archive.postgres_dsn", "")

	// Expired-hold sweeper
	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.interval_seconds", 60)
	v.SetDefault("sweeper.batch_size", 100)
	v.SetDefault("sweeper.expired_for_seconds", 0)

	// Retention sweeper. Disabled and dry-run by default: deleting
	// ledger history is opt-in twice.
	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.interval_hours", 24)
	v.SetDefault("retention.older_than_days", 365)
	v.SetDefault("retention.limit", 1000)
	v.SetDefault("retention.dry_run", true)
	v.SetDefault("retention.archive", true)
	v.SetDefault("retention.max_seconds", 30)

	// Metrics
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9464")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	// API access control
	v.SetDefault("api.admin_ips", []string{"127.0.0.1", "::1"})
}
