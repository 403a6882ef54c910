package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fanvault/tokend/internal/di"
	grpcserver "github.com/fanvault/tokend/internal/grpc"
	"github.com/fanvault/tokend/internal/ledger"
	"github.com/fanvault/tokend/internal/metrics"
	"github.com/fanvault/tokend/internal/registry"
	"github.com/fanvault/tokend/internal/rpc"
	"github.com/fanvault/tokend/internal/version"
)

var (
	// Server flags
	port     int
	bindAddr string
)

// serverCmd represents the server command (default action)
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the token ledger daemon",
	Long: `Start the tokend server which provides:
- HTTP JSON-RPC API endpoints
- WebSocket server for real-time subscriptions
- Health check endpoint
- Background expired-hold and retention sweepers

This is the default command when no subcommand is specified.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Set server as the default command
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServer(cmd, args)
	}

	// Server-specific flags
	serverCmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on")
	serverCmd.Flags().StringVar(&bindAddr, "bind", "", "address to bind to (default: all interfaces)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
	if cmd.Flags().Changed("bind") {
		cfg.Server.Bind = bindAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container := di.New()
	provider := di.NewProvider(container, cfg)
	if err := provider.RegisterAll(); err != nil {
		return err
	}
	defer container.Close()

	log, err := provider.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	m, err := provider.Metrics()
	if err != nil {
		return err
	}
	store, err := provider.Store()
	if err != nil {
		return fmt.Errorf("failed to open registry store: %w", err)
	}
	svc, err := provider.Ledger()
	if err != nil {
		return err
	}
	subs, err := provider.Subscriptions()
	if err != nil {
		return err
	}

	if m.IsEnabled() {
		m.SetBuildInfo(version.Version)
		m.ObserveStore(func() metrics.StoreStats { return storeStats(store.Stats()) })
	}

	rpcServer := rpc.NewServer(svc, rpc.Config{
		Timeout:  cfg.Server.RPCTimeout(),
		AdminIPs: cfg.API.AdminIPs,
		Version:  version.Version,
	}, log, m)
	rpcServer.AttachSubscriptions(subs)
	wsServer := rpc.NewWebSocketServer(rpcServer, subs, log)

	mux := http.NewServeMux()
	mux.Handle("/", rpcServer)
	mux.Handle("/rpc", rpcServer)
	mux.Handle("/ws", wsServer)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","service":"tokend","version":%q}`, version.Version)
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsServer *http.Server
	if m.IsEnabled() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", m.Handler())
		metricsMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	var healthServer *grpcserver.Server
	if cfg.GRPC.Enabled {
		healthServer, err = grpcserver.NewServer(&grpcserver.ServerConfig{
			Address:        cfg.GRPC.Address,
			MaxRecvMsgSize: cfg.GRPC.MaxRecvMsgSize,
			MaxSendMsgSize: cfg.GRPC.MaxSendMsgSize,
		}, log)
		if err != nil {
			return err
		}
		if err := healthServer.StartAsync(); err != nil {
			return err
		}
		healthServer.SetServing(grpcserver.SubsystemRegistry, true)
	}

	if !quiet {
		fmt.Println("Starting tokend - token ledger daemon")
		fmt.Println("=====================================")
		fmt.Println("Server Configuration:")
		fmt.Printf("  - HTTP JSON-RPC: http://localhost:%d/\n", cfg.Server.Port)
		fmt.Printf("  - HTTP JSON-RPC: http://localhost:%d/rpc\n", cfg.Server.Port)
		fmt.Printf("  - WebSocket:     ws://localhost:%d/ws\n", cfg.Server.Port)
		fmt.Printf("  - Health Check:  http://localhost:%d/health\n", cfg.Server.Port)
		if m.IsEnabled() {
			fmt.Printf("  - Metrics:       http://%s/metrics\n", cfg.Metrics.Address)
		}
		if cfg.GRPC.Enabled {
			fmt.Printf("  - gRPC Health:   %s\n", cfg.GRPC.Address)
		}
		fmt.Printf("  - Storage:       %s", cfg.Storage.Backend)
		if cfg.Storage.Path != "" {
			fmt.Printf(" (%s)", cfg.Storage.Path)
		}
		fmt.Println()
		fmt.Println()
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("rpc server listening", zap.String("addr", httpServer.Addr))
		if healthServer != nil {
			healthServer.SetServing(grpcserver.SubsystemRPC, true)
		}
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			log.Info("metrics listening", zap.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if cfg.Sweeper.Enabled {
		g.Go(func() error {
			svc.RunExpirySweeper(gCtx, cfg.Sweeper.Interval(),
				int64(cfg.Sweeper.ExpiredForSeconds), cfg.Sweeper.BatchSize)
			return nil
		})
	}

	if cfg.Retention.Enabled {
		opts := ledger.PurgeOptions{
			OlderThanDays: cfg.Retention.OlderThanDays,
			Limit:         cfg.Retention.Limit,
			DryRun:        cfg.Retention.DryRun,
			Archive:       cfg.Retention.Archive,
			MaxSeconds:    cfg.Retention.MaxSeconds,
		}
		g.Go(func() error {
			svc.RunRetentionSweeper(gCtx, cfg.Retention.Interval(), opts)
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if healthServer != nil {
			healthServer.SetServing(grpcserver.SubsystemRPC, false)
			healthServer.Stop()
		}
		subs.CloseAll()

		var firstErr error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			firstErr = err
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})

	return g.Wait()
}

func storeStats(s registry.Statistics) metrics.StoreStats {
	return metrics.StoreStats{
		Puts:                s.Puts,
		Gets:                s.Gets,
		Queries:             s.Queries,
		Updates:             s.Updates,
		ConditionalFailures: s.ConditionalFailures,
		Deletes:             s.Deletes,
		Scans:               s.Scans,
		CacheHits:           s.CacheHits,
		CacheMisses:         s.CacheMisses,
		Backend:             s.Backend,
	}
}
