package grpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/fanvault/tokend/internal/logging"
)

// Subsystems reported through the health service, alongside the
// overall (empty-name) status.
const (
	SubsystemRegistry = "registry"
	SubsystemRPC      = "rpc"
)

// Server exposes grpc.health.v1.Health. The overall status and each
// subsystem start NOT_SERVING; the process flips them as the pieces
// come up.
type Server struct {
	mu sync.RWMutex

	grpcServer *grpc.Server
	health     *health.Server
	config     *ServerConfig
	log        *logging.Logger
	listener   net.Listener
	running    bool
	statuses   map[string]bool
}

// NewServer creates a gRPC server with the health service registered.
func NewServer(cfg *ServerConfig, log *logging.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNop()
	}

	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.MaxSendMsgSize),
		grpc.UnaryInterceptor(loggingInterceptor(log)),
	}
	grpcServer := grpc.NewServer(opts...)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(SubsystemRegistry, healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(SubsystemRPC, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{
		grpcServer: grpcServer,
		health:     healthServer,
		config:     cfg,
		log:        log,
		statuses: map[string]bool{
			SubsystemRegistry: false,
			SubsystemRPC:      false,
		},
	}, nil
}

// SetServing flips one subsystem's health status. The overall status
// serves only while every subsystem does.
func (s *Server) SetServing(subsystem string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(subsystem, status)

	s.mu.Lock()
	s.statuses[subsystem] = serving
	overall := true
	for _, ok := range s.statuses {
		overall = overall && ok
	}
	s.mu.Unlock()

	overallStatus := healthpb.HealthCheckResponse_NOT_SERVING
	if overall {
		overallStatus = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", overallStatus)
}

// Start starts the server and blocks until it is stopped.
func (s *Server) Start() error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	return s.grpcServer.Serve(listener)
}

// StartAsync starts the server in a goroutine and returns once the
// listener is bound.
func (s *Server) StartAsync() error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	go func() {
		if err := s.grpcServer.Serve(listener); err != nil {
			s.log.Error("grpc server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) listen() (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, errors.New("server is already running")
	}
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return nil, err
	}
	s.listener = listener
	s.running = true
	s.log.Info("grpc server listening", zap.String("address", listener.Addr().String()))
	return listener, nil
}

// Stop gracefully stops the server, marking every health status
// NOT_SERVING first so balancers drain before connections close.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	s.running = false
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the bound listen address, empty before Start.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// loggingInterceptor logs each unary call with its duration and
// outcome.
func loggingInterceptor(log *logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(started)),
		}
		if err != nil {
			log.Warn("grpc call failed", append(fields, zap.Error(err))...)
		} else {
			log.Debug("grpc call", fields...)
		}
		return resp, err
	}
}
