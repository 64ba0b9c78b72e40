// ============================================================================
// meinSYSTEM (mSYS) - Service Lifecycle Core
// ============================================================================
//
// Package:     control
// Description: gRPC control endpoint of the system manager. It serves the
//              standard health protocol; the serving status follows the
//              component health report.
// Author:      Mike Stoffels
// Created:     2026-10-15
// License:     MIT
// ============================================================================

package control

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/msto63/mSYS/pkg/core/health"
	"github.com/msto63/mSYS/pkg/core/logging"
)

// ServiceName is the health service name reported next to the overall ""
const ServiceName = "msys.SystemManager"

// ServerConfig holds gRPC server configuration
type ServerConfig struct {
	Address           string
	EnableReflection  bool
	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration
}

// DefaultServerConfig returns a default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:           "127.0.0.1:9300",
		EnableReflection:  true,
		KeepaliveInterval: 30 * time.Second,
		KeepaliveTimeout:  10 * time.Second,
	}
}

// Server wraps a gRPC server exposing the health service
type Server struct {
	server   *grpc.Server
	health   *grpchealth.Server
	checks   *health.Registry
	config   ServerConfig
	logger   *logging.Logger
	mu       sync.Mutex
	listener net.Listener
	last     *health.Report
}

// NewServer creates the control server. checks decides the serving status
// on every Refresh.
func NewServer(cfg ServerConfig, checks *health.Registry, opts ...grpc.ServerOption) *Server {
	logger := logging.New("control")
	serverOpts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.KeepaliveInterval,
			Timeout: cfg.KeepaliveTimeout,
		}),
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(logger),
			RequestIDInterceptor(),
			LoggingInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(
			StreamRecoveryInterceptor(logger),
			StreamLoggingInterceptor(logger),
		),
	}
	serverOpts = append(serverOpts, opts...)

	server := grpc.NewServer(serverOpts...)
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	if cfg.EnableReflection {
		reflection.Register(server)
	}

	s := &Server{
		server: server,
		health: hs,
		checks: checks,
		config: cfg,
		logger: logger,
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// GRPCServer returns the underlying gRPC server for service registration
func (s *Server) GRPCServer() *grpc.Server {
	return s.server
}

// Refresh runs the health checks and updates the serving status
func (s *Server) Refresh(ctx context.Context) *health.Report {
	report := s.checks.Check(ctx)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if report.Healthy() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.mu.Lock()
	changed := s.last == nil || s.last.Status != report.Status
	s.last = report
	s.mu.Unlock()

	s.setStatus(status)
	if changed {
		s.logger.Info("health status changed", "status", string(report.Status), "serving", status.String())
	}
	return report
}

// LastReport returns the report of the latest Refresh
func (s *Server) LastReport() *health.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve serves on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()
	return s.server.Serve(lis)
}

// StartAsync listens on the configured address and serves in a goroutine
func (s *Server) StartAsync() error {
	lis, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	go func() {
		if err := s.Serve(lis); err != nil {
			s.logger.Error("gRPC server error", "error", err)
		}
	}()
	s.logger.Info("control endpoint listening", "address", lis.Addr().String())
	return nil
}

// Stop marks the service not serving and stops the server, forcing it
// once ctx is done
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
		<-done
	}
}

// Address returns the server address
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}
