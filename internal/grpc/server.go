package grpc

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"messaging-service/internal/observability"
)

// ServiceName is the health entry reported for the messaging service.
const ServiceName = "messaging.v1.MessagingService"

// Checker reports whether a dependency is reachable.
type Checker func(ctx context.Context) error

// OpsServer serves gRPC health checks backed by dependency probes.
type OpsServer struct {
	server   *grpc.Server
	health   *health.Server
	checks   map[string]Checker
	interval time.Duration
	log      logrus.FieldLogger
}

// NewOpsServer builds the server. Each probe in checks must pass for the
// service to report SERVING.
func NewOpsServer(checks map[string]Checker, interval time.Duration, log logrus.FieldLogger) *OpsServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &OpsServer{
		server:   server,
		health:   hs,
		checks:   checks,
		interval: interval,
		log:      log.WithField("component", "grpc"),
	}
}

// Probe runs every check once and updates the serving status.
func (s *OpsServer) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.log.WithError(err).WithField("dependency", name).Warn("health probe failed")
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
	return status
}

// Serve probes dependencies on an interval and serves until lis closes.
func (s *OpsServer) Serve(ctx context.Context, lis net.Listener) error {
	s.Probe(ctx)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Probe(ctx)
			}
		}
	}()

	s.log.WithField("addr", lis.Addr().String()).Info("gRPC ops server listening")
	return s.server.Serve(lis)
}

// Stop marks the service as not serving and drains in-flight calls.
func (s *OpsServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
