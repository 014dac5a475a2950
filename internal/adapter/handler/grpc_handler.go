package handler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// StorefrontService is the service name reported by the gRPC health server.
const StorefrontService = "beautyshop.Storefront"

// NewGRPCServer returns a gRPC server with the standard health service
// registered. Both the server-wide and storefront statuses start as
// NOT_SERVING until WatchHealth reports a healthy store.
func NewGRPCServer(opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(StorefrontService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// WatchHealth runs check every interval and publishes the result until ctx
// is done, then marks everything NOT_SERVING.
func WatchHealth(ctx context.Context, hs *health.Server, check func(context.Context) error, interval time.Duration, log logrus.FieldLogger) {
	log = log.WithField("component", "grpc-health")
	last := healthpb.HealthCheckResponse_UNKNOWN

	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()

		status := healthpb.HealthCheckResponse_SERVING
		if err := check(probeCtx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if last != status {
				log.WithError(err).Warn("store health check failed")
			}
		}
		if status != last {
			hs.SetServingStatus("", status)
			hs.SetServingStatus(StorefrontService, status)
			last = status
		}
	}

	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			probe()
		}
	}
}
