package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer builds a gRPC server with tracing and request id propagation.
func NewServer(extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryServerRequestIDInterceptor()),
	}
	return grpc.NewServer(append(opts, extra...)...)
}

// RegisterHealth registers the standard health service and marks service as serving.
func RegisterHealth(srv *grpc.Server, service string) *health.Server {
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	if service != "" {
		hs.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	}
	return hs
}

// Serve listens on addr until ctx is cancelled, then stops gracefully.
func Serve(ctx context.Context, addr string, srv *grpc.Server, logger *slog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, lis, srv, logger)
}

func ServeListener(ctx context.Context, lis net.Listener, srv *grpc.Server, logger *slog.Logger) error {
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	logger.Info("grpc server started", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
