package grpcx

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type DialOptions struct {
	// Timeout bounds the wait for the first READY state. Zero means 3s.
	Timeout time.Duration
	// Nil means plaintext, for local runs or a mesh that terminates mTLS.
	TransportCredentials grpc.DialOption
}

// Dial creates a client with tracing and request id propagation and waits
// until the connection is ready, so misconfigured addresses fail at startup.
func Dial(ctx context.Context, addr string, opts DialOptions, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	creds := opts.TransportCredentials
	if creds == nil {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(UnaryClientRequestIDInterceptor()),
		creds,
	}, extra...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return conn, nil
		}
		if !conn.WaitForStateChange(waitCtx, state) {
			_ = conn.Close()
			return nil, fmt.Errorf("grpc dial %s: %w (last state %s)", addr, waitCtx.Err(), state)
		}
	}
}

// HealthCheck adapts the standard health service into a readiness probe.
func HealthCheck(conn *grpc.ClientConn, service string) func(context.Context) error {
	client := healthpb.NewHealthClient(conn)
	return func(ctx context.Context) error {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return err
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("%s is %s", service, resp.GetStatus())
		}
		return nil
	}
}
