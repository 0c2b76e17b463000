package grpcx

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/localli/booking/libs/httpx"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

func TestHealthServerOverDial(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer()
	RegisterHealth(srv, "booking-service")
	done := make(chan error, 1)
	go func() { done <- ServeListener(ctx, lis, srv, slog.New(slog.NewTextHandler(io.Discard, nil))) }()

	conn, err := Dial(ctx, lis.Addr().String(), DialOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var header metadata.MD
	callCtx := httpx.ContextWithRequestID(ctx, "req-123")
	resp, err := healthpb.NewHealthClient(conn).Check(callCtx, &healthpb.HealthCheckRequest{Service: "booking-service"}, grpc.Header(&header))
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}
	if got := header.Get(RequestIDMetadataKey); len(got) != 1 || got[0] != "req-123" {
		t.Fatalf("expected echoed request id, got %v", got)
	}

	if err := HealthCheck(conn, "booking-service")(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if err := HealthCheck(conn, "unknown-service")(ctx); err == nil {
		t.Fatal("expected error for unregistered service")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestDialTimesOut(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	start := time.Now()
	if _, err := Dial(context.Background(), addr, DialOptions{Timeout: 200 * time.Millisecond}); err == nil {
		t.Fatal("expected dial to a closed port to fail")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("dial did not respect its timeout")
	}
}
