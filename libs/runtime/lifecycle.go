package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"
)

// ShutdownTimeout bounds how long in-flight requests get after a stop signal.
const ShutdownTimeout = 10 * time.Second

func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ServeHTTP runs srv until ctx is done, then shuts it down gracefully.
// A listen failure is returned immediately.
func ServeHTTP(ctx context.Context, srv *http.Server, logger *slog.Logger, attrs ...any) error {
	lis, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	return ServeHTTPListener(ctx, srv, lis, logger, attrs...)
}

func ServeHTTPListener(ctx context.Context, srv *http.Server, lis net.Listener, logger *slog.Logger, attrs ...any) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", append([]any{"addr", lis.Addr().String()}, attrs...)...)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
	return nil
}
