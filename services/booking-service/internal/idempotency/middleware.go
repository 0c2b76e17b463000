package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/localli/booking/libs/httpx"
)

const maxKeyLength = 255

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

// Middleware replays the stored response when a request repeats an
// Idempotency-Key within scope. Requests without the header pass through.
// Responses with status >= 500 are not stored so the client can retry.
func Middleware(store *Store, scope func(*http.Request) string, logger *slog.Logger) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderKey))
			owner := scope(r)
			if store == nil || key == "" || owner == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				httpx.WriteError(w, http.StatusBadRequest, "Idempotency-Key is too long")
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "unable to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			sum := sha256.Sum256(append([]byte(r.Method+" "+r.URL.Path+"\n"), body...))
			fingerprint := hex.EncodeToString(sum[:])

			ctx := r.Context()
			rec, claimed, err := store.Begin(ctx, owner, key, fingerprint)
			switch {
			case errors.Is(err, ErrInProgress):
				httpx.WriteError(w, http.StatusConflict, err.Error())
				return
			case errors.Is(err, ErrKeyReused):
				httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
				return
			case err != nil:
				logger.Error("idempotency lookup failed", "err", err)
				httpx.WriteError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
				return
			}
			if !claimed {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(HeaderReplayed, "true")
				w.WriteHeader(rec.StatusCode)
				_, _ = w.Write(rec.Body)
				return
			}

			capture := &recorder{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			if capture.status == 0 || capture.status >= http.StatusInternalServerError {
				if err := store.Release(ctx, owner, key); err != nil {
					logger.Warn("idempotency release failed", "err", err)
				}
				return
			}
			if err := store.Complete(ctx, owner, key, Record{
				Fingerprint: fingerprint,
				StatusCode:  capture.status,
				Body:        capture.body.Bytes(),
			}); err != nil {
				logger.Warn("idempotency record write failed", "err", err)
			}
		})
	}
}
