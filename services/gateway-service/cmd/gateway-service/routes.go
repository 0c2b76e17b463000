package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/localli/booking/libs/auth"
	"github.com/localli/booking/libs/httpx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	apiPrefix = "/api/v1"

	headerUserID = "X-User-Id"
	headerRole   = "X-Role"
)

type verifier struct {
	secret string
	keys   *auth.JWKSClient
}

func registerRoutes(mux *http.ServeMux, bookingURL *url.URL, v verifier) {
	booking := httputil.NewSingleHostReverseProxy(bookingURL)
	booking.Transport = otelhttp.NewTransport(http.DefaultTransport)
	upstream := http.StripPrefix(apiPrefix, booking)

	mux.Handle("GET "+apiPrefix+"/businesses/{id}/slots", stripIdentity(upstream))
	mux.Handle(apiPrefix+"/appointments", requireAuth(upstream, v))
	mux.Handle(apiPrefix+"/appointments/", requireAuth(upstream, v))

	mux.Handle("GET "+apiPrefix+"/appointments/owner/all", requireAuth(requireRole(upstream, "owner"), v))
	mux.Handle("GET "+apiPrefix+"/appointments/business/{id}", requireAuth(requireRole(upstream, "owner", "admin"), v))
}

// stripIdentity drops identity headers a client may have forged; the booking
// service trusts them when they arrive through the gateway.
func stripIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(headerUserID)
		r.Header.Del(headerRole)
		next.ServeHTTP(w, r)
	})
}

func requireAuth(next http.Handler, v verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(headerUserID)
		r.Header.Del(headerRole)

		token, ok := strings.CutPrefix(strings.TrimSpace(r.Header.Get("Authorization")), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		claims, err := auth.Verify(r.Context(), strings.TrimSpace(token), v.secret, v.keys)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		r.Header.Del("Authorization")
		r.Header.Set(headerUserID, claims.Subject())
		r.Header.Set(headerRole, claims.Role)
		next.ServeHTTP(w, r)
	})
}

func requireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := allowed[r.Header.Get(headerRole)]; !ok {
			httpx.WriteError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
