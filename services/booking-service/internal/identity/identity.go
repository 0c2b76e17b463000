package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/localli/booking/libs/auth"
	"github.com/localli/booking/services/booking-service/internal/model"
)

const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-Role"
)

type Config struct {
	JWTSecret string
	JWKS      *auth.JWKSClient
	// TrustGatewayHeaders accepts X-User-Id and X-Role set by an upstream
	// gateway. They win over a forwarded bearer token, which the gateway has
	// already verified.
	TrustGatewayHeaders bool
}

// Resolver turns request credentials into an Actor.
type Resolver struct {
	cfg Config
}

func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

func (r *Resolver) Resolve(req *http.Request) (model.Actor, error) {
	if r.cfg.TrustGatewayHeaders {
		if userID := strings.TrimSpace(req.Header.Get(HeaderUserID)); userID != "" {
			return actorFrom(userID, strings.TrimSpace(req.Header.Get(HeaderRole)))
		}
	}

	if authHeader := strings.TrimSpace(req.Header.Get("Authorization")); authHeader != "" {
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return model.Actor{}, fmt.Errorf("%w: malformed Authorization header", model.ErrUnauthenticated)
		}
		claims, err := auth.Verify(req.Context(), strings.TrimSpace(token), r.cfg.JWTSecret, r.cfg.JWKS)
		if err != nil {
			return model.Actor{}, fmt.Errorf("%w: %v", model.ErrUnauthenticated, err)
		}
		return actorFrom(claims.Subject(), claims.Role)
	}
	return model.Actor{}, fmt.Errorf("%w: missing credentials", model.ErrUnauthenticated)
}

func actorFrom(userID, rawRole string) (model.Actor, error) {
	role, ok := model.ParseRole(rawRole)
	if !ok {
		return model.Actor{}, fmt.Errorf("%w: unknown role %q", model.ErrUnauthenticated, rawRole)
	}
	return model.Actor{UserID: userID, Role: role}, nil
}

type ctxKey struct{}

func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

func FromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(ctxKey{}).(model.Actor)
	return actor, ok && actor.Authenticated()
}

// Middleware attaches the caller's Actor to the request context when
// credentials resolve. Unauthenticated requests pass through; handlers
// that need an Actor reject them.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if actor, err := r.Resolve(req); err == nil {
			req = req.WithContext(WithActor(req.Context(), actor))
		}
		next.ServeHTTP(w, req)
	})
}
