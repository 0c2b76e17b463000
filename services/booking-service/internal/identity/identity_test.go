package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/localli/booking/libs/auth"
	"github.com/localli/booking/services/booking-service/internal/model"
)

func TestResolveBearerToken(t *testing.T) {
	token, err := auth.SignHS256(auth.Claims{Sub: "cust-1", Role: "customer", Exp: time.Now().Add(time.Hour).Unix()}, "secret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	actor, err := NewResolver(Config{JWTSecret: "secret"}).Resolve(req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if actor.UserID != "cust-1" || actor.Role != model.RoleCustomer {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestResolveRejectsBadCredentials(t *testing.T) {
	badRole, _ := auth.SignHS256(auth.Claims{Sub: "u", Role: "superuser"}, "secret")
	wrongKey, _ := auth.SignHS256(auth.Claims{Sub: "u", Role: "owner"}, "other")

	cases := map[string]string{
		"unknown role": "Bearer " + badRole,
		"wrong key":    "Bearer " + wrongKey,
		"not bearer":   "Basic dXNlcjpwYXNz",
		"empty bearer": "Bearer ",
		"garbage":      "Bearer not.a.jwt",
	}
	r := NewResolver(Config{JWTSecret: "secret"})
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		if _, err := r.Resolve(req); !errors.Is(err, model.ErrUnauthenticated) {
			t.Fatalf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
	}
}

func TestGatewayHeadersOnlyWhenTrusted(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "owner-1")
	req.Header.Set(HeaderRole, "owner")

	if _, err := NewResolver(Config{}).Resolve(req); !errors.Is(err, model.ErrUnauthenticated) {
		t.Fatalf("expected headers to be ignored, got %v", err)
	}
	actor, err := NewResolver(Config{TrustGatewayHeaders: true}).Resolve(req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if actor.UserID != "owner-1" || actor.Role != model.RoleOwner {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestGatewayHeadersWinOverForwardedToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer aaa.bbb.ccc")
	req.Header.Set(HeaderUserID, "cust-1")
	req.Header.Set(HeaderRole, "customer")

	actor, err := NewResolver(Config{TrustGatewayHeaders: true}).Resolve(req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if actor.UserID != "cust-1" || actor.Role != model.RoleCustomer {
		t.Fatalf("unexpected actor %+v", actor)
	}

	if _, err := NewResolver(Config{JWTSecret: "secret"}).Resolve(req); !errors.Is(err, model.ErrUnauthenticated) {
		t.Fatalf("expected the token to be checked when headers are untrusted, got %v", err)
	}
}

func TestMiddlewareAttachesActor(t *testing.T) {
	var seen model.Actor
	var ok bool
	h := NewResolver(Config{TrustGatewayHeaders: true}).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, ok = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if ok {
		t.Fatal("expected no actor without credentials")
	}

	req.Header.Set(HeaderUserID, "cust-9")
	req.Header.Set(HeaderRole, "customer")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !ok || seen.UserID != "cust-9" {
		t.Fatalf("expected actor cust-9, got %+v (%v)", seen, ok)
	}
}
