package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := Claims{
		Sub:  "user-1",
		Role: "owner",
		Iat:  time.Now().Unix(),
		Exp:  time.Now().Add(1 * time.Hour).Unix(),
	}
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, secret)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Subject() != claims.Sub || parsed.Role != claims.Role {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestLegacyIDClaim(t *testing.T) {
	token, err := SignHS256(Claims{ID: "user-9", Role: "customer", Email: "a@b.c"}, "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := Verify(context.Background(), token, "s", nil)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Subject() != "user-9" {
		t.Fatalf("expected legacy id as subject, got %q", parsed.Subject())
	}
}

func TestExpiredAndSubjectlessTokensRejected(t *testing.T) {
	expired, _ := SignHS256(Claims{Sub: "u", Exp: time.Now().Add(-time.Minute).Unix()}, "s")
	if _, err := ParseAndVerifyHS256(expired, "s"); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
	anonymous, _ := SignHS256(Claims{Role: "customer"}, "s")
	if _, err := ParseAndVerifyHS256(anonymous, "s"); err == nil {
		t.Fatal("expected token without subject to be rejected")
	}
}

func TestRS256Verify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	claims := Claims{
		Sub:  "user-2",
		Role: "admin",
		Iat:  time.Now().Unix(),
		Exp:  time.Now().Add(1 * time.Hour).Unix(),
	}

	token, err := signRS256(claims, key, "kid-1")
	if err != nil {
		t.Fatalf("rs256 Sign failed: %v", err)
	}
	parsed, err := VerifyRS256(token, &key.PublicKey)
	if err != nil {
		t.Fatalf("VerifyRS256 failed: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.Role != claims.Role {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
}

func TestVerifyWithJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kty: "RSA",
			Kid: "kid-1",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	token, err := signRS256(Claims{Sub: "user-3", Role: "customer"}, key, "kid-1")
	if err != nil {
		t.Fatalf("rs256 Sign failed: %v", err)
	}
	client := NewJWKSClient(srv.URL, time.Minute)
	parsed, err := Verify(context.Background(), token, "", client)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Subject() != "user-3" {
		t.Fatalf("unexpected subject %q", parsed.Subject())
	}

	unknownKid, _ := signRS256(Claims{Sub: "user-3"}, key, "kid-2")
	if _, err := Verify(context.Background(), unknownKid, "", client); err == nil {
		t.Fatal("expected unknown kid to be rejected")
	}
	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Fatalf("unknown kid right after a fetch should not refetch, got %d fetches", n)
	}

	base := time.Now()
	client.now = func() time.Time { return base.Add(minRefreshInterval + time.Second) }
	if _, err := Verify(context.Background(), unknownKid, "", client); err == nil {
		t.Fatal("expected unknown kid to be rejected")
	}
	if n := atomic.LoadInt32(&fetches); n != 2 {
		t.Fatalf("expected a refetch after the throttle window, got %d fetches", n)
	}
}

func signRS256(claims Claims, key *rsa.PrivateKey, kid string) (string, error) {
	header := map[string]string{
		"alg": "RS256",
		"typ": "JWT",
	}
	if kid != "" {
		header["kid"] = kid
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	hash := sha256.Sum256([]byte(unsigned))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		return "", err
	}
	return unsigned + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}
