package auth

import (
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims accepts both the registered "sub" claim and the legacy "id" claim
// issued by older identity deployments.
type Claims struct {
	Sub   string `json:"sub,omitempty"`
	ID    string `json:"id,omitempty"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	Exp   int64  `json:"exp"`
	Iat   int64  `json:"iat"`
}

// Subject returns the user id carried by the token.
func (c Claims) Subject() string {
	if c.Sub != "" {
		return c.Sub
	}
	return c.ID
}

type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid"`
}

func ParseHeader(token string) (*Header, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var header Header
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, ErrInvalidToken
	}
	return &header, nil
}

func SignHS256(claims Claims, secret string) (string, error) {
	header := map[string]string{
		"alg": "HS256",
		"typ": "JWT",
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
	return unsigned + "." + hmacSHA256(unsigned, secret), nil
}

func ParseAndVerifyHS256(token, secret string) (*Claims, error) {
	if secret == "" {
		return nil, ErrInvalidToken
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	unsigned := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(hmacSHA256(unsigned, secret))) {
		return nil, ErrInvalidToken
	}
	return decodeClaims(parts[1])
}

func hmacSHA256(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func VerifyRS256(token string, pubKey crypto.PublicKey) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, ErrInvalidToken
	}
	rsaKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidToken
	}

	hash := sha256.Sum256([]byte(parts[0] + "." + parts[1]))
	if err := rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, hash[:], sig); err != nil {
		return nil, ErrInvalidToken
	}
	return decodeClaims(parts[1])
}

// Verify checks token against whichever key material its header asks for.
// HS256 needs secret; RS256 needs a JWKS client.
func Verify(ctx context.Context, token, secret string, keys *JWKSClient) (*Claims, error) {
	header, err := ParseHeader(token)
	if err != nil {
		return nil, err
	}
	switch header.Alg {
	case "HS256":
		return ParseAndVerifyHS256(token, secret)
	case "RS256":
		if keys == nil {
			return nil, ErrInvalidToken
		}
		key, err := keys.Get(ctx, header.Kid)
		if err != nil {
			return nil, ErrInvalidToken
		}
		return VerifyRS256(token, key)
	default:
		return nil, ErrInvalidToken
	}
}

func decodeClaims(segment string) (*Claims, error) {
	payload, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Exp > 0 && time.Now().Unix() > claims.Exp {
		return nil, ErrInvalidToken
	}
	if claims.Subject() == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
