package api

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newJWKSServer(t *testing.T, kid string, pub *rsa.PublicKey) (*httptest.Server, *int32) {
	t.Helper()
	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kid": kid,
				"kty": "RSA",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &fetches
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestClerkAuthMiddleware(t *testing.T) {
	t.Setenv("CLERK_AUDIENCE", "")
	t.Setenv("CLERK_ISSUER", "")

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv, fetches := newJWKSServer(t, "kid-1", &key.PublicKey)

	handler := ClerkAuthMiddleware(srv.URL)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetClerkUserID(r.Context())
		w.Write([]byte(id))
	}))

	valid := signToken(t, key, "kid-1", jwt.MapClaims{"sub": "user_abc", "exp": time.Now().Add(time.Hour).Unix()})
	expired := signToken(t, key, "kid-1", jwt.MapClaims{"sub": "user_abc", "exp": time.Now().Add(-time.Hour).Unix()})
	unknownKid := signToken(t, key, "kid-2", jwt.MapClaims{"sub": "user_abc", "exp": time.Now().Add(time.Hour).Unix()})
	noSubject := signToken(t, key, "kid-1", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	hmac, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user_abc"}).SignedString([]byte("secret"))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", valid, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"unknown kid", "Bearer " + unknownKid, http.StatusUnauthorized},
		{"no subject", "Bearer " + noSubject, http.StatusUnauthorized},
		{"hmac token", "Bearer " + hmac, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d (%s)", tc.status, rec.Code, rec.Body.String())
			}
			if tc.status == http.StatusOK && rec.Body.String() != "user_abc" {
				t.Fatalf("expected user id in context, got %q", rec.Body.String())
			}
		})
	}

	if got := atomic.LoadInt32(fetches); got != 1 {
		t.Fatalf("expected JWKS to be fetched once and cached, got %d fetches", got)
	}
}

func TestClerkAuthMiddleware_EnforcesAudience(t *testing.T) {
	t.Setenv("CLERK_AUDIENCE", "kontent-app")
	t.Setenv("CLERK_ISSUER", "")

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv, _ := newJWKSServer(t, "kid-1", &key.PublicKey)
	handler := ClerkAuthMiddleware(srv.URL)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for aud, want := range map[string]int{"kontent-app": http.StatusOK, "someone-else": http.StatusUnauthorized} {
		token := signToken(t, key, "kid-1", jwt.MapClaims{"sub": "user_abc", "aud": aud, "exp": time.Now().Add(time.Hour).Unix()})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("aud %q: expected %d, got %d", aud, want, rec.Code)
		}
	}
}

func TestInternalAuthMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		required string
		provided string
		status   int
	}{
		{"matching key", "secret", "secret", http.StatusOK},
		{"wrong key", "secret", "nope", http.StatusUnauthorized},
		{"missing key", "secret", "", http.StatusUnauthorized},
		{"unconfigured key rejects", "", "", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := InternalAuthMiddleware(tc.required)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.provided != "" {
				req.Header.Set("X-Internal-API-Key", tc.provided)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestParseRSAPublicKey(t *testing.T) {
	if _, err := parseRSAPublicKey("!!", "AQAB"); err == nil {
		t.Fatal("expected error for invalid modulus")
	}
	pub, err := parseRSAPublicKey(base64.RawURLEncoding.EncodeToString([]byte{0x01, 0x02}), "AQAB")
	if err != nil {
		t.Fatalf("parseRSAPublicKey: %v", err)
	}
	if pub.E != 65537 || pub.N.Int64() != 258 {
		t.Fatalf("unexpected key N=%s E=%d", pub.N, pub.E)
	}
}
