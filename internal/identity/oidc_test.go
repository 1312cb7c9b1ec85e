package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testClientID = "chatrelay-test"

// testProvider serves discovery and a JWKS holding one RSA key; keys can be
// taken offline mid-test.
type testProvider struct {
	srv  *httptest.Server
	key  *rsa.PrivateKey
	down atomic.Bool
}

func newTestProvider(t *testing.T) *testProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	p := &testProvider{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                p.srv.URL,
			"authorization_endpoint":                p.srv.URL + "/auth",
			"jwks_uri":                              p.srv.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		if p.down.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		enc := base64.RawURLEncoding
		json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "k1",
			"alg": "RS256",
			"use": "sig",
			"n":   enc.EncodeToString(key.N.Bytes()),
			"e":   enc.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *testProvider) token(t *testing.T, key *rsa.PrivateKey, kid string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   p.srv.URL,
		"aud":   testClientID,
		"sub":   "google-sub-1",
		"name":  "Alice",
		"email": "alice@example.com",
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	})
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestOIDCVerifier(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	v, err := NewOIDC(ctx, p.srv.URL, testClientID)
	if err != nil {
		t.Fatalf("NewOIDC() error = %v", err)
	}

	id, err := v.Verify(ctx, p.token(t, p.key, "k1", time.Hour))
	if err != nil {
		t.Fatalf("Verify(valid) error = %v", err)
	}
	if id.Subject != "google-sub-1" || id.DisplayName != "Alice" || id.Email != "alice@example.com" {
		t.Errorf("identity = %+v", id)
	}

	other, _ := rsa.GenerateKey(rand.Reader, 2048)
	tests := []struct {
		name       string
		credential string
	}{
		{"expired", p.token(t, p.key, "k1", -time.Minute)},
		{"unknown signer", p.token(t, other, "k9", time.Hour)},
		{"garbage", "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(ctx, tt.credential); !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("Verify() error = %v, want ErrInvalidCredential", err)
			}
		})
	}
}

func TestOIDCVerifier_KeysUnreachable(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	v, err := NewOIDC(ctx, p.srv.URL, testClientID)
	if err != nil {
		t.Fatalf("NewOIDC() error = %v", err)
	}
	p.down.Store(true)

	// an unseen kid forces a key refresh, which fails
	cred := p.token(t, p.key, "k2", time.Hour)
	_, err = v.Verify(ctx, cred)
	if err == nil || errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("Verify() error = %v, want key fetch failure", err)
	}
	if _, err := (Chain{NewDev("secret"), v}).Verify(ctx, cred); err == nil || errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Chain.Verify() error = %v, want key fetch failure", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := v.Verify(cancelled, cred); err == nil || errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Verify(cancelled) error = %v, want a non-credential failure", err)
	}
}
