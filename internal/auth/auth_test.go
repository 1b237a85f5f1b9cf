package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var secret = []byte("test-secret-0123456789abcdef")

func signHS(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().Subject(sub).IssuedAt(time.Now()).Expiration(exp).Claim("email", sub+"@example.com").Build()
	if err != nil {
		t.Fatal(err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, secret))
	if err != nil {
		t.Fatal(err)
	}
	return string(signed)
}

func TestVerifyHS256(t *testing.T) {
	v, err := NewHS256(secret, "owner")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name  string
		token string
		ok    bool
	}{
		{"owner", signHS(t, "owner", time.Now().Add(time.Hour)), true},
		{"other subject", signHS(t, "intruder", time.Now().Add(time.Hour)), false},
		{"expired", signHS(t, "owner", time.Now().Add(-time.Hour)), false},
		{"garbage", "not.a.jwt", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := v.Verify(tt.token)
			if tt.ok {
				if err != nil {
					t.Fatalf("Verify: %v", err)
				}
				if u.ID != "owner" || u.Email != "owner@example.com" {
					t.Errorf("user = %+v", u)
				}
				return
			}
			if !errors.Is(err, ErrUnauthenticated) {
				t.Fatalf("err = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	v, err := NewHS256([]byte("another-secret-entirely-000000"), "owner")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(signHS(t, "owner", time.Now().Add(time.Hour))); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestNewHS256EmptySecret(t *testing.T) {
	if _, err := NewHS256(nil, "owner"); err == nil {
		t.Fatal("expected error")
	}
}

func TestFromRequest(t *testing.T) {
	v, _ := NewHS256(secret, "owner")
	r := httptest.NewRequest(http.MethodGet, "/api/threads", nil)
	r.Header.Set("Authorization", "Bearer "+signHS(t, "owner", time.Now().Add(time.Hour)))
	if _, err := v.FromRequest(r); err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	r.Header.Set("Authorization", "Basic abc")
	if _, err := v.FromRequest(r); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"abc":          "",
		"":             "",
	}
	for in, want := range tests {
		if got := BearerToken(in); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVerifyJWKS(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	privKey, err := jwk.FromRaw(priv)
	if err != nil {
		t.Fatal(err)
	}
	_ = privKey.Set(jwk.KeyIDKey, "k1")
	_ = privKey.Set(jwk.AlgorithmKey, jwa.RS256)
	pubKey, err := jwk.PublicKeyOf(privKey)
	if err != nil {
		t.Fatal(err)
	}
	set := jwk.NewSet()
	_ = set.AddKey(pubKey)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v, err := NewJWKS(ctx, srv.URL, "owner")
	if err != nil {
		t.Fatalf("NewJWKS: %v", err)
	}

	tok, _ := jwt.NewBuilder().Subject("owner").Expiration(time.Now().Add(time.Hour)).Build()
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, privKey))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(string(signed)); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := v.Verify(signHS(t, "owner", time.Now().Add(time.Hour))); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("hs256 token against jwks: err = %v", err)
	}
}
