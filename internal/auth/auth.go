// Package auth resolves the session behind an HTTP request from a bearer JWT.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrUnauthenticated is returned for a missing, invalid or foreign token.
var ErrUnauthenticated = errors.New("unauthenticated")

// User is the identity carried by a verified token.
type User struct {
	ID    string
	Email string
}

// Verifier checks bearer tokens for a single mailbox account. Tokens are
// accepted only when their subject equals the account's user id.
type Verifier struct {
	userID string
	opts   []jwt.ParseOption
}

// NewHS256 verifies tokens signed with a shared secret.
func NewHS256(secret []byte, userID string) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty hs256 secret")
	}
	return &Verifier{
		userID: userID,
		opts:   []jwt.ParseOption{jwt.WithKey(jwa.HS256, secret)},
	}, nil
}

// NewJWKS verifies tokens against a remote key set. Keys are cached and
// refreshed in the background until ctx is done.
func NewJWKS(ctx context.Context, url, userID string) (*Verifier, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(url, jwk.WithMinRefreshInterval(5*time.Minute)); err != nil {
		return nil, fmt.Errorf("auth: register jwks %s: %w", url, err)
	}
	warm, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cache.Refresh(warm, url); err != nil {
		return nil, fmt.Errorf("auth: fetch jwks %s: %w", url, err)
	}
	return &Verifier{
		userID: userID,
		opts:   []jwt.ParseOption{jwt.WithKeySet(jwk.NewCachedSet(cache, url))},
	}, nil
}

// Verify parses and validates a raw token.
func (v *Verifier) Verify(raw string) (*User, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	opts := append([]jwt.ParseOption{jwt.WithValidate(true), jwt.WithAcceptableSkew(30 * time.Second)}, v.opts...)
	tok, err := jwt.ParseString(raw, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	sub := tok.Subject()
	if sub == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	if v.userID != "" && sub != v.userID {
		return nil, fmt.Errorf("%w: subject %q is not the account owner", ErrUnauthenticated, sub)
	}
	u := &User{ID: sub}
	if email, ok := tok.Get("email"); ok {
		u.Email, _ = email.(string)
	}
	return u, nil
}

// FromRequest verifies the bearer token of r.
func (v *Verifier) FromRequest(r *http.Request) (*User, error) {
	return v.Verify(BearerToken(r.Header.Get("Authorization")))
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
