package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Provider kinds.
const (
	ProviderGmail   = "gmail"
	ProviderOutlook = "outlook"
)

// Session is the per-session session.toml.
type Session struct {
	Account  Account  `toml:"account"`
	Provider Provider `toml:"provider"`
	Sync     Sync     `toml:"sync"`
	HTTP     HTTP     `toml:"http"`
	Auth     Auth     `toml:"auth"`
	NATS     NATS     `toml:"nats"`
}

// Account identifies the mailbox owner.
type Account struct {
	UserID string `toml:"user_id"`
	Email  string `toml:"email"`
}

// Provider selects and configures the mailbox adapter.
type Provider struct {
	Kind string `toml:"kind"`
	// RatePerSecond caps provider calls; 0 disables limiting.
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
	Gmail         Gmail   `toml:"gmail"`
	Outlook       Outlook `toml:"outlook"`
}

type Gmail struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TokenFile    string `toml:"token_file"`
	User         string `toml:"user"`
}

type Outlook struct {
	// AccessToken is a Graph bearer token. MAILMIRROR_OUTLOOK_TOKEN overrides it.
	AccessToken string `toml:"access_token"`
}

// Sync tunes background synchronization.
type Sync struct {
	PollInterval time.Duration `toml:"poll_interval"`
	Concurrency  int           `toml:"concurrency"`
}

// HTTP configures the HTTP API. An empty Addr disables it.
type HTTP struct {
	Addr string `toml:"addr"`
}

// Auth configures bearer token verification for the HTTP API.
type Auth struct {
	HS256Secret string `toml:"hs256_secret"`
	JWKSURL     string `toml:"jwks_url"`
}

// NATS configures the change relay. An empty URL disables it.
type NATS struct {
	URL    string `toml:"url"`
	Stream string `toml:"stream"`
}

// DefaultSession returns the settings used when session.toml is absent.
func DefaultSession() *Session {
	return &Session{
		Provider: Provider{
			Kind:          ProviderGmail,
			RatePerSecond: 5,
			Burst:         10,
			Gmail:         Gmail{User: "me"},
		},
		Sync: Sync{
			PollInterval: time.Minute,
			Concurrency:  10,
		},
		NATS: NATS{Stream: "MAILMIRROR"},
	}
}

// LoadSession reads a session.toml over the defaults. A missing file yields
// the defaults. Secrets may be supplied through the environment.
func LoadSession(path string) (*Session, error) {
	cfg := DefaultSession()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load session config %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveSession writes cfg to path with 0600 permissions.
func SaveSession(path string, cfg *Session) error {
	return writeTOML(path, cfg)
}

func (s *Session) applyEnv() {
	if v := os.Getenv("MAILMIRROR_OUTLOOK_TOKEN"); v != "" {
		s.Provider.Outlook.AccessToken = v
	}
	if v := os.Getenv("MAILMIRROR_AUTH_SECRET"); v != "" {
		s.Auth.HS256Secret = v
	}
	if v := os.Getenv("MAILMIRROR_NATS_URL"); v != "" {
		s.NATS.URL = v
	}
}

// Validate checks value ranges and required fields.
func (s *Session) Validate() error {
	s.Provider.Kind = strings.ToLower(strings.TrimSpace(s.Provider.Kind))
	switch s.Provider.Kind {
	case ProviderGmail, ProviderOutlook:
	default:
		return fmt.Errorf("provider.kind %q: must be %q or %q", s.Provider.Kind, ProviderGmail, ProviderOutlook)
	}
	if s.Provider.RatePerSecond < 0 {
		return errors.New("provider.rate_per_second must not be negative")
	}
	if s.Sync.PollInterval < 0 {
		return errors.New("sync.poll_interval must not be negative")
	}
	if s.Sync.Concurrency < 0 {
		return errors.New("sync.concurrency must not be negative")
	}
	if s.HTTP.Addr != "" && s.Auth.HS256Secret == "" && s.Auth.JWKSURL == "" {
		return errors.New("http.addr is set but neither auth.hs256_secret nor auth.jwks_url is")
	}
	if s.Auth.HS256Secret != "" && s.Auth.JWKSURL != "" {
		return errors.New("auth.hs256_secret and auth.jwks_url are mutually exclusive")
	}
	return nil
}
