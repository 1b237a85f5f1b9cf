package session

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/matheus3301/mailmirror/internal/config"
)

const (
	DefaultSessionName = "main"
	// EnvSession names the session when no --session flag is given.
	EnvSession = "MAILMIRROR_SESSION"

	// maxSocketPath is the usable length of sun_path on Linux.
	maxSocketPath = 107
)

var ErrInvalidName = errors.New("invalid session name")

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Resolve determines the active session name using precedence:
// 1. flagOverride (--session flag)
// 2. $MAILMIRROR_SESSION
// 3. config.toml default_session
// 4. "main"
func Resolve(flagOverride string) string {
	if name := strings.TrimSpace(flagOverride); name != "" {
		return name
	}
	if name := strings.TrimSpace(os.Getenv(EnvSession)); name != "" {
		return name
	}
	cfg, err := config.LoadGlobal(ConfigPath())
	if err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}

// ValidateName checks that name is a legal session name and that its daemon
// socket path fits in a Unix socket address.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%w %q: must match %s", ErrInvalidName, name, nameRegexp)
	}
	if p := SocketPath(name); len(p) > maxSocketPath {
		return fmt.Errorf("%w %q: socket path %s exceeds %d bytes", ErrInvalidName, name, p, maxSocketPath)
	}
	return nil
}
