package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.mailmirror.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mailmirror")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SocketPath returns the UDS socket path for a session.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// AppDBPath returns the mirror database path.
func AppDBPath(name string) string {
	return filepath.Join(Dir(name), "mirror.db")
}

// SessionConfigPath returns the per-session session.toml path.
func SessionConfigPath(name string) string {
	return filepath.Join(Dir(name), "session.toml")
}

// GmailTokenPath returns the default OAuth token file for the Gmail provider.
func GmailTokenPath(name string) string {
	return filepath.Join(Dir(name), "gmail-token.json")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "mirrord.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
