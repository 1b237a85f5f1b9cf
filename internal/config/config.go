package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Global is ~/.mailmirror/config.toml, shared by every session.
type Global struct {
	DefaultSession string `toml:"default_session,omitempty"`
}

// LoadGlobal reads the global config. A missing file yields the zero value.
func LoadGlobal(path string) (*Global, error) {
	var cfg Global
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return &cfg, nil
}

// SaveGlobal writes the global config.
func SaveGlobal(path string, cfg *Global) error {
	return writeTOML(path, cfg)
}

// writeTOML encodes v to a temp file beside path and renames it into place,
// so readers never see a half-written file.
func writeTOML(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if err := f.Chmod(0600); err != nil {
		_ = f.Close()
		return err
	}
	if err := toml.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
