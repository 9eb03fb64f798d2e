// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

//go:embed warden.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/warden/warden.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "warden", "warden.yaml"), nil
}

// BootstrapConfig writes the commented default config to the default path
// if no file exists there. It returns the path written, or "" when nothing
// was written. Failures are logged at debug level and otherwise ignored.
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}

	written, err := WriteDefault(cfgPath)
	if err != nil {
		slog.Debug("skipping config bootstrap", "path", cfgPath, "error", err)
		return ""
	}
	if !written {
		return ""
	}

	slog.Info("created default config", "path", cfgPath)
	return cfgPath
}

// WriteDefault writes DefaultConfigYAML to path with owner-only
// permissions. An existing file is left untouched and reported as not
// written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "creating config directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "creating config %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(DefaultConfigYAML); err != nil {
		return false, sigilerr.Errorf(sigilerr.CodeConfigLoadReadFailure, "writing config %s: %w", path, err)
	}
	return true, nil
}
