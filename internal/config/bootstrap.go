// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"bytes"
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

//go:embed semdex.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/semdex/semdex.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", semerr.Errorf(semerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "semdex", "semdex.yaml"), nil
}

// WriteDefaultConfig atomically writes the commented default config to path.
// An existing file is left untouched and reported as not written.
func WriteDefaultConfig(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, semerr.Errorf(semerr.CodeConfigLoadReadFailure, "creating config directory: %w", err)
	}

	// atomic.WriteFile renames a 0600 temp file into place.
	if err := atomic.WriteFile(path, bytes.NewReader(DefaultConfigYAML)); err != nil {
		return false, semerr.Errorf(semerr.CodeConfigLoadReadFailure, "writing default config: %w", err)
	}
	return true, nil
}

// BootstrapConfig writes the default config to DefaultConfigPath if nothing
// is there yet. Returns the path written, or empty string if the file already
// existed or the write failed (non-fatal, logged and skipped).
func BootstrapConfig() string {
	cfgPath, err := DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return ""
	}

	written, err := WriteDefaultConfig(cfgPath)
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
