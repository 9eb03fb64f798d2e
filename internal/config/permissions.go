// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// groupOrOtherRead are the mode bits that expose the file to other users.
const groupOrOtherRead fs.FileMode = 0o044

// WarnInsecurePermissions logs a warning when the config file at path can
// be read by group or other. Provider API keys may be stored inline, so the
// file should be 0600. It never fails startup.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat config file for permission check", "path", path, "error", err)
		return
	}

	if info.Mode().Perm()&groupOrOtherRead != 0 {
		slog.Warn("config file is readable by other users; provider keys may be exposed",
			"path", path,
			"mode", info.Mode(),
			"recommended", "0600",
		)
	}
}
