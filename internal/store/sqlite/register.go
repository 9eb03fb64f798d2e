// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"path/filepath"

	"github.com/sigil-dev/warden/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", newAuditStore, newManualStore)
}

func newAuditStore(dataPath string) (store.AuditStore, error) {
	return NewAuditStore(filepath.Join(dataPath, "audit.db"))
}

func newManualStore(dataPath string) (store.ManualStore, error) {
	return NewManualStore(filepath.Join(dataPath, "manuals.db"))
}
