// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"testing"

	"github.com/sigil-dev/warden/internal/store"
	"github.com/sigil-dev/warden/internal/store/sqlite"
	"github.com/sigil-dev/warden/internal/store/storetest"
	"github.com/stretchr/testify/require"
)

func TestManualStore(t *testing.T) {
	storetest.RunManualStore(t, func(t *testing.T) store.ManualStore {
		s, err := sqlite.NewManualStore(testDBPath(t, "manuals"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
