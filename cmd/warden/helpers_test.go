// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/warden/internal/secrets"
)

// cliEnv is an isolated home, data directory and config file.
type cliEnv struct {
	home    string
	dataDir string
	cfgPath string
	secrets *secrets.MemoryStore
}

// newCLIEnv writes a config using a sqlite store under a temp dir. extra is
// appended to the config verbatim.
func newCLIEnv(t *testing.T, extra string) *cliEnv {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	env := &cliEnv{
		home:    home,
		dataDir: filepath.Join(home, "data"),
		cfgPath: filepath.Join(home, "warden.yaml"),
		secrets: secrets.NewMemoryStore(),
	}

	cfg := "storage:\n  backend: sqlite\n  data_dir: " + env.dataDir + "\n" +
		"logging:\n  level: error\n" + extra
	require.NoError(t, os.WriteFile(env.cfgPath, []byte(cfg), 0o600))

	prev := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return env.secrets }
	t.Cleanup(func() { secretStoreFactory = prev })

	return env
}

// run executes the CLI with env's config and returns stdout.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runWithInput(t, "", args...)
}

func (e *cliEnv) runWithInput(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", e.cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}
