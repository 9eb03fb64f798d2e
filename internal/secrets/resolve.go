// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

const (
	keyringScheme = "keyring://"
	envScheme     = "env://"
)

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// IsSecretRef reports whether value points at a secret instead of holding one.
func IsSecretRef(value string) bool {
	return IsKeyringURI(value) || strings.HasPrefix(value, envScheme)
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", sigilerr.Errorf(sigilerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	path := strings.TrimPrefix(uri, keyringScheme)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", sigilerr.Errorf(sigilerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}

	return parts[0], parts[1], nil
}

// Resolve returns the secret a reference points at. keyring:// values are
// read from store, env:// values from the process environment; anything
// else is returned unchanged.
func Resolve(store Store, value string) (string, error) {
	switch {
	case IsKeyringURI(value):
		service, key, err := ParseKeyringURI(value)
		if err != nil {
			return "", err
		}
		if store == nil {
			return "", sigilerr.Errorf(sigilerr.CodeSecretResolveFailure, "resolving keyring URI %q: no secret store", value)
		}
		secret, err := store.Retrieve(service, key)
		if err != nil {
			return "", sigilerr.Wrapf(err, sigilerr.CodeSecretResolveFailure,
				"resolving keyring URI %q", value)
		}
		return secret, nil

	case strings.HasPrefix(value, envScheme):
		name := strings.TrimPrefix(value, envScheme)
		if name == "" {
			return "", sigilerr.Errorf(sigilerr.CodeSecretInvalidInput, "invalid env URI %q: expected env://NAME", value)
		}
		secret, ok := os.LookupEnv(name)
		if !ok || secret == "" {
			return "", sigilerr.Errorf(sigilerr.CodeSecretResolveFailure, "resolving env URI %q: variable not set", value)
		}
		return secret, nil

	default:
		return value, nil
	}
}

// ResolveViperSecrets walks all keys of v and replaces secret references
// with their values. Every unresolved key is reported in the joined error;
// its reference is left in place.
func ResolveViperSecrets(v *viper.Viper, store Store) error {
	var errs []error
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsSecretRef(val) {
			continue
		}

		resolved, err := Resolve(store, val)
		if err != nil {
			errs = append(errs, sigilerr.Wrapf(err, sigilerr.CodeSecretResolveFailure,
				"config key %s (%s)", key, val))
			continue
		}
		v.Set(key, resolved)
	}
	if len(errs) > 0 {
		return sigilerr.Join(errs...)
	}
	return nil
}
