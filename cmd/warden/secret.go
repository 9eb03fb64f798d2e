// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/warden/internal/provider"
	"github.com/sigil-dev/warden/internal/secrets"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// secretStoreFactory creates a secrets.Store. It is a package-level variable
// so tests can substitute an in-memory store.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

// keyCheckClient is the HTTP client used to validate provider keys.
var keyCheckClient = &http.Client{Timeout: 10 * time.Second}

// validatedProviders lists the providers whose keys can be checked before
// they are stored.
var validatedProviders = map[string]provider.ProviderName{
	"anthropic": provider.ProviderAnthropic,
	"openai":    provider.ProviderOpenAI,
	"google":    provider.ProviderGoogle,
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage provider keys stored in the OS keyring",
		Long:  "Store, list and delete secrets kept under the warden service in the operating system keyring.",
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretListCmd(),
		newSecretDeleteCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store a provider API key",
		Long: "Store a provider API key in the keyring and print the reference to put in warden.yaml.\n" +
			"The key is read from --value or, when omitted, from the first line of stdin.",
		Args: cobra.ExactArgs(1),
		RunE: runSecretSet,
	}

	cmd.Flags().String("value", "", "the API key; read from stdin when empty")
	cmd.Flags().Bool("skip-validation", false, "store the key without checking it against the provider")

	return cmd
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all stored secret names",
		RunE:  runSecretList,
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret by name",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretDelete,
	}
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	name := strings.ToLower(strings.TrimSpace(args[0]))
	if _, ok := builtinProviderFactories[name]; !ok {
		return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "unknown provider %q", name)
	}

	value, _ := cmd.Flags().GetString("value")
	if value == "" {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "reading key from stdin: %w", err)
		}
		value = line
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return sigilerr.New(sigilerr.CodeCLIInputInvalid, "key must not be empty")
	}

	out := cmd.OutOrStdout()
	if skip, _ := cmd.Flags().GetBool("skip-validation"); !skip {
		if pn, ok := validatedProviders[name]; ok {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			if err := provider.ValidateKey(ctx, keyCheckClient, pn, value); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, successStyle.Render("Key accepted by "+name+"."))
		} else {
			_, _ = fmt.Fprintln(out, dimStyle.Render("No key check available for "+name+"."))
		}
	}

	if err := secretStoreFactory().Store(secrets.Service, secrets.ProviderKey(name), value); err != nil {
		return sigilerr.Errorf(sigilerr.CodeSecretStoreFailure, "storing %s key: %w", name, err)
	}

	_, _ = fmt.Fprintf(out, "Stored %s. Reference it in warden.yaml:\n\n", secrets.ProviderKey(name))
	_, _ = fmt.Fprintf(out, "providers:\n  %s:\n    api_key: %s\n", name, secrets.ProviderKeyURI(name))
	return nil
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	keys, err := secretStoreFactory().List(secrets.Service)
	if err != nil {
		return sigilerr.Errorf(sigilerr.CodeSecretListFailure, "listing secrets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}

	for _, k := range keys {
		_, _ = fmt.Fprintln(out, k)
	}
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	if err := secretStoreFactory().Delete(secrets.Service, name); err != nil {
		if sigilerr.HasCode(err, sigilerr.CodeSecretNotFound) {
			return sigilerr.Errorf(sigilerr.CodeSecretNotFound, "secret %q not found", name)
		}
		return sigilerr.Errorf(sigilerr.CodeSecretDeleteFailure, "deleting secret %q: %w", name, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
	return nil
}
