// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sigil-dev/warden/internal/store"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

func newManualCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manual",
		Short: "Manage equipment manuals",
		Long:  "Import equipment manuals and list the manuals the retriever searches.",
	}

	cmd.AddCommand(
		newManualImportCmd(),
		newManualListCmd(),
	)

	return cmd
}

func newManualImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>...",
		Short: "Import manuals from YAML files",
		Long: "Import one or more manuals. A file may hold several YAML documents, one manual each.\n" +
			"A manual without an id gets a generated one; importing an existing id replaces it.",
		Args: cobra.MinimumNArgs(1),
		RunE: runManualImport,
	}
}

func newManualListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List imported manuals",
		RunE:  runManualList,
	}
}

// readManuals decodes every YAML document in data.
func readManuals(data []byte) ([]*store.Manual, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var manuals []*store.Manual
	for {
		var m store.Manual
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "decoding manual %d: %w", len(manuals)+1, err)
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		manuals = append(manuals, &m)
	}
	if len(manuals) == 0 {
		return nil, sigilerr.New(sigilerr.CodeCLIInputInvalid, "no manuals found")
	}
	return manuals, nil
}

func runManualImport(cmd *cobra.Command, args []string) error {
	app, err := wireFromConfig()
	if err != nil {
		return err
	}
	defer closeApp(app)

	out := cmd.OutOrStdout()
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "reading %s: %w", path, err)
		}
		manuals, err := readManuals(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for _, m := range manuals {
			if err := app.Manuals.PutManual(cmd.Context(), m); err != nil {
				return fmt.Errorf("importing %s: %w", m.ID, err)
			}
			_, _ = fmt.Fprintf(out, "Imported %s (%s): %d sections, %d limits\n",
				m.ID, m.EquipmentID, len(m.Sections), len(m.Limits))
		}
	}
	return nil
}

func runManualList(cmd *cobra.Command, _ []string) error {
	app, err := wireFromConfig()
	if err != nil {
		return err
	}
	defer closeApp(app)

	manuals, err := app.Manuals.ListManuals(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(manuals) == 0 {
		_, _ = fmt.Fprintln(out, "No manuals imported.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tEQUIPMENT\tTITLE\tSECTIONS\tLIMITS")
	for _, m := range manuals {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", m.ID, m.EquipmentID, m.Title, len(m.Sections), len(m.Limits))
	}
	return tw.Flush()
}

// closeApp releases app, logging rather than returning failures.
func closeApp(app *App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Close(ctx); err != nil {
		app.logger.Warn("closing", "error", err)
	}
}
