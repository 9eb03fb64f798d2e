// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Command openapi-gen writes the OpenAPI document of the warden HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigil-dev/warden/internal/server"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec registers every route against no-op services and returns the
// document huma derives from the Go types.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	defer func() { _ = srv.Close() }()

	svc, err := server.NewServices(stubQueries{}, stubAudit{}, stubStatus{}, stubWorkflow{})
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating services: %w", err)
	}
	srv.RegisterServices(svc)

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op services. Handlers are never invoked during generation.

type stubQueries struct{}

func (stubQueries) Submit(context.Context, server.QueryRequest) (*server.QueryResult, error) {
	return nil, nil
}

type stubAudit struct{}

func (stubAudit) Trail(context.Context, string) ([]server.AuditRecord, error) { return nil, nil }

type stubStatus struct{}

func (stubStatus) Status(context.Context) (*server.StatusReport, error) { return nil, nil }

type stubWorkflow struct{}

func (stubWorkflow) Mermaid() string    { return "" }
func (stubWorkflow) MaxIterations() int { return 0 }
