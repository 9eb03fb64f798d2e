// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/warden/internal/server"
	sigilerr "github.com/sigil-dev/warden/pkg/errors"
	"github.com/sigil-dev/warden/pkg/types"
)

type fakeQueries struct {
	got    server.QueryRequest
	result *server.QueryResult
	err    error
}

func (f *fakeQueries) Submit(_ context.Context, req server.QueryRequest) (*server.QueryResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &server.QueryResult{Status: types.StatusSuccess, Answer: "ok", AuditID: "q-1", Iterations: 1, RiskLevel: types.RiskLow}, nil
}

type fakeAudit struct {
	trails map[string][]server.AuditRecord
	err    error
}

func (f *fakeAudit) Trail(_ context.Context, id string) ([]server.AuditRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	recs, ok := f.trails[id]
	if !ok {
		return nil, sigilerr.Errorf(sigilerr.CodeServerEntityNotFound, "no audit records for %s", id)
	}
	return recs, nil
}

type fakeStatus struct {
	report server.StatusReport
	err    error
}

func (f *fakeStatus) Status(context.Context) (*server.StatusReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &f.report, nil
}

type fakeWorkflow struct{}

func (fakeWorkflow) Mermaid() string     { return "stateDiagram-v2\n    [*] --> PLANNING\n" }
func (fakeWorkflow) MaxIterations() int { return 3 }

type fakes struct {
	queries *fakeQueries
	audit   *fakeAudit
	status  *fakeStatus
}

func newFakes() *fakes {
	return &fakes{
		queries: &fakeQueries{},
		audit:   &fakeAudit{trails: map[string][]server.AuditRecord{}},
		status:  &fakeStatus{report: server.StatusReport{Status: "ok", Router: "rules", MaxIterations: 3}},
	}
}

func newTestServer(t *testing.T, cfg server.Config) *server.Server {
	t.Helper()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	srv, err := server.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func newServerWithServices(t *testing.T, f *fakes) *server.Server {
	t.Helper()
	srv := newTestServer(t, server.Config{})
	svc, err := server.NewServices(f.queries, f.audit, f.status, fakeWorkflow{})
	require.NoError(t, err)
	srv.RegisterServices(svc)
	return srv
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
