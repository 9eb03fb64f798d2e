// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	sigilerr "github.com/sigil-dev/warden/pkg/errors"
)

// defaultHTTPClient is the HTTP client used by commands that talk to a
// running server.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// serverClient provides HTTP access to a running warden server.
type serverClient struct {
	baseURL string
	http    *http.Client
}

// newServerClient creates a client targeting the given host:port address.
func newServerClient(addr string) *serverClient {
	return &serverClient{
		baseURL: "http://" + addr,
		http:    defaultHTTPClient,
	}
}

// getJSON performs a GET request and decodes the JSON response into dest.
// A refused connection is reported as CodeCLIServerNotRunning.
func (c *serverClient) getJSON(path string, dest any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		if isDialError(err) {
			return sigilerr.New(sigilerr.CodeCLIServerNotRunning, "server is not running (connection refused)")
		}
		return sigilerr.Errorf(sigilerr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return sigilerr.Errorf(sigilerr.CodeCLIRequestFailure, "server returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return sigilerr.Errorf(sigilerr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
