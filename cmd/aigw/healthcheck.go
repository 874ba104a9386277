// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// healthcheck performs an HTTP GET against the gateway health endpoint. It
// is used by Docker HEALTHCHECK: exit 0 means healthy, exit 1 unhealthy.
func healthcheck(ctx context.Context, port int, stdout, _ io.Writer) error {
	url := fmt.Sprintf("http://localhost:%d/health", port)

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to gateway")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unhealthy: status %d, body: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "%s", body)
	return nil
}
