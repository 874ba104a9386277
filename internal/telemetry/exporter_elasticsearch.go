// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	elasticsearchTimeout         = 10 * time.Second
	elasticsearchMaxRetries      = 3
	elasticsearchInitialInterval = 100 * time.Millisecond
)

// ElasticsearchConfig carries the connection settings for the index the
// gateway writes request logs to.
type ElasticsearchConfig struct {
	URL      string
	Username string
	Password string
	Index    string
	Resource Resource
}

// ElasticsearchExporter indexes one document per request record. Transient
// failures (connection errors, 5xx) are retried with exponential backoff;
// 4xx responses are permanent and fail immediately.
type ElasticsearchExporter struct {
	cfg    ElasticsearchConfig
	client *http.Client
}

// NewElasticsearchExporter builds an exporter with its own short-timeout
// client so slow index writes cannot pin export workers.
func NewElasticsearchExporter(cfg ElasticsearchConfig) *ElasticsearchExporter {
	return &ElasticsearchExporter{
		cfg:    cfg,
		client: &http.Client{Timeout: elasticsearchTimeout},
	}
}

func (e *ElasticsearchExporter) Name() string { return "elasticsearch" }

func (e *ElasticsearchExporter) Export(ctx context.Context, m *RequestMetrics) error {
	// Health probes are noise in the request log.
	if m.Path == "/health" {
		return nil
	}

	doc, err := json.Marshal(NewEnvelope(m, e.cfg.Resource))
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	operation := func() error { return e.index(ctx, doc) }
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = elasticsearchInitialInterval
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, elasticsearchMaxRetries), ctx)); err != nil {
		return fmt.Errorf("%s: %w", categorizeIndexError(err), err)
	}
	return nil
}

func (e *ElasticsearchExporter) index(ctx context.Context, doc []byte) error {
	url := strings.TrimSuffix(e.cfg.URL, "/") + "/" + e.cfg.Index + "/_doc"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(doc))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.Username != "" {
		req.SetBasicAuth(e.cfg.Username, e.cfg.Password)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	statusErr := &indexStatusError{status: resp.StatusCode, body: string(body)}
	if resp.StatusCode >= http.StatusInternalServerError {
		return statusErr
	}
	return backoff.Permanent(statusErr)
}

type indexStatusError struct {
	status int
	body   string
}

func (e *indexStatusError) Error() string {
	return fmt.Sprintf("elasticsearch returned status %d: %s", e.status, e.body)
}

// categorizeIndexError buckets failures so operators can tell a credentials
// problem from a flaky network at a glance.
func categorizeIndexError(err error) string {
	var statusErr *indexStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "AUTHENTICATION"
		default:
			return "INDEX"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "TIMEOUT"
		}
		return "CONNECTION"
	}
	return "UNKNOWN"
}
