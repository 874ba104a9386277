// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package telemetry

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// serveObserved runs one request through the middleware and returns the
// recorded metrics.
func serveObserved(t *testing.T, handler http.HandlerFunc, req *http.Request) (*RequestMetrics, *httptest.ResponseRecorder) {
	t.Helper()
	registry := NewRegistry(false, testLogger())
	defer registry.Close()
	capture := &captureExporter{name: "capture", records: make(chan *RequestMetrics, 1)}
	registry.Register(capture)

	rec := httptest.NewRecorder()
	NewMiddleware(handler, registry, testLogger()).ServeHTTP(rec, req)

	select {
	case m := <-capture.records:
		return m, rec
	case <-time.After(5 * time.Second):
		t.Fatal("metrics were never recorded")
		return nil, nil
	}
}

func TestMiddlewareUnaryRequest(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("x-request-id", "upstream-42")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-9","model":"gpt-4","choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}

	body := `{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("x-provider", "openai")
	req.Header.Set("x-project-id", "proj-1")
	req.Header.Set("x-organisation-id", "org-1")

	m, _ := serveObserved(t, handler, req)

	require.NotEmpty(t, m.ID)
	require.NotEmpty(t, m.ThreadID)
	require.Equal(t, "openai", m.Provider)
	require.Equal(t, "gpt-4", m.Model)
	require.Equal(t, "/v1/chat/completions", m.Path)
	require.Equal(t, "POST", m.Method)
	require.Equal(t, http.StatusOK, m.StatusCode)
	require.Equal(t, len(body), m.RequestSize)
	require.Positive(t, m.ResponseSize)
	require.False(t, m.IsStreaming)
	require.Zero(t, m.ErrorCount)

	require.Equal(t, int64(10), *m.InputTokens)
	require.Equal(t, int64(5), *m.OutputTokens)
	require.Equal(t, int64(15), *m.TotalTokens)
	require.Equal(t, *m.InputTokens+*m.OutputTokens, *m.TotalTokens)
	require.InDelta(t, 15*0.00003, *m.Cost, 1e-12)

	require.Equal(t, "upstream-42", *m.ProviderRequestID)
	require.Equal(t, "proj-1", *m.ProjectID)
	require.Equal(t, "org-1", *m.OrgID)
	require.Nil(t, m.UserID)

	require.NotNil(t, m.RequestBody)
	require.NotNil(t, m.ResponseBody)
	require.Positive(t, m.TotalLatency)
	require.Positive(t, m.TTFB)
}

func TestMiddlewareStreamingRequest(t *testing.T) {
	chunks := []string{
		`data: {"id":"chatcmpl-1","model":"gpt-4","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`data: {"id":"chatcmpl-1","model":"gpt-4","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`data: {"id":"chatcmpl-1","model":"gpt-4","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":8,"completion_tokens":2,"total_tokens":10}}`,
		`data: [DONE]`,
	}
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			_, _ = fmt.Fprintf(w, "%s\n\n", chunk)
			flusher.Flush()
		}
	}

	req := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(`{"model":"gpt-4","stream":true,"messages":[]}`))
	req.Header.Set("x-provider", "openai")

	m, rec := serveObserved(t, handler, req)

	// The client sees the stream untouched.
	require.Equal(t, strings.Join(chunks, "\n\n")+"\n\n", rec.Body.String())

	require.True(t, m.IsStreaming)
	require.Equal(t, 3, m.StreamedChunks) // [DONE] is not a chunk
	require.Len(t, m.StreamedData, 3)
	require.Equal(t, int64(8), *m.InputTokens)
	require.Equal(t, int64(2), *m.OutputTokens)
	require.Equal(t, int64(10), *m.TotalTokens)
	require.Positive(t, m.TTFB)
}

func TestMiddlewareStreamingWithoutUsageEstimates(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		// 12 characters of content, no terminal usage chunk.
		_, _ = fmt.Fprint(w, `data: {"id":"chatcmpl-2","model":"gpt-4","choices":[{"index":0,"delta":{"content":"twelve chars"}}]}`+"\n\n")
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}

	req := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(`{"model":"gpt-4","stream":true,"messages":[]}`))
	req.Header.Set("x-provider", "openai")

	m, _ := serveObserved(t, handler, req)
	require.True(t, m.IsStreaming)
	require.Nil(t, m.InputTokens)
	require.NotNil(t, m.OutputTokens)
	require.Equal(t, int64(3), *m.OutputTokens) // ceil(12/4)
}

func TestMiddlewareErrorResponse(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"no key","type":"MissingApiKey"}}`))
	}

	req := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(`{}`))
	m, _ := serveObserved(t, handler, req)

	require.Equal(t, http.StatusUnauthorized, m.StatusCode)
	require.Equal(t, 1, m.ErrorCount)
	require.Equal(t, "MissingApiKey", *m.ErrorType)
	// The synthesized id keeps provider_request_id non-empty even on errors.
	require.True(t, strings.HasPrefix(*m.ProviderRequestID, "req_"))
}

func TestMiddlewareDefaultsProviderToOpenAI(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}
	req := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(`{"model":"gpt-4"}`))
	m, _ := serveObserved(t, handler, req)
	require.Equal(t, "openai", m.Provider)
	// Model falls back to the request body when the response has none.
	require.Equal(t, "gpt-4", m.Model)
}
