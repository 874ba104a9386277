// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package telemetry

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// streamTeeCapacity bounds how many response chunks can sit between the
// handler goroutine and the stream accumulator. When the accumulator falls
// behind, chunks are dropped from telemetry, never from the client.
const streamTeeCapacity = 256

// Middleware records one RequestMetrics per proxied request. Unary response
// bodies are buffered; streamed bodies are teed chunk-by-chunk into a
// background accumulator so the client write path never waits on telemetry.
type Middleware struct {
	next     http.Handler
	registry *Registry
	logger   *slog.Logger
}

// NewMiddleware wraps next with request metrics collection.
func NewMiddleware(next http.Handler, registry *Registry, logger *slog.Logger) *Middleware {
	return &Middleware{next: next, registry: registry, logger: logger}
}

func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	providerName := strings.ToLower(r.Header.Get("x-provider"))
	if providerName == "" {
		providerName = "openai"
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		m.logger.Warn("failed to buffer request body", "error", err)
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	var requestPayload any
	if len(body) > 0 {
		_ = json.Unmarshal(body, &requestPayload)
	}

	rec := newRecorder(w, NewExtractor(providerName))
	m.next.ServeHTTP(rec, r)
	rec.close()

	m.registry.Record(m.buildMetrics(rec, r, providerName, body, requestPayload, start))
}

func (m *Middleware) buildMetrics(rec *recorder, r *http.Request, providerName string, body []byte, requestPayload any, start time.Time) *RequestMetrics {
	metrics := &RequestMetrics{
		ID:           uuid.NewString(),
		ThreadID:     uuid.NewString(),
		Provider:     providerName,
		Path:         r.URL.Path,
		Method:       r.Method,
		TotalLatency: time.Since(start),
		RequestSize:  len(body),
		ResponseSize: rec.size,
		StatusCode:   rec.status,
		RequestBody:  requestPayload,
		IsStreaming:  rec.streaming,
	}
	if !rec.firstByte.IsZero() {
		metrics.TTFB = rec.firstByte.Sub(start)
	}

	var pm ProviderMetrics
	if rec.streaming {
		pm = rec.acc.finalMetrics(estimableStream(rec.extractor))
		metrics.StreamedData = rec.acc.chunks
		metrics.StreamedChunks = len(rec.acc.chunks)
		if rec.droppedChunks > 0 {
			m.logger.Warn("stream telemetry fell behind, chunks not recorded",
				"provider", providerName,
				"dropped_chunks", rec.droppedChunks,
			)
		}
	} else {
		respBody := rec.body.Bytes()
		pm = rec.extractor.Extract(respBody)
		var responsePayload any
		if len(respBody) > 0 && json.Unmarshal(respBody, &responsePayload) == nil {
			metrics.ResponseBody = responsePayload
		}
	}
	pm.normalize()

	metrics.Model = pm.Model
	if metrics.Model == "" {
		metrics.Model = gjson.GetBytes(body, "model").String()
	}
	metrics.InputTokens = pm.InputTokens
	metrics.OutputTokens = pm.OutputTokens
	metrics.TotalTokens = pm.TotalTokens
	metrics.Cost = pm.Cost
	// Providers that report their own wall time (Groq) override the
	// gateway-observed latency.
	metrics.ProviderLatency = pm.ProviderLatency
	if metrics.ProviderLatency == 0 {
		metrics.ProviderLatency = metrics.TotalLatency
	}

	requestID := rec.Header().Get("x-request-id")
	if requestID == "" {
		requestID = rec.Header().Get("request-id")
	}
	if requestID == "" {
		requestID = pm.RequestID
	}
	if requestID == "" {
		requestID = "req_" + uuid.NewString()
	}
	metrics.ProviderRequestID = &requestID

	metrics.ProjectID = headerValue(r, "x-project-id")
	metrics.OrgID = headerValue(r, "x-organization-id")
	if metrics.OrgID == nil {
		metrics.OrgID = headerValue(r, "x-organisation-id")
	}
	metrics.UserID = headerValue(r, "x-user-id")
	metrics.ExperimentID = headerValue(r, "x-experiment-id")

	if rec.status >= http.StatusBadRequest {
		metrics.ErrorCount = 1
		errorType := ""
		if !rec.streaming {
			errorType = gjson.GetBytes(rec.body.Bytes(), "error.type").String()
		}
		if errorType == "" {
			errorType = http.StatusText(rec.status)
		}
		metrics.ErrorType = &errorType
	}
	return metrics
}

func headerValue(r *http.Request, name string) *string {
	if v := r.Header.Get(name); v != "" {
		return &v
	}
	return nil
}

// estimableStream reports whether the provider's stream follows the OpenAI
// chunk shape, where output tokens can be estimated from accumulated text
// when the provider never reports usage.
func estimableStream(e Extractor) bool {
	switch e.(type) {
	case *openaiExtractor, *groqExtractor:
		return true
	default:
		return false
	}
}

// recorder wraps the client-facing ResponseWriter. Unary bodies accumulate
// in a buffer; SSE bodies are copied into a bounded channel consumed by a
// streamAccumulator goroutine.
type recorder struct {
	http.ResponseWriter
	extractor Extractor

	status      int
	wroteHeader bool
	streaming   bool
	firstByte   time.Time
	size        int

	body bytes.Buffer

	chunks        chan []byte
	acc           *streamAccumulator
	accDone       chan struct{}
	droppedChunks int
}

func newRecorder(w http.ResponseWriter, extractor Extractor) *recorder {
	return &recorder{ResponseWriter: w, extractor: extractor, status: http.StatusOK}
}

func (rec *recorder) WriteHeader(status int) {
	if rec.wroteHeader {
		return
	}
	rec.wroteHeader = true
	rec.status = status
	if strings.Contains(rec.Header().Get("Content-Type"), "text/event-stream") {
		rec.streaming = true
		rec.chunks = make(chan []byte, streamTeeCapacity)
		rec.acc = newStreamAccumulator(rec.extractor)
		rec.accDone = make(chan struct{})
		go func() {
			defer close(rec.accDone)
			for chunk := range rec.chunks {
				rec.acc.consume(chunk)
			}
		}()
	}
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *recorder) Write(b []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	if rec.firstByte.IsZero() {
		rec.firstByte = time.Now()
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.size += n
	if rec.streaming {
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, b[:n])
			select {
			case rec.chunks <- chunk:
			default:
				rec.droppedChunks++
			}
		}
		rec.Flush()
	} else {
		rec.body.Write(b[:n])
	}
	return n, err
}

func (rec *recorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// close stops the accumulator and waits for it to drain pending chunks.
func (rec *recorder) close() {
	if rec.streaming {
		close(rec.chunks)
		<-rec.accDone
	}
}

// streamAccumulator reassembles SSE lines out of raw chunks and runs the
// extractor over them. It runs on a single goroutine; no locking needed.
type streamAccumulator struct {
	extractor Extractor

	pending     []byte
	chunks      []any
	contentText strings.Builder

	metrics    ProviderMetrics
	terminal   bool
	recognized bool
}

func newStreamAccumulator(extractor Extractor) *streamAccumulator {
	return &streamAccumulator{extractor: extractor}
}

func (a *streamAccumulator) consume(b []byte) {
	a.pending = append(a.pending, b...)
	for {
		idx := bytes.IndexByte(a.pending, '\n')
		if idx < 0 {
			return
		}
		line := strings.TrimRight(string(a.pending[:idx]), "\r")
		a.pending = a.pending[idx+1:]
		a.processLine(line)
	}
}

func (a *streamAccumulator) processLine(line string) {
	if payload, ok := dataPayload(line); ok {
		var chunk any
		if json.Unmarshal([]byte(payload), &chunk) == nil {
			a.chunks = append(a.chunks, chunk)
			a.contentText.WriteString(gjson.Get(payload, "choices.0.delta.content").String())
		}
	}

	result := a.extractor.ExtractStreaming(line)
	if result == nil {
		return
	}
	a.recognized = true
	if result.Terminal {
		a.metrics = result.Metrics
		a.terminal = true
		return
	}
	if a.metrics.Model == "" {
		a.metrics.Model = result.Metrics.Model
	}
	if a.metrics.RequestID == "" {
		a.metrics.RequestID = result.Metrics.RequestID
	}
}

// finalMetrics flushes any partial trailing line and, for OpenAI-shaped
// streams that ended without a usage chunk, estimates output tokens from the
// accumulated assistant text.
func (a *streamAccumulator) finalMetrics(estimable bool) ProviderMetrics {
	if len(bytes.TrimSpace(a.pending)) > 0 {
		a.processLine(strings.TrimRight(string(a.pending), "\r\n"))
		a.pending = nil
	}
	if !a.terminal && a.recognized && estimable {
		output := estimateTokens(a.contentText.String())
		a.metrics.OutputTokens = &output
	}
	return a.metrics
}
