// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package telemetry observes the request pipeline: it buffers or tees
// response bodies, extracts provider-specific token and cost metrics, and
// fans the resulting records out to registered exporters.
package telemetry

import "time"

// ProviderMetrics is what an extractor derives from one upstream response.
// All token fields are optional; missing values stay nil.
type ProviderMetrics struct {
	InputTokens     *int64
	OutputTokens    *int64
	TotalTokens     *int64
	Cost            *float64
	Model           string
	ProviderLatency time.Duration
	RequestID       string
}

// normalize derives the total from input+output when the upstream omitted
// it, preserving the invariant total == input + output.
func (m *ProviderMetrics) normalize() {
	if m.TotalTokens == nil && m.InputTokens != nil && m.OutputTokens != nil {
		total := *m.InputTokens + *m.OutputTokens
		m.TotalTokens = &total
	}
}

// RequestMetrics is the per-request telemetry record handed to exporters.
// It is created by the middleware on response completion and never
// persisted locally.
type RequestMetrics struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`

	Provider string `json:"provider"`
	Model    string `json:"model"`
	Path     string `json:"path"`
	Method   string `json:"method"`

	TotalLatency    time.Duration `json:"total_latency"`
	ProviderLatency time.Duration `json:"provider_latency"`
	TTFB            time.Duration `json:"ttfb"`

	RequestSize  int `json:"request_size"`
	ResponseSize int `json:"response_size"`

	InputTokens  *int64 `json:"input_tokens,omitempty"`
	OutputTokens *int64 `json:"output_tokens,omitempty"`
	TotalTokens  *int64 `json:"total_tokens,omitempty"`

	StatusCode int      `json:"status_code"`
	ErrorCount int      `json:"error_count"`
	ErrorType  *string  `json:"error_type,omitempty"`
	Cost       *float64 `json:"cost,omitempty"`

	ProjectID    *string `json:"project_id,omitempty"`
	OrgID        *string `json:"org_id,omitempty"`
	UserID       *string `json:"user_id,omitempty"`
	ExperimentID *string `json:"experiment_id,omitempty"`

	ProviderRequestID *string `json:"provider_request_id,omitempty"`

	RequestBody  any   `json:"request_body,omitempty"`
	ResponseBody any   `json:"response_body,omitempty"`
	StreamedData []any `json:"streamed_data,omitempty"`

	StreamedChunks int  `json:"streamed_chunks"`
	IsStreaming    bool `json:"is_streaming"`
}
