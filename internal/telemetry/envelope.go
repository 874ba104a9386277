// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package telemetry

import "time"

// logRecordName identifies gateway request records in downstream log stores.
const logRecordName = "ai_gateway_request_log"

// Resource identifies the emitting gateway instance on every exported record.
type Resource struct {
	ServiceName           string
	ServiceVersion        string
	DeploymentEnvironment string
}

// NewEnvelope wraps a request record in an OTel-style log envelope:
// timestamp, resource attributes, record name, and a flat attribute map.
// Latencies are exported in milliseconds; optional fields are omitted when
// absent rather than exported as null.
func NewEnvelope(m *RequestMetrics, res Resource) map[string]any {
	attrs := map[string]any{
		"id":                  m.ID,
		"thread_id":           m.ThreadID,
		"provider":            m.Provider,
		"model":               m.Model,
		"path":                m.Path,
		"method":              m.Method,
		"total_latency_ms":    durationMillis(m.TotalLatency),
		"provider_latency_ms": durationMillis(m.ProviderLatency),
		"ttfb_ms":             durationMillis(m.TTFB),
		"request_size":        m.RequestSize,
		"response_size":       m.ResponseSize,
		"status_code":         m.StatusCode,
		"error_count":         m.ErrorCount,
		"is_streaming":        m.IsStreaming,
		"streamed_chunks":     m.StreamedChunks,
	}

	if m.InputTokens != nil {
		attrs["input_tokens"] = *m.InputTokens
	}
	if m.OutputTokens != nil {
		attrs["output_tokens"] = *m.OutputTokens
	}
	if m.TotalTokens != nil {
		attrs["total_tokens"] = *m.TotalTokens
	}
	if m.Cost != nil {
		attrs["cost"] = *m.Cost
	}
	if m.ErrorType != nil {
		attrs["error_type"] = *m.ErrorType
	}
	if m.ProjectID != nil {
		attrs["project_id"] = *m.ProjectID
	}
	if m.OrgID != nil {
		attrs["org_id"] = *m.OrgID
	}
	if m.UserID != nil {
		attrs["user_id"] = *m.UserID
	}
	if m.ExperimentID != nil {
		attrs["experiment_id"] = *m.ExperimentID
	}
	if m.ProviderRequestID != nil {
		attrs["provider_request_id"] = *m.ProviderRequestID
	}
	if m.RequestBody != nil {
		attrs["request"] = sanitizePayload(m.RequestBody)
	}
	if m.ResponseBody != nil {
		attrs["response"] = m.ResponseBody
	}
	if len(m.StreamedData) > 0 {
		attrs["streamed_data"] = sanitizeStreamedData(m.StreamedData)
	}

	return map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"resource": map[string]any{
			"service.name":           res.ServiceName,
			"service.version":        res.ServiceVersion,
			"deployment.environment": res.DeploymentEnvironment,
		},
		"name":       logRecordName,
		"attributes": attrs,
	}
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
