// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	total := int64(15)
	cost := 0.00015
	m := &RequestMetrics{
		ID:           "rec-1",
		ThreadID:     "thread-1",
		Provider:     "openai",
		Model:        "gpt-4",
		Path:         "/v1/chat/completions",
		Method:       "POST",
		TotalLatency: 1500 * time.Millisecond,
		TTFB:         200 * time.Millisecond,
		StatusCode:   200,
		TotalTokens:  &total,
		Cost:         &cost,
	}

	env := NewEnvelope(m, Resource{
		ServiceName:           "ai-gateway",
		ServiceVersion:        "dev",
		DeploymentEnvironment: "development",
	})

	require.Equal(t, "ai_gateway_request_log", env["name"])
	_, err := time.Parse(time.RFC3339Nano, env["timestamp"].(string))
	require.NoError(t, err)

	res := env["resource"].(map[string]any)
	require.Equal(t, "ai-gateway", res["service.name"])
	require.Equal(t, "dev", res["service.version"])
	require.Equal(t, "development", res["deployment.environment"])

	attrs := env["attributes"].(map[string]any)
	require.Equal(t, "rec-1", attrs["id"])
	require.Equal(t, "openai", attrs["provider"])
	require.InDelta(t, 1500.0, attrs["total_latency_ms"].(float64), 1e-9)
	require.InDelta(t, 200.0, attrs["ttfb_ms"].(float64), 1e-9)
	require.Equal(t, int64(15), attrs["total_tokens"])
	require.InDelta(t, 0.00015, attrs["cost"].(float64), 1e-12)

	// Absent optionals are omitted, not exported as null.
	_, hasInput := attrs["input_tokens"]
	require.False(t, hasInput)
	_, hasError := attrs["error_type"]
	require.False(t, hasError)
	_, hasProject := attrs["project_id"]
	require.False(t, hasProject)
}
