// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestPrometheusExporter(t *testing.T) {
	registry := prometheus.NewRegistry()
	e, err := NewPrometheusExporter(registry)
	require.NoError(t, err)
	require.Equal(t, "prometheus", e.Name())

	input, output, total := int64(10), int64(5), int64(15)
	require.NoError(t, e.Export(context.Background(), &RequestMetrics{
		Provider:     "openai",
		Model:        "gpt-4",
		TotalLatency: 1200 * time.Millisecond,
		TTFB:         150 * time.Millisecond,
		IsStreaming:  true,
		InputTokens:  &input,
		OutputTokens: &output,
		TotalTokens:  &total,
	}))

	families, err := registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	all := strings.Join(names, " ")
	require.Contains(t, all, "gen_ai_client_token_usage")
	require.Contains(t, all, "gen_ai_server_request_duration")
	require.Contains(t, all, "gen_ai_server_time_to_first_token")
}
