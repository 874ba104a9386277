// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package telemetry

import "github.com/tidwall/gjson"

// groqExtractor handles Groq's OpenAI-compatible responses. Groq moves the
// usage block under x_groq on streamed responses and reports the upstream
// wall time as usage.total_time in fractional seconds.
type groqExtractor struct{}

func (groqExtractor) Extract(body []byte) ProviderMetrics {
	return groqMetrics(gjson.ParseBytes(body))
}

func (groqExtractor) ExtractStreaming(line string) *StreamingResult {
	payload, ok := dataPayload(line)
	if !ok {
		return nil
	}
	parsed := gjson.Parse(payload)
	if parsed.Get("x_groq.usage").Exists() || parsed.Get("usage").IsObject() {
		return &StreamingResult{Metrics: groqMetrics(parsed), Terminal: true}
	}
	return genericStreamingResult(parsed)
}

func groqMetrics(parsed gjson.Result) ProviderMetrics {
	m := ProviderMetrics{
		Model:     parsed.Get("model").String(),
		RequestID: parsed.Get("id").String(),
	}
	usage := parsed.Get("x_groq.usage")
	if !usage.Exists() {
		usage = parsed.Get("usage")
	}
	if !usage.Exists() {
		return m
	}
	fillUsage(&m, usage, "prompt_tokens", "completion_tokens", "total_tokens")
	if totalTime := usage.Get("total_time"); totalTime.Exists() {
		m.ProviderLatency = secondsToDuration(totalTime.Float())
	}
	if m.TotalTokens != nil {
		cost := groqCost(m.Model, *m.TotalTokens)
		m.Cost = &cost
	}
	return m
}
