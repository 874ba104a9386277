// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package telemetry

import "github.com/tidwall/gjson"

// bedrockExtractor reads Converse usage blocks. By the time a Bedrock
// response reaches the middleware it has been rewritten into the OpenAI
// schema, so both the native camelCase keys and the rewritten snake_case
// keys are accepted.
type bedrockExtractor struct{}

func (bedrockExtractor) Extract(body []byte) ProviderMetrics {
	return bedrockMetrics(gjson.ParseBytes(body))
}

func (bedrockExtractor) ExtractStreaming(line string) *StreamingResult {
	payload, ok := dataPayload(line)
	if !ok {
		return nil
	}
	parsed := gjson.Parse(payload)
	if parsed.Get("usage").IsObject() {
		return &StreamingResult{Metrics: bedrockMetrics(parsed), Terminal: true}
	}
	return genericStreamingResult(parsed)
}

func bedrockMetrics(parsed gjson.Result) ProviderMetrics {
	m := ProviderMetrics{
		Model:     parsed.Get("model").String(),
		RequestID: parsed.Get("id").String(),
	}
	usage := parsed.Get("usage")
	if !usage.Exists() {
		return m
	}
	if usage.Get("inputTokens").Exists() {
		fillUsage(&m, usage, "inputTokens", "outputTokens", "totalTokens")
	} else {
		fillUsage(&m, usage, "prompt_tokens", "completion_tokens", "total_tokens")
	}
	if m.TotalTokens != nil {
		cost := bedrockCost(m.Model, *m.TotalTokens)
		m.Cost = &cost
	}
	return m
}
