// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package telemetry

import "github.com/tidwall/gjson"

// anthropicExtractor is stateful across a stream: message_start carries the
// input token count and the message id, message_delta the output count. The
// two are combined into one terminal result on message_delta.
type anthropicExtractor struct {
	inputTokens *int64
	requestID   string
	model       string
}

func (anthropicExtractor) Extract(body []byte) ProviderMetrics {
	parsed := gjson.ParseBytes(body)
	m := ProviderMetrics{
		Model:     parsed.Get("model").String(),
		RequestID: parsed.Get("id").String(),
	}
	fillUsage(&m, parsed.Get("usage"), "input_tokens", "output_tokens", "total_tokens")
	return m
}

func (e *anthropicExtractor) ExtractStreaming(line string) *StreamingResult {
	payload, ok := dataPayload(line)
	if !ok {
		return nil
	}
	parsed := gjson.Parse(payload)

	switch parsed.Get("type").String() {
	case "message_start":
		if v := parsed.Get("message.usage.input_tokens"); v.Exists() {
			n := v.Int()
			e.inputTokens = &n
		}
		e.requestID = parsed.Get("message.id").String()
		e.model = parsed.Get("message.model").String()
		return &StreamingResult{Metrics: ProviderMetrics{
			Model:     e.model,
			RequestID: e.requestID,
		}}
	case "message_delta":
		v := parsed.Get("usage.output_tokens")
		if !v.Exists() {
			return genericStreamingResult(parsed)
		}
		output := v.Int()
		m := ProviderMetrics{
			InputTokens:  e.inputTokens,
			OutputTokens: &output,
			Model:        e.model,
			RequestID:    e.requestID,
		}
		m.normalize()
		return &StreamingResult{Metrics: m, Terminal: true}
	default:
		return genericStreamingResult(parsed)
	}
}
