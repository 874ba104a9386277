// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package telemetry

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// StreamingResult is the outcome of parsing one SSE line. Terminal results
// carry usage reported by the provider; non-terminal results only fill in
// identity fields (model, request id) learned along the way.
type StreamingResult struct {
	Metrics  ProviderMetrics
	Terminal bool
}

// Extractor derives token and cost metrics from upstream responses. An
// extractor is built per request and may keep state across streaming calls
// (Anthropic reports input tokens on message_start and output tokens on
// message_delta).
type Extractor interface {
	// Extract parses a complete unary response body.
	Extract(body []byte) ProviderMetrics
	// ExtractStreaming parses one line of an SSE stream. It returns nil
	// when the line carries nothing recognizable.
	ExtractStreaming(line string) *StreamingResult
}

// NewExtractor returns a fresh extractor for the named provider. Fireworks
// and Together speak the OpenAI response schema, so they share its extractor.
func NewExtractor(providerName string) Extractor {
	switch strings.ToLower(providerName) {
	case "anthropic":
		return &anthropicExtractor{}
	case "bedrock":
		return &bedrockExtractor{}
	case "groq":
		return &groqExtractor{}
	default:
		return &openaiExtractor{}
	}
}

// dataPayload strips the SSE framing from a stream line. It returns false
// for non-data lines, empty payloads, and the [DONE] sentinel.
func dataPayload(line string) (string, bool) {
	payload, ok := strings.CutPrefix(strings.TrimSpace(line), "data:")
	if !ok {
		return "", false
	}
	payload = strings.TrimSpace(payload)
	if payload == "" || payload == "[DONE]" {
		return "", false
	}
	return payload, true
}

// genericStreamingResult recognizes chunks that merely look like a chat
// completion stream. It never yields usage, only identity fields, and lets
// the accumulator know the stream shape is understood.
func genericStreamingResult(payload gjson.Result) *StreamingResult {
	recognized := false
	for _, key := range []string{"usage", "choices", "completion", "delta", "finish_reason"} {
		if payload.Get(key).Exists() {
			recognized = true
			break
		}
	}
	if !recognized {
		return nil
	}
	return &StreamingResult{Metrics: ProviderMetrics{
		Model:     payload.Get("model").String(),
		RequestID: payload.Get("id").String(),
	}}
}

// estimateTokens approximates a token count from generated text, at roughly
// four bytes per token.
func estimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	return int64((len(text) + 3) / 4)
}

// openaiExtractor reads the standard chat-completion usage block. It also
// serves Fireworks and Together.
type openaiExtractor struct{}

func (openaiExtractor) Extract(body []byte) ProviderMetrics {
	parsed := gjson.ParseBytes(body)
	m := ProviderMetrics{
		Model:     parsed.Get("model").String(),
		RequestID: parsed.Get("id").String(),
	}
	usage := parsed.Get("usage")
	if !usage.Exists() {
		return m
	}
	fillUsage(&m, usage, "prompt_tokens", "completion_tokens", "total_tokens")
	if m.TotalTokens != nil {
		cost := openAICost(m.Model, *m.TotalTokens)
		m.Cost = &cost
	}
	return m
}

func (e openaiExtractor) ExtractStreaming(line string) *StreamingResult {
	payload, ok := dataPayload(line)
	if !ok {
		return nil
	}
	parsed := gjson.Parse(payload)
	usage := parsed.Get("usage")
	if usage.Exists() && usage.IsObject() {
		m := e.Extract([]byte(payload))
		return &StreamingResult{Metrics: m, Terminal: true}
	}
	return genericStreamingResult(parsed)
}

// fillUsage populates the token fields of m from a usage object using the
// given key names, leaving absent fields nil, then normalizes the total.
func fillUsage(m *ProviderMetrics, usage gjson.Result, inputKey, outputKey, totalKey string) {
	if v := usage.Get(inputKey); v.Exists() {
		n := v.Int()
		m.InputTokens = &n
	}
	if v := usage.Get(outputKey); v.Exists() {
		n := v.Int()
		m.OutputTokens = &n
	}
	if v := usage.Get(totalKey); v.Exists() {
		n := v.Int()
		m.TotalTokens = &n
	}
	m.normalize()
}

// secondsToDuration converts a fractional-seconds reading into a Duration.
func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
