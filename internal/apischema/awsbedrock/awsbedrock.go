// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package awsbedrock contains the subset of the AWS Bedrock Converse API
// schema the gateway needs: the request shape it produces from OpenAI chat
// completions and the unary/streamed response shapes it translates back.
//
// API reference: https://docs.aws.amazon.com/bedrock/latest/APIReference/API_runtime_Converse.html
package awsbedrock

import "encoding/json"

// Stop reasons returned by the Converse API.
const (
	StopReasonEndTurn      = "end_turn"
	StopReasonMaxTokens    = "max_tokens"
	StopReasonStopSequence = "stop_sequence"
)

// ContentBlock is a single message content block. The gateway only emits
// and consumes text blocks.
type ContentBlock struct {
	Text string `json:"text"`
}

// Message is a single conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// SystemBlock is a system prompt block.
type SystemBlock struct {
	Text string `json:"text"`
}

// InferenceConfiguration carries sampling parameters.
type InferenceConfiguration struct {
	MaxTokens   int64   `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"topP"`
}

// ConverseInput is the request body for /model/{model}/converse and
// /model/{model}/converse-stream.
type ConverseInput struct {
	Messages        []Message               `json:"messages"`
	System          []SystemBlock           `json:"system"`
	InferenceConfig *InferenceConfiguration `json:"inferenceConfig,omitempty"`
}

// TokenUsage is the Converse token accounting block.
type TokenUsage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
}

// ConverseOutput is the unary response body of the Converse API.
type ConverseOutput struct {
	Output struct {
		Message Message `json:"message"`
	} `json:"output"`
	StopReason string          `json:"stopReason"`
	Usage      *TokenUsage     `json:"usage,omitempty"`
	Metrics    json.RawMessage `json:"metrics,omitempty"`
}

// ConverseStreamEvent is the union of the event payloads the gateway
// consumes from a converse-stream response. Events are distinguished by
// which field is populated, mirroring how the eventstream frames arrive.
type ConverseStreamEvent struct {
	// Delta is set on contentBlockDelta events.
	Delta *ConverseStreamEventContentBlockDelta `json:"delta,omitempty"`
	// Usage is set on the terminal metadata event.
	Usage *TokenUsage `json:"usage,omitempty"`
	// Role is set on messageStart events.
	Role *string `json:"role,omitempty"`
	// StopReason is set on messageStop events.
	StopReason *string `json:"stopReason,omitempty"`
}

// ConverseStreamEventContentBlockDelta is the delta of a contentBlockDelta
// event.
type ConverseStreamEventContentBlockDelta struct {
	Text string `json:"text,omitempty"`
}

// StopReasonToOpenAI maps a Converse stop reason to an OpenAI
// finish_reason. Unknown reasons map to "stop".
func StopReasonToOpenAI(reason string) string {
	switch reason {
	case StopReasonMaxTokens:
		return "length"
	case StopReasonEndTurn, StopReasonStopSequence:
		return "stop"
	default:
		return "stop"
	}
}
