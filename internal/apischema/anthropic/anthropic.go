// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package anthropic contains the subset of the Anthropic Messages API
// schema the gateway needs to translate unary responses into the OpenAI
// chat-completion envelope and to read usage from streamed events.
//
// API reference: https://docs.anthropic.com/en/api/messages
package anthropic

// Version is the anthropic-version header value the gateway pins.
const Version = "2023-06-01"

// Stop reasons returned by the Messages API.
const (
	StopReasonEndTurn      = "end_turn"
	StopReasonMaxTokens    = "max_tokens"
	StopReasonStopSequence = "stop_sequence"
)

// Streaming event types carrying usage information.
const (
	EventMessageStart = "message_start"
	EventMessageDelta = "message_delta"
)

// ContentBlock is a single response content block. Only text blocks are
// folded into the OpenAI message content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage is the Anthropic token accounting block.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// MessagesResponse is a unary response from POST /v1/messages.
type MessagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// StopReasonToOpenAI maps an Anthropic stop reason to an OpenAI
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
