// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package openai holds the subset of the OpenAI chat-completion API schema
// the gateway reads and writes. Providers translate their native responses
// into these envelopes so callers always see one shape.
package openai

import "encoding/json"

// Object type discriminators.
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
)

// ChatMessageContent is the content field of a chat message. Callers may
// send a plain string or a structured content-part array; the gateway only
// needs the string form, so structured content is kept raw and Text stays
// empty.
type ChatMessageContent struct {
	Text string
	Raw  json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *ChatMessageContent) UnmarshalJSON(data []byte) error {
	c.Raw = append(c.Raw[:0], data...)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &c.Text)
	}
	c.Text = ""
	return nil
}

// MarshalJSON implements json.Marshaler, round-tripping structured content.
func (c ChatMessageContent) MarshalJSON() ([]byte, error) {
	if c.Raw != nil {
		return c.Raw, nil
	}
	return json.Marshal(c.Text)
}

// ChatMessage is one entry of the request messages array.
type ChatMessage struct {
	Role    string             `json:"role"`
	Content ChatMessageContent `json:"content"`
}

// ChatCompletionRequest is the caller-facing request body. Only the fields
// the gateway inspects are typed; everything else passes through untouched
// for providers that speak this schema natively.
type ChatCompletionRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   *int64        `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// PromptTokensDetails breaks down the prompt token count.
type PromptTokensDetails struct {
	AudioTokens  int64 `json:"audio_tokens"`
	CachedTokens int64 `json:"cached_tokens"`
}

// CompletionTokensDetails breaks down the completion token count.
type CompletionTokensDetails struct {
	AcceptedPredictionTokens int64 `json:"accepted_prediction_tokens"`
	AudioTokens              int64 `json:"audio_tokens"`
	ReasoningTokens          int64 `json:"reasoning_tokens"`
	RejectedPredictionTokens int64 `json:"rejected_prediction_tokens"`
}

// Usage reports token counts for one completion.
type Usage struct {
	PromptTokens            int64                    `json:"prompt_tokens"`
	CompletionTokens        int64                    `json:"completion_tokens"`
	TotalTokens             int64                    `json:"total_tokens"`
	PromptTokensDetails     *PromptTokensDetails     `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`
}

// ChatCompletionResponseMessage is the assistant message of one choice.
type ChatCompletionResponseMessage struct {
	Role    string  `json:"role"`
	Content string  `json:"content"`
	Refusal *string `json:"refusal"`
}

// ChatCompletionChoice is one entry of the response choices array.
type ChatCompletionChoice struct {
	Index        int                           `json:"index"`
	Message      ChatCompletionResponseMessage `json:"message"`
	Logprobs     *json.RawMessage              `json:"logprobs"`
	FinishReason string                        `json:"finish_reason"`
}

// ChatCompletionResponse is the unary response envelope.
type ChatCompletionResponse struct {
	ID                string                 `json:"id"`
	Object            string                 `json:"object"`
	Created           int64                  `json:"created"`
	Model             string                 `json:"model"`
	Choices           []ChatCompletionChoice `json:"choices"`
	Usage             Usage                  `json:"usage"`
	ServiceTier       string                 `json:"service_tier,omitempty"`
	SystemFingerprint string                 `json:"system_fingerprint,omitempty"`
	// Metrics carries provider-reported latency data through unchanged.
	Metrics json.RawMessage `json:"metrics,omitempty"`
}

// ChatCompletionChunkDelta is the incremental content of a stream chunk.
type ChatCompletionChunkDelta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// ChatCompletionChunkChoice is one entry of a chunk's choices array.
type ChatCompletionChunkChoice struct {
	Index        int                      `json:"index"`
	Delta        ChatCompletionChunkDelta `json:"delta"`
	FinishReason *string                  `json:"finish_reason,omitempty"`
}

// ChatCompletionChunk is one SSE data payload of a streamed completion.
type ChatCompletionChunk struct {
	ID                string                      `json:"id"`
	Object            string                      `json:"object"`
	Created           int64                       `json:"created"`
	Model             string                      `json:"model"`
	Choices           []ChatCompletionChunkChoice `json:"choices"`
	Usage             *Usage                      `json:"usage,omitempty"`
	ServiceTier       string                      `json:"service_tier,omitempty"`
	SystemFingerprint string                      `json:"system_fingerprint,omitempty"`
}
