// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package provider

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/magicapi/ai-gateway/internal/apischema/anthropic"
	"github.com/magicapi/ai-gateway/internal/apischema/openai"
	"github.com/magicapi/ai-gateway/internal/gatewayerr"
)

// anthropicProvider proxies to the Anthropic Messages API and translates
// unary responses into the OpenAI chat-completion envelope. Streaming
// responses pass through unchanged.
type anthropicProvider struct {
	passthrough
	logger *slog.Logger
}

func (a *anthropicProvider) Name() string { return "anthropic" }

func (a *anthropicProvider) BaseURL() string { return "https://api.anthropic.com" }

// TransformPath maps the OpenAI chat-completions path onto /v1/messages.
func (a *anthropicProvider) TransformPath(path string) string {
	if strings.Contains(path, "/chat/completions") {
		return "/v1/messages"
	}
	return path
}

// ProcessHeaders relocates the caller's bearer credential into the
// x-api-key header Anthropic expects and pins the API version.
func (a *anthropicProvider) ProcessHeaders(headers http.Header) (http.Header, error) {
	logTrackingHeaders(a.logger, headers)

	out := http.Header{}
	out.Set("Content-Type", "application/json")
	out.Set("anthropic-version", anthropic.Version)

	auth := headers.Get("Authorization")
	if auth == "" {
		return nil, gatewayerr.New(gatewayerr.KindMissingAPIKey, "no authorization header found for Anthropic request")
	}
	out.Set("x-api-key", strings.TrimPrefix(auth, "Bearer "))
	return out, nil
}

// ProcessResponse rewrites unary Anthropic responses to the OpenAI shape.
// SSE responses are forwarded as-is, with the upstream request-id header
// propagated to x-request-id.
func (a *anthropicProvider) ProcessResponse(resp *http.Response) (*http.Response, error) {
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/event-stream") {
		if rid := resp.Header.Get("request-id"); rid != "" && resp.Header.Get("x-request-id") == "" {
			resp.Header.Set("x-request-id", rid)
		}
		return resp, nil
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(contentType, "application/json") {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindIOError, "failed to read Anthropic response body", err)
	}

	var msg anthropic.MessagesResponse
	if err := json.Unmarshal(body, &msg); err != nil || msg.Type != "message" {
		// Not a messages response; pass the body through untouched.
		restoreBody(resp, body)
		return resp, nil
	}

	translated, err := json.Marshal(anthropicToOpenAI(&msg))
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindJSONSerializeError, "failed to serialize translated Anthropic response", err)
	}
	if rid := resp.Header.Get("request-id"); rid != "" && resp.Header.Get("x-request-id") == "" {
		resp.Header.Set("x-request-id", rid)
	}
	resp.Header.Set("Content-Type", "application/json")
	restoreBody(resp, translated)
	return resp, nil
}

// anthropicToOpenAI folds all text content blocks into a single assistant
// message and maps stop reason and usage fields.
func anthropicToOpenAI(msg *anthropic.MessagesResponse) *openai.ChatCompletionResponse {
	var content strings.Builder
	for _, block := range msg.Content {
		content.WriteString(block.Text)
	}
	return &openai.ChatCompletionResponse{
		ID:      msg.ID,
		Object:  openai.ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   msg.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionResponseMessage{
				Role:    "assistant",
				Content: content.String(),
			},
			FinishReason: anthropic.StopReasonToOpenAI(msg.StopReason),
		}},
		Usage: openai.Usage{
			PromptTokens:     msg.Usage.InputTokens,
			CompletionTokens: msg.Usage.OutputTokens,
			TotalTokens:      msg.Usage.InputTokens + msg.Usage.OutputTokens,
		},
		SystemFingerprint: "anthropic-" + msg.Model,
	}
}

// restoreBody replaces the response body with the given bytes and keeps the
// content-length header consistent.
func restoreBody(resp *http.Response, body []byte) {
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
}
