// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package provider

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	"github.com/stretchr/testify/require"

	"github.com/magicapi/ai-gateway/internal/apischema/openai"
)

// encodeFrames builds a raw eventstream body out of the given JSON payloads.
func encodeFrames(t *testing.T, payloads ...string) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	encoder := eventstream.NewEncoder()
	for _, payload := range payloads {
		msg := eventstream.Message{Payload: []byte(payload)}
		require.NoError(t, encoder.Encode(&buf, msg))
	}
	return io.NopCloser(&buf)
}

// parseSSE splits an SSE body into its data payloads.
func parseSSE(t *testing.T, body string) []string {
	t.Helper()
	var payloads []string
	for _, line := range strings.Split(body, "\n") {
		if payload, ok := strings.CutPrefix(line, "data: "); ok {
			payloads = append(payloads, payload)
		}
	}
	return payloads
}

func TestConverseStreamTranslation(t *testing.T) {
	b := newTestBedrock(t)
	require.NoError(t, b.BeforeRequest(http.Header{}, []byte(`{"model":"amazon.titan-text-premier-v1:0","stream":true,"messages":[]}`)))

	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Content-Type":     []string{"application/vnd.amazon.eventstream"},
			"X-Amzn-Requestid": []string{"aws-req-2"},
		},
		Body: encodeFrames(t,
			`{"role":"assistant"}`,
			`{"delta":{"text":"Hel"}}`,
			`{"delta":{"text":"lo"}}`,
			`{"stopReason":"end_turn"}`,
			`{"usage":{"inputTokens":7,"outputTokens":2,"totalTokens":9}}`,
		),
	}

	resp, err := b.ProcessResponse(resp)
	require.NoError(t, err)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	require.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))
	require.Equal(t, "aws-req-2", resp.Header.Get("x-request-id"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	payloads := parseSSE(t, string(body))
	require.Len(t, payloads, 4) // two deltas, the usage chunk, [DONE]
	require.Equal(t, "[DONE]", payloads[3])

	var first, second, final openai.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(payloads[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(payloads[1]), &second))
	require.NoError(t, json.Unmarshal([]byte(payloads[2]), &final))

	// Only the first content chunk carries the role.
	require.Equal(t, "assistant", first.Choices[0].Delta.Role)
	require.Equal(t, "Hel", *first.Choices[0].Delta.Content)
	require.Empty(t, second.Choices[0].Delta.Role)
	require.Equal(t, "lo", *second.Choices[0].Delta.Content)

	for _, chunk := range []openai.ChatCompletionChunk{first, second, final} {
		require.Equal(t, "chatcmpl-bedrock", chunk.ID)
		require.Equal(t, openai.ObjectChatCompletionChunk, chunk.Object)
		require.Equal(t, "amazon.titan-text-premier-v1:0", chunk.Model)
		require.Equal(t, "default", chunk.ServiceTier)
		require.Equal(t, first.SystemFingerprint, chunk.SystemFingerprint)
	}

	require.NotNil(t, final.Choices[0].FinishReason)
	require.Equal(t, "stop", *final.Choices[0].FinishReason)
	require.NotNil(t, final.Usage)
	require.Equal(t, int64(7), final.Usage.PromptTokens)
	require.Equal(t, int64(2), final.Usage.CompletionTokens)
	require.Equal(t, int64(9), final.Usage.TotalTokens)
}

func TestConverseStreamSkipsMalformedPayload(t *testing.T) {
	b := newTestBedrock(t)
	require.NoError(t, b.BeforeRequest(http.Header{}, []byte(`{"stream":true,"messages":[]}`)))

	body := newConverseStreamTransformer(encodeFrames(t,
		`not json`,
		`{"delta":{"text":"ok"}}`,
		`{"usage":{"inputTokens":1,"outputTokens":1,"totalTokens":2}}`,
	), b)

	out, err := io.ReadAll(body)
	require.NoError(t, err)
	payloads := parseSSE(t, string(out))
	require.Len(t, payloads, 3)
	require.Contains(t, payloads[0], `"ok"`)
	require.Equal(t, "[DONE]", payloads[2])
}

func TestConverseStreamTruncatedUpstream(t *testing.T) {
	b := newTestBedrock(t)
	require.NoError(t, b.BeforeRequest(http.Header{}, []byte(`{"stream":true,"messages":[]}`)))

	var buf bytes.Buffer
	encoder := eventstream.NewEncoder()
	require.NoError(t, encoder.Encode(&buf, eventstream.Message{Payload: []byte(`{"delta":{"text":"partial"}}`)}))
	buf.WriteString("garbage that is not a frame")

	body := newConverseStreamTransformer(io.NopCloser(&buf), b)
	out, err := io.ReadAll(body)
	require.NoError(t, err)

	// The valid frame is forwarded; the framing error ends the stream.
	payloads := parseSSE(t, string(out))
	require.Len(t, payloads, 1)
	require.Contains(t, payloads[0], "partial")
}
