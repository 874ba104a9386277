// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package provider

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/magicapi/ai-gateway/internal/apischema/awsbedrock"
	"github.com/magicapi/ai-gateway/internal/apischema/openai"
	"github.com/magicapi/ai-gateway/internal/gatewayerr"
)

func newTestBedrock(t *testing.T) *bedrockProvider {
	t.Helper()
	p, err := New("bedrock", testOptions())
	require.NoError(t, err)
	return p.(*bedrockProvider)
}

func TestBedrockBeforeRequest(t *testing.T) {
	t.Run("captures model, stream flag and region", func(t *testing.T) {
		b := newTestBedrock(t)
		headers := http.Header{}
		headers.Set("x-aws-region", "eu-west-1")
		body := []byte(`{"model":"anthropic.claude-3-sonnet-20240229-v1:0","stream":true,"messages":[]}`)
		require.NoError(t, b.BeforeRequest(headers, body))
		require.Equal(t, "anthropic.claude-3-sonnet-20240229-v1:0", b.model)
		require.True(t, b.streaming)
		require.Equal(t, "eu-west-1", b.region)
		require.Equal(t, "https://bedrock-runtime.eu-west-1.amazonaws.com", b.BaseURL())
	})

	t.Run("defaults apply when absent", func(t *testing.T) {
		b := newTestBedrock(t)
		require.NoError(t, b.BeforeRequest(http.Header{}, []byte(`{"messages":[]}`)))
		require.Equal(t, bedrockDefaultModel, b.model)
		require.False(t, b.streaming)
		require.Equal(t, bedrockDefaultRegion, b.region)
	})
}

func TestBedrockTransformPath(t *testing.T) {
	b := newTestBedrock(t)
	require.NoError(t, b.BeforeRequest(http.Header{}, []byte(`{"model":"amazon.titan-text-premier-v1:0"}`)))
	require.Equal(t, "/model/amazon.titan-text-premier-v1:0/converse", b.TransformPath("/v1/chat/completions"))

	require.NoError(t, b.BeforeRequest(http.Header{}, []byte(`{"model":"amazon.titan-text-premier-v1:0","stream":true}`)))
	require.Equal(t, "/model/amazon.titan-text-premier-v1:0/converse-stream", b.TransformPath("/v1/chat/completions"))
}

func TestBedrockProcessHeaders(t *testing.T) {
	b := newTestBedrock(t)
	in := http.Header{}
	in.Set("x-aws-access-key-id", "AKID")
	in.Set("x-aws-secret-access-key", "SECRET")
	in.Set("Authorization", "Bearer should-not-forward")

	out, err := b.ProcessHeaders(in)
	require.NoError(t, err)
	require.Equal(t, "AKID", out.Get("x-aws-access-key-id"))
	require.Equal(t, "SECRET", out.Get("x-aws-secret-access-key"))
	require.Equal(t, "application/json", out.Get("Content-Type"))
	require.Empty(t, out.Get("Authorization"))
}

func TestBedrockPrepareRequestBody(t *testing.T) {
	t.Run("translates openai request with defaults", func(t *testing.T) {
		b := newTestBedrock(t)
		in := []byte(`{
			"model": "anthropic.claude-3-sonnet-20240229-v1:0",
			"messages": [
				{"role": "system", "content": "You are terse."},
				{"role": "user", "content": "Hi"}
			]
		}`)
		out, err := b.PrepareRequestBody(in)
		require.NoError(t, err)

		var converse awsbedrock.ConverseInput
		require.NoError(t, json.Unmarshal(out, &converse))
		require.Len(t, converse.System, 1)
		require.Equal(t, "You are terse.", converse.System[0].Text)
		require.Len(t, converse.Messages, 1)
		require.Equal(t, "user", converse.Messages[0].Role)
		require.Equal(t, "Hi", converse.Messages[0].Content[0].Text)
		require.Equal(t, int64(1000), converse.InferenceConfig.MaxTokens)
		require.InDelta(t, 0.7, converse.InferenceConfig.Temperature, 1e-9)
		require.InDelta(t, 1.0, converse.InferenceConfig.TopP, 1e-9)
	})

	t.Run("caller overrides win", func(t *testing.T) {
		b := newTestBedrock(t)
		in := []byte(`{"messages":[{"role":"user","content":"Hi"}],"max_tokens":64,"temperature":0.1,"top_p":0.5}`)
		out, err := b.PrepareRequestBody(in)
		require.NoError(t, err)

		var converse awsbedrock.ConverseInput
		require.NoError(t, json.Unmarshal(out, &converse))
		require.Equal(t, int64(64), converse.InferenceConfig.MaxTokens)
		require.InDelta(t, 0.1, converse.InferenceConfig.Temperature, 1e-9)
		require.InDelta(t, 0.5, converse.InferenceConfig.TopP, 1e-9)
	})

	t.Run("native converse body passes through", func(t *testing.T) {
		b := newTestBedrock(t)
		in := []byte(`{"messages":[],"inferenceConfig":{"maxTokens":5,"temperature":0,"topP":1}}`)
		out, err := b.PrepareRequestBody(in)
		require.NoError(t, err)
		require.Equal(t, in, out)
	})

	t.Run("missing messages is rejected", func(t *testing.T) {
		b := newTestBedrock(t)
		_, err := b.PrepareRequestBody([]byte(`{"model":"m"}`))
		require.Equal(t, gatewayerr.KindInvalidRequestFormat, gatewayerr.AsError(err).Kind)
	})

	t.Run("malformed json is rejected", func(t *testing.T) {
		b := newTestBedrock(t)
		_, err := b.PrepareRequestBody([]byte(`{`))
		require.Equal(t, gatewayerr.KindJSONParseError, gatewayerr.AsError(err).Kind)
	})
}

func TestBedrockSigningCredentials(t *testing.T) {
	b := newTestBedrock(t)

	t.Run("complete credentials", func(t *testing.T) {
		in := http.Header{}
		in.Set("x-aws-access-key-id", "AKID")
		in.Set("x-aws-secret-access-key", "SECRET")
		in.Set("x-aws-region", "us-west-2")
		accessKey, secretKey, region, ok := b.SigningCredentials(in)
		require.True(t, ok)
		require.Equal(t, "AKID", accessKey)
		require.Equal(t, "SECRET", secretKey)
		require.Equal(t, "us-west-2", region)
	})

	t.Run("region falls back to provider region", func(t *testing.T) {
		in := http.Header{}
		in.Set("x-aws-access-key-id", "AKID")
		in.Set("x-aws-secret-access-key", "SECRET")
		_, _, region, ok := b.SigningCredentials(in)
		require.True(t, ok)
		require.Equal(t, b.region, region)
	})

	t.Run("partial credentials are not usable", func(t *testing.T) {
		in := http.Header{}
		in.Set("x-aws-access-key-id", "AKID")
		_, _, _, ok := b.SigningCredentials(in)
		require.False(t, ok)
	})
}

func TestBedrockProcessResponseUnary(t *testing.T) {
	b := newTestBedrock(t)
	require.NoError(t, b.BeforeRequest(http.Header{}, []byte(`{"model":"anthropic.claude-3-sonnet-20240229-v1:0","messages":[]}`)))

	upstream := `{
		"output": {"message": {"role": "assistant", "content": [{"text": "Hello"}]}},
		"stopReason": "end_turn",
		"usage": {"inputTokens": 10, "outputTokens": 5, "totalTokens": 15},
		"metrics": {"latencyMs": 551}
	}`
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}, "X-Amzn-Requestid": []string{"aws-req-1"}},
		Body:       io.NopCloser(strings.NewReader(upstream)),
	}

	resp, err := b.ProcessResponse(resp)
	require.NoError(t, err)
	require.Equal(t, "aws-req-1", resp.Header.Get("x-request-id"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var translated openai.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(body, &translated))

	require.True(t, strings.HasPrefix(translated.ID, "chatcmpl-"))
	require.Equal(t, openai.ObjectChatCompletion, translated.Object)
	require.Equal(t, "anthropic.claude-3-sonnet-20240229-v1:0", translated.Model)
	require.Equal(t, "Hello", translated.Choices[0].Message.Content)
	require.Equal(t, "stop", translated.Choices[0].FinishReason)
	require.Equal(t, int64(10), translated.Usage.PromptTokens)
	require.Equal(t, int64(5), translated.Usage.CompletionTokens)
	require.Equal(t, int64(15), translated.Usage.TotalTokens)
	require.Equal(t, "default", translated.ServiceTier)
	require.True(t, strings.HasPrefix(translated.SystemFingerprint, "fp_"))
	require.JSONEq(t, `{"latencyMs":551}`, string(translated.Metrics))
}

func TestBedrockProcessResponseErrorPassthrough(t *testing.T) {
	b := newTestBedrock(t)
	upstream := `{"message":"The security token included in the request is invalid."}`
	resp := &http.Response{
		StatusCode: http.StatusForbidden,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(upstream)),
	}
	resp, err := b.ProcessResponse(resp)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.JSONEq(t, upstream, string(body))
}
