// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/magicapi/ai-gateway/internal/apischema/awsbedrock"
	"github.com/magicapi/ai-gateway/internal/apischema/openai"
	"github.com/magicapi/ai-gateway/internal/gatewayerr"
)

// Bedrock defaults applied when the caller omits the fields.
const (
	bedrockDefaultRegion      = "us-east-1"
	bedrockDefaultModel       = "amazon.titan-text-premier-v1:0"
	bedrockDefaultMaxTokens   = int64(1000)
	bedrockDefaultTemperature = 0.7
	bedrockDefaultTopP        = 1.0
)

// bedrockProvider proxies to the AWS Bedrock Converse API. Instances are
// per-request: BeforeRequest captures the model, streaming flag and region,
// and the stream translator mutates firstChunk while reading.
type bedrockProvider struct {
	passthrough
	logger *slog.Logger

	region            string
	model             string
	streaming         bool
	systemFingerprint string
	firstChunk        bool
}

func newBedrockProvider(opts Options) *bedrockProvider {
	region := opts.DefaultAWSRegion
	if region == "" {
		region = bedrockDefaultRegion
	}
	return &bedrockProvider{
		logger:            opts.Logger,
		region:            region,
		model:             bedrockDefaultModel,
		systemFingerprint: newFingerprint(),
		firstChunk:        true,
	}
}

func (b *bedrockProvider) Name() string { return "bedrock" }

func (b *bedrockProvider) BaseURL() string {
	return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", b.region)
}

// BeforeRequest captures the model and streaming flag from the request body
// and the region from the x-aws-region header, and resets the per-request
// streaming state.
func (b *bedrockProvider) BeforeRequest(headers http.Header, body []byte) error {
	if model := gjson.GetBytes(body, "model").String(); model != "" {
		b.model = model
	}
	b.streaming = gjson.GetBytes(body, "stream").Bool()
	b.systemFingerprint = newFingerprint()
	b.firstChunk = true

	if region := headers.Get("x-aws-region"); region != "" {
		b.region = region
	}
	b.logger.Debug("prepared bedrock request", "model", b.model, "region", b.region, "streaming", b.streaming)
	return nil
}

// TransformPath routes to the converse or converse-stream action of the
// model captured in BeforeRequest. The model is path-escaped to handle ARNs.
func (b *bedrockProvider) TransformPath(string) string {
	action := "converse"
	if b.streaming {
		action = "converse-stream"
	}
	return fmt.Sprintf("/model/%s/%s", url.PathEscape(b.model), action)
}

// ProcessHeaders keeps the caller's x-aws-* headers and the JSON content type.
func (b *bedrockProvider) ProcessHeaders(headers http.Header) (http.Header, error) {
	logTrackingHeaders(b.logger, headers)

	out := http.Header{}
	out.Set("Content-Type", "application/json")
	for name, values := range headers {
		if strings.HasPrefix(strings.ToLower(name), "x-aws-") {
			for _, v := range values {
				out.Add(name, v)
			}
		}
	}
	return out, nil
}

// PrepareRequestBody converts an OpenAI chat request into the Converse
// shape. Bodies that already carry an inferenceConfig pass through.
func (b *bedrockProvider) PrepareRequestBody(body []byte) ([]byte, error) {
	if gjson.GetBytes(body, "inferenceConfig").Exists() {
		return body, nil
	}

	var req openai.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindJSONParseError, "failed to parse request body", err)
	}
	if req.Messages == nil {
		return nil, gatewayerr.New(gatewayerr.KindInvalidRequestFormat, "messages array not found")
	}

	converse := awsbedrock.ConverseInput{
		Messages: []awsbedrock.Message{},
		System:   []awsbedrock.SystemBlock{},
		InferenceConfig: &awsbedrock.InferenceConfiguration{
			MaxTokens:   bedrockDefaultMaxTokens,
			Temperature: bedrockDefaultTemperature,
			TopP:        bedrockDefaultTopP,
		},
	}
	if req.MaxTokens != nil {
		converse.InferenceConfig.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		converse.InferenceConfig.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		converse.InferenceConfig.TopP = *req.TopP
	}
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			converse.System = append(converse.System, awsbedrock.SystemBlock{Text: msg.Content.Text})
			continue
		}
		converse.Messages = append(converse.Messages, awsbedrock.Message{
			Role:    msg.Role,
			Content: []awsbedrock.ContentBlock{{Text: msg.Content.Text}},
		})
	}

	out, err := json.Marshal(converse)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindJSONSerializeError, "failed to serialize converse request", err)
	}
	return out, nil
}

func (b *bedrockProvider) RequiresSigning() bool { return true }

// SigningCredentials reads the caller-supplied AWS credentials. The region
// falls back to the one captured in BeforeRequest.
func (b *bedrockProvider) SigningCredentials(headers http.Header) (string, string, string, bool) {
	accessKey := headers.Get("x-aws-access-key-id")
	secretKey := headers.Get("x-aws-secret-access-key")
	if accessKey == "" || secretKey == "" {
		return "", "", "", false
	}
	region := headers.Get("x-aws-region")
	if region == "" {
		region = b.region
	}
	return accessKey, secretKey, region, true
}

func (b *bedrockProvider) SigningHost() string {
	return fmt.Sprintf("bedrock-runtime.%s.amazonaws.com", b.region)
}

// ProcessResponse translates Converse responses back to the OpenAI shape:
// eventstream responses become SSE chat-completion chunks, unary responses
// become a chat-completion envelope.
func (b *bedrockProvider) ProcessResponse(resp *http.Response) (*http.Response, error) {
	awsRequestID := resp.Header.Get("x-amzn-Requestid")

	if strings.Contains(resp.Header.Get("Content-Type"), "application/vnd.amazon.eventstream") {
		resp.Body = newConverseStreamTransformer(resp.Body, b)
		resp.ContentLength = -1
		resp.Header.Del("Content-Length")
		resp.Header.Set("Content-Type", "text/event-stream")
		resp.Header.Set("Cache-Control", "no-cache")
		resp.Header.Set("Connection", "keep-alive")
		resp.Header.Set("X-Accel-Buffering", "no")
		if awsRequestID != "" {
			resp.Header.Set("x-request-id", awsRequestID)
		}
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindIOError, "failed to read Bedrock response body", err)
	}
	if resp.StatusCode != http.StatusOK {
		restoreBody(resp, body)
		return resp, nil
	}

	var converse awsbedrock.ConverseOutput
	if err := json.Unmarshal(body, &converse); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindJSONParseError, "failed to parse Bedrock response", err)
	}
	translated, err := json.Marshal(b.converseToOpenAI(&converse))
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindJSONSerializeError, "failed to serialize translated Bedrock response", err)
	}
	if awsRequestID != "" {
		resp.Header.Set("x-request-id", awsRequestID)
	}
	resp.Header.Set("Content-Type", "application/json")
	restoreBody(resp, translated)
	return resp, nil
}

// converseToOpenAI builds the canonical unary envelope from a Converse
// response.
func (b *bedrockProvider) converseToOpenAI(converse *awsbedrock.ConverseOutput) *openai.ChatCompletionResponse {
	var content string
	if blocks := converse.Output.Message.Content; len(blocks) > 0 {
		content = blocks[0].Text
	}
	usage := converse.Usage
	if usage == nil {
		usage = &awsbedrock.TokenUsage{}
	}
	return &openai.ChatCompletionResponse{
		ID:      "chatcmpl-" + shortID(10),
		Object:  openai.ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   b.model,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionResponseMessage{
				Role:    "assistant",
				Content: content,
			},
			FinishReason: awsbedrock.StopReasonToOpenAI(converse.StopReason),
		}},
		Usage: openai.Usage{
			PromptTokens:            usage.InputTokens,
			CompletionTokens:        usage.OutputTokens,
			TotalTokens:             usage.TotalTokens,
			PromptTokensDetails:     &openai.PromptTokensDetails{},
			CompletionTokensDetails: &openai.CompletionTokensDetails{},
		},
		ServiceTier:       "default",
		SystemFingerprint: b.systemFingerprint,
		Metrics:           converse.Metrics,
	}
}

// newFingerprint generates the system fingerprint shared by all chunks of
// one streamed response.
func newFingerprint() string {
	return "fp_" + shortID(8)
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
