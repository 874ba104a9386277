// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"

	"github.com/magicapi/ai-gateway/internal/apischema/awsbedrock"
	"github.com/magicapi/ai-gateway/internal/apischema/openai"
)

const sseDone = "data: [DONE]\n\n"

// converseStreamTransformer decodes the application/vnd.amazon.eventstream
// frames of a converse-stream response and re-emits them as OpenAI SSE
// chat-completion chunks. It is owned by a single request and read from a
// single goroutine, so the firstChunk mutation on the provider needs no
// synchronization.
type converseStreamTransformer struct {
	src io.ReadCloser
	dec *eventstream.Decoder
	p   *bedrockProvider

	buf  bytes.Buffer
	done bool
}

func newConverseStreamTransformer(src io.ReadCloser, p *bedrockProvider) io.ReadCloser {
	return &converseStreamTransformer{src: src, dec: eventstream.NewDecoder(), p: p}
}

// Read implements io.Reader. It decodes frames until at least one SSE chunk
// is buffered or the upstream stream ends.
func (t *converseStreamTransformer) Read(out []byte) (int, error) {
	for t.buf.Len() == 0 && !t.done {
		msg, err := t.dec.Decode(t.src, nil)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// Includes checksum mismatches. The decoder cannot resync
				// past a framing error, so the stream ends here.
				t.p.logger.Warn("failed to decode bedrock event stream frame", "error", err)
			}
			t.done = true
			break
		}
		t.handle(msg.Payload)
	}
	if t.buf.Len() == 0 && t.done {
		return 0, io.EOF
	}
	return t.buf.Read(out)
}

// Close implements io.Closer.
func (t *converseStreamTransformer) Close() error { return t.src.Close() }

// handle appends the SSE representation of one decoded frame payload, if it
// is an event the gateway forwards. Malformed payloads are skipped; the next
// valid frame resumes normal operation.
func (t *converseStreamTransformer) handle(payload []byte) {
	var event awsbedrock.ConverseStreamEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		t.p.logger.Warn("skipping malformed bedrock stream event", "error", err)
		return
	}
	switch {
	case event.Delta != nil && event.Delta.Text != "":
		t.writeChunk(t.deltaChunk(event.Delta.Text))
	case event.Usage != nil:
		t.writeChunk(t.finalChunk(event.Usage))
		t.buf.WriteString(sseDone)
	}
}

func (t *converseStreamTransformer) writeChunk(chunk *openai.ChatCompletionChunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		t.p.logger.Warn("failed to serialize chat completion chunk", "error", err)
		return
	}
	t.buf.WriteString("data: ")
	t.buf.Write(data)
	t.buf.WriteString("\n\n")
}

// deltaChunk converts a contentBlockDelta event. The first content chunk
// carries the assistant role.
func (t *converseStreamTransformer) deltaChunk(text string) *openai.ChatCompletionChunk {
	delta := openai.ChatCompletionChunkDelta{Content: &text}
	if t.p.firstChunk {
		delta.Role = "assistant"
		t.p.firstChunk = false
	}
	return &openai.ChatCompletionChunk{
		ID:      "chatcmpl-bedrock",
		Object:  openai.ObjectChatCompletionChunk,
		Created: time.Now().Unix(),
		Model:   t.p.model,
		Choices: []openai.ChatCompletionChunkChoice{{
			Index: 0,
			Delta: delta,
		}},
		ServiceTier:       "default",
		SystemFingerprint: t.p.systemFingerprint,
	}
}

// finalChunk converts the terminal metadata event carrying usage.
func (t *converseStreamTransformer) finalChunk(usage *awsbedrock.TokenUsage) *openai.ChatCompletionChunk {
	finishReason := "stop"
	return &openai.ChatCompletionChunk{
		ID:      "chatcmpl-bedrock",
		Object:  openai.ObjectChatCompletionChunk,
		Created: time.Now().Unix(),
		Model:   t.p.model,
		Choices: []openai.ChatCompletionChunkChoice{{
			Index:        0,
			Delta:        openai.ChatCompletionChunkDelta{},
			FinishReason: &finishReason,
		}},
		Usage: &openai.Usage{
			PromptTokens:     usage.InputTokens,
			CompletionTokens: usage.OutputTokens,
			TotalTokens:      usage.TotalTokens,
		},
		ServiceTier:       "default",
		SystemFingerprint: t.p.systemFingerprint,
	}
}
