// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package telemetry

import "encoding/json"

// Downstream log stores map each attribute to a single type, so structured
// message content (multimodal arrays, content-part objects) is flattened to
// its JSON text before export.

// sanitizePayload rewrites messages[].content values that are not plain
// strings into their JSON string form. The input is returned unchanged when
// it does not look like a chat-completion request.
func sanitizePayload(payload any) any {
	obj, ok := payload.(map[string]any)
	if !ok {
		return payload
	}
	messages, ok := obj["messages"].([]any)
	if !ok {
		return payload
	}
	for _, raw := range messages {
		message, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		flattenContent(message, "content")
	}
	return obj
}

// sanitizeStreamedData applies the same flattening to
// choices[].delta.content in accumulated stream chunks.
func sanitizeStreamedData(chunks []any) []any {
	for _, raw := range chunks {
		chunk, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		choices, ok := chunk["choices"].([]any)
		if !ok {
			continue
		}
		for _, rawChoice := range choices {
			choice, ok := rawChoice.(map[string]any)
			if !ok {
				continue
			}
			if delta, ok := choice["delta"].(map[string]any); ok {
				flattenContent(delta, "content")
			}
		}
	}
	return chunks
}

func flattenContent(obj map[string]any, key string) {
	value, ok := obj[key]
	if !ok || value == nil {
		return
	}
	if _, isString := value.(string); isString {
		return
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return
	}
	obj[key] = string(encoded)
}
