// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package provider

import (
	"log/slog"
	"net/http"

	"github.com/magicapi/ai-gateway/internal/gatewayerr"
)

// groqProvider proxies to the Groq OpenAI-compatible API.
type groqProvider struct {
	passthrough
	logger *slog.Logger
}

func (g *groqProvider) Name() string { return "groq" }

func (g *groqProvider) BaseURL() string { return "https://api.groq.com/openai" }

func (g *groqProvider) ProcessHeaders(headers http.Header) (http.Header, error) {
	logTrackingHeaders(g.logger, headers)

	out := http.Header{}
	out.Set("Content-Type", "application/json")

	auth := headers.Get("Authorization")
	if auth == "" {
		return nil, gatewayerr.New(gatewayerr.KindMissingAPIKey, "no authorization header found for Groq request")
	}
	out.Set("Authorization", auth)
	return out, nil
}
