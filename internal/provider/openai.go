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

// openaiProvider proxies to the OpenAI API. Requests and responses pass
// through unchanged apart from credential normalization.
type openaiProvider struct {
	passthrough
	logger *slog.Logger
}

func (o *openaiProvider) Name() string { return "openai" }

func (o *openaiProvider) BaseURL() string { return "https://api.openai.com" }

// ProcessHeaders forwards the caller's bearer credential, converting the
// x-magicapi-api-key alternate into an authorization header when present.
func (o *openaiProvider) ProcessHeaders(headers http.Header) (http.Header, error) {
	logTrackingHeaders(o.logger, headers)

	out := http.Header{}
	out.Set("Content-Type", "application/json")

	switch {
	case headers.Get("x-magicapi-api-key") != "":
		o.logger.Debug("using x-magicapi-api-key for authentication")
		out.Set("Authorization", "Bearer "+headers.Get("x-magicapi-api-key"))
	case headers.Get("Authorization") != "":
		out.Set("Authorization", headers.Get("Authorization"))
	default:
		return nil, gatewayerr.New(gatewayerr.KindMissingAPIKey, "no authorization header found for OpenAI request")
	}
	return out, nil
}
