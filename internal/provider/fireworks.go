// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package provider

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/magicapi/ai-gateway/internal/gatewayerr"
)

// fireworksProvider proxies to the Fireworks inference API. The /v1 prefix
// of the caller path is already part of the base URL.
type fireworksProvider struct {
	passthrough
	logger *slog.Logger
}

func (f *fireworksProvider) Name() string { return "fireworks" }

func (f *fireworksProvider) BaseURL() string { return "https://api.fireworks.ai/inference/v1" }

func (f *fireworksProvider) TransformPath(path string) string {
	if strings.HasPrefix(path, "/v1/") {
		return strings.TrimPrefix(path, "/v1")
	}
	return path
}

// ProcessHeaders requires a well-formed, non-empty bearer credential.
func (f *fireworksProvider) ProcessHeaders(headers http.Header) (http.Header, error) {
	logTrackingHeaders(f.logger, headers)

	out := http.Header{}
	out.Set("Content-Type", "application/json")
	out.Set("Accept", "application/json")

	auth := headers.Get("Authorization")
	if auth == "" {
		return nil, gatewayerr.New(gatewayerr.KindMissingAPIKey, "missing authorization header for Fireworks request")
	}
	if _, err := bearerToken(auth); err != nil {
		return nil, err
	}
	out.Set("Authorization", auth)
	return out, nil
}
