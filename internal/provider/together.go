// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package provider

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/magicapi/ai-gateway/internal/gatewayerr"
)

// togetherProvider proxies to the Together API.
type togetherProvider struct {
	passthrough
	logger *slog.Logger
}

func (t *togetherProvider) Name() string { return "together" }

func (t *togetherProvider) BaseURL() string { return "https://api.together.xyz" }

// ProcessHeaders requires a well-formed, non-empty bearer credential.
func (t *togetherProvider) ProcessHeaders(headers http.Header) (http.Header, error) {
	logTrackingHeaders(t.logger, headers)

	out := http.Header{}
	out.Set("Content-Type", "application/json")

	auth := headers.Get("Authorization")
	if auth == "" {
		return nil, gatewayerr.New(gatewayerr.KindMissingAPIKey, "missing bearer token in authorization header for Together request")
	}
	if _, err := bearerToken(auth); err != nil {
		return nil, err
	}
	out.Set("Authorization", auth)
	return out, nil
}

// ProcessResponse guarantees an x-request-id header: the upstream value when
// present, the response body id for unary JSON responses, or a synthesized
// req_<uuid> otherwise.
func (t *togetherProvider) ProcessResponse(resp *http.Response) (*http.Response, error) {
	if resp.Header.Get("x-request-id") != "" {
		return resp, nil
	}

	requestID := ""
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, gatewayerr.Wrap(gatewayerr.KindIOError, "failed to read Together response body", err)
		}
		requestID = gjson.GetBytes(body, "id").String()
		restoreBody(resp, body)
	}
	if requestID == "" {
		requestID = "req_" + uuid.NewString()
	}
	resp.Header.Set("x-request-id", requestID)
	return resp, nil
}
