// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package provider defines the upstream-provider capability set and its six
// implementations. A Provider instance is constructed fresh for every
// request, so implementations are free to hold per-request state (the
// Bedrock model/fingerprint/stream flag) without synchronization.
package provider

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/magicapi/ai-gateway/internal/gatewayerr"
)

// Provider abstracts a single upstream LLM service. All methods are invoked
// sequentially for one request by the proxy pipeline.
type Provider interface {
	// Name returns the stable lowercase identifier.
	Name() string
	// BaseURL returns scheme+host+optional prefix of the upstream.
	BaseURL() string
	// TransformPath rewrites the caller-facing path to the upstream path.
	TransformPath(path string) string
	// ProcessHeaders builds the outbound header set from the inbound one.
	ProcessHeaders(headers http.Header) (http.Header, error)
	// PrepareRequestBody optionally rewrites the outbound body.
	PrepareRequestBody(body []byte) ([]byte, error)
	// BeforeRequest captures per-request state from headers and body before
	// any other transformation runs.
	BeforeRequest(headers http.Header, body []byte) error
	// ProcessResponse optionally rewrites the upstream response.
	ProcessResponse(resp *http.Response) (*http.Response, error)
	// RequiresSigning reports whether the outbound request must be SigV4-signed.
	RequiresSigning() bool
	// SigningCredentials extracts signing material from the inbound headers.
	SigningCredentials(headers http.Header) (accessKey, secretKey, region string, ok bool)
	// SigningHost returns the host to embed in the SigV4 signature.
	SigningHost() string
}

// Options configures provider construction.
type Options struct {
	// Logger receives tracking-header and transformation logs.
	Logger *slog.Logger
	// DefaultAWSRegion is the Bedrock region when the caller supplies none.
	DefaultAWSRegion string
}

// New returns a fresh Provider for the given name. Unknown names yield an
// UnsupportedProvider error.
func New(name string, opts Options) (Provider, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	switch strings.ToLower(name) {
	case "openai":
		return &openaiProvider{logger: opts.Logger}, nil
	case "anthropic":
		return &anthropicProvider{logger: opts.Logger}, nil
	case "bedrock":
		return newBedrockProvider(opts), nil
	case "groq":
		return &groqProvider{logger: opts.Logger}, nil
	case "fireworks":
		return &fireworksProvider{logger: opts.Logger}, nil
	case "together":
		return &togetherProvider{logger: opts.Logger}, nil
	default:
		return nil, gatewayerr.Newf(gatewayerr.KindUnsupportedProvider, "unsupported provider %q", name)
	}
}

// TrackingHeaders are caller-supplied identifiers that are logged for
// observability and copied into telemetry, never forwarded upstream.
var TrackingHeaders = []string{
	"x-project-id",
	"x-organization-id",
	"x-organisation-id",
	"x-user-id",
	"x-experiment-id",
}

// logTrackingHeaders logs the tracking headers present on the request.
// Every ProcessHeaders implementation calls this so the handling stays
// consistent across providers.
func logTrackingHeaders(logger *slog.Logger, headers http.Header) {
	for _, name := range TrackingHeaders {
		if v := headers.Get(name); v != "" {
			logger.Debug("tracking header", "name", name, "value", v)
		}
	}
}

// passthrough supplies the no-op defaults of the capability set. Providers
// embed it and override only what they need.
type passthrough struct{}

func (passthrough) TransformPath(path string) string { return path }

func (passthrough) PrepareRequestBody(body []byte) ([]byte, error) { return body, nil }

func (passthrough) BeforeRequest(http.Header, []byte) error { return nil }

func (passthrough) ProcessResponse(resp *http.Response) (*http.Response, error) { return resp, nil }

func (passthrough) RequiresSigning() bool { return false }

func (passthrough) SigningCredentials(http.Header) (string, string, string, bool) {
	return "", "", "", false
}

func (passthrough) SigningHost() string { return "" }

// bearerToken validates an authorization header value of the form
// "Bearer <token>" and returns the token.
func bearerToken(auth string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", gatewayerr.New(gatewayerr.KindInvalidHeader, "authorization header must start with 'Bearer '")
	}
	token := auth[len(prefix):]
	if strings.TrimSpace(token) == "" {
		return "", gatewayerr.New(gatewayerr.KindInvalidHeader, "empty bearer token in authorization header")
	}
	return token, nil
}
