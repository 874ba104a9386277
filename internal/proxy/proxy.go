// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package proxy implements the per-request pipeline: provider resolution,
// header/path/body transformation, optional SigV4 signing, dispatch via the
// shared client pool, and response translation.
package proxy

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/magicapi/ai-gateway/internal/config"
	"github.com/magicapi/ai-gateway/internal/gatewayerr"
	"github.com/magicapi/ai-gateway/internal/provider"
)

// Proxy forwards caller requests to upstream providers. One instance serves
// all requests; per-request state lives in the provider instances it builds.
type Proxy struct {
	client       *http.Client
	logger       *slog.Logger
	providerOpts provider.Options

	// Fallback signing credentials from the environment, used when the
	// caller supplies none in headers.
	awsAccessKeyID     string
	awsSecretAccessKey string
	awsRegion          string
}

// New builds a Proxy around the shared outbound client.
func New(cfg *config.Config, logger *slog.Logger) *Proxy {
	return &Proxy{
		client: NewClient(cfg),
		logger: logger,
		providerOpts: provider.Options{
			Logger:           logger,
			DefaultAWSRegion: cfg.AWSRegion,
		},
		awsAccessKeyID:     cfg.AWSAccessKeyID,
		awsSecretAccessKey: cfg.AWSSecretAccessKey,
		awsRegion:          cfg.AWSRegion,
	}
}

// Execute runs the pipeline for one request. The body is fully buffered by
// the caller. Steps run strictly in order and any error short-circuits; the
// pipeline never retries upstream requests.
func (p *Proxy) Execute(ctx context.Context, providerName string, r *http.Request, body []byte) (*http.Response, error) {
	prov, err := provider.New(providerName, p.providerOpts)
	if err != nil {
		return nil, err
	}

	p.logger.Info("proxying request",
		"provider", prov.Name(),
		"method", r.Method,
		"path", r.URL.Path,
	)

	if err := prov.BeforeRequest(r.Header, body); err != nil {
		return nil, err
	}
	headers, err := prov.ProcessHeaders(r.Header)
	if err != nil {
		return nil, err
	}
	path := prov.TransformPath(r.URL.Path)
	outBody, err := prov.PrepareRequestBody(body)
	if err != nil {
		return nil, err
	}

	url := prov.BaseURL() + path
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	if prov.RequiresSigning() {
		signed, err := p.sign(ctx, prov, r, url, outBody, headers)
		if err != nil {
			return nil, err
		}
		headers = signed
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, url, bytes.NewReader(outBody))
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindHTTPBuildError, "failed to build upstream request", err)
	}
	req.Header = headers
	if host := headers.Get("Host"); host != "" {
		req.Host = host
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamRequestFailure, "request to provider failed", err)
	}
	return prov.ProcessResponse(resp)
}

// sign computes SigV4 headers for the outbound request and merges them over
// the provider's header set. Caller-supplied credentials win; environment
// credentials are the fallback. With neither, the request goes out unsigned
// and the upstream rejects it.
func (p *Proxy) sign(ctx context.Context, prov provider.Provider, r *http.Request, url string, body []byte, headers http.Header) (http.Header, error) {
	accessKey, secretKey, region, ok := prov.SigningCredentials(r.Header)
	if !ok {
		if p.awsAccessKeyID == "" || p.awsSecretAccessKey == "" {
			p.logger.Warn("no signing credentials available, forwarding unsigned", "provider", prov.Name())
			return headers, nil
		}
		accessKey, secretKey = p.awsAccessKeyID, p.awsSecretAccessKey
		region = p.awsRegion
		if region == "" {
			region = config.DefaultAWSRegion
		}
	}

	signed, err := signRequest(ctx, r.Method, url, body, accessKey, secretKey, region, prov.SigningHost())
	if err != nil {
		return nil, err
	}
	merged := headers.Clone()
	for name, values := range signed {
		merged[name] = values
	}
	return merged, nil
}
