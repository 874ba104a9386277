// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package proxy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"github.com/magicapi/ai-gateway/internal/gatewayerr"
)

const (
	signingService = "bedrock"
	amzTarget      = "bedrock-runtime.InvokeModel"
)

// signRequest computes the SigV4 headers for a Bedrock request using the
// caller-supplied credentials. The signed header set is host, content-type,
// x-amz-target and x-amz-content-sha256; the signer adds x-amz-date (current
// UTC instant) and authorization.
func signRequest(ctx context.Context, method, rawURL string, body []byte, accessKey, secretKey, region, host string) (http.Header, error) {
	req, err := http.NewRequest(method, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindHTTPBuildError, "failed to build signable request", err)
	}
	req.Host = host
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Amz-Target", amzTarget)

	payloadHash := sha256.Sum256(body)
	hashHex := hex.EncodeToString(payloadHash[:])
	req.Header.Set("X-Amz-Content-Sha256", hashHex)

	credentials := aws.Credentials{
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		Source:          "gateway-request-headers",
	}
	signer := v4.NewSigner()
	if err := signer.SignHTTP(ctx, credentials, req, hashHex, signingService, region, time.Now().UTC()); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindAWSSigningError, "failed to sign Bedrock request", err)
	}

	signed := req.Header.Clone()
	signed.Set("Host", host)
	return signed, nil
}
