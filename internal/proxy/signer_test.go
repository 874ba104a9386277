// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package proxy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignRequest(t *testing.T) {
	body := []byte(`{"messages":[],"inferenceConfig":{"maxTokens":1000,"temperature":0.7,"topP":1}}`)
	headers, err := signRequest(context.Background(),
		"POST",
		"https://bedrock-runtime.us-east-1.amazonaws.com/model/amazon.titan-text-premier-v1%3A0/converse",
		body,
		"AKIDEXAMPLE",
		"wJalrXUtnFEMI",
		"us-east-1",
		"bedrock-runtime.us-east-1.amazonaws.com",
	)
	require.NoError(t, err)

	authorization := headers.Get("Authorization")
	require.True(t, regexp.MustCompile(`^AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/\d{8}/us-east-1/bedrock/aws4_request`).MatchString(authorization))
	require.Contains(t, authorization, "SignedHeaders=")
	require.Contains(t, authorization, "Signature=")

	require.Regexp(t, `^\d{8}T\d{6}Z$`, headers.Get("X-Amz-Date"))
	require.Equal(t, "bedrock-runtime.InvokeModel", headers.Get("X-Amz-Target"))
	require.Equal(t, "application/json", headers.Get("Content-Type"))
	require.Equal(t, "bedrock-runtime.us-east-1.amazonaws.com", headers.Get("Host"))

	payloadHash := sha256.Sum256(body)
	require.Equal(t, hex.EncodeToString(payloadHash[:]), headers.Get("X-Amz-Content-Sha256"))
}

func TestSignRequestInvalidURL(t *testing.T) {
	_, err := signRequest(context.Background(), "POST", "://bad", nil, "AKID", "SECRET", "us-east-1", "host")
	require.Error(t, err)
}
