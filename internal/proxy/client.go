// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package proxy

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/magicapi/ai-gateway/internal/config"
)

const (
	clientRequestTimeout  = 30 * time.Second
	clientConnectTimeout  = 10 * time.Second
	clientIdleConnTimeout = 30 * time.Second
)

// NewClient builds the single process-wide outbound client. All request
// pipelines share it; the transport is internally synchronized.
func NewClient(cfg *config.Config) *http.Client {
	dialer := &net.Dialer{
		Timeout:   clientConnectTimeout,
		KeepAlive: time.Duration(cfg.TCPKeepaliveInterval) * time.Second,
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tcp, ok := conn.(*net.TCPConn); ok {
				_ = tcp.SetNoDelay(cfg.TCPNoDelay)
			}
			return conn, nil
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxConnections,
		MaxIdleConnsPerHost:   cfg.MaxConnections,
		IdleConnTimeout:       clientIdleConnTimeout,
		TLSHandshakeTimeout:   clientConnectTimeout,
		ExpectContinueTimeout: time.Second,
		ReadBufferSize:        cfg.BufferSize,
		WriteBufferSize:       cfg.BufferSize,
	}
	return &http.Client{Transport: transport, Timeout: clientRequestTimeout}
}
