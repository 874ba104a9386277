// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package server exposes the gateway's HTTP surface: the proxied /v1/ tree,
// the /health probe, and the Prometheus /metrics endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/magicapi/ai-gateway/internal/config"
	"github.com/magicapi/ai-gateway/internal/gatewayerr"
	"github.com/magicapi/ai-gateway/internal/proxy"
	"github.com/magicapi/ai-gateway/internal/telemetry"
	"github.com/magicapi/ai-gateway/internal/version"
)

const shutdownTimeout = 30 * time.Second

// Server ties the proxy pipeline, telemetry middleware, and admin endpoints
// into one listener.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	proxy    *proxy.Proxy
	registry *telemetry.Registry
	gatherer prometheus.Gatherer
}

// New builds a Server. gatherer may be nil to disable /metrics.
func New(cfg *config.Config, logger *slog.Logger, p *proxy.Proxy, registry *telemetry.Registry, gatherer prometheus.Gatherer) *Server {
	return &Server{cfg: cfg, logger: logger, proxy: p, registry: registry, gatherer: gatherer}
}

// Handler assembles the route table. Everything under /v1/ is proxied and
// observed; /health and /metrics bypass telemetry.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.Handle("/v1/", telemetry.NewMiddleware(http.HandlerFunc(s.handleProxy), s.registry, s.logger))
	return corsMiddleware(mux)
}

// Run serves until ctx is canceled, then drains connections for up to
// shutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	s.logger.Info("AI Gateway listening",
		"addr", addr,
		"version", version.Parse(),
		"workers", s.cfg.ResolveWorkerThreads(),
	)

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version.Parse(),
	})
}

// handleProxy terminates the caller request, runs the provider pipeline, and
// relays the upstream response. SSE responses are flushed chunk by chunk.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	providerName := r.Header.Get("x-provider")
	if providerName == "" {
		providerName = "openai"
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		gatewayerr.WriteJSON(w, gatewayerr.Wrap(gatewayerr.KindIOError, "failed to read request body", err))
		return
	}

	resp, err := s.proxy.Execute(r.Context(), providerName, r, body)
	if err != nil {
		s.logger.Error("request failed",
			"provider", providerName,
			"path", r.URL.Path,
			"error", err,
		)
		gatewayerr.WriteJSON(w, err)
		return
	}
	defer resp.Body.Close()

	s.relay(w, r, resp)
}

func (s *Server) relay(w http.ResponseWriter, r *http.Request, resp *http.Response) {
	header := w.Header()
	for name, values := range resp.Header {
		// The stack re-derives framing; a stale upstream length would
		// truncate rewritten bodies.
		if name == "Content-Length" || name == "Transfer-Encoding" || name == "Connection" {
			continue
		}
		header[name] = values
	}

	if header.Get("x-request-id") == "" {
		if id := resp.Header.Get("request-id"); id != "" {
			header.Set("x-request-id", id)
		} else {
			header.Set("x-request-id", "req_"+uuid.NewString())
		}
	}

	streaming := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream")
	if streaming {
		header.Set("Cache-Control", "no-cache")
		header.Set("X-Accel-Buffering", "no")
	} else if resp.ContentLength >= 0 {
		header.Set("Content-Length", fmt.Sprintf("%d", resp.ContentLength))
	}

	w.WriteHeader(resp.StatusCode)

	if streaming {
		s.relayStream(w, r, resp.Body)
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Warn("client disconnected during response relay", "error", err)
	}
}

// relayStream forwards SSE bytes as they arrive, flushing after every read
// so the client sees tokens without buffering delay.
func (s *Server) relayStream(w http.ResponseWriter, r *http.Request, body io.Reader) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, s.cfg.BufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				s.logger.Warn("client disconnected during stream", "error", werr)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF && r.Context().Err() == nil {
				s.logger.Warn("upstream stream ended with error", "error", err)
			}
			return
		}
	}
}
