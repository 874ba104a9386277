// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"io"
	"log/slog"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/magicapi/ai-gateway/internal/config"
	"github.com/magicapi/ai-gateway/internal/proxy"
	"github.com/magicapi/ai-gateway/internal/server"
	"github.com/magicapi/ai-gateway/internal/telemetry"
	"github.com/magicapi/ai-gateway/internal/version"
)

// run starts the gateway and blocks until ctx is canceled or the listener
// fails. Telemetry exporters are registered up front: console in debug runs,
// Elasticsearch when a URL is configured, Prometheus always.
func run(ctx context.Context, c cmdRun, stdout, stderr io.Writer) error {
	cfg := c.config()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	runtime.GOMAXPROCS(cfg.ResolveWorkerThreads())

	resource := telemetry.Resource{
		ServiceName:           "ai-gateway",
		ServiceVersion:        version.Parse(),
		DeploymentEnvironment: cfg.DeploymentEnvironment,
	}

	registry := telemetry.NewRegistry(cfg.Debug, logger)
	defer registry.Close()

	if cfg.Debug {
		registry.Register(telemetry.NewConsoleExporter(stdout, resource))
	}
	if cfg.ElasticsearchURL != "" {
		registry.Register(telemetry.NewElasticsearchExporter(telemetry.ElasticsearchConfig{
			URL:      cfg.ElasticsearchURL,
			Username: cfg.ElasticsearchUsername,
			Password: cfg.ElasticsearchPassword,
			Index:    elasticsearchIndex(cfg),
			Resource: resource,
		}))
	}

	promRegistry := prometheus.NewRegistry()
	promExporter, err := telemetry.NewPrometheusExporter(promRegistry)
	if err != nil {
		return err
	}
	registry.Register(promExporter)

	srv := server.New(cfg, logger, proxy.New(cfg, logger), registry, promRegistry)
	return srv.Run(ctx)
}

func elasticsearchIndex(cfg *config.Config) string {
	if cfg.ElasticsearchIndex != "" {
		return cfg.ElasticsearchIndex
	}
	return config.DefaultElasticsearchIndex
}
