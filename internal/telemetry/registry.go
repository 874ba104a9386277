// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultExportWorkers = 8
	defaultExportQueue   = 1024
	exportTimeout        = 15 * time.Second
)

// Exporter receives completed request records. Exporters must tolerate
// concurrent calls; the registry runs them on a shared worker pool.
type Exporter interface {
	Name() string
	Export(ctx context.Context, m *RequestMetrics) error
}

type exportJob struct {
	exporter Exporter
	metrics  *RequestMetrics
}

// Registry fans request records out to exporters without ever blocking the
// caller. Records are queued per exporter; when the queue is full the oldest
// job is dropped to make room. Register all exporters before serving traffic
// and Close only after the server has drained.
type Registry struct {
	mu        sync.RWMutex
	exporters []Exporter

	debug  bool
	logger *slog.Logger

	queue   chan exportJob
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// NewRegistry builds a registry and starts its worker pool.
func NewRegistry(debug bool, logger *slog.Logger) *Registry {
	r := &Registry{
		debug:  debug,
		logger: logger,
		queue:  make(chan exportJob, defaultExportQueue),
	}
	for i := 0; i < defaultExportWorkers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Register adds an exporter to the fan-out set.
func (r *Registry) Register(e Exporter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exporters = append(r.exporters, e)
	r.logger.Info("registered telemetry exporter", "exporter", e.Name())
}

// Record queues m for every registered exporter and returns immediately.
func (r *Registry) Record(m *RequestMetrics) {
	if r.debug {
		r.logger.Debug("request metrics",
			"id", m.ID,
			"provider", m.Provider,
			"model", m.Model,
			"status_code", m.StatusCode,
			"total_latency", m.TotalLatency,
			"is_streaming", m.IsStreaming,
		)
	}

	r.mu.RLock()
	exporters := r.exporters
	r.mu.RUnlock()

	for _, e := range exporters {
		r.enqueue(exportJob{exporter: e, metrics: m})
	}
}

// enqueue never blocks: on a full queue it evicts the oldest pending job.
func (r *Registry) enqueue(job exportJob) {
	for {
		select {
		case r.queue <- job:
			return
		default:
		}
		select {
		case stale := <-r.queue:
			if n := r.dropped.Add(1); n%100 == 1 {
				r.logger.Warn("telemetry export queue full, dropping oldest record",
					"exporter", stale.exporter.Name(),
					"dropped_total", n,
				)
			}
		default:
		}
	}
}

// Dropped reports how many queued export jobs were evicted so far.
func (r *Registry) Dropped() int64 { return r.dropped.Load() }

func (r *Registry) worker() {
	defer r.wg.Done()
	for job := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		if err := job.exporter.Export(ctx, job.metrics); err != nil {
			r.logger.Error("telemetry export failed",
				"exporter", job.exporter.Name(),
				"request_id", job.metrics.ID,
				"error", err,
			)
		}
		cancel()
	}
}

// Close stops accepting records and waits for in-flight exports to finish.
func (r *Registry) Close() {
	close(r.queue)
	r.wg.Wait()
}
