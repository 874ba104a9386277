// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	// Metric names, attributes and values according to the Semantic Conventions for Generative AI Metrics.
	// See: https://opentelemetry.io/docs/specs/semconv/gen-ai/gen-ai-metrics/

	genaiMetricClientTokenUsage       = "gen_ai.client.token.usage" // #nosec G101: Potential hardcoded credentials
	genaiMetricServerRequestDuration  = "gen_ai.server.request.duration"
	genaiMetricServerTimeToFirstToken = "gen_ai.server.time_to_first_token" // #nosec G101: Potential hardcoded credentials

	genaiAttributeOperationName = "gen_ai.operation.name"
	genaiAttributeSystemName    = "gen_ai.system.name"
	genaiAttributeRequestModel  = "gen_ai.request.model"
	genaiAttributeTokenType     = "gen_ai.token.type" // #nosec G101: Potential hardcoded credentials
	genaiAttributeErrorType     = "error.type"

	genaiOperationChat     = "chat"
	genaiTokenTypeInput    = "input"
	genaiTokenTypeOutput   = "output"
	genaiTokenTypeTotal    = "total"
	genaiErrorTypeFallback = "_OTHER"
)

// genAI holds the instruments published on the admin /metrics endpoint.
type genAI struct {
	// tokenUsage counts tokens processed, partitioned by token type.
	// See: https://opentelemetry.io/docs/specs/semconv/gen-ai/gen-ai-metrics/#metric-gen_aiclienttokenusage
	tokenUsage metric.Float64Histogram
	// requestLatency is the wall time of the whole proxied request.
	// See: https://opentelemetry.io/docs/specs/semconv/gen-ai/gen-ai-metrics/#metric-gen_aiserverrequestduration
	requestLatency metric.Float64Histogram
	// firstTokenLatency is the time to the first response byte of a stream.
	// See: https://opentelemetry.io/docs/specs/semconv/gen-ai/gen-ai-metrics/#metric-gen_aiservertime_to_first_token
	firstTokenLatency metric.Float64Histogram
}

func newGenAI(meter metric.Meter) (*genAI, error) {
	tokenUsage, err := meter.Float64Histogram(genaiMetricClientTokenUsage,
		metric.WithDescription("Number of tokens processed."),
		metric.WithUnit("{token}"),
		metric.WithExplicitBucketBoundaries(1, 4, 16, 64, 256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864),
	)
	if err != nil {
		return nil, err
	}
	requestLatency, err := meter.Float64Histogram(genaiMetricServerRequestDuration,
		metric.WithDescription("Time spent processing request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.02, 0.04, 0.08, 0.16, 0.32, 0.64, 1.28, 2.56, 5.12, 10.24, 20.48, 40.96, 81.92),
	)
	if err != nil {
		return nil, err
	}
	firstTokenLatency, err := meter.Float64Histogram(genaiMetricServerTimeToFirstToken,
		metric.WithDescription("Time to receive first token in streaming responses."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.02, 0.04, 0.06, 0.08, 0.1, 0.25, 0.5, 0.75, 1.0, 2.5, 5.0, 7.5, 10.0),
	)
	if err != nil {
		return nil, err
	}
	return &genAI{
		tokenUsage:        tokenUsage,
		requestLatency:    requestLatency,
		firstTokenLatency: firstTokenLatency,
	}, nil
}

// PrometheusExporter aggregates request records into GenAI semantic
// convention histograms, exposed through the given Prometheus registry.
type PrometheusExporter struct {
	metrics *genAI
}

// NewPrometheusExporter wires an OTel meter provider to registerer and
// registers the GenAI instruments on it.
func NewPrometheusExporter(registerer prometheus.Registerer) (*PrometheusExporter, error) {
	reader, err := otelprom.New(otelprom.WithRegisterer(registerer))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("github.com/magicapi/ai-gateway")
	metrics, err := newGenAI(meter)
	if err != nil {
		return nil, err
	}
	return &PrometheusExporter{metrics: metrics}, nil
}

func (p *PrometheusExporter) Name() string { return "prometheus" }

func (p *PrometheusExporter) Export(ctx context.Context, m *RequestMetrics) error {
	attrs := []attribute.KeyValue{
		attribute.Key(genaiAttributeOperationName).String(genaiOperationChat),
		attribute.Key(genaiAttributeSystemName).String(m.Provider),
		attribute.Key(genaiAttributeRequestModel).String(m.Model),
	}

	if m.InputTokens != nil {
		p.recordTokens(ctx, *m.InputTokens, genaiTokenTypeInput, attrs)
	}
	if m.OutputTokens != nil {
		p.recordTokens(ctx, *m.OutputTokens, genaiTokenTypeOutput, attrs)
	}
	if m.TotalTokens != nil {
		p.recordTokens(ctx, *m.TotalTokens, genaiTokenTypeTotal, attrs)
	}

	latencyAttrs := attrs
	if m.ErrorCount > 0 {
		// No typed error taxonomy with low cardinality yet, so record the
		// semconv fallback value.
		// See: https://opentelemetry.io/docs/specs/semconv/attributes-registry/error/#error-type
		latencyAttrs = append(latencyAttrs, attribute.Key(genaiAttributeErrorType).String(genaiErrorTypeFallback))
	}
	p.metrics.requestLatency.Record(ctx, m.TotalLatency.Seconds(), metric.WithAttributes(latencyAttrs...))
	if m.IsStreaming && m.TTFB > 0 {
		p.metrics.firstTokenLatency.Record(ctx, m.TTFB.Seconds(), metric.WithAttributes(attrs...))
	}
	return nil
}

func (p *PrometheusExporter) recordTokens(ctx context.Context, count int64, tokenType string, attrs []attribute.KeyValue) {
	p.metrics.tokenUsage.Record(ctx, float64(count),
		metric.WithAttributes(attrs...),
		metric.WithAttributes(attribute.Key(genaiAttributeTokenType).String(tokenType)),
	)
}
