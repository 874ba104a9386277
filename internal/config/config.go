// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package config holds the environment-driven gateway configuration. All
// settings are optional with documented defaults; the CLI binds them from
// environment variables via kong.
package config

import "runtime"

// Config is the resolved gateway configuration.
type Config struct {
	// Port the HTTP surface listens on.
	Port int
	// Host the HTTP surface binds to.
	Host string
	// WorkerThreads caps GOMAXPROCS. Zero means DefaultWorkerThreads().
	WorkerThreads int
	// MaxConnections bounds idle upstream connections per host.
	MaxConnections int
	// TCPKeepaliveInterval is the outbound TCP keepalive period in seconds.
	TCPKeepaliveInterval int
	// TCPNoDelay disables Nagle's algorithm on outbound connections.
	TCPNoDelay bool
	// BufferSize is the read/write buffer size of the upstream transport.
	BufferSize int

	// ElasticsearchURL enables the Elasticsearch exporter when non-empty.
	ElasticsearchURL      string
	ElasticsearchUsername string
	ElasticsearchPassword string
	ElasticsearchIndex    string

	// AWSRegion is the default Bedrock region when the caller supplies none.
	AWSRegion string
	// AWSAccessKeyID and AWSSecretAccessKey are the fallback signing
	// credentials when the caller supplies none in headers.
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// DeploymentEnvironment is stamped into telemetry resource attributes.
	DeploymentEnvironment string

	// Debug enables verbose logging and the console exporter.
	Debug bool
}

// Defaults for the settings above.
const (
	DefaultPort                  = 3000
	DefaultHost                  = "127.0.0.1"
	DefaultMaxConnections        = 10000
	DefaultTCPKeepaliveInterval  = 30
	DefaultBufferSize            = 8 * 1024
	DefaultElasticsearchIndex    = "ai-gateway-metrics"
	DefaultAWSRegion             = "us-east-1"
	DefaultDeploymentEnvironment = "development"
)

// DefaultWorkerThreads derives the worker count from the CPU count: twice
// the cores on small machines, cores+4 otherwise.
func DefaultWorkerThreads() int {
	cores := runtime.NumCPU()
	if cores <= 4 {
		return cores * 2
	}
	return cores + 4
}

// ResolveWorkerThreads returns the configured worker count, falling back to
// the CPU-derived default.
func (c *Config) ResolveWorkerThreads() int {
	if c.WorkerThreads > 0 {
		return c.WorkerThreads
	}
	return DefaultWorkerThreads()
}
