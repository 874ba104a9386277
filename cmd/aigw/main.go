// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/magicapi/ai-gateway/internal/config"
	"github.com/magicapi/ai-gateway/internal/version"
)

type (
	// cmd corresponds to the top-level `aigw` command.
	cmd struct {
		// Version is the sub-command to show the version.
		Version struct{} `cmd:"" help:"Show version."`
		// Run is the sub-command parsed by the `cmdRun` struct.
		Run cmdRun `cmd:"" help:"Run the AI Gateway."`
		// Healthcheck is the sub-command to check if the gateway is healthy.
		Healthcheck cmdHealthcheck `cmd:"" help:"Docker HEALTHCHECK command."`
	}
	// cmdRun corresponds to the `aigw run` command. Every flag binds to an
	// environment variable so container deployments need no arguments.
	cmdRun struct {
		Debug                bool   `env:"DEBUG" help:"Enable debug logging and the console telemetry exporter."`
		Port                 int    `env:"PORT" default:"3000" help:"Port the gateway listens on."`
		Host                 string `env:"HOST" default:"127.0.0.1" help:"Address the gateway binds to."`
		WorkerThreads        int    `env:"WORKER_THREADS" help:"Caps GOMAXPROCS. Defaults from the CPU count."`
		MaxConnections       int    `env:"MAX_CONNECTIONS" default:"10000" help:"Idle upstream connection limit."`
		TCPKeepaliveInterval int    `env:"TCP_KEEPALIVE_INTERVAL" name:"tcp-keepalive-interval" default:"30" help:"Outbound TCP keepalive period in seconds."`
		TCPNodelay           bool   `env:"TCP_NODELAY" name:"tcp-nodelay" default:"true" negatable:"" help:"Disable Nagle's algorithm on outbound connections."`
		BufferSize           int    `env:"BUFFER_SIZE" default:"8192" help:"Read/write buffer size of the upstream transport in bytes."`

		ElasticsearchURL      string `env:"ELASTICSEARCH_URL" name:"elasticsearch-url" help:"Enables the Elasticsearch telemetry exporter when set."`
		ElasticsearchUsername string `env:"ELASTICSEARCH_USERNAME" name:"elasticsearch-username" help:"Basic auth username for Elasticsearch."`
		ElasticsearchPassword string `env:"ELASTICSEARCH_PASSWORD" name:"elasticsearch-password" help:"Basic auth password for Elasticsearch."`
		ElasticsearchIndex    string `env:"ELASTICSEARCH_INDEX" name:"elasticsearch-index" default:"ai-gateway-metrics" help:"Index request logs are written to."`

		AWSRegion          string `env:"AWS_REGION" name:"aws-region" default:"us-east-1" help:"Default Bedrock region."`
		AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" name:"aws-access-key-id" help:"Fallback Bedrock signing access key."`
		AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" name:"aws-secret-access-key" help:"Fallback Bedrock signing secret key."`

		DeploymentEnvironment string `env:"DEPLOYMENT_ENVIRONMENT" name:"deployment-environment" default:"development" help:"Environment stamped into telemetry records."`
	}
	// cmdHealthcheck corresponds to the `aigw healthcheck` command.
	cmdHealthcheck struct {
		Port int `env:"PORT" default:"3000" help:"Port the gateway listens on."`
	}
)

// config converts the parsed flags into the runtime configuration.
func (c *cmdRun) config() *config.Config {
	return &config.Config{
		Port:                  c.Port,
		Host:                  c.Host,
		WorkerThreads:         c.WorkerThreads,
		MaxConnections:        c.MaxConnections,
		TCPKeepaliveInterval:  c.TCPKeepaliveInterval,
		TCPNoDelay:            c.TCPNodelay,
		BufferSize:            c.BufferSize,
		ElasticsearchURL:      c.ElasticsearchURL,
		ElasticsearchUsername: c.ElasticsearchUsername,
		ElasticsearchPassword: c.ElasticsearchPassword,
		ElasticsearchIndex:    c.ElasticsearchIndex,
		AWSRegion:             c.AWSRegion,
		AWSAccessKeyID:        c.AWSAccessKeyID,
		AWSSecretAccessKey:    c.AWSSecretAccessKey,
		DeploymentEnvironment: c.DeploymentEnvironment,
		Debug:                 c.Debug,
	}
}

type (
	runFn         func(context.Context, cmdRun, io.Writer, io.Writer) error
	healthcheckFn func(context.Context, int, io.Writer, io.Writer) error
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	doMain(ctx, os.Stdout, os.Stderr, os.Args[1:], os.Exit, run, healthcheck)
}

// doMain parses the command line and dispatches. The writers, exit function,
// and command implementations are injectable for testing.
func doMain(ctx context.Context, stdout, stderr io.Writer, args []string, exitFn func(int),
	rf runFn,
	hf healthcheckFn,
) {
	var c cmd
	parser, err := kong.New(&c,
		kong.Name("aigw"),
		kong.Description("MagicAPI AI Gateway"),
		kong.Writers(stdout, stderr),
		kong.Exit(exitFn),
	)
	if err != nil {
		log.Fatalf("Error creating parser: %v", err)
	}
	parsed, err := parser.Parse(args)
	parser.FatalIfErrorf(err)
	switch parsed.Command() {
	case "version":
		_, _ = fmt.Fprintf(stdout, "MagicAPI AI Gateway: %s\n", version.Parse())
	case "run":
		if err := rf(ctx, c.Run, stdout, stderr); err != nil {
			log.Fatalf("Error running: %v", err)
		}
	case "healthcheck":
		if err := hf(ctx, c.Healthcheck.Port, stdout, stderr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
	default:
		panic("unreachable")
	}
}
