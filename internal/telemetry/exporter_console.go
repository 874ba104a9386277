// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// ConsoleExporter prints each record twice: the raw metrics and the log
// envelope that a remote store would receive. It is intended for debug runs.
type ConsoleExporter struct {
	mu  sync.Mutex
	out io.Writer
	res Resource
}

// NewConsoleExporter writes records to out, typically stdout.
func NewConsoleExporter(out io.Writer, res Resource) *ConsoleExporter {
	return &ConsoleExporter{out: out, res: res}
}

func (c *ConsoleExporter) Name() string { return "console" }

func (c *ConsoleExporter) Export(_ context.Context, m *RequestMetrics) error {
	record, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metrics record: %w", err)
	}
	envelope, err := json.MarshalIndent(NewEnvelope(m, c.res), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode log envelope: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = fmt.Fprintf(c.out, "=== Request Metrics ===\n%s\n=== Log Envelope ===\n%s\n", record, envelope)
	return err
}
