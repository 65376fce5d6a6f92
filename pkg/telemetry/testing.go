// ABOUTME: Telemetry constructors for tests: disabled telemetry or a real provider writing to a buffer
// ABOUTME: Lets tests exercise real components with and without an SDK pipeline behind them

package telemetry

import (
	"io"
	"time"
)

// NewForTesting returns a no-op telemetry instance for use in tests.
func NewForTesting() Telemetry {
	return NewNoop()
}

// NewDisabled is an alias for NewNoop for scenarios where
// telemetry should be explicitly disabled.
func NewDisabled() Telemetry {
	return NewNoop()
}

// NewStdoutForTesting returns a real provider that exports metrics and
// spans to w when shut down. Export intervals are long so nothing is
// written before Shutdown.
func NewStdoutForTesting(w io.Writer) (Telemetry, error) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Exporters = []string{ExporterStdout}
	cfg.ExportInterval = time.Hour
	cfg.BatchTimeout = time.Hour
	cfg.Output = w
	return New(cfg)
}
