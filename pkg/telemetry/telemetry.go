// ABOUTME: Core telemetry abstraction over OpenTelemetry for sstkit table build and read instrumentation
// ABOUTME: Provides metric recording, tracing, and lifecycle management with a no-op fallback

package telemetry

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides the core abstraction over OpenTelemetry for sstkit components.
// Components record metrics and spans through it without depending on the SDK.
type Telemetry interface {
	// RecordHistogram records a histogram value with optional attributes.
	RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue)

	// RecordCounter records a counter increment with optional attributes.
	RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue)

	// StartSpan creates a new tracing span with the given name and attributes.
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)

	// Shutdown flushes pending data and shuts down all providers.
	Shutdown(ctx context.Context) error
}

// MetricsWriter is implemented by telemetry that can render its current
// metrics on demand.
type MetricsWriter interface {
	WriteMetrics(w io.Writer) error
}

// ErrNoMetricsRegistry is returned by WriteMetrics when the prometheus
// exporter is not configured.
var ErrNoMetricsRegistry = errors.New("metrics require the prometheus exporter")

// NoopTelemetry provides a no-operation implementation of Telemetry for testing or disabled scenarios.
type NoopTelemetry struct{}

// NewNoop creates a new no-operation telemetry instance.
func NewNoop() Telemetry {
	return &NoopTelemetry{}
}

// RecordHistogram is a no-op.
func (n *NoopTelemetry) RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
}

// RecordCounter is a no-op.
func (n *NoopTelemetry) RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
}

// StartSpan returns the original context and the span it already carries.
func (n *NoopTelemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

// Shutdown is a no-op.
func (n *NoopTelemetry) Shutdown(ctx context.Context) error {
	return nil
}

// RecordDuration records the time elapsed since start, in seconds, in a histogram.
func RecordDuration(ctx context.Context, tel Telemetry, name string, start time.Time, attrs ...attribute.KeyValue) {
	tel.RecordHistogram(ctx, name, time.Since(start).Seconds(), attrs...)
}

// RecordBytes records a byte count in a counter.
func RecordBytes(ctx context.Context, tel Telemetry, name string, bytes int64, attrs ...attribute.KeyValue) {
	tel.RecordCounter(ctx, name, bytes, attrs...)
}

// Common attribute keys
const (
	AttrOperationType = "operation.type"
	AttrComponent     = "component"
	AttrStatus        = "status"
	AttrTableID       = "table.id"
	AttrBlockIndex    = "block.index"
	AttrCompression   = "compression"
)

// Common attribute values
const (
	// Operation types
	OpTypeBuild  = "build"
	OpTypeOpen   = "open"
	OpTypeInfo   = "info"
	OpTypeGet    = "get"
	OpTypeSeek   = "seek"
	OpTypeScan   = "scan"
	OpTypeVerify = "verify"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Component names
	ComponentSSTable = "sstable"
	ComponentCache   = "cache"
	ComponentStorage = "storage"
	ComponentCLI     = "sstdump"
)
