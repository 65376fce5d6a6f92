package sstable

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KevoDB/sstkit/pkg/telemetry"
)

// Metric names recorded by TelemetryObserver
const (
	MetricBlockBytes         = "sstable.block.bytes"
	MetricBlocksFinalized    = "sstable.blocks.finalized"
	MetricTableBytes         = "sstable.table.bytes"
	MetricTableBuildDuration = "sstable.table.build.duration"
)

// TelemetryObserver records build events as OpenTelemetry metrics
type TelemetryObserver struct {
	tel telemetry.Telemetry
	ctx context.Context
}

// NewTelemetryObserver creates an observer reporting through tel
func NewTelemetryObserver(tel telemetry.Telemetry) *TelemetryObserver {
	if tel == nil {
		tel = telemetry.NewNoop()
	}
	return &TelemetryObserver{tel: tel, ctx: context.Background()}
}

// OnBlockFinalized counts the block and its encoded size
func (o *TelemetryObserver) OnBlockFinalized(e BlockEvent) {
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSSTable),
	}
	o.tel.RecordCounter(o.ctx, MetricBlocksFinalized, 1, attrs...)
	telemetry.RecordBytes(o.ctx, o.tel, MetricBlockBytes, int64(e.Size), attrs...)
}

// OnTableBuilt records the persisted size and build latency in a span
func (o *TelemetryObserver) OnTableBuilt(e TableEvent) {
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentSSTable),
		attribute.Int64(telemetry.AttrTableID, int64(e.ID)),
	}

	ctx, span := o.tel.StartSpan(o.ctx, "sstable.build", append(attrs,
		attribute.Int("sstable.blocks", e.Blocks),
		attribute.Int("sstable.entries", e.Entries),
	)...)
	defer span.End()

	telemetry.RecordBytes(ctx, o.tel, MetricTableBytes, int64(e.Size), attrs...)
	o.tel.RecordHistogram(ctx, MetricTableBuildDuration, e.Duration.Seconds(), attrs...)
}
