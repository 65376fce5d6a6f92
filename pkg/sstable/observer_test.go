package sstable

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/KevoDB/sstkit/pkg/common/log"
	"github.com/KevoDB/sstkit/pkg/config"
	"github.com/KevoDB/sstkit/pkg/sstable/block"
	"github.com/KevoDB/sstkit/pkg/storage"
	"github.com/KevoDB/sstkit/pkg/telemetry"
)

func TestObserverEvents(t *testing.T) {
	obs := &countingObserver{}
	table, _ := buildTestTable(t, 300, 1, 512, WithObserver(obs))
	defer table.Close()

	if len(obs.blocks) != table.NumBlocks() {
		t.Fatalf("Expected %d block events, got %d", table.NumBlocks(), len(obs.blocks))
	}

	entries := 0
	for i, e := range obs.blocks {
		meta := table.BlockMetas()[i]
		if e.Index != i || e.Offset != meta.Offset {
			t.Errorf("Block event %d has index %d offset %d, want offset %d", i, e.Index, e.Offset, meta.Offset)
		}
		if !bytes.Equal(e.FirstKey, meta.FirstKey) || !bytes.Equal(e.LastKey, meta.LastKey) {
			t.Errorf("Block event %d range [%s, %s] differs from meta", i, e.FirstKey, e.LastKey)
		}
		if e.Size <= 0 || e.Size > 512 {
			t.Errorf("Block event %d has size %d", i, e.Size)
		}
		entries += e.Entries
	}
	if entries != 300 {
		t.Errorf("Expected block events to cover 300 entries, got %d", entries)
	}

	if len(obs.tables) != 1 {
		t.Fatalf("Expected 1 table event, got %d", len(obs.tables))
	}
	te := obs.tables[0]
	if te.ID != 1 || te.Path != "test.sst" {
		t.Errorf("Unexpected table event identity: %+v", te)
	}
	if te.Size != table.Size() || te.Blocks != table.NumBlocks() || te.Entries != 300 {
		t.Errorf("Table event %+v does not match table", te)
	}
	if te.MaxVersion != 299 {
		t.Errorf("Expected max version 299, got %d", te.MaxVersion)
	}
	if te.BloomBits != table.Bloom().Len() {
		t.Errorf("Expected %d bloom bits, got %d", table.Bloom().Len(), te.BloomBits)
	}
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewStandardLogger(log.WithOutput(&buf), log.WithLevel(log.LevelDebug))

	table, _ := buildTestTable(t, 50, 1, 4096, WithLogger(logger))
	defer table.Close()

	out := buf.String()
	for _, want := range []string{
		"[DEBUG]",
		`finalized block ["key00000", "key00049"]`,
		"[INFO]",
		"built sstable test.sst",
		"component=sstable",
		"entries=50",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log output to contain %q, got:\n%s", want, out)
		}
	}

	buf.Reset()
	logger.SetLevel(log.LevelInfo)
	table2, _ := buildTestTable(t, 50, 1, 4096, WithLogger(logger))
	defer table2.Close()
	if strings.Contains(buf.String(), "finalized block") {
		t.Error("Block events should not be logged above debug level")
	}
}

func TestWithLoggerKeepsObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewStandardLogger(log.WithOutput(&buf))
	obs := &countingObserver{}

	table, _ := buildTestTable(t, 10, 1, 4096, WithObserver(obs), WithLogger(logger))
	defer table.Close()

	if len(obs.tables) != 1 {
		t.Errorf("Expected the observer to still receive events, got %d", len(obs.tables))
	}
	if !strings.Contains(buf.String(), "built sstable") {
		t.Error("Expected the logger to receive events")
	}
}

func TestTelemetryObserver(t *testing.T) {
	var buf bytes.Buffer
	tel, err := telemetry.NewStdoutForTesting(&buf)
	if err != nil {
		t.Fatalf("Failed to create telemetry: %v", err)
	}

	table, _ := buildTestTable(t, 200, 1, 512, WithObserver(NewTelemetryObserver(tel)))
	defer table.Close()

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Failed to shut down telemetry: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		MetricBlocksFinalized,
		MetricBlockBytes,
		MetricTableBytes,
		MetricTableBuildDuration,
		"sstable.build",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected telemetry output to contain %q", want)
		}
	}
}

func TestTelemetryObserverNil(t *testing.T) {
	obs := NewTelemetryObserver(nil)
	obs.OnBlockFinalized(BlockEvent{Size: 10})
	obs.OnTableBuilt(TableEvent{ID: 1})
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.NewDefaultTableConfig(t.TempDir())
	cfg.Compression = "snappy"
	cfg.WatermarkSource = config.WatermarkIngestTime
	cfg.BloomFalsePositiveRate = 0.05
	cfg.ParanoidChecks = true

	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("Failed to convert config: %v", err)
	}
	o := applyOptions(opts)

	if o.Compression != block.SnappyCompression {
		t.Errorf("Expected snappy compression, got %s", o.Compression)
	}
	if o.Watermark != WatermarkIngestTime {
		t.Errorf("Expected ingest time watermark, got %s", o.Watermark)
	}
	if o.BloomFalsePositiveRate != 0.05 {
		t.Errorf("Expected bloom rate 0.05, got %g", o.BloomFalsePositiveRate)
	}
	if !o.ParanoidChecks {
		t.Error("Expected paranoid checks")
	}

	cfg.Compression = "lz4"
	if _, err := OptionsFromConfig(cfg); err == nil {
		t.Error("Expected error for unknown compression")
	}
	cfg.Compression = "none"
	cfg.WatermarkSource = "wallclock"
	if _, err := OptionsFromConfig(cfg); err == nil {
		t.Error("Expected error for unknown watermark source")
	}
}

func TestParseWatermarkSource(t *testing.T) {
	tests := []struct {
		name string
		want WatermarkSource
		ok   bool
	}{
		{"", WatermarkVersion, true},
		{"version", WatermarkVersion, true},
		{"ingest_time", WatermarkIngestTime, true},
		{"other", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseWatermarkSource(tt.name)
		if (err == nil) != tt.ok {
			t.Errorf("ParseWatermarkSource(%q) error = %v", tt.name, err)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("ParseWatermarkSource(%q) = %s, want %s", tt.name, got, tt.want)
		}
		if tt.ok && tt.name != "" && got.String() != tt.name {
			t.Errorf("String() = %s, want %s", got.String(), tt.name)
		}
	}
}

func TestConfiguredBuildRoundTrip(t *testing.T) {
	cfg := config.NewDefaultTableConfig(t.TempDir())
	cfg.Compression = "zstd"
	cfg.BlockSize = 1024

	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("Failed to convert config: %v", err)
	}
	store, err := storage.NewLocalStore(cfg.SSTDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	b := NewBuilder(cfg.BlockSize, opts...)
	for i := 0; i < 500; i++ {
		b.Add(testKey(i), testValue(i), uint64(i))
	}
	built, err := b.Build(5, nil, store, "000005.sst")
	if err != nil {
		t.Fatalf("Failed to build table: %v", err)
	}
	built.Close()

	file, err := store.Open("000005.sst")
	if err != nil {
		t.Fatalf("Failed to open table file: %v", err)
	}
	table, err := Open(5, file, NewBlockCache(cfg.BlockCacheCapacity), opts...)
	if err != nil {
		t.Fatalf("Failed to open table: %v", err)
	}
	defer table.Close()

	value, err := table.Get(testKey(321))
	if err != nil || !bytes.Equal(value, testValue(321)) {
		t.Errorf("Expected %s, got %s (%v)", testValue(321), value, err)
	}
}
