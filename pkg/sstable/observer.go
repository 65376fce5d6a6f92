package sstable

import (
	"time"

	"github.com/KevoDB/sstkit/pkg/common/log"
)

// BlockEvent describes a data block that was just finalized
type BlockEvent struct {
	Index    int
	Offset   uint32
	Size     int // encoded bytes, excluding the checksum
	Entries  int
	FirstKey []byte
	LastKey  []byte
}

// TableEvent describes a table that was just built and persisted
type TableEvent struct {
	ID         uint64
	Path       string
	Size       uint64
	Blocks     int
	Entries    int
	MaxVersion uint64
	BloomBits  int
	Duration   time.Duration
}

// Observer receives build progress from a Builder. Events are delivered
// synchronously on the building goroutine; keys are only valid for the call.
type Observer interface {
	OnBlockFinalized(BlockEvent)
	OnTableBuilt(TableEvent)
}

// NoopObserver ignores every event
type NoopObserver struct{}

func (NoopObserver) OnBlockFinalized(BlockEvent) {}
func (NoopObserver) OnTableBuilt(TableEvent)     {}

// MultiObserver fans events out to several observers in order
type MultiObserver []Observer

func (m MultiObserver) OnBlockFinalized(e BlockEvent) {
	for _, o := range m {
		o.OnBlockFinalized(e)
	}
}

func (m MultiObserver) OnTableBuilt(e TableEvent) {
	for _, o := range m {
		o.OnTableBuilt(e)
	}
}

// LoggingObserver writes build events to a logger
type LoggingObserver struct {
	logger log.Logger
}

// NewLoggingObserver creates an observer logging through logger
func NewLoggingObserver(logger log.Logger) *LoggingObserver {
	return &LoggingObserver{logger: logger.WithField("component", "sstable")}
}

// OnBlockFinalized logs at debug level
func (o *LoggingObserver) OnBlockFinalized(e BlockEvent) {
	o.logger.WithFields(map[string]interface{}{
		"block":   e.Index,
		"offset":  e.Offset,
		"size":    e.Size,
		"entries": e.Entries,
	}).Debug("finalized block [%q, %q]", e.FirstKey, e.LastKey)
}

// OnTableBuilt logs at info level
func (o *LoggingObserver) OnTableBuilt(e TableEvent) {
	o.logger.WithFields(map[string]interface{}{
		"table":       e.ID,
		"blocks":      e.Blocks,
		"entries":     e.Entries,
		"max_version": e.MaxVersion,
	}).Info("built sstable %s (%d bytes) in %s", e.Path, e.Size, e.Duration)
}
