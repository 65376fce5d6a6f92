package sstable

import (
	"fmt"
	"time"

	"github.com/KevoDB/sstkit/pkg/common/log"
	"github.com/KevoDB/sstkit/pkg/config"
	"github.com/KevoDB/sstkit/pkg/sstable/block"
	"github.com/KevoDB/sstkit/pkg/sstable/bloom"
)

// WatermarkSource selects what feeds a table's version watermark
type WatermarkSource int

const (
	// WatermarkVersion tracks the largest version passed to Add
	WatermarkVersion WatermarkSource = iota
	// WatermarkIngestTime tracks the latest clock reading taken at Add, in unix nanoseconds
	WatermarkIngestTime
)

// String returns the configuration name of the source
func (w WatermarkSource) String() string {
	switch w {
	case WatermarkVersion:
		return config.WatermarkVersion
	case WatermarkIngestTime:
		return config.WatermarkIngestTime
	default:
		return fmt.Sprintf("watermark(%d)", int(w))
	}
}

// Options controls how tables are built and opened
type Options struct {
	Compression            block.Compression
	BloomFalsePositiveRate float64
	Watermark              WatermarkSource
	Clock                  func() time.Time
	Observer               Observer
	ParanoidChecks         bool
}

// Option configures Options
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Compression:            block.NoCompression,
		BloomFalsePositiveRate: bloom.DefaultFalsePositiveRate,
		Watermark:              WatermarkVersion,
		Clock:                  time.Now,
		Observer:               NoopObserver{},
	}
}

func applyOptions(opts []Option) Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithCompression sets the codec applied to every data block
func WithCompression(c block.Compression) Option {
	return func(o *Options) {
		o.Compression = c
	}
}

// WithBloomFalsePositiveRate sets the bloom filter's target false-positive rate
func WithBloomFalsePositiveRate(rate float64) Option {
	return func(o *Options) {
		o.BloomFalsePositiveRate = rate
	}
}

// WithWatermarkSource selects what the version watermark tracks
func WithWatermarkSource(source WatermarkSource) Option {
	return func(o *Options) {
		o.Watermark = source
	}
}

// WithClock sets the clock read for WatermarkIngestTime
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		if clock != nil {
			o.Clock = clock
		}
	}
}

// WithObserver sets the hook notified of finalized blocks and built tables
func WithObserver(observer Observer) Option {
	return func(o *Options) {
		if observer != nil {
			o.Observer = observer
		}
	}
}

// WithLogger installs a LoggingObserver, combined with any observer already set
func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		if logger == nil {
			return
		}
		lo := NewLoggingObserver(logger)
		if _, noop := o.Observer.(NoopObserver); noop || o.Observer == nil {
			o.Observer = lo
			return
		}
		o.Observer = MultiObserver{o.Observer, lo}
	}
}

// WithParanoidChecks makes Open verify the whole-file checksum
func WithParanoidChecks(enabled bool) Option {
	return func(o *Options) {
		o.ParanoidChecks = enabled
	}
}

// ParseWatermarkSource maps a configuration name to a WatermarkSource
func ParseWatermarkSource(name string) (WatermarkSource, error) {
	switch name {
	case "", config.WatermarkVersion:
		return WatermarkVersion, nil
	case config.WatermarkIngestTime:
		return WatermarkIngestTime, nil
	default:
		return 0, fmt.Errorf("unknown watermark source %q", name)
	}
}

// OptionsFromConfig translates a validated table configuration into options
func OptionsFromConfig(cfg *config.TableConfig) ([]Option, error) {
	compression, err := block.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	watermark, err := ParseWatermarkSource(cfg.WatermarkSource)
	if err != nil {
		return nil, err
	}

	return []Option{
		WithCompression(compression),
		WithBloomFalsePositiveRate(cfg.BloomFalsePositiveRate),
		WithWatermarkSource(watermark),
		WithParanoidChecks(cfg.ParanoidChecks),
	}, nil
}
