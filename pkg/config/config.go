package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/KevoDB/sstkit/pkg/common/log"
	"github.com/KevoDB/sstkit/pkg/sstable/block"
)

const (
	CurrentConfigVersion = 1

	// Watermark source names
	WatermarkVersion    = "version"
	WatermarkIngestTime = "ingest_time"
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("config file not found")
)

// TableConfig controls how tables are built, opened and cached
type TableConfig struct {
	Version int `json:"version" yaml:"version"`

	// Directory new tables are written to
	SSTDir string `json:"sst_dir" yaml:"sst_dir"`

	// Block and filter layout
	BlockSize              int     `json:"block_size" yaml:"block_size"`
	BloomFalsePositiveRate float64 `json:"bloom_false_positive_rate" yaml:"bloom_false_positive_rate"`
	Compression            string  `json:"compression" yaml:"compression"`
	WatermarkSource        string  `json:"watermark_source" yaml:"watermark_source"`

	// Read path
	BlockCacheCapacity int  `json:"block_cache_capacity" yaml:"block_cache_capacity"`
	ParanoidChecks     bool `json:"paranoid_checks" yaml:"paranoid_checks"`

	LogLevel string `json:"log_level" yaml:"log_level"`

	mu sync.RWMutex
}

// NewDefaultTableConfig creates a TableConfig with recommended default values
func NewDefaultTableConfig(sstDir string) *TableConfig {
	return &TableConfig{
		Version: CurrentConfigVersion,
		SSTDir:  sstDir,

		BlockSize:              block.DefaultBlockSize, // 4KB
		BloomFalsePositiveRate: 0.01,
		Compression:            block.NoCompression.String(),
		WatermarkSource:        WatermarkVersion,

		BlockCacheCapacity: 1024, // blocks, ~4MB at the default block size
		ParanoidChecks:     false,

		LogLevel: "info",
	}
}

// Validate checks if the configuration is valid
func (c *TableConfig) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.SSTDir == "" {
		return fmt.Errorf("%w: SSTable directory not specified", ErrInvalidConfig)
	}

	if c.BlockSize <= 0 {
		return fmt.Errorf("%w: block size must be positive", ErrInvalidConfig)
	}

	if c.BloomFalsePositiveRate <= 0 || c.BloomFalsePositiveRate >= 1 {
		return fmt.Errorf("%w: bloom false positive rate must be in (0, 1), got %g",
			ErrInvalidConfig, c.BloomFalsePositiveRate)
	}

	if _, err := block.ParseCompression(c.Compression); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch c.WatermarkSource {
	case WatermarkVersion, WatermarkIngestTime:
	default:
		return fmt.Errorf("%w: unknown watermark source %q", ErrInvalidConfig, c.WatermarkSource)
	}

	if c.BlockCacheCapacity < 0 {
		return fmt.Errorf("%w: block cache capacity must not be negative", ErrInvalidConfig)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return nil
}

// isYAML reports whether path should be read and written as YAML
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Load reads a configuration file. Files ending in .yaml or .yml are parsed
// as YAML, everything else as JSON. Unset fields keep their defaults and
// tables go to the current directory unless sst_dir is given.
func Load(path string) (*TableConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := NewDefaultTableConfig(".")
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to path, choosing the format by extension
func (c *TableConfig) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename config: %w", err)
	}

	return nil
}

// Update applies the given function to modify the configuration
func (c *TableConfig) Update(fn func(*TableConfig)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}
