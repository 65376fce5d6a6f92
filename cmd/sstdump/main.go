package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"go.opentelemetry.io/otel/attribute"

	"github.com/KevoDB/sstkit/pkg/common/log"
	"github.com/KevoDB/sstkit/pkg/config"
	"github.com/KevoDB/sstkit/pkg/sstable"
	"github.com/KevoDB/sstkit/pkg/storage"
	"github.com/KevoDB/sstkit/pkg/telemetry"
)

const usageText = `sstdump - build and inspect sstkit tables

Usage:
  sstdump [options] build INPUT.tsv OUTPUT.sst  - Build a table from key<TAB>value[<TAB>version] lines
  sstdump [options] info FILE.sst...            - Print table summaries
  sstdump [options] verify FILE.sst...          - Check every checksum, exit 1 on corruption
  sstdump [options] scan FILE.sst...            - Print every entry of the merged tables
  sstdump [options] shell FILE.sst...           - Inspect tables interactively

Options:
`

// Config holds the command line configuration
type Config struct {
	ConfigPath  string
	BlockSize   int
	Compression string
	LogLevel    string
	TableID     uint64
	Telemetry   bool
	SortInput   bool
}

func main() {
	os.Exit(run())
}

// run executes the selected command and returns the process exit code
func run() int {
	cfg := parseFlags()
	if flag.NArg() < 2 {
		flag.Usage()
		return 2
	}

	tableCfg, err := loadTableConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return 1
	}

	level, _ := log.ParseLevel(tableCfg.LogLevel)
	logger := log.NewStandardLogger(
		log.WithLevel(level),
		log.WithOutput(os.Stderr),
		log.WithInitialFields(map[string]interface{}{"component": telemetry.ComponentCLI}),
	)

	telCfg := telemetry.DefaultConfig()
	telCfg.LoadFromEnv()
	if cfg.Telemetry {
		telCfg.Enabled = true
	}
	tel, err := telemetry.New(telCfg)
	if err != nil {
		logger.Error("Failed to initialize telemetry: %v", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Warn("Telemetry shutdown: %v", err)
		}
	}()

	opts, err := sstable.OptionsFromConfig(tableCfg)
	if err != nil {
		logger.Error("Invalid table configuration: %v", err)
		return 1
	}
	opts = append(opts,
		sstable.WithObserver(sstable.NewTelemetryObserver(tel)),
		sstable.WithLogger(logger),
	)

	store, err := storage.NewLocalStore(tableCfg.SSTDir)
	if err != nil {
		logger.Error("Failed to open store: %v", err)
		return 1
	}
	cache := sstable.NewBlockCache(tableCfg.BlockCacheCapacity)

	command, args := flag.Arg(0), flag.Args()[1:]
	switch command {
	case "build":
		return runBuild(args, store, cfg, tableCfg.BlockSize, cache, logger, opts)
	case "info", "verify", "scan":
		return runBatch(command, args, store, cache, tel, logger, opts)
	case "shell":
		return runShell(args, store, cache, tel, logger, opts)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		return 2
	}
}

// parseFlags parses command line flags and returns a Config
func parseFlags() Config {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usageText)
		flag.PrintDefaults()
	}

	configPath := flag.String("config", "", "Table configuration file (.json, .yaml or .yml)")
	blockSize := flag.Int("block-size", 0, "Target data block size in bytes, overrides the config file")
	compression := flag.String("compression", "", "Block compression: none, snappy, zstd or s2, overrides the config file")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn or error, overrides the config file")
	tableID := flag.Uint64("id", 1, "Table id recorded for built tables")
	enableTelemetry := flag.Bool("telemetry", false, "Export build metrics and spans (see SSTKIT_TELEMETRY_* variables)")
	sortInput := flag.Bool("sort", false, "Accept build input in any order, keeping the highest version of repeated keys")

	flag.Parse()

	return Config{
		ConfigPath:  *configPath,
		BlockSize:   *blockSize,
		Compression: *compression,
		LogLevel:    *logLevel,
		TableID:     *tableID,
		Telemetry:   *enableTelemetry,
		SortInput:   *sortInput,
	}
}

// loadTableConfig reads the configuration file, if any, and applies flag overrides
func loadTableConfig(cfg Config) (*config.TableConfig, error) {
	tableCfg := config.NewDefaultTableConfig(".")
	if cfg.ConfigPath != "" {
		loaded, err := config.Load(cfg.ConfigPath)
		if err != nil {
			return nil, err
		}
		tableCfg = loaded
	}

	tableCfg.Update(func(c *config.TableConfig) {
		if cfg.BlockSize != 0 {
			c.BlockSize = cfg.BlockSize
		}
		if cfg.Compression != "" {
			c.Compression = cfg.Compression
		}
		if cfg.LogLevel != "" {
			c.LogLevel = cfg.LogLevel
		}
	})

	if err := tableCfg.Validate(); err != nil {
		return nil, err
	}
	return tableCfg, nil
}

func runBuild(args []string, store storage.FileStore, cfg Config, blockSize int,
	cache sstable.BlockCache, logger log.Logger, opts []sstable.Option) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: sstdump build INPUT.tsv OUTPUT.sst")
		return 2
	}

	var in io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			logger.Error("Failed to open input: %v", err)
			return 1
		}
		defer f.Close()
		in = f
	}

	build := buildFromTSV
	if cfg.SortInput {
		build = buildFromUnsortedTSV
	}
	table, err := build(in, store, args[1], cfg.TableID, blockSize, cache, opts...)
	if err != nil {
		logger.Error("Failed to build %s: %v", args[1], err)
		return 1
	}
	defer table.Close()

	fmt.Printf("Built %s: %d blocks, %d bytes, keys [%q, %q]\n",
		args[1], table.NumBlocks(), table.Size(), table.FirstKey(), table.LastKey())
	return 0
}

// openTables opens every path in order, assigning ids by position
func openTables(paths []string, store storage.FileStore, cache sstable.BlockCache,
	opts []sstable.Option) ([]*sstable.Table, error) {
	tables := make([]*sstable.Table, 0, len(paths))
	for i, path := range paths {
		file, err := store.Open(path)
		if err != nil {
			closeTables(tables)
			return nil, err
		}
		t, err := sstable.Open(uint64(i+1), file, cache, opts...)
		if err != nil {
			file.Close()
			closeTables(tables)
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// openTablesTimed opens the tables and reports how long it took
func openTablesTimed(paths []string, store storage.FileStore, cache sstable.BlockCache,
	opts []sstable.Option, tel telemetry.Telemetry) ([]*sstable.Table, error) {
	start := time.Now()
	tables, err := openTables(paths, store, cache, opts)

	status := telemetry.StatusSuccess
	if err != nil {
		status = telemetry.StatusError
	}
	telemetry.RecordDuration(context.Background(), tel, MetricOpenDuration, start,
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCLI),
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeOpen),
		attribute.String(telemetry.AttrStatus, status),
	)
	return tables, err
}

func closeTables(tables []*sstable.Table) {
	for _, t := range tables {
		t.Close()
	}
}

func runBatch(command string, paths []string, store storage.FileStore, cache sstable.BlockCache,
	tel telemetry.Telemetry, logger log.Logger, opts []sstable.Option) int {
	tables, err := openTablesTimed(paths, store, cache, opts, tel)
	if err != nil {
		logger.Error("Failed to open tables: %v", err)
		return 1
	}
	defer closeTables(tables)

	line := map[string]string{
		"info":   ".info",
		"verify": ".verify",
		"scan":   fmt.Sprintf("SCAN %d", math.MaxInt),
	}[command]

	sh := newShell(tables, paths, os.Stdout)
	sh.tel = tel
	if _, err := sh.execute(line); err != nil {
		return 1
	}
	return 0
}

func runShell(paths []string, store storage.FileStore, cache sstable.BlockCache,
	tel telemetry.Telemetry, logger log.Logger, opts []sstable.Option) int {
	tables, err := openTablesTimed(paths, store, cache, opts, tel)
	if err != nil {
		logger.Error("Failed to open tables: %v", err)
		return 1
	}
	defer closeTables(tables)

	fmt.Printf("sstdump: %d table(s) open\n", len(tables))
	fmt.Println("Enter .help for usage hints.")

	historyFile := filepath.Join(os.TempDir(), ".sstdump_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sstdump> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		logger.Error("Error initializing readline: %v", err)
		return 1
	}
	defer rl.Close()

	sh := newShell(tables, paths, rl.Stdout())
	sh.tel = tel
	for {
		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		if exit, _ := sh.execute(strings.TrimSpace(line)); exit {
			break
		}
	}

	fmt.Println("Goodbye!")
	return 0
}
