package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"go.opentelemetry.io/otel/attribute"

	"github.com/KevoDB/sstkit/pkg/common/iterator"
	"github.com/KevoDB/sstkit/pkg/common/iterator/bounded"
	"github.com/KevoDB/sstkit/pkg/common/iterator/filtered"
	"github.com/KevoDB/sstkit/pkg/common/iterator/merged"
	"github.com/KevoDB/sstkit/pkg/sstable"
	"github.com/KevoDB/sstkit/pkg/stats"
	"github.com/KevoDB/sstkit/pkg/telemetry"
)

// Metric names recorded for shell commands
const (
	MetricCommands        = "sstdump.commands"
	MetricCommandDuration = "sstdump.command.duration"
	MetricOpenDuration    = "sstdump.open.duration"
)

// defaultScanLimit caps SCAN and SEEK output unless a limit is given
const defaultScanLimit = 100

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".info"),
	readline.PcItem(".blocks"),
	readline.PcItem(".verify"),
	readline.PcItem(".stats"),
	readline.PcItem(".metrics"),
	readline.PcItem(".exit"),
	readline.PcItem("GET"),
	readline.PcItem("SEEK"),
	readline.PcItem("FIRST"),
	readline.PcItem("LAST"),
	readline.PcItem("SCAN",
		readline.PcItem("PREFIX"),
		readline.PcItem("SUFFIX"),
		readline.PcItem("RANGE"),
	),
)

const shellHelpText = `
Commands:
  .help                   - Show this help message
  .info                   - Show key range, size and watermark of each table
  .blocks [N]             - List the block index of table N (default 1)
  .verify                 - Check every checksum of every table
  .stats                  - Show statistics for this session
  .metrics                - Show telemetry metrics (prometheus exporter only)
  .exit                   - Exit the program

  GET key                 - Look a key up, newest table first
  SEEK key [limit]        - List entries from the first key >= key
  FIRST                   - Show the smallest key
  LAST                    - Show the largest key

  SCAN [limit]            - Scan all entries
  SCAN PREFIX p [limit]   - Scan entries whose key starts with p
  SCAN SUFFIX s [limit]   - Scan entries whose key ends with s
  SCAN RANGE a b [limit]  - Scan entries in range [a, b)

When several tables are open they are read as one merged view; for keys
present in more than one table the table listed first wins.
`

// shell runs inspection commands against a set of open tables
type shell struct {
	tables    []*sstable.Table
	paths     []string
	out       io.Writer
	collector *stats.AtomicCollector
	tel       telemetry.Telemetry
}

func newShell(tables []*sstable.Table, paths []string, out io.Writer) *shell {
	collector := stats.NewAtomicCollector()
	for _, t := range tables {
		collector.TrackTableOpened(t.NumBlocks(), t.Size())
	}
	return &shell{
		tables:    tables,
		paths:     paths,
		out:       out,
		collector: collector,
		tel:       telemetry.NewNoop(),
	}
}

// execute runs one command line and reports whether the shell should exit.
// Command failures are printed, not returned; the returned error only
// reports that the command did not succeed.
func (s *shell) execute(line string) (bool, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false, nil
	}

	cmd := strings.ToUpper(parts[0])
	args := parts[1:]

	var (
		err   error
		op    stats.OperationType
		start = time.Now()
	)
	switch cmd {
	case ".HELP":
		fmt.Fprint(s.out, shellHelpText)
	case ".EXIT", ".QUIT":
		return true, nil
	case ".INFO":
		op = stats.OpInfo
		s.info()
	case ".BLOCKS":
		op = stats.OpInfo
		err = s.blocks(args)
	case ".VERIFY":
		op = stats.OpVerify
		err = s.verify()
	case ".STATS":
		s.printStats()
	case ".METRICS":
		err = s.metrics()
	case "GET":
		op = stats.OpGet
		err = s.get(args)
	case "SEEK":
		op = stats.OpSeek
		err = s.seek(args)
	case "FIRST":
		op = stats.OpSeek
		err = s.edge(func(it iterator.Iterator) { it.SeekToFirst() })
	case "LAST":
		op = stats.OpSeek
		err = s.edge(func(it iterator.Iterator) { it.SeekToLast() })
	case "SCAN":
		op = stats.OpScan
		err = s.scan(args)
	default:
		err = fmt.Errorf("unknown command: %s", parts[0])
	}

	if op != "" {
		elapsed := time.Since(start)
		s.collector.TrackOperationWithLatency(op, uint64(elapsed.Nanoseconds()))
		s.recordCommand(op, elapsed, err)
	}
	if err != nil {
		s.collector.TrackError(stats.ErrorType(err))
		fmt.Fprintf(s.out, "Error: %s\n", err)
	}
	return false, err
}

func (s *shell) info() {
	for i, t := range s.tables {
		fmt.Fprintf(s.out, "Table %d: %s\n", i+1, s.paths[i])
		fmt.Fprintf(s.out, "  Size:        %d bytes\n", t.Size())
		fmt.Fprintf(s.out, "  Blocks:      %d\n", t.NumBlocks())
		fmt.Fprintf(s.out, "  First key:   %q\n", t.FirstKey())
		fmt.Fprintf(s.out, "  Last key:    %q\n", t.LastKey())
		fmt.Fprintf(s.out, "  Max version: %d\n", t.MaxVersion())
		fmt.Fprintf(s.out, "  Bloom:       %d bits, %d probes\n", t.Bloom().Len(), t.Bloom().Probes())
	}
}

func (s *shell) blocks(args []string) error {
	t, err := s.table(args)
	if err != nil {
		return err
	}

	metas := t.BlockMetas()
	fmt.Fprintf(s.out, "%-6s %-10s %s\n", "BLOCK", "OFFSET", "RANGE")
	for i, m := range metas {
		fmt.Fprintf(s.out, "%-6d %-10d [%q, %q]\n", i, m.Offset, m.FirstKey, m.LastKey)
	}
	fmt.Fprintf(s.out, "%d blocks, %d bytes\n", len(metas), t.Size())
	return nil
}

// table selects a table by its 1-based position in args[0]
func (s *shell) table(args []string) (*sstable.Table, error) {
	if len(args) == 0 {
		return s.tables[0], nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(s.tables) {
		return nil, fmt.Errorf("no table %q, expected 1 to %d", args[0], len(s.tables))
	}
	return s.tables[n-1], nil
}

func (s *shell) verify() error {
	var failed error
	for i, t := range s.tables {
		if err := t.Verify(); err != nil {
			s.collector.TrackVerify(false)
			fmt.Fprintf(s.out, "%s: %s\n", s.paths[i], err)
			failed = errors.Join(failed, err)
			continue
		}
		s.collector.TrackVerify(true)
		fmt.Fprintf(s.out, "%s: OK\n", s.paths[i])
	}
	return failed
}

func (s *shell) get(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: GET key")
	}
	key := []byte(args[0])

	for _, t := range s.tables {
		value, err := t.Get(key)
		if errors.Is(err, sstable.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		s.collector.TrackBytes(false, uint64(len(value)))
		fmt.Fprintf(s.out, "%s\n", value)
		return nil
	}
	fmt.Fprintln(s.out, "Key not found")
	return nil
}

func (s *shell) seek(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: SEEK key [limit]")
	}
	limit, err := parseLimit(args[1:])
	if err != nil {
		return err
	}

	return s.withIterator(func(it iterator.Iterator) error {
		it.Seek([]byte(args[0]))
		return s.print(it, limit)
	})
}

func (s *shell) edge(position func(iterator.Iterator)) error {
	return s.withIterator(func(it iterator.Iterator) error {
		position(it)
		if err := it.Error(); err != nil {
			return err
		}
		if !it.Valid() {
			fmt.Fprintln(s.out, "No entries")
			return nil
		}
		fmt.Fprintf(s.out, "%s: %s\n", it.Key(), it.Value())
		return nil
	})
}

func (s *shell) scan(args []string) error {
	mode := ""
	if len(args) > 0 {
		mode = strings.ToUpper(args[0])
	}

	var wrap func(iterator.Iterator) iterator.Iterator
	switch mode {
	case "PREFIX":
		if len(args) < 2 {
			return errors.New("usage: SCAN PREFIX prefix [limit]")
		}
		prefix := []byte(args[1])
		wrap = func(it iterator.Iterator) iterator.Iterator {
			return filtered.NewPrefixIterator(it, prefix)
		}
		args = args[2:]
	case "SUFFIX":
		if len(args) < 2 {
			return errors.New("usage: SCAN SUFFIX suffix [limit]")
		}
		suffix := []byte(args[1])
		wrap = func(it iterator.Iterator) iterator.Iterator {
			return filtered.NewFilteredIterator(it, func(key []byte) bool {
				return bytes.HasSuffix(key, suffix)
			})
		}
		args = args[2:]
	case "RANGE":
		if len(args) < 3 {
			return errors.New("usage: SCAN RANGE start end [limit]")
		}
		start, end := []byte(args[1]), []byte(args[2])
		wrap = func(it iterator.Iterator) iterator.Iterator {
			return bounded.NewBoundedIterator(it, start, end)
		}
		args = args[3:]
	default:
		wrap = func(it iterator.Iterator) iterator.Iterator { return it }
	}

	limit, err := parseLimit(args)
	if err != nil {
		return err
	}

	return s.withIterator(func(it iterator.Iterator) error {
		view := wrap(it)
		view.SeekToFirst()
		return s.print(view, limit)
	})
}

// withIterator opens one iterator per table, merged newest first, and
// releases them when fn returns
func (s *shell) withIterator(fn func(iterator.Iterator) error) error {
	adapters := make([]*sstable.IteratorAdapter, 0, len(s.tables))
	defer func() {
		for _, a := range adapters {
			a.Close()
		}
	}()

	sources := make([]iterator.Iterator, 0, len(s.tables))
	for _, t := range s.tables {
		iter, err := sstable.NewIterator(t)
		if err != nil {
			return err
		}
		a := sstable.NewIteratorAdapter(iter)
		adapters = append(adapters, a)
		sources = append(sources, a)
	}

	if len(sources) == 1 {
		return fn(sources[0])
	}
	return fn(merged.NewMergingIterator(sources))
}

// print writes up to limit entries from the iterator's current position
func (s *shell) print(it iterator.Iterator, limit int) error {
	count := 0
	for ; it.Valid(); it.Next() {
		if count == limit {
			fmt.Fprintf(s.out, "... (limit %d reached)\n", limit)
			return nil
		}
		s.collector.TrackBytes(false, uint64(len(it.Key())+len(it.Value())))
		fmt.Fprintf(s.out, "%s: %s\n", it.Key(), it.Value())
		count++
	}
	if err := it.Error(); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d entries\n", count)
	return nil
}

// recordCommand reports a finished command through telemetry
func (s *shell) recordCommand(op stats.OperationType, elapsed time.Duration, err error) {
	status := telemetry.StatusSuccess
	if err != nil {
		status = telemetry.StatusError
	}
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentCLI),
		attribute.String(telemetry.AttrOperationType, string(op)),
		attribute.String(telemetry.AttrStatus, status),
	}

	ctx := context.Background()
	s.tel.RecordCounter(ctx, MetricCommands, 1, attrs...)
	s.tel.RecordHistogram(ctx, MetricCommandDuration, elapsed.Seconds(), attrs...)
}

func (s *shell) metrics() error {
	mw, ok := s.tel.(telemetry.MetricsWriter)
	if !ok {
		return telemetry.ErrNoMetricsRegistry
	}
	return mw.WriteMetrics(s.out)
}

// printStats writes the session statistics sorted by name
func (s *shell) printStats() {
	all := s.collector.GetStats()
	names := make([]string, 0, len(all))
	for name := range all {
		if strings.HasPrefix(name, "last_") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(s.out, "%-22s %v\n", name, all[name])
	}
}

func parseLimit(args []string) (int, error) {
	switch len(args) {
	case 0:
		return defaultScanLimit, nil
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid limit %q", args[0])
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected arguments: %s", strings.Join(args[1:], " "))
	}
}
