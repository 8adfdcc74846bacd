// Command enexory-parquet-export is the Driver: it wires the Event Reader,
// Event Collapser and Day Writer together for one batch invocation.
//
// Prerequisites (mirrors helpers/mycanal/doc.go's "prerequisites" style, but
// for the upstream extractor instead of a live MySQL server): stdin (or
// -in) must already hold decoded row-based binlog text — the kind of output
// `mysqlbinlog --verbose` produces against a ROW-format, FULL-row-image
// binlog. Only blocks for the `` `database`.`table` `` named by -table are
// used; blocks for other tables are ignored. This binary never
// opens a MySQL connection itself; extraction is the upstream process's job
// (spec.md §1).
package main

import (
	"flag"
	stderrors "errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/codahale/hdrhistogram"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/atomic"

	"github.com/barshanhassan/enexory-parquet-export/internal/cdcerr"
	"github.com/barshanhassan/enexory-parquet-export/internal/cdcevent"
	"github.com/barshanhassan/enexory-parquet-export/internal/cdclog"
	"github.com/barshanhassan/enexory-parquet-export/internal/cdcreader"
	"github.com/barshanhassan/enexory-parquet-export/internal/collapse"
	"github.com/barshanhassan/enexory-parquet-export/internal/dayfile"
	"github.com/barshanhassan/enexory-parquet-export/internal/workerpool"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin *os.File, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("enexory-parquet-export", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseDir := fs.String("base-dir", "", "base directory holding <day>.parq files (required)")
	table := fs.String("table", "", "fully-qualified `database.table` to extract events for (required)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	in := fs.String("in", "", "path to read decoded row events from (default: stdin)")

	if err := fs.Parse(args); err != nil {
		return cdcerr.UsageErr.ExitCode()
	}

	cdclog.SetLevel(*logLevel)
	log := cdclog.Logger

	if *baseDir == "" || *table == "" {
		fmt.Fprintln(stderr, "enexory-parquet-export: -base-dir and -table are required")
		return cdcerr.UsageErr.ExitCode()
	}

	db, tbl, err := splitTable(*table)
	if err != nil {
		fmt.Fprintf(stderr, "enexory-parquet-export: %v\n", err)
		return cdcerr.UsageErr.ExitCode()
	}

	var input *os.File = stdin
	if *in != "" {
		f, err := os.Open(*in)
		if err != nil {
			fmt.Fprintf(stderr, "enexory-parquet-export: %v\n", err)
			return cdcerr.IOErr.ExitCode()
		}
		defer f.Close()
		input = f
	}

	start := time.Now()

	c := collapse.New(0)
	readErr := cdcreader.Run(input, cdcreader.Table{Database: db, Table: tbl}, func(e *cdcevent.Event) error {
		c.Apply(e)
		return nil
	})
	if readErr != nil {
		fmt.Fprintf(stderr, "enexory-parquet-export: %v\n", readErr)
		return exitCodeFor(readErr)
	}

	days := c.Days()
	if len(days) == 0 {
		log.Info().Dur("elapsed", time.Since(start)).Msg("no events for configured table; nothing to do")
		return 0
	}

	store := dayfile.NewStore(afero.NewOsFs(), *baseDir)

	var (
		daysWritten = atomic.NewInt64(0)
		daysDeleted = atomic.NewInt64(0)
		totalRows   = atomic.NewInt64(0)
		latency     = hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3)
		latencyMu   sync.Mutex
	)

	tasks := make([]func() error, len(days))
	for i, day := range days {
		day := day
		effect := c.Effect(day)
		tasks[i] = func() error {
			t0 := time.Now()
			res, err := store.Apply(day, effect)
			elapsed := time.Since(t0)

			latencyMu.Lock()
			latency.RecordValue(elapsed.Microseconds())
			latencyMu.Unlock()

			if err != nil {
				return errors.Wrapf(err, "day %s", day)
			}
			if !res.Touched {
				return nil
			}
			if res.Removed {
				daysDeleted.Inc()
				log.Info().Str("day", day).Msg("removed empty day file")
				return nil
			}
			daysWritten.Inc()
			totalRows.Add(int64(res.RowCount))
			log.Info().Str("day", day).Int("rows", res.RowCount).Msg("wrote day file")
			return nil
		}
	}

	maxConcurrency := runtime.NumCPU()
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if writeErr := workerpool.RunAll(maxConcurrency, tasks); writeErr != nil {
		fmt.Fprintf(stderr, "enexory-parquet-export: %v\n", writeErr)
		return exitCodeFor(writeErr)
	}

	log.Info().
		Int64("days_written", daysWritten.Load()).
		Int64("days_deleted", daysDeleted.Load()).
		Int64("total_rows", totalRows.Load()).
		Int64("write_p50_us", latency.ValueAtQuantile(50)).
		Int64("write_p99_us", latency.ValueAtQuantile(99)).
		Dur("elapsed", time.Since(start)).
		Msg("batch finished")

	return 0
}

// splitTable splits a "database.table" flag value.
func splitTable(qualified string) (db, table string, err error) {
	for i := 0; i < len(qualified); i++ {
		if qualified[i] == '.' {
			return qualified[:i], qualified[i+1:], nil
		}
	}
	return "", "", errors.Errorf("-table must be `database.table`, got %q", qualified)
}

func exitCodeFor(err error) int {
	var cerr *cdcerr.Error
	if stderrors.As(err, &cerr) {
		return cerr.Code.ExitCode()
	}
	return cdcerr.IOErr.ExitCode()
}
