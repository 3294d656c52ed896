// Command billparse parses Alipay, JD and CMB exports from the command
// line. Without -db it runs dry: records are parsed and deduplicated across
// the given files but nothing is stored. With -db it imports into a SQLite
// file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/mitrecx/my-bill-2/internal/config"
	"github.com/mitrecx/my-bill-2/internal/core"
	_ "github.com/mitrecx/my-bill-2/internal/core/providers" // register parsers
	"github.com/mitrecx/my-bill-2/internal/dedup"
	"github.com/mitrecx/my-bill-2/internal/ingest"
	"github.com/mitrecx/my-bill-2/internal/logging"
	"github.com/mitrecx/my-bill-2/internal/store"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	source    string
	family    int64
	db        string
	asJSON    bool
	maxErrors int
	workers   int
	tolerance string
	currency  string
	utcOffset int
	logLevel  string
	noColor   bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	flags := flag.NewFlagSet("billparse", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&opts.source, "source", "", "source type: alipay, jd or cmb (default: inferred per file)")
	flags.Int64Var(&opts.family, "family", 1, "family id records belong to")
	flags.StringVar(&opts.db, "db", "", "SQLite file to import into (default: dry run)")
	flags.BoolVar(&opts.asJSON, "json", false, "print results as JSON")
	flags.IntVar(&opts.maxErrors, "errors", core.MaxDisplayErrors, "failed rows to print per file")
	flags.IntVar(&opts.workers, "workers", ingest.DefaultMaxConcurrent, "files parsed in parallel")
	flags.StringVar(&opts.tolerance, "tolerance", dedup.DefaultTolerance.String(), "time window of the content duplicate match")
	flags.StringVar(&opts.currency, "currency", envOr("IMPORT_DEFAULT_CURRENCY", "CNY"), "currency of records whose export names none")
	flags.IntVar(&opts.utcOffset, "utc-offset", envInt("IMPORT_UTC_OFFSET_HOURS", 8), "UTC offset in hours of export timestamps")
	flags.StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	flags.Usage = func() {
		fmt.Fprintln(stderr, "usage: billparse [flags] FILE|DIR...")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}
	if opts.noColor {
		color.NoColor = true
	}

	logger := logging.New(stderr, opts.logLevel, "text")

	var source core.Provider
	if opts.source != "" {
		p, err := core.ParseProvider(opts.source)
		if err != nil {
			printError(stderr, err)
			return 2
		}
		source = p
	}

	tolerance, err := time.ParseDuration(opts.tolerance)
	if err != nil {
		fmt.Fprintln(stderr, "error: -tolerance:", err)
		return 2
	}
	imp := config.ImportConfig{
		DefaultCurrency: strings.ToUpper(strings.TrimSpace(opts.currency)),
		DedupTolerance:  tolerance,
		UTCOffsetHours:  opts.utcOffset,
	}
	if imp.DefaultCurrency == "" {
		fmt.Fprintln(stderr, "error: -currency must not be empty")
		return 2
	}
	if imp.UTCOffsetHours < -12 || imp.UTCOffsetHours > 14 {
		fmt.Fprintf(stderr, "error: -utc-offset (%d) must be -12..14\n", imp.UTCOffsetHours)
		return 2
	}

	paths, err := collectFiles(flags.Args())
	if err != nil {
		printError(stderr, err)
		return 1
	}

	svcOpts := ingest.Options{
		MaxConcurrent: opts.workers,
		Tolerance:     imp.DedupTolerance,
		Logger:        logger,
		Parse:         core.ParseOptions{Location: imp.Location(), DefaultCurrency: imp.DefaultCurrency},
	}
	var svc *ingest.Service
	if opts.db == "" {
		svc = ingest.NewDryRunService(svcOpts)
	} else {
		st, err := store.Open(ctx, "sqlite", opts.db, store.PoolOptions{})
		if err != nil {
			printError(stderr, err)
			return 1
		}
		defer st.Close()
		svc = ingest.NewService(st, svcOpts)
	}

	results, err := svc.ImportFiles(ctx, opts.family, paths, source)
	if err != nil {
		printError(stderr, err)
		return 1
	}

	if opts.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
	} else {
		printResults(stdout, results, opts.maxErrors)
	}

	for _, r := range results {
		if r.Status == store.StatusFailed {
			return 1
		}
	}
	return 0
}

// collectFiles expands directories into the .csv and .pdf files they
// contain, sorted by path.
func collectFiles(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		var found []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".csv", ".pdf":
				if !d.IsDir() {
					found = append(found, path)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	faint  = color.New(color.Faint)
)

func printResults(w io.Writer, results []ingest.Result, maxErrors int) {
	var created, updated, skipped, failed int
	for _, r := range results {
		printResult(w, r, maxErrors)
		created += r.Created
		updated += r.Updated
		skipped += r.Skipped
		failed += r.Parse.FailedCount
	}
	if len(results) > 1 {
		bold.Fprintf(w, "total: %d files, %d new, %d updated, %d duplicates, %d failed rows\n",
			len(results), created, updated, skipped, failed)
	}
}

func printResult(w io.Writer, r ingest.Result, maxErrors int) {
	status := statusColor(r.Status).Sprint(r.Status)
	if r.DryRun {
		status += faint.Sprint(" (dry run)")
	}
	bold.Fprintf(w, "%s", r.FileName)
	fmt.Fprintf(w, " [%s] %s\n", r.Source, status)

	if r.Error != "" && r.Parse.TotalCount == 0 {
		red.Fprintf(w, "  %s\n", r.Error)
		printHint(w, errors.New(r.Error))
		return
	}

	s := r.Parse
	fmt.Fprintf(w, "  rows: %d parsed, ", s.TotalCount)
	green.Fprintf(w, "%d ok", s.SuccessCount)
	fmt.Fprint(w, ", ")
	if s.FailedCount > 0 {
		red.Fprintf(w, "%d failed", s.FailedCount)
	} else {
		fmt.Fprintf(w, "%d failed", s.FailedCount)
	}
	fmt.Fprintf(w, " (%.2f%%)\n", s.SuccessRate)
	fmt.Fprintf(w, "  records: %d new, %d updated, %d duplicates\n", r.Created, r.Updated, r.Skipped)
	if r.Encoding != "" {
		faint.Fprintf(w, "  encoding: %s\n", r.Encoding)
	}
	if r.Error != "" {
		red.Fprintf(w, "  %s\n", r.Error)
		printHint(w, errors.New(r.Error))
	}

	for i, f := range r.Failed {
		if i == maxErrors {
			faint.Fprintf(w, "  ... %d more\n", len(r.Failed)-maxErrors)
			break
		}
		yellow.Fprintf(w, "  %s\n", f.Error)
	}
}

// printError writes err and, for known failures, what the user can do
// about it.
func printError(w io.Writer, err error) {
	fmt.Fprintln(w, "error:", err)
	printHint(w, err)
}

func printHint(w io.Writer, err error) {
	if core.IsUserFacing(err) {
		faint.Fprintf(w, "  %s\n", core.FormatUserError(err))
	}
}

func statusColor(status string) *color.Color {
	switch status {
	case store.StatusCompleted:
		return green
	case store.StatusPartialSuccess:
		return yellow
	default:
		return red
	}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(name)); err == nil {
		return n
	}
	return def
}
