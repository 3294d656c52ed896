// Package ingest turns uploaded export files into stored bills.
//
// One file is one unit of work: it is checked, parsed, deduplicated record
// by record against the store, and written in a single transaction together
// with its import history entry. Each record runs inside its own savepoint so
// a failed dedup lookup can be undone and the record still inserted.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mitrecx/my-bill-2/internal/core"
	"github.com/mitrecx/my-bill-2/internal/dedup"
	"github.com/mitrecx/my-bill-2/internal/logging"
	"github.com/mitrecx/my-bill-2/internal/store"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultMaxFileSize   = 10 << 20
	DefaultMaxConcurrent = 4
	PreviewLimit         = 20
)

// Options configures a Service.
type Options struct {
	MaxFileSize   int64
	MaxConcurrent int
	Tolerance     time.Duration
	Logger        *slog.Logger

	// Parse sets the zone and default currency of parsed records.
	Parse core.ParseOptions
}

// Request is one file to import.
type Request struct {
	FamilyID int64
	FileName string
	Data     []byte
	Source   core.Provider // empty means infer
}

// Result is the outcome of importing one file.
type Result struct {
	ImportID string              `json:"import_id"`
	FileName string              `json:"file_name"`
	Source   core.Provider       `json:"source_type"`
	Encoding string              `json:"encoding,omitempty"`
	Status   string              `json:"status"`
	Created  int                 `json:"created"`
	Updated  int                 `json:"updated"`
	Skipped  int                 `json:"skipped"`
	Parse    core.Summary        `json:"parse"`
	Failed   []core.FailedRecord `json:"failed_rows"`
	DryRun   bool                `json:"dry_run,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// Preview is a parse-only view of a file.
type Preview struct {
	FileName string                 `json:"file_name"`
	Source   core.Provider          `json:"source_type"`
	Encoding string                 `json:"encoding,omitempty"`
	Parse    core.Summary           `json:"parse"`
	Records  []core.CanonicalRecord `json:"records"`
	Failed   []core.FailedRecord    `json:"failed_rows"`
}

// Service imports files into a store. A Service without a store performs
// dry runs against an in-memory lookup that lives as long as the Service.
type Service struct {
	store store.Store
	opts  Options

	// dry-run state
	mu     sync.Mutex
	memory *dedup.MemoryLookup
}

// NewService returns a Service writing to st.
func NewService(st store.Store, opts Options) *Service {
	return &Service{store: st, opts: opts.withDefaults()}
}

// NewDryRunService returns a Service that resolves duplicates but writes
// nothing.
func NewDryRunService(opts Options) *Service {
	return &Service{opts: opts.withDefaults(), memory: dedup.NewMemoryLookup()}
}

func (o Options) withDefaults() Options {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	if o.Tolerance <= 0 {
		o.Tolerance = dedup.DefaultTolerance
	}
	return o
}

// MaxFileSize returns the configured upload limit in bytes.
func (s *Service) MaxFileSize() int64 { return s.opts.MaxFileSize }

func (s *Service) logger(ctx context.Context) *slog.Logger {
	if s.opts.Logger != nil {
		return s.opts.Logger
	}
	return logging.FromContext(ctx)
}

// parse validates the upload, resolves the provider and parses the bytes.
func (s *Service) parse(req Request) (*core.ParseResult, error) {
	if err := core.CheckUpload(req.FileName, int64(len(req.Data)), s.opts.MaxFileSize, req.Source); err != nil {
		return nil, err
	}
	source := req.Source
	if source == "" {
		var err error
		source, err = core.InferProvider(req.FileName, req.Data)
		if err != nil {
			return nil, err
		}
		if err := core.CheckUpload(req.FileName, int64(len(req.Data)), s.opts.MaxFileSize, source); err != nil {
			return nil, err
		}
	}
	return core.ParseBytes(source, req.Data, req.FileName, s.opts.Parse), nil
}

// Preview parses a file without touching the store.
func (s *Service) Preview(req Request) (Preview, error) {
	parsed, err := s.parse(req)
	if err != nil {
		return Preview{}, err
	}
	records := parsed.Successes
	if len(records) > PreviewLimit {
		records = records[:PreviewLimit]
	}
	return Preview{
		FileName: parsed.FileName,
		Source:   parsed.Source,
		Encoding: parsed.Encoding,
		Parse:    parsed.Summary(),
		Records:  records,
		Failed:   failedRows(parsed),
	}, nil
}

// Import parses req and writes its records. The returned error covers
// request problems (size, extension, source) and store failures; parse
// problems are reported in the Result.
func (s *Service) Import(ctx context.Context, req Request) (Result, error) {
	parsed, err := s.parse(req)
	if err != nil {
		return Result{}, err
	}
	return s.persist(ctx, req.FamilyID, parsed)
}

// persist deduplicates and writes a parsed file.
func (s *Service) persist(ctx context.Context, familyID int64, parsed *core.ParseResult) (Result, error) {
	res := Result{
		ImportID: uuid.NewString(),
		FileName: parsed.FileName,
		Source:   parsed.Source,
		Encoding: parsed.Encoding,
		Parse:    parsed.Summary(),
		Failed:   failedRows(parsed),
	}
	log := s.logger(ctx).With("import_id", res.ImportID, "source", parsed.Source, "file", parsed.FileName)

	if s.store == nil {
		s.dryRun(ctx, familyID, parsed, &res, log)
		return res, nil
	}

	if parsed.HasFatal() {
		res.Status = store.StatusFailed
		log.Warn("file rejected", "error", firstError(parsed))
		err := s.saveHistory(ctx, familyID, res, parsed)
		res.Error = firstError(parsed)
		return res, err
	}

	if err := s.write(ctx, familyID, parsed, &res, log); err != nil {
		log.Error("import rolled back", "error", err)
		res.Status = store.StatusFailed
		res.Created, res.Updated, res.Skipped = 0, 0, 0
		res.Error = err.Error()
		if herr := s.saveHistory(ctx, familyID, res, parsed); herr != nil {
			log.Error("save failed import", "error", herr)
		}
		return res, err
	}

	log.Info("import finished",
		"status", res.Status,
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"failed", parsed.FailedCount,
	)
	return res, nil
}

// write runs the per-record savepoint loop in one transaction.
func (s *Service) write(ctx context.Context, familyID int64, parsed *core.ParseResult, res *Result, log *slog.Logger) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	resolver := &dedup.Resolver{Lookup: tx, Tolerance: s.opts.Tolerance, Logger: log}

	for i, rec := range parsed.Successes {
		sp := fmt.Sprintf("sp_%d", i)
		if err := tx.Savepoint(ctx, sp); err != nil {
			return fmt.Errorf("savepoint: %w", err)
		}

		d := resolver.Resolve(ctx, familyID, rec)
		if d.Err != nil {
			// A failed statement poisons the transaction until rolled back.
			if err := tx.RollbackTo(ctx, sp); err != nil {
				return fmt.Errorf("rollback to savepoint: %w", err)
			}
		}

		switch d.Verdict {
		case dedup.VerdictNew:
			if _, err := tx.InsertBill(ctx, familyID, res.ImportID, rec); err != nil {
				return fmt.Errorf("record %d: %w", i+1, err)
			}
			res.Created++
		case dedup.VerdictUpdate:
			if err := tx.UpdateBill(ctx, d.Existing.ID, res.ImportID, rec); err != nil {
				return fmt.Errorf("record %d: %w", i+1, err)
			}
			res.Updated++
		case dedup.VerdictDuplicate:
			log.Debug("duplicate skipped", "existing_id", d.Existing.ID, "reason", d.Reason)
			res.Skipped++
		}

		if err := tx.Release(ctx, sp); err != nil {
			return fmt.Errorf("release savepoint: %w", err)
		}
	}

	res.Status = importStatus(parsed)
	if err := tx.SaveImport(ctx, historyRecord(familyID, *res, parsed)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// saveHistory records a failed import in its own transaction.
func (s *Service) saveHistory(ctx context.Context, familyID int64, res Result, parsed *core.ParseResult) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := tx.SaveImport(ctx, historyRecord(familyID, res, parsed)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) dryRun(ctx context.Context, familyID int64, parsed *core.ParseResult, res *Result, log *slog.Logger) {
	res.DryRun = true
	if parsed.HasFatal() {
		res.Status = store.StatusFailed
		res.Error = firstError(parsed)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resolver := &dedup.Resolver{Lookup: s.memory, Tolerance: s.opts.Tolerance, Logger: log}
	for _, rec := range parsed.Successes {
		d := resolver.Resolve(ctx, familyID, rec)
		s.memory.Apply(familyID, d, rec)
		switch d.Verdict {
		case dedup.VerdictNew:
			res.Created++
		case dedup.VerdictUpdate:
			res.Updated++
		case dedup.VerdictDuplicate:
			res.Skipped++
		}
	}
	res.Status = importStatus(parsed)
}

// ImportFiles parses the files at paths concurrently, then writes them one
// at a time in the given order so later files deduplicate against earlier
// ones. Per-file problems are reported in each Result's Error.
func (s *Service) ImportFiles(ctx context.Context, familyID int64, paths []string, source core.Provider) ([]Result, error) {
	parsed := make([]*core.ParseResult, len(paths))
	errs := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrent)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				errs[i] = fmt.Errorf("read file: %w", err)
				return nil
			}
			parsed[i], errs[i] = s.parse(Request{FamilyID: familyID, FileName: filepath.Base(path), Data: data, Source: source})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]Result, len(paths))
	for i, path := range paths {
		if errs[i] != nil {
			results[i] = Result{FileName: filepath.Base(path), Source: source, Status: store.StatusFailed, Error: errs[i].Error()}
			continue
		}
		res, err := s.persist(ctx, familyID, parsed[i])
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return results[:i], err
			}
			res.Error = err.Error()
		}
		results[i] = res
	}
	return results, nil
}

// GetImport returns a stored import summary.
func (s *Service) GetImport(ctx context.Context, id string) (store.ImportRecord, error) {
	if s.store == nil {
		return store.ImportRecord{}, fmt.Errorf("%w: %s", store.ErrImportNotFound, id)
	}
	return s.store.GetImport(ctx, id)
}

// importStatus is completed when every row was standardized, failed when
// none was, and partial_success otherwise.
func importStatus(parsed *core.ParseResult) string {
	switch {
	case parsed.HasFatal():
		return store.StatusFailed
	case parsed.FailedCount == 0:
		return store.StatusCompleted
	case parsed.SuccessCount == 0:
		return store.StatusFailed
	default:
		return store.StatusPartialSuccess
	}
}

func historyRecord(familyID int64, res Result, parsed *core.ParseResult) store.ImportRecord {
	errs := parsed.Summary().Errors
	if res.Error != "" {
		errs = append([]string{res.Error}, errs...)
	}
	return store.ImportRecord{
		ID:           res.ImportID,
		FamilyID:     familyID,
		FileName:     res.FileName,
		Source:       res.Source,
		Status:       res.Status,
		TotalCount:   parsed.TotalCount,
		SuccessCount: parsed.SuccessCount,
		FailedCount:  parsed.FailedCount,
		Created:      res.Created,
		Updated:      res.Updated,
		Skipped:      res.Skipped,
		Errors:       errs,
		CreatedAt:    time.Now().UTC(),
	}
}

func failedRows(parsed *core.ParseResult) []core.FailedRecord {
	if parsed.Failures == nil {
		return []core.FailedRecord{}
	}
	return parsed.Failures
}

func firstError(parsed *core.ParseResult) string {
	if len(parsed.Errors) == 0 {
		return ""
	}
	return parsed.Errors[0]
}
