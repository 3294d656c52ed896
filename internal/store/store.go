// Package store persists canonical records and import history.
//
// Two implementations share the Store and Tx interfaces: PostgreSQL through
// a pgx connection pool, and SQLite through modernc.org/sqlite for the CLI
// and tests. All writes for one file happen inside one Tx; callers wrap each
// record in a savepoint so a failed statement can be undone without losing
// the rest of the file.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mitrecx/my-bill-2/internal/core"
	"github.com/mitrecx/my-bill-2/internal/dedup"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrImportNotFound is returned by GetImport. It matches ErrNotFound.
var ErrImportNotFound = fmt.Errorf("import %w", ErrNotFound)

// Import statuses.
const (
	StatusCompleted      = "completed"
	StatusPartialSuccess = "partial_success"
	StatusFailed         = "failed"
)

// Bill is a stored canonical record.
type Bill struct {
	ID        int64
	FamilyID  int64
	ImportID  string
	Record    core.CanonicalRecord
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ImportRecord is the history entry written for every imported file.
type ImportRecord struct {
	ID           string        `json:"import_id"`
	FamilyID     int64         `json:"family_id"`
	FileName     string        `json:"file_name"`
	Source       core.Provider `json:"source_type"`
	Status       string        `json:"status"`
	TotalCount   int           `json:"total_count"`
	SuccessCount int           `json:"success_count"`
	FailedCount  int           `json:"failed_count"`
	Created      int           `json:"created"`
	Updated      int           `json:"updated"`
	Skipped      int           `json:"skipped"`
	Errors       []string      `json:"errors"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Store opens transactions and answers read-only queries.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	GetImport(ctx context.Context, id string) (ImportRecord, error)
	ListBills(ctx context.Context, familyID int64) ([]Bill, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Tx is one unit of work. Its lookups see the writes made earlier in the
// same transaction, which is what lets a batch deduplicate against itself.
type Tx interface {
	dedup.Lookup

	InsertBill(ctx context.Context, familyID int64, importID string, rec core.CanonicalRecord) (int64, error)
	UpdateBill(ctx context.Context, id int64, importID string, rec core.CanonicalRecord) error
	SaveImport(ctx context.Context, rec ImportRecord) error

	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Open connects to the store named by driver: "postgres" takes a
// connection URL, "sqlite" a file path. The schema is migrated.
func Open(ctx context.Context, driver, dsn string, opts PoolOptions) (Store, error) {
	var (
		st  Store
		err error
	)
	switch driver {
	case "postgres":
		st, err = OpenPostgres(ctx, dsn, opts)
	case "sqlite":
		st, err = OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// rawJSON encodes the raw record, keeping column order.
func rawJSON(rec core.CanonicalRecord) (string, error) {
	b, err := json.Marshal(rec.RawData)
	if err != nil {
		return "", fmt.Errorf("encode raw data: %w", err)
	}
	return string(b), nil
}

func errorsJSON(errs []string) (string, error) {
	if errs == nil {
		errs = []string{}
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("encode errors: %w", err)
	}
	return string(b), nil
}

// nullString maps "" to NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func balanceArg(rec core.CanonicalRecord) *string {
	if rec.Balance == nil {
		return nil
	}
	s := rec.Balance.String()
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
