package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/mitrecx/my-bill-2/internal/core"
	"github.com/mitrecx/my-bill-2/internal/dedup"
)

// SQLite is a Store backed by a SQLite file, or memory for ":memory:".
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Every connection to ":memory:" is a separate database, and SQLite
	// allows one writer anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

func (s *SQLite) GetImport(ctx context.Context, id string) (ImportRecord, error) {
	var (
		rec     ImportRecord
		source  string
		errs    string
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, family_id, file_name, source_type, status,
		       total_count, success_count, failed_count,
		       created_count, updated_count, skipped_count, errors, created_at
		FROM imports WHERE id = ?`, id).Scan(
		&rec.ID, &rec.FamilyID, &rec.FileName, &source, &rec.Status,
		&rec.TotalCount, &rec.SuccessCount, &rec.FailedCount,
		&rec.Created, &rec.Updated, &rec.Skipped, &errs, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ImportRecord{}, fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	if err != nil {
		return ImportRecord{}, fmt.Errorf("get import: %w", err)
	}
	rec.Source = core.Provider(source)
	rec.CreatedAt = time.Unix(created, 0).UTC()
	if err := json.Unmarshal([]byte(errs), &rec.Errors); err != nil {
		return ImportRecord{}, fmt.Errorf("decode import errors: %w", err)
	}
	return rec, nil
}

func (s *SQLite) ListBills(ctx context.Context, familyID int64) ([]Bill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, family_id, COALESCE(import_id, ''), source_type, order_id,
		       transaction_time, amount, transaction_type, merchant_name,
		       transaction_desc, payment_method, category, counter_party, remark,
		       currency, balance, raw_data, created_at, updated_at
		FROM bills WHERE family_id = ?
		ORDER BY transaction_time, id`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var out []Bill
	for rows.Next() {
		var (
			b                    Bill
			source, amount, raw  string
			orderID, balance     sql.NullString
			at, created, updated int64
		)
		r := &b.Record
		if err := rows.Scan(
			&b.ID, &b.FamilyID, &b.ImportID, &source, &orderID,
			&at, &amount, &r.TransactionType, &r.MerchantName,
			&r.TransactionDesc, &r.PaymentMethod, &r.Category, &r.CounterParty, &r.Remark,
			&r.Currency, &balance, &raw, &created, &updated,
		); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		var bal *string
		if balance.Valid {
			bal = &balance.String
		}
		if err := fillRecord(r, source, orderID.String, amount, bal, raw); err != nil {
			return nil, err
		}
		r.TransactionTime = time.Unix(at, 0).UTC()
		b.CreatedAt = time.Unix(created, 0).UTC()
		b.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// sqliteTx is a Tx over a database/sql transaction.
type sqliteTx struct {
	tx *sql.Tx
}

const sqliteExistingColumns = `id, source_type, COALESCE(order_id, ''), transaction_time, amount, transaction_desc, merchant_name`

func (t *sqliteTx) FindByOrderID(ctx context.Context, scope int64, source core.Provider, orderID string) (*dedup.Existing, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+sqliteExistingColumns+`
		FROM bills
		WHERE family_id = ? AND source_type = ? AND order_id = ?
		LIMIT 1`, scope, string(source), orderID)
	if err != nil {
		return nil, fmt.Errorf("find by order id: %w", err)
	}
	found, err := scanSQLiteExisting(rows)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

// FindByContent filters by time in SQL and by amount in Go, since amounts
// are stored as text.
func (t *sqliteTx) FindByContent(ctx context.Context, scope int64, source core.Provider, from, to time.Time, amount decimal.Decimal) ([]dedup.Existing, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+sqliteExistingColumns+`
		FROM bills
		WHERE family_id = ? AND source_type = ?
		  AND transaction_time BETWEEN ? AND ?
		ORDER BY transaction_time, id`, scope, string(source), from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("find by content: %w", err)
	}
	all, err := scanSQLiteExisting(rows)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if e.Amount.Equal(amount) {
			out = append(out, e)
		}
	}
	return out, nil
}

func scanSQLiteExisting(rows *sql.Rows) ([]dedup.Existing, error) {
	defer rows.Close()
	var out []dedup.Existing
	for rows.Next() {
		var (
			e              dedup.Existing
			source, amount string
			at             int64
		)
		if err := rows.Scan(&e.ID, &source, &e.OrderID, &at, &amount, &e.TransactionDesc, &e.MerchantName); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("bill %d amount: %w", e.ID, err)
		}
		e.Source = core.Provider(source)
		e.Amount = d
		e.TransactionTime = time.Unix(at, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *sqliteTx) InsertBill(ctx context.Context, familyID int64, importID string, rec core.CanonicalRecord) (int64, error) {
	raw, err := rawJSON(rec)
	if err != nil {
		return 0, err
	}
	now := time.Now().Unix()
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO bills (
			family_id, import_id, source_type, order_id, transaction_time, amount,
			transaction_type, merchant_name, transaction_desc, payment_method,
			category, counter_party, remark, currency, balance, raw_data,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		familyID, nullString(importID), string(rec.SourceType), nullString(rec.OrderID),
		rec.TransactionTime.Unix(), rec.Amount.String(), rec.TransactionType, rec.MerchantName,
		rec.TransactionDesc, rec.PaymentMethod, rec.Category, rec.CounterParty, rec.Remark,
		rec.Currency, balanceArg(rec), raw, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert bill: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert bill: %w", err)
	}
	return id, nil
}

func (t *sqliteTx) UpdateBill(ctx context.Context, id int64, importID string, rec core.CanonicalRecord) error {
	raw, err := rawJSON(rec)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE bills SET
			import_id = ?, transaction_time = ?, amount = ?, transaction_type = ?,
			merchant_name = ?, transaction_desc = ?, payment_method = ?, category = ?,
			counter_party = ?, remark = ?, currency = ?, balance = ?, raw_data = ?,
			updated_at = ?
		WHERE id = ?`,
		nullString(importID), rec.TransactionTime.Unix(), rec.Amount.String(), rec.TransactionType,
		rec.MerchantName, rec.TransactionDesc, rec.PaymentMethod, rec.Category,
		rec.CounterParty, rec.Remark, rec.Currency, balanceArg(rec), raw,
		time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("update bill: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update bill %d: %w", id, ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) SaveImport(ctx context.Context, rec ImportRecord) error {
	errs, err := errorsJSON(rec.Errors)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO imports (
			id, family_id, file_name, source_type, status,
			total_count, success_count, failed_count,
			created_count, updated_count, skipped_count, errors, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FamilyID, rec.FileName, string(rec.Source), rec.Status,
		rec.TotalCount, rec.SuccessCount, rec.FailedCount,
		rec.Created, rec.Updated, rec.Skipped, errs, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save import: %w", err)
	}
	return nil
}

func (t *sqliteTx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, fmt.Sprintf("SAVEPOINT %s", name))
	return err
}

func (t *sqliteTx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", name))
	return err
}

func (t *sqliteTx) Release(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, fmt.Sprintf("RELEASE SAVEPOINT %s", name))
	return err
}

func (t *sqliteTx) Commit(context.Context) error { return t.tx.Commit() }

// Rollback is a no-op after Commit.
func (t *sqliteTx) Rollback(context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
