package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mitrecx/my-bill-2/internal/core"
	"github.com/mitrecx/my-bill-2/internal/dedup"
)

// PoolOptions sizes the PostgreSQL connection pool.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url and verifies the connection.
func OpenPostgres(ctx context.Context, url string, opts PoolOptions) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

func (p *Postgres) GetImport(ctx context.Context, id string) (ImportRecord, error) {
	var (
		rec    ImportRecord
		source string
		errs   string
	)
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, family_id, file_name, source_type, status,
		       total_count, success_count, failed_count,
		       created_count, updated_count, skipped_count, errors::text, created_at
		FROM imports WHERE id::text = $1`, id).Scan(
		&rec.ID, &rec.FamilyID, &rec.FileName, &source, &rec.Status,
		&rec.TotalCount, &rec.SuccessCount, &rec.FailedCount,
		&rec.Created, &rec.Updated, &rec.Skipped, &errs, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ImportRecord{}, fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	if err != nil {
		return ImportRecord{}, fmt.Errorf("get import: %w", err)
	}
	rec.Source = core.Provider(source)
	if err := json.Unmarshal([]byte(errs), &rec.Errors); err != nil {
		return ImportRecord{}, fmt.Errorf("decode import errors: %w", err)
	}
	return rec, nil
}

func (p *Postgres) ListBills(ctx context.Context, familyID int64) ([]Bill, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, family_id, COALESCE(import_id::text, ''), source_type, order_id,
		       transaction_time, amount::text, transaction_type, merchant_name,
		       transaction_desc, payment_method, category, counter_party, remark,
		       currency, balance::text, raw_data::text, created_at, updated_at
		FROM bills WHERE family_id = $1
		ORDER BY transaction_time, id`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var out []Bill
	for rows.Next() {
		var (
			b                   Bill
			source, amount, raw string
			orderID, balance    *string
		)
		r := &b.Record
		if err := rows.Scan(
			&b.ID, &b.FamilyID, &b.ImportID, &source, &orderID,
			&r.TransactionTime, &amount, &r.TransactionType, &r.MerchantName,
			&r.TransactionDesc, &r.PaymentMethod, &r.Category, &r.CounterParty, &r.Remark,
			&r.Currency, &balance, &raw, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		if err := fillRecord(r, source, deref(orderID), amount, balance, raw); err != nil {
			return nil, err
		}
		r.TransactionTime = r.TransactionTime.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// pgTx is a Tx over a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) FindByOrderID(ctx context.Context, scope int64, source core.Provider, orderID string) (*dedup.Existing, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, source_type, COALESCE(order_id, ''), transaction_time, amount::text,
		       transaction_desc, merchant_name
		FROM bills
		WHERE family_id = $1 AND source_type = $2 AND order_id = $3
		LIMIT 1`, scope, string(source), orderID)
	if err != nil {
		return nil, fmt.Errorf("find by order id: %w", err)
	}
	found, err := scanExisting(rows)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

func (t *pgTx) FindByContent(ctx context.Context, scope int64, source core.Provider, from, to time.Time, amount decimal.Decimal) ([]dedup.Existing, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, source_type, COALESCE(order_id, ''), transaction_time, amount::text,
		       transaction_desc, merchant_name
		FROM bills
		WHERE family_id = $1 AND source_type = $2
		  AND transaction_time BETWEEN $3 AND $4
		  AND amount = $5::numeric
		ORDER BY transaction_time, id`, scope, string(source), from, to, amount.String())
	if err != nil {
		return nil, fmt.Errorf("find by content: %w", err)
	}
	return scanExisting(rows)
}

func scanExisting(rows pgx.Rows) ([]dedup.Existing, error) {
	defer rows.Close()
	var out []dedup.Existing
	for rows.Next() {
		var (
			e              dedup.Existing
			source, amount string
		)
		if err := rows.Scan(&e.ID, &source, &e.OrderID, &e.TransactionTime, &amount, &e.TransactionDesc, &e.MerchantName); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("bill %d amount: %w", e.ID, err)
		}
		e.Source = core.Provider(source)
		e.Amount = d
		e.TransactionTime = e.TransactionTime.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertBill(ctx context.Context, familyID int64, importID string, rec core.CanonicalRecord) (int64, error) {
	raw, err := rawJSON(rec)
	if err != nil {
		return 0, err
	}
	var id int64
	err = t.tx.QueryRow(ctx, `
		INSERT INTO bills (
			family_id, import_id, source_type, order_id, transaction_time, amount,
			transaction_type, merchant_name, transaction_desc, payment_method,
			category, counter_party, remark, currency, balance, raw_data)
		VALUES ($1, $2::uuid, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12, $13, $14, $15::numeric, $16)
		RETURNING id`,
		familyID, nullString(importID), string(rec.SourceType), nullString(rec.OrderID),
		rec.TransactionTime, rec.Amount.String(), rec.TransactionType, rec.MerchantName,
		rec.TransactionDesc, rec.PaymentMethod, rec.Category, rec.CounterParty, rec.Remark,
		rec.Currency, balanceArg(rec), raw,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert bill: %w", err)
	}
	return id, nil
}

func (t *pgTx) UpdateBill(ctx context.Context, id int64, importID string, rec core.CanonicalRecord) error {
	raw, err := rawJSON(rec)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE bills SET
			import_id = $2::uuid, transaction_time = $3, amount = $4::numeric,
			transaction_type = $5, merchant_name = $6, transaction_desc = $7,
			payment_method = $8, category = $9, counter_party = $10, remark = $11,
			currency = $12, balance = $13::numeric, raw_data = $14, updated_at = now()
		WHERE id = $1`,
		id, nullString(importID), rec.TransactionTime, rec.Amount.String(),
		rec.TransactionType, rec.MerchantName, rec.TransactionDesc,
		rec.PaymentMethod, rec.Category, rec.CounterParty, rec.Remark,
		rec.Currency, balanceArg(rec), raw,
	)
	if err != nil {
		return fmt.Errorf("update bill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update bill %d: %w", id, ErrNotFound)
	}
	return nil
}

func (t *pgTx) SaveImport(ctx context.Context, rec ImportRecord) error {
	errs, err := errorsJSON(rec.Errors)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO imports (
			id, family_id, file_name, source_type, status,
			total_count, success_count, failed_count,
			created_count, updated_count, skipped_count, errors, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.FamilyID, rec.FileName, string(rec.Source), rec.Status,
		rec.TotalCount, rec.SuccessCount, rec.FailedCount,
		rec.Created, rec.Updated, rec.Skipped, errs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save import: %w", err)
	}
	return nil
}

func (t *pgTx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, fmt.Sprintf("SAVEPOINT %s", name))
	return err
}

func (t *pgTx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", name))
	return err
}

func (t *pgTx) Release(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, fmt.Sprintf("RELEASE SAVEPOINT %s", name))
	return err
}

func (t *pgTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

// Rollback is a no-op after Commit.
func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// fillRecord decodes the text columns shared by both stores.
func fillRecord(r *core.CanonicalRecord, source, orderID, amount string, balance *string, raw string) error {
	r.SourceType = core.Provider(source)
	r.OrderID = orderID
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("decode amount %q: %w", amount, err)
	}
	r.Amount = d
	if balance != nil {
		b, err := decimal.NewFromString(*balance)
		if err != nil {
			return fmt.Errorf("decode balance %q: %w", *balance, err)
		}
		r.Balance = &b
	}
	if err := json.Unmarshal([]byte(raw), &r.RawData); err != nil {
		return fmt.Errorf("decode raw data: %w", err)
	}
	return nil
}
