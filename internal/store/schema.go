package store

// postgresSchema creates the tables on PostgreSQL. raw_data is JSON rather
// than JSONB so the export's column order survives.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS bills (
		id               BIGSERIAL PRIMARY KEY,
		family_id        BIGINT NOT NULL,
		import_id        UUID,
		source_type      TEXT NOT NULL,
		order_id         TEXT,
		transaction_time TIMESTAMPTZ NOT NULL,
		amount           NUMERIC(14,2) NOT NULL,
		transaction_type TEXT NOT NULL,
		merchant_name    TEXT NOT NULL DEFAULT '',
		transaction_desc TEXT NOT NULL DEFAULT '',
		payment_method   TEXT NOT NULL DEFAULT '',
		category         TEXT NOT NULL DEFAULT '',
		counter_party    TEXT NOT NULL DEFAULT '',
		remark           TEXT NOT NULL DEFAULT '',
		currency         TEXT NOT NULL DEFAULT 'CNY',
		balance          NUMERIC(14,2),
		raw_data         JSON NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS bills_order_id_key
		ON bills (family_id, source_type, order_id) WHERE order_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS bills_content_idx
		ON bills (family_id, source_type, transaction_time)`,
	`CREATE TABLE IF NOT EXISTS imports (
		id            UUID PRIMARY KEY,
		family_id     BIGINT NOT NULL,
		file_name     TEXT NOT NULL,
		source_type   TEXT NOT NULL,
		status        TEXT NOT NULL,
		total_count   INT NOT NULL DEFAULT 0,
		success_count INT NOT NULL DEFAULT 0,
		failed_count  INT NOT NULL DEFAULT 0,
		created_count INT NOT NULL DEFAULT 0,
		updated_count INT NOT NULL DEFAULT 0,
		skipped_count INT NOT NULL DEFAULT 0,
		errors        JSON NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// sqliteSchema mirrors postgresSchema. Times are unix seconds and amounts
// are decimal strings, compared exactly in Go.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS bills (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		family_id        INTEGER NOT NULL,
		import_id        TEXT,
		source_type      TEXT NOT NULL,
		order_id         TEXT,
		transaction_time INTEGER NOT NULL,
		amount           TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		merchant_name    TEXT NOT NULL DEFAULT '',
		transaction_desc TEXT NOT NULL DEFAULT '',
		payment_method   TEXT NOT NULL DEFAULT '',
		category         TEXT NOT NULL DEFAULT '',
		counter_party    TEXT NOT NULL DEFAULT '',
		remark           TEXT NOT NULL DEFAULT '',
		currency         TEXT NOT NULL DEFAULT 'CNY',
		balance          TEXT,
		raw_data         TEXT NOT NULL,
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS bills_order_id_key
		ON bills (family_id, source_type, order_id) WHERE order_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS bills_content_idx
		ON bills (family_id, source_type, transaction_time)`,
	`CREATE TABLE IF NOT EXISTS imports (
		id            TEXT PRIMARY KEY,
		family_id     INTEGER NOT NULL,
		file_name     TEXT NOT NULL,
		source_type   TEXT NOT NULL,
		status        TEXT NOT NULL,
		total_count   INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		failed_count  INTEGER NOT NULL DEFAULT 0,
		created_count INTEGER NOT NULL DEFAULT 0,
		updated_count INTEGER NOT NULL DEFAULT 0,
		skipped_count INTEGER NOT NULL DEFAULT 0,
		errors        TEXT NOT NULL,
		created_at    INTEGER NOT NULL
	)`,
}
