// Package postgres records retrieved documents in a Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/announcement-crawler/internal/crawler"
)

// DefaultTable is used when LedgerConfig.Table is empty.
const DefaultTable = "announcement_documents"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LedgerConfig controls the Postgres connection pool used for document rows.
type LedgerConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Ledger writes one row per retrieved document. Rows are keyed by art code
// so a rerun updates the existing row.
type Ledger struct {
	pool  execCloser
	table string
}

var _ crawler.Ledger = (*Ledger)(nil)

// NewLedger creates a Postgres-backed Ledger using the provided config.
func NewLedger(ctx context.Context, cfg LedgerConfig) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Ledger{pool: pool, table: table}, nil
}

// NewLedgerWithPool constructs a ledger from an existing pool (primarily for testing).
func NewLedgerWithPool(pool execCloser, table string) (*Ledger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Ledger{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (l *Ledger) Close() {
	if l == nil || l.pool == nil {
		return
	}
	l.pool.Close()
}

// EnsureSchema creates the ledger table if it does not exist.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("ledger is not configured")
	}
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	art_code      TEXT PRIMARY KEY,
	id            TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	stock_code    TEXT NOT NULL,
	short_name    TEXT NOT NULL,
	title         TEXT NOT NULL,
	column_name   TEXT NOT NULL,
	notice_date   TEXT NOT NULL,
	source_url    TEXT NOT NULL,
	local_path    TEXT NOT NULL,
	declared_kb   BIGINT NOT NULL,
	size_bytes    BIGINT NOT NULL,
	content_hash  TEXT NOT NULL,
	archive_uri   TEXT NOT NULL DEFAULT '',
	attempts      INTEGER NOT NULL,
	retrieved_at  TIMESTAMPTZ NOT NULL
)`, l.table)
	if _, err := l.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	return nil
}

// RecordDocument upserts a document row.
func (l *Ledger) RecordDocument(ctx context.Context, record crawler.DocumentRecord) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("ledger is not configured")
	}
	if record.ArtCode == "" {
		return fmt.Errorf("art code is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	art_code,
	id,
	run_id,
	stock_code,
	short_name,
	title,
	column_name,
	notice_date,
	source_url,
	local_path,
	declared_kb,
	size_bytes,
	content_hash,
	archive_uri,
	attempts,
	retrieved_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)
ON CONFLICT (art_code) DO UPDATE SET
	id = EXCLUDED.id,
	run_id = EXCLUDED.run_id,
	local_path = EXCLUDED.local_path,
	size_bytes = EXCLUDED.size_bytes,
	content_hash = EXCLUDED.content_hash,
	archive_uri = EXCLUDED.archive_uri,
	attempts = EXCLUDED.attempts,
	retrieved_at = EXCLUDED.retrieved_at`, l.table)

	args := []any{
		record.ArtCode,
		record.ID,
		record.RunID,
		record.StockCode,
		record.ShortName,
		record.Title,
		record.Column,
		record.NoticeDate,
		record.SourceURL,
		record.LocalPath,
		record.DeclaredKB,
		record.SizeBytes,
		record.ContentHash,
		record.ArchiveURI,
		record.Attempts,
		record.RetrievedAt,
	}
	if _, err := l.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}
