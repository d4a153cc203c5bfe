package storage

// sqlite.go: system of record del motor de bankroll.
//
// Tablas:
//   - `strategies`: una fila por estrategia; current_bankroll es la caché del ledger
//     y `version` se incrementa en cada cambio (compare-and-swap).
//   - `bankroll_history`: ledger append-only, ordenado por (strategy_id, seq).
//   - `strategy_selections`: decisiones de staking, pending → won | lost.
//   - `strategy_stats`: contadores acumulados, una fila por estrategia.
//
// Los importes monetarios se guardan como TEXT decimal exacto (shopspring/decimal).

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/stakebook/internal/domain"
	"github.com/alejandrodnm/stakebook/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS strategies (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    initial_bankroll TEXT NOT NULL,
    current_bankroll TEXT NOT NULL,
    currency         TEXT NOT NULL DEFAULT 'USD',
    fractional_kelly REAL NOT NULL DEFAULT 1.0,
    version          INTEGER NOT NULL DEFAULT 1,
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bankroll_history (
    id                TEXT PRIMARY KEY,
    strategy_id       TEXT NOT NULL REFERENCES strategies(id) ON DELETE CASCADE,
    seq               INTEGER NOT NULL,
    previous_amount   TEXT NOT NULL,
    amount            TEXT NOT NULL,
    change_amount     TEXT NOT NULL,
    change_percentage REAL,
    entry_type        TEXT NOT NULL,
    description       TEXT NOT NULL DEFAULT '',
    selection_id      TEXT,
    created_at        TEXT NOT NULL,
    UNIQUE (strategy_id, seq)
);

CREATE TABLE IF NOT EXISTS strategy_selections (
    id                     TEXT PRIMARY KEY,
    strategy_id            TEXT NOT NULL REFERENCES strategies(id) ON DELETE CASCADE,
    fixture_id             TEXT NOT NULL,
    odd_id                 TEXT NOT NULL DEFAULT '',
    market_id              TEXT NOT NULL,
    bookmaker_id           TEXT NOT NULL,
    selection_label        TEXT NOT NULL,
    odd_value              REAL NOT NULL,
    implied_probability    REAL NOT NULL,
    prediction_probability REAL,
    expected_value         REAL,
    kelly_stake            REAL,
    stake_percentage       REAL,
    applied_stake          TEXT NOT NULL,
    potential_profit       TEXT NOT NULL,
    status                 TEXT NOT NULL DEFAULT 'pending',
    result                 TEXT NOT NULL DEFAULT '',
    is_winner              INTEGER,
    profit_loss            TEXT,
    created_at             TEXT NOT NULL,
    settled_at             TEXT
);

CREATE TABLE IF NOT EXISTS strategy_stats (
    strategy_id        TEXT PRIMARY KEY REFERENCES strategies(id) ON DELETE CASCADE,
    total_bets         INTEGER NOT NULL DEFAULT 0,
    won_bets           INTEGER NOT NULL DEFAULT 0,
    lost_bets          INTEGER NOT NULL DEFAULT 0,
    pending_bets       INTEGER NOT NULL DEFAULT 0,
    total_staked       TEXT NOT NULL DEFAULT '0',
    total_returns      TEXT NOT NULL DEFAULT '0',
    total_profit       TEXT NOT NULL DEFAULT '0',
    roi                REAL NOT NULL DEFAULT 0,
    current_streak     INTEGER NOT NULL DEFAULT 0,
    max_winning_streak INTEGER NOT NULL DEFAULT 0,
    last_updated       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_strategy   ON bankroll_history(strategy_id, seq);
CREATE INDEX IF NOT EXISTS idx_selection_strategy ON strategy_selections(strategy_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_selection_status   ON strategy_selections(status);
`

// timeLayout ordena lexicográficamente igual que cronológicamente (UTC, nanosegundos fijos).
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// dbtx es lo común entre *sql.DB y *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implementa ports.BankrollQueries sobre una conexión o una transacción.
type queries struct {
	db dbtx
}

// SQLiteStorage implementa ports.BankrollStorage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	*queries
	conn *sql.DB
}

var _ ports.BankrollStorage = (*SQLiteStorage)(nil)

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	return &SQLiteStorage{queries: &queries{db: db}, conn: db}, nil
}

// WithinTx ejecuta fn en una transacción. Cualquier error (o panic) hace rollback.
func (s *SQLiteStorage) WithinTx(ctx context.Context, fn func(q ports.BankrollQueries) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.WithinTx: begin tx: %w: %w", domain.ErrStorage, err)
	}
	defer tx.Rollback()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.WithinTx: commit: %w: %w", domain.ErrStorage, err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.conn.Close()
}

// --- helpers internos ---

// storageErr envuelve un fallo del driver con domain.ErrStorage.
func storageErr(op string, err error) error {
	return fmt.Errorf("storage.%s: %w: %w", op, domain.ErrStorage, err)
}

// notFound traduce sql.ErrNoRows al error de dominio correspondiente.
func notFound(op string, err, target error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("storage.%s: %w", op, target)
	}
	return storageErr(op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
