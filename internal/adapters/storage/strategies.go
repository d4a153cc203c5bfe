package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/stakebook/internal/domain"
	"github.com/shopspring/decimal"
)

const strategyColumns = `
	id, name, description, initial_bankroll, current_bankroll,
	currency, fractional_kelly, version, created_at, updated_at`

// InsertStrategy crea la fila de la estrategia.
func (q *queries) InsertStrategy(ctx context.Context, s domain.Strategy) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO strategies (`+strategyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Description, s.InitialBankroll.String(), s.CurrentBankroll.String(),
		s.Currency, s.FractionalKelly, s.Version, formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
	)
	if err != nil {
		return storageErr("InsertStrategy", err)
	}
	return nil
}

// GetStrategy devuelve la estrategia o domain.ErrStrategyNotFound.
func (q *queries) GetStrategy(ctx context.Context, id string) (domain.Strategy, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+strategyColumns+` FROM strategies WHERE id = ?`, id)
	s, err := scanStrategy(row)
	if err != nil {
		return domain.Strategy{}, notFound("GetStrategy", err, domain.ErrStrategyNotFound)
	}
	return s, nil
}

// ListStrategies devuelve todas las estrategias, las más recientes primero.
func (q *queries) ListStrategies(ctx context.Context) ([]domain.Strategy, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+strategyColumns+` FROM strategies ORDER BY created_at DESC`)
	if err != nil {
		return nil, storageErr("ListStrategies", err)
	}
	defer rows.Close()

	var out []domain.Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, storageErr("ListStrategies", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("ListStrategies", err)
	}
	return out, nil
}

// UpdateStrategyBankroll actualiza la caché del balance si la versión no cambió.
func (q *queries) UpdateStrategyBankroll(ctx context.Context, id string, balance decimal.Decimal, expectedVersion int64, at time.Time) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE strategies
		SET current_bankroll = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		balance.String(), formatTime(at), id, expectedVersion,
	)
	if err != nil {
		return storageErr("UpdateStrategyBankroll", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("UpdateStrategyBankroll", err)
	}
	if n == 0 {
		return fmt.Errorf("storage.UpdateStrategyBankroll: strategy %s version %d: %w", id, expectedVersion, domain.ErrConcurrencyConflict)
	}
	return nil
}

// rowScanner es lo común entre *sql.Row y *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanStrategy(r rowScanner) (domain.Strategy, error) {
	var s domain.Strategy
	var createdAt, updatedAt string
	if err := r.Scan(
		&s.ID, &s.Name, &s.Description, &s.InitialBankroll, &s.CurrentBankroll,
		&s.Currency, &s.FractionalKelly, &s.Version, &createdAt, &updatedAt,
	); err != nil {
		return domain.Strategy{}, err
	}
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return s, nil
}
