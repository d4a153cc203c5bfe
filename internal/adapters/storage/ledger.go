package storage

import (
	"context"
	"database/sql"

	"github.com/alejandrodnm/stakebook/internal/domain"
	"github.com/google/uuid"
)

// AppendLedgerEntry añade un movimiento al final del ledger de la estrategia.
// Asigna ID y el siguiente Seq; el par (strategy_id, seq) es único.
func (q *queries) AppendLedgerEntry(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM bankroll_history WHERE strategy_id = ?`, e.StrategyID,
	).Scan(&e.Seq); err != nil {
		return domain.LedgerEntry{}, storageErr("AppendLedgerEntry: next seq", err)
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO bankroll_history
			(id, strategy_id, seq, previous_amount, amount, change_amount,
			 change_percentage, entry_type, description, selection_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.StrategyID, e.Seq, e.PreviousAmount.String(), e.Amount.String(), e.ChangeAmount.String(),
		nullFloat(e.ChangePercentage), string(e.EntryType), e.Description, nullString(e.SelectionID),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return domain.LedgerEntry{}, storageErr("AppendLedgerEntry", err)
	}
	return e, nil
}

// GetLedger devuelve el ledger completo de la estrategia en orden de inserción.
func (q *queries) GetLedger(ctx context.Context, strategyID string) ([]domain.LedgerEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, strategy_id, seq, previous_amount, amount, change_amount,
		       change_percentage, entry_type, description, selection_id, created_at
		FROM bankroll_history
		WHERE strategy_id = ?
		ORDER BY seq ASC`, strategyID)
	if err != nil {
		return nil, storageErr("GetLedger", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var pct sql.NullFloat64
		var entryType, createdAt string
		var selectionID sql.NullString
		if err := rows.Scan(
			&e.ID, &e.StrategyID, &e.Seq, &e.PreviousAmount, &e.Amount, &e.ChangeAmount,
			&pct, &entryType, &e.Description, &selectionID, &createdAt,
		); err != nil {
			return nil, storageErr("GetLedger: scan row", err)
		}
		e.ChangePercentage = floatPtr(pct)
		e.EntryType = domain.EntryType(entryType)
		e.SelectionID = selectionID.String
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("GetLedger", err)
	}
	return out, nil
}
