package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alejandrodnm/stakebook/internal/domain"
)

const selectionColumns = `
	id, strategy_id, fixture_id, odd_id, market_id, bookmaker_id, selection_label,
	odd_value, implied_probability, prediction_probability, expected_value,
	kelly_stake, stake_percentage, applied_stake, potential_profit,
	status, result, is_winner, profit_loss, created_at, settled_at`

// InsertSelection persiste una selección nueva (normalmente pending).
func (q *queries) InsertSelection(ctx context.Context, s domain.Selection) error {
	if s.ID == "" {
		return fmt.Errorf("storage.InsertSelection: empty id: %w", domain.ErrValidation)
	}
	var winner any
	if s.Winner != nil {
		winner = *s.Winner
	}
	var profitLoss any
	if s.ProfitLoss.Valid {
		profitLoss = s.ProfitLoss.Decimal.String()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO strategy_selections (`+selectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.StrategyID, s.FixtureID, s.OddID, s.MarketID, s.BookmakerID, s.Label,
		s.OddValue, s.ImpliedProbability, nullFloat(s.PredictionProbability), nullFloat(s.ExpectedValue),
		nullFloat(s.KellyStake), nullFloat(s.StakePercentage), s.AppliedStake.String(), s.PotentialProfit.String(),
		string(s.Status), s.Result, winner, profitLoss, formatTime(s.CreatedAt), nullTime(s.SettledAt),
	)
	if err != nil {
		return storageErr("InsertSelection", err)
	}
	return nil
}

// GetSelection devuelve la selección o domain.ErrSelectionNotFound.
func (q *queries) GetSelection(ctx context.Context, id string) (domain.Selection, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+selectionColumns+` FROM strategy_selections WHERE id = ?`, id)
	s, err := scanSelection(row)
	if err != nil {
		return domain.Selection{}, notFound("GetSelection", err, domain.ErrSelectionNotFound)
	}
	return s, nil
}

// ListSelections devuelve las selecciones de la estrategia, las más recientes primero.
func (q *queries) ListSelections(ctx context.Context, strategyID string) ([]domain.Selection, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+selectionColumns+`
		FROM strategy_selections
		WHERE strategy_id = ?
		ORDER BY created_at DESC, id`, strategyID)
	if err != nil {
		return nil, storageErr("ListSelections", err)
	}
	defer rows.Close()

	var out []domain.Selection
	for rows.Next() {
		s, err := scanSelection(rows)
		if err != nil {
			return nil, storageErr("ListSelections: scan row", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("ListSelections", err)
	}
	return out, nil
}

// SettleSelection escribe el resultado solo si la fila sigue en pending.
func (q *queries) SettleSelection(ctx context.Context, s domain.Selection) error {
	if !s.ProfitLoss.Valid || s.Winner == nil {
		return fmt.Errorf("storage.SettleSelection: %s has no outcome: %w", s.ID, domain.ErrValidation)
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE strategy_selections
		SET status = ?, result = ?, is_winner = ?, profit_loss = ?, settled_at = ?
		WHERE id = ? AND status = 'pending'`,
		string(s.Status), s.Result, *s.Winner, s.ProfitLoss.Decimal.String(), nullTime(s.SettledAt), s.ID,
	)
	if err != nil {
		return storageErr("SettleSelection", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("SettleSelection", err)
	}
	if n == 0 {
		return fmt.Errorf("storage.SettleSelection: %s: %w", s.ID, domain.ErrAlreadySettled)
	}
	return nil
}

// SelectionDistribution cuenta las selecciones de la estrategia por mercado o casa.
func (q *queries) SelectionDistribution(ctx context.Context, strategyID string, by domain.DistributionKey) ([]domain.DistributionBucket, error) {
	var column string
	switch by {
	case domain.ByMarket:
		column = "market_id"
	case domain.ByBookmaker:
		column = "bookmaker_id"
	default:
		return nil, fmt.Errorf("storage.SelectionDistribution: unknown key %q: %w", by, domain.ErrValidation)
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+column+`, COUNT(*) AS n
		FROM strategy_selections
		WHERE strategy_id = ?
		GROUP BY `+column+`
		ORDER BY n DESC, `+column+` ASC`, strategyID)
	if err != nil {
		return nil, storageErr("SelectionDistribution", err)
	}
	defer rows.Close()

	var out []domain.DistributionBucket
	for rows.Next() {
		var b domain.DistributionBucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, storageErr("SelectionDistribution: scan row", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("SelectionDistribution", err)
	}
	return out, nil
}

func scanSelection(r rowScanner) (domain.Selection, error) {
	var s domain.Selection
	var prob, ev, kelly, stakePct sql.NullFloat64
	var status, createdAt string
	var winner sql.NullBool
	var settledAt sql.NullString
	if err := r.Scan(
		&s.ID, &s.StrategyID, &s.FixtureID, &s.OddID, &s.MarketID, &s.BookmakerID, &s.Label,
		&s.OddValue, &s.ImpliedProbability, &prob, &ev,
		&kelly, &stakePct, &s.AppliedStake, &s.PotentialProfit,
		&status, &s.Result, &winner, &s.ProfitLoss, &createdAt, &settledAt,
	); err != nil {
		return domain.Selection{}, err
	}
	s.PredictionProbability = floatPtr(prob)
	s.ExpectedValue = floatPtr(ev)
	s.KellyStake = floatPtr(kelly)
	s.StakePercentage = floatPtr(stakePct)
	s.Status = domain.SelectionStatus(status)
	if winner.Valid {
		w := winner.Bool
		s.Winner = &w
	}
	s.CreatedAt = parseTime(createdAt)
	if settledAt.Valid {
		t := parseTime(settledAt.String)
		s.SettledAt = &t
	}
	return s, nil
}
