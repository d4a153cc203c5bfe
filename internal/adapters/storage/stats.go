package storage

import (
	"context"

	"github.com/alejandrodnm/stakebook/internal/domain"
)

// GetStats devuelve la fila de estadísticas de la estrategia.
func (q *queries) GetStats(ctx context.Context, strategyID string) (domain.StrategyStats, error) {
	var s domain.StrategyStats
	var lastUpdated string
	err := q.db.QueryRowContext(ctx, `
		SELECT strategy_id, total_bets, won_bets, lost_bets, pending_bets,
		       total_staked, total_returns, total_profit, roi,
		       current_streak, max_winning_streak, last_updated
		FROM strategy_stats WHERE strategy_id = ?`, strategyID,
	).Scan(
		&s.StrategyID, &s.TotalBets, &s.WonBets, &s.LostBets, &s.PendingBets,
		&s.TotalStaked, &s.TotalReturns, &s.TotalProfit, &s.ROI,
		&s.CurrentStreak, &s.MaxWinningStreak, &lastUpdated,
	)
	if err != nil {
		return domain.StrategyStats{}, notFound("GetStats", err, domain.ErrStrategyNotFound)
	}
	s.LastUpdated = parseTime(lastUpdated)
	return s, nil
}

// SaveStats hace upsert de la fila completa de estadísticas.
func (q *queries) SaveStats(ctx context.Context, s domain.StrategyStats) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO strategy_stats
			(strategy_id, total_bets, won_bets, lost_bets, pending_bets,
			 total_staked, total_returns, total_profit, roi,
			 current_streak, max_winning_streak, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(strategy_id) DO UPDATE SET
			total_bets         = excluded.total_bets,
			won_bets           = excluded.won_bets,
			lost_bets          = excluded.lost_bets,
			pending_bets       = excluded.pending_bets,
			total_staked       = excluded.total_staked,
			total_returns      = excluded.total_returns,
			total_profit       = excluded.total_profit,
			roi                = excluded.roi,
			current_streak     = excluded.current_streak,
			max_winning_streak = excluded.max_winning_streak,
			last_updated       = excluded.last_updated`,
		s.StrategyID, s.TotalBets, s.WonBets, s.LostBets, s.PendingBets,
		s.TotalStaked.String(), s.TotalReturns.String(), s.TotalProfit.String(), s.ROI,
		s.CurrentStreak, s.MaxWinningStreak, formatTime(s.LastUpdated),
	)
	if err != nil {
		return storageErr("SaveStats", err)
	}
	return nil
}
