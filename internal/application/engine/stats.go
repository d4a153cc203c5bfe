package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/stakebook/internal/domain"
	"github.com/alejandrodnm/stakebook/internal/ports"
)

// GetStats construye el informe completo de la estrategia. Solo lee: los contadores
// vienen de strategy_stats y las métricas periódicas se recalculan escaneando el ledger.
func (e *Engine) GetStats(ctx context.Context, strategyID string) (domain.StrategyReport, error) {
	var report domain.StrategyReport
	// una sola transacción de lectura: balance, contadores y ledger del mismo instante
	err := e.store.WithinTx(ctx, func(q ports.BankrollQueries) error {
		strategy, err := q.GetStrategy(ctx, strategyID)
		if err != nil {
			return err
		}
		stats, err := q.GetStats(ctx, strategyID)
		if err != nil {
			return err
		}
		history, err := q.GetLedger(ctx, strategyID)
		if err != nil {
			return err
		}
		selections, err := q.ListSelections(ctx, strategyID)
		if err != nil {
			return err
		}
		byMarket, err := q.SelectionDistribution(ctx, strategyID, domain.ByMarket)
		if err != nil {
			return err
		}
		byBookmaker, err := q.SelectionDistribution(ctx, strategyID, domain.ByBookmaker)
		if err != nil {
			return err
		}

		report = domain.StrategyReport{
			Strategy:              strategy,
			Stats:                 stats,
			Additional:            domain.ComputeAdditionalStats(strategy, stats, domain.CountPending(selections)),
			BankrollHistory:       history,
			MarketDistribution:    byMarket,
			BookmakerDistribution: byBookmaker,
			Evolution:             domain.EvolutionSeries(history),
			Performance:           domain.ComputePerformance(history, e.now()),
		}
		return nil
	})
	if err != nil {
		return domain.StrategyReport{}, fmt.Errorf("engine.GetStats: %w", err)
	}
	return report, nil
}

// Reconcile reproduce el ledger y reconstruye la caché del balance y la fila de stats.
// El ledger es la fuente de verdad: las selecciones liquidadas sin su entrada
// bet_result se añaden primero, después se reescribe current_bankroll con la suma
// del log y las estadísticas se recalculan desde las selecciones.
func (e *Engine) Reconcile(ctx context.Context, strategyID string) (domain.ReconcileReport, error) {
	unlock := e.locks.lock(strategyID)
	defer unlock()

	report := domain.ReconcileReport{StrategyID: strategyID, ChainBreak: -1}
	err := e.store.WithinTx(ctx, func(q ports.BankrollQueries) error {
		strategy, err := q.GetStrategy(ctx, strategyID)
		if err != nil {
			return err
		}
		report.BalanceBefore = strategy.CurrentBankroll

		ledger, err := q.GetLedger(ctx, strategyID)
		if err != nil {
			return err
		}
		selections, err := q.ListSelections(ctx, strategyID)
		if err != nil {
			return err
		}

		recorded := make(map[string]bool, len(ledger))
		for _, entry := range ledger {
			if entry.SelectionID != "" {
				recorded[entry.SelectionID] = true
			}
		}

		replay := domain.ReplayLedger(ledger)
		report.ChainBreak = replay.ChainBreak
		balance := replay.Balance
		now := e.now()
		for _, sel := range domain.SettledInOrder(selections) {
			if recorded[sel.ID] {
				continue
			}
			entry := domain.NewLedgerEntry(strategyID, balance, sel.ProfitLoss.Decimal, domain.EntryBetResult,
				fmt.Sprintf("Bet result (reconciled): %s", sel.Result), now)
			entry.SelectionID = sel.ID
			if _, err := q.AppendLedgerEntry(ctx, entry); err != nil {
				return err
			}
			balance = entry.Amount
			report.MissingEntries++
		}
		report.LedgerEntries = replay.Entries + report.MissingEntries
		report.BalanceAfter = balance

		if !balance.Equal(strategy.CurrentBankroll) {
			if err := q.UpdateStrategyBankroll(ctx, strategyID, balance, strategy.Version, now); err != nil {
				return err
			}
			report.BalanceRepaired = true
		}

		// sin fila de stats se trata como deriva: se reconstruye e inserta
		current, err := q.GetStats(ctx, strategyID)
		missing := errors.Is(err, domain.ErrNotFound)
		if err != nil && !missing {
			return err
		}
		rebuilt := domain.RebuildStats(strategyID, selections, now)
		if missing || !sameCounters(current, rebuilt) {
			if err := q.SaveStats(ctx, rebuilt); err != nil {
				return err
			}
			report.StatsRepaired = true
		}
		return nil
	})
	if err != nil {
		return domain.ReconcileReport{}, fmt.Errorf("engine.Reconcile: %w", err)
	}

	if report.Clean() {
		slog.Info("strategy reconciled, no drift", "strategy_id", strategyID, "entries", report.LedgerEntries)
	} else {
		slog.Warn("strategy drift repaired",
			"strategy_id", strategyID,
			"chain_break", report.ChainBreak,
			"missing_entries", report.MissingEntries,
			"balance_before", report.BalanceBefore.StringFixed(2),
			"balance_after", report.BalanceAfter.StringFixed(2),
			"stats_repaired", report.StatsRepaired,
		)
	}
	return report, nil
}

// sameCounters compara los contadores persistidos, ignorando last_updated.
func sameCounters(a, b domain.StrategyStats) bool {
	return a.TotalBets == b.TotalBets &&
		a.WonBets == b.WonBets &&
		a.LostBets == b.LostBets &&
		a.PendingBets == b.PendingBets &&
		a.TotalStaked.Equal(b.TotalStaked) &&
		a.TotalReturns.Equal(b.TotalReturns) &&
		a.TotalProfit.Equal(b.TotalProfit) &&
		a.CurrentStreak == b.CurrentStreak &&
		a.MaxWinningStreak == b.MaxWinningStreak
}
