package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DistributionBucket es el número de selecciones por clave (mercado o casa de apuestas).
type DistributionBucket struct {
	Key   string
	Count int
}

// EvolutionPoint es un punto de la gráfica de evolución del bankroll.
type EvolutionPoint struct {
	Date     time.Time
	Bankroll decimal.Decimal
	Change   decimal.Decimal
}

// AdditionalStats son los ratios derivados de los contadores y del bankroll.
type AdditionalStats struct {
	ProfitLossPercentage float64
	AverageStake         decimal.Decimal
	HitRate              float64
	AverageOdds          float64 // total_returns / total_staked
	OpenSelections       int     // selecciones pending, fuera de strategy_stats
}

// StrategyReport es la vista completa que devuelve getStats.
type StrategyReport struct {
	Strategy              Strategy
	Stats                 StrategyStats
	Additional            AdditionalStats
	BankrollHistory       []LedgerEntry
	MarketDistribution    []DistributionBucket
	BookmakerDistribution []DistributionBucket
	Evolution             []EvolutionPoint
	Performance           PerformanceMetrics
}

// ComputeAdditionalStats deriva los ratios; cada uno es 0 si su denominador es 0.
// openSelections viene del escaneo de selecciones: la fila de stats solo cuenta liquidadas.
func ComputeAdditionalStats(strategy Strategy, stats StrategyStats, openSelections int) AdditionalStats {
	out := AdditionalStats{AverageStake: decimal.Zero, OpenSelections: openSelections}
	if strategy.InitialBankroll.IsPositive() {
		out.ProfitLossPercentage = percentOf(strategy.CurrentBankroll.Sub(strategy.InitialBankroll), strategy.InitialBankroll)
	}
	if settled := stats.SettledBets(); settled > 0 {
		out.AverageStake = stats.TotalStaked.Div(decimal.NewFromInt(int64(settled)))
		out.HitRate = float64(stats.WonBets) / float64(settled) * 100
	}
	if !stats.TotalStaked.IsZero() {
		out.AverageOdds = stats.TotalReturns.Div(stats.TotalStaked).InexactFloat64()
	}
	return out
}

// EvolutionSeries convierte el ledger en la serie (fecha, bankroll, cambio).
func EvolutionSeries(entries []LedgerEntry) []EvolutionPoint {
	out := make([]EvolutionPoint, 0, len(entries))
	for _, e := range entries {
		out = append(out, EvolutionPoint{Date: e.CreatedAt, Bankroll: e.Amount, Change: e.ChangeAmount})
	}
	return out
}

// DistributionKey es la columna por la que se agrupan las selecciones.
type DistributionKey string

const (
	ByMarket    DistributionKey = "market_id"
	ByBookmaker DistributionKey = "bookmaker_id"
)

// ReconcileReport describe lo que encontró y reparó Reconcile.
type ReconcileReport struct {
	StrategyID      string
	LedgerEntries   int
	ChainBreak      int // índice de la primera entrada mal encadenada, -1 si ninguna
	MissingEntries  int // selecciones liquidadas sin entrada bet_result
	BalanceBefore   decimal.Decimal
	BalanceAfter    decimal.Decimal
	BalanceRepaired bool
	StatsRepaired   bool
}

// Clean devuelve true si no hubo nada que reparar.
func (r ReconcileReport) Clean() bool {
	return r.ChainBreak < 0 && r.MissingEntries == 0 && !r.BalanceRepaired && !r.StatsRepaired
}
