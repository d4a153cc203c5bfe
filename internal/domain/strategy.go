package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency se usa cuando la estrategia se crea sin divisa.
const DefaultCurrency = "USD"

// Strategy es un bankroll independiente con su propia política de staking.
// CurrentBankroll es una caché del ledger: siempre igual a la suma de sus change_amount.
type Strategy struct {
	ID              string
	Name            string
	Description     string
	InitialBankroll decimal.Decimal
	CurrentBankroll decimal.Decimal
	Currency        string
	FractionalKelly float64
	Version         int64 // compare-and-swap en cada cambio de bankroll
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StrategyStats son los contadores acumulados de una estrategia (una fila por estrategia).
type StrategyStats struct {
	StrategyID       string
	TotalBets        int
	WonBets          int
	LostBets         int
	PendingBets      int
	TotalStaked      decimal.Decimal
	TotalReturns     decimal.Decimal
	TotalProfit      decimal.Decimal
	ROI              float64
	CurrentStreak    int
	MaxWinningStreak int
	LastUpdated      time.Time
}

// NewStrategyStats devuelve la fila de estadísticas a cero.
func NewStrategyStats(strategyID string, now time.Time) StrategyStats {
	return StrategyStats{
		StrategyID:   strategyID,
		TotalStaked:  decimal.Zero,
		TotalReturns: decimal.Zero,
		TotalProfit:  decimal.Zero,
		LastUpdated:  now,
	}
}

// WithSettlement aplica de forma incremental el resultado de una selección.
// La apuesta se cuenta al liquidarla: colocar una selección no toca la fila.
func (s StrategyStats) WithSettlement(stake, profitLoss decimal.Decimal, isWinner bool, now time.Time) StrategyStats {
	s.TotalBets++
	if isWinner {
		s.WonBets++
		s.TotalReturns = s.TotalReturns.Add(stake).Add(profitLoss)
		s.CurrentStreak++
	} else {
		s.LostBets++
		s.CurrentStreak = 0
	}
	if s.PendingBets > 0 {
		s.PendingBets--
	}
	s.TotalStaked = s.TotalStaked.Add(stake)
	s.TotalProfit = s.TotalProfit.Add(profitLoss)
	s.ROI = percentOf(s.TotalProfit, s.TotalStaked)
	if s.CurrentStreak > s.MaxWinningStreak {
		s.MaxWinningStreak = s.CurrentStreak
	}
	s.LastUpdated = now
	return s
}

// SettledBets devuelve el número de apuestas ya resueltas.
func (s StrategyStats) SettledBets() int {
	return s.WonBets + s.LostBets
}

// Consistent comprueba total_bets == won + lost + pending.
func (s StrategyStats) Consistent() bool {
	return s.TotalBets == s.WonBets+s.LostBets+s.PendingBets
}

// RebuildStats recalcula la fila de estadísticas desde cero a partir de las selecciones
// liquidadas, en orden de resolución. Es la vía de reparación cuando los contadores derivan.
func RebuildStats(strategyID string, selections []Selection, now time.Time) StrategyStats {
	stats := NewStrategyStats(strategyID, now)
	for _, sel := range SettledInOrder(selections) {
		stats = stats.WithSettlement(sel.AppliedStake, sel.ProfitLoss.Decimal, sel.IsWinner(), now)
	}
	return stats
}

// percentOf devuelve num/den × 100, o 0 si den es cero.
func percentOf(num, den decimal.Decimal) float64 {
	if den.IsZero() {
		return 0
	}
	return num.Div(den).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
