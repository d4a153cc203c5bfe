package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SelectionStatus es el estado de una selección. pending → won | lost, una sola vez.
type SelectionStatus string

const (
	SelectionPending SelectionStatus = "pending"
	SelectionWon     SelectionStatus = "won"
	SelectionLost    SelectionStatus = "lost"
)

// Selection es una decisión de staking sobre un partido/mercado/casa/label.
// AppliedStake se congela al crearla; cambios posteriores del bankroll no la redimensionan.
type Selection struct {
	ID                    string
	StrategyID            string
	FixtureID             string
	OddID                 string
	MarketID              string
	BookmakerID           string
	Label                 string
	OddValue              float64
	ImpliedProbability    float64
	PredictionProbability *float64
	ExpectedValue         *float64
	KellyStake            *float64
	StakePercentage       *float64
	AppliedStake          decimal.Decimal
	PotentialProfit       decimal.Decimal
	Status                SelectionStatus
	Result                string
	Winner                *bool
	ProfitLoss            decimal.NullDecimal
	CreatedAt             time.Time
	SettledAt             *time.Time
}

// NewSelectionRequest son los datos que aporta el caller al añadir una selección.
type NewSelectionRequest struct {
	StrategyID            string
	FixtureID             string
	OddID                 string
	MarketID              string
	BookmakerID           string
	Label                 string
	OddValue              float64
	PredictionProbability *float64
}

// Validate comprueba los campos obligatorios.
func (r NewSelectionRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.StrategyID) == "" {
		missing = append(missing, "strategy_id")
	}
	if strings.TrimSpace(r.FixtureID) == "" {
		missing = append(missing, "fixture_id")
	}
	if strings.TrimSpace(r.MarketID) == "" {
		missing = append(missing, "market_id")
	}
	if strings.TrimSpace(r.BookmakerID) == "" {
		missing = append(missing, "bookmaker_id")
	}
	if strings.TrimSpace(r.Label) == "" {
		missing = append(missing, "label")
	}
	if r.OddValue == 0 {
		missing = append(missing, "odd_value")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields %s: %w", strings.Join(missing, ", "), ErrValidation)
	}
	if r.PredictionProbability != nil {
		return ValidateProbability(*r.PredictionProbability)
	}
	return nil
}

// NewPendingSelection dimensiona la selección contra el bankroll actual de la estrategia.
func NewPendingSelection(req NewSelectionRequest, strategy Strategy, now time.Time) (Selection, error) {
	if err := req.Validate(); err != nil {
		return Selection{}, err
	}
	sizing, err := SizeStake(StakeInput{
		OddValue:        req.OddValue,
		Probability:     req.PredictionProbability,
		FractionalKelly: strategy.FractionalKelly,
		Bankroll:        strategy.CurrentBankroll,
	})
	if err != nil {
		return Selection{}, err
	}
	return Selection{
		StrategyID:            strategy.ID,
		FixtureID:             req.FixtureID,
		OddID:                 req.OddID,
		MarketID:              req.MarketID,
		BookmakerID:           req.BookmakerID,
		Label:                 req.Label,
		OddValue:              req.OddValue,
		ImpliedProbability:    sizing.ImpliedProbability,
		PredictionProbability: req.PredictionProbability,
		ExpectedValue:         sizing.ExpectedValue,
		KellyStake:            sizing.KellyStake,
		StakePercentage:       sizing.AppliedKelly,
		AppliedStake:          sizing.AppliedStake,
		PotentialProfit:       sizing.PotentialProfit,
		Status:                SelectionPending,
		CreatedAt:             now,
	}, nil
}

// IsWinner devuelve true si la selección se resolvió como ganada.
func (s Selection) IsWinner() bool {
	return s.Winner != nil && *s.Winner
}

// SettlementProfit calcula el P&L realizado: stake × (odd - 1) si gana, -stake si pierde.
func (s Selection) SettlementProfit(isWinner bool) decimal.Decimal {
	if isWinner {
		return PotentialProfit(s.AppliedStake, s.OddValue)
	}
	return s.AppliedStake.Neg()
}

// Settle aplica la única transición permitida: pending → won | lost.
func (s Selection) Settle(result string, isWinner bool, now time.Time) (Selection, error) {
	if s.Status != SelectionPending {
		return s, fmt.Errorf("selection %s is %s: %w", s.ID, s.Status, ErrAlreadySettled)
	}
	pl := s.SettlementProfit(isWinner)
	s.Result = result
	s.Winner = &isWinner
	s.ProfitLoss = decimal.NewNullDecimal(pl)
	s.Status = SelectionLost
	if isWinner {
		s.Status = SelectionWon
	}
	s.SettledAt = &now
	return s, nil
}

// SettledInOrder devuelve las selecciones resueltas ordenadas por fecha de resolución.
func SettledInOrder(selections []Selection) []Selection {
	var out []Selection
	for _, s := range selections {
		if s.Status != SelectionPending && s.ProfitLoss.Valid {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := settledAt(out[i]), settledAt(out[j])
		if !a.Equal(b) {
			return a.Before(b)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func settledAt(s Selection) time.Time {
	if s.SettledAt != nil {
		return *s.SettledAt
	}
	return s.CreatedAt
}

// CountPending devuelve cuántas selecciones siguen sin liquidar.
func CountPending(selections []Selection) int {
	n := 0
	for _, sel := range selections {
		if sel.Status == SelectionPending {
			n++
		}
	}
	return n
}
