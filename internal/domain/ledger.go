package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType clasifica un movimiento del bankroll.
type EntryType string

const (
	EntryInitial    EntryType = "initial"
	EntryDeposit    EntryType = "deposit"
	EntryWithdrawal EntryType = "withdrawal"
	EntryAdjustment EntryType = "adjustment"
	EntryBetResult  EntryType = "bet_result"
)

// OperationKind son las operaciones manuales permitidas sobre el bankroll.
type OperationKind string

const (
	OpDeposit    OperationKind = "deposit"
	OpWithdrawal OperationKind = "withdrawal"
	OpAdjustment OperationKind = "adjustment"
)

// ParseOperationKind valida el tipo de operación recibido del caller.
func ParseOperationKind(s string) (OperationKind, error) {
	switch k := OperationKind(s); k {
	case OpDeposit, OpWithdrawal, OpAdjustment:
		return k, nil
	}
	return "", fmt.Errorf("operation %q must be one of deposit, withdrawal, adjustment: %w", s, ErrValidation)
}

// LedgerEntry es un movimiento inmutable del bankroll (tabla bankroll_history).
// Para i > 0: PreviousAmount(i) == Amount(i-1).
type LedgerEntry struct {
	ID               string
	StrategyID       string
	Seq              int64 // orden total dentro de la estrategia
	PreviousAmount   decimal.Decimal
	Amount           decimal.Decimal
	ChangeAmount     decimal.Decimal
	ChangePercentage *float64 // nil cuando PreviousAmount es 0
	EntryType        EntryType
	Description      string
	SelectionID      string // solo en bet_result
	CreatedAt        time.Time
}

// NewLedgerEntry construye el movimiento que lleva el balance de previous a previous+change.
func NewLedgerEntry(strategyID string, previous, change decimal.Decimal, kind EntryType, description string, at time.Time) LedgerEntry {
	return LedgerEntry{
		StrategyID:       strategyID,
		PreviousAmount:   previous,
		Amount:           previous.Add(change),
		ChangeAmount:     change,
		ChangePercentage: ChangePercentage(previous, change),
		EntryType:        kind,
		Description:      description,
		CreatedAt:        at,
	}
}

// ChangePercentage devuelve change/previous × 100, o nil si previous es 0.
func ChangePercentage(previous, change decimal.Decimal) *float64 {
	if previous.IsZero() {
		return nil
	}
	pct := change.Div(previous).Mul(decimal.NewFromInt(100)).InexactFloat64()
	return &pct
}

// OperationDelta calcula el cambio firmado de una operación manual sobre el balance actual.
//   - deposit:    +amount (amount > 0)
//   - withdrawal: -amount (amount > 0, nunca deja el balance negativo)
//   - adjustment: +amount firmado, sin límite (corrección administrativa)
func OperationDelta(kind OperationKind, amount, balance decimal.Decimal) (decimal.Decimal, error) {
	switch kind {
	case OpDeposit:
		if !amount.IsPositive() {
			return decimal.Zero, fmt.Errorf("deposit amount %s must be positive: %w", amount, ErrValidation)
		}
		return amount, nil
	case OpWithdrawal:
		if !amount.IsPositive() {
			return decimal.Zero, fmt.Errorf("withdrawal amount %s must be positive: %w", amount, ErrValidation)
		}
		if amount.GreaterThan(balance) {
			return decimal.Zero, fmt.Errorf("withdraw %s from %s: %w", amount, balance, ErrInsufficientBankroll)
		}
		return amount.Neg(), nil
	case OpAdjustment:
		if amount.IsZero() {
			return decimal.Zero, fmt.Errorf("adjustment amount must be non-zero: %w", ErrValidation)
		}
		return amount, nil
	}
	return decimal.Zero, fmt.Errorf("unknown operation %q: %w", kind, ErrValidation)
}

// LedgerReplay es el resultado de reproducir el ledger completo de una estrategia.
type LedgerReplay struct {
	Balance    decimal.Decimal // suma de todos los change_amount
	Entries    int
	ChainBreak int // índice de la primera entrada con previous != amount anterior, -1 si ninguna
}

// ReplayLedger reconstruye el balance desde el log y verifica el encadenado.
// Las entradas deben venir ordenadas por Seq.
func ReplayLedger(entries []LedgerEntry) LedgerReplay {
	r := LedgerReplay{Balance: decimal.Zero, ChainBreak: -1}
	for i, e := range entries {
		if i > 0 && r.ChainBreak < 0 && !e.PreviousAmount.Equal(entries[i-1].Amount) {
			r.ChainBreak = i
		}
		r.Balance = r.Balance.Add(e.ChangeAmount)
		r.Entries++
	}
	return r
}
