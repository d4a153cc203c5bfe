package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/stakebook/internal/domain"
	"github.com/alejandrodnm/stakebook/internal/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config controla los valores por defecto del motor.
type Config struct {
	DefaultCurrency        string
	DefaultFractionalKelly float64
}

// DefaultConfig devuelve la configuración por defecto.
func DefaultConfig() Config {
	return Config{
		DefaultCurrency:        domain.DefaultCurrency,
		DefaultFractionalKelly: 1.0,
	}
}

// Engine es el motor de bankroll y staking: dimensiona apuestas, registra
// movimientos en el ledger de cada estrategia y mantiene sus estadísticas.
//
// Cada operación de escritura se ejecuta bajo el lock de su estrategia y dentro
// de una única transacción: ledger, balance, selección y stats se confirman juntos.
type Engine struct {
	store ports.BankrollStorage
	cfg   Config
	locks *strategyLocks
	now   func() time.Time
}

// New crea el motor sobre el store dado.
func New(store ports.BankrollStorage, cfg Config) *Engine {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = domain.DefaultCurrency
	}
	if cfg.DefaultFractionalKelly <= 0 {
		cfg.DefaultFractionalKelly = 1.0
	}
	return &Engine{
		store: store,
		cfg:   cfg,
		locks: newStrategyLocks(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sustituye el reloj del motor (tests y replays).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CreateStrategyRequest son los datos de una estrategia nueva.
// Currency y FractionalKelly vacíos toman los valores por defecto.
type CreateStrategyRequest struct {
	Name            string
	Description     string
	InitialBankroll decimal.Decimal
	Currency        string
	FractionalKelly float64
}

// CreateStrategy crea la estrategia junto con su entrada "initial" del ledger
// y su fila de estadísticas a cero.
func (e *Engine) CreateStrategy(ctx context.Context, req CreateStrategyRequest) (domain.Strategy, error) {
	if strings.TrimSpace(req.Name) == "" {
		return domain.Strategy{}, fmt.Errorf("engine.CreateStrategy: name is required: %w", domain.ErrValidation)
	}
	if !req.InitialBankroll.IsPositive() {
		return domain.Strategy{}, fmt.Errorf("engine.CreateStrategy: initial bankroll %s must be positive: %w", req.InitialBankroll, domain.ErrValidation)
	}
	if req.Currency == "" {
		req.Currency = e.cfg.DefaultCurrency
	}
	if req.FractionalKelly == 0 {
		req.FractionalKelly = e.cfg.DefaultFractionalKelly
	}
	if err := domain.ValidateFractionalKelly(req.FractionalKelly); err != nil {
		return domain.Strategy{}, fmt.Errorf("engine.CreateStrategy: %w", err)
	}

	now := e.now()
	strategy := domain.Strategy{
		ID:              uuid.New().String(),
		Name:            req.Name,
		Description:     req.Description,
		InitialBankroll: req.InitialBankroll,
		CurrentBankroll: req.InitialBankroll,
		Currency:        strings.ToUpper(req.Currency),
		FractionalKelly: req.FractionalKelly,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := e.store.WithinTx(ctx, func(q ports.BankrollQueries) error {
		if err := q.InsertStrategy(ctx, strategy); err != nil {
			return err
		}
		initial := domain.NewLedgerEntry(strategy.ID, decimal.Zero, req.InitialBankroll, domain.EntryInitial, "Initial bankroll", now)
		if _, err := q.AppendLedgerEntry(ctx, initial); err != nil {
			return err
		}
		return q.SaveStats(ctx, domain.NewStrategyStats(strategy.ID, now))
	})
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("engine.CreateStrategy: %w", err)
	}

	slog.Info("strategy created",
		"strategy_id", strategy.ID,
		"name", strategy.Name,
		"initial_bankroll", strategy.InitialBankroll.StringFixed(2),
		"currency", strategy.Currency,
		"fractional_kelly", strategy.FractionalKelly,
	)
	return strategy, nil
}

// BankrollChange es el resultado de un movimiento del bankroll.
type BankrollChange struct {
	PreviousBankroll decimal.Decimal
	NewBankroll      decimal.Decimal
	ChangeAmount     decimal.Decimal
	ChangePercentage *float64
	Entry            domain.LedgerEntry
}

// ApplyBankrollOperation registra un depósito, retiro o ajuste manual.
// Un retiro mayor que el balance falla con domain.ErrInsufficientBankroll sin escribir nada.
func (e *Engine) ApplyBankrollOperation(ctx context.Context, strategyID string, kind domain.OperationKind, amount decimal.Decimal, description string) (BankrollChange, error) {
	if strings.TrimSpace(strategyID) == "" {
		return BankrollChange{}, fmt.Errorf("engine.ApplyBankrollOperation: strategy id is required: %w", domain.ErrValidation)
	}
	if description == "" {
		description = fmt.Sprintf("Manual operation: %s", kind)
	}

	unlock := e.locks.lock(strategyID)
	defer unlock()

	var change BankrollChange
	err := e.store.WithinTx(ctx, func(q ports.BankrollQueries) error {
		strategy, err := q.GetStrategy(ctx, strategyID)
		if err != nil {
			return err
		}
		delta, err := domain.OperationDelta(kind, amount, strategy.CurrentBankroll)
		if err != nil {
			return err
		}
		entry, err := e.appendMovement(ctx, q, strategy, delta, domain.EntryType(kind), description, "")
		if err != nil {
			return err
		}
		change = BankrollChange{
			PreviousBankroll: entry.PreviousAmount,
			NewBankroll:      entry.Amount,
			ChangeAmount:     entry.ChangeAmount,
			ChangePercentage: entry.ChangePercentage,
			Entry:            entry,
		}
		return nil
	})
	if err != nil {
		return BankrollChange{}, fmt.Errorf("engine.ApplyBankrollOperation: %w", err)
	}

	slog.Info("bankroll operation applied",
		"strategy_id", strategyID,
		"kind", kind,
		"change", change.ChangeAmount.StringFixed(2),
		"new_bankroll", change.NewBankroll.StringFixed(2),
	)
	return change, nil
}

// AddSelection dimensiona y persiste una selección pending contra el bankroll actual.
// No mueve dinero: el ledger solo cambia al liquidarla.
func (e *Engine) AddSelection(ctx context.Context, req domain.NewSelectionRequest) (domain.Selection, error) {
	if err := req.Validate(); err != nil {
		return domain.Selection{}, fmt.Errorf("engine.AddSelection: %w", err)
	}

	unlock := e.locks.lock(req.StrategyID)
	defer unlock()

	var sel domain.Selection
	err := e.store.WithinTx(ctx, func(q ports.BankrollQueries) error {
		strategy, err := q.GetStrategy(ctx, req.StrategyID)
		if err != nil {
			return err
		}
		now := e.now()
		sel, err = domain.NewPendingSelection(req, strategy, now)
		if err != nil {
			return err
		}
		sel.ID = uuid.New().String()
		return q.InsertSelection(ctx, sel)
	})
	if err != nil {
		return domain.Selection{}, fmt.Errorf("engine.AddSelection: %w", err)
	}

	slog.Info("selection added",
		"strategy_id", sel.StrategyID,
		"selection_id", sel.ID,
		"fixture_id", sel.FixtureID,
		"odd", sel.OddValue,
		"applied_stake", sel.AppliedStake.StringFixed(2),
	)
	return sel, nil
}

// Settlement es el resultado de liquidar una selección.
type Settlement struct {
	Selection   domain.Selection
	ProfitLoss  decimal.Decimal
	NewBankroll decimal.Decimal
	Stats       domain.StrategyStats
}

// SettleSelection liquida una selección pending: calcula el P&L, añade la entrada
// bet_result al ledger y actualiza las estadísticas, todo en una transacción.
// Una segunda liquidación falla con domain.ErrAlreadySettled sin efectos.
func (e *Engine) SettleSelection(ctx context.Context, selectionID, result string, isWinner bool) (Settlement, error) {
	if strings.TrimSpace(selectionID) == "" {
		return Settlement{}, fmt.Errorf("engine.SettleSelection: selection id is required: %w", domain.ErrValidation)
	}

	// Lectura previa solo para conocer la estrategia; se relee dentro de la transacción.
	probe, err := e.store.GetSelection(ctx, selectionID)
	if err != nil {
		return Settlement{}, fmt.Errorf("engine.SettleSelection: %w", err)
	}
	if probe.Status != domain.SelectionPending {
		return Settlement{}, fmt.Errorf("engine.SettleSelection: selection %s is %s: %w", selectionID, probe.Status, domain.ErrAlreadySettled)
	}

	unlock := e.locks.lock(probe.StrategyID)
	defer unlock()

	var out Settlement
	err = e.store.WithinTx(ctx, func(q ports.BankrollQueries) error {
		sel, err := q.GetSelection(ctx, selectionID)
		if err != nil {
			return err
		}
		now := e.now()
		settled, err := sel.Settle(result, isWinner, now)
		if err != nil {
			return err
		}
		if err := q.SettleSelection(ctx, settled); err != nil {
			return err
		}

		strategy, err := q.GetStrategy(ctx, sel.StrategyID)
		if err != nil {
			return err
		}
		pl := settled.ProfitLoss.Decimal
		entry, err := e.appendMovement(ctx, q, strategy, pl, domain.EntryBetResult,
			fmt.Sprintf("Bet result: %s", result), settled.ID)
		if err != nil {
			return err
		}

		stats, err := q.GetStats(ctx, sel.StrategyID)
		if err != nil {
			return err
		}
		stats = stats.WithSettlement(settled.AppliedStake, pl, isWinner, now)
		if err := q.SaveStats(ctx, stats); err != nil {
			return err
		}

		out = Settlement{Selection: settled, ProfitLoss: pl, NewBankroll: entry.Amount, Stats: stats}
		return nil
	})
	if err != nil {
		return Settlement{}, fmt.Errorf("engine.SettleSelection: %w", err)
	}

	slog.Info("selection settled",
		"strategy_id", out.Selection.StrategyID,
		"selection_id", selectionID,
		"status", out.Selection.Status,
		"profit_loss", out.ProfitLoss.StringFixed(2),
		"new_bankroll", out.NewBankroll.StringFixed(2),
	)
	return out, nil
}

// ListStrategies devuelve las estrategias con su fila de estadísticas.
func (e *Engine) ListStrategies(ctx context.Context) ([]StrategySummary, error) {
	strategies, err := e.store.ListStrategies(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.ListStrategies: %w", err)
	}
	out := make([]StrategySummary, 0, len(strategies))
	for _, s := range strategies {
		stats, err := e.store.GetStats(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("engine.ListStrategies: stats %s: %w", s.ID, err)
		}
		out = append(out, StrategySummary{Strategy: s, Stats: stats})
	}
	return out, nil
}

// StrategySummary es una estrategia con sus contadores.
type StrategySummary struct {
	Strategy domain.Strategy
	Stats    domain.StrategyStats
}

// ListSelections devuelve las selecciones de una estrategia, las más recientes primero.
func (e *Engine) ListSelections(ctx context.Context, strategyID string) ([]domain.Selection, error) {
	if _, err := e.store.GetStrategy(ctx, strategyID); err != nil {
		return nil, fmt.Errorf("engine.ListSelections: %w", err)
	}
	sels, err := e.store.ListSelections(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("engine.ListSelections: %w", err)
	}
	return sels, nil
}

// appendMovement añade la entrada al ledger y actualiza la caché del balance
// con compare-and-swap. Debe llamarse dentro de una transacción.
func (e *Engine) appendMovement(ctx context.Context, q ports.BankrollQueries, strategy domain.Strategy, delta decimal.Decimal, kind domain.EntryType, description, selectionID string) (domain.LedgerEntry, error) {
	now := e.now()
	entry := domain.NewLedgerEntry(strategy.ID, strategy.CurrentBankroll, delta, kind, description, now)
	entry.SelectionID = selectionID

	if err := q.UpdateStrategyBankroll(ctx, strategy.ID, entry.Amount, strategy.Version, now); err != nil {
		return domain.LedgerEntry{}, err
	}
	return q.AppendLedgerEntry(ctx, entry)
}
