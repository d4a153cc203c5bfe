package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/stakebook/internal/domain"
	"github.com/shopspring/decimal"
)

// BankrollQueries son las lecturas y escrituras del motor de bankroll.
// Las implementa tanto la conexión como una transacción abierta.
type BankrollQueries interface {
	// Strategies
	InsertStrategy(ctx context.Context, s domain.Strategy) error
	GetStrategy(ctx context.Context, id string) (domain.Strategy, error)
	ListStrategies(ctx context.Context) ([]domain.Strategy, error)
	// UpdateStrategyBankroll hace compare-and-swap sobre la versión.
	// Devuelve domain.ErrConcurrencyConflict si la versión ya no coincide.
	UpdateStrategyBankroll(ctx context.Context, id string, balance decimal.Decimal, expectedVersion int64, at time.Time) error

	// Ledger (bankroll_history), solo append
	AppendLedgerEntry(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error)
	GetLedger(ctx context.Context, strategyID string) ([]domain.LedgerEntry, error)

	// Selections
	InsertSelection(ctx context.Context, s domain.Selection) error
	GetSelection(ctx context.Context, id string) (domain.Selection, error)
	ListSelections(ctx context.Context, strategyID string) ([]domain.Selection, error)
	// SettleSelection persiste el resultado solo si la selección sigue pending.
	// Devuelve domain.ErrAlreadySettled en caso contrario.
	SettleSelection(ctx context.Context, s domain.Selection) error
	SelectionDistribution(ctx context.Context, strategyID string, by domain.DistributionKey) ([]domain.DistributionBucket, error)

	// Stats
	GetStats(ctx context.Context, strategyID string) (domain.StrategyStats, error)
	SaveStats(ctx context.Context, stats domain.StrategyStats) error
}

// BankrollStorage es el system of record de estrategias, ledger, selecciones y stats.
type BankrollStorage interface {
	BankrollQueries

	// WithinTx ejecuta fn dentro de una transacción. Commit si fn devuelve nil,
	// rollback en cualquier otro caso: nunca hay escrituras parciales.
	WithinTx(ctx context.Context, fn func(q BankrollQueries) error) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
