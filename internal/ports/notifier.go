package ports

import (
	"github.com/alejandrodnm/stakebook/internal/domain"
	"github.com/shopspring/decimal"
)

// Notifier presenta al usuario el resultado de cada operación del motor.
// En la implementación de consola, cada método imprime una tabla o un resumen.
type Notifier interface {
	PrintStrategy(s domain.Strategy)
	PrintStrategies(strategies []domain.Strategy, stats map[string]domain.StrategyStats)
	PrintSelection(s domain.Selection)
	PrintSelections(selections []domain.Selection)
	PrintSettlement(s domain.Selection, newBankroll decimal.Decimal, stats domain.StrategyStats)
	PrintLedgerEntry(e domain.LedgerEntry)
	PrintReport(r domain.StrategyReport)
	PrintReconcile(r domain.ReconcileReport)
}
