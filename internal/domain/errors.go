package domain

import (
	"errors"
	"fmt"
)

// Errores del motor de bankroll. Los callers clasifican con errors.Is;
// los mensajes concretos se añaden con fmt.Errorf("...: %w", err).
var (
	ErrValidation           = errors.New("validation error")
	ErrInvalidOdds          = errors.New("invalid odds: must be greater than 1.0")
	ErrNotFound             = errors.New("not found")
	ErrStrategyNotFound     = fmt.Errorf("strategy %w", ErrNotFound)
	ErrSelectionNotFound    = fmt.Errorf("selection %w", ErrNotFound)
	ErrInsufficientBankroll = errors.New("insufficient bankroll")
	ErrAlreadySettled       = errors.New("selection already settled")
	ErrStorage              = errors.New("storage error")
	ErrConcurrencyConflict  = errors.New("concurrency conflict: strategy was modified concurrently")
)

// ErrorKind devuelve una etiqueta estable para el tipo de error.
// Útil para códigos de salida y respuestas de una capa de transporte.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidOdds), errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientBankroll):
		return "insufficient_bankroll"
	case errors.Is(err, ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "internal"
	}
}
