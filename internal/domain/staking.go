package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MaxKellyFraction es el techo fijo de la fracción Kelly (25% del bankroll).
// Acota el riesgo de cola por error en la estimación de probabilidad.
const MaxKellyFraction = 0.25

// StakeDecimals es la precisión (céntimos) con la que se congela el stake aplicado.
const StakeDecimals = 2

// ImpliedProbability devuelve la probabilidad implícita de la cuota, en porcentaje.
//
//	implied = 100 / odd
func ImpliedProbability(oddValue float64) (float64, error) {
	if !finite(oddValue) || oddValue <= 1.0 {
		return 0, fmt.Errorf("domain.ImpliedProbability: odd %.4f: %w", oddValue, ErrInvalidOdds)
	}
	return 100 / oddValue, nil
}

// ExpectedValue devuelve el EV por unidad apostada.
// Positivo = hay ventaja sobre el mercado.
//
//	p  = probabilityPct / 100
//	EV = p × (odd - 1) - (1 - p)
func ExpectedValue(oddValue, probabilityPct float64) float64 {
	p := probabilityPct / 100
	return p*(oddValue-1) - (1 - p)
}

// KellyFraction devuelve la fracción Kelly completa para una cuota decimal.
// Sin ventaja devuelve 0 (nunca un stake negativo). Limitada a MaxKellyFraction.
//
//	edge  = p - 1/odd
//	kelly = p - (1-p) / (odd-1)
func KellyFraction(oddValue, probabilityPct float64) float64 {
	if !finite(oddValue) || !finite(probabilityPct) || oddValue <= 1.0 {
		return 0
	}
	p := probabilityPct / 100
	edge := p - 1/oddValue
	if edge <= 0 {
		return 0
	}
	kelly := p - (1-p)/(oddValue-1)
	if kelly > MaxKellyFraction {
		return MaxKellyFraction
	}
	if kelly < 0 {
		return 0
	}
	return kelly
}

// StakeInput son los datos de mercado sobre los que se dimensiona una apuesta.
type StakeInput struct {
	OddValue        float64
	Probability     *float64 // porcentaje 0-100, nil si no hay estimación
	FractionalKelly float64
	Bankroll        decimal.Decimal
}

// StakeSizing es el resultado del dimensionado de una selección.
// Los punteros a nil indican que no había probabilidad estimada.
type StakeSizing struct {
	ImpliedProbability float64
	ExpectedValue      *float64
	KellyStake         *float64 // fracción Kelly completa
	AppliedKelly       *float64 // Kelly × fractional_kelly (stake_percentage)
	AppliedStake       decimal.Decimal
	PotentialProfit    decimal.Decimal
}

// SizeStake ejecuta la calculadora completa: probabilidad implícita, EV y Kelly fraccional.
// El stake se evalúa contra el bankroll dado y se redondea a céntimos.
func SizeStake(in StakeInput) (StakeSizing, error) {
	implied, err := ImpliedProbability(in.OddValue)
	if err != nil {
		return StakeSizing{}, err
	}
	out := StakeSizing{
		ImpliedProbability: implied,
		AppliedStake:       decimal.Zero,
		PotentialProfit:    decimal.Zero,
	}
	if in.Probability == nil {
		return out, nil
	}
	if err := ValidateProbability(*in.Probability); err != nil {
		return StakeSizing{}, err
	}
	if err := ValidateFractionalKelly(in.FractionalKelly); err != nil {
		return StakeSizing{}, err
	}

	ev := ExpectedValue(in.OddValue, *in.Probability)
	kelly := KellyFraction(in.OddValue, *in.Probability)
	applied := kelly * in.FractionalKelly

	out.ExpectedValue = &ev
	out.KellyStake = &kelly
	out.AppliedKelly = &applied
	out.AppliedStake = in.Bankroll.Mul(decimal.NewFromFloat(applied)).Round(StakeDecimals)
	out.PotentialProfit = PotentialProfit(out.AppliedStake, in.OddValue)
	return out, nil
}

// PotentialProfit devuelve la ganancia neta si la selección gana: stake × (odd - 1).
func PotentialProfit(stake decimal.Decimal, oddValue float64) decimal.Decimal {
	return stake.Mul(decimal.NewFromFloat(oddValue).Sub(decimal.NewFromInt(1)))
}

// ValidateProbability exige una probabilidad finita en el rango [0, 100].
func ValidateProbability(pct float64) error {
	if !finite(pct) || pct < 0 || pct > 100 {
		return fmt.Errorf("prediction probability %.4f outside [0, 100]: %w", pct, ErrValidation)
	}
	return nil
}

// ValidateFractionalKelly exige un multiplicador en (0, 1].
func ValidateFractionalKelly(f float64) error {
	if !finite(f) || f <= 0 || f > 1 {
		return fmt.Errorf("fractional kelly %.4f outside (0, 1]: %w", f, ErrValidation)
	}
	return nil
}

// finite descarta NaN e ±Inf: decimal.NewFromFloat entra en pánico con ellos.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
