package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// RiskFreeDailyRate es la tasa libre de riesgo diaria (2% anual) usada en el Sharpe.
const RiskFreeDailyRate = 0.02 / 365

// Period es la ventana temporal de las métricas periódicas.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Cutoff devuelve el inicio de la ventana que termina en now.
func (p Period) Cutoff(now time.Time) time.Time {
	switch p {
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodMonth:
		return now.AddDate(0, -1, 0)
	default:
		return now.AddDate(0, 0, -1)
	}
}

// Key devuelve la clave del bucket al que pertenece t: día, semana ISO o mes (UTC).
func (p Period) Key(t time.Time) string {
	t = t.UTC()
	switch p {
	case PeriodWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case PeriodMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// PeriodPerformance es el cambio agregado del bankroll en un bucket.
// El valor cero (Period vacío) indica que no hay buckets.
type PeriodPerformance struct {
	Period     string
	Change     decimal.Decimal
	Percentage float64
	Initial    decimal.Decimal
	Final      decimal.Decimal
}

// PerformanceMetrics agrupa las métricas de rendimiento recalculadas sobre el ledger.
type PerformanceMetrics struct {
	DailyROI    float64
	WeeklyROI   float64
	MonthlyROI  float64
	Volatility  float64
	SharpeRatio float64
	BestDay     PeriodPerformance
	WorstDay    PeriodPerformance
	BestWeek    PeriodPerformance
	WorstWeek   PeriodPerformance
	BestMonth   PeriodPerformance
	WorstMonth  PeriodPerformance
}

// ComputePerformance recalcula todas las métricas por escaneo completo del ledger.
func ComputePerformance(entries []LedgerEntry, now time.Time) PerformanceMetrics {
	m := PerformanceMetrics{
		DailyROI:    PeriodicROI(entries, PeriodDay, now),
		WeeklyROI:   PeriodicROI(entries, PeriodWeek, now),
		MonthlyROI:  PeriodicROI(entries, PeriodMonth, now),
		Volatility:  Volatility(entries),
		SharpeRatio: SharpeRatio(entries),
	}
	m.BestDay, m.WorstDay = BestWorstPerformance(entries, PeriodDay)
	m.BestWeek, m.WorstWeek = BestWorstPerformance(entries, PeriodWeek)
	m.BestMonth, m.WorstMonth = BestWorstPerformance(entries, PeriodMonth)
	return m
}

// PeriodicROI devuelve la variación porcentual del bankroll dentro de la ventana.
// Con menos de 2 entradas en la ventana devuelve 0.
func PeriodicROI(entries []LedgerEntry, period Period, now time.Time) float64 {
	cutoff := period.Cutoff(now)
	var window []LedgerEntry
	for _, e := range entries {
		if !e.CreatedAt.Before(cutoff) {
			window = append(window, e)
		}
	}
	if len(window) < 2 {
		return 0
	}
	first := window[0].Amount
	last := window[len(window)-1].Amount
	if first.IsZero() {
		return 0
	}
	return last.Sub(first).Div(first).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// Volatility es la desviación estándar (poblacional) de change_percentage,
// excluyendo la entrada inicial. Con menos de 3 entradas devuelve 0.
func Volatility(entries []LedgerEntry) float64 {
	if len(entries) < 3 {
		return 0
	}
	_, std := meanStd(changeReturns(entries, 1))
	return std
}

// SharpeRatio = (retorno medio - tasa libre de riesgo diaria) / desviación de los retornos.
// Devuelve 0 con menos de 3 entradas o volatilidad nula (ratio neutro, no infinito).
func SharpeRatio(entries []LedgerEntry) float64 {
	if len(entries) < 3 {
		return 0
	}
	mean, std := meanStd(changeReturns(entries, 100))
	if std == 0 {
		return 0
	}
	return (mean - RiskFreeDailyRate) / std
}

// BestWorstPerformance agrupa las entradas (sin la inicial) por bucket y devuelve
// el de mayor y el de menor porcentaje. Los empates se resuelven por orden cronológico.
func BestWorstPerformance(entries []LedgerEntry, period Period) (best, worst PeriodPerformance) {
	buckets := bucketize(entries, period)
	if len(buckets) == 0 {
		return zeroPerformance(), zeroPerformance()
	}
	best, worst = buckets[0], buckets[0]
	for _, b := range buckets[1:] {
		if b.Percentage > best.Percentage {
			best = b
		}
		if b.Percentage < worst.Percentage {
			worst = b
		}
	}
	return best, worst
}

// BestPerformance devuelve el bucket con mayor porcentaje.
func BestPerformance(entries []LedgerEntry, period Period) PeriodPerformance {
	best, _ := BestWorstPerformance(entries, period)
	return best
}

// WorstPerformance devuelve el bucket con menor porcentaje.
func WorstPerformance(entries []LedgerEntry, period Period) PeriodPerformance {
	_, worst := BestWorstPerformance(entries, period)
	return worst
}

func bucketize(entries []LedgerEntry, period Period) []PeriodPerformance {
	if len(entries) < 2 {
		return nil
	}
	index := make(map[string]int)
	var buckets []PeriodPerformance
	for _, e := range entries[1:] {
		key := period.Key(e.CreatedAt)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, PeriodPerformance{
				Period:  key,
				Change:  decimal.Zero,
				Initial: e.PreviousAmount,
			})
		}
		buckets[i].Change = buckets[i].Change.Add(e.ChangeAmount)
		buckets[i].Final = e.Amount
	}
	for i := range buckets {
		if !buckets[i].Initial.IsZero() {
			buckets[i].Percentage = buckets[i].Change.Div(buckets[i].Initial).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
	}
	return buckets
}

func zeroPerformance() PeriodPerformance {
	return PeriodPerformance{Change: decimal.Zero, Initial: decimal.Zero, Final: decimal.Zero}
}

// changeReturns devuelve change_percentage / scale de cada entrada salvo la primera.
// Las entradas sin porcentaje (previous == 0) no aportan retorno.
func changeReturns(entries []LedgerEntry, scale float64) []float64 {
	out := make([]float64, 0, len(entries))
	for _, e := range entries[1:] {
		if e.ChangePercentage == nil {
			continue
		}
		out = append(out, *e.ChangePercentage/scale)
	}
	return out
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance)
}
