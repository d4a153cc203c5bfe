package engine

// reconcile_all.go: worker pool que concilia todas las estrategias.
//
// Cada worker toma strategy ids del workCh; el lock por estrategia de Reconcile
// sigue aplicando, así que estrategias distintas avanzan en paralelo.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/alejandrodnm/stakebook/internal/domain"
)

// ReconcileAll ejecuta Reconcile sobre todas las estrategias con un worker pool.
// Si workers <= 0 usa runtime.NumCPU(). Los errores por estrategia se acumulan
// y se devuelven juntos; un fallo no detiene al resto.
func (e *Engine) ReconcileAll(ctx context.Context, workers int) ([]domain.ReconcileReport, error) {
	strategies, err := e.store.ListStrategies(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.ReconcileAll: %w", err)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	type result struct {
		report domain.ReconcileReport
		err    error
	}

	workCh := make(chan string, len(strategies))
	resultCh := make(chan result, len(strategies))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range workCh {
				if ctx.Err() != nil {
					resultCh <- result{err: fmt.Errorf("strategy %s: %w", id, ctx.Err())}
					continue
				}
				rep, err := e.Reconcile(ctx, id)
				if err != nil {
					resultCh <- result{err: fmt.Errorf("strategy %s: %w", id, err)}
					continue
				}
				resultCh <- result{report: rep}
			}
		}()
	}

	for _, s := range strategies {
		workCh <- s.ID
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	reports := make([]domain.ReconcileReport, 0, len(strategies))
	var errs []error
	repaired := 0
	for r := range resultCh {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		if !r.report.Clean() {
			repaired++
		}
		reports = append(reports, r.report)
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].StrategyID < reports[j].StrategyID })

	slog.Info("reconcile sweep complete",
		"strategies", len(strategies),
		"repaired", repaired,
		"failed", len(errs),
		"workers", workers,
	)

	if len(errs) > 0 {
		return reports, fmt.Errorf("engine.ReconcileAll: %w", errors.Join(errs...))
	}
	return reports, nil
}
