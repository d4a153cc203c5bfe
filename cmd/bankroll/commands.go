package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/alejandrodnm/stakebook/internal/application/engine"
	"github.com/alejandrodnm/stakebook/internal/domain"
	"github.com/shopspring/decimal"
)

// usageError es un error de flags del subcomando (exit code 2).
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string, required ...string) error {
	if err := fs.Parse(args); err != nil {
		return &usageError{msg: fmt.Sprintf("%s: %v", fs.Name(), err)}
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	var missing []string
	for _, name := range required {
		if !set[name] {
			missing = append(missing, "-"+name)
		}
	}
	if len(missing) > 0 {
		return &usageError{msg: fmt.Sprintf("%s: missing %s", fs.Name(), strings.Join(missing, ", "))}
	}
	return nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, domain.ErrValidation)
	}
	return d, nil
}

func runCreate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("create")
	name := fs.String("name", "", "strategy name")
	desc := fs.String("desc", "", "description")
	bankroll := fs.String("bankroll", "", "initial bankroll")
	currency := fs.String("currency", "", "currency (default from config)")
	kelly := fs.Float64("kelly", 0, "fractional kelly in (0, 1] (default from config)")
	if err := parse(fs, args, "name", "bankroll"); err != nil {
		return err
	}
	amount, err := parseAmount(*bankroll)
	if err != nil {
		return err
	}

	s, err := a.engine.CreateStrategy(ctx, engine.CreateStrategyRequest{
		Name:            *name,
		Description:     *desc,
		InitialBankroll: amount,
		Currency:        *currency,
		FractionalKelly: *kelly,
	})
	if err != nil {
		return err
	}
	a.console.PrintStrategy(s)
	return nil
}

func runList(ctx context.Context, a *app, _ []string) error {
	summaries, err := a.engine.ListStrategies(ctx)
	if err != nil {
		return err
	}
	strategies := make([]domain.Strategy, 0, len(summaries))
	stats := make(map[string]domain.StrategyStats, len(summaries))
	for _, s := range summaries {
		strategies = append(strategies, s.Strategy)
		stats[s.Strategy.ID] = s.Stats
	}
	a.console.PrintStrategies(strategies, stats)
	return nil
}

func runOperation(kind domain.OperationKind) func(ctx context.Context, a *app, args []string) error {
	return func(ctx context.Context, a *app, args []string) error {
		fs := newFlagSet(string(kind))
		strategyID := fs.String("strategy", "", "strategy id")
		raw := fs.String("amount", "", "amount")
		desc := fs.String("desc", "", "description")
		if err := parse(fs, args, "strategy", "amount"); err != nil {
			return err
		}
		amount, err := parseAmount(*raw)
		if err != nil {
			return err
		}

		change, err := a.engine.ApplyBankrollOperation(ctx, *strategyID, kind, amount, *desc)
		if err != nil {
			return err
		}
		a.console.PrintLedgerEntry(change.Entry)
		return nil
	}
}

func runAddSelection(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("add")
	req := domain.NewSelectionRequest{}
	fs.StringVar(&req.StrategyID, "strategy", "", "strategy id")
	fs.StringVar(&req.FixtureID, "fixture", "", "fixture id")
	fs.StringVar(&req.OddID, "odd-id", "", "odd id")
	fs.StringVar(&req.MarketID, "market", "", "market id")
	fs.StringVar(&req.BookmakerID, "bookmaker", "", "bookmaker id")
	fs.StringVar(&req.Label, "label", "", "selection label")
	fs.Float64Var(&req.OddValue, "odd", 0, "decimal odds")
	prob := fs.Float64("prob", -1, "predicted probability in [0, 100]")
	if err := parse(fs, args, "strategy", "odd"); err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "prob" {
			req.PredictionProbability = prob
		}
	})

	sel, err := a.engine.AddSelection(ctx, req)
	if err != nil {
		return err
	}
	a.console.PrintSelection(sel)
	return nil
}

func runListSelections(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("selections")
	strategyID := fs.String("strategy", "", "strategy id")
	if err := parse(fs, args, "strategy"); err != nil {
		return err
	}
	sels, err := a.engine.ListSelections(ctx, *strategyID)
	if err != nil {
		return err
	}
	a.console.PrintSelections(sels)
	return nil
}

func runSettle(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("settle")
	selectionID := fs.String("selection", "", "selection id")
	result := fs.String("result", "", "result description")
	won := fs.Bool("won", false, "true if the selection won")
	if err := parse(fs, args, "selection", "won"); err != nil {
		return err
	}
	st, err := a.engine.SettleSelection(ctx, *selectionID, *result, *won)
	if err != nil {
		return err
	}
	a.console.PrintSettlement(st.Selection, st.NewBankroll, st.Stats)
	return nil
}

func runStats(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("stats")
	strategyID := fs.String("strategy", "", "strategy id")
	if err := parse(fs, args, "strategy"); err != nil {
		return err
	}
	report, err := a.engine.GetStats(ctx, *strategyID)
	if err != nil {
		return err
	}
	a.console.PrintReport(report)
	return nil
}

func runReconcile(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("reconcile")
	strategyID := fs.String("strategy", "", "strategy id")
	all := fs.Bool("all", false, "reconcile every strategy")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *all {
		reports, err := a.engine.ReconcileAll(ctx, a.reconcileWorkers)
		for _, r := range reports {
			a.console.PrintReconcile(r)
		}
		return err
	}
	if *strategyID == "" {
		return &usageError{msg: "reconcile: missing -strategy (or -all)"}
	}
	report, err := a.engine.Reconcile(ctx, *strategyID)
	if err != nil {
		return err
	}
	a.console.PrintReconcile(report)
	return nil
}
