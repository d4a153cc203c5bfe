package engine_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/stakebook/internal/adapters/storage"
	"github.com/alejandrodnm/stakebook/internal/application/engine"
	"github.com/alejandrodnm/stakebook/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock avanza un segundo en cada lectura para que los timestamps sean únicos.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(v float64) *float64 { return &v }

func newEngine(t *testing.T) (*engine.Engine, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return engine.New(store, engine.DefaultConfig()).WithClock(clock.Now), store
}

func createStrategy(t *testing.T, e *engine.Engine) domain.Strategy {
	t.Helper()
	s, err := e.CreateStrategy(context.Background(), engine.CreateStrategyRequest{
		Name:            "Value EPL",
		InitialBankroll: dec("1000"),
		FractionalKelly: 0.5,
	})
	require.NoError(t, err)
	return s
}

func selectionRequest(strategyID string) domain.NewSelectionRequest {
	return domain.NewSelectionRequest{
		StrategyID:            strategyID,
		FixtureID:             "fx-1",
		OddID:                 "odd-1",
		MarketID:              "1x2",
		BookmakerID:           "pinnacle",
		Label:                 "Home",
		OddValue:              2.5,
		PredictionProbability: ptr(50),
	}
}

// assertLedgerInvariants comprueba el encadenado y que la caché coincide con el log.
func assertLedgerInvariants(t *testing.T, e *engine.Engine, strategyID string) domain.StrategyReport {
	t.Helper()
	report, err := e.GetStats(context.Background(), strategyID)
	require.NoError(t, err)

	replay := domain.ReplayLedger(report.BankrollHistory)
	assert.Equal(t, -1, replay.ChainBreak, "ledger chain broken")
	assert.True(t, replay.Balance.Equal(report.Strategy.CurrentBankroll),
		"ledger sum %s != current bankroll %s", replay.Balance, report.Strategy.CurrentBankroll)
	last := report.BankrollHistory[len(report.BankrollHistory)-1]
	assert.True(t, last.Amount.Equal(report.Strategy.CurrentBankroll))
	assert.True(t, report.Stats.Consistent(), "total != won + lost + pending")
	return report
}

func TestEngine_CreateStrategy(t *testing.T) {
	e, _ := newEngine(t)
	s := createStrategy(t, e)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "USD", s.Currency)
	assert.True(t, s.CurrentBankroll.Equal(dec("1000")))

	report := assertLedgerInvariants(t, e, s.ID)
	require.Len(t, report.BankrollHistory, 1)
	initial := report.BankrollHistory[0]
	assert.Equal(t, domain.EntryInitial, initial.EntryType)
	assert.True(t, initial.PreviousAmount.IsZero())
	assert.True(t, initial.ChangeAmount.Equal(dec("1000")))
	assert.Equal(t, 0, report.Stats.TotalBets)
}

func TestEngine_CreateStrategy_Validation(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.CreateStrategy(ctx, engine.CreateStrategyRequest{Name: "", InitialBankroll: dec("10")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.CreateStrategy(ctx, engine.CreateStrategyRequest{Name: "x", InitialBankroll: dec("0")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.CreateStrategy(ctx, engine.CreateStrategyRequest{Name: "x", InitialBankroll: dec("10"), FractionalKelly: 1.5})
	assert.ErrorIs(t, err, domain.ErrValidation)

	list, err := e.ListStrategies(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEngine_AddSelection_ScenarioA(t *testing.T) {
	e, _ := newEngine(t)
	s := createStrategy(t, e)

	sel, err := e.AddSelection(context.Background(), selectionRequest(s.ID))
	require.NoError(t, err)

	assert.NotEmpty(t, sel.ID)
	assert.Equal(t, domain.SelectionPending, sel.Status)
	assert.InDelta(t, 40.0, sel.ImpliedProbability, 1e-9)
	require.NotNil(t, sel.KellyStake)
	assert.InDelta(t, 0.1667, *sel.KellyStake, 1e-4)
	assert.Equal(t, "83.33", sel.AppliedStake.StringFixed(2))
	assert.InDelta(t, 124.99, sel.PotentialProfit.InexactFloat64(), 0.01)

	// añadir una selección no mueve dinero
	report := assertLedgerInvariants(t, e, s.ID)
	assert.Len(t, report.BankrollHistory, 1)
	assert.True(t, report.Strategy.CurrentBankroll.Equal(dec("1000")))
	// la apuesta se cuenta al liquidarla
	assert.Equal(t, 0, report.Stats.TotalBets)
	assert.Equal(t, 0, report.Stats.PendingBets)
	assert.Equal(t, 1, report.Additional.OpenSelections)
}

func TestEngine_AddSelection_Errors(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	s := createStrategy(t, e)

	req := selectionRequest(s.ID)
	req.OddValue = 1.0
	_, err := e.AddSelection(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidOdds)

	req = selectionRequest("missing")
	_, err = e.AddSelection(ctx, req)
	assert.ErrorIs(t, err, domain.ErrStrategyNotFound)

	req = selectionRequest(s.ID)
	req.PredictionProbability = ptr(101)
	_, err = e.AddSelection(ctx, req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	sels, err := e.ListSelections(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, sels)
}

func TestEngine_AddSelection_RejectsNonFiniteInput(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	s := createStrategy(t, e)

	cases := []struct {
		name    string
		odd     float64
		prob    *float64
		wantErr error
	}{
		{"nan probability", 2.5, ptr(math.NaN()), domain.ErrValidation},
		{"inf probability", 2.5, ptr(math.Inf(1)), domain.ErrValidation},
		{"negative probability", 2.5, ptr(-5), domain.ErrValidation},
		{"inf odd", math.Inf(1), ptr(50), domain.ErrInvalidOdds},
		{"nan odd", math.NaN(), ptr(50), domain.ErrInvalidOdds},
		{"negative odd", -2.5, ptr(50), domain.ErrInvalidOdds},
		{"inf odd without probability", math.Inf(1), nil, domain.ErrInvalidOdds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := selectionRequest(s.ID)
			req.OddValue = tc.odd
			req.PredictionProbability = tc.prob

			var err error
			require.NotPanics(t, func() { _, err = e.AddSelection(ctx, req) })
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, "validation", domain.ErrorKind(err))
		})
	}

	// el lock y la conexión siguen libres tras los rechazos
	_, err := e.AddSelection(ctx, selectionRequest(s.ID))
	require.NoError(t, err)
	sels, err := e.ListSelections(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, sels, 1)
}

func TestEngine_RejectsOutOfRangeAmounts(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	s := createStrategy(t, e)

	_, err := e.ApplyBankrollOperation(ctx, s.ID, domain.OpDeposit, dec("-10"), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = e.ApplyBankrollOperation(ctx, s.ID, domain.OpWithdrawal, dec("-10"), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = e.ApplyBankrollOperation(ctx, s.ID, domain.OpAdjustment, dec("0"), "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	for _, f := range []float64{-0.5, math.NaN(), math.Inf(1)} {
		_, err = e.CreateStrategy(ctx, engine.CreateStrategyRequest{Name: "x", InitialBankroll: dec("10"), FractionalKelly: f})
		assert.ErrorIs(t, err, domain.ErrValidation, "fractional kelly %v", f)
	}
	_, err = e.CreateStrategy(ctx, engine.CreateStrategyRequest{Name: "x", InitialBankroll: dec("-10")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	report := assertLedgerInvariants(t, e, s.ID)
	assert.Len(t, report.BankrollHistory, 1)
	list, err := e.ListStrategies(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEngine_SettleSelection_ScenarioB_Winner(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	s := createStrategy(t, e)
	sel, err := e.AddSelection(ctx, selectionRequest(s.ID))
	require.NoError(t, err)

	st, err := e.SettleSelection(ctx, sel.ID, "2-1", true)
	require.NoError(t, err)

	assert.InDelta(t, 124.99, st.ProfitLoss.InexactFloat64(), 0.01)
	assert.InDelta(t, 1124.99, st.NewBankroll.InexactFloat64(), 0.01)
	assert.Equal(t, domain.SelectionWon, st.Selection.Status)
	assert.Equal(t, 1, st.Stats.WonBets)
	assert.Equal(t, 1, st.Stats.CurrentStreak)
	assert.Equal(t, 0, st.Stats.PendingBets)

	report := assertLedgerInvariants(t, e, s.ID)
	require.Len(t, report.BankrollHistory, 2)
	last := report.BankrollHistory[1]
	assert.Equal(t, domain.EntryBetResult, last.EntryType)
	assert.Equal(t, sel.ID, last.SelectionID)
	assert.Equal(t, "Bet result: 2-1", last.Description)
	assert.InDelta(t, 100.0, report.Additional.HitRate, 1e-9)
}

func TestEngine_SettleSelection_ScenarioC_Loser(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	s := createStrategy(t, e)

	// una ganada previa para comprobar que la racha se reinicia
	first, err := e.AddSelection(ctx, selectionRequest(s.ID))
	require.NoError(t, err)
	_, err = e.SettleSelection(ctx, first.ID, "2-0", true)
	require.NoError(t, err)

	sel, err := e.AddSelection(ctx, selectionRequest(s.ID))
	require.NoError(t, err)
	st, err := e.SettleSelection(ctx, sel.ID, "0-1", false)
	require.NoError(t, err)

	assert.True(t, st.ProfitLoss.Equal(sel.AppliedStake.Neg()))
	assert.Equal(t, 0, st.Stats.CurrentStreak)
	assert.Equal(t, 1, st.Stats.MaxWinningStreak)
	assert.Equal(t, 1, st.Stats.LostBets)
	assertLedgerInvariants(t, e, s.ID)
}

func TestEngine_SettleSelection_LoserFromFreshStrategy(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	s := createStrategy(t, e)
	sel, err := e.AddSelection(ctx, selectionRequest(s.ID))
	require.NoError(t, err)

	st, err := e.SettleSelection(ctx, sel.ID, "0-1", false)
	require.NoError(t, err)
	assert.Equal(t, "-83.33", st.ProfitLoss.StringFixed(2))
	assert.Equal(t, "916.67", st.NewBankroll.StringFixed(2))
}

func TestEngine_SettleSelection_TwiceFailsWithoutSideEffects(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	s := createStrategy(t, e)
	sel, err := e.AddSelection(ctx, selectionRequest(s.ID))
	require.NoError(t, err)
	_, err = e.SettleSelection(ctx, sel.ID, "2-1", true)
	require.NoError(t, err)

	before, err := e.GetStats(ctx, s.ID)
	require.NoError(t, err)

	_, err = e.SettleSelection(ctx, sel.ID, "2-1", false)
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)

	after, err := e.GetStats(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, after.BankrollHistory, len(before.BankrollHistory))
	assert.True(t, after.Strategy.CurrentBankroll.Equal(before.Strategy.CurrentBankroll))
	assert.Equal(t, before.Stats.WonBets, after.Stats.WonBets)
	assert.Equal(t, before.Stats.LostBets, after.Stats.LostBets)
}

func TestEngine_SettleSelection_NotFound(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.SettleSelection(context.Background(), "missing", "x", true)
	assert.ErrorIs(t, err, domain.ErrSelectionNotFound)
}

func TestEngine_SettleSelection_ZeroStake(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	s := createStrategy(t, e)

	req := selectionRequest(s.ID)
	req.PredictionProbability = nil
	sel, err := e.AddSelection(ctx, req)
	require.NoError(t, err)
	assert.True(t, sel.AppliedStake.IsZero())

	st, err := e.SettleSelection(ctx, sel.ID, "1-0", true)
	require.NoError(t, err)
	assert.True(t, st.ProfitLoss.IsZero())
	assert.True(t, st.NewBankroll.Equal(dec("1000")))

	report := assertLedgerInvariants(t, e, s.ID)
	assert.Len(t, report.BankrollHistory, 2)
	last := report.BankrollHistory[1]
	require.NotNil(t, last.ChangePercentage)
	assert.Equal(t, 0.0, *last.ChangePercentage)
}

func TestEngine_ApplyBankrollOperation(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	s := createStrategy(t, e)

	ch, err := e.ApplyBankrollOperation(ctx, s.ID, domain.OpDeposit, dec("500"), "")
	require.NoError(t, err)
	assert.True(t, ch.PreviousBankroll.Equal(dec("1000")))
	assert.True(t, ch.NewBankroll.Equal(dec("1500")))
	require.NotNil(t, ch.ChangePercentage)
	assert.InDelta(t, 50.0, *ch.ChangePercentage, 1e-9)
	assert.Equal(t, "Manual operation: deposit", ch.Entry.Description)

	ch, err = e.ApplyBankrollOperation(ctx, s.ID, domain.OpWithdrawal, dec("300"), "payout")
	require.NoError(t, err)
	assert.True(t, ch.NewBankroll.Equal(dec("1200")))
	assert.Equal(t, domain.EntryWithdrawal, ch.Entry.EntryType)

	ch, err = e.ApplyBankrollOperation(ctx, s.ID, domain.OpAdjustment, dec("-0.50"), "fee")
	require.NoError(t, err)
	assert.True(t, ch.NewBankroll.Equal(dec("1199.50")))

	report := assertLedgerInvariants(t, e, s.ID)
	assert.Len(t, report.BankrollHistory, 4)
}

func TestEngine_Withdrawal_ScenarioD_Insufficient(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	s := createStrategy(t, e)

	_, err := e.ApplyBankrollOperation(ctx, s.ID, domain.OpWithdrawal, dec("2000"), "")
	assert.ErrorIs(t, err, domain.ErrInsufficientBankroll)

	report := assertLedgerInvariants(t, e, s.ID)
	assert.Len(t, report.BankrollHistory, 1)
	assert.True(t, report.Strategy.CurrentBankroll.Equal(dec("1000")))
}

func TestEngine_ApplyBankrollOperation_UnknownStrategy(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.ApplyBankrollOperation(context.Background(), "missing", domain.OpDeposit, dec("10"), "")
	assert.ErrorIs(t, err, domain.ErrStrategyNotFound)
}

func TestEngine_StakeUsesCurrentBankroll(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	s := createStrategy(t, e)

	_, err := e.ApplyBankrollOperation(ctx, s.ID, domain.OpDeposit, dec("1000"), "")
	require.NoError(t, err)

	sel, err := e.AddSelection(ctx, selectionRequest(s.ID))
	require.NoError(t, err)
	assert.Equal(t, "166.67", sel.AppliedStake.StringFixed(2))

	// el stake queda congelado aunque el bankroll cambie después
	_, err = e.ApplyBankrollOperation(ctx, s.ID, domain.OpWithdrawal, dec("1500"), "")
	require.NoError(t, err)
	st, err := e.SettleSelection(ctx, sel.ID, "0-2", false)
	require.NoError(t, err)
	assert.Equal(t, "-166.67", st.ProfitLoss.StringFixed(2))
	assert.Equal(t, "333.33", st.NewBankroll.StringFixed(2))
}

func TestEngine_ConcurrentSettlementOfSameSelection(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	s := createStrategy(t, e)
	sel, err := e.AddSelection(ctx, selectionRequest(s.ID))
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.SettleSelection(ctx, sel.ID, "2-1", true)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadySettled)
	}
	assert.Equal(t, 1, ok)

	report := assertLedgerInvariants(t, e, s.ID)
	assert.Len(t, report.BankrollHistory, 2)
	assert.Equal(t, 1, report.Stats.WonBets)
}

func TestEngine_ConcurrentOperationsOnSameStrategy(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	s := createStrategy(t, e)

	var sels []domain.Selection
	for i := 0; i < 6; i++ {
		sel, err := e.AddSelection(ctx, selectionRequest(s.ID))
		require.NoError(t, err)
		sels = append(sels, sel)
	}

	var wg sync.WaitGroup
	for i, sel := range sels {
		wg.Add(2)
		go func(id string, won bool) {
			defer wg.Done()
			_, err := e.SettleSelection(ctx, id, "r", won)
			assert.NoError(t, err)
		}(sel.ID, i%2 == 0)
		go func() {
			defer wg.Done()
			_, err := e.ApplyBankrollOperation(ctx, s.ID, domain.OpDeposit, dec("10"), "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	report := assertLedgerInvariants(t, e, s.ID)
	assert.Len(t, report.BankrollHistory, 1+6+6)
	assert.Equal(t, 6, report.Stats.TotalBets)
	assert.Equal(t, 3, report.Stats.WonBets)
	assert.Equal(t, 3, report.Stats.LostBets)
	assert.Equal(t, 0, report.Stats.PendingBets)

	// todas las selecciones se dimensionaron contra 1000: +3×124.995 -3×83.33 +60
	want := dec("1000").Add(sels[0].PotentialProfit.Mul(dec("3"))).Sub(sels[0].AppliedStake.Mul(dec("3"))).Add(dec("60"))
	assert.True(t, report.Strategy.CurrentBankroll.Equal(want), "got %s want %s", report.Strategy.CurrentBankroll, want)
}

func TestEngine_ListStrategiesAndSelections(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	a := createStrategy(t, e)
	b := createStrategy(t, e)

	_, err := e.AddSelection(ctx, selectionRequest(a.ID))
	require.NoError(t, err)

	list, err := e.ListStrategies(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].Strategy.ID, "newest first")
	assert.Equal(t, 0, list[1].Stats.TotalBets)

	sels, err := e.ListSelections(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, sels)

	_, err = e.ListSelections(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrStrategyNotFound)
}
