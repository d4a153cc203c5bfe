package domain_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/stakebook/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() domain.NewSelectionRequest {
	return domain.NewSelectionRequest{
		StrategyID:            "s1",
		FixtureID:             "fx-100",
		OddID:                 "odd-1",
		MarketID:              "1x2",
		BookmakerID:           "pinnacle",
		Label:                 "Home",
		OddValue:              2.5,
		PredictionProbability: ptr(50),
	}
}

func halfKellyStrategy() domain.Strategy {
	return domain.Strategy{ID: "s1", CurrentBankroll: dec("1000"), InitialBankroll: dec("1000"), FractionalKelly: 0.5}
}

func TestNewSelectionRequest_Validate(t *testing.T) {
	assert.NoError(t, validRequest().Validate())

	req := validRequest()
	req.MarketID = ""
	req.Label = "  "
	err := req.Validate()
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "market_id")
	assert.Contains(t, err.Error(), "label")

	req = validRequest()
	req.PredictionProbability = ptr(120)
	assert.ErrorIs(t, req.Validate(), domain.ErrValidation)
}

func TestNewPendingSelection(t *testing.T) {
	sel, err := domain.NewPendingSelection(validRequest(), halfKellyStrategy(), t0)
	require.NoError(t, err)

	assert.Equal(t, domain.SelectionPending, sel.Status)
	assert.Equal(t, "s1", sel.StrategyID)
	assert.InDelta(t, 40.0, sel.ImpliedProbability, 1e-9)
	assert.Equal(t, "83.33", sel.AppliedStake.StringFixed(2))
	require.NotNil(t, sel.StakePercentage)
	assert.InDelta(t, 0.0833, *sel.StakePercentage, 1e-4)
	assert.False(t, sel.ProfitLoss.Valid)
	assert.Nil(t, sel.SettledAt)
}

func TestNewPendingSelection_InvalidOdds(t *testing.T) {
	req := validRequest()
	req.OddValue = 1.0
	_, err := domain.NewPendingSelection(req, halfKellyStrategy(), t0)
	assert.ErrorIs(t, err, domain.ErrInvalidOdds)
}

func TestSelection_SettleWinner(t *testing.T) {
	sel, err := domain.NewPendingSelection(validRequest(), halfKellyStrategy(), t0)
	require.NoError(t, err)

	settled, err := sel.Settle("2-1", true, t0.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, domain.SelectionWon, settled.Status)
	assert.True(t, settled.IsWinner())
	require.True(t, settled.ProfitLoss.Valid)
	assert.InDelta(t, 124.99, settled.ProfitLoss.Decimal.InexactFloat64(), 0.01)
	require.NotNil(t, settled.SettledAt)
	assert.Equal(t, "2-1", settled.Result)
}

func TestSelection_SettleLoser(t *testing.T) {
	sel, err := domain.NewPendingSelection(validRequest(), halfKellyStrategy(), t0)
	require.NoError(t, err)

	settled, err := sel.Settle("0-1", false, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.SelectionLost, settled.Status)
	assert.Equal(t, "-83.33", settled.ProfitLoss.Decimal.StringFixed(2))
}

func TestSelection_SettleTwiceFails(t *testing.T) {
	sel, err := domain.NewPendingSelection(validRequest(), halfKellyStrategy(), t0)
	require.NoError(t, err)
	settled, err := sel.Settle("2-1", true, t0)
	require.NoError(t, err)

	_, err = settled.Settle("2-1", false, t0)
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)
}

func TestSettledInOrder(t *testing.T) {
	base, err := domain.NewPendingSelection(validRequest(), halfKellyStrategy(), t0)
	require.NoError(t, err)

	late, _ := base.Settle("w", true, t0.Add(2*time.Hour))
	late.ID = "late"
	early, _ := base.Settle("l", false, t0.Add(time.Hour))
	early.ID = "early"
	pending := base
	pending.ID = "pending"

	out := domain.SettledInOrder([]domain.Selection{late, pending, early})
	require.Len(t, out, 2)
	assert.Equal(t, "early", out[0].ID)
	assert.Equal(t, "late", out[1].ID)
}
