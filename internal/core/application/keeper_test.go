package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestKeeperTick(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t)
	tradeSvc, riskSvc := cfg.TradeService(), cfg.RiskService()
	market := newMarket(t, tradeSvc, 2, 1_000_000)
	newMarket(t, tradeSvc, 2, 1_000_000)
	v := newVerse(t, riskSvc)

	risky := openPosition(t, riskSvc, market.ID, v.ID, "long", 4, 0)
	safe := openPosition(t, riskSvc, market.ID, v.ID, "long", 1, 0)

	report, err := cfg.Keeper().Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Markets)
	require.Equal(t, 2, report.Assessed)
	require.Zero(t, report.Liquidated)

	crashOutcomeZero(t, tradeSvc, market.ID)

	report, err = cfg.Keeper().Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Assessed)
	require.Equal(t, 1, report.Liquidated)

	position, err := riskSvc.GetPosition(ctx, risky.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PositionStatusLiquidated, position.Status)

	position, err = riskSvc.GetPosition(ctx, safe.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PositionStatusActive, position.Status)

	metrics := cfg.Metrics()
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Liquidations))
	require.Zero(t, testutil.ToFloat64(metrics.QueueLength))
}

func TestKeeperTickCanceled(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t)
	tradeSvc, riskSvc := cfg.TradeService(), cfg.RiskService()
	market := newMarket(t, tradeSvc, 2, 1_000_000)
	v := newVerse(t, riskSvc)
	risky := openPosition(t, riskSvc, market.ID, v.ID, "long", 4, 0)
	crashOutcomeZero(t, tradeSvc, market.ID)

	_, err := riskSvc.AssessPosition(ctx, risky.ID)
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = cfg.Keeper().Tick(canceled)
	require.ErrorIs(t, err, context.Canceled)

	position, err := riskSvc.GetPosition(ctx, risky.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PositionStatusActive, position.Status)

	queued := false
	for _, c := range riskSvc.LiquidationCandidates() {
		queued = queued || c.PositionID == risky.ID
	}
	require.True(t, queued)

	report, err := cfg.Keeper().Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Liquidated)
}

func TestKeeperStartStop(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t)
	tradeSvc, riskSvc := cfg.TradeService(), cfg.RiskService()
	market := newMarket(t, tradeSvc, 2, 1_000_000)
	v := newVerse(t, riskSvc)
	position := openPosition(t, riskSvc, market.ID, v.ID, "long", 4, 0)
	crashOutcomeZero(t, tradeSvc, market.ID)

	keeper := cfg.Keeper()
	keeper.Start()
	// Starting twice is a no-op.
	keeper.Start()

	require.Eventually(t, func() bool {
		p, err := riskSvc.GetPosition(ctx, position.ID)
		return err == nil && p.Status == domain.PositionStatusLiquidated
	}, 2*time.Second, 10*time.Millisecond)

	keeper.Stop()
	keeper.Stop()
}
