package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/gary322/flashbets-sub011/internal/core/application"
	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func newTestConfig(t *testing.T) *application.Config {
	t.Helper()

	cfg := &application.Config{
		DBType:               application.DBInMemory,
		PrometheusRegisterer: prometheus.NewRegistry(),
		KeeperConfig: application.KeeperConfig{
			Interval:  20 * time.Millisecond,
			BatchSize: 10,
			RateLimit: 1000,
		},
	}
	require.NoError(t, cfg.Validate())
	t.Cleanup(func() {
		cfg.RepoManager().Close()
	})
	return cfg
}

func newMarket(
	t *testing.T, svc application.TradeService, outcomes uint32, liquidity uint64,
) *application.MarketInfo {
	t.Helper()

	market, err := svc.CreateMarket(ctx, application.CreateMarketRequest{
		Title:     "Who wins the final?",
		Outcomes:  outcomes,
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
		Liquidity: liquidity,
	})
	require.NoError(t, err)
	return market
}

func newVerse(t *testing.T, svc application.RiskService) *domain.Verse {
	t.Helper()

	v, err := svc.CreateVerse(ctx, "sports", "")
	require.NoError(t, err)
	return v
}

func openPosition(
	t *testing.T, svc application.RiskService,
	marketID, verseID, side string, leverage int64, margin uint64,
) *domain.Position {
	t.Helper()

	position, err := svc.OpenPosition(ctx, application.OpenPositionRequest{
		Owner:    "alice",
		MarketID: marketID,
		VerseID:  verseID,
		Outcome:  0,
		Side:     side,
		Size:     1_000,
		Leverage: fixedpoint.FromInt64(leverage),
		Margin:   margin,
	})
	require.NoError(t, err)
	return position
}

// crashOutcomeZero buys outcome 1 of a binary market until outcome 0 trades
// around 0.34.
func crashOutcomeZero(t *testing.T, svc application.TradeService, marketID string) {
	t.Helper()

	_, err := svc.Buy(ctx, application.TradeRequest{
		MarketID: marketID,
		Outcome:  1,
		AmountIn: 400_000,
	})
	require.NoError(t, err)

	market, err := svc.GetMarket(ctx, marketID)
	require.NoError(t, err)
	require.Less(t, market.Prices[0].Float64(), 0.35)
}
