package application_test

import (
	"testing"
	"time"

	"github.com/gary322/flashbets-sub011/internal/core/application"
	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/gary322/flashbets-sub011/pkg/marketmaking"
	"github.com/gary322/flashbets-sub011/pkg/marketmaking/formula"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCreateMarket(t *testing.T) {
	t.Parallel()
	svc := newTestConfig(t).TradeService()
	expiry := time.Now().Add(30 * 24 * time.Hour)

	t.Run("valid", func(t *testing.T) {
		tests := []struct {
			name    string
			req     application.CreateMarketRequest
			ammType marketmaking.AMMType
			prices  []float64
		}{
			{
				name: "single outcome",
				req: application.CreateMarketRequest{
					Title: "Does it rain?", Outcomes: 1, ExpiresAt: expiry, Liquidity: 1_000_000,
				},
				ammType: marketmaking.AMMTypeLMSR,
				prices:  []float64{1},
			},
			{
				name: "binary",
				req: application.CreateMarketRequest{
					Title: "Who wins?", Outcomes: 2, ExpiresAt: expiry, Liquidity: 1_000_000,
				},
				ammType: marketmaking.AMMTypePMAMM,
				prices:  []float64{0.5, 0.5},
			},
			{
				name: "binary with initial prices",
				req: application.CreateMarketRequest{
					Title: "Who wins?", Outcomes: 2, ExpiresAt: expiry, Liquidity: 1_000_000,
					InitialPricesBps: []uint64{3_000, 7_000},
				},
				ammType: marketmaking.AMMTypePMAMM,
				prices:  []float64{0.3, 0.7},
			},
			{
				name: "continuous",
				req: application.CreateMarketRequest{
					Title: "Closing price?", Outcomes: 4, Continuous: true, ExpiresAt: expiry,
					Liquidity: 10_000, RangeMax: 1_000,
				},
				ammType: marketmaking.AMMTypeL2AMM,
				prices:  []float64{0.25, 0.25, 0.25, 0.25},
			},
		}
		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				market, err := svc.CreateMarket(ctx, tt.req)
				require.NoError(t, err)
				require.Equal(t, tt.ammType, market.AMMType)
				require.Equal(t, domain.MarketStatusActive, market.Status)
				require.Len(t, market.Prices, len(tt.prices))
				for i, p := range tt.prices {
					require.InDelta(t, p, market.Prices[i].Float64(), 1e-4)
				}
				if tt.ammType == marketmaking.AMMTypeL2AMM {
					require.InDelta(t, 500, market.ExpectedValue.Float64(), 1e-9)
				}

				got, err := svc.GetMarket(ctx, market.ID)
				require.NoError(t, err)
				require.Equal(t, market.ID, got.ID)
			})
		}
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name        string
			req         application.CreateMarketRequest
			expectedErr error
		}{
			{
				name: "missing title",
				req: application.CreateMarketRequest{
					Outcomes: 2, ExpiresAt: expiry, Liquidity: 1_000,
				},
				expectedErr: application.ErrInvalidRequest,
			},
			{
				name: "no outcomes",
				req: application.CreateMarketRequest{
					Title: "Who wins?", ExpiresAt: expiry, Liquidity: 1_000,
				},
				expectedErr: application.ErrInvalidRequest,
			},
			{
				name: "continuous without range",
				req: application.CreateMarketRequest{
					Title: "Closing price?", Outcomes: 4, Continuous: true,
					ExpiresAt: expiry, Liquidity: 1_000,
				},
				expectedErr: application.ErrInvalidRequest,
			},
			{
				name: "expired",
				req: application.CreateMarketRequest{
					Title: "Who wins?", Outcomes: 2, Liquidity: 1_000,
					ExpiresAt: time.Now().Add(-time.Hour),
				},
				expectedErr: domain.ErrMarketInvalidExpiry,
			},
			{
				name: "prices not adding up",
				req: application.CreateMarketRequest{
					Title: "Who wins?", Outcomes: 2, ExpiresAt: expiry, Liquidity: 1_000,
					InitialPricesBps: []uint64{3_000, 3_000},
				},
				expectedErr: formula.ErrInvalidPrices,
			},
		}
		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				market, err := svc.CreateMarket(ctx, tt.req)
				require.ErrorIs(t, err, tt.expectedErr)
				require.Nil(t, market)
			})
		}
	})
}

func TestBuySell(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t)
	svc := cfg.TradeService()
	market := newMarket(t, svc, 2, 1_000_000)
	amm := marketmaking.AMMTypePMAMM.String()

	buy, err := svc.Buy(ctx, application.TradeRequest{
		MarketID: market.ID, Outcome: 0, AmountIn: 10_000,
	})
	require.NoError(t, err)
	require.True(t, buy.Buy)
	require.Equal(t, uint64(10_000), buy.AmountIn)
	require.Greater(t, buy.AmountOut, uint64(10_000))
	require.Equal(t, uint64(3), buy.FeeBps)
	require.Equal(t, buy.Fee, buy.Fees.Vault+buy.Fees.Rewards+buy.Fees.Burn)

	info, err := svc.GetMarket(ctx, market.ID)
	require.NoError(t, err)
	collateral := 1_000_000 + buy.AmountIn - buy.Fee + buy.Fees.Vault
	require.Equal(t, collateral, info.Collateral)
	require.Greater(t, info.Prices[0].Float64(), 0.5)

	sell, err := svc.Sell(ctx, application.TradeRequest{
		MarketID: market.ID, Outcome: 0, Shares: buy.AmountOut,
	})
	require.NoError(t, err)
	require.False(t, sell.Buy)
	require.Equal(t, buy.AmountOut, sell.AmountIn)
	require.Less(t, sell.AmountOut, buy.AmountIn)

	info, err = svc.GetMarket(ctx, market.ID)
	require.NoError(t, err)
	require.Equal(t, collateral-sell.AmountOut-sell.Fee+sell.Fees.Vault, info.Collateral)

	metrics := cfg.Metrics()
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Trades.WithLabelValues(amm, "buy")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Trades.WithLabelValues(amm, "sell")))
}

func TestFailingBuySell(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t)
	svc := cfg.TradeService()
	market := newMarket(t, svc, 2, 1_000_000)

	tests := []struct {
		name        string
		req         application.TradeRequest
		sell        bool
		expectedErr error
	}{
		{
			name:        "missing amount",
			req:         application.TradeRequest{MarketID: market.ID},
			expectedErr: application.ErrInvalidRequest,
		},
		{
			name:        "sell given collateral",
			req:         application.TradeRequest{MarketID: market.ID, AmountIn: 100},
			sell:        true,
			expectedErr: application.ErrInvalidRequest,
		},
		{
			name:        "unknown market",
			req:         application.TradeRequest{MarketID: "unknown", Shares: 100},
			expectedErr: domain.ErrMarketNotFound,
		},
		{
			name:        "unknown outcome",
			req:         application.TradeRequest{MarketID: market.ID, Outcome: 2, Shares: 100},
			expectedErr: formula.ErrInvalidOutcome,
		},
		{
			name: "max cost exceeded",
			req: application.TradeRequest{
				MarketID: market.ID, Shares: 10_000, MaxCost: 1_000,
			},
			expectedErr: formula.ErrSlippageExceeded,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var err error
			if tt.sell {
				_, err = svc.Sell(ctx, tt.req)
			} else {
				_, err = svc.Buy(ctx, tt.req)
			}
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestLiquidity(t *testing.T) {
	t.Parallel()
	svc := newTestConfig(t).TradeService()
	market := newMarket(t, svc, 2, 1_000)

	added, err := svc.AddLiquidity(ctx, market.ID, 400)
	require.NoError(t, err)
	require.Equal(t, uint64(400), added.Shares)
	require.Equal(t, []uint64{1_200, 1_200}, added.Reserves)

	removed, err := svc.RemoveLiquidity(ctx, market.ID, 400)
	require.NoError(t, err)
	require.Equal(t, []uint64{200, 200}, removed.Amounts)

	info, err := svc.GetMarket(ctx, market.ID)
	require.NoError(t, err)
	require.Equal(t, []uint64{1_000, 1_000}, info.PMAMM.Reserves)
	require.Equal(t, uint64(1_000), info.Collateral)

	lmsr := newMarket(t, svc, 1, 1_000)
	_, err = svc.AddLiquidity(ctx, lmsr.ID, 400)
	require.ErrorIs(t, err, domain.ErrLiquidityNotSupported)
}

func TestMarketStatus(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig(t)
	svc := cfg.TradeService()
	market := newMarket(t, svc, 2, 1_000_000)
	other := newMarket(t, svc, 2, 1_000_000)
	buyReq := application.TradeRequest{MarketID: market.ID, Shares: 100}

	require.NoError(t, svc.HaltMarket(ctx, market.ID))
	_, err := svc.Buy(ctx, buyReq)
	require.ErrorIs(t, err, domain.ErrMarketNotActive)
	require.Equal(t, 1.0, testutil.ToFloat64(
		cfg.Metrics().RejectedTrades.WithLabelValues(marketmaking.AMMTypePMAMM.String(), "halted"),
	))

	require.NoError(t, svc.ResumeMarket(ctx, market.ID))
	_, err = svc.Buy(ctx, buyReq)
	require.NoError(t, err)

	require.ErrorIs(t, svc.ResumeMarket(ctx, market.ID), domain.ErrMarketNotHalted)

	require.NoError(t, svc.ResolveMarket(ctx, market.ID, 1))
	info, err := svc.GetMarket(ctx, market.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MarketStatusResolved, info.Status)
	require.Equal(t, 1, info.WinningOutcome)
	require.ErrorIs(t, svc.ResumeMarket(ctx, market.ID), domain.ErrMarketResolved)

	active, err := svc.ListMarkets(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, other.ID, active[0].ID)

	all, err := svc.ListMarkets(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
