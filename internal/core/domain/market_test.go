package domain_test

import (
	"sync"
	"testing"
	"time"

	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/marketmaking"
	"github.com/gary322/flashbets-sub011/pkg/marketmaking/formula"
	"github.com/stretchr/testify/require"
)

var (
	enginesOnce sync.Once
	engines     *marketmaking.Engines
	tables      *fixedpoint.Tables
	enginesErr  error

	now = time.Unix(1_700_000_000, 0)
)

func newEngines(t *testing.T) *marketmaking.Engines {
	t.Helper()
	enginesOnce.Do(func() {
		tables, enginesErr = fixedpoint.NewTables()
		if enginesErr != nil {
			return
		}
		engines, enginesErr = marketmaking.NewEngines(tables)
	})
	require.NoError(t, enginesErr)
	return engines
}

func setup(outcomes uint32, liquidity uint64) domain.MarketSetup {
	return domain.MarketSetup{
		Title:     "Will it rain tomorrow?",
		Outcomes:  outcomes,
		ExpiresAt: now.Add(30 * 24 * time.Hour),
		Liquidity: liquidity,
	}
}

func TestNewMarket(t *testing.T) {
	t.Parallel()
	e := newEngines(t)

	continuous := setup(4, 10_000)
	continuous.Continuous = true
	continuous.RangeMin, continuous.RangeMax = 0, 1000

	nearExpiry := setup(1, 1_000)
	nearExpiry.ExpiresAt = now.Add(time.Hour)

	tests := []struct {
		name    string
		setup   domain.MarketSetup
		ammType marketmaking.AMMType
	}{
		{"single outcome", setup(1, 1_000), marketmaking.AMMTypeLMSR},
		{"multi outcome", setup(3, 1_000), marketmaking.AMMTypePMAMM},
		{"continuous", continuous, marketmaking.AMMTypeL2AMM},
		{"near expiry", nearExpiry, marketmaking.AMMTypePMAMM},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := domain.NewMarket(e, tt.setup, now)
			require.NoError(t, err)
			require.NotEmpty(t, m.ID)
			require.Equal(t, tt.ammType, m.AMMType)
			require.True(t, m.IsActive())
			require.Equal(t, -1, m.WinningOutcome)
			require.Equal(t, tt.setup.Liquidity, m.Collateral)

			prices, err := m.SpotPrices(e)
			require.NoError(t, err)
			require.Len(t, prices, int(tt.setup.Outcomes))
		})
	}

	m, err := domain.NewMarket(e, setup(3, 1_000), now)
	require.NoError(t, err)
	require.Equal(t, []uint64{1_000, 1_000, 1_000}, m.PMAMM.Reserves)
	require.Equal(t, uint64(3_000), m.PMAMM.LPSupply)
	require.Nil(t, m.LMSR)
	require.Nil(t, m.L2)
}

func TestFailingNewMarket(t *testing.T) {
	t.Parallel()
	e := newEngines(t)

	tests := []struct {
		name          string
		setup         func(s *domain.MarketSetup)
		expectedError error
	}{
		{
			name:          "empty_title",
			setup:         func(s *domain.MarketSetup) { s.Title = "  " },
			expectedError: domain.ErrMarketInvalidTitle,
		},
		{
			name:          "expired",
			setup:         func(s *domain.MarketSetup) { s.ExpiresAt = now },
			expectedError: domain.ErrMarketInvalidExpiry,
		},
		{
			name:          "no_liquidity",
			setup:         func(s *domain.MarketSetup) { s.Liquidity = 0 },
			expectedError: formula.ErrInvalidLiquidity,
		},
		{
			name:          "no_outcomes",
			setup:         func(s *domain.MarketSetup) { s.Outcomes = 0 },
			expectedError: marketmaking.ErrInvalidOutcomeCount,
		},
		{
			name:          "too_many_outcomes",
			setup:         func(s *domain.MarketSetup) { s.Outcomes = 65 },
			expectedError: marketmaking.ErrInvalidOutcomeCount,
		},
		{
			name:          "fee_too_high",
			setup:         func(s *domain.MarketSetup) { s.FeeBps = 10_001 },
			expectedError: fixedpoint.ErrInvalidBps,
		},
		{
			name: "initial_prices_mismatch",
			setup: func(s *domain.MarketSetup) {
				s.InitialPricesBps = []uint64{5_000, 5_000}
			},
			expectedError: formula.ErrInvalidPrices,
		},
		{
			name: "inverted_range",
			setup: func(s *domain.MarketSetup) {
				s.Continuous = true
				s.RangeMin, s.RangeMax = 10, 5
			},
			expectedError: formula.ErrInvalidRange,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := setup(3, 1_000)
			tt.setup(&s)
			m, err := domain.NewMarket(e, s, now)
			require.ErrorIs(t, err, tt.expectedError)
			require.Nil(t, m)
		})
	}
}

func TestMarket_Status(t *testing.T) {
	t.Parallel()

	m, err := domain.NewLMSRMarket(setup(2, 1_000), now)
	require.NoError(t, err)

	require.ErrorIs(t, m.Resume(), domain.ErrMarketNotHalted)
	require.NoError(t, m.Halt())
	require.NoError(t, m.Halt())
	require.False(t, m.IsActive())
	require.NoError(t, m.Resume())
	require.True(t, m.IsActive())

	require.ErrorIs(t, m.Resolve(2), formula.ErrInvalidOutcome)
	require.NoError(t, m.Resolve(1))
	require.Equal(t, 1, m.WinningOutcome)
	require.Equal(t, domain.MarketStatusResolved, m.Status)

	require.ErrorIs(t, m.Halt(), domain.ErrMarketResolved)
	require.ErrorIs(t, m.Resume(), domain.ErrMarketResolved)
	require.ErrorIs(t, m.Resolve(0), domain.ErrMarketResolved)
}

func TestMarket_BuySell(t *testing.T) {
	t.Parallel()
	e := newEngines(t)

	m, err := domain.NewLMSRMarket(setup(2, 100_000_000), now)
	require.NoError(t, err)

	buy, err := m.Buy(e, domain.TradeRequest{Outcome: 0, Shares: 50_000_000, FeeBps: 30})
	require.NoError(t, err)
	require.Equal(t, []uint64{50_000_000, 0}, m.LMSR.Quantities)
	collateral := 100_000_000 + buy.AmountIn - buy.Fee
	require.Equal(t, collateral, m.Collateral)

	prices, err := m.SpotPrices(e)
	require.NoError(t, err)
	require.Greater(t, prices[0].Float64(), 0.5)

	sell, err := m.Sell(e, domain.TradeRequest{Outcome: 0, Shares: 50_000_000, FeeBps: 30})
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 0}, m.LMSR.Quantities)
	require.Equal(t, collateral-sell.AmountOut-sell.Fee, m.Collateral)

	// A rejected trade leaves the pool untouched.
	before := m.Collateral
	_, err = m.Buy(e, domain.TradeRequest{
		Outcome: 0, Shares: 50_000_000, Limits: formula.Limits{MaxCost: 1_000},
	})
	require.ErrorIs(t, err, formula.ErrSlippageExceeded)
	require.Equal(t, []uint64{0, 0}, m.LMSR.Quantities)
	require.Equal(t, before, m.Collateral)

	require.NoError(t, m.Halt())
	_, err = m.Buy(e, domain.TradeRequest{Outcome: 0, Shares: 1_000})
	require.ErrorIs(t, err, domain.ErrMarketNotActive)
	_, err = m.Sell(e, domain.TradeRequest{Outcome: 0, Shares: 1_000})
	require.ErrorIs(t, err, domain.ErrMarketNotActive)
}

func TestMarket_BuyGivenIn(t *testing.T) {
	t.Parallel()
	e := newEngines(t)

	m, err := domain.NewPMAMMMarket(e, setup(2, 1_000_000_000), now)
	require.NoError(t, err)

	trade, err := m.Buy(e, domain.TradeRequest{Outcome: 1, AmountIn: 10_000_000, FeeBps: 30})
	require.NoError(t, err)
	require.Equal(t, uint64(10_000_000), trade.AmountIn)
	require.Equal(t, trade.State, m.PMAMM.Reserves)
	require.Equal(t, 1_000_000_000+trade.AmountIn-trade.Fee, m.Collateral)
}

func TestMarket_Liquidity(t *testing.T) {
	t.Parallel()
	e := newEngines(t)

	m, err := domain.NewPMAMMMarket(e, setup(2, 1_000), now)
	require.NoError(t, err)

	added, err := m.AddLiquidity(e, 400)
	require.NoError(t, err)
	require.Equal(t, uint64(400), added.Shares)
	require.Equal(t, []uint64{1_200, 1_200}, m.PMAMM.Reserves)
	require.Equal(t, uint64(2_400), m.PMAMM.LPSupply)
	require.Equal(t, uint64(1_400), m.Collateral)

	removed, err := m.RemoveLiquidity(e, 400)
	require.NoError(t, err)
	require.Equal(t, []uint64{200, 200}, removed.Amounts)
	require.Equal(t, []uint64{1_000, 1_000}, m.PMAMM.Reserves)
	require.Equal(t, uint64(2_000), m.PMAMM.LPSupply)
	require.Equal(t, uint64(1_000), m.Collateral)

	lmsr, err := domain.NewLMSRMarket(setup(2, 1_000), now)
	require.NoError(t, err)
	_, err = lmsr.AddLiquidity(e, 400)
	require.ErrorIs(t, err, domain.ErrLiquidityNotSupported)
}

func TestMarket_Continuous(t *testing.T) {
	t.Parallel()
	e := newEngines(t)

	s := setup(4, 10_000)
	s.Continuous = true
	s.RangeMin, s.RangeMax = 0, 1000
	m, err := domain.NewMarket(e, s, now)
	require.NoError(t, err)

	prices, err := m.SpotPrices(e)
	require.NoError(t, err)
	for _, p := range prices {
		require.InDelta(t, 0.25, p.Float64(), 1e-12)
	}
	ev, err := m.ExpectedValue(e)
	require.NoError(t, err)
	require.InDelta(t, 500, ev.Float64(), 1e-9)

	_, err = m.Buy(e, domain.TradeRequest{Lower: 0, Upper: 1000, AmountIn: 100})
	require.ErrorIs(t, err, formula.ErrInvalidTradeAmount)

	trade, err := m.Buy(e, domain.TradeRequest{Lower: 750, Upper: 1000, Shares: 1_000})
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 0, 0, 1_000}, m.L2.Weights)
	require.Equal(t, 10_000+trade.AmountIn, m.Collateral)

	price, err := m.OutcomePrice(e, 3)
	require.NoError(t, err)
	require.True(t, price.Equal(fixedpoint.One))

	_, err = m.OutcomePrice(e, 4)
	require.ErrorIs(t, err, formula.ErrInvalidOutcome)
}

func TestMarket_EffectiveFeeBps(t *testing.T) {
	t.Parallel()
	newEngines(t)

	m, err := domain.NewLMSRMarket(setup(2, 1_000), now)
	require.NoError(t, err)

	coverage, err := m.Coverage()
	require.NoError(t, err)
	require.True(t, coverage.Equal(fixedpoint.FromInt64(domain.MaxCoverage)))

	fee, err := m.EffectiveFeeBps(tables)
	require.NoError(t, err)
	require.Equal(t, uint64(3), fee)

	require.NoError(t, m.AddOpenInterest(1_000))
	fee, err = m.EffectiveFeeBps(tables)
	require.NoError(t, err)
	// 3 + 25 * e^-3 rounded up.
	require.Equal(t, uint64(5), fee)

	m.ReleaseOpenInterest(5_000)
	require.Zero(t, m.OpenInterest)

	m.FeeBps = 30
	fee, err = m.EffectiveFeeBps(tables)
	require.NoError(t, err)
	require.Equal(t, uint64(30), fee)
}
