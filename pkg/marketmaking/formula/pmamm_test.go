package formula

import (
	"math"
	"testing"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPMAMM_Prices(t *testing.T) {
	t.Parallel()
	p := NewPMAMM(newTables(t))

	prices, err := p.Prices([]uint64{1000, 3000})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, prices[0].Float64(), 1e-12)
	assert.InDelta(t, 0.25, prices[1].Float64(), 1e-12)

	prices, err = p.Prices([]uint64{10, 20, 40, 80})
	require.NoError(t, err)
	assert.InDelta(t, 1, sumPrices(t, prices), 1e-12)
	for i := 1; i < len(prices); i++ {
		assert.True(t, prices[i].LessThan(prices[i-1]))
	}

	_, err = p.Prices([]uint64{1000, 0})
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestPMAMM_BuyGivenIn(t *testing.T) {
	t.Parallel()
	p := NewPMAMM(newTables(t))

	tests := []struct {
		name     string
		reserves []uint64
		outcome  int
		amountIn uint64
		feeBps   uint64
	}{
		{"binary", []uint64{1_000_000_000, 1_000_000_000}, 0, 10_000_000, 30},
		{"skewed", []uint64{1_000_000_000, 2_000_000_000, 3_000_000_000}, 1, 100_000_000, 0},
		{"large trade", []uint64{1_000_000_000, 1_000_000_000}, 1, 1_000_000_000, 10},
		{"single outcome", []uint64{5_000}, 0, 1_000, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := PMAMMOpts{Reserves: tt.reserves, FeeBps: tt.feeBps}
			trade, err := p.BuyGivenIn(opts, tt.outcome, tt.amountIn)
			require.NoError(t, err)
			require.Equal(t, tt.amountIn, trade.AmountIn)
			require.LessOrEqual(t, trade.Iterations, MaxIterations)
			require.NoError(t, p.VerifyInvariant(tt.reserves, trade.State))

			// Closed form of the product invariant.
			net := float64(tt.amountIn - trade.Fee)
			newReserve := float64(tt.reserves[tt.outcome])
			for j, r := range tt.reserves {
				if j != tt.outcome {
					newReserve *= float64(r) / (float64(r) + net)
				}
			}
			want := float64(tt.reserves[tt.outcome]) + net - newReserve
			assert.InEpsilon(t, want, float64(trade.AmountOut), 1e-5)

			if len(tt.reserves) > 1 {
				before, err := p.Prices(tt.reserves)
				require.NoError(t, err)
				require.True(t, trade.Prices[tt.outcome].GreaterThan(before[tt.outcome]))
			}
		})
	}
}

func TestPMAMM_BuyGivenOut(t *testing.T) {
	t.Parallel()
	p := NewPMAMM(newTables(t))

	r := uint64(1_000_000_000)
	for _, shares := range []uint64{1_000_000, 100_000_000, 1_000_000_000} {
		opts := PMAMMOpts{Reserves: []uint64{r, r}, FeeBps: 25}
		trade, err := p.BuyGivenOut(opts, 0, shares)
		require.NoError(t, err)
		require.Equal(t, shares, trade.AmountOut)
		require.LessOrEqual(t, trade.Iterations, MaxIterations)
		require.NoError(t, p.VerifyInvariant(opts.Reserves, trade.State))

		// (r + a)(r + a - s) = r^2
		fr, fs := float64(r), float64(shares)
		want := (fs - 2*fr + math.Sqrt((2*fr-fs)*(2*fr-fs)+4*fr*fs)) / 2
		net := float64(trade.AmountIn - trade.Fee)
		assert.InEpsilon(t, want, net, 1e-5, "shares %d", shares)
	}
}

func TestPMAMM_Sell(t *testing.T) {
	t.Parallel()
	p := NewPMAMM(newTables(t))

	reserves := []uint64{1_000_000_000, 2_000_000_000, 3_000_000_000}
	buy, err := p.BuyGivenIn(PMAMMOpts{Reserves: reserves}, 2, 50_000_000)
	require.NoError(t, err)

	sell, err := p.Sell(PMAMMOpts{Reserves: buy.State}, 2, buy.AmountOut)
	require.NoError(t, err)
	require.LessOrEqual(t, sell.Iterations, MaxIterations)
	require.LessOrEqual(t, sell.AmountOut, buy.AmountIn)
	assert.InEpsilon(t, float64(buy.AmountIn), float64(sell.AmountOut), 1e-5)
	require.NoError(t, p.VerifyInvariant(buy.State, sell.State))

	for i := range reserves {
		assert.InEpsilon(t, float64(reserves[i]), float64(sell.State[i]), 1e-5)
	}

	_, err = p.Sell(PMAMMOpts{Reserves: reserves, Limits: Limits{MinPayout: 1_000_000}}, 0, 1_000_000)
	require.ErrorIs(t, err, ErrSlippageExceeded)
}

func TestPMAMM_TradesLargerThanReserves(t *testing.T) {
	t.Parallel()
	p := NewPMAMM(newTables(t))

	pool := func(n int, r uint64) []uint64 {
		reserves := make([]uint64, n)
		for i := range reserves {
			reserves[i] = r
		}
		return reserves
	}

	tests := []struct {
		name     string
		reserves []uint64
		amount   uint64
	}{
		{"1x reserve", pool(64, 1_000_000_000), 1_000_000_000},
		{"2x reserve", pool(64, 1_000_000_000), 2_000_000_000},
		{"10x reserve", pool(64, 1_000_000_000), 10_000_000_000},
		{"shallow pool", pool(64, 1_000_000), 1_000_000},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := PMAMMOpts{Reserves: tt.reserves}

			buy, err := p.BuyGivenIn(opts, 0, tt.amount)
			require.NoError(t, err)
			require.LessOrEqual(t, buy.Iterations, MaxIterations)
			require.GreaterOrEqual(t, buy.State[0], uint64(1))
			require.Greater(t, buy.AmountOut, tt.amount)
			require.NoError(t, p.VerifyInvariant(tt.reserves, buy.State))

			exact, err := p.BuyGivenOut(opts, 0, tt.amount)
			require.NoError(t, err)
			require.Equal(t, tt.amount, exact.AmountOut)
			require.LessOrEqual(t, exact.Iterations, MaxIterations)
			require.GreaterOrEqual(t, exact.State[0], uint64(1))
			require.NoError(t, p.VerifyInvariant(tt.reserves, exact.State))

			sell, err := p.Sell(PMAMMOpts{Reserves: buy.State}, 0, buy.AmountOut)
			require.NoError(t, err)
			require.LessOrEqual(t, sell.Iterations, MaxIterations)
			require.LessOrEqual(t, sell.AmountOut, buy.AmountIn)
			require.NoError(t, p.VerifyInvariant(buy.State, sell.State))
		})
	}
}

func TestPMAMM_VerifyInvariant(t *testing.T) {
	t.Parallel()
	p := NewPMAMM(newTables(t))
	before := []uint64{1_000_000_000, 1_000_000_000}

	tests := []struct {
		name  string
		after []uint64
		err   error
	}{
		{"unchanged", before, nil},
		{"grown", []uint64{1_000_000_100, 1_000_000_000}, nil},
		{"within tolerance", []uint64{1_000_000_000, 999_999_000}, nil},
		{"drained", []uint64{1_000_000_000, 900_000_000}, ErrInvalidMarketState},
		{"emptied", []uint64{1_000_000_000, 0}, ErrInvalidMarketState},
		{"outcome count", []uint64{1_000_000_000}, ErrInvalidMarketState},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := p.VerifyInvariant(before, tt.after)
			if tt.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestPMAMM_SolveReservesForPrices(t *testing.T) {
	t.Parallel()
	p := NewPMAMM(newTables(t))

	samples := [][]uint64{
		{6000, 4000},
		{5000, 3000, 2000},
		{7000, 2000, 1000},
		{4000, 3000, 2000, 1000},
		{8000, 1000, 500, 500},
	}
	total := 0
	for _, target := range samples {
		reserves, iterations, err := p.SolveReservesForPrices(target, 1_000_000_000)
		require.NoError(t, err)
		require.LessOrEqual(t, iterations, MaxIterations)
		total += iterations

		prices, err := p.Prices(reserves)
		require.NoError(t, err)
		for i, price := range prices {
			assert.InDelta(t, float64(target[i])/10_000, price.Float64(), 1e-6)
		}

		// The geometric mean of the reserves is the requested liquidity.
		var lnSum float64
		for _, r := range reserves {
			lnSum += math.Log(float64(r))
		}
		assert.InEpsilon(t, 1e9, math.Exp(lnSum/float64(len(reserves))), 1e-5)
	}
	avg := float64(total) / float64(len(samples))
	require.GreaterOrEqual(t, avg, 3.0)
	require.LessOrEqual(t, avg, 5.0)

	_, _, err := p.SolveReservesForPrices([]uint64{5000, 4999}, 1_000)
	require.ErrorIs(t, err, ErrInvalidPrices)
	_, _, err = p.SolveReservesForPrices([]uint64{10_000, 0}, 1_000)
	require.ErrorIs(t, err, ErrInvalidPrices)
	_, _, err = p.SolveReservesForPrices([]uint64{5000, 5000}, 0)
	require.ErrorIs(t, err, ErrInvalidLiquidity)
}

func TestPMAMM_Liquidity(t *testing.T) {
	t.Parallel()
	p := NewPMAMM(newTables(t))
	reserves := []uint64{1000, 3000}

	added, err := p.AddLiquidity(reserves, 2000, 401)
	require.NoError(t, err)
	require.Equal(t, []uint64{100, 300}, added.Amounts)
	require.Equal(t, []uint64{1100, 3300}, added.Reserves)
	require.Equal(t, uint64(200), added.Shares)
	require.Equal(t, uint64(1), added.Refund)

	before, err := p.Prices(reserves)
	require.NoError(t, err)
	after, err := p.Prices(added.Reserves)
	require.NoError(t, err)
	for i := range before {
		assert.InDelta(t, before[i].Float64(), after[i].Float64(), 1e-12)
	}

	first, err := p.AddLiquidity(reserves, 0, 400)
	require.NoError(t, err)
	require.Equal(t, uint64(400), first.Shares)

	removed, err := p.RemoveLiquidity(added.Reserves, 2200, 1100)
	require.NoError(t, err)
	require.Equal(t, []uint64{550, 1650}, removed.Amounts)
	require.Equal(t, []uint64{550, 1650}, removed.Reserves)

	_, err = p.RemoveLiquidity(reserves, 100, 101)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
	_, err = p.AddLiquidity(reserves, 100, 0)
	require.ErrorIs(t, err, ErrInvalidTradeAmount)
}

func TestPMAMM_Errors(t *testing.T) {
	t.Parallel()
	p := NewPMAMM(newTables(t))
	opts := PMAMMOpts{Reserves: []uint64{1_000_000, 1_000_000}}

	_, err := p.BuyGivenIn(opts, 0, 0)
	require.ErrorIs(t, err, ErrInvalidTradeAmount)

	_, err = p.BuyGivenIn(opts, 3, 100)
	require.ErrorIs(t, err, ErrInvalidOutcome)

	_, err = p.Sell(opts, 0, 0)
	require.ErrorIs(t, err, ErrInvalidTradeAmount)

	_, err = p.BuyGivenIn(PMAMMOpts{Reserves: []uint64{0, 1}}, 0, 100)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	limited := opts
	limited.MaxSlippageBps = 10
	_, err = p.BuyGivenIn(limited, 0, 500_000)
	require.ErrorIs(t, err, ErrSlippageExceeded)

	limited.MaxSlippageBps = 10_001
	_, err = p.BuyGivenIn(limited, 0, 500_000)
	require.ErrorIs(t, err, fixedpoint.ErrInvalidBps)
}
