package domain

import (
	"fmt"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/marketmaking"
	"github.com/gary322/flashbets-sub011/pkg/marketmaking/formula"
)

// TradeRequest describes a buy or a sell against a market pool. Discrete
// markets use Outcome, continuous ones the [Lower, Upper) range.
type TradeRequest struct {
	Outcome int
	Lower   uint64
	Upper   uint64
	// Shares to buy or sell.
	Shares uint64
	// AmountIn, when set on a buy, is the collateral budget to spend instead
	// of an exact share amount.
	AmountIn uint64
	FeeBps   uint64
	formula.Limits
}

// Buy prices the request against the market pool and, on success only,
// commits the new pool state and collateral.
func (m *Market) Buy(
	engines *marketmaking.Engines, req TradeRequest,
) (*formula.Trade, error) {
	if !m.IsActive() {
		return nil, ErrMarketNotActive
	}
	if err := m.validatePool(); err != nil {
		return nil, err
	}

	var (
		trade *formula.Trade
		err   error
	)
	switch m.AMMType {
	case marketmaking.AMMTypeLMSR:
		opts := formula.LMSROpts{
			Quantities: m.LMSR.Quantities,
			Liquidity:  m.LMSR.Liquidity,
			FeeBps:     req.FeeBps,
			Limits:     req.Limits,
		}
		if req.AmountIn > 0 {
			trade, err = engines.LMSR.BuyGivenIn(opts, req.Outcome, req.AmountIn)
		} else {
			trade, err = engines.LMSR.Buy(opts, req.Outcome, req.Shares)
		}
	case marketmaking.AMMTypePMAMM:
		opts := formula.PMAMMOpts{
			Reserves: m.PMAMM.Reserves,
			FeeBps:   req.FeeBps,
			Limits:   req.Limits,
		}
		if req.AmountIn > 0 {
			trade, err = engines.PMAMM.BuyGivenIn(opts, req.Outcome, req.AmountIn)
		} else {
			trade, err = engines.PMAMM.BuyGivenOut(opts, req.Outcome, req.Shares)
		}
	case marketmaking.AMMTypeL2AMM:
		if req.AmountIn > 0 {
			return nil, fmt.Errorf(
				"%w: range buys require an exact share amount", formula.ErrInvalidTradeAmount,
			)
		}
		trade, err = engines.L2AMM.Buy(m.l2Opts(req), req.Lower, req.Upper, req.Shares)
	}
	if err != nil {
		return nil, err
	}

	net, err := fixedpoint.SubUint64(trade.AmountIn, trade.Fee)
	if err != nil {
		return nil, err
	}
	collateral, err := fixedpoint.AddUint64(m.Collateral, net)
	if err != nil {
		return nil, err
	}

	m.applyState(trade.State)
	m.Collateral = collateral
	return trade, nil
}

// Sell prices the sale of req.Shares against the market pool and, on
// success only, commits the new pool state and collateral.
func (m *Market) Sell(
	engines *marketmaking.Engines, req TradeRequest,
) (*formula.Trade, error) {
	if !m.IsActive() {
		return nil, ErrMarketNotActive
	}
	if err := m.validatePool(); err != nil {
		return nil, err
	}

	var (
		trade *formula.Trade
		err   error
	)
	switch m.AMMType {
	case marketmaking.AMMTypeLMSR:
		trade, err = engines.LMSR.Sell(formula.LMSROpts{
			Quantities: m.LMSR.Quantities,
			Liquidity:  m.LMSR.Liquidity,
			FeeBps:     req.FeeBps,
			Limits:     req.Limits,
		}, req.Outcome, req.Shares)
	case marketmaking.AMMTypePMAMM:
		trade, err = engines.PMAMM.Sell(formula.PMAMMOpts{
			Reserves: m.PMAMM.Reserves,
			FeeBps:   req.FeeBps,
			Limits:   req.Limits,
		}, req.Outcome, req.Shares)
	case marketmaking.AMMTypeL2AMM:
		trade, err = engines.L2AMM.Sell(m.l2Opts(req), req.Lower, req.Upper, req.Shares)
	}
	if err != nil {
		return nil, err
	}

	gross, err := fixedpoint.AddUint64(trade.AmountOut, trade.Fee)
	if err != nil {
		return nil, err
	}
	collateral, err := fixedpoint.SubUint64(m.Collateral, gross)
	if err != nil {
		return nil, fmt.Errorf("%w: market collateral cannot cover payout", formula.ErrInsufficientLiquidity)
	}

	m.applyState(trade.State)
	m.Collateral = collateral
	return trade, nil
}

// AddLiquidity deposits amount into a PM-AMM pool proportionally to its
// reserves.
func (m *Market) AddLiquidity(
	engines *marketmaking.Engines, amount uint64,
) (*formula.LiquidityChange, error) {
	if !m.IsActive() {
		return nil, ErrMarketNotActive
	}
	if m.AMMType != marketmaking.AMMTypePMAMM {
		return nil, ErrLiquidityNotSupported
	}
	if err := m.validatePool(); err != nil {
		return nil, err
	}

	change, err := engines.PMAMM.AddLiquidity(m.PMAMM.Reserves, m.PMAMM.LPSupply, amount)
	if err != nil {
		return nil, err
	}
	supply, err := fixedpoint.AddUint64(m.PMAMM.LPSupply, change.Shares)
	if err != nil {
		return nil, err
	}
	collateral, err := fixedpoint.AddUint64(m.Collateral, amount-change.Refund)
	if err != nil {
		return nil, err
	}

	m.PMAMM.Reserves = change.Reserves
	m.PMAMM.LPSupply = supply
	m.Collateral = collateral
	return change, nil
}

// RemoveLiquidity burns LP shares and withdraws the matching part of every
// PM-AMM reserve.
func (m *Market) RemoveLiquidity(
	engines *marketmaking.Engines, shares uint64,
) (*formula.LiquidityChange, error) {
	if m.AMMType != marketmaking.AMMTypePMAMM {
		return nil, ErrLiquidityNotSupported
	}
	if err := m.validatePool(); err != nil {
		return nil, err
	}

	change, err := engines.PMAMM.RemoveLiquidity(m.PMAMM.Reserves, m.PMAMM.LPSupply, shares)
	if err != nil {
		return nil, err
	}
	withdrawn, err := fixedpoint.SumUint64(change.Amounts)
	if err != nil {
		return nil, err
	}
	collateral, err := fixedpoint.SubUint64(m.Collateral, withdrawn)
	if err != nil {
		return nil, fmt.Errorf("%w: market collateral cannot cover withdrawal", formula.ErrInsufficientLiquidity)
	}

	m.PMAMM.Reserves = change.Reserves
	m.PMAMM.LPSupply -= change.Shares
	m.Collateral = collateral
	return change, nil
}

// SpotPrices returns the current price of every outcome. Prices of a
// continuous market are the weight share of each bin, uniform while no
// shares have been bought.
func (m *Market) SpotPrices(
	engines *marketmaking.Engines,
) ([]fixedpoint.Fixed, error) {
	if err := m.validatePool(); err != nil {
		return nil, err
	}

	switch m.AMMType {
	case marketmaking.AMMTypeLMSR:
		return engines.LMSR.Prices(formula.LMSROpts{
			Quantities: m.LMSR.Quantities,
			Liquidity:  m.LMSR.Liquidity,
		})
	case marketmaking.AMMTypePMAMM:
		return engines.PMAMM.Prices(m.PMAMM.Reserves)
	}

	weights := m.L2.Weights
	total, err := fixedpoint.SumUint64(weights)
	if err != nil {
		return nil, err
	}
	prices := make([]fixedpoint.Fixed, len(weights))
	for i, w := range weights {
		num, den := w, total
		if total == 0 {
			num, den = 1, uint64(len(weights))
		}
		p, err := fixedpoint.FromRatio(num, den)
		if err != nil {
			return nil, err
		}
		prices[i] = p
	}
	return prices, nil
}

// OutcomePrice returns the spot price of a single outcome.
func (m *Market) OutcomePrice(
	engines *marketmaking.Engines, outcome int,
) (fixedpoint.Fixed, error) {
	prices, err := m.SpotPrices(engines)
	if err != nil {
		return fixedpoint.Zero, err
	}
	if outcome < 0 || outcome >= len(prices) {
		return fixedpoint.Zero, formula.ErrInvalidOutcome
	}
	return prices[outcome], nil
}

// ExpectedValue returns the mean of a continuous market distribution.
func (m *Market) ExpectedValue(
	engines *marketmaking.Engines,
) (fixedpoint.Fixed, error) {
	if m.AMMType != marketmaking.AMMTypeL2AMM {
		return fixedpoint.Zero, ErrMarketInvalidAMM
	}
	if err := m.validatePool(); err != nil {
		return fixedpoint.Zero, err
	}
	return engines.L2AMM.ExpectedValue(m.l2Opts(TradeRequest{}))
}

func (m *Market) l2Opts(req TradeRequest) formula.L2AMMOpts {
	return formula.L2AMMOpts{
		Min:     m.L2.Min,
		Max:     m.L2.Max,
		Weights: m.L2.Weights,
		K:       m.L2.K,
		FeeBps:  req.FeeBps,
		Limits:  req.Limits,
	}
}

func (m *Market) applyState(state []uint64) {
	switch m.AMMType {
	case marketmaking.AMMTypeLMSR:
		m.LMSR.Quantities = state
	case marketmaking.AMMTypePMAMM:
		m.PMAMM.Reserves = state
	case marketmaking.AMMTypeL2AMM:
		m.L2.Weights = state
	}
}
