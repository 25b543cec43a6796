package application

import (
	"time"

	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/liquidation"
	"github.com/gary322/flashbets-sub011/pkg/marketmaking/formula"
	"github.com/gary322/flashbets-sub011/pkg/mathutil"
	"github.com/gary322/flashbets-sub011/pkg/verse"
)

// CreateMarketRequest ...
type CreateMarketRequest struct {
	Title      string `validate:"required"`
	Outcomes   uint32 `validate:"min=1,max=64"`
	Continuous bool
	ExpiresAt  time.Time `validate:"required"`
	Liquidity  uint64    `validate:"gt=0"`
	// FeeBps zero makes the market fee elastic.
	FeeBps           uint64   `validate:"max=10000"`
	InitialPricesBps []uint64 `validate:"omitempty,dive,gt=0,lte=10000"`
	RangeMin         uint64
	RangeMax         uint64 `validate:"required_if=Continuous true"`
	Mean             fixedpoint.Fixed
	StdDev           fixedpoint.Fixed
	Mass             uint64
}

func (r CreateMarketRequest) setup() domain.MarketSetup {
	return domain.MarketSetup{
		Title:            r.Title,
		Outcomes:         r.Outcomes,
		Continuous:       r.Continuous,
		ExpiresAt:        r.ExpiresAt,
		Liquidity:        r.Liquidity,
		FeeBps:           r.FeeBps,
		InitialPricesBps: r.InitialPricesBps,
		RangeMin:         r.RangeMin,
		RangeMax:         r.RangeMax,
		Mean:             r.Mean,
		StdDev:           r.StdDev,
		Mass:             r.Mass,
	}
}

// TradeRequest is a buy or a sell. Discrete markets use Outcome, continuous
// ones the [Lower, Upper] range. A buy sets either Shares or AmountIn.
type TradeRequest struct {
	MarketID       string `validate:"required"`
	Outcome        int    `validate:"gte=0"`
	Lower          uint64
	Upper          uint64
	Shares         uint64 `validate:"required_without=AmountIn"`
	AmountIn       uint64
	MaxCost        uint64
	MinPayout      uint64
	MaxSlippageBps uint64 `validate:"max=10000"`
}

func (r TradeRequest) domainRequest(feeBps uint64) domain.TradeRequest {
	return domain.TradeRequest{
		Outcome:  r.Outcome,
		Lower:    r.Lower,
		Upper:    r.Upper,
		Shares:   r.Shares,
		AmountIn: r.AmountIn,
		FeeBps:   feeBps,
		Limits: formula.Limits{
			MaxCost:        r.MaxCost,
			MinPayout:      r.MinPayout,
			MaxSlippageBps: r.MaxSlippageBps,
		},
	}
}

// TradeResult is an executed trade along with the distribution of its fee.
type TradeResult struct {
	MarketID string
	Buy      bool
	FeeBps   uint64
	Fees     mathutil.FeeDistribution
	formula.Trade
}

// MarketInfo is a market along with its current prices.
type MarketInfo struct {
	domain.Market
	Prices []fixedpoint.Fixed
	// Fee charged right now, elastic or fixed.
	EffectiveFeeBps uint64
	// ExpectedValue is set for continuous markets only.
	ExpectedValue fixedpoint.Fixed
}

// LiquidityResult ...
type LiquidityResult struct {
	MarketID string
	formula.LiquidityChange
}

// OpenPositionRequest ...
type OpenPositionRequest struct {
	Owner    string `validate:"required"`
	MarketID string `validate:"required"`
	VerseID  string `validate:"required"`
	Outcome  int    `validate:"gte=0"`
	Side     string `validate:"required,oneof=long short LONG SHORT"`
	Size     uint64 `validate:"gt=0"`
	Leverage fixedpoint.Fixed
	// ChainDepth is the depth of the position chain the position belongs to.
	ChainDepth uint32
	// Margin optionally locks more than the collateral the leverage requires.
	Margin uint64
}

// PreviewLeverageRequest ...
type PreviewLeverageRequest struct {
	PositionID   string `validate:"required"`
	Multiplier   fixedpoint.Fixed
	ChainDepth   uint32
	ChainReturns []fixedpoint.Fixed
}

// PositionAssessment is the liquidation risk of a position at the current
// mark price.
type PositionAssessment struct {
	PositionID string
	MarkPrice  fixedpoint.Fixed
	liquidation.Assessment
	// Queued tells whether the position is tracked by the liquidation queue
	// after the assessment.
	Queued bool
}

// Successor is the verse taking over part of the positions of a dissolving
// verse.
type Successor struct {
	VerseID     string   `validate:"required"`
	PositionIDs []string `validate:"dive,required"`
}

// MergeVerseRequest ...
type MergeVerseRequest struct {
	VerseID    string      `validate:"required"`
	Successors []Successor `validate:"required,min=1,dive"`
}

// MergeResult reports the collateral state of every successor after a merge.
type MergeResult struct {
	VerseID    string
	Moved      int
	Successors []verse.IsolationResult
}
