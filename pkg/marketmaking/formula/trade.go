package formula

import (
	"fmt"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
)

// Trade is the outcome of pricing a trade against any of the engines. For
// buys AmountIn is collateral and AmountOut is shares, for sells the other
// way round. Fee is always denominated in collateral.
type Trade struct {
	AmountIn    uint64
	AmountOut   uint64
	Fee         uint64
	SlippageBps uint64
	// Iterations is the number of Newton updates the trade needed, 0 for
	// closed form pricing.
	Iterations int
	// State is the pool after the trade: outstanding quantities for LMSR,
	// reserves for PM-AMM, bin weights for L2-AMM.
	State []uint64
	// Prices are the post-trade outcome prices. Unset for L2-AMM.
	Prices []fixedpoint.Fixed
	// ExpectedValue and Norm describe the post-trade L2-AMM distribution.
	ExpectedValue fixedpoint.Fixed
	Norm          fixedpoint.Fixed
}

// Limits are the caller protections applied to a trade. Zero values disable
// the corresponding check.
type Limits struct {
	// MaxCost bounds the collateral paid by a buy, fee included.
	MaxCost uint64
	// MinPayout bounds from below the collateral received by a sell, net of
	// fees.
	MinPayout uint64
	// MaxSlippageBps bounds the deviation of the execution price from the
	// pre-trade spot price.
	MaxSlippageBps uint64
}

func (l Limits) validate() error {
	if l.MaxSlippageBps > 0 {
		return fixedpoint.ValidateBps(l.MaxSlippageBps)
	}
	return nil
}

func (l Limits) checkCost(cost uint64) error {
	if l.MaxCost > 0 && cost > l.MaxCost {
		return fmt.Errorf("%w: cost %d above max %d", ErrSlippageExceeded, cost, l.MaxCost)
	}
	return nil
}

func (l Limits) checkPayout(payout uint64) error {
	if l.MinPayout > 0 && payout < l.MinPayout {
		return fmt.Errorf("%w: payout %d below min %d", ErrSlippageExceeded, payout, l.MinPayout)
	}
	return nil
}

func (l Limits) checkSlippage(slippageBps uint64) error {
	if l.MaxSlippageBps > 0 && slippageBps > l.MaxSlippageBps {
		return fmt.Errorf(
			"%w: slippage %d bps above max %d bps", ErrSlippageExceeded, slippageBps, l.MaxSlippageBps,
		)
	}
	return nil
}

// slippageBps measures how much worse than spot the execution price
// amount/shares is. A buy is worse when it pays more per share, a sell when
// it receives less.
func slippageBps(amount, shares uint64, spot fixedpoint.Fixed, buy bool) (uint64, error) {
	if shares == 0 || spot.Sign() <= 0 {
		return 0, nil
	}
	exec, err := fixedpoint.FromRatio(amount, shares)
	if err != nil {
		return 0, err
	}
	diff, err := exec.Sub(spot)
	if err != nil {
		return 0, err
	}
	if !buy {
		if diff, err = diff.Neg(); err != nil {
			return 0, err
		}
	}
	if diff.Sign() <= 0 {
		return 0, nil
	}
	ratio, err := diff.Div(spot)
	if err != nil {
		return 0, err
	}
	return ratio.ToBps()
}

func checkOutcome(outcome, count int) error {
	if outcome < 0 || outcome >= count {
		return fmt.Errorf("%w: %d of %d", ErrInvalidOutcome, outcome, count)
	}
	return nil
}

func toFixed(values []uint64) ([]fixedpoint.Fixed, error) {
	out := make([]fixedpoint.Fixed, 0, len(values))
	for _, v := range values {
		f, err := fixedpoint.FromUint64(v)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func cloneUint64(values []uint64) []uint64 {
	return append(make([]uint64, 0, len(values)), values...)
}
