// Package leverage bounds the leverage a position may take and derives the
// quantities that follow from it: chained effective leverage, liquidation
// price and the collateral a target leverage requires.
package leverage

import (
	"errors"
	"fmt"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
)

// MaxEffectiveLeverage is the hard cap applied to chained leverage.
const MaxEffectiveLeverage = 500

var (
	// ErrInvalidLeverage is returned for leverage values below 1x.
	ErrInvalidLeverage = fmt.Errorf("%w: leverage must be at least 1", fixedpoint.ErrInvalidInput)
	// ErrInvalidMultiplier ...
	ErrInvalidMultiplier = fmt.Errorf("%w: leverage multiplier must be positive", fixedpoint.ErrInvalidInput)
	// ErrInvalidChainReturn is returned when a chain step would wipe out the
	// position, ie. a return of -100% or worse.
	ErrInvalidChainReturn = fmt.Errorf("%w: chain return must be above -1", fixedpoint.ErrInvalidInput)
	// ErrInvalidOutcomeCount ...
	ErrInvalidOutcomeCount = fmt.Errorf("%w: outcome count must be positive", fixedpoint.ErrInvalidInput)
	// ErrInvalidCoverage ...
	ErrInvalidCoverage = fmt.Errorf("%w: coverage must not be negative", fixedpoint.ErrInvalidInput)
	// ErrInvalidPrice ...
	ErrInvalidPrice = fmt.Errorf("%w: price must be positive", fixedpoint.ErrInvalidInput)
	// ErrInvalidSide ...
	ErrInvalidSide = fmt.Errorf("%w: unknown position side", fixedpoint.ErrInvalidInput)
	// ErrLeverageTooHigh is returned when a requested leverage is above the
	// maximum allowed for the market.
	ErrLeverageTooHigh = errors.New("leverage exceeds the allowed maximum")
)

var (
	hundred      = fixedpoint.FromInt64(100)
	depthStep    = fixedpoint.MustFromDecimalString("0.1")
	effectiveCap = fixedpoint.FromInt64(MaxEffectiveLeverage)
)

// TierCap returns the leverage ceiling for a market with n outcomes. Wider
// markets are thinner per outcome and get lower caps.
func TierCap(n uint32) fixedpoint.Fixed {
	switch {
	case n <= 1:
		return fixedpoint.FromInt64(100)
	case n == 2:
		return fixedpoint.FromInt64(70)
	case n <= 4:
		return fixedpoint.FromInt64(25)
	case n <= 8:
		return fixedpoint.FromInt64(15)
	case n <= 16:
		return fixedpoint.FromInt64(12)
	case n <= 64:
		return fixedpoint.FromInt64(10)
	default:
		return fixedpoint.FromInt64(5)
	}
}

// Engine computes leverage bounds. It only needs the shared lookup tables for
// the square root in the coverage bound.
type Engine struct {
	tables *fixedpoint.Tables
}

// NewEngine ...
func NewEngine(tables *fixedpoint.Tables) *Engine {
	return &Engine{tables}
}

// MaxLeverage returns
//
//	min(100 * (1 + depth/10), coverage * 100 / sqrt(n), TierCap(n))
//
// where depth is the position chain depth and coverage the ratio between the
// market's vault and its open interest. Outcome counts above the market
// bound still get the lowest tier.
func (e *Engine) MaxLeverage(
	depth uint32, coverage fixedpoint.Fixed, n uint32,
) (fixedpoint.Fixed, error) {
	if n == 0 {
		return fixedpoint.Zero, ErrInvalidOutcomeCount
	}
	if coverage.IsNegative() {
		return fixedpoint.Zero, ErrInvalidCoverage
	}

	depthBonus, err := fixedpoint.FromInt64(int64(depth)).Mul(depthStep)
	if err != nil {
		return fixedpoint.Zero, err
	}
	depthBonus, err = depthBonus.Add(fixedpoint.One)
	if err != nil {
		return fixedpoint.Zero, err
	}
	depthBound, err := hundred.Mul(depthBonus)
	if err != nil {
		return fixedpoint.Zero, err
	}

	sqrtN, err := e.tables.Sqrt(fixedpoint.FromInt64(int64(n)))
	if err != nil {
		return fixedpoint.Zero, err
	}
	coverageBound, err := coverage.MulDiv(hundred, sqrtN)
	if err != nil {
		return fixedpoint.Zero, err
	}

	return fixedpoint.Min(fixedpoint.Min(depthBound, coverageBound), TierCap(n)), nil
}

// Validate returns ErrLeverageTooHigh if leverage is above MaxLeverage for the
// given market conditions.
func (e *Engine) Validate(
	leverage fixedpoint.Fixed, depth uint32, coverage fixedpoint.Fixed, n uint32,
) error {
	if leverage.LessThan(fixedpoint.One) {
		return ErrInvalidLeverage
	}
	limit, err := e.MaxLeverage(depth, coverage, n)
	if err != nil {
		return err
	}
	if leverage.GreaterThan(limit) {
		return fmt.Errorf("%w: %s above %s", ErrLeverageTooHigh, leverage, limit)
	}
	return nil
}

// EffectiveLeverage compounds base through the returns of a position chain,
// base * (1 + r_1) * (1 + r_2) * ... The result is capped at
// MaxEffectiveLeverage and the steps after the one reaching the cap are not
// applied.
func EffectiveLeverage(base fixedpoint.Fixed, returns []fixedpoint.Fixed) (fixedpoint.Fixed, error) {
	if base.LessThan(fixedpoint.One) {
		return fixedpoint.Zero, ErrInvalidLeverage
	}

	effective := fixedpoint.Min(base, effectiveCap)
	for _, r := range returns {
		if effective.Equal(effectiveCap) {
			break
		}
		growth, err := fixedpoint.One.Add(r)
		if err != nil {
			return fixedpoint.Zero, err
		}
		if growth.Sign() <= 0 {
			return fixedpoint.Zero, ErrInvalidChainReturn
		}
		next, err := effective.Mul(growth)
		if err != nil {
			if errors.Is(err, fixedpoint.ErrMathOverflow) {
				effective = effectiveCap
				break
			}
			return fixedpoint.Zero, err
		}
		effective = fixedpoint.Min(next, effectiveCap)
	}
	return effective, nil
}

// LiquidationPrice returns the price at which a position opened at entry with
// the given leverage has lost its whole margin, entry * (1 - 1/L) for longs
// and entry * (1 + 1/L) for shorts.
func LiquidationPrice(entry, leverage fixedpoint.Fixed, side Side) (fixedpoint.Fixed, error) {
	if entry.Sign() <= 0 {
		return fixedpoint.Zero, ErrInvalidPrice
	}
	if leverage.LessThan(fixedpoint.One) {
		return fixedpoint.Zero, ErrInvalidLeverage
	}

	move, err := entry.Div(leverage)
	if err != nil {
		return fixedpoint.Zero, err
	}
	switch side {
	case Long:
		return entry.Sub(move)
	case Short:
		return entry.Add(move)
	default:
		return fixedpoint.Zero, ErrInvalidSide
	}
}
