package formula

import (
	"errors"
	"fmt"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
)

var (
	// ErrInvalidRange is returned for an inverted or out of bounds L2-AMM range.
	ErrInvalidRange = fmt.Errorf("%w: range must satisfy lower < upper within pool bounds", fixedpoint.ErrInvalidInput)
	// ErrInvalidTradeAmount is returned for zero amounts or trades too small to
	// move the pool.
	ErrInvalidTradeAmount = fmt.Errorf("%w: trade amount is too low", fixedpoint.ErrInvalidInput)
	ErrInvalidOutcome = fmt.Errorf("%w: outcome index out of range", fixedpoint.ErrInvalidInput)
	// ErrInvalidLiquidity is returned for a zero liquidity parameter.
	ErrInvalidLiquidity = fmt.Errorf("%w: liquidity parameter must be positive", fixedpoint.ErrInvalidInput)
	// ErrInvalidPrices is returned when target prices do not add up to 10000 bps.
	ErrInvalidPrices = fmt.Errorf("%w: prices must be positive and add up to 10000 bps", fixedpoint.ErrInvalidInput)
	// ErrSlippageExceeded is returned when a trade breaks a caller limit.
	ErrSlippageExceeded = errors.New("slippage exceeds the allowed maximum")
	// ErrInsufficientBalance is returned when selling more shares than the
	// pool has outstanding.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientLiquidity is returned when the pool reserves cannot cover
	// the trade.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrInvalidMarketState is returned when a trade would break the pool
	// invariant beyond tolerance.
	ErrInvalidMarketState = errors.New("invalid market state: invariant violated")
	// ErrNonConvergent is returned when the root finder exceeds its iteration
	// cap.
	ErrNonConvergent = errors.New("solver did not converge")
)
