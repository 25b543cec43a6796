package domain

import (
	"errors"
	"fmt"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
)

var (
	// ErrMarketNotFound ...
	ErrMarketNotFound = errors.New("market not found")
	// ErrMarketNotActive is returned when trading on a halted or resolved
	// market.
	ErrMarketNotActive = errors.New("market is not active")
	// ErrMarketResolved is returned for any status change of a resolved
	// market.
	ErrMarketResolved = errors.New("market is resolved")
	// ErrMarketNotHalted ...
	ErrMarketNotHalted = errors.New("market is not halted")
	// ErrMarketInvalidExpiry ...
	ErrMarketInvalidExpiry = fmt.Errorf("%w: market expiry must be in the future", fixedpoint.ErrInvalidInput)
	// ErrMarketInvalidTitle ...
	ErrMarketInvalidTitle = fmt.Errorf("%w: market title must not be empty", fixedpoint.ErrInvalidInput)
	// ErrMarketInvalidAMM is returned for a market whose pool does not match
	// its AMM type.
	ErrMarketInvalidAMM = errors.New("market pool does not match its amm type")
	// ErrLiquidityNotSupported is returned when adding or removing liquidity
	// on a market not priced by PM-AMM.
	ErrLiquidityNotSupported = errors.New("liquidity provision is only supported by PM-AMM markets")

	// ErrPositionNotFound ...
	ErrPositionNotFound = errors.New("position not found")
	// ErrPositionNotActive ...
	ErrPositionNotActive = errors.New("position is not active")
	// ErrPositionInvalidOwner ...
	ErrPositionInvalidOwner = fmt.Errorf("%w: position owner must not be empty", fixedpoint.ErrInvalidInput)
	// ErrPositionInvalidSize ...
	ErrPositionInvalidSize = fmt.Errorf("%w: position size must be positive", fixedpoint.ErrInvalidInput)
	// ErrPositionInvalidMargin ...
	ErrPositionInvalidMargin = fmt.Errorf("%w: position margin must be positive", fixedpoint.ErrInvalidInput)

	// ErrVerseNotFound ...
	ErrVerseNotFound = errors.New("verse not found")
	// ErrVerseNotActive ...
	ErrVerseNotActive = errors.New("verse is not active")
	// ErrVerseInvalidSuccessor ...
	ErrVerseInvalidSuccessor = fmt.Errorf("%w: invalid successor verse", fixedpoint.ErrInvalidInput)
)
