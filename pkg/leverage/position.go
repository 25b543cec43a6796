package leverage

import (
	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
)

// Side is the direction of a position.
type Side uint8

const (
	// Long positions gain when the outcome price rises.
	Long Side = iota
	// Short positions gain when the outcome price falls.
	Short
)

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

// Valid ...
func (s Side) Valid() bool {
	return s == Long || s == Short
}

// ParseSide ...
func ParseSide(s string) (Side, error) {
	switch s {
	case "long":
		return Long, nil
	case "short":
		return Short, nil
	default:
		return 0, ErrInvalidSide
	}
}

// Snapshot is the state of a position the risk components work on. Prices
// are outcome probabilities in [0, 1], size is a share count and margin is
// expressed in collateral units.
type Snapshot struct {
	PositionID string
	VerseID    string
	Side       Side
	Size       uint64
	EntryPrice fixedpoint.Fixed
	Leverage   fixedpoint.Fixed
	Margin     uint64
}

// Notional returns size * entry price, rounded down.
func (s Snapshot) Notional() (uint64, error) {
	return ValueAt(s.Size, s.EntryPrice)
}

// ValueAt returns size * price in collateral units, rounded down.
func ValueAt(size uint64, price fixedpoint.Fixed) (uint64, error) {
	if price.IsNegative() {
		return 0, ErrInvalidPrice
	}
	fsize, err := fixedpoint.FromUint64(size)
	if err != nil {
		return 0, err
	}
	value, err := fsize.Mul(price)
	if err != nil {
		return 0, err
	}
	return value.ToUint64Floor()
}
