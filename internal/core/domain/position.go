package domain

import (
	"strings"
	"time"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/leverage"
	"github.com/google/uuid"
)

// PositionStatus ...
type PositionStatus int

const (
	PositionStatusActive PositionStatus = iota
	PositionStatusClosed
	PositionStatusLiquidated
)

func (s PositionStatus) String() string {
	switch s {
	case PositionStatusActive:
		return "ACTIVE"
	case PositionStatusClosed:
		return "CLOSED"
	case PositionStatusLiquidated:
		return "LIQUIDATED"
	default:
		return "UNKNOWN"
	}
}

// Position is a leveraged exposure on a single market outcome, held within a
// verse.
type Position struct {
	ID       string
	Owner    string
	MarketID string
	VerseID  string
	Outcome  int
	Side     leverage.Side
	// Size in shares.
	Size uint64
	// Effective leverage the position was opened with.
	Leverage         fixedpoint.Fixed
	EntryPrice       fixedpoint.Fixed
	LiquidationPrice fixedpoint.Fixed
	// Margin locked by the position, in collateral units.
	Margin uint64
	Status PositionStatus
	// Amount paid back on close.
	Payout   uint64
	OpenedAt int64
	ClosedAt int64
}

// PositionSetup holds the parameters of a new position.
type PositionSetup struct {
	Owner      string
	MarketID   string
	VerseID    string
	Outcome    int
	Side       leverage.Side
	Size       uint64
	Leverage   fixedpoint.Fixed
	EntryPrice fixedpoint.Fixed
	Margin     uint64
}

// NewPosition returns a new active position, with the liquidation price
// derived from the entry price and leverage.
func NewPosition(setup PositionSetup, now time.Time) (*Position, error) {
	if strings.TrimSpace(setup.Owner) == "" {
		return nil, ErrPositionInvalidOwner
	}
	if setup.VerseID == "" {
		return nil, ErrVerseNotFound
	}
	if setup.Size == 0 {
		return nil, ErrPositionInvalidSize
	}
	if setup.Margin == 0 {
		return nil, ErrPositionInvalidMargin
	}
	if !setup.Side.Valid() {
		return nil, leverage.ErrInvalidSide
	}
	liquidationPrice, err := leverage.LiquidationPrice(
		setup.EntryPrice, setup.Leverage, setup.Side,
	)
	if err != nil {
		return nil, err
	}

	return &Position{
		ID:               uuid.New().String(),
		Owner:            setup.Owner,
		MarketID:         setup.MarketID,
		VerseID:          setup.VerseID,
		Outcome:          setup.Outcome,
		Side:             setup.Side,
		Size:             setup.Size,
		Leverage:         setup.Leverage,
		EntryPrice:       setup.EntryPrice,
		LiquidationPrice: liquidationPrice,
		Margin:           setup.Margin,
		Status:           PositionStatusActive,
		OpenedAt:         now.Unix(),
	}, nil
}

// IsActive ...
func (p *Position) IsActive() bool {
	return p.Status == PositionStatusActive
}

// Notional returns size times entry price, rounded down.
func (p *Position) Notional() (uint64, error) {
	return leverage.ValueAt(p.Size, p.EntryPrice)
}

// Snapshot returns the view of the position used by risk computations.
func (p *Position) Snapshot() leverage.Snapshot {
	return leverage.Snapshot{
		PositionID: p.ID,
		VerseID:    p.VerseID,
		Side:       p.Side,
		Size:       p.Size,
		EntryPrice: p.EntryPrice,
		Leverage:   p.Leverage,
		Margin:     p.Margin,
	}
}

// Close marks the position as closed with the given payout.
func (p *Position) Close(payout uint64, now time.Time) error {
	if !p.IsActive() {
		return ErrPositionNotActive
	}
	p.Status = PositionStatusClosed
	p.Payout = payout
	p.ClosedAt = now.Unix()
	return nil
}

// Liquidate marks the position as liquidated. The margin is forfeited.
func (p *Position) Liquidate(now time.Time) error {
	if !p.IsActive() {
		return ErrPositionNotActive
	}
	p.Status = PositionStatusLiquidated
	p.ClosedAt = now.Unix()
	return nil
}

// MoveTo reassigns an active position to another verse.
func (p *Position) MoveTo(verseID string) error {
	if !p.IsActive() {
		return ErrPositionNotActive
	}
	if verseID == "" || verseID == p.VerseID {
		return ErrVerseInvalidSuccessor
	}
	p.VerseID = verseID
	return nil
}

// Snapshots returns the risk view of the given positions.
func Snapshots(positions []Position) []leverage.Snapshot {
	out := make([]leverage.Snapshot, 0, len(positions))
	for i := range positions {
		out = append(out, positions[i].Snapshot())
	}
	return out
}
