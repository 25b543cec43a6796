// Package verse checks that the collateral of an isolation domain, a verse,
// covers its debt and that no value leaks when a verse is dissolved.
package verse

import (
	"errors"
	"fmt"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/leverage"
)

var (
	// ErrInsufficientCollateral is returned when a verse's collateral is below
	// its debt.
	ErrInsufficientCollateral = errors.New("verse collateral does not cover its debt")
	// ErrCrossVerseMismatch is returned when a position from another verse is
	// checked against a verse.
	ErrCrossVerseMismatch = errors.New("position belongs to another verse")
	// ErrValueLeakage is returned when successors would receive more than the
	// dissolving verse holds.
	ErrValueLeakage = errors.New("successor claims exceed dissolving verse value")
	// ErrInvalidVerseID ...
	ErrInvalidVerseID = fmt.Errorf("%w: missing verse id", fixedpoint.ErrInvalidInput)
	// ErrInvalidClaim ...
	ErrInvalidClaim = fmt.Errorf("%w: invalid successor claim", fixedpoint.ErrInvalidInput)
)

// IsolationResult reports the collateral state of a verse. CollateralRatio
// is collateral over debt in percent and is only meaningful when Debt is not
// zero.
type IsolationResult struct {
	VerseID            string
	Positions          int
	Collateral         uint64
	Debt               uint64
	CollateralRatio    uint64
	Solvent            bool
	OtherVerseExposure map[string]uint64
}

// ValidateCollateral sums the collateral and debt of positions, which must
// all belong to verseID. Collateral is the sum of margins, debt the sum of
// short sizes since a short owes at most one unit of collateral per share.
// On ErrInsufficientCollateral the result is returned as well.
func ValidateCollateral(positions []leverage.Snapshot, verseID string) (*IsolationResult, error) {
	if verseID == "" {
		return nil, ErrInvalidVerseID
	}
	for _, p := range positions {
		if p.VerseID != verseID {
			return nil, fmt.Errorf(
				"%w: position %s is in verse %q, not %q",
				ErrCrossVerseMismatch, p.PositionID, p.VerseID, verseID,
			)
		}
	}
	return isolate(positions, verseID, nil)
}

// ValidatePortfolio is like ValidateCollateral but accepts positions of any
// verse. Only those of verseID count, the notional held in other verses is
// reported in OtherVerseExposure.
func ValidatePortfolio(positions []leverage.Snapshot, verseID string) (*IsolationResult, error) {
	if verseID == "" {
		return nil, ErrInvalidVerseID
	}

	inVerse := make([]leverage.Snapshot, 0, len(positions))
	exposure := make(map[string]uint64)
	for _, p := range positions {
		if p.VerseID == verseID {
			inVerse = append(inVerse, p)
			continue
		}
		notional, err := p.Notional()
		if err != nil {
			return nil, err
		}
		if exposure[p.VerseID], err = fixedpoint.AddUint64(exposure[p.VerseID], notional); err != nil {
			return nil, err
		}
	}
	return isolate(inVerse, verseID, exposure)
}

func isolate(
	positions []leverage.Snapshot, verseID string, exposure map[string]uint64,
) (*IsolationResult, error) {
	var collateral, debt uint64
	var err error
	for _, p := range positions {
		if collateral, err = fixedpoint.AddUint64(collateral, p.Margin); err != nil {
			return nil, err
		}
		if p.Side != leverage.Short {
			continue
		}
		if debt, err = fixedpoint.AddUint64(debt, p.Size); err != nil {
			return nil, err
		}
	}

	if exposure == nil {
		exposure = make(map[string]uint64)
	}
	result := &IsolationResult{
		VerseID:            verseID,
		Positions:          len(positions),
		Collateral:         collateral,
		Debt:               debt,
		Solvent:            collateral >= debt,
		OtherVerseExposure: exposure,
	}
	if debt > 0 {
		if result.CollateralRatio, err = fixedpoint.MulDiv(collateral, 100, debt); err != nil {
			return nil, err
		}
	}
	if !result.Solvent {
		return result, fmt.Errorf(
			"%w: verse %s holds %d against %d", ErrInsufficientCollateral, verseID, collateral, debt,
		)
	}
	return result, nil
}
