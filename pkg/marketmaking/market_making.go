// Package marketmaking selects the automated market maker pricing a market
// and bundles the engines implemented in package formula.
package marketmaking

import (
	"fmt"
	"time"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
)

// AMMType is the discriminant of the pricing engine backing a market.
type AMMType int

const (
	AMMTypeUnspecified AMMType = iota
	AMMTypeLMSR
	AMMTypePMAMM
	AMMTypeL2AMM
)

const (
	// MaxOutcomes is the largest number of discrete outcomes a market can have.
	MaxOutcomes = 64
	// DefaultNearExpiryThreshold is the time to expiry under which discrete
	// markets are always priced with PM-AMM.
	DefaultNearExpiryThreshold = 24 * time.Hour
)

// ErrInvalidOutcomeCount ...
var ErrInvalidOutcomeCount = fmt.Errorf(
	"%w: outcome count must be in range [1, %d]", fixedpoint.ErrInvalidInput, MaxOutcomes,
)

func (t AMMType) String() string {
	switch t {
	case AMMTypeLMSR:
		return "LMSR"
	case AMMTypePMAMM:
		return "PM-AMM"
	case AMMTypeL2AMM:
		return "L2-AMM"
	default:
		return "UNSPECIFIED"
	}
}

// IsValid returns whether t is one of the three engines.
func (t AMMType) IsValid() bool {
	return t >= AMMTypeLMSR && t <= AMMTypeL2AMM
}

// SelectOpts are the market shape parameters the selection depends on.
type SelectOpts struct {
	Outcomes uint32
	// Continuous is an explicit request for a range/distribution market.
	Continuous   bool
	TimeToExpiry time.Duration
	// NearExpiryThreshold defaults to DefaultNearExpiryThreshold when zero.
	NearExpiryThreshold time.Duration
}

// SelectAMM picks the engine for a market. It is a pure function of its
// arguments.
//
// An explicit continuous request always gets L2-AMM: the near-expiry
// override only applies to the default, outcome-count based, path.
func SelectAMM(opts SelectOpts) (AMMType, error) {
	if opts.Outcomes == 0 || opts.Outcomes > MaxOutcomes {
		return AMMTypeUnspecified, ErrInvalidOutcomeCount
	}
	if opts.Continuous {
		return AMMTypeL2AMM, nil
	}

	threshold := opts.NearExpiryThreshold
	if threshold <= 0 {
		threshold = DefaultNearExpiryThreshold
	}
	if opts.TimeToExpiry < threshold {
		return AMMTypePMAMM, nil
	}

	if opts.Outcomes == 1 {
		return AMMTypeLMSR, nil
	}
	return AMMTypePMAMM, nil
}
