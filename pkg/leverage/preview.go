package leverage

import (
	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
)

// RiskTier buckets leverage for display and alerting.
type RiskTier uint8

const (
	RiskLow RiskTier = iota
	RiskMedium
	RiskHigh
	RiskExtreme
)

var (
	mediumRiskLeverage  = fixedpoint.FromInt64(10)
	highRiskLeverage    = fixedpoint.FromInt64(25)
	extremeRiskLeverage = fixedpoint.FromInt64(100)
)

func (t RiskTier) String() string {
	switch t {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskExtreme:
		return "extreme"
	default:
		return "unknown"
	}
}

// RiskTierFor returns Low below 10x, Medium below 25x, High below 100x and
// Extreme otherwise.
func RiskTierFor(leverage fixedpoint.Fixed) RiskTier {
	switch {
	case leverage.LessThan(mediumRiskLeverage):
		return RiskLow
	case leverage.LessThan(highRiskLeverage):
		return RiskMedium
	case leverage.LessThan(extremeRiskLeverage):
		return RiskHigh
	default:
		return RiskExtreme
	}
}

// PreviewRequest describes a leverage change to evaluate. ChainReturns is
// optional and, when set, compounds the target through a position chain.
type PreviewRequest struct {
	Position            Snapshot
	RequestedMultiplier fixedpoint.Fixed
	ChainDepth          uint32
	ChainReturns        []fixedpoint.Fixed
	Coverage            fixedpoint.Fixed
	Outcomes            uint32
}

// Preview is the outcome of a leverage change, computed without mutating
// anything.
type Preview struct {
	CurrentLeverage    fixedpoint.Fixed
	TargetLeverage     fixedpoint.Fixed
	MaxLeverage        fixedpoint.Fixed
	WithinLimit        bool
	LiquidationPrice   fixedpoint.Fixed
	RequiredCollateral uint64
	RiskTier           RiskTier
}

// Preview returns what the position would look like at
// current leverage * requested multiplier.
func (e *Engine) Preview(req PreviewRequest) (*Preview, error) {
	pos := req.Position
	if pos.Leverage.LessThan(fixedpoint.One) {
		return nil, ErrInvalidLeverage
	}
	if req.RequestedMultiplier.Sign() <= 0 {
		return nil, ErrInvalidMultiplier
	}
	if !pos.Side.Valid() {
		return nil, ErrInvalidSide
	}

	target, err := pos.Leverage.Mul(req.RequestedMultiplier)
	if err != nil {
		return nil, err
	}
	if target.LessThan(fixedpoint.One) {
		return nil, ErrInvalidLeverage
	}
	if target, err = EffectiveLeverage(target, req.ChainReturns); err != nil {
		return nil, err
	}

	limit, err := e.MaxLeverage(req.ChainDepth, req.Coverage, req.Outcomes)
	if err != nil {
		return nil, err
	}
	liqPrice, err := LiquidationPrice(pos.EntryPrice, target, pos.Side)
	if err != nil {
		return nil, err
	}
	required, err := requiredCollateral(pos, target)
	if err != nil {
		return nil, err
	}

	return &Preview{
		CurrentLeverage:    pos.Leverage,
		TargetLeverage:     target,
		MaxLeverage:        limit,
		WithinLimit:        target.LessThanOrEqual(limit),
		LiquidationPrice:   liqPrice,
		RequiredCollateral: required,
		RiskTier:           RiskTierFor(target),
	}, nil
}

// RequiredCollateral returns the margin a position of the given notional
// needs at leverage, rounded up.
func RequiredCollateral(notional uint64, leverage fixedpoint.Fixed) (uint64, error) {
	if leverage.LessThan(fixedpoint.One) {
		return 0, ErrInvalidLeverage
	}
	n, err := fixedpoint.FromUint64(notional)
	if err != nil {
		return 0, err
	}
	margin, err := n.DivCeil(leverage)
	if err != nil {
		return 0, err
	}
	return margin.ToUint64Ceil()
}

func requiredCollateral(pos Snapshot, leverage fixedpoint.Fixed) (uint64, error) {
	notional, err := pos.Notional()
	if err != nil {
		return 0, err
	}
	return RequiredCollateral(notional, leverage)
}
