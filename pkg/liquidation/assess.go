// Package liquidation scores the risk of leveraged positions and keeps the
// bounded, priority ordered queue keepers liquidate from.
package liquidation

import (
	"errors"
	"fmt"
	"math"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/leverage"
)

const (
	// HealthyFactor is the health factor at which the risk score reaches
	// zero, 2.0 in basis points.
	HealthyFactor = 2 * fixedpoint.MaxBps
	// MaxRiskScore ...
	MaxRiskScore = 100
	// AmountUnit scales the liquidatable amount weight of the priority.
	AmountUnit = 1_000_000
)

var (
	// ErrInvalidMarginRatio ...
	ErrInvalidMarginRatio = fmt.Errorf("%w: maintenance margin must be in range (0, 10000] bps", fixedpoint.ErrInvalidInput)
	// ErrWorthlessPosition is returned when a position has no value left at
	// the mark price and there is nothing to liquidate.
	ErrWorthlessPosition = errors.New("position has no value at mark price")
)

// Assessment is the result of marking a position.
type Assessment struct {
	RiskScore uint8
	// HealthFactor is equity over the maintenance requirement in basis
	// points, 10000 meaning equity exactly covers it.
	HealthFactor       uint64
	PositionValue      uint64
	Equity             uint64
	LiquidatableAmount uint64
}

// Assess marks a position at markPrice. Equity is the margin plus the
// unrealised pnl, the maintenance requirement is value * mmrBps / 10000,
// rounded up.
func Assess(pos leverage.Snapshot, markPrice fixedpoint.Fixed, mmrBps uint64) (*Assessment, error) {
	if mmrBps == 0 || mmrBps > fixedpoint.MaxBps {
		return nil, ErrInvalidMarginRatio
	}
	if !pos.Side.Valid() {
		return nil, leverage.ErrInvalidSide
	}

	value, err := leverage.ValueAt(pos.Size, markPrice)
	if err != nil {
		return nil, err
	}
	if value == 0 {
		return nil, ErrWorthlessPosition
	}
	equity, err := equityAt(pos, value)
	if err != nil {
		return nil, err
	}

	requirement, err := fixedpoint.MulDivCeil(value, mmrBps, fixedpoint.MaxBps)
	if err != nil {
		return nil, err
	}
	hf, err := fixedpoint.MulDiv(equity, fixedpoint.MaxBps, requirement)
	if err != nil {
		return nil, err
	}

	return &Assessment{
		RiskScore:          RiskScore(hf),
		HealthFactor:       hf,
		PositionValue:      value,
		Equity:             equity,
		LiquidatableAmount: value,
	}, nil
}

// RiskScore maps a health factor to [0, 100]: 100 at or below 1.0, falling
// linearly to 0 at 2.0.
func RiskScore(healthFactor uint64) uint8 {
	if healthFactor <= fixedpoint.MaxBps {
		return MaxRiskScore
	}
	if healthFactor >= HealthyFactor {
		return 0
	}
	return uint8((HealthyFactor - healthFactor) * MaxRiskScore / fixedpoint.MaxBps)
}

// Priority returns risk * 100 * 10000 / hf * max(1, amount / 1e6). It grows
// with risk and amount and shrinks as the health factor improves. A zero
// health factor counts as 1 bp. The result saturates at MaxUint64.
func Priority(risk uint8, healthFactor, amount uint64) (uint64, error) {
	if healthFactor == 0 {
		healthFactor = 1
	}
	weight := amount / AmountUnit
	if weight == 0 {
		weight = 1
	}
	score, err := fixedpoint.MulUint64(uint64(risk)*100, fixedpoint.MaxBps)
	if err != nil {
		return 0, err
	}
	priority, err := fixedpoint.MulDiv(score, weight, healthFactor)
	if errors.Is(err, fixedpoint.ErrMathOverflow) {
		return math.MaxUint64, nil
	}
	return priority, err
}

func equityAt(pos leverage.Snapshot, value uint64) (uint64, error) {
	entryValue, err := pos.Notional()
	if err != nil {
		return 0, err
	}

	gain, loss := uint64(0), uint64(0)
	switch {
	case pos.Side == leverage.Long && value > entryValue:
		gain = value - entryValue
	case pos.Side == leverage.Long:
		loss = entryValue - value
	case value < entryValue:
		gain = entryValue - value
	default:
		loss = value - entryValue
	}

	if loss >= pos.Margin {
		return 0, nil
	}
	return fixedpoint.AddUint64(pos.Margin-loss, gain)
}
