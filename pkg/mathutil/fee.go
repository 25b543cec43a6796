package mathutil

import (
	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
)

// PlusFee calculates an amount with a fee added given an amount and a fee
// expressed in basis points (ie. 0.25% = 25). The fee is rounded down.
func PlusFee(amount, feeAsBasisPoint uint64) (withFee, calculatedFee uint64, err error) {
	calculatedFee, err = fixedpoint.ApplyBps(amount, feeAsBasisPoint)
	if err != nil {
		return
	}
	withFee, err = fixedpoint.AddUint64(amount, calculatedFee)
	return
}

// LessFee calculates an amount with a fee subtracted given an amount and a
// fee expressed in basis points (ie. 0.25% = 25). The fee is rounded down.
func LessFee(amount, feeAsBasisPoint uint64) (withoutFee, calculatedFee uint64, err error) {
	calculatedFee, err = fixedpoint.ApplyBps(amount, feeAsBasisPoint)
	if err != nil {
		return
	}
	withoutFee, err = fixedpoint.SubUint64(amount, calculatedFee)
	return
}

// GrossUpForFee returns the smallest gross amount that still yields net once
// LessFee is applied to it, along with the fee charged.
func GrossUpForFee(net, feeAsBasisPoint uint64) (gross, calculatedFee uint64, err error) {
	if err = fixedpoint.ValidateBps(feeAsBasisPoint); err != nil {
		return
	}
	if feeAsBasisPoint == fixedpoint.MaxBps {
		err = fixedpoint.ErrInvalidBps
		return
	}
	if net == 0 {
		return
	}
	// LessFee(g) = ceil(g * (10000 - fee) / 10000) >= net holds for every
	// g > (net - 1) * 10000 / (10000 - fee).
	gross, err = fixedpoint.MulDiv(net-1, fixedpoint.MaxBps, fixedpoint.MaxBps-feeAsBasisPoint)
	if err != nil {
		return
	}
	if gross, err = fixedpoint.AddUint64(gross, 1); err != nil {
		return
	}
	calculatedFee = gross - net
	return
}

var (
	elasticBaseBps     = fixedpoint.FromInt64(3)
	elasticVariableBps = fixedpoint.FromInt64(25)
	elasticDecay       = fixedpoint.FromInt64(-3)
)

// ElasticFeeMaxBps caps ElasticFeeBps.
const ElasticFeeMaxBps = 28

// ElasticFeeBps returns 3bp + 25bp * e^(-3 * coverage), capped at 28bp and
// rounded up to the next basis point.
func ElasticFeeBps(tables *fixedpoint.Tables, coverage fixedpoint.Fixed) (uint64, error) {
	if coverage.IsNegative() {
		return 0, fixedpoint.ErrInvalidInput
	}
	exponent, err := coverage.Mul(elasticDecay)
	if err != nil {
		return 0, err
	}
	decay, err := tables.Exp(exponent)
	if err != nil {
		return 0, err
	}
	variable, err := elasticVariableBps.Mul(decay)
	if err != nil {
		return 0, err
	}
	fee, err := elasticBaseBps.Add(variable)
	if err != nil {
		return 0, err
	}
	bps, err := fee.ToUint64Ceil()
	if err != nil {
		return 0, err
	}
	if bps > ElasticFeeMaxBps {
		bps = ElasticFeeMaxBps
	}
	return bps, nil
}
