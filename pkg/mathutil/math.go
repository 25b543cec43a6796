package mathutil

import (
	"math/big"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/shopspring/decimal"
)

// FormatAmount renders an integer amount of base units with the given
// precision, ie. 1500000 with precision 6 is "1.5".
func FormatAmount(amount uint64, precision int32) string {
	return AmountToDecimal(amount, precision).String()
}

// AmountToDecimal converts an integer amount of base units to decimal.
func AmountToDecimal(amount uint64, precision int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -precision)
}

// DecimalToAmount converts a decimal to an integer amount of base units,
// truncating digits beyond precision.
func DecimalToAmount(d decimal.Decimal, precision int32) (uint64, error) {
	if d.IsNegative() {
		return 0, fixedpoint.ErrCastOverflow
	}
	raw := d.Shift(precision).BigInt()
	if !raw.IsUint64() {
		return 0, fixedpoint.ErrCastOverflow
	}
	return raw.Uint64(), nil
}
