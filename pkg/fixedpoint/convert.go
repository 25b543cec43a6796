package fixedpoint

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

const decimalPlaces = 18

var two64Decimal = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), fracBits), 0)

// FromDecimal converts a decimal to fixed point, truncating digits beyond the
// 2^-64 resolution.
func FromDecimal(d decimal.Decimal) (Fixed, error) {
	return fromBig(d.Mul(two64Decimal).BigInt())
}

// MustFromDecimalString is meant for constants and tests.
func MustFromDecimalString(s string) Fixed {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	f, err := FromDecimal(d)
	if err != nil {
		panic(err)
	}
	return f
}

// FromFloat64 converts a float64 to fixed point, truncating toward zero. It is
// used to build the lookup tables.
func FromFloat64(x float64) (Fixed, error) {
	if math.IsNaN(x) {
		return Zero, fmt.Errorf("%w: NaN", ErrInvalidInput)
	}
	if math.IsInf(x, 1) {
		return Zero, ErrMathOverflow
	}
	if math.IsInf(x, -1) {
		return Zero, ErrMathUnderflow
	}
	bf := new(big.Float).SetFloat64(x)
	bf.SetMantExp(bf, fracBits)
	raw, _ := bf.Int(nil)
	return fromBig(raw)
}

// Decimal returns f as a decimal rounded to 18 places.
func (f Fixed) Decimal() decimal.Decimal {
	raw := f.toBig(new(big.Int))
	return decimal.NewFromBigInt(raw, 0).DivRound(two64Decimal, decimalPlaces)
}

func (f Fixed) String() string {
	return f.Decimal().String()
}

// FromBps returns bps / 10000.
func FromBps(bps uint64) (Fixed, error) {
	if err := ValidateBps(bps); err != nil {
		return Zero, err
	}
	return FromRatio(bps, MaxBps)
}

// ToBps returns f expressed in basis points, rounded down.
func (f Fixed) ToBps() (uint64, error) {
	v, err := f.Mul(FromInt64(MaxBps))
	if err != nil {
		return 0, err
	}
	return v.ToUint64Floor()
}

// MarshalBinary encodes the raw 128-bit value big endian, so that stored
// values round trip exactly.
func (f Fixed) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], f.hi)
	binary.BigEndian.PutUint64(buf[8:], f.lo)
	return buf, nil
}

// UnmarshalBinary ...
func (f *Fixed) UnmarshalBinary(data []byte) error {
	if len(data) != 16 {
		return fmt.Errorf("%w: fixed point encoding must be 16 bytes, got %d", ErrInvalidInput, len(data))
	}
	f.hi = binary.BigEndian.Uint64(data[:8])
	f.lo = binary.BigEndian.Uint64(data[8:])
	return nil
}

// MarshalText renders f as a decimal string. Text encoding is meant for
// display and drops precision beyond 18 decimal places.
func (f Fixed) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText ...
func (f *Fixed) UnmarshalText(text []byte) error {
	d, err := decimal.NewFromString(string(text))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	v, err := FromDecimal(d)
	if err != nil {
		return err
	}
	*f = v
	return nil
}
