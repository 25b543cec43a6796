package fixedpoint

import "math/bits"

// MaxBps is 100% expressed in basis points.
const MaxBps = 10000

// ValidateBps rejects values above 10000.
func ValidateBps(bps uint64) error {
	if bps > MaxBps {
		return ErrInvalidBps
	}
	return nil
}

// AddUint64 returns a + b or ErrMathOverflow.
func AddUint64(a, b uint64) (uint64, error) {
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrMathOverflow
	}
	return s, nil
}

// SubUint64 returns a - b or ErrMathUnderflow.
func SubUint64(a, b uint64) (uint64, error) {
	d, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrMathUnderflow
	}
	return d, nil
}

// MulUint64 returns a * b or ErrMathOverflow.
func MulUint64(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrMathOverflow
	}
	return lo, nil
}

// SumUint64 returns the checked sum of values.
func SumUint64(values []uint64) (uint64, error) {
	var total uint64
	for _, v := range values {
		t, err := AddUint64(total, v)
		if err != nil {
			return 0, err
		}
		total = t
	}
	return total, nil
}

// MulDiv returns floor(a * b / c) computed on a 128-bit intermediate.
func MulDiv(a, b, c uint64) (uint64, error) {
	q, _, err := mulDiv(a, b, c)
	return q, err
}

// MulDivCeil returns ceil(a * b / c) computed on a 128-bit intermediate.
func MulDivCeil(a, b, c uint64) (uint64, error) {
	q, r, err := mulDiv(a, b, c)
	if err != nil {
		return 0, err
	}
	if r != 0 {
		return AddUint64(q, 1)
	}
	return q, nil
}

func mulDiv(a, b, c uint64) (uint64, uint64, error) {
	if c == 0 {
		return 0, 0, ErrDivisionByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, 0, ErrMathOverflow
	}
	q, r := bits.Div64(hi, lo, c)
	return q, r, nil
}

// ApplyBps returns floor(amount * bps / 10000).
func ApplyBps(amount, bps uint64) (uint64, error) {
	if err := ValidateBps(bps); err != nil {
		return 0, err
	}
	return MulDiv(amount, bps, MaxBps)
}

// ApplyBpsCeil returns ceil(amount * bps / 10000).
func ApplyBpsCeil(amount, bps uint64) (uint64, error) {
	if err := ValidateBps(bps); err != nil {
		return 0, err
	}
	return MulDivCeil(amount, bps, MaxBps)
}

// RatioBps returns floor(part * 10000 / total). The result is a ratio and may
// exceed 10000.
func RatioBps(part, total uint64) (uint64, error) {
	return MulDiv(part, MaxBps, total)
}
