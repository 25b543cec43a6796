// Package fixedpoint implements a signed 64.64 binary fixed-point number with
// checked arithmetic and the interpolated lookup tables used by the pricing
// engines.
//
// A Fixed holds a 128-bit two's complement integer scaled by 2^64. Products
// and quotients are promoted to a 128.128 intermediate before being
// range-checked back, so no operation ever wraps: results are either exact,
// rounded as documented, or an error among ErrMathOverflow, ErrMathUnderflow
// and ErrDivisionByZero.
package fixedpoint

import (
	"math/big"
	"math/bits"
	"sync"
)

const fracBits = 64

// Fixed is a signed 64.64 fixed-point number. The zero value is 0.
type Fixed struct {
	hi uint64
	lo uint64
}

var (
	// Zero ...
	Zero = Fixed{}
	// One ...
	One = Fixed{hi: 1}
	// MaxValue is the largest representable value, 2^63 - 2^-64.
	MaxValue = Fixed{hi: 1<<63 - 1, lo: 1<<64 - 1}
	// MinValue is the smallest representable value, -2^63.
	MinValue = Fixed{hi: 1 << 63}

	maxRaw = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minRaw = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	oneRaw = new(big.Int).Lsh(big.NewInt(1), fracBits)
	mask64 = new(big.Int).SetUint64(1<<64 - 1)
)

var bigPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getBig() *big.Int {
	return bigPool.Get().(*big.Int)
}

func putBig(v ...*big.Int) {
	for _, b := range v {
		b.SetInt64(0)
		bigPool.Put(b)
	}
}

// FromInt64 returns the fixed-point representation of n.
func FromInt64(n int64) Fixed {
	return Fixed{hi: uint64(n)}
}

// FromUint64 returns the fixed-point representation of n, failing with
// ErrCastOverflow if n does not fit the 64-bit signed integer part.
func FromUint64(n uint64) (Fixed, error) {
	if n > 1<<63-1 {
		return Zero, ErrCastOverflow
	}
	return Fixed{hi: n}, nil
}

// FromRatio returns num/den truncated toward zero.
func FromRatio(num, den uint64) (Fixed, error) {
	if den == 0 {
		return Zero, ErrDivisionByZero
	}
	n := getBig().SetUint64(num)
	defer putBig(n)
	n.Lsh(n, fracBits)
	d := getBig().SetUint64(den)
	defer putBig(d)
	return fromBig(n.Quo(n, d))
}

// IsNegative ...
func (f Fixed) IsNegative() bool {
	return f.hi>>63 == 1
}

// IsZero ...
func (f Fixed) IsZero() bool {
	return f.hi == 0 && f.lo == 0
}

// Sign returns -1, 0 or +1.
func (f Fixed) Sign() int {
	if f.IsZero() {
		return 0
	}
	if f.IsNegative() {
		return -1
	}
	return 1
}

// Cmp compares f and g and returns -1, 0 or +1.
func (f Fixed) Cmp(g Fixed) int {
	fh, gh := int64(f.hi), int64(g.hi)
	switch {
	case fh < gh:
		return -1
	case fh > gh:
		return 1
	case f.lo < g.lo:
		return -1
	case f.lo > g.lo:
		return 1
	}
	return 0
}

func (f Fixed) Equal(g Fixed) bool              { return f == g }
func (f Fixed) LessThan(g Fixed) bool           { return f.Cmp(g) < 0 }
func (f Fixed) LessThanOrEqual(g Fixed) bool    { return f.Cmp(g) <= 0 }
func (f Fixed) GreaterThan(g Fixed) bool        { return f.Cmp(g) > 0 }
func (f Fixed) GreaterThanOrEqual(g Fixed) bool { return f.Cmp(g) >= 0 }

// Min returns the smaller of f and g.
func Min(f, g Fixed) Fixed {
	if f.Cmp(g) <= 0 {
		return f
	}
	return g
}

// Max returns the larger of f and g.
func Max(f, g Fixed) Fixed {
	if f.Cmp(g) >= 0 {
		return f
	}
	return g
}

// Add returns f + g.
func (f Fixed) Add(g Fixed) (Fixed, error) {
	lo, carry := bits.Add64(f.lo, g.lo, 0)
	hi, _ := bits.Add64(f.hi, g.hi, carry)
	r := Fixed{hi, lo}

	fn, gn := f.IsNegative(), g.IsNegative()
	if fn == gn && r.IsNegative() != fn {
		if fn {
			return Zero, ErrMathUnderflow
		}
		return Zero, ErrMathOverflow
	}
	return r, nil
}

// Sub returns f - g.
func (f Fixed) Sub(g Fixed) (Fixed, error) {
	lo, borrow := bits.Sub64(f.lo, g.lo, 0)
	hi, _ := bits.Sub64(f.hi, g.hi, borrow)
	r := Fixed{hi, lo}

	fn, gn := f.IsNegative(), g.IsNegative()
	if fn != gn && r.IsNegative() != fn {
		if fn {
			return Zero, ErrMathUnderflow
		}
		return Zero, ErrMathOverflow
	}
	return r, nil
}

// Neg returns -f.
func (f Fixed) Neg() (Fixed, error) {
	return Zero.Sub(f)
}

// Abs returns |f|.
func (f Fixed) Abs() (Fixed, error) {
	if f.IsNegative() {
		return f.Neg()
	}
	return f, nil
}

// Mul returns f * g truncated toward zero.
func (f Fixed) Mul(g Fixed) (Fixed, error) {
	return f.mul(g, false)
}

// MulCeil returns f * g rounded toward positive infinity.
func (f Fixed) MulCeil(g Fixed) (Fixed, error) {
	return f.mul(g, true)
}

func (f Fixed) mul(g Fixed, ceil bool) (Fixed, error) {
	a, b := f.toBig(getBig()), g.toBig(getBig())
	r := getBig()
	defer putBig(a, b, r)

	a.Mul(a, b)
	a.QuoRem(a, oneRaw, r)
	if ceil && r.Sign() > 0 {
		a.Add(a, big.NewInt(1))
	}
	return fromBig(a)
}

// Div returns f / g truncated toward zero.
func (f Fixed) Div(g Fixed) (Fixed, error) {
	return f.div(g, false)
}

// DivCeil returns f / g rounded toward positive infinity.
func (f Fixed) DivCeil(g Fixed) (Fixed, error) {
	return f.div(g, true)
}

func (f Fixed) div(g Fixed, ceil bool) (Fixed, error) {
	if g.IsZero() {
		return Zero, ErrDivisionByZero
	}
	a, b := f.toBig(getBig()), g.toBig(getBig())
	r := getBig()
	defer putBig(a, b, r)

	a.Lsh(a, fracBits)
	a.QuoRem(a, b, r)
	if ceil && r.Sign() != 0 && r.Sign() == b.Sign() {
		a.Add(a, big.NewInt(1))
	}
	return fromBig(a)
}

// MulDiv returns f * g / h truncated toward zero, keeping the full product
// as intermediate so that only the final result has to fit.
func (f Fixed) MulDiv(g, h Fixed) (Fixed, error) {
	if h.IsZero() {
		return Zero, ErrDivisionByZero
	}
	a, b, c := f.toBig(getBig()), g.toBig(getBig()), h.toBig(getBig())
	defer putBig(a, b, c)

	a.Mul(a, b)
	a.Quo(a, c)
	return fromBig(a)
}

// Pow returns f^n by repeated squaring, failing as soon as any intermediate
// product leaves the representable range.
func (f Fixed) Pow(n uint) (Fixed, error) {
	result, base := One, f
	for n > 0 {
		if n&1 == 1 {
			r, err := result.Mul(base)
			if err != nil {
				return Zero, err
			}
			result = r
		}
		n >>= 1
		if n > 0 {
			b, err := base.Mul(base)
			if err != nil {
				return Zero, err
			}
			base = b
		}
	}
	return result, nil
}

// Shl returns f * 2^n.
func (f Fixed) Shl(n uint) (Fixed, error) {
	a := f.toBig(getBig())
	defer putBig(a)
	return fromBig(a.Lsh(a, n))
}

// Shr returns f / 2^n truncated toward zero.
func (f Fixed) Shr(n uint) (Fixed, error) {
	a := f.toBig(getBig())
	d := getBig().Lsh(big.NewInt(1), n)
	defer putBig(a, d)
	return fromBig(a.Quo(a, d))
}

// Floor returns the largest integer value not greater than f.
func (f Fixed) Floor() Fixed {
	return Fixed{hi: f.hi}
}

// Frac returns f - Floor(f), always in [0, 1).
func (f Fixed) Frac() Fixed {
	return Fixed{lo: f.lo}
}

// ToInt64Floor returns the integer part of f rounded toward negative infinity.
func (f Fixed) ToInt64Floor() int64 {
	return int64(f.hi)
}

// ToUint64Floor returns f rounded down, failing with ErrCastOverflow for
// negative values.
func (f Fixed) ToUint64Floor() (uint64, error) {
	if f.IsNegative() {
		return 0, ErrCastOverflow
	}
	return f.hi, nil
}

// ToUint64Ceil returns f rounded up, failing with ErrCastOverflow for
// negative values.
func (f Fixed) ToUint64Ceil() (uint64, error) {
	if f.IsNegative() {
		return 0, ErrCastOverflow
	}
	if f.lo != 0 {
		return f.hi + 1, nil
	}
	return f.hi, nil
}

// Float64 returns the nearest float64. Intended for diagnostics and table
// construction only, never for financial values.
func (f Fixed) Float64() float64 {
	return float64(int64(f.hi)) + float64(f.lo)/(1<<64)
}

func (f Fixed) toBig(z *big.Int) *big.Int {
	hi, lo := f.hi, f.lo
	neg := f.IsNegative()
	if neg {
		var borrow uint64
		lo, borrow = bits.Sub64(0, lo, 0)
		hi, _ = bits.Sub64(0, hi, borrow)
	}
	z.SetUint64(hi)
	z.Lsh(z, 64)
	t := getBig().SetUint64(lo)
	z.Or(z, t)
	putBig(t)
	if neg {
		z.Neg(z)
	}
	return z
}

func fromBig(z *big.Int) (Fixed, error) {
	if z.Cmp(maxRaw) > 0 {
		return Zero, ErrMathOverflow
	}
	if z.Cmp(minRaw) < 0 {
		return Zero, ErrMathUnderflow
	}

	abs := getBig().Abs(z)
	w := getBig()
	defer putBig(abs, w)

	lo := w.And(abs, mask64).Uint64()
	hi := abs.Rsh(abs, 64).Uint64()
	if z.Sign() < 0 {
		var borrow uint64
		lo, borrow = bits.Sub64(0, lo, 0)
		hi, _ = bits.Sub64(0, hi, borrow)
	}
	return Fixed{hi, lo}, nil
}
