package fixedpoint_test

import (
	"math"
	"math/big"
	"math/rand"
	"testing"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	maxInt = new(big.Int).SetInt64(math.MaxInt64)
	minInt = new(big.Int).SetInt64(math.MinInt64)
)

// expectedIntResult returns the exact value of an integer operation, or the
// error a checked operation must return when the value does not fit.
func expectedIntResult(v *big.Int) (int64, error) {
	if v.Cmp(maxInt) > 0 {
		return 0, fixedpoint.ErrMathOverflow
	}
	if v.Cmp(minInt) < 0 {
		return 0, fixedpoint.ErrMathUnderflow
	}
	return v.Int64(), nil
}

func TestAddSubNeverWrap(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(42))
	edges := []int64{math.MaxInt64, math.MinInt64, 0, 1, -1, math.MaxInt64 - 1, math.MinInt64 + 1}

	for i := 0; i < 2000; i++ {
		var a, b int64
		if i < len(edges)*len(edges) {
			a, b = edges[i/len(edges)], edges[i%len(edges)]
		} else {
			a, b = int64(rnd.Uint64()), int64(rnd.Uint64())
		}
		fa, fb := fixedpoint.FromInt64(a), fixedpoint.FromInt64(b)

		sum, err := fa.Add(fb)
		want, wantErr := expectedIntResult(new(big.Int).Add(big.NewInt(a), big.NewInt(b)))
		if wantErr != nil {
			require.ErrorIs(t, err, wantErr, "%d + %d", a, b)
		} else {
			require.NoError(t, err)
			require.Equal(t, fixedpoint.FromInt64(want), sum, "%d + %d", a, b)
		}

		diff, err := fa.Sub(fb)
		want, wantErr = expectedIntResult(new(big.Int).Sub(big.NewInt(a), big.NewInt(b)))
		if wantErr != nil {
			require.ErrorIs(t, err, wantErr, "%d - %d", a, b)
		} else {
			require.NoError(t, err)
			require.Equal(t, fixedpoint.FromInt64(want), diff, "%d - %d", a, b)
		}
	}
}

func TestMulNeverWrap(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		shift := uint(rnd.Intn(62) + 1)
		a := rnd.Int63n(1<<shift) - 1<<(shift-1)
		b := int64(rnd.Uint64()) >> uint(rnd.Intn(63))

		got, err := fixedpoint.FromInt64(a).Mul(fixedpoint.FromInt64(b))
		want, wantErr := expectedIntResult(new(big.Int).Mul(big.NewInt(a), big.NewInt(b)))
		if wantErr != nil {
			require.ErrorIs(t, err, wantErr, "%d * %d", a, b)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, fixedpoint.FromInt64(want), got, "%d * %d", a, b)
	}
}

func TestCheckedErrors(t *testing.T) {
	t.Parallel()

	smallest, err := fixedpoint.FromRatio(1, 1<<63)
	require.NoError(t, err)

	tests := []struct {
		name string
		op   func() (fixedpoint.Fixed, error)
		err  error
	}{
		{
			name: "add overflow",
			op:   func() (fixedpoint.Fixed, error) { return fixedpoint.MaxValue.Add(smallest) },
			err:  fixedpoint.ErrMathOverflow,
		},
		{
			name: "sub underflow",
			op:   func() (fixedpoint.Fixed, error) { return fixedpoint.MinValue.Sub(fixedpoint.One) },
			err:  fixedpoint.ErrMathUnderflow,
		},
		{
			name: "mul overflow",
			op: func() (fixedpoint.Fixed, error) {
				return fixedpoint.FromInt64(1 << 62).Mul(fixedpoint.FromInt64(4))
			},
			err: fixedpoint.ErrMathOverflow,
		},
		{
			name: "mul underflow",
			op: func() (fixedpoint.Fixed, error) {
				return fixedpoint.FromInt64(-(1 << 62)).Mul(fixedpoint.FromInt64(4))
			},
			err: fixedpoint.ErrMathUnderflow,
		},
		{
			name: "negate min",
			op:   func() (fixedpoint.Fixed, error) { return fixedpoint.MinValue.Neg() },
			err:  fixedpoint.ErrMathOverflow,
		},
		{
			name: "div by zero",
			op:   func() (fixedpoint.Fixed, error) { return fixedpoint.One.Div(fixedpoint.Zero) },
			err:  fixedpoint.ErrDivisionByZero,
		},
		{
			name: "div overflow",
			op:   func() (fixedpoint.Fixed, error) { return fixedpoint.MaxValue.Div(smallest) },
			err:  fixedpoint.ErrMathOverflow,
		},
		{
			name: "pow overflow",
			op:   func() (fixedpoint.Fixed, error) { return fixedpoint.FromInt64(2).Pow(63) },
			err:  fixedpoint.ErrMathOverflow,
		},
		{
			name: "cast overflow",
			op:   func() (fixedpoint.Fixed, error) { return fixedpoint.FromUint64(1 << 63) },
			err:  fixedpoint.ErrCastOverflow,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.op()
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRounding(t *testing.T) {
	t.Parallel()

	smallest, err := fixedpoint.FromRatio(1, 1<<63)
	require.NoError(t, err)
	quarter, err := fixedpoint.FromRatio(1, 4)
	require.NoError(t, err)

	down, err := smallest.Mul(quarter)
	require.NoError(t, err)
	require.True(t, down.IsZero())

	up, err := smallest.MulCeil(quarter)
	require.NoError(t, err)
	require.Equal(t, 1, up.Sign())

	three := fixedpoint.FromInt64(3)
	floor, err := fixedpoint.One.Div(three)
	require.NoError(t, err)
	ceil, err := fixedpoint.One.DivCeil(three)
	require.NoError(t, err)
	require.True(t, ceil.GreaterThan(floor))

	half, err := fixedpoint.FromRatio(7, 2)
	require.NoError(t, err)
	f, err := half.ToUint64Floor()
	require.NoError(t, err)
	require.Equal(t, uint64(3), f)
	c, err := half.ToUint64Ceil()
	require.NoError(t, err)
	require.Equal(t, uint64(4), c)

	neg, err := half.Neg()
	require.NoError(t, err)
	require.Equal(t, int64(-4), neg.ToInt64Floor())
	_, err = neg.ToUint64Floor()
	require.ErrorIs(t, err, fixedpoint.ErrCastOverflow)
}

func TestPow(t *testing.T) {
	t.Parallel()

	got, err := fixedpoint.FromInt64(3).Pow(5)
	require.NoError(t, err)
	require.Equal(t, fixedpoint.FromInt64(243), got)

	half, err := fixedpoint.FromRatio(1, 2)
	require.NoError(t, err)
	got, err = half.Pow(3)
	require.NoError(t, err)
	require.Equal(t, "0.125", got.String())

	got, err = half.Pow(0)
	require.NoError(t, err)
	require.Equal(t, fixedpoint.One, got)
}

func TestDecimalConversion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"0.25", "0.25"},
		{"-1.5", "-1.5"},
		{"123456789", "123456789"},
		{"0", "0"},
	}
	for _, tt := range tests {
		f, err := fixedpoint.FromDecimal(decimal.RequireFromString(tt.in))
		require.NoError(t, err)
		require.Equal(t, tt.want, f.String())
	}

	_, err := fixedpoint.FromDecimal(decimal.RequireFromString("1e20"))
	require.ErrorIs(t, err, fixedpoint.ErrMathOverflow)
}

func TestCheckedUint64(t *testing.T) {
	t.Parallel()

	_, err := fixedpoint.AddUint64(math.MaxUint64, 1)
	require.ErrorIs(t, err, fixedpoint.ErrMathOverflow)

	_, err = fixedpoint.SubUint64(1, 2)
	require.ErrorIs(t, err, fixedpoint.ErrMathUnderflow)

	_, err = fixedpoint.MulUint64(math.MaxUint64, 2)
	require.ErrorIs(t, err, fixedpoint.ErrMathOverflow)

	v, err := fixedpoint.MulDiv(math.MaxUint64, 3, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64/4*3+2), v)

	_, err = fixedpoint.MulDiv(math.MaxUint64, 2, 1)
	require.ErrorIs(t, err, fixedpoint.ErrMathOverflow)

	_, err = fixedpoint.MulDiv(1, 1, 0)
	require.ErrorIs(t, err, fixedpoint.ErrDivisionByZero)

	v, err = fixedpoint.MulDivCeil(10, 1, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(4), v)
}

func TestBps(t *testing.T) {
	t.Parallel()

	v, err := fixedpoint.ApplyBps(1_000_000, 250)
	require.NoError(t, err)
	require.Equal(t, uint64(25_000), v)

	v, err = fixedpoint.ApplyBpsCeil(1, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)

	_, err = fixedpoint.ApplyBps(100, 10001)
	require.ErrorIs(t, err, fixedpoint.ErrInvalidBps)
	require.ErrorIs(t, err, fixedpoint.ErrInvalidInput)

	_, err = fixedpoint.FromBps(20000)
	require.ErrorIs(t, err, fixedpoint.ErrInvalidBps)

	f, err := fixedpoint.FromBps(2500)
	require.NoError(t, err)
	require.Equal(t, "0.25", f.String())

	bps, err := f.ToBps()
	require.NoError(t, err)
	require.Equal(t, uint64(2500), bps)

	r, err := fixedpoint.RatioBps(1500, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(15000), r)
}

func TestMulDiv(t *testing.T) {
	t.Parallel()

	large := fixedpoint.FromInt64(1 << 40)
	got, err := large.MulDiv(large, fixedpoint.FromInt64(1<<30))
	require.NoError(t, err)
	require.Equal(t, fixedpoint.FromInt64(1<<50), got)

	third, err := fixedpoint.One.MulDiv(fixedpoint.One, fixedpoint.FromInt64(3))
	require.NoError(t, err)
	want, err := fixedpoint.One.Div(fixedpoint.FromInt64(3))
	require.NoError(t, err)
	require.Equal(t, want, third)

	_, err = large.MulDiv(large, fixedpoint.One)
	require.ErrorIs(t, err, fixedpoint.ErrMathOverflow)

	_, err = large.MulDiv(large, fixedpoint.Zero)
	require.ErrorIs(t, err, fixedpoint.ErrDivisionByZero)
}

func TestEncoding(t *testing.T) {
	t.Parallel()

	values := []fixedpoint.Fixed{
		fixedpoint.Zero,
		fixedpoint.MaxValue,
		fixedpoint.MinValue,
		fixedpoint.MustFromDecimalString("-1234.000000000000000001"),
	}
	for _, v := range values {
		buf, err := v.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, buf, 16)

		var got fixedpoint.Fixed
		require.NoError(t, got.UnmarshalBinary(buf))
		require.Equal(t, v, got)
	}

	var f fixedpoint.Fixed
	require.ErrorIs(t, f.UnmarshalBinary([]byte{1, 2}), fixedpoint.ErrInvalidInput)

	text, err := fixedpoint.FromInt64(-25).MarshalText()
	require.NoError(t, err)
	require.Equal(t, "-25", string(text))
	require.NoError(t, f.UnmarshalText([]byte("12.5")))
	require.Equal(t, 12.5, f.Float64())
	require.ErrorIs(t, f.UnmarshalText([]byte("abc")), fixedpoint.ErrInvalidInput)
}
