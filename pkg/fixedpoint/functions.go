package fixedpoint

import "fmt"

var (
	// expNegCutoff is where e^x drops below the 2^-64 resolution.
	expNegCutoff = FromInt64(-45)
	// below expHalvingBound the reciprocal of e^-x would not fit, so the
	// argument is halved and the result squared.
	expHalvingBound = FromInt64(-40)
)

// Exp returns e^x. Arguments above 8 are reduced with
// e^x = e^(8k) * e^(x-8k) and negative arguments with e^-x = 1/e^x.
func (t *Tables) Exp(x Fixed) (Fixed, error) {
	if x.IsNegative() {
		if x.LessThanOrEqual(expNegCutoff) {
			return Zero, nil
		}
		if x.LessThan(expHalvingBound) {
			half, err := x.Shr(1)
			if err != nil {
				return Zero, err
			}
			h, err := t.Exp(half)
			if err != nil {
				return Zero, err
			}
			return h.Mul(h)
		}
		neg, err := x.Neg()
		if err != nil {
			return Zero, err
		}
		e, err := t.Exp(neg)
		if err != nil {
			return Zero, err
		}
		return One.Div(e)
	}
	if x.LessThanOrEqual(t.expBound) {
		return t.exp.lookup(x)
	}

	k, err := x.Div(t.expBound)
	if err != nil {
		return Zero, err
	}
	steps := k.ToInt64Floor()
	reduced, err := t.expBound.Mul(FromInt64(steps))
	if err != nil {
		return Zero, err
	}
	if reduced, err = x.Sub(reduced); err != nil {
		return Zero, err
	}

	result, err := t.exp.lookup(reduced)
	if err != nil {
		return Zero, err
	}
	for i := int64(0); i < steps; i++ {
		if result, err = result.Mul(t.exp8); err != nil {
			return Zero, err
		}
	}
	return result, nil
}

// Ln returns the natural logarithm of x > 0. Arguments above 10 are halved
// and sub-unit arguments doubled until they fall in the table domain, using
// ln(x) = ln(x*2^-k) + k*ln2.
func (t *Tables) Ln(x Fixed) (Fixed, error) {
	if x.Sign() <= 0 {
		return Zero, fmt.Errorf("%w: ln of non-positive value %s", ErrInvalidInput, x)
	}

	var (
		k   int64
		m   = x
		err error
	)
	for m.LessThan(One) {
		if m, err = m.Shl(1); err != nil {
			return Zero, err
		}
		k--
	}
	for m.GreaterThan(t.ten) {
		if m, err = m.Shr(1); err != nil {
			return Zero, err
		}
		k++
	}

	result, err := t.ln.lookup(m)
	if err != nil {
		return Zero, err
	}
	if k == 0 {
		return result, nil
	}
	adj, err := t.ln2.Mul(FromInt64(k))
	if err != nil {
		return Zero, err
	}
	return result.Add(adj)
}

// Sqrt returns the square root of x >= 0. The argument is scaled by powers
// of 4 into [1, 256], looked up, refined with two Newton steps and scaled
// back by the matching power of 2.
func (t *Tables) Sqrt(x Fixed) (Fixed, error) {
	if x.IsNegative() {
		return Zero, fmt.Errorf("%w: sqrt of negative value %s", ErrInvalidInput, x)
	}
	if x.IsZero() {
		return Zero, nil
	}

	var (
		k   int
		m   = x
		err error
	)
	for m.LessThan(One) {
		if m, err = m.Shl(2); err != nil {
			return Zero, err
		}
		k--
	}
	upper := t.sqrt.end
	for m.GreaterThan(upper) {
		if m, err = m.Shr(2); err != nil {
			return Zero, err
		}
		k++
	}

	y, err := t.sqrt.lookup(m)
	if err != nil {
		return Zero, err
	}
	for i := 0; i < 2; i++ {
		q, err := m.Div(y)
		if err != nil {
			return Zero, err
		}
		if y, err = y.Add(q); err != nil {
			return Zero, err
		}
		if y, err = y.Shr(1); err != nil {
			return Zero, err
		}
	}

	switch {
	case k > 0:
		return y.Shl(uint(k))
	case k < 0:
		return y.Shr(uint(-k))
	}
	return y, nil
}

// NormalCDF returns the standard normal cumulative distribution at x. The
// tails beyond [-4, 4] are reported as 0 and 1.
func (t *Tables) NormalCDF(x Fixed) (Fixed, error) {
	if x.LessThan(t.cdf.start) {
		return Zero, nil
	}
	if x.GreaterThan(t.cdf.end) {
		return One, nil
	}
	return t.cdf.lookup(x)
}

// NormalPDF returns the standard normal density at x, 0 beyond [-4, 4].
func (t *Tables) NormalPDF(x Fixed) (Fixed, error) {
	if x.LessThan(t.pdf.start) || x.GreaterThan(t.pdf.end) {
		return Zero, nil
	}
	return t.pdf.lookup(x)
}
