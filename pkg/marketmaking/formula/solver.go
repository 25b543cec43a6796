package formula

import (
	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
)

// MaxIterations caps every Newton-Raphson solve.
const MaxIterations = 10

// maxWidenings caps the doublings of an upper bound that turned out to be
// below the root.
const maxWidenings = 32

var (
	// tradeTolerance bounds |f| at the root for trade solves, in the unit of
	// the objective (log space for PM-AMM).
	tradeTolerance = mustRatio(1, 1_000_000_000_000)
	// discoveryTolerance is used when solving reserves for target prices,
	// where prices are only meaningful down to a basis point.
	discoveryTolerance = mustRatio(1, 10_000_000)
	// unitTolerance is used by solves expressed in base units of collateral.
	unitTolerance = mustRatio(1, 2)
	two           = fixedpoint.FromInt64(2)
	half          = mustRatio(1, 2)
)

// objective returns f(x) and f'(x).
type objective func(x fixedpoint.Fixed) (fx, dfx fixedpoint.Fixed, err error)

// bracket is an open interval known to contain the root. increasing tells
// the direction of f across it.
type bracket struct {
	lo, hi     fixedpoint.Fixed
	increasing bool
	// unit, when not zero, is the resolution of the unknown: the solve also
	// stops once the bracket is narrower than unit and returns its end where
	// f is positive.
	unit fixedpoint.Fixed
}

// positive returns the end of the bracket where f is positive.
func (b bracket) positive() fixedpoint.Fixed {
	if b.increasing {
		return b.hi
	}
	return b.lo
}

func (b bracket) narrow() bool {
	if b.unit.IsZero() {
		return false
	}
	width, err := b.hi.Sub(b.lo)
	if err != nil {
		return false
	}
	return width.LessThanOrEqual(b.unit)
}

// solveNewton runs a safeguarded Newton-Raphson iteration from x0: each step
// shrinks the bracket around the root, and any step landing outside of it is
// replaced by bisection. With a unit set, steps shorter than half a unit are
// stretched to half a unit so that the bracket closes around the root. It
// returns the root and the number of updates performed, or ErrNonConvergent
// once MaxIterations updates did not bring |f| under tol nor the bracket
// under one unit.
func solveNewton(
	f objective, x0 fixedpoint.Fixed, b bracket, tol fixedpoint.Fixed,
) (fixedpoint.Fixed, int, error) {
	halfUnit, err := b.unit.Mul(half)
	if err != nil {
		return fixedpoint.Zero, 0, err
	}
	x := x0
	for iter := 0; ; iter++ {
		fx, dfx, err := f(x)
		if err != nil {
			return fixedpoint.Zero, iter, err
		}
		absF, err := fx.Abs()
		if err != nil {
			return fixedpoint.Zero, iter, err
		}
		if absF.LessThanOrEqual(tol) {
			return x, iter, nil
		}

		if (fx.Sign() > 0) == b.increasing {
			b.hi = x
		} else {
			b.lo = x
		}
		if b.narrow() {
			return b.positive(), iter, nil
		}
		if iter == MaxIterations {
			return fixedpoint.Zero, iter, ErrNonConvergent
		}

		next, ok := newtonStep(x, fx, dfx)
		if ok && !halfUnit.IsZero() {
			next = stretch(x, next, halfUnit)
		}
		if !ok || next.LessThanOrEqual(b.lo) || next.GreaterThanOrEqual(b.hi) {
			if next, err = midpoint(b.lo, b.hi); err != nil {
				return fixedpoint.Zero, iter, err
			}
		}
		x = next
	}
}

// widenBracket doubles b.hi until f(b.hi) lies past the root, moving b.lo
// up to every bound that fell short.
func widenBracket(f objective, b bracket) (bracket, error) {
	for i := 0; ; i++ {
		fx, _, err := f(b.hi)
		if err != nil {
			return b, err
		}
		past := fx.Sign() >= 0
		if !b.increasing {
			past = fx.Sign() <= 0
		}
		if past {
			return b, nil
		}
		if i == maxWidenings {
			return b, ErrNonConvergent
		}
		b.lo = b.hi
		if b.hi, err = b.hi.Mul(two); err != nil {
			return b, err
		}
	}
}

// stretch moves x towards next by at least minStep.
func stretch(x, next, minStep fixedpoint.Fixed) fixedpoint.Fixed {
	step, err := next.Sub(x)
	if err != nil {
		return next
	}
	size, err := step.Abs()
	if err != nil || size.GreaterThanOrEqual(minStep) {
		return next
	}
	if step.IsNegative() {
		if stretched, err := x.Sub(minStep); err == nil {
			return stretched
		}
		return next
	}
	if stretched, err := x.Add(minStep); err == nil {
		return stretched
	}
	return next
}

func newtonStep(x, fx, dfx fixedpoint.Fixed) (fixedpoint.Fixed, bool) {
	if dfx.IsZero() {
		return fixedpoint.Zero, false
	}
	step, err := fx.Div(dfx)
	if err != nil {
		return fixedpoint.Zero, false
	}
	next, err := x.Sub(step)
	if err != nil {
		return fixedpoint.Zero, false
	}
	return next, true
}

func midpoint(lo, hi fixedpoint.Fixed) (fixedpoint.Fixed, error) {
	width, err := hi.Sub(lo)
	if err != nil {
		return fixedpoint.Zero, err
	}
	half, err := width.Div(two)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return lo.Add(half)
}

func mustRatio(num, den uint64) fixedpoint.Fixed {
	f, err := fixedpoint.FromRatio(num, den)
	if err != nil {
		panic(err)
	}
	return f
}
