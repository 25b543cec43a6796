package formula

import (
	"fmt"
	"math/bits"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/mathutil"
)

// L2AMM prices continuous outcome markets. The outcome range [Min, Max] is
// tiled by equally sized bins, each holding the weight of shares bought on
// it, and the cost of moving from weights w to w' is k * (|w'| - |w|), where
// |.| is the L2 norm.
type L2AMM struct {
	tables *fixedpoint.Tables
}

// L2AMMOpts defines the pool state and trade parameters. Slippage is not
// defined for range trades, so only MaxCost and MinPayout of Limits apply.
type L2AMMOpts struct {
	Min     uint64
	Max     uint64
	Weights []uint64
	// K is the liquidity parameter in basis points, 10000 being 1.
	K      uint64
	FeeBps uint64
	Limits
}

func (o L2AMMOpts) validate() error {
	if len(o.Weights) == 0 {
		return fmt.Errorf("%w: no bins", ErrInvalidOutcome)
	}
	if o.Min >= o.Max || o.Max > 1<<63-1 {
		return ErrInvalidRange
	}
	if o.K == 0 {
		return ErrInvalidLiquidity
	}
	if err := fixedpoint.ValidateBps(o.FeeBps); err != nil {
		return err
	}
	return o.Limits.validate()
}

// NewL2AMM returns an engine sharing the given lookup tables.
func NewL2AMM(tables *fixedpoint.Tables) *L2AMM {
	return &L2AMM{tables}
}

// Distribute splits shares across the bins overlapping [lower, upper]
// proportionally to the overlap. The rounding remainder goes to the last
// overlapped bin so that the amounts always add up to shares.
func (l *L2AMM) Distribute(opts L2AMMOpts, lower, upper, shares uint64) ([]uint64, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if lower >= upper || lower < opts.Min || upper > opts.Max {
		return nil, fmt.Errorf(
			"%w: [%d, %d] in [%d, %d]", ErrInvalidRange, lower, upper, opts.Min, opts.Max,
		)
	}
	if shares == 0 {
		return nil, ErrInvalidTradeAmount
	}

	edges, err := binEdges(opts.Min, opts.Max, len(opts.Weights))
	if err != nil {
		return nil, err
	}
	lo, err := fixedpoint.FromUint64(lower)
	if err != nil {
		return nil, err
	}
	hi, err := fixedpoint.FromUint64(upper)
	if err != nil {
		return nil, err
	}
	span, err := hi.Sub(lo)
	if err != nil {
		return nil, err
	}
	total, err := fixedpoint.FromUint64(shares)
	if err != nil {
		return nil, err
	}

	amounts := make([]uint64, len(opts.Weights))
	last := -1
	var assigned uint64
	for i := range amounts {
		left := fixedpoint.Max(lo, edges[i])
		right := fixedpoint.Min(hi, edges[i+1])
		if right.LessThanOrEqual(left) {
			continue
		}
		overlap, err := right.Sub(left)
		if err != nil {
			return nil, err
		}
		amount, err := total.MulDiv(overlap, span)
		if err != nil {
			return nil, err
		}
		if amounts[i], err = amount.ToUint64Floor(); err != nil {
			return nil, err
		}
		assigned += amounts[i]
		last = i
	}
	if last < 0 {
		return nil, ErrInvalidRange
	}
	amounts[last] += shares - assigned
	return amounts, nil
}

// Buy adds shares on [lower, upper] and charges k * (|w'| - |w|), rounded
// up, plus fee.
func (l *L2AMM) Buy(opts L2AMMOpts, lower, upper, shares uint64) (*Trade, error) {
	amounts, err := l.Distribute(opts, lower, upper, shares)
	if err != nil {
		return nil, err
	}
	after := cloneUint64(opts.Weights)
	for i, a := range amounts {
		if after[i], err = fixedpoint.AddUint64(after[i], a); err != nil {
			return nil, err
		}
	}

	delta, norm, err := l.normDelta(opts, opts.Weights, after)
	if err != nil {
		return nil, err
	}
	if delta.Sign() <= 0 {
		return nil, ErrInvalidTradeAmount
	}
	cost, err := delta.ToUint64Ceil()
	if err != nil {
		return nil, err
	}
	amountIn, fee, err := mathutil.PlusFee(cost, opts.FeeBps)
	if err != nil {
		return nil, err
	}
	if err := opts.checkCost(amountIn); err != nil {
		return nil, err
	}

	return l.trade(opts, after, norm, amountIn, shares, fee)
}

// Sell removes shares from [lower, upper] and pays k * (|w| - |w'|), rounded
// down, less fee.
func (l *L2AMM) Sell(opts L2AMMOpts, lower, upper, shares uint64) (*Trade, error) {
	amounts, err := l.Distribute(opts, lower, upper, shares)
	if err != nil {
		return nil, err
	}
	after := cloneUint64(opts.Weights)
	for i, a := range amounts {
		if a > after[i] {
			return nil, fmt.Errorf(
				"%w: bin %d holds %d, selling %d", ErrInsufficientLiquidity, i, after[i], a,
			)
		}
		after[i] -= a
	}

	delta, _, err := l.normDelta(opts, after, opts.Weights)
	if err != nil {
		return nil, err
	}
	payout, err := delta.ToUint64Floor()
	if err != nil {
		return nil, err
	}
	if payout == 0 {
		return nil, ErrInvalidTradeAmount
	}
	amountOut, fee, err := mathutil.LessFee(payout, opts.FeeBps)
	if err != nil {
		return nil, err
	}
	if err := opts.checkPayout(amountOut); err != nil {
		return nil, err
	}

	norm, err := l.Norm(after)
	if err != nil {
		return nil, err
	}
	return l.trade(opts, after, norm, shares, amountOut, fee)
}

// Norm returns the L2 norm of the weights. Weights are scaled by a common
// power of two not lower than the largest of them before squaring.
func (l *L2AMM) Norm(weights []uint64) (fixedpoint.Fixed, error) {
	var largest uint64
	for _, w := range weights {
		if w > largest {
			largest = w
		}
	}
	if largest == 0 {
		return fixedpoint.Zero, nil
	}
	shift := uint(bits.Len64(largest))

	sum := fixedpoint.Zero
	for _, w := range weights {
		x, err := fixedpoint.FromUint64(w)
		if err != nil {
			return fixedpoint.Zero, err
		}
		if x, err = x.Shr(shift); err != nil {
			return fixedpoint.Zero, err
		}
		sq, err := x.Mul(x)
		if err != nil {
			return fixedpoint.Zero, err
		}
		if sum, err = sum.Add(sq); err != nil {
			return fixedpoint.Zero, err
		}
	}
	root, err := l.tables.Sqrt(sum)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return root.Shl(shift)
}

// ExpectedValue returns sum_i mid_i * w_i / sum_i w_i, the midpoint of the
// range when there is no weight at all.
func (l *L2AMM) ExpectedValue(opts L2AMMOpts) (fixedpoint.Fixed, error) {
	if err := opts.validate(); err != nil {
		return fixedpoint.Zero, err
	}
	return l.expectedValue(opts.Min, opts.Max, opts.Weights)
}

// NormalWeights seeds bins over [min, max] with mass distributed as a normal
// distribution with the given mean and standard deviation. Each bin gets
// mass * (Phi(z_hi) - Phi(z_lo)) rounded down, and the remainder goes to the
// heaviest bin.
func (l *L2AMM) NormalWeights(
	min, max uint64, bins int, mean, stddev fixedpoint.Fixed, mass uint64,
) ([]uint64, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("%w: no bins", ErrInvalidOutcome)
	}
	if min >= max {
		return nil, ErrInvalidRange
	}
	if stddev.Sign() <= 0 {
		return nil, fmt.Errorf("%w: standard deviation must be positive", fixedpoint.ErrInvalidInput)
	}
	if mass == 0 {
		return nil, ErrInvalidTradeAmount
	}

	edges, err := binEdges(min, max, bins)
	if err != nil {
		return nil, err
	}
	total, err := fixedpoint.FromUint64(mass)
	if err != nil {
		return nil, err
	}
	cdf := make([]fixedpoint.Fixed, 0, len(edges))
	for _, e := range edges {
		z, err := e.Sub(mean)
		if err != nil {
			return nil, err
		}
		if z, err = z.Div(stddev); err != nil {
			return nil, err
		}
		phi, err := l.tables.NormalCDF(z)
		if err != nil {
			return nil, err
		}
		cdf = append(cdf, phi)
	}

	weights := make([]uint64, bins)
	heaviest := 0
	var assigned uint64
	for i := range weights {
		p, err := cdf[i+1].Sub(cdf[i])
		if err != nil {
			return nil, err
		}
		w, err := total.Mul(p)
		if err != nil {
			return nil, err
		}
		if weights[i], err = w.ToUint64Floor(); err != nil {
			return nil, err
		}
		assigned += weights[i]
		if weights[i] > weights[heaviest] {
			heaviest = i
		}
	}
	if assigned > mass {
		return nil, fmt.Errorf("%w: seeded %d above mass %d", ErrInvalidMarketState, assigned, mass)
	}
	weights[heaviest] += mass - assigned
	return weights, nil
}

// normDelta returns k * (|to| - |from|) and |to|.
func (l *L2AMM) normDelta(
	opts L2AMMOpts, from, to []uint64,
) (fixedpoint.Fixed, fixedpoint.Fixed, error) {
	n0, err := l.Norm(from)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, err
	}
	n1, err := l.Norm(to)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, err
	}
	diff, err := n1.Sub(n0)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, err
	}
	k, err := fixedpoint.FromRatio(opts.K, fixedpoint.MaxBps)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, err
	}
	delta, err := k.Mul(diff)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, err
	}
	return delta, n1, nil
}

func (l *L2AMM) trade(
	opts L2AMMOpts, after []uint64, norm fixedpoint.Fixed, amountIn, amountOut, fee uint64,
) (*Trade, error) {
	ev, err := l.expectedValue(opts.Min, opts.Max, after)
	if err != nil {
		return nil, err
	}
	return &Trade{
		AmountIn:      amountIn,
		AmountOut:     amountOut,
		Fee:           fee,
		State:         after,
		ExpectedValue: ev,
		Norm:          norm,
	}, nil
}

func (l *L2AMM) expectedValue(min, max uint64, weights []uint64) (fixedpoint.Fixed, error) {
	edges, err := binEdges(min, max, len(weights))
	if err != nil {
		return fixedpoint.Zero, err
	}
	total, err := fixedpoint.SumUint64(weights)
	if err != nil {
		return fixedpoint.Zero, err
	}
	if total == 0 {
		sum, err := edges[0].Add(edges[len(edges)-1])
		if err != nil {
			return fixedpoint.Zero, err
		}
		return sum.Shr(1)
	}

	ev := fixedpoint.Zero
	for i, w := range weights {
		if w == 0 {
			continue
		}
		mid, err := edges[i].Add(edges[i+1])
		if err != nil {
			return fixedpoint.Zero, err
		}
		if mid, err = mid.Shr(1); err != nil {
			return fixedpoint.Zero, err
		}
		share, err := fixedpoint.FromRatio(w, total)
		if err != nil {
			return fixedpoint.Zero, err
		}
		term, err := mid.Mul(share)
		if err != nil {
			return fixedpoint.Zero, err
		}
		if ev, err = ev.Add(term); err != nil {
			return fixedpoint.Zero, err
		}
	}
	return ev, nil
}

// binEdges returns the bins+1 edges tiling [min, max]. The last edge is max
// itself so that the tiling is exact.
func binEdges(min, max uint64, bins int) ([]fixedpoint.Fixed, error) {
	lo, err := fixedpoint.FromUint64(min)
	if err != nil {
		return nil, err
	}
	hi, err := fixedpoint.FromUint64(max)
	if err != nil {
		return nil, err
	}
	width, err := fixedpoint.FromRatio(max-min, uint64(bins))
	if err != nil {
		return nil, err
	}

	edges := make([]fixedpoint.Fixed, 0, bins+1)
	for i := 0; i < bins; i++ {
		offset, err := width.Mul(fixedpoint.FromInt64(int64(i)))
		if err != nil {
			return nil, err
		}
		edge, err := lo.Add(offset)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return append(edges, hi), nil
}
