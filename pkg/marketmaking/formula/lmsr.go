package formula

import (
	"fmt"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/mathutil"
)

// LMSR prices discrete outcome markets with Hanson's logarithmic market
// scoring rule:
//
//	C(q) = b * ln(sum_i exp(q_i / b))
//	p_i  = exp(q_i / b) / sum_j exp(q_j / b)
//
// Cost is computed with a max-shift so that every exponent is <= 0.
type LMSR struct {
	tables *fixedpoint.Tables
}

// LMSROpts defines the pool state and trade parameters.
type LMSROpts struct {
	// Quantities are the outstanding shares of each outcome.
	Quantities []uint64
	// Liquidity is the b parameter, in collateral units.
	Liquidity uint64
	FeeBps    uint64
	Limits
}

func (o LMSROpts) validate() error {
	if len(o.Quantities) == 0 {
		return fmt.Errorf("%w: no outcomes", ErrInvalidOutcome)
	}
	if o.Liquidity == 0 {
		return ErrInvalidLiquidity
	}
	if err := fixedpoint.ValidateBps(o.FeeBps); err != nil {
		return err
	}
	return o.Limits.validate()
}

// NewLMSR returns an engine sharing the given lookup tables.
func NewLMSR(tables *fixedpoint.Tables) *LMSR {
	return &LMSR{tables}
}

// Prices returns the outcome prices, which add up to 1.
func (l *LMSR) Prices(opts LMSROpts) ([]fixedpoint.Fixed, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	q, b, err := l.state(opts)
	if err != nil {
		return nil, err
	}
	return l.prices(q, b)
}

// Cost returns C(q) for the current quantities.
func (l *LMSR) Cost(opts LMSROpts) (fixedpoint.Fixed, error) {
	if err := opts.validate(); err != nil {
		return fixedpoint.Zero, err
	}
	q, b, err := l.state(opts)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return l.cost(q, b)
}

// Buy prices the purchase of an exact amount of shares of outcome. The cost
// C(q') - C(q) is rounded up and the fee is charged on top of it.
func (l *LMSR) Buy(opts LMSROpts, outcome int, shares uint64) (*Trade, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	trade, spot, err := l.buy(opts, outcome, shares)
	if err != nil {
		return nil, err
	}
	if err := opts.checkCost(trade.AmountIn); err != nil {
		return nil, err
	}
	if trade.SlippageBps, err = slippageBps(
		trade.AmountIn-trade.Fee, shares, spot, true,
	); err != nil {
		return nil, err
	}
	if err := opts.checkSlippage(trade.SlippageBps); err != nil {
		return nil, err
	}
	return trade, nil
}

// BuyGivenIn spends at most amountIn collateral, fee included, on shares of
// outcome. The share amount is found with Newton-Raphson on
// C(q + s*e_i) - C(q) = budget, whose derivative is the outcome price.
func (l *LMSR) BuyGivenIn(opts LMSROpts, outcome int, amountIn uint64) (*Trade, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := checkOutcome(outcome, len(opts.Quantities)); err != nil {
		return nil, err
	}

	costBudget, err := fixedpoint.MulDiv(amountIn, fixedpoint.MaxBps, fixedpoint.MaxBps+opts.FeeBps)
	if err != nil {
		return nil, err
	}
	// Two units of headroom absorb the solver tolerance and the rounding up
	// of the final cost.
	if costBudget <= 2 {
		return nil, ErrInvalidTradeAmount
	}
	target, err := fixedpoint.FromUint64(costBudget - 2)
	if err != nil {
		return nil, err
	}

	q, b, err := l.state(opts)
	if err != nil {
		return nil, err
	}
	c0, err := l.cost(q, b)
	if err != nil {
		return nil, err
	}
	prices, err := l.prices(q, b)
	if err != nil {
		return nil, err
	}
	hi, err := target.Div(prices[outcome])
	if err != nil {
		return nil, err
	}
	if hi, err = hi.Add(fixedpoint.One); err != nil {
		return nil, err
	}

	moved := append(make([]fixedpoint.Fixed, 0, len(q)), q...)
	f := func(s fixedpoint.Fixed) (fixedpoint.Fixed, fixedpoint.Fixed, error) {
		qi, err := q[outcome].Add(s)
		if err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
		moved[outcome] = qi
		c, err := l.cost(moved, b)
		if err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
		if c, err = c.Sub(c0); err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
		if c, err = c.Sub(target); err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
		p, err := l.prices(moved, b)
		if err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
		return c, p[outcome], nil
	}

	// The interpolated cost can grow slightly slower than the spot price, so
	// budget/price may still fall short of the root.
	br, err := widenBracket(f, bracket{lo: fixedpoint.Zero, hi: hi, increasing: true})
	if err != nil {
		return nil, err
	}
	root, iterations, err := solveNewton(
		f, fixedpoint.Max(target, br.lo), br, unitTolerance,
	)
	if err != nil {
		return nil, err
	}
	shares, err := root.ToUint64Floor()
	if err != nil {
		return nil, err
	}
	if shares == 0 {
		return nil, ErrInvalidTradeAmount
	}

	trade, spot, err := l.buy(opts, outcome, shares)
	if err != nil {
		return nil, err
	}
	if trade.AmountIn > amountIn {
		return nil, fmt.Errorf(
			"%w: solved cost %d above amount %d", ErrInvalidTradeAmount, trade.AmountIn, amountIn,
		)
	}
	trade.Iterations = iterations
	if trade.SlippageBps, err = slippageBps(
		trade.AmountIn-trade.Fee, shares, spot, true,
	); err != nil {
		return nil, err
	}
	if err := opts.checkSlippage(trade.SlippageBps); err != nil {
		return nil, err
	}
	return trade, nil
}

// Sell prices the sale of shares of outcome back to the pool. The payout
// C(q) - C(q') is rounded down and the fee is taken out of it.
func (l *LMSR) Sell(opts LMSROpts, outcome int, shares uint64) (*Trade, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := checkOutcome(outcome, len(opts.Quantities)); err != nil {
		return nil, err
	}
	if shares == 0 {
		return nil, ErrInvalidTradeAmount
	}
	if shares > opts.Quantities[outcome] {
		return nil, fmt.Errorf(
			"%w: selling %d of %d outstanding", ErrInsufficientBalance, shares, opts.Quantities[outcome],
		)
	}

	after := cloneUint64(opts.Quantities)
	after[outcome] -= shares
	delta, spot, prices, err := l.costDelta(opts, after, outcome)
	if err != nil {
		return nil, err
	}
	if delta, err = delta.Neg(); err != nil {
		return nil, err
	}
	if delta.Sign() <= 0 {
		return nil, ErrInvalidTradeAmount
	}
	payout, err := delta.ToUint64Floor()
	if err != nil {
		return nil, err
	}
	amountOut, fee, err := mathutil.LessFee(payout, opts.FeeBps)
	if err != nil {
		return nil, err
	}
	if err := opts.checkPayout(amountOut); err != nil {
		return nil, err
	}
	slippage, err := slippageBps(payout, shares, spot, false)
	if err != nil {
		return nil, err
	}
	if err := opts.checkSlippage(slippage); err != nil {
		return nil, err
	}

	return &Trade{
		AmountIn:    shares,
		AmountOut:   amountOut,
		Fee:         fee,
		SlippageBps: slippage,
		State:       after,
		Prices:      prices,
	}, nil
}

// buy prices an exact share purchase without applying limits and returns
// the pre-trade spot price of outcome along with the trade.
func (l *LMSR) buy(opts LMSROpts, outcome int, shares uint64) (*Trade, fixedpoint.Fixed, error) {
	if err := checkOutcome(outcome, len(opts.Quantities)); err != nil {
		return nil, fixedpoint.Zero, err
	}
	if shares == 0 {
		return nil, fixedpoint.Zero, ErrInvalidTradeAmount
	}

	after := cloneUint64(opts.Quantities)
	qi, err := fixedpoint.AddUint64(after[outcome], shares)
	if err != nil {
		return nil, fixedpoint.Zero, err
	}
	after[outcome] = qi

	delta, spot, prices, err := l.costDelta(opts, after, outcome)
	if err != nil {
		return nil, fixedpoint.Zero, err
	}
	if delta.Sign() <= 0 {
		return nil, fixedpoint.Zero, ErrInvalidTradeAmount
	}
	cost, err := delta.ToUint64Ceil()
	if err != nil {
		return nil, fixedpoint.Zero, err
	}
	amountIn, fee, err := mathutil.PlusFee(cost, opts.FeeBps)
	if err != nil {
		return nil, fixedpoint.Zero, err
	}

	return &Trade{
		AmountIn:  amountIn,
		AmountOut: shares,
		Fee:       fee,
		State:     after,
		Prices:    prices,
	}, spot, nil
}

// costDelta returns C(after) - C(before), the spot price of outcome before
// the trade and the prices after it.
func (l *LMSR) costDelta(
	opts LMSROpts, after []uint64, outcome int,
) (fixedpoint.Fixed, fixedpoint.Fixed, []fixedpoint.Fixed, error) {
	q, b, err := l.state(opts)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, nil, err
	}
	q1, err := toFixed(after)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, nil, err
	}

	c0, err := l.cost(q, b)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, nil, err
	}
	c1, err := l.cost(q1, b)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, nil, err
	}
	delta, err := c1.Sub(c0)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, nil, err
	}

	before, err := l.prices(q, b)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, nil, err
	}
	prices, err := l.prices(q1, b)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, nil, err
	}
	return delta, before[outcome], prices, nil
}

func (l *LMSR) state(opts LMSROpts) ([]fixedpoint.Fixed, fixedpoint.Fixed, error) {
	q, err := toFixed(opts.Quantities)
	if err != nil {
		return nil, fixedpoint.Zero, err
	}
	b, err := fixedpoint.FromUint64(opts.Liquidity)
	if err != nil {
		return nil, fixedpoint.Zero, err
	}
	return q, b, nil
}

// exponents returns exp(q_i/b - m) for each outcome, their sum and the shift
// m = max(q_i/b).
func (l *LMSR) exponents(
	q []fixedpoint.Fixed, b fixedpoint.Fixed,
) ([]fixedpoint.Fixed, fixedpoint.Fixed, fixedpoint.Fixed, error) {
	scaled := make([]fixedpoint.Fixed, 0, len(q))
	shift := fixedpoint.MinValue
	for _, qi := range q {
		x, err := qi.Div(b)
		if err != nil {
			return nil, fixedpoint.Zero, fixedpoint.Zero, err
		}
		scaled = append(scaled, x)
		shift = fixedpoint.Max(shift, x)
	}

	sum := fixedpoint.Zero
	for i, x := range scaled {
		arg, err := x.Sub(shift)
		if err != nil {
			return nil, fixedpoint.Zero, fixedpoint.Zero, err
		}
		e, err := l.tables.Exp(arg)
		if err != nil {
			return nil, fixedpoint.Zero, fixedpoint.Zero, err
		}
		scaled[i] = e
		if sum, err = sum.Add(e); err != nil {
			return nil, fixedpoint.Zero, fixedpoint.Zero, err
		}
	}
	return scaled, sum, shift, nil
}

func (l *LMSR) cost(q []fixedpoint.Fixed, b fixedpoint.Fixed) (fixedpoint.Fixed, error) {
	_, sum, shift, err := l.exponents(q, b)
	if err != nil {
		return fixedpoint.Zero, err
	}
	lnSum, err := l.tables.Ln(sum)
	if err != nil {
		return fixedpoint.Zero, err
	}
	total, err := shift.Add(lnSum)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return b.Mul(total)
}

func (l *LMSR) prices(q []fixedpoint.Fixed, b fixedpoint.Fixed) ([]fixedpoint.Fixed, error) {
	exps, sum, _, err := l.exponents(q, b)
	if err != nil {
		return nil, err
	}
	for i, e := range exps {
		p, err := e.Div(sum)
		if err != nil {
			return nil, err
		}
		exps[i] = p
	}
	return exps, nil
}
