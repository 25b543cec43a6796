package formula

import (
	"fmt"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/mathutil"
)

// InvariantToleranceBps is the maximum relative decrease of the geometric
// mean of the reserves a trade may cause.
const InvariantToleranceBps = 1

// PMAMM is a constant-product style market maker over N outcome reserves.
// The invariant is the sum of the log reserves, equivalently their geometric
// mean, and the price of outcome i is (1/r_i) / sum_j (1/r_j).
//
// Buying outcome i with collateral a mints a complete set of a shares, adds
// them to every reserve and takes out of r_i whatever keeps the invariant.
// Every trade solves for a single unknown with the shared Newton-Raphson
// solver.
type PMAMM struct {
	tables *fixedpoint.Tables
}

// PMAMMOpts defines the pool state and trade parameters.
type PMAMMOpts struct {
	Reserves []uint64
	FeeBps   uint64
	Limits
}

func (o PMAMMOpts) validate() error {
	if err := validateReserves(o.Reserves); err != nil {
		return err
	}
	if err := fixedpoint.ValidateBps(o.FeeBps); err != nil {
		return err
	}
	return o.Limits.validate()
}

func validateReserves(reserves []uint64) error {
	if len(reserves) == 0 {
		return fmt.Errorf("%w: no outcomes", ErrInvalidOutcome)
	}
	for i, r := range reserves {
		if r == 0 {
			return fmt.Errorf("%w: reserve %d is empty", ErrInsufficientLiquidity, i)
		}
	}
	return nil
}

// LiquidityChange is the result of adding or removing PM-AMM liquidity.
type LiquidityChange struct {
	// Reserves after the change.
	Reserves []uint64
	// Amounts deposited to or withdrawn from each reserve.
	Amounts []uint64
	// Shares of LP supply minted or burned.
	Shares uint64
	// Refund is the part of a deposit that could not be split
	// proportionally.
	Refund uint64
}

// NewPMAMM returns an engine sharing the given lookup tables.
func NewPMAMM(tables *fixedpoint.Tables) *PMAMM {
	return &PMAMM{tables}
}

// Prices returns the outcome prices, which add up to 1.
func (p *PMAMM) Prices(reserves []uint64) ([]fixedpoint.Fixed, error) {
	if err := validateReserves(reserves); err != nil {
		return nil, err
	}

	var largest uint64
	for _, r := range reserves {
		if r > largest {
			largest = r
		}
	}
	// 1/r_i is scaled by the largest reserve to keep every term >= 1.
	weights := make([]fixedpoint.Fixed, 0, len(reserves))
	sum := fixedpoint.Zero
	for _, r := range reserves {
		w, err := fixedpoint.FromRatio(largest, r)
		if err != nil {
			return nil, err
		}
		if sum, err = sum.Add(w); err != nil {
			return nil, err
		}
		weights = append(weights, w)
	}
	for i, w := range weights {
		price, err := w.Div(sum)
		if err != nil {
			return nil, err
		}
		weights[i] = price
	}
	return weights, nil
}

// Invariant returns sum_i ln(r_i).
func (p *PMAMM) Invariant(reserves []uint64) (fixedpoint.Fixed, error) {
	if err := validateReserves(reserves); err != nil {
		return fixedpoint.Zero, err
	}
	sum := fixedpoint.Zero
	for _, r := range reserves {
		lnR, err := p.lnUint64(r)
		if err != nil {
			return fixedpoint.Zero, err
		}
		if sum, err = sum.Add(lnR); err != nil {
			return fixedpoint.Zero, err
		}
	}
	return sum, nil
}

// VerifyInvariant makes sure that the geometric mean of after is not lower
// than that of before by more than InvariantToleranceBps.
func (p *PMAMM) VerifyInvariant(before, after []uint64) error {
	if len(before) != len(after) {
		return fmt.Errorf("%w: outcome count changed", ErrInvalidMarketState)
	}
	if err := validateReserves(after); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMarketState, err)
	}
	i0, err := p.Invariant(before)
	if err != nil {
		return err
	}
	i1, err := p.Invariant(after)
	if err != nil {
		return err
	}

	keep, err := fixedpoint.FromRatio(fixedpoint.MaxBps-InvariantToleranceBps, fixedpoint.MaxBps)
	if err != nil {
		return err
	}
	lnKeep, err := p.tables.Ln(keep)
	if err != nil {
		return err
	}
	slack, err := lnKeep.Mul(fixedpoint.FromInt64(int64(len(before))))
	if err != nil {
		return err
	}
	floor, err := i0.Add(slack)
	if err != nil {
		return err
	}
	if i1.LessThan(floor) {
		return fmt.Errorf(
			"%w: log invariant went from %s to %s", ErrInvalidMarketState, i0, i1,
		)
	}
	return nil
}

// BuyGivenIn spends amountIn collateral, fee included, on shares of outcome.
// Net of fees the amount is added to every reserve and the new r_i is solved
// from ln(r_i') = I - sum_{j!=i} ln(r_j + a), rounded up and never below 1.
// Every solve stops once the unknown is known within one base unit.
func (p *PMAMM) BuyGivenIn(opts PMAMMOpts, outcome int, amountIn uint64) (*Trade, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := checkOutcome(outcome, len(opts.Reserves)); err != nil {
		return nil, err
	}
	net, fee, err := mathutil.LessFee(amountIn, opts.FeeBps)
	if err != nil {
		return nil, err
	}
	if net == 0 {
		return nil, ErrInvalidTradeAmount
	}

	reserves := opts.Reserves
	i0, err := p.Invariant(reserves)
	if err != nil {
		return nil, err
	}
	after := cloneUint64(reserves)
	target := i0
	// The product form gives the starting point, Newton refines it against
	// the table based invariant.
	guess := reserves[outcome]
	for j, r := range reserves {
		if j == outcome {
			continue
		}
		if after[j], err = fixedpoint.AddUint64(r, net); err != nil {
			return nil, err
		}
		lnR, err := p.lnUint64(after[j])
		if err != nil {
			return nil, err
		}
		if target, err = target.Sub(lnR); err != nil {
			return nil, err
		}
		if guess, err = fixedpoint.MulDiv(guess, r, after[j]); err != nil {
			return nil, err
		}
	}
	if guess == 0 {
		guess = 1
	}

	x0, err := fixedpoint.FromUint64(guess)
	if err != nil {
		return nil, err
	}
	hi, err := fixedpoint.FromUint64(reserves[outcome] + 1)
	if err != nil {
		return nil, err
	}
	f := func(y fixedpoint.Fixed) (fixedpoint.Fixed, fixedpoint.Fixed, error) {
		lnY, err := p.tables.Ln(y)
		if err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
		fy, err := lnY.Sub(target)
		if err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
		dfy, err := fixedpoint.One.Div(y)
		if err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
		return fy, dfy, nil
	}
	root, iterations, err := solveNewton(
		f, x0, bracket{lo: fixedpoint.Zero, hi: hi, increasing: true, unit: fixedpoint.One},
		tradeTolerance,
	)
	if err != nil {
		return nil, err
	}

	newReserve, err := root.ToUint64Ceil()
	if err != nil {
		return nil, err
	}
	// Spends much larger than the pool solve for a reserve below one unit.
	if newReserve == 0 {
		newReserve = 1
	}
	minted, err := fixedpoint.AddUint64(reserves[outcome], net)
	if err != nil {
		return nil, err
	}
	if newReserve >= minted {
		return nil, ErrInvalidTradeAmount
	}
	shares := minted - newReserve
	after[outcome] = newReserve

	return p.finalizeBuy(opts, outcome, after, amountIn, net, shares, fee, iterations)
}

// BuyGivenOut prices an exact amount of shares of outcome. The net
// collateral a solves sum_{j!=i} ln(r_j + a) + ln(r_i + a - s) = I, is
// rounded up and grossed up for the fee.
func (p *PMAMM) BuyGivenOut(opts PMAMMOpts, outcome int, shares uint64) (*Trade, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := checkOutcome(outcome, len(opts.Reserves)); err != nil {
		return nil, err
	}
	if shares == 0 {
		return nil, ErrInvalidTradeAmount
	}

	reserves := opts.Reserves
	i0, err := p.Invariant(reserves)
	if err != nil {
		return nil, err
	}
	r, err := toFixed(reserves)
	if err != nil {
		return nil, err
	}
	s, err := fixedpoint.FromUint64(shares)
	if err != nil {
		return nil, err
	}
	// r_i + a - s, written as r_i - s + a.
	shifted := append(make([]fixedpoint.Fixed, 0, len(r)), r...)
	if shifted[outcome], err = r[outcome].Sub(s); err != nil {
		return nil, err
	}

	lo := fixedpoint.Zero
	if shifted[outcome].IsNegative() {
		if lo, err = shifted[outcome].Neg(); err != nil {
			return nil, err
		}
	}
	// Newton climbs monotonically from any point left of the root. Two lower
	// bounds of the cost give the start: paying the spot price for every
	// share, and the residual r_i + a - s being at least what is left of r_i
	// when s collateral is minted into the other reserves.
	spot, err := p.Prices(reserves)
	if err != nil {
		return nil, err
	}
	x0, err := s.Mul(spot[outcome])
	if err != nil {
		return nil, err
	}
	residual := reserves[outcome]
	for j, rj := range reserves {
		if j == outcome {
			continue
		}
		minted, err := fixedpoint.AddUint64(rj, shares)
		if err != nil {
			return nil, err
		}
		if residual, err = fixedpoint.MulDiv(residual, rj, minted); err != nil {
			return nil, err
		}
	}
	if residual == 0 {
		residual = 1
	}
	bought, err := fixedpoint.AddUint64(residual, shares)
	if err != nil {
		return nil, err
	}
	if bought > reserves[outcome] {
		a0, err := fixedpoint.FromUint64(bought - reserves[outcome])
		if err != nil {
			return nil, err
		}
		x0 = fixedpoint.Max(x0, a0)
	}
	x0 = fixedpoint.Min(x0, s)

	f := func(a fixedpoint.Fixed) (fixedpoint.Fixed, fixedpoint.Fixed, error) {
		return p.shiftedInvariant(shifted, a, i0, true)
	}
	root, iterations, err := solveNewton(
		f, x0, bracket{lo: lo, hi: s, increasing: true, unit: fixedpoint.One}, tradeTolerance,
	)
	if err != nil {
		return nil, err
	}

	net, err := root.ToUint64Ceil()
	if err != nil {
		return nil, err
	}
	after := cloneUint64(reserves)
	for j := range after {
		if after[j], err = fixedpoint.AddUint64(after[j], net); err != nil {
			return nil, err
		}
	}
	if after[outcome], err = fixedpoint.SubUint64(after[outcome], shares); err != nil {
		return nil, err
	}
	gross, fee, err := mathutil.GrossUpForFee(net, opts.FeeBps)
	if err != nil {
		return nil, err
	}

	return p.finalizeBuy(opts, outcome, after, gross, net, shares, fee, iterations)
}

// Sell returns shares of outcome to the pool for collateral. The gross
// payout a solves sum_{j!=i} ln(r_j - a) + ln(r_i + s - a) = I, is rounded
// down and the fee is taken out of it.
func (p *PMAMM) Sell(opts PMAMMOpts, outcome int, shares uint64) (*Trade, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := checkOutcome(outcome, len(opts.Reserves)); err != nil {
		return nil, err
	}
	if shares == 0 {
		return nil, ErrInvalidTradeAmount
	}

	reserves := opts.Reserves
	i0, err := p.Invariant(reserves)
	if err != nil {
		return nil, err
	}
	r, err := toFixed(reserves)
	if err != nil {
		return nil, err
	}
	s, err := fixedpoint.FromUint64(shares)
	if err != nil {
		return nil, err
	}
	if r[outcome], err = r[outcome].Add(s); err != nil {
		return nil, err
	}
	// The payout can never drain any reserve.
	hi := r[outcome]
	for _, rj := range r {
		hi = fixedpoint.Min(hi, rj)
	}

	f := func(a fixedpoint.Fixed) (fixedpoint.Fixed, fixedpoint.Fixed, error) {
		return p.shiftedInvariant(r, a, i0, false)
	}
	root, iterations, err := solveNewton(
		f, fixedpoint.Zero, bracket{lo: fixedpoint.Zero, hi: hi, increasing: false, unit: fixedpoint.One},
		tradeTolerance,
	)
	if err != nil {
		return nil, err
	}

	gross, err := root.ToUint64Floor()
	if err != nil {
		return nil, err
	}
	if gross == 0 {
		return nil, ErrInvalidTradeAmount
	}
	after := cloneUint64(reserves)
	if after[outcome], err = fixedpoint.AddUint64(after[outcome], shares); err != nil {
		return nil, err
	}
	for j := range after {
		if after[j], err = fixedpoint.SubUint64(after[j], gross); err != nil {
			return nil, err
		}
	}
	if err := p.VerifyInvariant(reserves, after); err != nil {
		return nil, err
	}

	amountOut, fee, err := mathutil.LessFee(gross, opts.FeeBps)
	if err != nil {
		return nil, err
	}
	if err := opts.checkPayout(amountOut); err != nil {
		return nil, err
	}
	spot, err := p.Prices(reserves)
	if err != nil {
		return nil, err
	}
	slippage, err := slippageBps(gross, shares, spot[outcome], false)
	if err != nil {
		return nil, err
	}
	if err := opts.checkSlippage(slippage); err != nil {
		return nil, err
	}
	prices, err := p.Prices(after)
	if err != nil {
		return nil, err
	}

	return &Trade{
		AmountIn:    shares,
		AmountOut:   amountOut,
		Fee:         fee,
		SlippageBps: slippage,
		Iterations:  iterations,
		State:       after,
		Prices:      prices,
	}, nil
}

// AddLiquidity splits amount across the reserves proportionally to their
// size, so that prices are unchanged, and mints LP shares proportionally to
// the contribution. The first deposit mints as many shares as collateral.
func (p *PMAMM) AddLiquidity(reserves []uint64, supply, amount uint64) (*LiquidityChange, error) {
	if err := validateReserves(reserves); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrInvalidTradeAmount
	}
	total, err := fixedpoint.SumUint64(reserves)
	if err != nil {
		return nil, err
	}

	after := cloneUint64(reserves)
	amounts := make([]uint64, len(reserves))
	var deposited uint64
	for i, r := range reserves {
		d, err := fixedpoint.MulDiv(amount, r, total)
		if err != nil {
			return nil, err
		}
		if after[i], err = fixedpoint.AddUint64(r, d); err != nil {
			return nil, err
		}
		amounts[i] = d
		deposited += d
	}
	if deposited == 0 {
		return nil, ErrInvalidTradeAmount
	}

	minted := deposited
	if supply > 0 {
		if minted, err = fixedpoint.MulDiv(deposited, supply, total); err != nil {
			return nil, err
		}
	}
	if minted == 0 {
		return nil, ErrInvalidTradeAmount
	}

	return &LiquidityChange{
		Reserves: after,
		Amounts:  amounts,
		Shares:   minted,
		Refund:   amount - deposited,
	}, nil
}

// RemoveLiquidity burns shares of the LP supply and withdraws the same
// fraction of every reserve, rounded down.
func (p *PMAMM) RemoveLiquidity(reserves []uint64, supply, shares uint64) (*LiquidityChange, error) {
	if err := validateReserves(reserves); err != nil {
		return nil, err
	}
	if shares == 0 {
		return nil, ErrInvalidTradeAmount
	}
	if shares > supply {
		return nil, fmt.Errorf(
			"%w: burning %d of %d LP shares", ErrInsufficientLiquidity, shares, supply,
		)
	}

	after := cloneUint64(reserves)
	amounts := make([]uint64, len(reserves))
	for i, r := range reserves {
		out, err := fixedpoint.MulDiv(r, shares, supply)
		if err != nil {
			return nil, err
		}
		amounts[i] = out
		after[i] = r - out
	}

	return &LiquidityChange{
		Reserves: after,
		Amounts:  amounts,
		Shares:   shares,
	}, nil
}

// SolveReservesForPrices returns reserves whose prices match pricesBps and
// whose geometric mean is liquidity. Reserves are r_i = c / p_i where c
// solves ln(c) = ln(L) + mean(ln p_i). The solve starts from L * min(p) and
// the number of Newton updates is returned along with the reserves.
func (p *PMAMM) SolveReservesForPrices(pricesBps []uint64, liquidity uint64) ([]uint64, int, error) {
	if len(pricesBps) == 0 {
		return nil, 0, ErrInvalidPrices
	}
	if liquidity == 0 {
		return nil, 0, ErrInvalidLiquidity
	}
	sum, err := fixedpoint.SumUint64(pricesBps)
	if err != nil || sum != fixedpoint.MaxBps {
		return nil, 0, fmt.Errorf("%w: got %d bps", ErrInvalidPrices, sum)
	}

	l, err := fixedpoint.FromUint64(liquidity)
	if err != nil {
		return nil, 0, err
	}
	target, err := p.tables.Ln(l)
	if err != nil {
		return nil, 0, err
	}

	prices := make([]fixedpoint.Fixed, 0, len(pricesBps))
	lnSum := fixedpoint.Zero
	minP, maxP := fixedpoint.One, fixedpoint.Zero
	for _, bps := range pricesBps {
		if bps == 0 {
			return nil, 0, ErrInvalidPrices
		}
		price, err := fixedpoint.FromBps(bps)
		if err != nil {
			return nil, 0, err
		}
		lnP, err := p.tables.Ln(price)
		if err != nil {
			return nil, 0, err
		}
		if lnSum, err = lnSum.Add(lnP); err != nil {
			return nil, 0, err
		}
		prices = append(prices, price)
		minP = fixedpoint.Min(minP, price)
		maxP = fixedpoint.Max(maxP, price)
	}
	lnMean, err := lnSum.Div(fixedpoint.FromInt64(int64(len(prices))))
	if err != nil {
		return nil, 0, err
	}
	if target, err = target.Add(lnMean); err != nil {
		return nil, 0, err
	}

	x0, err := l.Mul(minP)
	if err != nil {
		return nil, 0, err
	}
	hi, err := l.Mul(maxP)
	if err != nil {
		return nil, 0, err
	}
	if hi, err = hi.Add(fixedpoint.One); err != nil {
		return nil, 0, err
	}
	f := func(c fixedpoint.Fixed) (fixedpoint.Fixed, fixedpoint.Fixed, error) {
		lnC, err := p.tables.Ln(c)
		if err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
		fc, err := lnC.Sub(target)
		if err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
		dfc, err := fixedpoint.One.Div(c)
		if err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
		return fc, dfc, nil
	}
	c, iterations, err := solveNewton(
		f, x0, bracket{lo: fixedpoint.Zero, hi: hi, increasing: true}, discoveryTolerance,
	)
	if err != nil {
		return nil, iterations, err
	}

	reserves := make([]uint64, 0, len(prices))
	for _, price := range prices {
		r, err := c.Div(price)
		if err != nil {
			return nil, iterations, err
		}
		ri, err := r.ToUint64Floor()
		if err != nil {
			return nil, iterations, err
		}
		if ri == 0 {
			return nil, iterations, fmt.Errorf("%w: liquidity too low for prices", ErrInvalidPrices)
		}
		reserves = append(reserves, ri)
	}
	return reserves, iterations, nil
}

func (p *PMAMM) finalizeBuy(
	opts PMAMMOpts, outcome int, after []uint64,
	amountIn, net, shares, fee uint64, iterations int,
) (*Trade, error) {
	if err := p.VerifyInvariant(opts.Reserves, after); err != nil {
		return nil, err
	}
	if err := opts.checkCost(amountIn); err != nil {
		return nil, err
	}
	spot, err := p.Prices(opts.Reserves)
	if err != nil {
		return nil, err
	}
	slippage, err := slippageBps(net, shares, spot[outcome], true)
	if err != nil {
		return nil, err
	}
	if err := opts.checkSlippage(slippage); err != nil {
		return nil, err
	}
	prices, err := p.Prices(after)
	if err != nil {
		return nil, err
	}

	return &Trade{
		AmountIn:    amountIn,
		AmountOut:   shares,
		Fee:         fee,
		SlippageBps: slippage,
		Iterations:  iterations,
		State:       after,
		Prices:      prices,
	}, nil
}

// shiftedInvariant evaluates f(a) = sum_j ln(base_j +/- a) - i0 and its
// derivative.
func (p *PMAMM) shiftedInvariant(
	base []fixedpoint.Fixed, a, i0 fixedpoint.Fixed, add bool,
) (fixedpoint.Fixed, fixedpoint.Fixed, error) {
	fa, dfa := fixedpoint.Zero, fixedpoint.Zero
	for _, b := range base {
		var (
			v   fixedpoint.Fixed
			err error
		)
		if add {
			v, err = b.Add(a)
		} else {
			v, err = b.Sub(a)
		}
		if err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
		lnV, err := p.tables.Ln(v)
		if err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
		inv, err := fixedpoint.One.Div(v)
		if err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
		if fa, err = fa.Add(lnV); err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
		if dfa, err = dfa.Add(inv); err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
	}
	fa, err := fa.Sub(i0)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, err
	}
	if !add {
		if dfa, err = dfa.Neg(); err != nil {
			return fixedpoint.Zero, fixedpoint.Zero, err
		}
	}
	return fa, dfa, nil
}

func (p *PMAMM) lnUint64(v uint64) (fixedpoint.Fixed, error) {
	f, err := fixedpoint.FromUint64(v)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return p.tables.Ln(f)
}
