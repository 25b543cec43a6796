package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/marketmaking"
	"github.com/gary322/flashbets-sub011/pkg/marketmaking/formula"
	"github.com/gary322/flashbets-sub011/pkg/mathutil"
	"github.com/google/uuid"
)

// MarketStatus ...
type MarketStatus int

const (
	MarketStatusActive MarketStatus = iota
	MarketStatusHalted
	MarketStatusResolved
)

func (s MarketStatus) String() string {
	switch s {
	case MarketStatusActive:
		return "ACTIVE"
	case MarketStatusHalted:
		return "HALTED"
	case MarketStatusResolved:
		return "RESOLVED"
	default:
		return "UNKNOWN"
	}
}

// MaxCoverage bounds the coverage ratio reported for a market, and is the
// coverage of a market with no open interest.
const MaxCoverage = 1000

// LMSRPool is the state of a market priced by LMSR.
type LMSRPool struct {
	// Outstanding shares of each outcome.
	Quantities []uint64
	// The b parameter.
	Liquidity uint64
}

// PMAMMPool is the state of a market priced by PM-AMM.
type PMAMMPool struct {
	Reserves []uint64
	// Total supply of liquidity provider shares.
	LPSupply uint64
}

// L2Pool is the state of a continuous market priced by L2-AMM.
type L2Pool struct {
	Min     uint64
	Max     uint64
	Weights []uint64
	// K is the liquidity parameter in basis points.
	K uint64
}

// Market defines the Market entity data structure. Exactly one of the pool
// pointers is set, the one matching AMMType.
type Market struct {
	ID    string
	Title string
	// Pricing engine chosen at creation.
	AMMType marketmaking.AMMType
	// Number of outcomes, or bins for continuous markets.
	Outcomes uint32
	// Percentage fee expressed in basis points. Zero means the fee is
	// elastic and derived from the market coverage.
	FeeBps         uint64
	Status         MarketStatus
	WinningOutcome int
	ExpiresAt      int64
	CreatedAt      int64
	// Collateral held by the market pool.
	Collateral uint64
	// Notional of the leveraged positions open on the market.
	OpenInterest uint64

	LMSR  *LMSRPool
	PMAMM *PMAMMPool
	L2    *L2Pool
}

// MarketSetup holds the parameters of a new market.
type MarketSetup struct {
	Title    string
	Outcomes uint32
	// Continuous requests a range market priced by L2-AMM.
	Continuous          bool
	ExpiresAt           time.Time
	NearExpiryThreshold time.Duration
	// Liquidity is the LMSR b parameter, the PM-AMM geometric mean of the
	// reserves or the L2-AMM k in basis points. It is also the initial
	// collateral of the pool.
	Liquidity uint64
	FeeBps    uint64
	// InitialPricesBps optionally seeds PM-AMM reserves. Uniform when empty.
	InitialPricesBps []uint64
	// Range of a continuous market.
	RangeMin uint64
	RangeMax uint64
	// Optional normal prior of a continuous market: Mass is spread over the
	// bins following N(Mean, StdDev).
	Mean   fixedpoint.Fixed
	StdDev fixedpoint.Fixed
	Mass   uint64
}

func (s MarketSetup) validate(now time.Time) error {
	if strings.TrimSpace(s.Title) == "" {
		return ErrMarketInvalidTitle
	}
	if !s.ExpiresAt.After(now) {
		return ErrMarketInvalidExpiry
	}
	if s.Liquidity == 0 {
		return formula.ErrInvalidLiquidity
	}
	if s.Outcomes == 0 || s.Outcomes > marketmaking.MaxOutcomes {
		return marketmaking.ErrInvalidOutcomeCount
	}
	return fixedpoint.ValidateBps(s.FeeBps)
}

// NewMarket returns a new active market priced by the engine that
// marketmaking.SelectAMM picks for the given setup.
func NewMarket(
	engines *marketmaking.Engines, setup MarketSetup, now time.Time,
) (*Market, error) {
	if err := setup.validate(now); err != nil {
		return nil, err
	}
	ammType, err := marketmaking.SelectAMM(marketmaking.SelectOpts{
		Outcomes:            setup.Outcomes,
		Continuous:          setup.Continuous,
		TimeToExpiry:        setup.ExpiresAt.Sub(now),
		NearExpiryThreshold: setup.NearExpiryThreshold,
	})
	if err != nil {
		return nil, err
	}

	switch ammType {
	case marketmaking.AMMTypeLMSR:
		return NewLMSRMarket(setup, now)
	case marketmaking.AMMTypePMAMM:
		return NewPMAMMMarket(engines, setup, now)
	default:
		return NewL2AMMMarket(engines, setup, now)
	}
}

// NewLMSRMarket returns a new market priced by LMSR with all quantities at
// zero.
func NewLMSRMarket(setup MarketSetup, now time.Time) (*Market, error) {
	if err := setup.validate(now); err != nil {
		return nil, err
	}
	m := newMarket(setup, now, marketmaking.AMMTypeLMSR)
	m.LMSR = &LMSRPool{
		Quantities: make([]uint64, setup.Outcomes),
		Liquidity:  setup.Liquidity,
	}
	return m, nil
}

// NewPMAMMMarket returns a new market priced by PM-AMM. Without initial
// prices every reserve equals the liquidity, otherwise reserves are solved
// for the requested prices.
func NewPMAMMMarket(
	engines *marketmaking.Engines, setup MarketSetup, now time.Time,
) (*Market, error) {
	if err := setup.validate(now); err != nil {
		return nil, err
	}

	var reserves []uint64
	if len(setup.InitialPricesBps) > 0 {
		if len(setup.InitialPricesBps) != int(setup.Outcomes) {
			return nil, fmt.Errorf(
				"%w: got %d initial prices for %d outcomes",
				formula.ErrInvalidPrices, len(setup.InitialPricesBps), setup.Outcomes,
			)
		}
		r, _, err := engines.PMAMM.SolveReservesForPrices(
			setup.InitialPricesBps, setup.Liquidity,
		)
		if err != nil {
			return nil, err
		}
		reserves = r
	} else {
		reserves = make([]uint64, setup.Outcomes)
		for i := range reserves {
			reserves[i] = setup.Liquidity
		}
	}

	supply, err := fixedpoint.SumUint64(reserves)
	if err != nil {
		return nil, err
	}

	m := newMarket(setup, now, marketmaking.AMMTypePMAMM)
	m.PMAMM = &PMAMMPool{Reserves: reserves, LPSupply: supply}
	return m, nil
}

// NewL2AMMMarket returns a new continuous market priced by L2-AMM, with
// Outcomes bins over [RangeMin, RangeMax].
func NewL2AMMMarket(
	engines *marketmaking.Engines, setup MarketSetup, now time.Time,
) (*Market, error) {
	if err := setup.validate(now); err != nil {
		return nil, err
	}
	if setup.RangeMin >= setup.RangeMax {
		return nil, formula.ErrInvalidRange
	}

	weights := make([]uint64, setup.Outcomes)
	if setup.Mass > 0 {
		w, err := engines.L2AMM.NormalWeights(
			setup.RangeMin, setup.RangeMax, int(setup.Outcomes),
			setup.Mean, setup.StdDev, setup.Mass,
		)
		if err != nil {
			return nil, err
		}
		weights = w
	}

	m := newMarket(setup, now, marketmaking.AMMTypeL2AMM)
	m.L2 = &L2Pool{
		Min:     setup.RangeMin,
		Max:     setup.RangeMax,
		Weights: weights,
		K:       setup.Liquidity,
	}
	return m, nil
}

func newMarket(
	setup MarketSetup, now time.Time, ammType marketmaking.AMMType,
) *Market {
	return &Market{
		ID:             uuid.New().String(),
		Title:          strings.TrimSpace(setup.Title),
		AMMType:        ammType,
		Outcomes:       setup.Outcomes,
		FeeBps:         setup.FeeBps,
		Status:         MarketStatusActive,
		WinningOutcome: -1,
		ExpiresAt:      setup.ExpiresAt.Unix(),
		CreatedAt:      now.Unix(),
		Collateral:     setup.Liquidity,
	}
}

// IsActive returns whether the market accepts trades.
func (m *Market) IsActive() bool {
	return m.Status == MarketStatusActive
}

// IsExpired ...
func (m *Market) IsExpired(now time.Time) bool {
	return now.Unix() >= m.ExpiresAt
}

// Halt suspends trading. Halting a halted market is a no-op.
func (m *Market) Halt() error {
	if m.Status == MarketStatusResolved {
		return ErrMarketResolved
	}
	m.Status = MarketStatusHalted
	return nil
}

// Resume reopens a halted market for trading.
func (m *Market) Resume() error {
	switch m.Status {
	case MarketStatusResolved:
		return ErrMarketResolved
	case MarketStatusActive:
		return ErrMarketNotHalted
	}
	m.Status = MarketStatusActive
	return nil
}

// Resolve settles the market on the given outcome. Resolution is final.
func (m *Market) Resolve(winningOutcome int) error {
	if m.Status == MarketStatusResolved {
		return ErrMarketResolved
	}
	if winningOutcome < 0 || winningOutcome >= int(m.Outcomes) {
		return formula.ErrInvalidOutcome
	}
	m.Status = MarketStatusResolved
	m.WinningOutcome = winningOutcome
	return nil
}

// Coverage returns the ratio between the market collateral and its open
// interest, capped at MaxCoverage.
func (m *Market) Coverage() (fixedpoint.Fixed, error) {
	limit := fixedpoint.FromInt64(MaxCoverage)
	if m.OpenInterest == 0 {
		return limit, nil
	}
	coverage, err := fixedpoint.FromRatio(m.Collateral, m.OpenInterest)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return fixedpoint.Min(coverage, limit), nil
}

// EffectiveFeeBps returns the fixed fee of the market if set, the elastic
// fee for its current coverage otherwise.
func (m *Market) EffectiveFeeBps(tables *fixedpoint.Tables) (uint64, error) {
	if m.FeeBps > 0 {
		return m.FeeBps, nil
	}
	coverage, err := m.Coverage()
	if err != nil {
		return 0, err
	}
	return mathutil.ElasticFeeBps(tables, coverage)
}

// AddOpenInterest ...
func (m *Market) AddOpenInterest(notional uint64) error {
	oi, err := fixedpoint.AddUint64(m.OpenInterest, notional)
	if err != nil {
		return err
	}
	m.OpenInterest = oi
	return nil
}

// ReleaseOpenInterest removes notional from the open interest, flooring it
// at zero.
func (m *Market) ReleaseOpenInterest(notional uint64) {
	if notional >= m.OpenInterest {
		m.OpenInterest = 0
		return
	}
	m.OpenInterest -= notional
}

// CreditCollateral adds amount, typically the vault share of a fee, to the
// market collateral.
func (m *Market) CreditCollateral(amount uint64) error {
	c, err := fixedpoint.AddUint64(m.Collateral, amount)
	if err != nil {
		return err
	}
	m.Collateral = c
	return nil
}

func (m *Market) validatePool() error {
	var ok bool
	switch m.AMMType {
	case marketmaking.AMMTypeLMSR:
		ok = m.LMSR != nil && m.PMAMM == nil && m.L2 == nil
	case marketmaking.AMMTypePMAMM:
		ok = m.PMAMM != nil && m.LMSR == nil && m.L2 == nil
	case marketmaking.AMMTypeL2AMM:
		ok = m.L2 != nil && m.LMSR == nil && m.PMAMM == nil
	}
	if !ok {
		return ErrMarketInvalidAMM
	}
	return nil
}
