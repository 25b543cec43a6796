package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/gary322/flashbets-sub011/internal/core/ports"
	"github.com/gary322/flashbets-sub011/pkg/circuitbreaker"
	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/marketmaking"
	"github.com/gary322/flashbets-sub011/pkg/marketmaking/formula"
	"github.com/gary322/flashbets-sub011/pkg/mathutil"
	"github.com/gary322/flashbets-sub011/pkg/stats"
	"github.com/sony/gobreaker"
	log "github.com/sirupsen/logrus"
)

type TradeService interface {
	CreateMarket(ctx context.Context, req CreateMarketRequest) (*MarketInfo, error)
	GetMarket(ctx context.Context, marketID string) (*MarketInfo, error)
	ListMarkets(ctx context.Context, activeOnly bool) ([]MarketInfo, error)
	Buy(ctx context.Context, req TradeRequest) (*TradeResult, error)
	Sell(ctx context.Context, req TradeRequest) (*TradeResult, error)
	AddLiquidity(ctx context.Context, marketID string, amount uint64) (*LiquidityResult, error)
	RemoveLiquidity(ctx context.Context, marketID string, shares uint64) (*LiquidityResult, error)
	ResolveMarket(ctx context.Context, marketID string, winningOutcome int) error
	HaltMarket(ctx context.Context, marketID string) error
	ResumeMarket(ctx context.Context, marketID string) error
}

type tradeService struct {
	repoManager         ports.RepoManager
	engines             *marketmaking.Engines
	tables              *fixedpoint.Tables
	feeSplit            mathutil.FeeSplit
	nearExpiryThreshold time.Duration
	breakers            *circuitbreaker.MarketBreakers
	locker              *Locker
	metrics             *stats.Metrics
}

// NewTradeService returns a TradeService. The locker must be the one shared
// with the RiskService operating on the same markets.
func NewTradeService(
	repoManager ports.RepoManager,
	tables *fixedpoint.Tables,
	feeSplit mathutil.FeeSplit,
	nearExpiryThreshold time.Duration,
	breakerSettings circuitbreaker.MarketSettings,
	locker *Locker,
	metrics *stats.Metrics,
) (TradeService, error) {
	return newTradeService(
		repoManager, tables, feeSplit, nearExpiryThreshold,
		breakerSettings, locker, metrics,
	)
}

func newTradeService(
	repoManager ports.RepoManager,
	tables *fixedpoint.Tables,
	feeSplit mathutil.FeeSplit,
	nearExpiryThreshold time.Duration,
	breakerSettings circuitbreaker.MarketSettings,
	locker *Locker,
	metrics *stats.Metrics,
) (*tradeService, error) {
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if locker == nil {
		return nil, fmt.Errorf("missing locker")
	}
	if metrics == nil {
		return nil, fmt.Errorf("missing metrics")
	}
	if err := feeSplit.Validate(); err != nil {
		return nil, err
	}
	engines, err := marketmaking.NewEngines(tables)
	if err != nil {
		return nil, err
	}

	if breakerSettings.Trips == nil {
		breakerSettings.Trips = func(err error) bool {
			return errors.Is(err, formula.ErrInvalidMarketState)
		}
	}
	onStateChange := breakerSettings.OnStateChange
	breakerSettings.OnStateChange = func(marketID string, from, to gobreaker.State) {
		log.WithFields(log.Fields{
			"market": marketID,
			"from":   from.String(),
			"to":     to.String(),
		}).Warn("market circuit breaker changed state")
		if onStateChange != nil {
			onStateChange(marketID, from, to)
		}
	}

	return &tradeService{
		repoManager:         repoManager,
		engines:             engines,
		tables:              tables,
		feeSplit:            feeSplit,
		nearExpiryThreshold: nearExpiryThreshold,
		breakers:            circuitbreaker.NewMarketBreakers(breakerSettings),
		locker:              locker,
		metrics:             metrics,
	}, nil
}

func (t *tradeService) CreateMarket(
	ctx context.Context, req CreateMarketRequest,
) (*MarketInfo, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	setup := req.setup()
	setup.NearExpiryThreshold = t.nearExpiryThreshold
	market, err := domain.NewMarket(t.engines, setup, time.Now())
	if err != nil {
		return nil, err
	}

	if err := t.repoManager.MarketRepository().AddMarket(ctx, market); err != nil {
		log.WithError(err).Warn("unable to persist market")
		return nil, ErrServiceUnavailable
	}

	log.WithFields(log.Fields{
		"market":   market.ID,
		"amm":      market.AMMType.String(),
		"outcomes": market.Outcomes,
	}).Info("market created")
	return t.marketInfo(market)
}

func (t *tradeService) GetMarket(
	ctx context.Context, marketID string,
) (*MarketInfo, error) {
	market, err := t.repoManager.MarketRepository().GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return t.marketInfo(market)
}

func (t *tradeService) ListMarkets(
	ctx context.Context, activeOnly bool,
) ([]MarketInfo, error) {
	repo := t.repoManager.MarketRepository()
	var (
		markets []domain.Market
		err     error
	)
	if activeOnly {
		markets, err = repo.GetActiveMarkets(ctx)
	} else {
		markets, err = repo.GetAllMarkets(ctx)
	}
	if err != nil {
		log.WithError(err).Warn("unable to list markets")
		return nil, ErrServiceUnavailable
	}

	infos := make([]MarketInfo, 0, len(markets))
	for i := range markets {
		info, err := t.marketInfo(&markets[i])
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

func (t *tradeService) Buy(
	ctx context.Context, req TradeRequest,
) (*TradeResult, error) {
	return t.trade(ctx, req, true)
}

func (t *tradeService) Sell(
	ctx context.Context, req TradeRequest,
) (*TradeResult, error) {
	if req.AmountIn > 0 {
		return nil, fmt.Errorf("%w: sells take an exact share amount", ErrInvalidRequest)
	}
	return t.trade(ctx, req, false)
}

func (t *tradeService) trade(
	ctx context.Context, req TradeRequest, buy bool,
) (*TradeResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	unlock := t.locker.Lock(marketKey(req.MarketID))
	defer unlock()

	var (
		result  *TradeResult
		ammType marketmaking.AMMType
	)
	err := t.repoManager.MarketRepository().UpdateMarket(
		ctx, req.MarketID, func(m *domain.Market) (*domain.Market, error) {
			ammType = m.AMMType
			feeBps, err := m.EffectiveFeeBps(t.tables)
			if err != nil {
				return nil, err
			}

			var trade *formula.Trade
			if err := t.breakers.Execute(m.ID, func() error {
				var err error
				if buy {
					trade, err = m.Buy(t.engines, req.domainRequest(feeBps))
				} else {
					trade, err = m.Sell(t.engines, req.domainRequest(feeBps))
				}
				return err
			}); err != nil {
				return nil, err
			}

			fees, err := t.feeSplit.Split(trade.Fee)
			if err != nil {
				return nil, err
			}
			if err := m.CreditCollateral(fees.Vault); err != nil {
				return nil, err
			}

			result = &TradeResult{
				MarketID: m.ID,
				Buy:      buy,
				FeeBps:   feeBps,
				Fees:     fees,
				Trade:    *trade,
			}
			return m, nil
		},
	)
	if err != nil {
		t.metrics.RejectedTrades.WithLabelValues(ammType.String(), rejectReason(err)).Inc()
		if t.breakers.State(req.MarketID) == gobreaker.StateOpen {
			t.haltOnBreaker(ctx, req.MarketID)
		}
		return nil, err
	}

	direction := "sell"
	if buy {
		direction = "buy"
	}
	t.metrics.Trades.WithLabelValues(ammType.String(), direction).Inc()
	t.metrics.SolverIterations.WithLabelValues(ammType.String()).
		Observe(float64(result.Iterations))
	t.metrics.FeesCollected.WithLabelValues("vault").Add(float64(result.Fees.Vault))
	t.metrics.FeesCollected.WithLabelValues("rewards").Add(float64(result.Fees.Rewards))
	t.metrics.FeesCollected.WithLabelValues("burn").Add(float64(result.Fees.Burn))

	log.WithFields(log.Fields{
		"market":     req.MarketID,
		"direction":  direction,
		"amount_in":  result.AmountIn,
		"amount_out": result.AmountOut,
		"fee":        result.Fee,
	}).Debug("trade executed")
	return result, nil
}

func (t *tradeService) AddLiquidity(
	ctx context.Context, marketID string, amount uint64,
) (*LiquidityResult, error) {
	return t.updateLiquidity(ctx, marketID, func(m *domain.Market) (*formula.LiquidityChange, error) {
		return m.AddLiquidity(t.engines, amount)
	})
}

func (t *tradeService) RemoveLiquidity(
	ctx context.Context, marketID string, shares uint64,
) (*LiquidityResult, error) {
	return t.updateLiquidity(ctx, marketID, func(m *domain.Market) (*formula.LiquidityChange, error) {
		return m.RemoveLiquidity(t.engines, shares)
	})
}

func (t *tradeService) updateLiquidity(
	ctx context.Context, marketID string,
	fn func(m *domain.Market) (*formula.LiquidityChange, error),
) (*LiquidityResult, error) {
	unlock := t.locker.Lock(marketKey(marketID))
	defer unlock()

	var result *LiquidityResult
	if err := t.repoManager.MarketRepository().UpdateMarket(
		ctx, marketID, func(m *domain.Market) (*domain.Market, error) {
			change, err := fn(m)
			if err != nil {
				return nil, err
			}
			result = &LiquidityResult{MarketID: m.ID, LiquidityChange: *change}
			return m, nil
		},
	); err != nil {
		return nil, err
	}
	return result, nil
}

func (t *tradeService) ResolveMarket(
	ctx context.Context, marketID string, winningOutcome int,
) error {
	return t.updateStatus(ctx, marketID, func(m *domain.Market) error {
		return m.Resolve(winningOutcome)
	})
}

func (t *tradeService) HaltMarket(ctx context.Context, marketID string) error {
	return t.updateStatus(ctx, marketID, func(m *domain.Market) error {
		return m.Halt()
	})
}

// ResumeMarket reopens a halted market and closes its circuit breaker.
func (t *tradeService) ResumeMarket(ctx context.Context, marketID string) error {
	if err := t.updateStatus(ctx, marketID, func(m *domain.Market) error {
		return m.Resume()
	}); err != nil {
		return err
	}
	t.breakers.Reset(marketID)
	return nil
}

func (t *tradeService) updateStatus(
	ctx context.Context, marketID string, fn func(m *domain.Market) error,
) error {
	unlock := t.locker.Lock(marketKey(marketID))
	defer unlock()

	err := t.repoManager.MarketRepository().UpdateMarket(
		ctx, marketID, func(m *domain.Market) (*domain.Market, error) {
			if err := fn(m); err != nil {
				return nil, err
			}
			return m, nil
		},
	)
	if err != nil {
		return err
	}
	log.WithField("market", marketID).Info("market status updated")
	return nil
}

// haltOnBreaker persists the halt of a market whose breaker opened. The
// caller holds the market lock.
func (t *tradeService) haltOnBreaker(ctx context.Context, marketID string) {
	err := t.repoManager.MarketRepository().UpdateMarket(
		ctx, marketID, func(m *domain.Market) (*domain.Market, error) {
			if m.Status != domain.MarketStatusActive {
				return m, nil
			}
			if err := m.Halt(); err != nil {
				return nil, err
			}
			return m, nil
		},
	)
	if err != nil {
		log.WithError(err).WithField("market", marketID).Warn("unable to halt market")
		return
	}
	log.WithField("market", marketID).Warn("market halted after invariant violation")
}

func (t *tradeService) marketInfo(m *domain.Market) (*MarketInfo, error) {
	prices, err := m.SpotPrices(t.engines)
	if err != nil {
		return nil, err
	}
	feeBps, err := m.EffectiveFeeBps(t.tables)
	if err != nil {
		return nil, err
	}
	info := &MarketInfo{
		Market:          *m,
		Prices:          prices,
		EffectiveFeeBps: feeBps,
	}
	if m.AMMType == marketmaking.AMMTypeL2AMM {
		if info.ExpectedValue, err = m.ExpectedValue(t.engines); err != nil {
			return nil, err
		}
	}
	return info, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, circuitbreaker.ErrMarketHalted),
		errors.Is(err, domain.ErrMarketNotActive):
		return "halted"
	case errors.Is(err, formula.ErrSlippageExceeded):
		return "slippage"
	case errors.Is(err, formula.ErrInsufficientLiquidity),
		errors.Is(err, formula.ErrInsufficientBalance):
		return "liquidity"
	case errors.Is(err, formula.ErrInvalidMarketState):
		return "invariant"
	case errors.Is(err, formula.ErrNonConvergent):
		return "solver"
	case errors.Is(err, fixedpoint.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrMarketNotFound):
		return "not_found"
	default:
		return "other"
	}
}
