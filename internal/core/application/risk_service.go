package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/gary322/flashbets-sub011/internal/core/ports"
	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/leverage"
	"github.com/gary322/flashbets-sub011/pkg/liquidation"
	"github.com/gary322/flashbets-sub011/pkg/marketmaking"
	"github.com/gary322/flashbets-sub011/pkg/stats"
	"github.com/gary322/flashbets-sub011/pkg/verse"
	log "github.com/sirupsen/logrus"
)

type RiskService interface {
	CreateVerse(ctx context.Context, title, parentID string) (*domain.Verse, error)
	GetVerse(ctx context.Context, verseID string) (*domain.Verse, error)
	ListVerses(ctx context.Context) ([]domain.Verse, error)
	CheckVerse(ctx context.Context, verseID string) (*verse.IsolationResult, error)
	MergeVerse(ctx context.Context, req MergeVerseRequest) (*MergeResult, error)

	OpenPosition(ctx context.Context, req OpenPositionRequest) (*domain.Position, error)
	ClosePosition(ctx context.Context, positionID string) (*domain.Position, error)
	GetPosition(ctx context.Context, positionID string) (*domain.Position, error)
	ListPositions(ctx context.Context, owner string) ([]domain.Position, error)
	PreviewLeverage(ctx context.Context, req PreviewLeverageRequest) (*leverage.Preview, error)

	AssessPosition(ctx context.Context, positionID string) (*PositionAssessment, error)
	LiquidatePosition(ctx context.Context, positionID string) (*domain.Position, error)
	LiquidationCandidates() []liquidation.Candidate
}

type riskService struct {
	repoManager ports.RepoManager
	engines     *marketmaking.Engines
	leverage    *leverage.Engine
	queue       *liquidation.Queue
	mmrBps      uint64
	locker      *Locker
	metrics     *stats.Metrics
}

// NewRiskService returns a RiskService. The locker must be the one shared
// with the TradeService operating on the same markets.
func NewRiskService(
	repoManager ports.RepoManager,
	tables *fixedpoint.Tables,
	queue *liquidation.Queue,
	maintenanceMarginBps uint64,
	locker *Locker,
	metrics *stats.Metrics,
) (RiskService, error) {
	return newRiskService(
		repoManager, tables, queue, maintenanceMarginBps, locker, metrics,
	)
}

func newRiskService(
	repoManager ports.RepoManager,
	tables *fixedpoint.Tables,
	queue *liquidation.Queue,
	maintenanceMarginBps uint64,
	locker *Locker,
	metrics *stats.Metrics,
) (*riskService, error) {
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if queue == nil {
		return nil, fmt.Errorf("missing liquidation queue")
	}
	if locker == nil {
		return nil, fmt.Errorf("missing locker")
	}
	if metrics == nil {
		return nil, fmt.Errorf("missing metrics")
	}
	if maintenanceMarginBps == 0 || maintenanceMarginBps > fixedpoint.MaxBps {
		return nil, liquidation.ErrInvalidMarginRatio
	}
	engines, err := marketmaking.NewEngines(tables)
	if err != nil {
		return nil, err
	}

	return &riskService{
		repoManager: repoManager,
		engines:     engines,
		leverage:    leverage.NewEngine(tables),
		queue:       queue,
		mmrBps:      maintenanceMarginBps,
		locker:      locker,
		metrics:     metrics,
	}, nil
}

func (r *riskService) CreateVerse(
	ctx context.Context, title, parentID string,
) (*domain.Verse, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: missing verse title", ErrInvalidRequest)
	}

	repo := r.repoManager.VerseRepository()
	if parentID != "" {
		parent, err := repo.GetVerse(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if !parent.IsActive() {
			return nil, domain.ErrVerseNotActive
		}
	}

	v := domain.NewVerse(title, parentID, time.Now())
	if err := repo.AddVerse(ctx, v); err != nil {
		log.WithError(err).Warn("unable to persist verse")
		return nil, ErrServiceUnavailable
	}
	log.WithFields(log.Fields{"verse": v.ID, "parent": parentID}).Info("verse created")
	return v, nil
}

func (r *riskService) GetVerse(
	ctx context.Context, verseID string,
) (*domain.Verse, error) {
	return r.repoManager.VerseRepository().GetVerse(ctx, verseID)
}

func (r *riskService) ListVerses(ctx context.Context) ([]domain.Verse, error) {
	verses, err := r.repoManager.VerseRepository().GetAllVerses(ctx)
	if err != nil {
		log.WithError(err).Warn("unable to list verses")
		return nil, ErrServiceUnavailable
	}
	return verses, nil
}

// CheckVerse returns the collateral state of a verse. On
// verse.ErrInsufficientCollateral the result is returned along with the
// error.
func (r *riskService) CheckVerse(
	ctx context.Context, verseID string,
) (*verse.IsolationResult, error) {
	if _, err := r.repoManager.VerseRepository().GetVerse(ctx, verseID); err != nil {
		return nil, err
	}

	unlock := r.locker.Lock(verseKey(verseID))
	defer unlock()

	positions, err := r.repoManager.PositionRepository().
		GetActivePositionsForVerse(ctx, verseID)
	if err != nil {
		log.WithError(err).Warn("unable to get verse positions")
		return nil, ErrServiceUnavailable
	}
	return verse.ValidateCollateral(domain.Snapshots(positions), verseID)
}

func (r *riskService) OpenPosition(
	ctx context.Context, req OpenPositionRequest,
) (*domain.Position, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	side, err := leverage.ParseSide(strings.ToLower(req.Side))
	if err != nil {
		return nil, err
	}
	lev := req.Leverage
	if lev.IsZero() {
		lev = fixedpoint.One
	}

	unlock := r.locker.Lock(verseKey(req.VerseID), marketKey(req.MarketID))
	defer unlock()

	v, err := r.repoManager.VerseRepository().GetVerse(ctx, req.VerseID)
	if err != nil {
		return nil, err
	}
	if !v.IsActive() {
		return nil, domain.ErrVerseNotActive
	}
	market, err := r.repoManager.MarketRepository().GetMarket(ctx, req.MarketID)
	if err != nil {
		return nil, err
	}
	if !market.IsActive() {
		return nil, domain.ErrMarketNotActive
	}

	price, err := market.OutcomePrice(r.engines, req.Outcome)
	if err != nil {
		return nil, err
	}
	coverage, err := market.Coverage()
	if err != nil {
		return nil, err
	}
	if err := r.leverage.Validate(
		lev, req.ChainDepth, coverage, market.Outcomes,
	); err != nil {
		return nil, err
	}

	notional, err := leverage.ValueAt(req.Size, price)
	if err != nil {
		return nil, err
	}
	if notional == 0 {
		return nil, ErrPositionTooSmall
	}
	margin, err := leverage.RequiredCollateral(notional, lev)
	if err != nil {
		return nil, err
	}
	if req.Margin > 0 {
		if req.Margin < margin {
			return nil, fmt.Errorf(
				"%w: %d offered, %d required", ErrInsufficientMargin, req.Margin, margin,
			)
		}
		margin = req.Margin
	}

	now := time.Now()
	position, err := domain.NewPosition(domain.PositionSetup{
		Owner:      req.Owner,
		MarketID:   market.ID,
		VerseID:    v.ID,
		Outcome:    req.Outcome,
		Side:       side,
		Size:       req.Size,
		Leverage:   lev,
		EntryPrice: price,
		Margin:     margin,
	}, now)
	if err != nil {
		return nil, err
	}

	positionRepo := r.repoManager.PositionRepository()
	existing, err := positionRepo.GetActivePositionsForVerse(ctx, v.ID)
	if err != nil {
		log.WithError(err).Warn("unable to get verse positions")
		return nil, ErrServiceUnavailable
	}
	snapshots := append(domain.Snapshots(existing), position.Snapshot())
	if _, err := verse.ValidateCollateral(snapshots, v.ID); err != nil {
		return nil, err
	}

	if err := r.repoManager.MarketRepository().UpdateMarket(
		ctx, market.ID, func(m *domain.Market) (*domain.Market, error) {
			if err := m.AddOpenInterest(notional); err != nil {
				return nil, err
			}
			if err := positionRepo.AddPosition(ctx, position); err != nil {
				return nil, err
			}
			return m, nil
		},
	); err != nil {
		log.WithError(err).Warn("unable to persist position")
		return nil, ErrServiceUnavailable
	}

	log.WithFields(log.Fields{
		"position": position.ID,
		"market":   market.ID,
		"verse":    v.ID,
		"side":     side.String(),
		"leverage": lev.String(),
		"margin":   margin,
	}).Info("position opened")
	return position, nil
}

// ClosePosition settles a position at the current mark price. The payout is
// the equity left, zero for positions with no value left. Closing must not
// leave the rest of the verse undercollateralized.
func (r *riskService) ClosePosition(
	ctx context.Context, positionID string,
) (*domain.Position, error) {
	position, unlock, err := r.lockPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !position.IsActive() {
		return nil, domain.ErrPositionNotActive
	}

	marketRepo := r.repoManager.MarketRepository()
	positionRepo := r.repoManager.PositionRepository()

	market, err := marketRepo.GetMarket(ctx, position.MarketID)
	if err != nil {
		return nil, err
	}
	mark, err := r.markPrice(market, position.Outcome)
	if err != nil {
		return nil, err
	}
	assessment, err := r.assess(position, mark)
	if err != nil {
		return nil, err
	}

	others, err := positionRepo.GetActivePositionsForVerse(ctx, position.VerseID)
	if err != nil {
		log.WithError(err).Warn("unable to get verse positions")
		return nil, ErrServiceUnavailable
	}
	remaining := make([]domain.Position, 0, len(others))
	for _, p := range others {
		if p.ID != position.ID {
			remaining = append(remaining, p)
		}
	}
	if _, err := verse.ValidateCollateral(
		domain.Snapshots(remaining), position.VerseID,
	); err != nil {
		return nil, err
	}

	notional, err := position.Notional()
	if err != nil {
		return nil, err
	}

	var closed *domain.Position
	if err := marketRepo.UpdateMarket(
		ctx, market.ID, func(m *domain.Market) (*domain.Market, error) {
			m.ReleaseOpenInterest(notional)
			if err := positionRepo.UpdatePosition(
				ctx, position.ID, func(p *domain.Position) (*domain.Position, error) {
					if err := p.Close(assessment.Equity, time.Now()); err != nil {
						return nil, err
					}
					closed = p
					return p, nil
				},
			); err != nil {
				return nil, err
			}
			return m, nil
		},
	); err != nil {
		if errors.Is(err, domain.ErrPositionNotActive) {
			return nil, err
		}
		log.WithError(err).Warn("unable to close position")
		return nil, ErrServiceUnavailable
	}

	r.unqueue(position.ID)

	log.WithFields(log.Fields{
		"position": position.ID,
		"mark":     mark.String(),
		"payout":   closed.Payout,
	}).Info("position closed")
	return closed, nil
}

func (r *riskService) GetPosition(
	ctx context.Context, positionID string,
) (*domain.Position, error) {
	return r.repoManager.PositionRepository().GetPosition(ctx, positionID)
}

func (r *riskService) ListPositions(
	ctx context.Context, owner string,
) ([]domain.Position, error) {
	positions, err := r.repoManager.PositionRepository().
		GetPositionsForOwner(ctx, owner)
	if err != nil {
		log.WithError(err).Warn("unable to list positions")
		return nil, ErrServiceUnavailable
	}
	return positions, nil
}

// PreviewLeverage evaluates a leverage change on an active position without
// changing it.
func (r *riskService) PreviewLeverage(
	ctx context.Context, req PreviewLeverageRequest,
) (*leverage.Preview, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	position, err := r.repoManager.PositionRepository().GetPosition(ctx, req.PositionID)
	if err != nil {
		return nil, err
	}
	if !position.IsActive() {
		return nil, domain.ErrPositionNotActive
	}
	market, err := r.repoManager.MarketRepository().GetMarket(ctx, position.MarketID)
	if err != nil {
		return nil, err
	}
	coverage, err := market.Coverage()
	if err != nil {
		return nil, err
	}

	return r.leverage.Preview(leverage.PreviewRequest{
		Position:            position.Snapshot(),
		RequestedMultiplier: req.Multiplier,
		ChainDepth:          req.ChainDepth,
		ChainReturns:        req.ChainReturns,
		Coverage:            coverage,
		Outcomes:            market.Outcomes,
	})
}

// AssessPosition marks a position and feeds the liquidation queue: it is
// (re)queued when its risk reaches the monitoring threshold and dropped from
// the queue otherwise.
func (r *riskService) AssessPosition(
	ctx context.Context, positionID string,
) (*PositionAssessment, error) {
	position, unlock, err := r.lockPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !position.IsActive() {
		return nil, domain.ErrPositionNotActive
	}
	market, err := r.repoManager.MarketRepository().GetMarket(ctx, position.MarketID)
	if err != nil {
		return nil, err
	}
	mark, err := r.markPrice(market, position.Outcome)
	if err != nil {
		return nil, err
	}
	assessment, err := r.assess(position, mark)
	if err != nil {
		return nil, err
	}

	r.unqueue(position.ID)
	if assessment.RiskScore >= r.queue.Config().MonitoringThreshold {
		candidate, err := liquidation.NewCandidate(
			position.ID, position.MarketID, position.VerseID, *assessment, time.Now(),
		)
		if err != nil {
			return nil, err
		}
		evicted, err := r.queue.Add(*candidate)
		if err != nil {
			return nil, err
		}
		if evicted != nil {
			log.WithField("position", evicted.PositionID).
				Debug("candidate evicted from full liquidation queue")
		}
	}
	r.updateQueueGauges()

	return &PositionAssessment{
		PositionID: position.ID,
		MarkPrice:  mark,
		Assessment: *assessment,
		Queued:     r.queue.Contains(position.ID),
	}, nil
}

// LiquidatePosition re-marks a position and liquidates it if its risk is at
// or above the liquidation threshold. The forfeited margin is credited to the
// market collateral.
func (r *riskService) LiquidatePosition(
	ctx context.Context, positionID string,
) (*domain.Position, error) {
	position, unlock, err := r.lockPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !position.IsActive() {
		r.unqueue(position.ID)
		return nil, domain.ErrPositionNotActive
	}

	marketRepo := r.repoManager.MarketRepository()
	positionRepo := r.repoManager.PositionRepository()

	market, err := marketRepo.GetMarket(ctx, position.MarketID)
	if err != nil {
		return nil, err
	}
	mark, err := r.markPrice(market, position.Outcome)
	if err != nil {
		return nil, err
	}
	assessment, err := r.assess(position, mark)
	if err != nil {
		return nil, err
	}
	if assessment.RiskScore < r.queue.Config().LiquidationThreshold {
		return nil, fmt.Errorf(
			"%w: risk score %d", ErrPositionHealthy, assessment.RiskScore,
		)
	}

	notional, err := position.Notional()
	if err != nil {
		return nil, err
	}

	var liquidated *domain.Position
	if err := marketRepo.UpdateMarket(
		ctx, market.ID, func(m *domain.Market) (*domain.Market, error) {
			m.ReleaseOpenInterest(notional)
			if err := m.CreditCollateral(position.Margin); err != nil {
				return nil, err
			}
			if err := positionRepo.UpdatePosition(
				ctx, position.ID, func(p *domain.Position) (*domain.Position, error) {
					if err := p.Liquidate(time.Now()); err != nil {
						return nil, err
					}
					liquidated = p
					return p, nil
				},
			); err != nil {
				return nil, err
			}
			return m, nil
		},
	); err != nil {
		log.WithError(err).Warn("unable to liquidate position")
		return nil, ErrServiceUnavailable
	}

	r.unqueue(position.ID)
	r.updateQueueGauges()
	r.metrics.Liquidations.Inc()

	log.WithFields(log.Fields{
		"position": position.ID,
		"market":   position.MarketID,
		"risk":     assessment.RiskScore,
		"margin":   position.Margin,
	}).Info("position liquidated")
	return liquidated, nil
}

func (r *riskService) LiquidationCandidates() []liquidation.Candidate {
	return r.queue.Candidates()
}

// MergeVerse dissolves a verse into successors. Every active position of the
// dissolving verse must be assigned to exactly one successor, the margins
// they carry must not exceed the dissolving value and every successor must
// stay collateralized after receiving them.
func (r *riskService) MergeVerse(
	ctx context.Context, req MergeVerseRequest,
) (*MergeResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	keys := []string{verseKey(req.VerseID)}
	for _, s := range req.Successors {
		keys = append(keys, verseKey(s.VerseID))
	}
	unlock := r.locker.Lock(keys...)
	defer unlock()

	verseRepo := r.repoManager.VerseRepository()
	positionRepo := r.repoManager.PositionRepository()

	dissolving, err := verseRepo.GetVerse(ctx, req.VerseID)
	if err != nil {
		return nil, err
	}
	if !dissolving.IsActive() {
		return nil, domain.ErrVerseNotActive
	}

	successorIDs := make([]string, 0, len(req.Successors))
	for _, s := range req.Successors {
		if s.VerseID == dissolving.ID {
			return nil, domain.ErrVerseInvalidSuccessor
		}
		successor, err := verseRepo.GetVerse(ctx, s.VerseID)
		if err != nil {
			return nil, err
		}
		if !successor.IsActive() {
			return nil, fmt.Errorf("%w: %s", domain.ErrVerseNotActive, s.VerseID)
		}
		successorIDs = append(successorIDs, s.VerseID)
	}

	positions, err := positionRepo.GetActivePositionsForVerse(ctx, dissolving.ID)
	if err != nil {
		log.WithError(err).Warn("unable to get verse positions")
		return nil, ErrServiceUnavailable
	}
	byID := make(map[string]domain.Position, len(positions))
	var dissolvingValue uint64
	for _, p := range positions {
		byID[p.ID] = p
		if dissolvingValue, err = fixedpoint.AddUint64(dissolvingValue, p.Margin); err != nil {
			return nil, err
		}
	}

	assigned := make(map[string]struct{}, len(positions))
	claims := make([]verse.Claim, 0, len(req.Successors))
	moved := make(map[string][]domain.Position, len(req.Successors))
	for _, s := range req.Successors {
		claim := verse.Claim{VerseID: s.VerseID}
		for _, id := range s.PositionIDs {
			p, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf(
					"%w: %s is not an active position of verse %s",
					domain.ErrPositionNotFound, id, dissolving.ID,
				)
			}
			if _, ok := assigned[id]; ok {
				return nil, fmt.Errorf(
					"%w: position %s assigned twice", ErrInvalidRequest, id,
				)
			}
			assigned[id] = struct{}{}
			if claim.Value, err = fixedpoint.AddUint64(claim.Value, p.Margin); err != nil {
				return nil, err
			}
			p.VerseID = s.VerseID
			moved[s.VerseID] = append(moved[s.VerseID], p)
		}
		claims = append(claims, claim)
	}
	if len(assigned) != len(positions) {
		return nil, fmt.Errorf(
			"%w: %d of %d assigned", ErrUnassignedPosition, len(assigned), len(positions),
		)
	}
	if err := verse.ValidateMerge(dissolving.ID, dissolvingValue, claims); err != nil {
		return nil, err
	}

	results := make([]verse.IsolationResult, 0, len(req.Successors))
	for _, id := range successorIDs {
		existing, err := positionRepo.GetActivePositionsForVerse(ctx, id)
		if err != nil {
			log.WithError(err).Warn("unable to get verse positions")
			return nil, ErrServiceUnavailable
		}
		all := append(existing, moved[id]...)
		result, err := verse.ValidateCollateral(domain.Snapshots(all), id)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}

	for _, s := range req.Successors {
		for _, id := range s.PositionIDs {
			successorID := s.VerseID
			if err := positionRepo.UpdatePosition(
				ctx, id, func(p *domain.Position) (*domain.Position, error) {
					if err := p.MoveTo(successorID); err != nil {
						return nil, err
					}
					return p, nil
				},
			); err != nil {
				log.WithError(err).WithField("position", id).
					Warn("unable to move position to successor verse")
				return nil, ErrServiceUnavailable
			}
			r.unqueue(id)
		}
	}

	if err := verseRepo.UpdateVerse(
		ctx, dissolving.ID, func(v *domain.Verse) (*domain.Verse, error) {
			if err := v.Merge(successorIDs, time.Now()); err != nil {
				return nil, err
			}
			return v, nil
		},
	); err != nil {
		log.WithError(err).Warn("unable to merge verse")
		return nil, ErrServiceUnavailable
	}
	r.updateQueueGauges()

	log.WithFields(log.Fields{
		"verse":      dissolving.ID,
		"successors": successorIDs,
		"moved":      len(assigned),
	}).Info("verse merged")
	return &MergeResult{
		VerseID:    dissolving.ID,
		Moved:      len(assigned),
		Successors: results,
	}, nil
}

// lockPosition takes the locks of the verse and market of a position and
// returns it as read under the locks. A merge may move the position to
// another verse between the first read and the locking, in which case the
// locks are taken again.
func (r *riskService) lockPosition(
	ctx context.Context, positionID string,
) (*domain.Position, func(), error) {
	repo := r.repoManager.PositionRepository()
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		position, err := repo.GetPosition(ctx, positionID)
		if err != nil {
			return nil, nil, err
		}
		unlock := r.locker.Lock(verseKey(position.VerseID), marketKey(position.MarketID))
		current, err := repo.GetPosition(ctx, positionID)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if current.VerseID == position.VerseID {
			return current, unlock, nil
		}
		unlock()
	}
}

// markPrice is the spot price of the outcome, or its settlement price once
// the market is resolved.
func (r *riskService) markPrice(
	market *domain.Market, outcome int,
) (fixedpoint.Fixed, error) {
	if market.Status == domain.MarketStatusResolved {
		if outcome == market.WinningOutcome {
			return fixedpoint.One, nil
		}
		return fixedpoint.Zero, nil
	}
	return market.OutcomePrice(r.engines, outcome)
}

// assess marks a position, handling the case of an outcome priced at zero:
// a long has lost everything while a short has gained its whole notional.
func (r *riskService) assess(
	position *domain.Position, mark fixedpoint.Fixed,
) (*liquidation.Assessment, error) {
	assessment, err := liquidation.Assess(position.Snapshot(), mark, r.mmrBps)
	if err == nil {
		return assessment, nil
	}
	if !errors.Is(err, liquidation.ErrWorthlessPosition) {
		return nil, err
	}

	if position.Side == leverage.Long {
		return &liquidation.Assessment{RiskScore: liquidation.MaxRiskScore}, nil
	}
	notional, err := position.Notional()
	if err != nil {
		return nil, err
	}
	equity, err := fixedpoint.AddUint64(position.Margin, notional)
	if err != nil {
		return nil, err
	}
	return &liquidation.Assessment{
		HealthFactor: liquidation.HealthyFactor,
		Equity:       equity,
	}, nil
}

func (r *riskService) unqueue(positionID string) {
	if _, err := r.queue.Remove(positionID); err != nil &&
		!errors.Is(err, liquidation.ErrCandidateNotFound) {
		log.WithError(err).WithField("position", positionID).
			Warn("unable to remove liquidation candidate")
	}
}

func (r *riskService) updateQueueGauges() {
	r.metrics.QueueLength.Set(float64(r.queue.Len()))
	r.metrics.QueueLiquidatable.Set(float64(r.queue.TotalLiquidatable()))
}
