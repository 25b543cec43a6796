package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/gary322/flashbets-sub011/internal/core/ports"
	"github.com/gary322/flashbets-sub011/pkg/circuitbreaker"
	"github.com/gary322/flashbets-sub011/pkg/liquidation"
	"github.com/gary322/flashbets-sub011/pkg/stats"
	"github.com/sony/gobreaker"
	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultKeeperInterval    = 10 * time.Second
	DefaultKeeperBatchSize   = 10
	DefaultKeeperRateLimit   = 20
	DefaultKeeperConcurrency = 4
)

// KeeperConfig ...
type KeeperConfig struct {
	Interval time.Duration
	// BatchSize is the max number of positions liquidated per tick.
	BatchSize int
	// RateLimit is the max number of liquidations per second.
	RateLimit int
	// Concurrency is the number of markets marked in parallel.
	Concurrency int
}

func (c KeeperConfig) withDefaults() KeeperConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultKeeperInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultKeeperBatchSize
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultKeeperRateLimit
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultKeeperConcurrency
	}
	return c
}

// KeeperReport summarizes a keeper tick.
type KeeperReport struct {
	Markets    int
	Assessed   int
	Stale      int
	Liquidated int
	Skipped    int
}

// Keeper periodically marks every open position, feeds the liquidation
// queue and liquidates the riskiest candidates.
type Keeper struct {
	repoManager ports.RepoManager
	riskService RiskService
	queue       *liquidation.Queue
	cfg         KeeperConfig
	limiter     ratelimit.Limiter
	cb          *gobreaker.CircuitBreaker
	metrics     *stats.Metrics

	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  int32
}

func NewKeeper(
	repoManager ports.RepoManager,
	riskService RiskService,
	queue *liquidation.Queue,
	cfg KeeperConfig,
	metrics *stats.Metrics,
) (*Keeper, error) {
	if repoManager == nil {
		return nil, fmt.Errorf("missing repo manager")
	}
	if riskService == nil {
		return nil, fmt.Errorf("missing risk service")
	}
	if queue == nil {
		return nil, fmt.Errorf("missing liquidation queue")
	}
	if metrics == nil {
		return nil, fmt.Errorf("missing metrics")
	}
	cfg = cfg.withDefaults()

	return &Keeper{
		repoManager: repoManager,
		riskService: riskService,
		queue:       queue,
		cfg:         cfg,
		limiter:     ratelimit.New(cfg.RateLimit),
		cb:          circuitbreaker.NewCircuitBreaker("keeper"),
		metrics:     metrics,
		quit:        make(chan struct{}),
	}, nil
}

// Start runs a tick every configured interval until Stop is called.
func (k *Keeper) Start() {
	if !atomic.CompareAndSwapInt32(&k.started, 0, 1) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-k.quit
		cancel()
	}()

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()

		ticker := time.NewTicker(k.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report, err := k.Tick(ctx)
				if err != nil {
					if ctx.Err() == nil {
						log.WithError(err).Warn("keeper tick failed")
					}
					continue
				}
				if report.Liquidated > 0 || report.Stale > 0 {
					log.WithFields(log.Fields{
						"markets":    report.Markets,
						"assessed":   report.Assessed,
						"stale":      report.Stale,
						"liquidated": report.Liquidated,
					}).Info("keeper tick")
				}
			}
		}
	}()
	log.Infof("keeper started, ticking every %s", k.cfg.Interval)
}

// Stop cancels the running tick, if any, and waits for it to return.
func (k *Keeper) Stop() {
	k.stopOnce.Do(func() {
		close(k.quit)
	})
	k.wg.Wait()
}

// Tick marks the positions of every active market in parallel, drops the
// stale candidates and liquidates a rate limited batch out of the queue.
func (k *Keeper) Tick(ctx context.Context) (*KeeperReport, error) {
	res, err := k.cb.Execute(func() (interface{}, error) {
		return k.repoManager.MarketRepository().GetActiveMarkets(ctx)
	})
	if err != nil {
		return nil, err
	}
	markets := res.([]domain.Market)

	var assessed, skipped int64
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(k.cfg.Concurrency)
	for i := range markets {
		marketID := markets[i].ID
		eg.Go(func() error {
			positions, err := k.repoManager.PositionRepository().
				GetActivePositionsForMarket(egCtx, marketID)
			if err != nil {
				return err
			}
			for _, p := range positions {
				if _, err := k.riskService.AssessPosition(egCtx, p.ID); err != nil {
					atomic.AddInt64(&skipped, 1)
					log.WithError(err).WithField("position", p.ID).
						Debug("keeper skipped position")
					continue
				}
				atomic.AddInt64(&assessed, 1)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	report := &KeeperReport{
		Markets:  len(markets),
		Assessed: int(assessed),
		Skipped:  int(skipped),
	}

	stale := k.queue.SweepStale(time.Now())
	report.Stale = len(stale)

	batch := k.queue.GetNextBatch(k.cfg.BatchSize)
	for i, c := range batch {
		k.limiter.Take()
		if err := ctx.Err(); err != nil {
			k.requeue(batch[i:])
			return nil, err
		}
		if _, err := k.riskService.LiquidatePosition(ctx, c.PositionID); err != nil {
			if !errors.Is(err, ErrPositionHealthy) &&
				!errors.Is(err, domain.ErrPositionNotActive) {
				log.WithError(err).WithField("position", c.PositionID).
					Warn("unable to liquidate position")
			}
			continue
		}
		report.Liquidated++
	}

	k.metrics.QueueLength.Set(float64(k.queue.Len()))
	k.metrics.QueueLiquidatable.Set(float64(k.queue.TotalLiquidatable()))
	return report, nil
}

// requeue puts back the candidates of an interrupted batch.
func (k *Keeper) requeue(candidates []liquidation.Candidate) {
	for _, c := range candidates {
		if _, err := k.queue.Add(c); err != nil {
			log.WithError(err).WithField("position", c.PositionID).
				Debug("keeper dropped candidate")
		}
	}
}
