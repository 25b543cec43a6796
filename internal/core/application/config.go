package application

import (
	"fmt"
	"time"

	"github.com/gary322/flashbets-sub011/internal/core/ports"
	dbbadger "github.com/gary322/flashbets-sub011/internal/infrastructure/storage/db/badger"
	"github.com/gary322/flashbets-sub011/internal/infrastructure/storage/db/inmemory"
	"github.com/gary322/flashbets-sub011/pkg/circuitbreaker"
	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/liquidation"
	"github.com/gary322/flashbets-sub011/pkg/mathutil"
	"github.com/gary322/flashbets-sub011/pkg/stats"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	DBBadger   = "badger"
	DBInMemory = "inmemory"

	// DefaultMaintenanceMarginBps is the share of a position value its equity
	// must cover to be healthy.
	DefaultMaintenanceMarginBps = 500
)

var (
	SupportedDBType = map[string]struct{}{
		DBBadger:   {},
		DBInMemory: {},
	}
)

type Config struct {
	DBType string
	// DBConfig is the datadir of the badger db, an empty one keeping it in
	// memory.
	DBConfig interface{}

	FeeSplit             mathutil.FeeSplit
	NearExpiryThreshold  time.Duration
	MaintenanceMarginBps uint64
	QueueConfig          liquidation.QueueConfig
	BreakerMaxFailures   uint32
	BreakerOpenTimeout   time.Duration
	KeeperConfig         KeeperConfig
	PrometheusRegisterer prometheus.Registerer

	repo    ports.RepoManager
	tables  *fixedpoint.Tables
	metrics *stats.Metrics
	queue   *liquidation.Queue
	locker  *Locker
	trade   TradeService
	risk    RiskService
	keeper  *Keeper
}

func (c *Config) Validate() error {
	if _, err := c.repoManager(); err != nil {
		return err
	}
	if _, err := c.tradeService(); err != nil {
		return err
	}
	if _, err := c.riskService(); err != nil {
		return err
	}
	if _, err := c.keeperService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) RepoManager() ports.RepoManager {
	repo, _ := c.repoManager()
	return repo
}

func (c *Config) Metrics() *stats.Metrics {
	metrics, _ := c.statsMetrics()
	return metrics
}

func (c *Config) TradeService() TradeService {
	svc, _ := c.tradeService()
	return svc
}

func (c *Config) RiskService() RiskService {
	svc, _ := c.riskService()
	return svc
}

func (c *Config) Keeper() *Keeper {
	svc, _ := c.keeperService()
	return svc
}

func (c *Config) repoManager() (ports.RepoManager, error) {
	if c.repo == nil {
		switch c.DBType {
		case DBBadger:
			datadir, _ := c.DBConfig.(string)
			repoManager, err := dbbadger.NewRepoManager(datadir, log.StandardLogger())
			if err != nil {
				return nil, err
			}
			c.repo = repoManager
		case DBInMemory:
			c.repo = inmemory.NewRepoManager()
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownDBType, c.DBType)
		}
	}
	return c.repo, nil
}

func (c *Config) lookupTables() (*fixedpoint.Tables, error) {
	if c.tables == nil {
		tables, err := fixedpoint.NewTables()
		if err != nil {
			return nil, err
		}
		c.tables = tables
	}
	return c.tables, nil
}

func (c *Config) statsMetrics() (*stats.Metrics, error) {
	if c.metrics == nil {
		reg := c.PrometheusRegisterer
		if reg == nil {
			reg = prometheus.NewRegistry()
		}
		metrics, err := stats.NewMetrics(reg)
		if err != nil {
			return nil, err
		}
		c.metrics = metrics
	}
	return c.metrics, nil
}

func (c *Config) liquidationQueue() (*liquidation.Queue, error) {
	if c.queue == nil {
		cfg := c.QueueConfig
		if cfg == (liquidation.QueueConfig{}) {
			cfg = liquidation.DefaultQueueConfig()
		}
		queue, err := liquidation.NewQueue(cfg)
		if err != nil {
			return nil, err
		}
		c.queue = queue
	}
	return c.queue, nil
}

func (c *Config) sharedLocker() *Locker {
	if c.locker == nil {
		c.locker = NewLocker()
	}
	return c.locker
}

func (c *Config) tradeService() (TradeService, error) {
	if c.trade == nil {
		repo, err := c.repoManager()
		if err != nil {
			return nil, err
		}
		tables, err := c.lookupTables()
		if err != nil {
			return nil, err
		}
		metrics, err := c.statsMetrics()
		if err != nil {
			return nil, err
		}
		feeSplit := c.FeeSplit
		if feeSplit == (mathutil.FeeSplit{}) {
			feeSplit = mathutil.DefaultFeeSplit
		}
		trade, err := newTradeService(
			repo, tables, feeSplit, c.NearExpiryThreshold,
			circuitbreaker.MarketSettings{
				MaxConsecutiveFailures: c.BreakerMaxFailures,
				OpenTimeout:            c.BreakerOpenTimeout,
			},
			c.sharedLocker(), metrics,
		)
		if err != nil {
			return nil, err
		}
		c.trade = trade
	}
	return c.trade, nil
}

func (c *Config) riskService() (RiskService, error) {
	if c.risk == nil {
		repo, err := c.repoManager()
		if err != nil {
			return nil, err
		}
		tables, err := c.lookupTables()
		if err != nil {
			return nil, err
		}
		metrics, err := c.statsMetrics()
		if err != nil {
			return nil, err
		}
		queue, err := c.liquidationQueue()
		if err != nil {
			return nil, err
		}
		mmrBps := c.MaintenanceMarginBps
		if mmrBps == 0 {
			mmrBps = DefaultMaintenanceMarginBps
		}
		risk, err := newRiskService(
			repo, tables, queue, mmrBps, c.sharedLocker(), metrics,
		)
		if err != nil {
			return nil, err
		}
		c.risk = risk
	}
	return c.risk, nil
}

func (c *Config) keeperService() (*Keeper, error) {
	if c.keeper == nil {
		repo, err := c.repoManager()
		if err != nil {
			return nil, err
		}
		risk, err := c.riskService()
		if err != nil {
			return nil, err
		}
		queue, err := c.liquidationQueue()
		if err != nil {
			return nil, err
		}
		metrics, err := c.statsMetrics()
		if err != nil {
			return nil, err
		}
		keeper, err := NewKeeper(repo, risk, queue, c.KeeperConfig, metrics)
		if err != nil {
			return nil, err
		}
		c.keeper = keeper
	}
	return c.keeper, nil
}
