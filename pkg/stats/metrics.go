package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const namespace = "flashbets"

// Metrics groups the collectors updated by the services and the keeper.
type Metrics struct {
	Trades            *prometheus.CounterVec
	RejectedTrades    *prometheus.CounterVec
	SolverIterations  *prometheus.HistogramVec
	FeesCollected     *prometheus.CounterVec
	Liquidations      prometheus.Counter
	QueueLength       prometheus.Gauge
	QueueLiquidatable prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Executed trades by pricing engine and direction.",
		}, []string{"amm", "direction"}),
		RejectedTrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_trades_total",
			Help:      "Trades rejected by pricing engine and reason.",
		}, []string{"amm", "reason"}),
		SolverIterations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solver_iterations",
			Help:      "Newton iterations per solved trade.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}, []string{"amm"}),
		FeesCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_collected_total",
			Help:      "Trade fees in collateral units by destination.",
		}, []string{"destination"}),
		Liquidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liquidations_total",
			Help:      "Liquidated positions.",
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "liquidation_queue_length",
			Help:      "Candidates waiting in the liquidation queue.",
		}),
		QueueLiquidatable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "liquidation_queue_value",
			Help:      "Liquidatable value tracked by the liquidation queue.",
		}),
	}

	var err error
	for _, c := range []prometheus.Collector{
		m.Trades, m.RejectedTrades, m.SolverIterations, m.FeesCollected,
		m.Liquidations, m.QueueLength, m.QueueLiquidatable,
	} {
		err = multierr.Append(err, reg.Register(c))
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
