package liquidation_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/liquidation"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// candidate builds a queued position whose health factor matches its risk
// score.
func candidate(t *testing.T, id string, risk uint8, amount uint64, addedAt time.Time) liquidation.Candidate {
	t.Helper()
	hf := liquidation.HealthyFactor - uint64(risk)*100
	c, err := liquidation.NewCandidate(id, "market", "verse", liquidation.Assessment{
		RiskScore:          risk,
		HealthFactor:       hf,
		LiquidatableAmount: amount,
	}, addedAt)
	require.NoError(t, err)
	return *c
}

func newQueue(t *testing.T, size int, monitoring, liquidate uint8) *liquidation.Queue {
	t.Helper()
	q, err := liquidation.NewQueue(liquidation.QueueConfig{
		MaxSize:              size,
		MonitoringThreshold:  monitoring,
		LiquidationThreshold: liquidate,
		StaleAfter:           time.Minute,
	})
	require.NoError(t, err)
	return q
}

func TestQueue_GetNextBatch(t *testing.T) {
	t.Parallel()
	q := newQueue(t, 10, 30, 80)

	for _, c := range []liquidation.Candidate{
		candidate(t, "risk90", 90, 2_000_000, now),
		candidate(t, "risk60", 60, 1_000_000, now),
		candidate(t, "risk95", 95, 3_000_000, now),
		candidate(t, "risk40", 40, 1_000_000, now),
	} {
		evicted, err := q.Add(c)
		require.NoError(t, err)
		require.Nil(t, evicted)
	}
	require.Equal(t, 4, q.Len())
	before := q.TotalLiquidatable()
	require.Equal(t, uint64(7_000_000), before)

	batch := q.GetNextBatch(2)
	require.Len(t, batch, 2)
	require.Equal(t, "risk95", batch[0].PositionID)
	require.Equal(t, "risk90", batch[1].PositionID)
	require.Greater(t, batch[0].Priority, batch[1].Priority)
	require.Equal(t, before-batch[0].LiquidatableAmount-batch[1].LiquidatableAmount, q.TotalLiquidatable())

	// What is left is below the liquidation threshold.
	require.Empty(t, q.GetNextBatch(10))
	require.Equal(t, 2, q.Len())
	require.False(t, q.Contains("risk95"))
	require.True(t, q.Contains("risk60"))
	require.Nil(t, q.GetNextBatch(0))

	stats := q.Stats()
	require.Equal(t, uint64(4), stats.Added)
	require.Equal(t, uint64(2), stats.Liquidated)
}

func TestQueue_Add(t *testing.T) {
	t.Parallel()
	q := newQueue(t, 3, 50, 80)

	_, err := q.Add(candidate(t, "safe", 49, 1_000_000, now))
	require.ErrorIs(t, err, liquidation.ErrBelowMonitoringThreshold)

	_, err = q.Add(candidate(t, "p1", 70, 1_000_000, now))
	require.NoError(t, err)
	_, err = q.Add(candidate(t, "p1", 99, 5_000_000, now))
	require.ErrorIs(t, err, liquidation.ErrDuplicateCandidate)

	for i, risk := range []uint8{90, 60} {
		_, err := q.Add(candidate(t, fmt.Sprintf("p%d", i+2), risk, 1_000_000, now))
		require.NoError(t, err)
	}

	// Full: the lowest priority entry goes.
	evicted, err := q.Add(candidate(t, "p4", 95, 1_000_000, now))
	require.NoError(t, err)
	require.NotNil(t, evicted)
	require.Equal(t, "p3", evicted.PositionID)
	require.Equal(t, 3, q.Len())
	require.Equal(t, uint64(3_000_000), q.TotalLiquidatable())
	require.Equal(t, uint64(1), q.Stats().Evicted)

	candidates := q.Candidates()
	for i := 1; i < len(candidates); i++ {
		require.GreaterOrEqual(t, candidates[i-1].Priority, candidates[i].Priority)
	}

	// A newcomer ranking last is evicted right away.
	evicted, err = q.Add(candidate(t, "p5", 55, 1_000_000, now))
	require.NoError(t, err)
	require.Equal(t, "p5", evicted.PositionID)
	require.False(t, q.Contains("p5"))

	removed, err := q.Remove("p1")
	require.NoError(t, err)
	require.Equal(t, uint64(70), uint64(removed.RiskScore))
	require.Equal(t, uint64(2_000_000), q.TotalLiquidatable())
	_, err = q.Remove("p1")
	require.ErrorIs(t, err, liquidation.ErrCandidateNotFound)
}

func TestQueue_SweepStale(t *testing.T) {
	t.Parallel()
	q := newQueue(t, 10, 0, 90)

	_, err := q.Add(candidate(t, "old", 99, 4_000_000, now.Add(-2*time.Minute)))
	require.NoError(t, err)
	_, err = q.Add(candidate(t, "fresh", 10, 1_000_000, now.Add(-30*time.Second)))
	require.NoError(t, err)

	stale := q.SweepStale(now)
	require.Len(t, stale, 1)
	require.Equal(t, "old", stale[0].PositionID)
	require.Equal(t, uint64(1_000_000), q.TotalLiquidatable())
	require.Equal(t, uint64(1), q.Stats().StaleRemoved)
	require.Empty(t, q.SweepStale(now))
}

func TestQueue_Config(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  liquidation.QueueConfig
	}{
		{"zero size", liquidation.QueueConfig{MaxSize: 0, MonitoringThreshold: 80, LiquidationThreshold: 90, StaleAfter: time.Minute}},
		{"inverted thresholds", liquidation.QueueConfig{MaxSize: 1, MonitoringThreshold: 95, LiquidationThreshold: 90, StaleAfter: time.Minute}},
		{"threshold above max", liquidation.QueueConfig{MaxSize: 1, MonitoringThreshold: 80, LiquidationThreshold: 101, StaleAfter: time.Minute}},
		{"no stale window", liquidation.QueueConfig{MaxSize: 1, MonitoringThreshold: 80, LiquidationThreshold: 90}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := liquidation.NewQueue(tt.cfg)
			require.ErrorIs(t, err, liquidation.ErrInvalidQueueConfig)
			require.ErrorIs(t, err, fixedpoint.ErrInvalidInput)
		})
	}

	q, err := liquidation.NewQueue(liquidation.DefaultQueueConfig())
	require.NoError(t, err)
	require.Equal(t, uint8(80), q.Config().MonitoringThreshold)
	require.Equal(t, uint8(90), q.Config().LiquidationThreshold)
	require.Equal(t, 100, q.Config().MaxSize)
}

func TestQueue_ConcurrentBatches(t *testing.T) {
	t.Parallel()
	q := newQueue(t, 200, 80, 80)

	var total uint64
	for i := 0; i < 200; i++ {
		c := candidate(t, fmt.Sprintf("p%d", i), uint8(80+i%20), uint64(i+1)*1_000, now)
		_, err := q.Add(c)
		require.NoError(t, err)
		total += c.LiquidatableAmount
	}
	require.Equal(t, total, q.TotalLiquidatable())

	var (
		wg   sync.WaitGroup
		lock sync.Mutex
		seen = make(map[string]int)
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch := q.GetNextBatch(7)
				if len(batch) == 0 {
					return
				}
				lock.Lock()
				for _, c := range batch {
					seen[c.PositionID]++
				}
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, 200)
	for id, n := range seen {
		require.Equal(t, 1, n, id)
	}
	require.Zero(t, q.TotalLiquidatable())
	require.Zero(t, q.Len())
}
