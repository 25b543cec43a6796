package liquidation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
)

const (
	DefaultMonitoringThreshold  = 80
	DefaultLiquidationThreshold = 90
	DefaultMaxQueueSize         = 100
	DefaultStaleAfter           = 30 * time.Minute
)

var (
	// ErrDuplicateCandidate is returned when a position is already queued.
	ErrDuplicateCandidate = errors.New("position is already queued for liquidation")
	// ErrBelowMonitoringThreshold is returned when a candidate is not risky
	// enough to be tracked.
	ErrBelowMonitoringThreshold = errors.New("risk score below monitoring threshold")
	// ErrCandidateNotFound ...
	ErrCandidateNotFound = errors.New("candidate not found")
	// ErrInvalidQueueConfig ...
	ErrInvalidQueueConfig = fmt.Errorf("%w: invalid liquidation queue config", fixedpoint.ErrInvalidInput)
)

// Candidate is a position tracked by the queue.
type Candidate struct {
	PositionID         string
	MarketID           string
	VerseID            string
	RiskScore          uint8
	HealthFactor       uint64
	LiquidatableAmount uint64
	Priority           uint64
	AddedAt            time.Time
}

// NewCandidate builds a candidate out of an assessment, computing its
// priority.
func NewCandidate(positionID, marketID, verseID string, a Assessment, now time.Time) (*Candidate, error) {
	priority, err := Priority(a.RiskScore, a.HealthFactor, a.LiquidatableAmount)
	if err != nil {
		return nil, err
	}
	return &Candidate{
		PositionID:         positionID,
		MarketID:           marketID,
		VerseID:            verseID,
		RiskScore:          a.RiskScore,
		HealthFactor:       a.HealthFactor,
		LiquidatableAmount: a.LiquidatableAmount,
		Priority:           priority,
		AddedAt:            now,
	}, nil
}

// QueueConfig ...
type QueueConfig struct {
	MaxSize              int
	MonitoringThreshold  uint8
	LiquidationThreshold uint8
	StaleAfter           time.Duration
}

// DefaultQueueConfig ...
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxSize:              DefaultMaxQueueSize,
		MonitoringThreshold:  DefaultMonitoringThreshold,
		LiquidationThreshold: DefaultLiquidationThreshold,
		StaleAfter:           DefaultStaleAfter,
	}
}

func (c QueueConfig) validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("%w: max size must be positive", ErrInvalidQueueConfig)
	}
	if c.LiquidationThreshold > MaxRiskScore {
		return fmt.Errorf("%w: liquidation threshold above %d", ErrInvalidQueueConfig, MaxRiskScore)
	}
	if c.MonitoringThreshold > c.LiquidationThreshold {
		return fmt.Errorf(
			"%w: monitoring threshold must not exceed liquidation threshold", ErrInvalidQueueConfig,
		)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("%w: stale window must be positive", ErrInvalidQueueConfig)
	}
	return nil
}

// Stats holds the queue's saturating bookkeeping counters. They stop at
// math.MaxUint64 instead of wrapping and carry no financial meaning.
type Stats struct {
	Added        uint64
	Liquidated   uint64
	Evicted      uint64
	StaleRemoved uint64
}

func saturatingAdd(counter *uint64, n uint64) {
	if *counter > ^uint64(0)-n {
		*counter = ^uint64(0)
		return
	}
	*counter += n
}

// Queue keeps candidates sorted by descending priority. Its size is bounded,
// adding past the bound evicts the lowest priority candidate. Every method is
// safe for concurrent use and each batch extraction is atomic, a candidate is
// handed out at most once.
type Queue struct {
	lock sync.Mutex

	cfg               QueueConfig
	candidates        []Candidate
	index             map[string]struct{}
	totalLiquidatable uint64
	stats             Stats
}

// NewQueue ...
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Queue{
		cfg:        cfg,
		candidates: make([]Candidate, 0, cfg.MaxSize+1),
		index:      make(map[string]struct{}),
	}, nil
}

// Config ...
func (q *Queue) Config() QueueConfig {
	return q.cfg
}

// Add inserts c keeping the queue sorted. Candidates with equal priority keep
// their insertion order. The evicted candidate, if any, is returned.
func (q *Queue) Add(c Candidate) (*Candidate, error) {
	if c.RiskScore < q.cfg.MonitoringThreshold {
		return nil, ErrBelowMonitoringThreshold
	}

	q.lock.Lock()
	defer q.lock.Unlock()

	if _, ok := q.index[c.PositionID]; ok {
		return nil, ErrDuplicateCandidate
	}
	total, err := fixedpoint.AddUint64(q.totalLiquidatable, c.LiquidatableAmount)
	if err != nil {
		return nil, err
	}

	i := sort.Search(len(q.candidates), func(i int) bool {
		return q.candidates[i].Priority < c.Priority
	})
	q.candidates = append(q.candidates, Candidate{})
	copy(q.candidates[i+1:], q.candidates[i:])
	q.candidates[i] = c
	q.index[c.PositionID] = struct{}{}
	q.totalLiquidatable = total
	saturatingAdd(&q.stats.Added, 1)

	if len(q.candidates) <= q.cfg.MaxSize {
		return nil, nil
	}

	last := len(q.candidates) - 1
	evicted := q.candidates[last]
	q.candidates = q.candidates[:last]
	q.untrack(evicted)
	saturatingAdd(&q.stats.Evicted, 1)
	return &evicted, nil
}

// Remove drops the candidate for positionID, eg. once the position is back
// to health.
func (q *Queue) Remove(positionID string) (*Candidate, error) {
	q.lock.Lock()
	defer q.lock.Unlock()

	for i, c := range q.candidates {
		if c.PositionID == positionID {
			q.candidates = append(q.candidates[:i], q.candidates[i+1:]...)
			q.untrack(c)
			return &c, nil
		}
	}
	return nil, ErrCandidateNotFound
}

// GetNextBatch removes and returns up to n candidates whose risk is at least
// the liquidation threshold, in priority order.
func (q *Queue) GetNextBatch(n int) []Candidate {
	if n <= 0 {
		return nil
	}
	q.lock.Lock()
	defer q.lock.Unlock()

	batch := make([]Candidate, 0, n)
	kept := q.candidates[:0]
	for _, c := range q.candidates {
		if len(batch) < n && c.RiskScore >= q.cfg.LiquidationThreshold {
			batch = append(batch, c)
			q.untrack(c)
			continue
		}
		kept = append(kept, c)
	}
	q.candidates = kept
	saturatingAdd(&q.stats.Liquidated, uint64(len(batch)))
	return batch
}

// SweepStale removes and returns the candidates added more than the stale
// window before now, whatever their risk.
func (q *Queue) SweepStale(now time.Time) []Candidate {
	q.lock.Lock()
	defer q.lock.Unlock()

	cutoff := now.Add(-q.cfg.StaleAfter)
	stale := make([]Candidate, 0)
	kept := q.candidates[:0]
	for _, c := range q.candidates {
		if c.AddedAt.Before(cutoff) {
			stale = append(stale, c)
			q.untrack(c)
			continue
		}
		kept = append(kept, c)
	}
	q.candidates = kept
	saturatingAdd(&q.stats.StaleRemoved, uint64(len(stale)))
	return stale
}

// untrack must be called with the lock held. The amounts of queued
// candidates always sum up to the tracked total, so the subtraction is exact.
func (q *Queue) untrack(c Candidate) {
	delete(q.index, c.PositionID)
	q.totalLiquidatable -= c.LiquidatableAmount
}

// Contains ...
func (q *Queue) Contains(positionID string) bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	_, ok := q.index[positionID]
	return ok
}

// Len ...
func (q *Queue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.candidates)
}

// TotalLiquidatable returns the sum of the liquidatable amounts of the
// queued candidates.
func (q *Queue) TotalLiquidatable() uint64 {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.totalLiquidatable
}

// Candidates returns a copy of the queue in priority order.
func (q *Queue) Candidates() []Candidate {
	q.lock.Lock()
	defer q.lock.Unlock()
	out := make([]Candidate, len(q.candidates))
	copy(out, q.candidates)
	return out
}

// Stats ...
func (q *Queue) Stats() Stats {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.stats
}
