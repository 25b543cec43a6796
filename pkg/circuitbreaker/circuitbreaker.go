package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

var (
	// MaxNumOfFailingRequests ...
	MaxNumOfFailingRequests = 10
	// FailingRatio ...
	FailingRatio = 0.6
	// DefaultMaxConsecutiveFailures ...
	DefaultMaxConsecutiveFailures uint32 = 1
	// DefaultOpenTimeout is how long a tripped market breaker rejects calls
	// before letting a probe through.
	DefaultOpenTimeout = 5 * time.Minute

	// ErrMarketHalted is returned for calls against a market whose breaker is
	// open.
	ErrMarketHalted = errors.New("market is halted")
)

// NewCircuitBreaker is a factory function returning a *gobreaker.CircuitBreaker
// with a default state-changing function that activates if the overall number
// of failing requests have reached a tweakable MaxNumOfFailingRequests cap and
// the failing ratio has met the FailingRatio.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
		},
	})
}

// MarketSettings configures the breakers of a MarketBreakers.
type MarketSettings struct {
	// MaxConsecutiveFailures is the number of consecutive tripping errors
	// after which a market breaker opens.
	MaxConsecutiveFailures uint32
	// OpenTimeout is the time an open breaker waits before going half-open.
	OpenTimeout time.Duration
	// Trips tells which errors count as failures. Any other error is
	// returned to the caller without affecting the breaker.
	Trips func(error) bool
	// OnStateChange is optional.
	OnStateChange func(marketID string, from, to gobreaker.State)
}

// MarketBreakers keeps one lazily created breaker per market.
type MarketBreakers struct {
	lock     sync.Mutex
	settings MarketSettings
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewMarketBreakers ...
func NewMarketBreakers(settings MarketSettings) *MarketBreakers {
	if settings.MaxConsecutiveFailures == 0 {
		settings.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = DefaultOpenTimeout
	}
	if settings.Trips == nil {
		settings.Trips = func(error) bool { return true }
	}
	return &MarketBreakers{
		settings: settings,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Execute runs fn through the breaker of marketID. It returns an error
// wrapping ErrMarketHalted without calling fn if the breaker is open.
func (m *MarketBreakers) Execute(marketID string, fn func() error) error {
	var passthrough error
	_, err := m.get(marketID).Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if m.settings.Trips(err) {
				return nil, err
			}
			passthrough = err
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s", ErrMarketHalted, marketID)
		}
		return err
	}
	return passthrough
}

// State ...
func (m *MarketBreakers) State(marketID string) gobreaker.State {
	return m.get(marketID).State()
}

// Reset drops the breaker of marketID, closing it.
func (m *MarketBreakers) Reset(marketID string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.breakers, marketID)
}

func (m *MarketBreakers) get(marketID string) *gobreaker.CircuitBreaker {
	m.lock.Lock()
	defer m.lock.Unlock()

	if cb, ok := m.breakers[marketID]; ok {
		return cb
	}
	maxFailures := m.settings.MaxConsecutiveFailures
	onStateChange := m.settings.OnStateChange
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    marketID,
		Timeout: m.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if onStateChange != nil {
				onStateChange(name, from, to)
			}
		},
	})
	m.breakers[marketID] = cb
	return cb
}
