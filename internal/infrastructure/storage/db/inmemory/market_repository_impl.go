package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/gary322/flashbets-sub011/internal/core/domain"
)

// MarketRepositoryImpl represents an in memory storage
type MarketRepositoryImpl struct {
	markets map[string]domain.Market

	lock *sync.RWMutex
}

// NewMarketRepositoryImpl returns a new empty MarketRepositoryImpl
func NewMarketRepositoryImpl() *MarketRepositoryImpl {
	return &MarketRepositoryImpl{
		markets: map[string]domain.Market{},
		lock:    &sync.RWMutex{},
	}
}

func (r *MarketRepositoryImpl) AddMarket(
	_ context.Context, market *domain.Market,
) error {
	if market == nil {
		return ErrInvalidRequest
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.markets[market.ID]; ok {
		return ErrMarketAlreadyExists
	}
	r.markets[market.ID] = copyMarket(*market)
	return nil
}

func (r *MarketRepositoryImpl) GetMarket(
	_ context.Context, id string,
) (*domain.Market, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return r.getMarket(id)
}

// GetActiveMarkets returns all the markets available for trading
func (r *MarketRepositoryImpl) GetActiveMarkets(
	_ context.Context,
) ([]domain.Market, error) {
	return r.findMarkets(func(m domain.Market) bool { return m.IsActive() }), nil
}

// GetAllMarkets returns all the markets either active or not.
func (r *MarketRepositoryImpl) GetAllMarkets(
	_ context.Context,
) ([]domain.Market, error) {
	return r.findMarkets(func(domain.Market) bool { return true }), nil
}

// UpdateMarket updates data to a market identified by id passing an update
// function
func (r *MarketRepositoryImpl) UpdateMarket(
	_ context.Context,
	id string,
	updateFn func(m *domain.Market) (*domain.Market, error),
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	currentMarket, err := r.getMarket(id)
	if err != nil {
		return err
	}

	updatedMarket, err := updateFn(currentMarket)
	if err != nil {
		return err
	}
	if updatedMarket == nil {
		return ErrInvalidRequest
	}

	r.markets[id] = copyMarket(*updatedMarket)
	return nil
}

func (r *MarketRepositoryImpl) DeleteMarket(_ context.Context, id string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.markets[id]; !ok {
		return notFound(domain.ErrMarketNotFound, id)
	}
	delete(r.markets, id)
	return nil
}

func (r *MarketRepositoryImpl) getMarket(id string) (*domain.Market, error) {
	market, ok := r.markets[id]
	if !ok {
		return nil, notFound(domain.ErrMarketNotFound, id)
	}
	m := copyMarket(market)
	return &m, nil
}

func (r *MarketRepositoryImpl) findMarkets(
	filter func(domain.Market) bool,
) []domain.Market {
	r.lock.RLock()
	defer r.lock.RUnlock()

	markets := make([]domain.Market, 0)
	for _, m := range r.markets {
		if filter(m) {
			markets = append(markets, copyMarket(m))
		}
	}
	sort.SliceStable(markets, func(i, j int) bool {
		if markets[i].CreatedAt != markets[j].CreatedAt {
			return markets[i].CreatedAt < markets[j].CreatedAt
		}
		return markets[i].ID < markets[j].ID
	})
	return markets
}
