package domain

import "context"

// MarketRepository is the abstraction for any kind of database intended to
// persist Markets.
type MarketRepository interface {
	// AddMarket adds a new market to the repository.
	AddMarket(ctx context.Context, market *Market) error
	// GetMarket returns the market with the given id.
	GetMarket(ctx context.Context, id string) (*Market, error)
	// GetActiveMarkets returns all markets that are open for trading.
	GetActiveMarkets(ctx context.Context) ([]Market, error)
	// GetAllMarkets returns all markets.
	GetAllMarkets(ctx context.Context) ([]Market, error)
	// UpdateMarket updates the state of a market. The closure function let's to
	// commit multiple changes to a certain market in a transactional way.
	UpdateMarket(
		ctx context.Context,
		id string, updateFn func(m *Market) (*Market, error),
	) error
	// DeleteMarket removes a market from the repository.
	DeleteMarket(ctx context.Context, id string) error
}
