package domain

import "context"

// PositionRepository is the abstraction for any kind of database intended
// to persist Positions.
type PositionRepository interface {
	// AddPosition adds a new position to the repository.
	AddPosition(ctx context.Context, position *Position) error
	// GetPosition returns the position with the given id.
	GetPosition(ctx context.Context, id string) (*Position, error)
	// GetActivePositionsForVerse returns the active positions held within
	// the given verse.
	GetActivePositionsForVerse(ctx context.Context, verseID string) ([]Position, error)
	// GetActivePositionsForMarket returns the active positions open on the
	// given market.
	GetActivePositionsForMarket(ctx context.Context, marketID string) ([]Position, error)
	// GetPositionsForOwner returns all positions of the given owner.
	GetPositionsForOwner(ctx context.Context, owner string) ([]Position, error)
	// UpdatePosition updates the state of a position in a transactional way.
	UpdatePosition(
		ctx context.Context,
		id string, updateFn func(p *Position) (*Position, error),
	) error
}
