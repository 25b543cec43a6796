package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/gary322/flashbets-sub011/internal/core/domain"
)

// PositionRepositoryImpl represents an in memory storage
type PositionRepositoryImpl struct {
	positions map[string]domain.Position

	lock *sync.RWMutex
}

// NewPositionRepositoryImpl returns a new empty PositionRepositoryImpl
func NewPositionRepositoryImpl() *PositionRepositoryImpl {
	return &PositionRepositoryImpl{
		positions: map[string]domain.Position{},
		lock:      &sync.RWMutex{},
	}
}

func (r *PositionRepositoryImpl) AddPosition(
	_ context.Context, position *domain.Position,
) error {
	if position == nil {
		return ErrInvalidRequest
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.positions[position.ID]; ok {
		return ErrPositionAlreadyExists
	}
	r.positions[position.ID] = *position
	return nil
}

func (r *PositionRepositoryImpl) GetPosition(
	_ context.Context, id string,
) (*domain.Position, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	position, ok := r.positions[id]
	if !ok {
		return nil, notFound(domain.ErrPositionNotFound, id)
	}
	return &position, nil
}

func (r *PositionRepositoryImpl) GetActivePositionsForVerse(
	_ context.Context, verseID string,
) ([]domain.Position, error) {
	return r.findPositions(func(p domain.Position) bool {
		return p.IsActive() && p.VerseID == verseID
	}), nil
}

func (r *PositionRepositoryImpl) GetActivePositionsForMarket(
	_ context.Context, marketID string,
) ([]domain.Position, error) {
	return r.findPositions(func(p domain.Position) bool {
		return p.IsActive() && p.MarketID == marketID
	}), nil
}

func (r *PositionRepositoryImpl) GetPositionsForOwner(
	_ context.Context, owner string,
) ([]domain.Position, error) {
	return r.findPositions(func(p domain.Position) bool {
		return p.Owner == owner
	}), nil
}

func (r *PositionRepositoryImpl) UpdatePosition(
	_ context.Context,
	id string,
	updateFn func(p *domain.Position) (*domain.Position, error),
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	position, ok := r.positions[id]
	if !ok {
		return notFound(domain.ErrPositionNotFound, id)
	}

	updatedPosition, err := updateFn(&position)
	if err != nil {
		return err
	}
	if updatedPosition == nil {
		return ErrInvalidRequest
	}

	r.positions[id] = *updatedPosition
	return nil
}

func (r *PositionRepositoryImpl) findPositions(
	filter func(domain.Position) bool,
) []domain.Position {
	r.lock.RLock()
	defer r.lock.RUnlock()

	positions := make([]domain.Position, 0)
	for _, p := range r.positions {
		if filter(p) {
			positions = append(positions, p)
		}
	}
	sort.SliceStable(positions, func(i, j int) bool {
		if positions[i].OpenedAt != positions[j].OpenedAt {
			return positions[i].OpenedAt < positions[j].OpenedAt
		}
		return positions[i].ID < positions[j].ID
	})
	return positions
}
