package dbbadger

import (
	"context"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

// ErrPositionAlreadyExists ...
var ErrPositionAlreadyExists = errors.New("position already exists")

type positionRepositoryImpl struct {
	store *badgerhold.Store
}

// NewPositionRepositoryImpl initialize a badger implementation of the
// domain.PositionRepository
func NewPositionRepositoryImpl(store *badgerhold.Store) domain.PositionRepository {
	return positionRepositoryImpl{store}
}

func (p positionRepositoryImpl) AddPosition(
	_ context.Context, position *domain.Position,
) error {
	if position == nil {
		return ErrInvalidRequest
	}
	if err := p.store.Insert(position.ID, position); err != nil {
		return mapError(err, domain.ErrPositionNotFound, ErrPositionAlreadyExists, position.ID)
	}
	return nil
}

func (p positionRepositoryImpl) GetPosition(
	_ context.Context, id string,
) (*domain.Position, error) {
	var position domain.Position
	if err := p.store.Get(id, &position); err != nil {
		return nil, mapError(err, domain.ErrPositionNotFound, nil, id)
	}
	return &position, nil
}

func (p positionRepositoryImpl) GetActivePositionsForVerse(
	_ context.Context, verseID string,
) ([]domain.Position, error) {
	query := badgerhold.Where("VerseID").Eq(verseID).And("Status").MatchFunc(isActive)
	return p.findPositions(query)
}

func (p positionRepositoryImpl) GetActivePositionsForMarket(
	_ context.Context, marketID string,
) ([]domain.Position, error) {
	query := badgerhold.Where("MarketID").Eq(marketID).And("Status").MatchFunc(isActive)
	return p.findPositions(query)
}

func (p positionRepositoryImpl) GetPositionsForOwner(
	_ context.Context, owner string,
) ([]domain.Position, error) {
	return p.findPositions(badgerhold.Where("Owner").Eq(owner))
}

func (p positionRepositoryImpl) UpdatePosition(
	_ context.Context,
	id string,
	updateFn func(p *domain.Position) (*domain.Position, error),
) error {
	return p.store.Badger().Update(func(tx *badger.Txn) error {
		var position domain.Position
		if err := p.store.TxGet(tx, id, &position); err != nil {
			return mapError(err, domain.ErrPositionNotFound, nil, id)
		}

		updatedPosition, err := updateFn(&position)
		if err != nil {
			return err
		}
		if updatedPosition == nil {
			return ErrInvalidRequest
		}

		return p.store.TxUpdate(tx, id, updatedPosition)
	})
}

func (p positionRepositoryImpl) findPositions(
	query *badgerhold.Query,
) ([]domain.Position, error) {
	positions := make([]domain.Position, 0)
	if err := p.store.Find(&positions, query); err != nil {
		return nil, err
	}
	sort.SliceStable(positions, func(i, j int) bool {
		if positions[i].OpenedAt != positions[j].OpenedAt {
			return positions[i].OpenedAt < positions[j].OpenedAt
		}
		return positions[i].ID < positions[j].ID
	})
	return positions, nil
}

func isActive(ra *badgerhold.RecordAccess) (bool, error) {
	status, ok := ra.Field().(domain.PositionStatus)
	return ok && status == domain.PositionStatusActive, nil
}
