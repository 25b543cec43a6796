package dbbadger

import (
	"context"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

// ErrMarketAlreadyExists ...
var ErrMarketAlreadyExists = errors.New("market already exists")

type marketRepositoryImpl struct {
	store *badgerhold.Store
}

// NewMarketRepositoryImpl initialize a badger implementation of the
// domain.MarketRepository
func NewMarketRepositoryImpl(store *badgerhold.Store) domain.MarketRepository {
	return marketRepositoryImpl{store}
}

func (m marketRepositoryImpl) AddMarket(
	_ context.Context, market *domain.Market,
) error {
	if market == nil {
		return ErrInvalidRequest
	}
	if err := m.store.Insert(market.ID, market); err != nil {
		return mapError(err, domain.ErrMarketNotFound, ErrMarketAlreadyExists, market.ID)
	}
	return nil
}

func (m marketRepositoryImpl) GetMarket(
	_ context.Context, id string,
) (*domain.Market, error) {
	var market domain.Market
	if err := m.store.Get(id, &market); err != nil {
		return nil, mapError(err, domain.ErrMarketNotFound, nil, id)
	}
	return &market, nil
}

func (m marketRepositoryImpl) GetActiveMarkets(
	_ context.Context,
) ([]domain.Market, error) {
	query := badgerhold.Where("Status").MatchFunc(
		func(ra *badgerhold.RecordAccess) (bool, error) {
			status, ok := ra.Field().(domain.MarketStatus)
			return ok && status == domain.MarketStatusActive, nil
		},
	)
	return m.findMarkets(query)
}

func (m marketRepositoryImpl) GetAllMarkets(
	_ context.Context,
) ([]domain.Market, error) {
	return m.findMarkets(nil)
}

func (m marketRepositoryImpl) UpdateMarket(
	_ context.Context,
	id string,
	updateFn func(m *domain.Market) (*domain.Market, error),
) error {
	return m.store.Badger().Update(func(tx *badger.Txn) error {
		var market domain.Market
		if err := m.store.TxGet(tx, id, &market); err != nil {
			return mapError(err, domain.ErrMarketNotFound, nil, id)
		}

		updatedMarket, err := updateFn(&market)
		if err != nil {
			return err
		}
		if updatedMarket == nil {
			return ErrInvalidRequest
		}

		return m.store.TxUpdate(tx, id, updatedMarket)
	})
}

func (m marketRepositoryImpl) DeleteMarket(_ context.Context, id string) error {
	if err := m.store.Delete(id, domain.Market{}); err != nil {
		return mapError(err, domain.ErrMarketNotFound, nil, id)
	}
	return nil
}

func (m marketRepositoryImpl) findMarkets(
	query *badgerhold.Query,
) ([]domain.Market, error) {
	markets := make([]domain.Market, 0)
	if err := m.store.Find(&markets, query); err != nil {
		return nil, err
	}
	sort.SliceStable(markets, func(i, j int) bool {
		if markets[i].CreatedAt != markets[j].CreatedAt {
			return markets[i].CreatedAt < markets[j].CreatedAt
		}
		return markets[i].ID < markets[j].ID
	})
	return markets, nil
}
