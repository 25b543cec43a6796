package application_test

import (
	"context"

	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

// **** RepoManager ****

type mockRepoManager struct {
	mock.Mock
	marketRepository domain.MarketRepository
}

func (m *mockRepoManager) MarketRepository() domain.MarketRepository {
	return m.marketRepository
}

func (m *mockRepoManager) PositionRepository() domain.PositionRepository {
	args := m.Called()

	var res domain.PositionRepository
	if a := args.Get(0); a != nil {
		res = a.(domain.PositionRepository)
	}
	return res
}

func (m *mockRepoManager) VerseRepository() domain.VerseRepository {
	args := m.Called()

	var res domain.VerseRepository
	if a := args.Get(0); a != nil {
		res = a.(domain.VerseRepository)
	}
	return res
}

func (m *mockRepoManager) Close() error {
	args := m.Called()
	return args.Error(0)
}

// **** MarketRepository ****

type mockMarketRepository struct {
	mock.Mock
}

func (m *mockMarketRepository) AddMarket(
	ctx context.Context, market *domain.Market,
) error {
	args := m.Called(ctx, market)
	return args.Error(0)
}

func (m *mockMarketRepository) GetMarket(
	ctx context.Context, id string,
) (*domain.Market, error) {
	args := m.Called(ctx, id)

	var res *domain.Market
	if a := args.Get(0); a != nil {
		res = a.(*domain.Market)
	}
	return res, args.Error(1)
}

func (m *mockMarketRepository) GetActiveMarkets(
	ctx context.Context,
) ([]domain.Market, error) {
	args := m.Called(ctx)

	var res []domain.Market
	if a := args.Get(0); a != nil {
		res = a.([]domain.Market)
	}
	return res, args.Error(1)
}

func (m *mockMarketRepository) GetAllMarkets(
	ctx context.Context,
) ([]domain.Market, error) {
	args := m.Called(ctx)

	var res []domain.Market
	if a := args.Get(0); a != nil {
		res = a.([]domain.Market)
	}
	return res, args.Error(1)
}

func (m *mockMarketRepository) UpdateMarket(
	ctx context.Context,
	id string, updateFn func(m *domain.Market) (*domain.Market, error),
) error {
	args := m.Called(ctx, id, updateFn)
	return args.Error(0)
}

func (m *mockMarketRepository) DeleteMarket(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
