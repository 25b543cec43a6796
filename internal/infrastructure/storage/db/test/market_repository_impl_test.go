package db_test

import (
	"testing"

	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestMarketRepositoryImplementations(t *testing.T) {
	for _, m := range createRepoManagers(t) {
		m := m
		t.Run(m.Name, func(t *testing.T) {
			t.Parallel()
			repo := m.Manager.MarketRepository()

			t.Run("testAddGetMarket", func(t *testing.T) {
				t.Parallel()
				testAddGetMarket(t, repo)
			})
			t.Run("testGetActiveMarkets", func(t *testing.T) {
				testGetActiveMarkets(t, repo)
			})
			t.Run("testUpdateMarket", func(t *testing.T) {
				t.Parallel()
				testUpdateMarket(t, repo)
			})
		})
	}
}

func testAddGetMarket(t *testing.T, repo domain.MarketRepository) {
	market := makeRandomMarket(t, now.Unix())
	require.NoError(t, repo.AddMarket(ctx, market))
	require.Error(t, repo.AddMarket(ctx, market))

	got, err := repo.GetMarket(ctx, market.ID)
	require.NoError(t, err)
	require.Equal(t, market.ID, got.ID)
	require.Equal(t, market.AMMType, got.AMMType)
	require.Equal(t, market.LMSR.Quantities, got.LMSR.Quantities)
	require.Nil(t, got.PMAMM)

	_, err = repo.GetMarket(ctx, "unknown")
	require.ErrorIs(t, err, domain.ErrMarketNotFound)

	require.NoError(t, repo.DeleteMarket(ctx, market.ID))
	_, err = repo.GetMarket(ctx, market.ID)
	require.ErrorIs(t, err, domain.ErrMarketNotFound)
	require.ErrorIs(t, repo.DeleteMarket(ctx, market.ID), domain.ErrMarketNotFound)
}

func testGetActiveMarkets(t *testing.T, repo domain.MarketRepository) {
	first := makeRandomMarket(t, 1)
	second := makeRandomMarket(t, 2)
	halted := makeRandomMarket(t, 3)
	require.NoError(t, halted.Halt())
	for _, m := range []*domain.Market{second, halted, first} {
		require.NoError(t, repo.AddMarket(ctx, m))
	}

	active, err := repo.GetActiveMarkets(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(active))
	for _, m := range active {
		require.True(t, m.IsActive())
		ids = append(ids, m.ID)
	}
	require.Contains(t, ids, first.ID)
	require.Contains(t, ids, second.ID)
	require.NotContains(t, ids, halted.ID)

	all, err := repo.GetAllMarkets(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(all), 3)
	for i := 1; i < len(all); i++ {
		require.LessOrEqual(t, all[i-1].CreatedAt, all[i].CreatedAt)
	}
}

func testUpdateMarket(t *testing.T, repo domain.MarketRepository) {
	market := makeRandomMarket(t, now.Unix())
	require.NoError(t, repo.AddMarket(ctx, market))

	err := repo.UpdateMarket(ctx, market.ID, func(m *domain.Market) (*domain.Market, error) {
		m.LMSR.Quantities = []uint64{10, 20}
		m.Collateral = 42
		return m, nil
	})
	require.NoError(t, err)

	got, err := repo.GetMarket(ctx, market.ID)
	require.NoError(t, err)
	require.Equal(t, []uint64{10, 20}, got.LMSR.Quantities)
	require.Equal(t, uint64(42), got.Collateral)

	// A failing update is not committed.
	err = repo.UpdateMarket(ctx, market.ID, func(m *domain.Market) (*domain.Market, error) {
		m.LMSR.Quantities[0] = 1_000
		m.Collateral = 0
		return nil, domain.ErrMarketNotActive
	})
	require.ErrorIs(t, err, domain.ErrMarketNotActive)

	got, err = repo.GetMarket(ctx, market.ID)
	require.NoError(t, err)
	require.Equal(t, []uint64{10, 20}, got.LMSR.Quantities)
	require.Equal(t, uint64(42), got.Collateral)

	err = repo.UpdateMarket(ctx, "unknown", func(m *domain.Market) (*domain.Market, error) {
		return m, nil
	})
	require.ErrorIs(t, err, domain.ErrMarketNotFound)
}
