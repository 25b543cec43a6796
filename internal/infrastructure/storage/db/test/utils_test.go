package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/gary322/flashbets-sub011/internal/core/ports"
	dbbadger "github.com/gary322/flashbets-sub011/internal/infrastructure/storage/db/badger"
	"github.com/gary322/flashbets-sub011/internal/infrastructure/storage/db/inmemory"
	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
	"github.com/gary322/flashbets-sub011/pkg/leverage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	ctx = context.Background()
	now = time.Unix(1_700_000_000, 0)
)

type repoManager struct {
	Name    string
	Manager ports.RepoManager
}

// createRepoManagers returns one manager per implementation: in memory,
// badger in memory and badger on disk.
func createRepoManagers(t *testing.T) []repoManager {
	t.Helper()

	badgerInMemory, err := dbbadger.NewRepoManager("", nil)
	require.NoError(t, err)
	badgerOnDisk, err := dbbadger.NewRepoManager(t.TempDir(), nil)
	require.NoError(t, err)

	managers := []repoManager{
		{Name: "inmemory", Manager: inmemory.NewRepoManager()},
		{Name: "badger_inmemory", Manager: badgerInMemory},
		{Name: "badger", Manager: badgerOnDisk},
	}
	t.Cleanup(func() {
		for _, m := range managers {
			require.NoError(t, m.Manager.Close())
		}
	})
	return managers
}

func makeRandomMarket(t *testing.T, createdAt int64) *domain.Market {
	t.Helper()
	m, err := domain.NewLMSRMarket(domain.MarketSetup{
		Title:     "market " + uuid.New().String(),
		Outcomes:  2,
		ExpiresAt: now.Add(48 * time.Hour),
		Liquidity: 1_000_000,
		FeeBps:    30,
	}, now)
	require.NoError(t, err)
	m.CreatedAt = createdAt
	return m
}

func makeRandomPosition(
	t *testing.T, owner, marketID, verseID string, openedAt int64,
) *domain.Position {
	t.Helper()
	p, err := domain.NewPosition(domain.PositionSetup{
		Owner:      owner,
		MarketID:   marketID,
		VerseID:    verseID,
		Side:       leverage.Long,
		Size:       1_000,
		Leverage:   fixedpoint.FromInt64(4),
		EntryPrice: fixedpoint.MustFromDecimalString("0.5"),
		Margin:     125,
	}, now)
	require.NoError(t, err)
	p.OpenedAt = openedAt
	return p
}
