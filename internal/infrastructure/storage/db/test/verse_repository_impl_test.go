package db_test

import (
	"testing"
	"time"

	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestVerseRepositoryImplementations(t *testing.T) {
	for _, m := range createRepoManagers(t) {
		m := m
		t.Run(m.Name, func(t *testing.T) {
			t.Parallel()
			repo := m.Manager.VerseRepository()

			root := domain.NewVerse("root", "", now)
			child := domain.NewVerse("child", root.ID, now.Add(time.Second))
			require.NoError(t, repo.AddVerse(ctx, child))
			require.NoError(t, repo.AddVerse(ctx, root))
			require.Error(t, repo.AddVerse(ctx, root))

			got, err := repo.GetVerse(ctx, child.ID)
			require.NoError(t, err)
			require.Equal(t, root.ID, got.ParentID)

			_, err = repo.GetVerse(ctx, "unknown")
			require.ErrorIs(t, err, domain.ErrVerseNotFound)

			all, err := repo.GetAllVerses(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			require.Equal(t, root.ID, all[0].ID)

			err = repo.UpdateVerse(ctx, child.ID, func(v *domain.Verse) (*domain.Verse, error) {
				if err := v.Merge([]string{root.ID}, now); err != nil {
					return nil, err
				}
				return v, nil
			})
			require.NoError(t, err)

			got, err = repo.GetVerse(ctx, child.ID)
			require.NoError(t, err)
			require.Equal(t, domain.VerseStatusMerged, got.Status)
			require.Equal(t, []string{root.ID}, got.Successors)
		})
	}
}
