package inmemory

import (
	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/gary322/flashbets-sub011/internal/core/ports"
)

type repoManager struct {
	marketRepository   domain.MarketRepository
	positionRepository domain.PositionRepository
	verseRepository    domain.VerseRepository
}

// NewRepoManager returns a RepoManager keeping everything in memory.
func NewRepoManager() ports.RepoManager {
	return &repoManager{
		marketRepository:   NewMarketRepositoryImpl(),
		positionRepository: NewPositionRepositoryImpl(),
		verseRepository:    NewVerseRepositoryImpl(),
	}
}

func (r *repoManager) MarketRepository() domain.MarketRepository {
	return r.marketRepository
}

func (r *repoManager) PositionRepository() domain.PositionRepository {
	return r.positionRepository
}

func (r *repoManager) VerseRepository() domain.VerseRepository {
	return r.verseRepository
}

func (r *repoManager) Close() error { return nil }
