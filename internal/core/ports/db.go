package ports

import (
	"github.com/gary322/flashbets-sub011/internal/core/domain"
)

// RepoManager interface defines the methods for markets, positions and
// verses.
type RepoManager interface {
	MarketRepository() domain.MarketRepository
	PositionRepository() domain.PositionRepository
	VerseRepository() domain.VerseRepository

	Close() error
}
