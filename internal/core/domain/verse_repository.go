package domain

import "context"

// VerseRepository is the abstraction for any kind of database intended to
// persist Verses.
type VerseRepository interface {
	// AddVerse adds a new verse to the repository.
	AddVerse(ctx context.Context, verse *Verse) error
	// GetVerse returns the verse with the given id.
	GetVerse(ctx context.Context, id string) (*Verse, error)
	// GetAllVerses ...
	GetAllVerses(ctx context.Context) ([]Verse, error)
	// UpdateVerse updates the state of a verse in a transactional way.
	UpdateVerse(
		ctx context.Context,
		id string, updateFn func(v *Verse) (*Verse, error),
	) error
}
