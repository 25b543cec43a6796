package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/gary322/flashbets-sub011/internal/core/domain"
)

// VerseRepositoryImpl represents an in memory storage
type VerseRepositoryImpl struct {
	verses map[string]domain.Verse

	lock *sync.RWMutex
}

// NewVerseRepositoryImpl returns a new empty VerseRepositoryImpl
func NewVerseRepositoryImpl() *VerseRepositoryImpl {
	return &VerseRepositoryImpl{
		verses: map[string]domain.Verse{},
		lock:   &sync.RWMutex{},
	}
}

func (r *VerseRepositoryImpl) AddVerse(
	_ context.Context, verse *domain.Verse,
) error {
	if verse == nil {
		return ErrInvalidRequest
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.verses[verse.ID]; ok {
		return ErrVerseAlreadyExists
	}
	r.verses[verse.ID] = copyVerse(*verse)
	return nil
}

func (r *VerseRepositoryImpl) GetVerse(
	_ context.Context, id string,
) (*domain.Verse, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	verse, ok := r.verses[id]
	if !ok {
		return nil, notFound(domain.ErrVerseNotFound, id)
	}
	v := copyVerse(verse)
	return &v, nil
}

func (r *VerseRepositoryImpl) GetAllVerses(
	_ context.Context,
) ([]domain.Verse, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	verses := make([]domain.Verse, 0, len(r.verses))
	for _, v := range r.verses {
		verses = append(verses, copyVerse(v))
	}
	sort.SliceStable(verses, func(i, j int) bool {
		if verses[i].CreatedAt != verses[j].CreatedAt {
			return verses[i].CreatedAt < verses[j].CreatedAt
		}
		return verses[i].ID < verses[j].ID
	})
	return verses, nil
}

func (r *VerseRepositoryImpl) UpdateVerse(
	_ context.Context,
	id string,
	updateFn func(v *domain.Verse) (*domain.Verse, error),
) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	verse, ok := r.verses[id]
	if !ok {
		return notFound(domain.ErrVerseNotFound, id)
	}
	current := copyVerse(verse)

	updatedVerse, err := updateFn(&current)
	if err != nil {
		return err
	}
	if updatedVerse == nil {
		return ErrInvalidRequest
	}

	r.verses[id] = copyVerse(*updatedVerse)
	return nil
}
