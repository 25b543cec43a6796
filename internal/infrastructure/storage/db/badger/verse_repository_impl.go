package dbbadger

import (
	"context"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/gary322/flashbets-sub011/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

// ErrVerseAlreadyExists ...
var ErrVerseAlreadyExists = errors.New("verse already exists")

type verseRepositoryImpl struct {
	store *badgerhold.Store
}

// NewVerseRepositoryImpl initialize a badger implementation of the
// domain.VerseRepository
func NewVerseRepositoryImpl(store *badgerhold.Store) domain.VerseRepository {
	return verseRepositoryImpl{store}
}

func (v verseRepositoryImpl) AddVerse(
	_ context.Context, verse *domain.Verse,
) error {
	if verse == nil {
		return ErrInvalidRequest
	}
	if err := v.store.Insert(verse.ID, verse); err != nil {
		return mapError(err, domain.ErrVerseNotFound, ErrVerseAlreadyExists, verse.ID)
	}
	return nil
}

func (v verseRepositoryImpl) GetVerse(
	_ context.Context, id string,
) (*domain.Verse, error) {
	var verse domain.Verse
	if err := v.store.Get(id, &verse); err != nil {
		return nil, mapError(err, domain.ErrVerseNotFound, nil, id)
	}
	return &verse, nil
}

func (v verseRepositoryImpl) GetAllVerses(
	_ context.Context,
) ([]domain.Verse, error) {
	verses := make([]domain.Verse, 0)
	if err := v.store.Find(&verses, nil); err != nil {
		return nil, err
	}
	sort.SliceStable(verses, func(i, j int) bool {
		if verses[i].CreatedAt != verses[j].CreatedAt {
			return verses[i].CreatedAt < verses[j].CreatedAt
		}
		return verses[i].ID < verses[j].ID
	})
	return verses, nil
}

func (v verseRepositoryImpl) UpdateVerse(
	_ context.Context,
	id string,
	updateFn func(v *domain.Verse) (*domain.Verse, error),
) error {
	return v.store.Badger().Update(func(tx *badger.Txn) error {
		var verse domain.Verse
		if err := v.store.TxGet(tx, id, &verse); err != nil {
			return mapError(err, domain.ErrVerseNotFound, nil, id)
		}

		updatedVerse, err := updateFn(&verse)
		if err != nil {
			return err
		}
		if updatedVerse == nil {
			return ErrInvalidRequest
		}

		return v.store.TxUpdate(tx, id, updatedVerse)
	})
}
