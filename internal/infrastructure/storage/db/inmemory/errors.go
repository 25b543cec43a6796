package inmemory

import (
	"errors"
	"fmt"
)

var (
	// ErrMarketAlreadyExists ...
	ErrMarketAlreadyExists = errors.New("market already exists")
	// ErrPositionAlreadyExists ...
	ErrPositionAlreadyExists = errors.New("position already exists")
	// ErrVerseAlreadyExists ...
	ErrVerseAlreadyExists = errors.New("verse already exists")
	// ErrInvalidRequest ...
	ErrInvalidRequest = errors.New("requested entity is null")
)

func notFound(err error, id string) error {
	return fmt.Errorf("%w: %s", err, id)
}
