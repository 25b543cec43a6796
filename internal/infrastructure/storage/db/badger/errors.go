package dbbadger

import (
	"errors"
	"fmt"

	"github.com/timshannon/badgerhold/v4"
)

var (
	// ErrInvalidRequest ...
	ErrInvalidRequest = errors.New("requested entity is null")
)

// mapError translates badgerhold sentinel errors into the given domain ones.
func mapError(err, notFound, exists error, id string) error {
	switch {
	case errors.Is(err, badgerhold.ErrNotFound):
		return fmt.Errorf("%w: %s", notFound, id)
	case errors.Is(err, badgerhold.ErrKeyExists) && exists != nil:
		return exists
	}
	return err
}
