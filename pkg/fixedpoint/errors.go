package fixedpoint

import (
	"errors"
	"fmt"
)

var (
	// ErrMathOverflow is returned when a result is above the representable range.
	ErrMathOverflow = errors.New("math overflow")
	// ErrMathUnderflow is returned when a result is below the representable range.
	ErrMathUnderflow = errors.New("math underflow")
	// ErrDivisionByZero ...
	ErrDivisionByZero = errors.New("division by zero")
	// ErrCastOverflow is returned when converting to a narrower type would lose
	// the integer part of a value.
	ErrCastOverflow = errors.New("cast overflow")
	// ErrIndexOutOfBounds is returned when a table lookup falls outside of the
	// table domain.
	ErrIndexOutOfBounds = errors.New("index out of bounds")
	// ErrInvalidInput is the parent of every malformed parameter error.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidBps ...
	ErrInvalidBps = fmt.Errorf("%w: basis points must be in range [0, 10000]", ErrInvalidInput)
)
