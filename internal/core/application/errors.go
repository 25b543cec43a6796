package application

import (
	"errors"
	"fmt"

	"github.com/gary322/flashbets-sub011/pkg/fixedpoint"
)

var (
	// ErrServiceUnavailable is the error returned by the services in case of
	// internal errors
	ErrServiceUnavailable = errors.New("service is unavailable, try again later")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = fmt.Errorf("%w: invalid request", fixedpoint.ErrInvalidInput)
	// ErrInsufficientMargin is returned when the margin offered for a
	// position is below the one its leverage requires.
	ErrInsufficientMargin = errors.New("margin is below the required collateral")
	// ErrPositionTooSmall is returned for positions worth nothing at the
	// current price.
	ErrPositionTooSmall = errors.New("position notional is zero at the current price")
	// ErrUnassignedPosition is returned when a verse merge leaves a position
	// of the dissolving verse without successor.
	ErrUnassignedPosition = errors.New("every position of a merged verse must go to a successor")
	// ErrPositionHealthy is returned when liquidating a position whose risk
	// is below the liquidation threshold.
	ErrPositionHealthy = errors.New("position is not eligible for liquidation")
	// ErrUnknownDBType ...
	ErrUnknownDBType = errors.New("unknown db type")
)
