package services

import (
	"errors"
	"fmt"
)

// Client errors. Handlers map these to 400 responses; everything else the
// engine recovers from internally.
var (
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidSeason = errors.New("invalid_season")
	ErrInvalidLimit  = errors.New("invalid_limit")
	ErrInvalidInput  = errors.New("invalid_input")
)

// IsClientError reports whether err is an input validation failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAction) ||
		errors.Is(err, ErrInvalidSeason) ||
		errors.Is(err, ErrInvalidLimit) ||
		errors.Is(err, ErrInvalidInput)
}

func limitError(limit int) error {
	return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidLimit, limit)
}
