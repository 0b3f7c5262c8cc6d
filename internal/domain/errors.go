package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// ConflictError is raised when a resting order's version moved between
// claim and commit. The matcher recovers from it by retrying the same order.
type ConflictError struct {
	OrderID  uint64
	Expected uint64
	Observed uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("order %d: version %d, expected %d: %s", e.OrderID, e.Observed, e.Expected, ErrVersionConflict)
}

func (e *ConflictError) IsRetriable() bool {
	return true
}

func (e *ConflictError) Unwrap() error {
	return ErrVersionConflict
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrUnrecognizedSide is returned for any side tag other than BUY or SELL.
	ErrUnrecognizedSide = errors.New("unrecognized side")

	// ErrInvalidQuantity is returned for non-positive quantities or over-fills.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidPrice is returned for negative limit prices.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrVersionConflict marks a commit that lost its optimistic check.
	ErrVersionConflict = errors.New("version conflict")

	// ErrAlreadyInHistory is returned when something tries to settle or fill a settled order.
	ErrAlreadyInHistory = errors.New("order already in history")

	// ErrAlreadyMatching is returned when a second attempt is started for the same order.
	ErrAlreadyMatching = errors.New("order already matching")

	// ErrNotInBook is returned when relocating an order that was never inserted.
	ErrNotInBook = errors.New("order not in book")

	// ErrUnknownTicker is returned when inspecting a ticker with no book.
	ErrUnknownTicker = errors.New("unknown ticker")

	// ErrPoolClosed is returned when work is submitted after shutdown began.
	ErrPoolClosed = errors.New("worker pool closed")
)
