package contracts

import "errors"

// Error taxonomy. Wrap with fmt.Errorf("...: %w", Err...) and test with errors.Is.
var (
	// ErrDataUnavailable: missing or insufficient history; the instrument is skipped this cycle.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrInvalidQuote: price <= 0 or a one-tick limit lock; the trade is rejected.
	ErrInvalidQuote = errors.New("invalid quote")
	// ErrCapacityExceeded: cash, daily quota or single-instrument cap.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrStatePersistence: a state write failed; in-memory state stays authoritative.
	ErrStatePersistence = errors.New("state persistence failed")
	// ErrRegimeComputation: regime classification failed; choppy weights apply.
	ErrRegimeComputation = errors.New("regime computation failed")
)
