package market

import "errors"

var (
	// ErrNotFound indicates the upstream (or the local cache, for cache-only
	// lookups) confirms the entity does not exist.
	ErrNotFound = errors.New("market: not found")
	// ErrTransient marks recoverable failures such as network errors,
	// timeouts and rate limiting. Stores surface it without retrying.
	ErrTransient = errors.New("market: transient upstream failure")
	// ErrNoData is returned when a local query needs at least one row.
	ErrNoData = errors.New("market: no data")
	// ErrValidation marks malformed input.
	ErrValidation = errors.New("market: validation failed")
)
