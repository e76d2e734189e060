package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors:
//   - ErrNotFound: record does not exist in the store
//   - ErrAlreadyUsed: a one-shot resource (correlation key) was consumed
//   - ErrInvalidState: entity is in the wrong state for the operation
//   - ErrUnavailable: backing storage is temporarily unreachable
//
// ErrNotFound and ErrUnavailable must never be conflated: a lookup that
// failed is not a lookup that found nothing.
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
