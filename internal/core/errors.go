package core

import "errors"

// Error taxonomy shared by every component. Callers match with errors.Is;
// anything wrapped around these keeps its kind.
var (
	// ErrNotFound: the referenced account, transaction or budget is absent
	// or not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrInvalid: malformed amount, inconsistent recurrence fields, unknown
	// enum value. Surfaced before any store effect.
	ErrInvalid = errors.New("invalid input")

	// ErrUnauthorized: no resolvable identity for the session token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict: a unique constraint was violated, e.g. two default
	// accounts for one owner.
	ErrConflict = errors.New("conflict")

	// ErrPartialOwnership: a bulk operation referenced at least one id that
	// does not belong to the caller. Nothing is applied.
	ErrPartialOwnership = errors.New("partial ownership")

	// ErrTransient: the store was unavailable or the unit of work timed
	// out. Safe to retry.
	ErrTransient = errors.New("transient store failure")

	// ErrExhausted: a job ran out of delivery attempts and was
	// dead-lettered.
	ErrExhausted = errors.New("retries exhausted")
)
