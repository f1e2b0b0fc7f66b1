package domain

import (
	"errors"
	"fmt"
)

// Domain errors for the origination context.
var (
	// ErrInvalidFinancialInput is returned when the amortization calculator or
	// the aggregate receives malformed numeric inputs.
	ErrInvalidFinancialInput = errors.New("invalid financial input")

	// ErrRequestNotFound is returned when a credit request cannot be found.
	ErrRequestNotFound = errors.New("credit request not found")

	// ErrDuplicateRequestNumber is returned when a request number is already taken.
	ErrDuplicateRequestNumber = errors.New("duplicate request number")

	// ErrConcurrentModification is returned when a write's expected version does
	// not match the stored version. Callers should re-read and resubmit.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrOverrideNotPermitted is returned when an approval override is requested
	// but the configured policy forbids it.
	ErrOverrideNotPermitted = errors.New("approval override not permitted by policy")

	// ErrUnknownState is returned when a state name does not match the closed set.
	ErrUnknownState = errors.New("unknown lifecycle state")

	// ErrInvalidRequestNumber is returned when a request number is empty or too long.
	ErrInvalidRequestNumber = errors.New("request number must be non-empty and at most 50 characters")

	// ErrInvalidReferenceID is returned when a client, vehicle, or seller id is not positive.
	ErrInvalidReferenceID = errors.New("reference id must be positive")

	// ErrVerdictNotAdmissible is returned when an approval is attempted against a
	// reject verdict without an override.
	ErrVerdictNotAdmissible = errors.New("affordability verdict does not permit approval")

	// ErrCorruptData is returned when data loaded from persistence is invalid.
	ErrCorruptData = errors.New("corrupt data in database")
)

// InvalidTransitionError reports an illegal lifecycle edge, naming the current
// state and the requested target.
type InvalidTransitionError struct {
	From State
	To   State
}

// Error implements [error].
func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("illegal state transition from %s to %s", e.From, e.To)
}

// ImmutableStateError reports a field mutation attempted outside DRAFT.
type ImmutableStateError struct {
	State State
}

// Error implements [error].
func (e ImmutableStateError) Error() string {
	return fmt.Sprintf("credit request in state %s is immutable", e.State)
}

// ReferenceNotFoundError reports a client, vehicle, or seller id that does not
// resolve through the reference validators.
type ReferenceNotFoundError struct {
	Kind string // "client", "vehicle", "seller"
	ID   int64
}

// Error implements [error].
func (e ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}
