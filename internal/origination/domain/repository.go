package domain

import "context"

// ListFilter narrows List results. Nil fields match everything.
type ListFilter struct {
	State    *State
	ClientID *int64
}

// CreditRequestRepository defines the interface for credit request persistence.
type CreditRequestRepository interface {
	// Insert persists a new aggregate at version 0 and returns it with the
	// storage-assigned id.
	Insert(ctx context.Context, req *CreditRequest) (*CreditRequest, error)
	// FindByID retrieves a credit request by id.
	// Returns ErrRequestNotFound when no record exists.
	FindByID(ctx context.Context, id int64) (*CreditRequest, error)
	// ExistsByRequestNumber reports whether a request number is already taken.
	ExistsByRequestNumber(ctx context.Context, requestNumber string) (bool, error)
	// ConditionalSave persists the aggregate only if the stored version still
	// equals expectedVersion (compare-and-swap).
	// Returns ErrConcurrentModification on a version mismatch.
	ConditionalSave(ctx context.Context, req *CreditRequest, expectedVersion int64) error
	// List retrieves credit requests matching the filter, ordered by id.
	List(ctx context.Context, filter ListFilter) ([]*CreditRequest, error)
}

// ReferenceValidator checks that foreign identifiers resolve before a create
// commits. Implementations live outside this core.
type ReferenceValidator interface {
	ClientExists(ctx context.Context, id int64) (bool, error)
	VehicleExists(ctx context.Context, id int64) (bool, error)
	SellerExists(ctx context.Context, id int64) (bool, error)
}

// Repositories provides access to all repositories within a transaction.
// This is used with the Atomic pattern to ensure all operations share the same
// transaction.
type Repositories interface {
	CreditRequests() CreditRequestRepository
}

// AtomicCallback is the function signature for atomic operations.
// Any error returned will cause the transaction to be rolled back.
type AtomicCallback func(repos Repositories) error

// AtomicExecutor runs a callback within a single storage transaction. The
// service requests an atomic operation with a set of procedures defined in the
// callback; commits and rollbacks are left for the implementation.
type AtomicExecutor interface {
	// Atomic executes the callback within a database transaction.
	// If the callback returns nil, the transaction is committed.
	// If the callback returns an error, the transaction is rolled back.
	Atomic(ctx context.Context, fn AtomicCallback) error
}
