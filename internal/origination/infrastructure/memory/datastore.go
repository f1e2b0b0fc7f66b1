package memory

import (
	"context"
	"sort"
	"sync"

	"origen/internal/origination/domain"
)

// DataStore implements domain.AtomicExecutor and domain.Repositories in
// memory. It backs unit tests, the BDD suite, and local development.
// Concurrency: all access is guarded by a mutex; Atomic holds the lock for the
// duration of the callback, so each callback observes a consistent snapshot.
type DataStore struct {
	mu             sync.Mutex
	creditRequests map[int64]*domain.CreditRequest
	byNumber       map[string]int64
	nextID         int64

	repo *creditRequestRepository
}

// NewDataStore creates a new in-memory DataStore.
func NewDataStore() *DataStore {
	ds := &DataStore{
		creditRequests: make(map[int64]*domain.CreditRequest),
		byNumber:       make(map[string]int64),
		nextID:         1,
	}
	ds.repo = &creditRequestRepository{store: ds}
	return ds
}

// CreditRequests returns the credit request repository.
func (ds *DataStore) CreditRequests() domain.CreditRequestRepository {
	return ds.repo
}

// Atomic executes the callback atomically.
// It locks the store, runs the callback against a transactional overlay, and
// commits staged changes only if the callback succeeds.
func (ds *DataStore) Atomic(ctx context.Context, fn domain.AtomicCallback) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	tx := &transaction{
		parent: ds,
		staged: make(map[int64]*domain.CreditRequest),
		nextID: ds.nextID,
	}

	if err := fn(tx); err != nil {
		return err
	}

	// Commit: apply staged changes
	for id, req := range tx.staged {
		ds.creditRequests[id] = req
		ds.byNumber[req.RequestNumber()] = id
	}
	ds.nextID = tx.nextID

	return nil
}

// transaction overlays staged writes on the parent store.
type transaction struct {
	parent *DataStore
	staged map[int64]*domain.CreditRequest
	nextID int64
}

func (tx *transaction) CreditRequests() domain.CreditRequestRepository {
	return &txCreditRequestRepository{tx: tx}
}

func (tx *transaction) lookup(id int64) (*domain.CreditRequest, bool) {
	if req, ok := tx.staged[id]; ok {
		return req, true
	}
	req, ok := tx.parent.creditRequests[id]
	return req, ok
}

// clone produces an independent copy so callers cannot mutate stored state
// outside a commit.
func clone(req *domain.CreditRequest) *domain.CreditRequest {
	return domain.ReconstructCreditRequest(
		req.ID(),
		req.ClientID(), req.VehicleID(), req.SellerID(),
		req.RequestNumber(),
		req.Amount(),
		req.TermMonths(),
		req.DownPayment(),
		req.InternalScore(), req.ExternalScore(),
		req.InstallmentToIncome(), req.AnnualRate(),
		req.MonthlyInstallment(), req.TotalPayable(),
		req.RequestedAt(),
		req.State(),
		req.Verdict(),
		req.ApprovedByOverride(),
		req.Version(),
	)
}

// withID rebuilds a new aggregate with its storage-assigned id.
func withID(req *domain.CreditRequest, id int64) *domain.CreditRequest {
	return domain.ReconstructCreditRequest(
		id,
		req.ClientID(), req.VehicleID(), req.SellerID(),
		req.RequestNumber(),
		req.Amount(),
		req.TermMonths(),
		req.DownPayment(),
		req.InternalScore(), req.ExternalScore(),
		req.InstallmentToIncome(), req.AnnualRate(),
		req.MonthlyInstallment(), req.TotalPayable(),
		req.RequestedAt(),
		req.State(),
		req.Verdict(),
		req.ApprovedByOverride(),
		req.Version(),
	)
}

// txCreditRequestRepository is the transactional repository view.
type txCreditRequestRepository struct {
	tx *transaction
}

func (r *txCreditRequestRepository) Insert(ctx context.Context, req *domain.CreditRequest) (*domain.CreditRequest, error) {
	stored := withID(req, r.tx.nextID)
	r.tx.nextID++
	r.tx.staged[stored.ID()] = stored
	return clone(stored), nil
}

func (r *txCreditRequestRepository) FindByID(ctx context.Context, id int64) (*domain.CreditRequest, error) {
	req, ok := r.tx.lookup(id)
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	return clone(req), nil
}

func (r *txCreditRequestRepository) ExistsByRequestNumber(ctx context.Context, requestNumber string) (bool, error) {
	for _, req := range r.tx.staged {
		if req.RequestNumber() == requestNumber {
			return true, nil
		}
	}
	_, ok := r.tx.parent.byNumber[requestNumber]
	return ok, nil
}

func (r *txCreditRequestRepository) ConditionalSave(ctx context.Context, req *domain.CreditRequest, expectedVersion int64) error {
	current, ok := r.tx.lookup(req.ID())
	if !ok {
		return domain.ErrRequestNotFound
	}
	if current.Version() != expectedVersion {
		return domain.ErrConcurrentModification
	}
	r.tx.staged[req.ID()] = clone(req)
	return nil
}

func (r *txCreditRequestRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.CreditRequest, error) {
	merged := make(map[int64]*domain.CreditRequest, len(r.tx.parent.creditRequests))
	for id, req := range r.tx.parent.creditRequests {
		merged[id] = req
	}
	for id, req := range r.tx.staged {
		merged[id] = req
	}
	return collect(merged, filter), nil
}

// creditRequestRepository is the non-transactional view used for reads.
type creditRequestRepository struct {
	store *DataStore
}

func (r *creditRequestRepository) Insert(ctx context.Context, req *domain.CreditRequest) (*domain.CreditRequest, error) {
	var stored *domain.CreditRequest
	err := r.store.Atomic(ctx, func(repos domain.Repositories) error {
		var err error
		stored, err = repos.CreditRequests().Insert(ctx, req)
		return err
	})
	return stored, err
}

func (r *creditRequestRepository) FindByID(ctx context.Context, id int64) (*domain.CreditRequest, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	req, ok := r.store.creditRequests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	return clone(req), nil
}

func (r *creditRequestRepository) ExistsByRequestNumber(ctx context.Context, requestNumber string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	_, ok := r.store.byNumber[requestNumber]
	return ok, nil
}

func (r *creditRequestRepository) ConditionalSave(ctx context.Context, req *domain.CreditRequest, expectedVersion int64) error {
	return r.store.Atomic(ctx, func(repos domain.Repositories) error {
		return repos.CreditRequests().ConditionalSave(ctx, req, expectedVersion)
	})
}

func (r *creditRequestRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.CreditRequest, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return collect(r.store.creditRequests, filter), nil
}

func collect(requests map[int64]*domain.CreditRequest, filter domain.ListFilter) []*domain.CreditRequest {
	ids := make([]int64, 0, len(requests))
	for id := range requests {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*domain.CreditRequest, 0, len(ids))
	for _, id := range ids {
		req := requests[id]
		if filter.State != nil && req.State() != *filter.State {
			continue
		}
		if filter.ClientID != nil && req.ClientID() != *filter.ClientID {
			continue
		}
		out = append(out, clone(req))
	}
	return out
}

// Verify interface implementations.
var (
	_ domain.AtomicExecutor = (*DataStore)(nil)
	_ domain.Repositories   = (*DataStore)(nil)
)
