package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"origen/internal/common/metrics"
	"origen/internal/origination/domain"
)

// DataStore implements domain.AtomicExecutor and domain.Repositories over a
// pgx connection pool.
type DataStore struct {
	pool *pgxpool.Pool
	repo *CreditRequestRepository
}

// NewDataStore creates a new DataStore with the given connection pool.
func NewDataStore(pool *pgxpool.Pool) *DataStore {
	return &DataStore{
		pool: pool,
		repo: NewCreditRequestRepository(pool),
	}
}

// CreditRequests returns the credit request repository.
func (ds *DataStore) CreditRequests() domain.CreditRequestRepository {
	return ds.repo
}

// withTx creates a new DataStore whose repositories share the transaction.
func (ds *DataStore) withTx(tx pgx.Tx) *DataStore {
	return &DataStore{
		pool: ds.pool,
		repo: NewCreditRequestRepository(tx),
	}
}

// Atomic executes the callback within a database transaction.
// If the callback returns nil, the transaction is committed.
// If the callback returns an error or panics, the transaction is rolled back.
func (ds *DataStore) Atomic(ctx context.Context, fn domain.AtomicCallback) (err error) {
	start := time.Now()
	defer func() { metrics.RecordTransactionDuration("credit_requests", time.Since(start)) }()

	tx, err := ds.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	// Use defer to handle both errors and panics
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				err = fmt.Errorf("tx error: %v, rollback error: %v", err, rbErr)
			}
		} else {
			err = tx.Commit(ctx)
			if err != nil {
				err = fmt.Errorf("commit transaction: %w", err)
			}
		}
	}()

	err = fn(ds.withTx(tx))
	return
}

// Verify interface implementations.
var (
	_ domain.AtomicExecutor = (*DataStore)(nil)
	_ domain.Repositories   = (*DataStore)(nil)
)
