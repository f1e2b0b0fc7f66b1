package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"origen/internal/origination/domain"
)

// CreditRequestRepository implements domain.CreditRequestRepository using
// PostgreSQL. Writes use the version column for optimistic concurrency.
type CreditRequestRepository struct {
	db Executor
}

// NewCreditRequestRepository binds the repository to a database handle (pool
// or tx). Callers control transactional scope by passing a pgx.Tx when
// participating in a unit of work.
func NewCreditRequestRepository(db Executor) *CreditRequestRepository {
	return &CreditRequestRepository{db: db}
}

const creditRequestColumns = `
	id, client_id, vehicle_id, seller_id, request_number,
	amount, term_months, down_payment,
	internal_score, external_score, installment_to_income, annual_rate,
	monthly_installment, total_payable,
	requested_at, state, decision_verdict, approved_by_override, version`

// Insert persists a new aggregate and returns it with the assigned id.
func (r *CreditRequestRepository) Insert(ctx context.Context, req *domain.CreditRequest) (*domain.CreditRequest, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO origination.credit_requests (
			client_id, vehicle_id, seller_id, request_number,
			amount, term_months, down_payment,
			internal_score, external_score, installment_to_income, annual_rate,
			monthly_installment, total_payable,
			requested_at, state, decision_verdict, approved_by_override, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id`,
		req.ClientID(), req.VehicleID(), req.SellerID(), req.RequestNumber(),
		req.Amount(), req.TermMonths(), req.DownPayment(),
		req.InternalScore(), req.ExternalScore(), req.InstallmentToIncome(), req.AnnualRate(),
		req.MonthlyInstallment(), req.TotalPayable(),
		req.RequestedAt(), string(req.State()), string(req.Verdict()), req.ApprovedByOverride(), req.Version(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateRequestNumber
		}
		return nil, err
	}

	return domain.ReconstructCreditRequest(
		id,
		req.ClientID(), req.VehicleID(), req.SellerID(),
		req.RequestNumber(),
		req.Amount(), req.TermMonths(), req.DownPayment(),
		req.InternalScore(), req.ExternalScore(),
		req.InstallmentToIncome(), req.AnnualRate(),
		req.MonthlyInstallment(), req.TotalPayable(),
		req.RequestedAt(), req.State(), req.Verdict(), req.ApprovedByOverride(), req.Version(),
	), nil
}

// FindByID retrieves a credit request by id.
func (r *CreditRequestRepository) FindByID(ctx context.Context, id int64) (*domain.CreditRequest, error) {
	row := r.db.QueryRow(ctx, `
		SELECT`+creditRequestColumns+`
		FROM origination.credit_requests
		WHERE id = $1`,
		id,
	)
	req, err := scanCreditRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRequestNotFound
	}
	return req, err
}

// ExistsByRequestNumber reports whether the request number is taken.
func (r *CreditRequestRepository) ExistsByRequestNumber(ctx context.Context, requestNumber string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM origination.credit_requests WHERE request_number = $1)`,
		requestNumber,
	).Scan(&exists)
	return exists, err
}

// ConditionalSave updates the stored row only if its version still equals
// expectedVersion. A failed compare leaves the row untouched and returns
// domain.ErrConcurrentModification.
func (r *CreditRequestRepository) ConditionalSave(ctx context.Context, req *domain.CreditRequest, expectedVersion int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE origination.credit_requests
		SET amount = $1,
			term_months = $2,
			down_payment = $3,
			annual_rate = $4,
			monthly_installment = $5,
			total_payable = $6,
			state = $7,
			decision_verdict = $8,
			approved_by_override = $9,
			version = $10,
			updated_at = now()
		WHERE id = $11 AND version = $12`,
		req.Amount(),
		req.TermMonths(),
		req.DownPayment(),
		req.AnnualRate(),
		req.MonthlyInstallment(),
		req.TotalPayable(),
		string(req.State()),
		string(req.Verdict()),
		req.ApprovedByOverride(),
		req.Version(),
		req.ID(),
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a version conflict.
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM origination.credit_requests WHERE id = $1)`,
			req.ID(),
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrRequestNotFound
		}
		return domain.ErrConcurrentModification
	}
	return nil
}

// List retrieves credit requests matching the filter, ordered by id.
func (r *CreditRequestRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.CreditRequest, error) {
	query := `SELECT` + creditRequestColumns + ` FROM origination.credit_requests`
	args := make([]any, 0, 2)
	where := ""

	if filter.State != nil {
		args = append(args, string(*filter.State))
		where = fmt.Sprintf(" WHERE state = $%d", len(args))
	}
	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		if where == "" {
			where = fmt.Sprintf(" WHERE client_id = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND client_id = $%d", len(args))
		}
	}

	rows, err := r.db.Query(ctx, query+where+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.CreditRequest
	for rows.Next() {
		req, err := scanCreditRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCreditRequest(row rowScanner) (*domain.CreditRequest, error) {
	var (
		id, clientID, vehicleID, sellerID                  int64
		requestNumber, state, verdict                      string
		amount, downPayment                                decimal.Decimal
		internalScore, externalScore                       decimal.Decimal
		installmentToIncome, annualRate                    decimal.Decimal
		monthlyInstallment, totalPayable                   decimal.Decimal
		termMonths                                         int
		requestedAt                                        time.Time
		approvedByOverride                                 bool
		version                                            int64
	)

	if err := row.Scan(
		&id, &clientID, &vehicleID, &sellerID, &requestNumber,
		&amount, &termMonths, &downPayment,
		&internalScore, &externalScore, &installmentToIncome, &annualRate,
		&monthlyInstallment, &totalPayable,
		&requestedAt, &state, &verdict, &approvedByOverride, &version,
	); err != nil {
		return nil, err
	}

	parsedState, err := domain.ParseState(state)
	if err != nil {
		return nil, fmt.Errorf("%w: state %q", domain.ErrCorruptData, state)
	}

	return domain.ReconstructCreditRequest(
		id,
		clientID, vehicleID, sellerID,
		requestNumber,
		amount, termMonths, downPayment,
		internalScore, externalScore,
		installmentToIncome, annualRate,
		monthlyInstallment, totalPayable,
		requestedAt, parsedState, domain.Verdict(verdict), approvedByOverride, version,
	), nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}

// Verify interface implementation.
var _ domain.CreditRequestRepository = (*CreditRequestRepository)(nil)
