package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"origen/internal/common/logging"
	"origen/internal/common/metrics"
	"origen/internal/origination/domain"
)

// ErrUnknownDecision is returned when a decision is neither APPROVED nor REJECTED.
var ErrUnknownDecision = errors.New("unknown decision")

// LifecycleService implements the application layer for the origination context.
//
// Key design decisions:
//   - All state-changing operations use the Atomic callback pattern, so the
//     version compare and the conditional write share one transaction
//   - The service never retries a version conflict; it surfaces
//     ErrConcurrentModification and lets the caller re-read and resubmit
//   - The affordability policy is immutable for the life of the process
type LifecycleService struct {
	dataStore domain.AtomicExecutor
	repos     domain.Repositories
	refs      domain.ReferenceValidator
	policy    domain.ApprovalPolicy
	now       func() time.Time
}

// NewLifecycleService creates a new LifecycleService.
// The dataStore must implement both AtomicExecutor and Repositories interfaces.
func NewLifecycleService(dataStore interface {
	domain.AtomicExecutor
	domain.Repositories
}, refs domain.ReferenceValidator, policy domain.ApprovalPolicy) *LifecycleService {
	return &LifecycleService{
		dataStore: dataStore,
		repos:     dataStore,
		refs:      refs,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreditRequestResponse is the plain record returned by every operation.
type CreditRequestResponse struct {
	ID                  int64           `json:"id"`
	RequestNumber       string          `json:"request_number"`
	ClientID            int64           `json:"client_id"`
	VehicleID           int64           `json:"vehicle_id"`
	SellerID            int64           `json:"seller_id"`
	Amount              decimal.Decimal `json:"amount"`
	TermMonths          int             `json:"term_months"`
	DownPayment         decimal.Decimal `json:"down_payment"`
	InternalScore       decimal.Decimal `json:"internal_score"`
	ExternalScore       decimal.Decimal `json:"external_score"`
	InstallmentToIncome decimal.Decimal `json:"installment_to_income"`
	AnnualRate          decimal.Decimal `json:"annual_rate"`
	MonthlyInstallment  decimal.Decimal `json:"monthly_installment"`
	TotalPayable        decimal.Decimal `json:"total_payable"`
	RequestedAt         time.Time       `json:"requested_at"`
	State               string          `json:"state"`
	StateLabel          string          `json:"state_label"`
	Verdict             string          `json:"verdict,omitempty"`
	ApprovedByOverride  bool            `json:"approved_by_override,omitempty"`
	Version             int64           `json:"version"`
}

func toResponse(req *domain.CreditRequest) *CreditRequestResponse {
	return &CreditRequestResponse{
		ID:                  req.ID(),
		RequestNumber:       req.RequestNumber(),
		ClientID:            req.ClientID(),
		VehicleID:           req.VehicleID(),
		SellerID:            req.SellerID(),
		Amount:              req.Amount(),
		TermMonths:          req.TermMonths(),
		DownPayment:         req.DownPayment(),
		InternalScore:       req.InternalScore(),
		ExternalScore:       req.ExternalScore(),
		InstallmentToIncome: req.InstallmentToIncome(),
		AnnualRate:          req.AnnualRate(),
		MonthlyInstallment:  req.MonthlyInstallment(),
		TotalPayable:        req.TotalPayable(),
		RequestedAt:         req.RequestedAt(),
		State:               req.State().String(),
		StateLabel:          req.State().Label(),
		Verdict:             req.Verdict().String(),
		ApprovedByOverride:  req.ApprovedByOverride(),
		Version:             req.Version(),
	}
}

// CreateRequest carries the inputs for creating a credit request.
type CreateRequest struct {
	RequestNumber       string
	ClientID            int64
	VehicleID           int64
	SellerID            int64
	Amount              decimal.Decimal
	TermMonths          int
	DownPayment         decimal.Decimal
	AnnualRate          decimal.Decimal
	InternalScore       decimal.Decimal
	ExternalScore       decimal.Decimal
	InstallmentToIncome decimal.Decimal
}

// Create validates the foreign references, checks request-number uniqueness,
// computes the amortization plan, and persists the aggregate in DRAFT at
// version 0.
func (s *LifecycleService) Create(ctx context.Context, req CreateRequest) (*CreditRequestResponse, error) {
	if err := s.checkReferences(ctx, req.ClientID, req.VehicleID, req.SellerID); err != nil {
		return nil, err
	}

	var result *CreditRequestResponse

	err := s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		taken, err := repos.CreditRequests().ExistsByRequestNumber(ctx, req.RequestNumber)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrDuplicateRequestNumber
		}

		aggregate, err := domain.NewCreditRequest(domain.NewCreditRequestParams{
			RequestNumber:       req.RequestNumber,
			ClientID:            req.ClientID,
			VehicleID:           req.VehicleID,
			SellerID:            req.SellerID,
			Amount:              req.Amount,
			TermMonths:          req.TermMonths,
			DownPayment:         req.DownPayment,
			AnnualRate:          req.AnnualRate,
			InternalScore:       req.InternalScore,
			ExternalScore:       req.ExternalScore,
			InstallmentToIncome: req.InstallmentToIncome,
			Now:                 s.now(),
		})
		if err != nil {
			return err
		}

		stored, err := repos.CreditRequests().Insert(ctx, aggregate)
		if err != nil {
			return err
		}

		result = toResponse(stored)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CreditRequestsCreated.Inc()
	logging.InfoContext(ctx, "Credit request created",
		"credit_request_id", result.ID,
		"request_number", result.RequestNumber,
		"monthly_installment", result.MonthlyInstallment.String(),
	)
	return result, nil
}

// UpdateFinancialsRequest carries a partial financial update. Nil fields keep
// their current value.
type UpdateFinancialsRequest struct {
	ID              int64
	ExpectedVersion int64
	Amount          *decimal.Decimal
	TermMonths      *int
	DownPayment     *decimal.Decimal
	AnnualRate      *decimal.Decimal
}

// UpdateFinancials mutates the financial fields of a DRAFT request, triggering
// recomputation of the installment and total payable.
func (s *LifecycleService) UpdateFinancials(ctx context.Context, req UpdateFinancialsRequest) (*CreditRequestResponse, error) {
	var result *CreditRequestResponse

	err := s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		aggregate, err := s.loadAtVersion(ctx, repos, req.ID, req.ExpectedVersion, "update_financials")
		if err != nil {
			return err
		}

		if err := aggregate.UpdateFinancials(domain.FinancialUpdate{
			Amount:      req.Amount,
			TermMonths:  req.TermMonths,
			DownPayment: req.DownPayment,
			AnnualRate:  req.AnnualRate,
		}); err != nil {
			return err
		}

		if err := repos.CreditRequests().ConditionalSave(ctx, aggregate, req.ExpectedVersion); err != nil {
			return err
		}

		result = toResponse(aggregate)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.InfoContext(ctx, "Credit request financials updated",
		"credit_request_id", result.ID,
		"version", result.Version,
	)
	return result, nil
}

// SubmitForReview moves a DRAFT into review. The affordability evaluator runs
// at submission; in automatic policy mode a reject verdict transitions the
// request straight to REJECTED within the same write.
func (s *LifecycleService) SubmitForReview(ctx context.Context, id, expectedVersion int64) (*CreditRequestResponse, error) {
	var result *CreditRequestResponse

	err := s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		aggregate, err := s.loadAtVersion(ctx, repos, id, expectedVersion, "submit_for_review")
		if err != nil {
			return err
		}

		verdict := s.evaluate(aggregate)
		autoDecide := s.policy.Mode == domain.PolicyModeAutomatic

		if err := aggregate.SubmitForReview(verdict, autoDecide); err != nil {
			return err
		}

		if err := repos.CreditRequests().ConditionalSave(ctx, aggregate, expectedVersion); err != nil {
			return err
		}

		result = toResponse(aggregate)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.InfoContext(ctx, "Credit request submitted for review",
		"credit_request_id", result.ID,
		"verdict", result.Verdict,
		"state", result.State,
	)
	return result, nil
}

// Decision names the outcome a reviewer asks for.
type Decision string

const (
	DecisionApprove Decision = "APPROVED"
	DecisionReject  Decision = "REJECTED"
)

// DecideRequest carries a reviewer decision on an IN_REVIEW request.
type DecideRequest struct {
	ID              int64
	ExpectedVersion int64
	Decision        Decision
	// Override approves despite a reject verdict, when the policy permits it.
	Override bool
}

// Decide applies a reviewer decision. The evaluator runs again at decision
// time; an approval against a reject verdict either needs a permitted override
// or falls back to the default policy of rejecting the request.
func (s *LifecycleService) Decide(ctx context.Context, req DecideRequest) (*CreditRequestResponse, error) {
	var result *CreditRequestResponse

	err := s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		aggregate, err := s.loadAtVersion(ctx, repos, req.ID, req.ExpectedVersion, "decide")
		if err != nil {
			return err
		}

		verdict := s.evaluate(aggregate)

		switch req.Decision {
		case DecisionApprove:
			switch {
			case verdict == domain.VerdictAdmissible:
				err = aggregate.Approve(verdict, false)
			case req.Override && s.policy.AllowOverride:
				err = aggregate.Approve(verdict, true)
			case req.Override:
				return domain.ErrOverrideNotPermitted
			default:
				// Default policy: a reject verdict forces the rejection.
				err = aggregate.Reject(verdict)
			}
		case DecisionReject:
			err = aggregate.Reject(verdict)
		default:
			return fmt.Errorf("%w: %q", ErrUnknownDecision, req.Decision)
		}
		if err != nil {
			return err
		}

		if err := repos.CreditRequests().ConditionalSave(ctx, aggregate, req.ExpectedVersion); err != nil {
			return err
		}

		result = toResponse(aggregate)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordDecision(result.State)
	logging.InfoContext(ctx, "Credit request decided",
		"credit_request_id", result.ID,
		"decision", string(req.Decision),
		"state", result.State,
		"override", result.ApprovedByOverride,
	)
	return result, nil
}

// Cancel withdraws a request before or during review.
func (s *LifecycleService) Cancel(ctx context.Context, id, expectedVersion int64) (*CreditRequestResponse, error) {
	var result *CreditRequestResponse

	err := s.dataStore.Atomic(ctx, func(repos domain.Repositories) error {
		aggregate, err := s.loadAtVersion(ctx, repos, id, expectedVersion, "cancel")
		if err != nil {
			return err
		}

		if err := aggregate.Cancel(); err != nil {
			return err
		}

		if err := repos.CreditRequests().ConditionalSave(ctx, aggregate, expectedVersion); err != nil {
			return err
		}

		result = toResponse(aggregate)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.InfoContext(ctx, "Credit request canceled", "credit_request_id", result.ID)
	return result, nil
}

// Get retrieves a credit request by id.
// This is a read-only operation and doesn't use the Atomic pattern.
func (s *LifecycleService) Get(ctx context.Context, id int64) (*CreditRequestResponse, error) {
	aggregate, err := s.repos.CreditRequests().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toResponse(aggregate), nil
}

// List retrieves credit requests matching the filter.
func (s *LifecycleService) List(ctx context.Context, filter domain.ListFilter) ([]*CreditRequestResponse, error) {
	aggregates, err := s.repos.CreditRequests().List(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make([]*CreditRequestResponse, 0, len(aggregates))
	for _, a := range aggregates {
		out = append(out, toResponse(a))
	}
	return out, nil
}

// loadAtVersion reads the aggregate and enforces the optimistic-version
// contract before any change is applied.
func (s *LifecycleService) loadAtVersion(ctx context.Context, repos domain.Repositories, id, expectedVersion int64, operation string) (*domain.CreditRequest, error) {
	aggregate, err := repos.CreditRequests().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if aggregate.Version() != expectedVersion {
		metrics.RecordVersionConflict(operation)
		return nil, domain.ErrConcurrentModification
	}
	return aggregate, nil
}

// evaluate runs the affordability evaluator against the aggregate's figures.
func (s *LifecycleService) evaluate(req *domain.CreditRequest) domain.Verdict {
	verdict := domain.Evaluate(domain.EvaluationInput{
		MonthlyInstallment:  req.MonthlyInstallment(),
		InstallmentToIncome: req.InstallmentToIncome(),
		InternalScore:       req.InternalScore(),
		ExternalScore:       req.ExternalScore(),
	}, s.policy.Thresholds)
	metrics.RecordVerdict(verdict.String())
	return verdict
}

// checkReferences verifies the client, vehicle, and seller resolve before any
// aggregate is constructed.
func (s *LifecycleService) checkReferences(ctx context.Context, clientID, vehicleID, sellerID int64) error {
	checks := []struct {
		kind   string
		id     int64
		exists func(context.Context, int64) (bool, error)
	}{
		{"client", clientID, s.refs.ClientExists},
		{"vehicle", vehicleID, s.refs.VehicleExists},
		{"seller", sellerID, s.refs.SellerExists},
	}

	for _, c := range checks {
		ok, err := c.exists(ctx, c.id)
		if err != nil {
			return fmt.Errorf("checking %s %d: %w", c.kind, c.id, err)
		}
		if !ok {
			return domain.ReferenceNotFoundError{Kind: c.kind, ID: c.id}
		}
	}
	return nil
}
