package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Field ceilings inherited from the originating system's data contract.
var (
	maxAmount      = decimal.RequireFromString("9999999999.99")
	maxScore       = decimal.RequireFromString("9999.99")
	maxPercent     = decimal.RequireFromString("999.99")
	maxInstallment = decimal.RequireFromString("999999.99")
)

const (
	maxTermMonths       = 999
	maxRequestNumberLen = 50
)

// CreditRequest is the vehicle-financing credit request aggregate root.
// Invariants:
//   - monthlyInstallment and totalPayable are exactly the calculator's output
//     for the current financial fields, never edited independently
//   - totalPayable >= amount - downPayment
//   - state only changes along the edges defined by the transition table
//   - terminal states (APPROVED, REJECTED, CANCELED) are immutable
//   - version increases by exactly 1 per accepted mutation
type CreditRequest struct {
	id            int64
	clientID      int64
	vehicleID     int64
	sellerID      int64
	requestNumber string

	amount              decimal.Decimal
	termMonths          int
	downPayment         decimal.Decimal
	internalScore       decimal.Decimal
	externalScore       decimal.Decimal
	installmentToIncome decimal.Decimal
	annualRate          decimal.Decimal
	monthlyInstallment  decimal.Decimal
	totalPayable        decimal.Decimal

	requestedAt        time.Time
	state              State
	verdict            Verdict // last recorded evaluator verdict, empty before review
	approvedByOverride bool
	version            int64
}

// NewCreditRequestParams carries the caller-supplied inputs for a new request.
// The Now parameter keeps construction pure and testable.
type NewCreditRequestParams struct {
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
	Now                 time.Time
}

// NewCreditRequest constructs a DRAFT credit request at version 0, deriving
// the monthly installment and total payable from the financial inputs.
// Reference existence and request-number uniqueness are preconditions the
// caller establishes before constructing; the aggregate stays independent of
// any storage technology.
func NewCreditRequest(p NewCreditRequestParams) (*CreditRequest, error) {
	if p.RequestNumber == "" || len(p.RequestNumber) > maxRequestNumberLen {
		return nil, ErrInvalidRequestNumber
	}
	if p.ClientID < 1 || p.VehicleID < 1 || p.SellerID < 1 {
		return nil, ErrInvalidReferenceID
	}
	if err := validateScores(p.InternalScore, p.ExternalScore, p.InstallmentToIncome); err != nil {
		return nil, err
	}

	r := &CreditRequest{
		clientID:            p.ClientID,
		vehicleID:           p.VehicleID,
		sellerID:            p.SellerID,
		requestNumber:       p.RequestNumber,
		amount:              p.Amount,
		termMonths:          p.TermMonths,
		downPayment:         p.DownPayment,
		internalScore:       p.InternalScore,
		externalScore:       p.ExternalScore,
		installmentToIncome: p.InstallmentToIncome,
		annualRate:          p.AnnualRate,
		requestedAt:         p.Now,
		state:               StateDraft,
		version:             0,
	}

	if err := r.recompute(); err != nil {
		return nil, err
	}
	return r, nil
}

// ReconstructCreditRequest rehydrates a CreditRequest from persisted state.
// It bypasses business validation; the data is assumed valid from the database.
func ReconstructCreditRequest(
	id int64,
	clientID, vehicleID, sellerID int64,
	requestNumber string,
	amount decimal.Decimal,
	termMonths int,
	downPayment decimal.Decimal,
	internalScore, externalScore decimal.Decimal,
	installmentToIncome, annualRate decimal.Decimal,
	monthlyInstallment, totalPayable decimal.Decimal,
	requestedAt time.Time,
	state State,
	verdict Verdict,
	approvedByOverride bool,
	version int64,
) *CreditRequest {
	return &CreditRequest{
		id:                  id,
		clientID:            clientID,
		vehicleID:           vehicleID,
		sellerID:            sellerID,
		requestNumber:       requestNumber,
		amount:              amount,
		termMonths:          termMonths,
		downPayment:         downPayment,
		internalScore:       internalScore,
		externalScore:       externalScore,
		installmentToIncome: installmentToIncome,
		annualRate:          annualRate,
		monthlyInstallment:  monthlyInstallment,
		totalPayable:        totalPayable,
		requestedAt:         requestedAt,
		state:               state,
		verdict:             verdict,
		approvedByOverride:  approvedByOverride,
		version:             version,
	}
}

// FinancialUpdate carries a partial update of the financial fields.
// Nil fields keep their current value.
type FinancialUpdate struct {
	Amount      *decimal.Decimal
	TermMonths  *int
	DownPayment *decimal.Decimal
	AnnualRate  *decimal.Decimal
}

// UpdateFinancials applies a partial financial update, recomputes the derived
// installment and total, and bumps the version. Permitted only in DRAFT.
func (r *CreditRequest) UpdateFinancials(u FinancialUpdate) error {
	if r.state != StateDraft {
		return ImmutableStateError{State: r.state}
	}

	amount, termMonths, downPayment, annualRate := r.amount, r.termMonths, r.downPayment, r.annualRate
	if u.Amount != nil {
		amount = *u.Amount
	}
	if u.TermMonths != nil {
		termMonths = *u.TermMonths
	}
	if u.DownPayment != nil {
		downPayment = *u.DownPayment
	}
	if u.AnnualRate != nil {
		annualRate = *u.AnnualRate
	}

	prev := *r
	r.amount, r.termMonths, r.downPayment, r.annualRate = amount, termMonths, downPayment, annualRate
	if err := r.recompute(); err != nil {
		*r = prev
		return err
	}

	r.version++
	return nil
}

// SubmitForReview moves a DRAFT into IN_REVIEW, recording the affordability
// verdict. The stored installment and total must still match the calculator's
// output for the current inputs. When autoDecide is set and the verdict is not
// admissible, the request lands in REJECTED within the same accepted write.
func (r *CreditRequest) SubmitForReview(verdict Verdict, autoDecide bool) error {
	if !r.state.CanTransitionTo(StateInReview) {
		return InvalidTransitionError{From: r.state, To: StateInReview}
	}
	if err := r.verifyDerivedFields(); err != nil {
		return err
	}

	r.state = StateInReview
	r.verdict = verdict
	if autoDecide && verdict != VerdictAdmissible {
		r.state = StateRejected
	}
	r.version++
	return nil
}

// Approve moves an IN_REVIEW request to APPROVED. A non-admissible verdict
// requires override; an override approval is recorded distinctly.
func (r *CreditRequest) Approve(verdict Verdict, override bool) error {
	if !r.state.CanTransitionTo(StateApproved) {
		return InvalidTransitionError{From: r.state, To: StateApproved}
	}
	if verdict != VerdictAdmissible && !override {
		return ErrVerdictNotAdmissible
	}

	r.state = StateApproved
	r.verdict = verdict
	r.approvedByOverride = verdict != VerdictAdmissible
	r.version++
	return nil
}

// Reject moves an IN_REVIEW request to REJECTED, recording the verdict that
// motivated the rejection (or the last one, for manual rejections).
func (r *CreditRequest) Reject(verdict Verdict) error {
	if !r.state.CanTransitionTo(StateRejected) {
		return InvalidTransitionError{From: r.state, To: StateRejected}
	}

	r.state = StateRejected
	r.verdict = verdict
	r.version++
	return nil
}

// Cancel withdraws a request before or during review. Cancellation is a
// terminal state, not a removal.
func (r *CreditRequest) Cancel() error {
	if !r.state.CanTransitionTo(StateCanceled) {
		return InvalidTransitionError{From: r.state, To: StateCanceled}
	}

	r.state = StateCanceled
	r.version++
	return nil
}

// recompute validates the financial fields and rederives the installment and
// total payable through the amortization calculator.
func (r *CreditRequest) recompute() error {
	if err := validateFinancials(r.amount, r.termMonths, r.downPayment, r.annualRate); err != nil {
		return err
	}

	plan, err := ComputeInstallment(r.amount.Sub(r.downPayment), r.annualRate, r.termMonths)
	if err != nil {
		return err
	}
	if plan.MonthlyInstallment.GreaterThan(maxInstallment) {
		return fmt.Errorf("%w: monthly installment %s exceeds %s", ErrInvalidFinancialInput, plan.MonthlyInstallment, maxInstallment)
	}
	if plan.TotalPayable.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: total payable %s exceeds %s", ErrInvalidFinancialInput, plan.TotalPayable, maxAmount)
	}

	r.monthlyInstallment = plan.MonthlyInstallment
	r.totalPayable = plan.TotalPayable
	return nil
}

// verifyDerivedFields checks that the stored installment and total are still
// the calculator's output for the current inputs.
func (r *CreditRequest) verifyDerivedFields() error {
	plan, err := ComputeInstallment(r.amount.Sub(r.downPayment), r.annualRate, r.termMonths)
	if err != nil {
		return err
	}
	if !plan.MonthlyInstallment.Equal(r.monthlyInstallment) || !plan.TotalPayable.Equal(r.totalPayable) {
		return fmt.Errorf("%w: stored installment/total do not match amortization output", ErrCorruptData)
	}
	return nil
}

func validateFinancials(amount decimal.Decimal, termMonths int, downPayment, annualRate decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidFinancialInput, amount)
	case amount.GreaterThan(maxAmount):
		return fmt.Errorf("%w: amount %s exceeds %s", ErrInvalidFinancialInput, amount, maxAmount)
	case termMonths < 1 || termMonths > maxTermMonths:
		return fmt.Errorf("%w: term must be between 1 and %d months, got %d", ErrInvalidFinancialInput, maxTermMonths, termMonths)
	case downPayment.IsNegative():
		return fmt.Errorf("%w: down payment cannot be negative, got %s", ErrInvalidFinancialInput, downPayment)
	case downPayment.GreaterThanOrEqual(amount):
		return fmt.Errorf("%w: down payment %s leaves no principal to finance", ErrInvalidFinancialInput, downPayment)
	case annualRate.IsNegative():
		return fmt.Errorf("%w: annual rate cannot be negative, got %s", ErrInvalidFinancialInput, annualRate)
	case annualRate.GreaterThan(maxPercent):
		return fmt.Errorf("%w: annual rate %s exceeds %s", ErrInvalidFinancialInput, annualRate, maxPercent)
	}
	return nil
}

func validateScores(internalScore, externalScore, installmentToIncome decimal.Decimal) error {
	switch {
	case internalScore.IsNegative() || internalScore.GreaterThan(maxScore):
		return fmt.Errorf("%w: internal score must be between 0 and %s, got %s", ErrInvalidFinancialInput, maxScore, internalScore)
	case externalScore.IsNegative() || externalScore.GreaterThan(maxScore):
		return fmt.Errorf("%w: external score must be between 0 and %s, got %s", ErrInvalidFinancialInput, maxScore, externalScore)
	case installmentToIncome.IsNegative() || installmentToIncome.GreaterThan(maxPercent):
		return fmt.Errorf("%w: installment-to-income ratio must be between 0 and %s, got %s", ErrInvalidFinancialInput, maxPercent, installmentToIncome)
	}
	return nil
}

// Getters

func (r *CreditRequest) ID() int64                            { return r.id }
func (r *CreditRequest) ClientID() int64                      { return r.clientID }
func (r *CreditRequest) VehicleID() int64                     { return r.vehicleID }
func (r *CreditRequest) SellerID() int64                      { return r.sellerID }
func (r *CreditRequest) RequestNumber() string                { return r.requestNumber }
func (r *CreditRequest) Amount() decimal.Decimal              { return r.amount }
func (r *CreditRequest) TermMonths() int                      { return r.termMonths }
func (r *CreditRequest) DownPayment() decimal.Decimal         { return r.downPayment }
func (r *CreditRequest) InternalScore() decimal.Decimal       { return r.internalScore }
func (r *CreditRequest) ExternalScore() decimal.Decimal       { return r.externalScore }
func (r *CreditRequest) InstallmentToIncome() decimal.Decimal { return r.installmentToIncome }
func (r *CreditRequest) AnnualRate() decimal.Decimal          { return r.annualRate }
func (r *CreditRequest) MonthlyInstallment() decimal.Decimal  { return r.monthlyInstallment }
func (r *CreditRequest) TotalPayable() decimal.Decimal        { return r.totalPayable }
func (r *CreditRequest) RequestedAt() time.Time               { return r.requestedAt }
func (r *CreditRequest) State() State                         { return r.state }
func (r *CreditRequest) Verdict() Verdict                     { return r.verdict }
func (r *CreditRequest) ApprovedByOverride() bool             { return r.approvedByOverride }
func (r *CreditRequest) Version() int64                       { return r.version }
