package origination

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"origen/internal/origination/application"
	"origen/internal/origination/domain"
	"origen/internal/origination/infrastructure/memory"
)

type originationState struct {
	ctx     context.Context
	refs    *memory.ReferenceDirectory
	service *application.LifecycleService

	policyMode    domain.PolicyMode
	allowOverride bool

	last    *application.CreditRequestResponse
	lastErr error
}

func InitializeOriginationScenario(ctx *godog.ScenarioContext) {
	state := &originationState{
		ctx:        context.Background(),
		policyMode: domain.PolicyModeAutomatic,
	}

	// Background and policy steps
	ctx.Step(`^a registered client (\d+), vehicle (\d+), and seller (\d+)$`, state.aRegisteredClientVehicleAndSeller)
	ctx.Step(`^the approval policy is advisory$`, state.theApprovalPolicyIsAdvisory)
	ctx.Step(`^overrides are permitted$`, state.overridesArePermitted)

	// Creation steps
	ctx.Step(`^I create credit request "([^"]*)"$`, state.iCreateCreditRequest)
	ctx.Step(`^I create credit request "([^"]*)" with installment-to-income ratio (\d+\.\d+)$`, state.iCreateCreditRequestWithRatio)
	ctx.Step(`^I create credit request "([^"]*)" with internal score (\d+\.\d+)$`, state.iCreateCreditRequestWithInternalScore)
	ctx.Step(`^I create credit request "([^"]*)" at an annual rate of (\d+(?:\.\d+)?)$`, state.iCreateCreditRequestAtRate)

	// Lifecycle steps
	ctx.Step(`^I submit the request for review$`, state.iSubmitTheRequestForReview)
	ctx.Step(`^I approve the request$`, state.iApproveTheRequest)
	ctx.Step(`^I approve the request with an override$`, state.iApproveTheRequestWithAnOverride)
	ctx.Step(`^I reject the request$`, state.iRejectTheRequest)
	ctx.Step(`^I cancel the request$`, state.iCancelTheRequest)
	ctx.Step(`^I update the annual rate to (\d+(?:\.\d+)?)$`, state.iUpdateTheAnnualRateTo)
	ctx.Step(`^I update the term to (\d+) months$`, state.iUpdateTheTermToMonths)
	ctx.Step(`^I update the term to (\d+) months using the original version$`, state.iUpdateTheTermUsingOriginalVersion)

	// Assertion steps
	ctx.Step(`^the request should be in state "([^"]*)" labeled "([^"]*)"$`, state.theRequestShouldBeInStateLabeled)
	ctx.Step(`^the verdict should be "([^"]*)"$`, state.theVerdictShouldBe)
	ctx.Step(`^the monthly installment should be (\d+\.\d+)$`, state.theMonthlyInstallmentShouldBe)
	ctx.Step(`^the total payable should be (\d+\.\d+)$`, state.theTotalPayableShouldBe)
	ctx.Step(`^the version should be (\d+)$`, state.theVersionShouldBe)
	ctx.Step(`^the approval should be marked as an override$`, state.theApprovalShouldBeMarkedAsAnOverride)
	ctx.Step(`^the operation should fail with "([^"]*)"$`, state.theOperationShouldFailWith)
}

func (s *originationState) aRegisteredClientVehicleAndSeller(clientID, vehicleID, sellerID int64) error {
	s.refs = memory.NewReferenceDirectory()
	s.refs.AddClient(clientID)
	s.refs.AddVehicle(vehicleID)
	s.refs.AddSeller(sellerID)
	return nil
}

func (s *originationState) theApprovalPolicyIsAdvisory() error {
	s.policyMode = domain.PolicyModeAdvisory
	return nil
}

func (s *originationState) overridesArePermitted() error {
	s.allowOverride = true
	return nil
}

// ensureService builds the service on first use, after the policy steps ran.
func (s *originationState) ensureService() {
	if s.service != nil {
		return
	}
	policy := domain.ApprovalPolicy{
		Thresholds: domain.Thresholds{
			MaxInstallmentToIncome: decimal.RequireFromString("40.00"),
			MinInternalScore:       decimal.RequireFromString("600.00"),
			MinExternalScore:       decimal.RequireFromString("600.00"),
		},
		Mode:          s.policyMode,
		AllowOverride: s.allowOverride,
	}
	s.service = application.NewLifecycleService(memory.NewDataStore(), s.refs, policy)
}

func defaultCreateRequest(requestNumber string) application.CreateRequest {
	return application.CreateRequest{
		RequestNumber:       requestNumber,
		ClientID:            1,
		VehicleID:           2,
		SellerID:            3,
		Amount:              decimal.RequireFromString("20000.00"),
		TermMonths:          60,
		DownPayment:         decimal.RequireFromString("5000.00"),
		AnnualRate:          decimal.RequireFromString("12.50"),
		InternalScore:       decimal.RequireFromString("720.00"),
		ExternalScore:       decimal.RequireFromString("680.00"),
		InstallmentToIncome: decimal.RequireFromString("35.00"),
	}
}

func (s *originationState) create(req application.CreateRequest) error {
	s.ensureService()

	resp, err := s.service.Create(s.ctx, req)
	s.lastErr = err
	if err == nil {
		s.last = resp
	}
	return nil // Errors are captured in state for later assertions
}

func (s *originationState) iCreateCreditRequest(requestNumber string) error {
	return s.create(defaultCreateRequest(requestNumber))
}

func (s *originationState) iCreateCreditRequestWithRatio(requestNumber, ratio string) error {
	req := defaultCreateRequest(requestNumber)
	req.InstallmentToIncome = decimal.RequireFromString(ratio)
	return s.create(req)
}

func (s *originationState) iCreateCreditRequestWithInternalScore(requestNumber, score string) error {
	req := defaultCreateRequest(requestNumber)
	req.InternalScore = decimal.RequireFromString(score)
	return s.create(req)
}

func (s *originationState) iCreateCreditRequestAtRate(requestNumber, rate string) error {
	req := defaultCreateRequest(requestNumber)
	req.AnnualRate = decimal.RequireFromString(rate)
	return s.create(req)
}

func (s *originationState) mutate(fn func() (*application.CreditRequestResponse, error)) error {
	if s.last == nil {
		return errors.New("no credit request in play")
	}
	resp, err := fn()
	s.lastErr = err
	if err == nil {
		s.last = resp
	}
	return nil
}

func (s *originationState) iSubmitTheRequestForReview() error {
	return s.mutate(func() (*application.CreditRequestResponse, error) {
		return s.service.SubmitForReview(s.ctx, s.last.ID, s.last.Version)
	})
}

func (s *originationState) decide(decision application.Decision, override bool) error {
	return s.mutate(func() (*application.CreditRequestResponse, error) {
		return s.service.Decide(s.ctx, application.DecideRequest{
			ID:              s.last.ID,
			ExpectedVersion: s.last.Version,
			Decision:        decision,
			Override:        override,
		})
	})
}

func (s *originationState) iApproveTheRequest() error {
	return s.decide(application.DecisionApprove, false)
}

func (s *originationState) iApproveTheRequestWithAnOverride() error {
	return s.decide(application.DecisionApprove, true)
}

func (s *originationState) iRejectTheRequest() error {
	return s.decide(application.DecisionReject, false)
}

func (s *originationState) iCancelTheRequest() error {
	return s.mutate(func() (*application.CreditRequestResponse, error) {
		return s.service.Cancel(s.ctx, s.last.ID, s.last.Version)
	})
}

func (s *originationState) iUpdateTheAnnualRateTo(rate string) error {
	parsed := decimal.RequireFromString(rate)
	return s.mutate(func() (*application.CreditRequestResponse, error) {
		return s.service.UpdateFinancials(s.ctx, application.UpdateFinancialsRequest{
			ID:              s.last.ID,
			ExpectedVersion: s.last.Version,
			AnnualRate:      &parsed,
		})
	})
}

func (s *originationState) iUpdateTheTermToMonths(term int) error {
	return s.mutate(func() (*application.CreditRequestResponse, error) {
		return s.service.UpdateFinancials(s.ctx, application.UpdateFinancialsRequest{
			ID:              s.last.ID,
			ExpectedVersion: s.last.Version,
			TermMonths:      &term,
		})
	})
}

func (s *originationState) iUpdateTheTermUsingOriginalVersion(term int) error {
	return s.mutate(func() (*application.CreditRequestResponse, error) {
		return s.service.UpdateFinancials(s.ctx, application.UpdateFinancialsRequest{
			ID:              s.last.ID,
			ExpectedVersion: 0,
			TermMonths:      &term,
		})
	})
}

func (s *originationState) theRequestShouldBeInStateLabeled(state, label string) error {
	if s.lastErr != nil {
		return fmt.Errorf("expected operation to succeed, got error: %v", s.lastErr)
	}
	if s.last == nil {
		return errors.New("no credit request response")
	}
	if s.last.State != state {
		return fmt.Errorf("expected state %q, got %q", state, s.last.State)
	}
	if s.last.StateLabel != label {
		return fmt.Errorf("expected label %q, got %q", label, s.last.StateLabel)
	}
	return nil
}

func (s *originationState) theVerdictShouldBe(verdict string) error {
	if s.last == nil {
		return errors.New("no credit request response")
	}
	if s.last.Verdict != verdict {
		return fmt.Errorf("expected verdict %q, got %q", verdict, s.last.Verdict)
	}
	return nil
}

func (s *originationState) theMonthlyInstallmentShouldBe(amount string) error {
	if s.lastErr != nil {
		return fmt.Errorf("expected operation to succeed, got error: %v", s.lastErr)
	}
	if s.last == nil {
		return errors.New("no credit request response")
	}
	if !s.last.MonthlyInstallment.Equal(decimal.RequireFromString(amount)) {
		return fmt.Errorf("expected installment %s, got %s", amount, s.last.MonthlyInstallment)
	}
	return nil
}

func (s *originationState) theTotalPayableShouldBe(amount string) error {
	if s.last == nil {
		return errors.New("no credit request response")
	}
	if !s.last.TotalPayable.Equal(decimal.RequireFromString(amount)) {
		return fmt.Errorf("expected total payable %s, got %s", amount, s.last.TotalPayable)
	}
	return nil
}

func (s *originationState) theVersionShouldBe(version int64) error {
	if s.last == nil {
		return errors.New("no credit request response")
	}
	if s.last.Version != version {
		return fmt.Errorf("expected version %d, got %d", version, s.last.Version)
	}
	return nil
}

func (s *originationState) theApprovalShouldBeMarkedAsAnOverride() error {
	if s.last == nil {
		return errors.New("no credit request response")
	}
	if !s.last.ApprovedByOverride {
		return errors.New("expected the approval to be marked as an override")
	}
	return nil
}

func (s *originationState) theOperationShouldFailWith(errorMsg string) error {
	if s.lastErr == nil {
		return errors.New("expected the operation to fail, but it succeeded")
	}
	if !strings.Contains(s.lastErr.Error(), errorMsg) {
		return fmt.Errorf("expected error containing %q, got: %v", errorMsg, s.lastErr)
	}
	return nil
}
