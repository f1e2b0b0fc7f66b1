package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	twelve  = decimal.NewFromInt(12)
	hundred = decimal.NewFromInt(100)
	cent    = decimal.New(1, -2)
)

// InstallmentPlan holds the values derived by the amortization calculator.
type InstallmentPlan struct {
	MonthlyInstallment decimal.Decimal
	TotalPayable       decimal.Decimal
}

// ComputeInstallment converts a financed principal, an annual rate in percent,
// and a term in months into a level monthly installment and the total payable.
//
// The annual rate is converted to a monthly periodic rate r = rate/100/12. A
// zero rate degrades to straight-line principal/term; otherwise the standard
// level-payment annuity formula applies:
//
//	installment = principal * r * (1+r)^n / ((1+r)^n - 1)
//
// The installment is rounded half-up to 2 decimal places once, at the end, and
// the total payable is exactly installment*n. When rounding leaves that total
// below the principal (non-terminating straight-line divisions), the
// installment is bumped by one cent so the schedule always covers the
// principal.
//
// Pure and deterministic; safe for concurrent use.
func ComputeInstallment(principal, annualRatePercent decimal.Decimal, termMonths int) (InstallmentPlan, error) {
	if !principal.IsPositive() {
		return InstallmentPlan{}, fmt.Errorf("%w: principal must be positive, got %s", ErrInvalidFinancialInput, principal)
	}
	if termMonths < 1 {
		return InstallmentPlan{}, fmt.Errorf("%w: term must be at least 1 month, got %d", ErrInvalidFinancialInput, termMonths)
	}
	if annualRatePercent.IsNegative() {
		return InstallmentPlan{}, fmt.Errorf("%w: annual rate cannot be negative, got %s", ErrInvalidFinancialInput, annualRatePercent)
	}

	term := decimal.NewFromInt(int64(termMonths))
	monthlyRate := annualRatePercent.Div(hundred).Div(twelve)

	var raw decimal.Decimal
	if monthlyRate.IsZero() {
		raw = principal.Div(term)
	} else {
		compound := one.Add(monthlyRate).Pow(term)
		raw = principal.Mul(monthlyRate).Mul(compound).Div(compound.Sub(one))
	}

	installment := raw.Round(2)
	total := installment.Mul(term)
	if total.LessThan(principal) {
		installment = installment.Add(cent)
		total = installment.Mul(term)
	}

	return InstallmentPlan{
		MonthlyInstallment: installment,
		TotalPayable:       total,
	}, nil
}
