package domain

import "github.com/shopspring/decimal"

// Verdict is the affordability evaluator's categorical judgment.
type Verdict string

const (
	VerdictAdmissible  Verdict = "ADMISSIBLE"
	VerdictRejectRatio Verdict = "REJECT_RATIO"
	VerdictRejectScore Verdict = "REJECT_SCORE"
)

// String returns the canonical verdict name.
func (v Verdict) String() string {
	return string(v)
}

// Thresholds are the externally configured affordability limits.
type Thresholds struct {
	MaxInstallmentToIncome decimal.Decimal
	MinInternalScore       decimal.Decimal
	MinExternalScore       decimal.Decimal
}

// PolicyMode selects how a reject verdict is acted on by the lifecycle service.
type PolicyMode string

const (
	// PolicyModeAutomatic transitions a request to REJECTED as soon as the
	// evaluator returns a reject verdict.
	PolicyModeAutomatic PolicyMode = "automatic"
	// PolicyModeAdvisory records the verdict and leaves the request in review
	// for a manual decision.
	PolicyModeAdvisory PolicyMode = "advisory"
)

// ApprovalPolicy bundles the affordability thresholds with the decision mode
// and the override permission. Loaded once per process lifetime.
type ApprovalPolicy struct {
	Thresholds    Thresholds
	Mode          PolicyMode
	AllowOverride bool
}

// EvaluationInput carries the figures the evaluator judges. The installment is
// recorded alongside the declared ratio for audit purposes; the verdict itself
// is driven by the ratio and the two risk scores.
type EvaluationInput struct {
	MonthlyInstallment  decimal.Decimal
	InstallmentToIncome decimal.Decimal
	InternalScore       decimal.Decimal
	ExternalScore       decimal.Decimal
}

// Evaluate returns the admissibility verdict for the given figures.
//
// The ratio ceiling is checked first; a breach short-circuits to REJECT_RATIO.
// Otherwise either risk score below its configured floor yields REJECT_SCORE.
// Evaluate only recommends: acting on the verdict is the lifecycle service's
// job. Pure, deterministic, no I/O.
func Evaluate(in EvaluationInput, t Thresholds) Verdict {
	if in.InstallmentToIncome.GreaterThan(t.MaxInstallmentToIncome) {
		return VerdictRejectRatio
	}
	if in.InternalScore.LessThan(t.MinInternalScore) || in.ExternalScore.LessThan(t.MinExternalScore) {
		return VerdictRejectScore
	}
	return VerdictAdmissible
}
