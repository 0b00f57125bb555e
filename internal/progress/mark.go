package progress

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/wolfman30/ace-billing/internal/billing"
)

// MarkRequest carries the context needed to mark a step complete.
type MarkRequest struct {
	CaseID          string
	Step            int
	ReductionAmount float64
	ChequeNo        string
}

// Validate checks the local form rules. A reduction amount may be zero when
// nothing was negotiated but never negative; step 4 needs a cheque number.
func (r MarkRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CaseID, validation.Required.Error("case id is required")),
		validation.Field(&r.Step, validation.Required, validation.Min(1), validation.Max(billing.StepCount)),
		validation.Field(&r.ReductionAmount, validation.Min(0.0).Error("reduction amount cannot be negative")),
		validation.Field(&r.ChequeNo,
			validation.When(r.Step == 4, validation.By(notBlank("cheque number is required to close the case"))),
		),
	)
}

func notBlank(msg string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if strings.TrimSpace(s) == "" {
			return validation.NewError("validation_blank", msg)
		}
		return nil
	}
}

// Check runs the local form validation and then the step gate.
func (r MarkRequest) Check(c billing.Case) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return ValidateCompletion(c.CaseSteps, r.Step)
}
