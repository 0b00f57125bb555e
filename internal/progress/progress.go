// Package progress derives the balance-reduction workflow state of a case
// from its persisted step statuses. Nothing here is persisted or sent to the
// server; every value is recomputed from the authoritative case on demand.
package progress

import (
	"fmt"
	"math"

	"github.com/wolfman30/ace-billing/internal/billing"
)

// StepState is the derived state of one workflow step.
type StepState string

const (
	Locked    StepState = "locked"
	Pending   StepState = "pending"
	Completed StepState = "completed"
)

// StepInfo is the fixed title and description of a workflow step.
type StepInfo struct {
	Title   string
	Details string
}

var steps = [billing.StepCount]StepInfo{
	{"Closed Records Sent", "Medical records have been collected and sent to insurance companies for review."},
	{"Settled Pending Reductions", "Negotiating with providers for bill reductions and settlements."},
	{"Reductions Sent Pending Checks", "Reduction agreements sent to providers, awaiting payment confirmations."},
	{"Closed Checks Received", "Final payments received and case closed successfully."},
}

// Info returns the title and details for the 1-indexed step.
func Info(index int) (StepInfo, bool) {
	if index < 1 || index > billing.StepCount {
		return StepInfo{}, false
	}
	return steps[index-1], true
}

// Accessible reports whether step i (1-indexed) may be worked on: step 1
// always, any later step only once its predecessor is Completed.
func Accessible(caseSteps []billing.CaseStep, i int) bool {
	if i < 1 || i > len(caseSteps) {
		return false
	}
	if i == 1 {
		return true
	}
	return caseSteps[i-2].Status == billing.StepCompleted
}

// State derives the display state of step i.
func State(caseSteps []billing.CaseStep, i int) StepState {
	if i >= 1 && i <= len(caseSteps) && caseSteps[i-1].Status == billing.StepCompleted {
		return Completed
	}
	if Accessible(caseSteps, i) {
		return Pending
	}
	return Locked
}

// GateError explains why a step cannot be completed yet.
type GateError struct {
	Step     int
	Required int
}

func (e *GateError) Error() string {
	if e.Required == 0 {
		return fmt.Sprintf("Step %d does not exist.", e.Step)
	}
	return fmt.Sprintf("You must complete Step %d before proceeding to Step %d.", e.Required, e.Step)
}

// ValidateCompletion is the advisory client-side gate for mark-complete.
func ValidateCompletion(caseSteps []billing.CaseStep, i int) error {
	if i < 1 || i > len(caseSteps) {
		return &GateError{Step: i}
	}
	if !Accessible(caseSteps, i) {
		return &GateError{Step: i, Required: i - 1}
	}
	return nil
}

// CompletedCount counts steps whose status is Completed.
func CompletedCount(caseSteps []billing.CaseStep) int {
	n := 0
	for _, s := range caseSteps {
		if s.Status == billing.StepCompleted {
			n++
		}
	}
	return n
}

// Percent is the rounded share of completed steps out of the step list.
func Percent(caseSteps []billing.CaseStep) int {
	if len(caseSteps) == 0 {
		return 0
	}
	return int(math.Round(float64(CompletedCount(caseSteps)) / float64(len(caseSteps)) * 100))
}

// Label renders the "n/4 Steps Complete" badge text.
func Label(caseSteps []billing.CaseStep) string {
	return fmt.Sprintf("%d/%d Steps Complete", CompletedCount(caseSteps), billing.StepCount)
}

// CurrentStep is the first step that is not Completed, or StepCount+1 once
// every step is done.
func CurrentStep(caseSteps []billing.CaseStep) int {
	for i, s := range caseSteps {
		if s.Status != billing.StepCompleted {
			return i + 1
		}
	}
	return billing.StepCount + 1
}

// Step is the derived view of one workflow step.
type Step struct {
	Index      int       `json:"index"`
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Details    string    `json:"details"`
	State      StepState `json:"state"`
	Accessible bool      `json:"accessible"`
}

// View is everything the case-detail and balance-reduction screens render.
type View struct {
	CaseID          string             `json:"caseId"`
	Status          billing.CaseStatus `json:"status"`
	Steps           []Step             `json:"steps"`
	Milestones      []Milestone        `json:"milestones"`
	CurrentStep     int                `json:"currentStep"`
	CompletedSteps  int                `json:"completedSteps"`
	Percent         int                `json:"percent"`
	Label           string             `json:"label"`
	TotalBillValue  float64            `json:"totalBillValue"`
	ReductionAmount float64            `json:"reductionAmount"`
	FinalAmount     float64            `json:"finalAmount"`
	ChequeNo        string             `json:"chequeNo,omitempty"`
	Editable        bool               `json:"editable"`
}

// Derive projects a case into its workflow view.
func Derive(c billing.Case) View {
	total := CaseBillTotal(c)
	v := View{
		CaseID:          c.ID,
		Status:          c.Status,
		Milestones:      Milestones(c.Status),
		CurrentStep:     CurrentStep(c.CaseSteps),
		CompletedSteps:  CompletedCount(c.CaseSteps),
		Percent:         Percent(c.CaseSteps),
		Label:           Label(c.CaseSteps),
		TotalBillValue:  total,
		ReductionAmount: c.ReductionAmount,
		FinalAmount:     FinalAmount(total, c.ReductionAmount),
		ChequeNo:        c.ChequeNo,
		Editable:        c.Status == billing.CaseActive,
	}
	for i, s := range c.CaseSteps {
		info, _ := Info(i + 1)
		v.Steps = append(v.Steps, Step{
			Index:      i + 1,
			ID:         s.ID,
			Title:      info.Title,
			Details:    info.Details,
			State:      State(c.CaseSteps, i+1),
			Accessible: Accessible(c.CaseSteps, i+1),
		})
	}
	return v
}
