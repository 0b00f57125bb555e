package progress

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/ace-billing/internal/billing"
)

func stepsOf(statuses ...billing.StepStatus) []billing.CaseStep {
	out := make([]billing.CaseStep, len(statuses))
	for i, s := range statuses {
		out[i] = billing.CaseStep{ID: string(rune('a' + i)), Index: i + 1, Status: s}
	}
	return out
}

var allStatuses = []billing.StepStatus{billing.StepNotStarted, billing.StepPending, billing.StepCompleted}

func TestAccessibleInvariantOverAllCombinations(t *testing.T) {
	// 3^4 combinations of step statuses.
	for a := range allStatuses {
		for b := range allStatuses {
			for c := range allStatuses {
				for d := range allStatuses {
					s := stepsOf(allStatuses[a], allStatuses[b], allStatuses[c], allStatuses[d])
					for i := 1; i <= 4; i++ {
						want := i == 1 || s[i-2].Status == billing.StepCompleted
						assert.Equal(t, want, Accessible(s, i), "steps=%v i=%d", s, i)
					}
				}
			}
		}
	}
}

func TestAccessibleOutOfRange(t *testing.T) {
	s := stepsOf(billing.StepCompleted, billing.StepCompleted, billing.StepCompleted, billing.StepCompleted)
	assert.False(t, Accessible(s, 0))
	assert.False(t, Accessible(s, 5))
	assert.False(t, Accessible(nil, 1))
}

func TestValidateCompletion(t *testing.T) {
	s := stepsOf(billing.StepCompleted, billing.StepPending, billing.StepNotStarted, billing.StepNotStarted)
	assert.NoError(t, ValidateCompletion(s, 1))
	assert.NoError(t, ValidateCompletion(s, 2))

	err := ValidateCompletion(s, 3)
	var gate *GateError
	require.True(t, errors.As(err, &gate))
	assert.Equal(t, 2, gate.Required)
	assert.Equal(t, "You must complete Step 2 before proceeding to Step 3.", err.Error())

	assert.Error(t, ValidateCompletion(s, 7))
}

func TestDeriveScenario(t *testing.T) {
	c := billing.Case{
		ID:              "case-1",
		Status:          billing.CaseRecordSent,
		ReductionAmount: 500,
		CaseSteps:       stepsOf(billing.StepCompleted, billing.StepPending, billing.StepNotStarted, billing.StepNotStarted),
		Appointments: []billing.Appointment{
			{ProviderName: "A", CurrentBalance: 1000},
			{ProviderName: "B", CurrentBalance: 1250},
			{ProviderName: "C", CurrentBalance: 750},
		},
	}

	v := Derive(c)
	require.Len(t, v.Steps, 4)
	assert.True(t, v.Steps[0].Accessible)
	assert.Equal(t, Completed, v.Steps[0].State)
	assert.True(t, v.Steps[1].Accessible)
	assert.Equal(t, Pending, v.Steps[1].State)
	assert.Equal(t, Locked, v.Steps[2].State)
	assert.Equal(t, Locked, v.Steps[3].State)
	assert.False(t, v.Steps[3].Accessible)

	assert.Equal(t, 3000.0, v.TotalBillValue)
	assert.Equal(t, 2500.0, v.FinalAmount)
	assert.Equal(t, 2, v.CurrentStep)
	assert.Equal(t, 25, v.Percent)
	assert.Equal(t, "1/4 Steps Complete", v.Label)
	assert.False(t, v.Editable)
	assert.Equal(t, "Settled Pending Reductions", v.Steps[1].Title)
}

func TestCurrentStepAllComplete(t *testing.T) {
	s := stepsOf(billing.StepCompleted, billing.StepCompleted, billing.StepCompleted, billing.StepCompleted)
	assert.Equal(t, 5, CurrentStep(s))
	assert.Equal(t, 100, Percent(s))
	assert.Equal(t, 0, Percent(nil))
}

func TestMilestoneMappingIsTotal(t *testing.T) {
	cases := map[billing.CaseStatus]int{
		billing.CaseActive:            1,
		billing.CaseRecordSent:        2,
		billing.CasePendingReductions: 3,
		billing.CasePendingCheck:      4,
		billing.CaseClosed:            5,
		"unknown":                     1,
		"":                            1,
	}
	for status, want := range cases {
		assert.Equal(t, want, MilestoneIndex(status), "status %q", status)
	}
}

func TestMilestonesUnknownStatus(t *testing.T) {
	ms := Milestones("unknown")
	require.Len(t, ms, 5)
	assert.Equal(t, "completed", ms[0].Status)
	for _, m := range ms[1:] {
		assert.Equal(t, "pending", m.Status, m.Title)
	}
}

func TestMilestonesPendingCheck(t *testing.T) {
	ms := Milestones(billing.CasePendingCheck)
	for i, m := range ms {
		want := "completed"
		if i == 4 {
			want = "pending"
		}
		assert.Equal(t, want, m.Status)
	}
	assert.Equal(t, "Closed Checks Received", ms[4].Title)
}

func TestBalanceFormulas(t *testing.T) {
	assert.Equal(t, 1000.0, HeuristicFinalBalance(1000, 0))
	assert.InDelta(t, 600.0, HeuristicFinalBalance(1000, 4), 1e-9)
	assert.InDelta(t, 600.0, HeuristicFinalBalance(1000, 9), 1e-9)
	assert.InDelta(t, 800.0, HeuristicFinalBalance(1000, 2), 1e-9)

	assert.Equal(t, 2500.0, FinalAmount(3000, 500))
	assert.Equal(t, 3000.0, FinalAmount(3000, 0))

	assert.InDelta(t, 20.0, ReductionPercent(1000, 800), 1e-9)
	assert.Zero(t, ReductionPercent(0, 0))

	assert.Zero(t, TotalBillValue())
	assert.Equal(t, 30.0, TotalBillValue(10, 20))
}

func TestMarkRequestValidation(t *testing.T) {
	s := billing.Case{ID: "c", CaseSteps: stepsOf(billing.StepCompleted, billing.StepCompleted, billing.StepCompleted, billing.StepPending)}

	assert.NoError(t, MarkRequest{CaseID: "c", Step: 1}.Check(s))
	assert.Error(t, MarkRequest{CaseID: "c", Step: 2, ReductionAmount: -5}.Validate())
	assert.NoError(t, MarkRequest{CaseID: "c", Step: 2, ReductionAmount: 500}.Validate())
	assert.Error(t, MarkRequest{CaseID: "c", Step: 4, ChequeNo: "  "}.Check(s))
	assert.NoError(t, MarkRequest{CaseID: "c", Step: 4, ChequeNo: "CHK-1"}.Check(s))
	assert.Error(t, MarkRequest{CaseID: "c", Step: 1, ReductionAmount: -1}.Validate())
	assert.Error(t, MarkRequest{Step: 1}.Validate())
	assert.Error(t, MarkRequest{CaseID: "c", Step: 5}.Validate())

	locked := billing.Case{ID: "c", CaseSteps: stepsOf(billing.StepPending, billing.StepNotStarted, billing.StepNotStarted, billing.StepNotStarted)}
	var gate *GateError
	assert.ErrorAs(t, MarkRequest{CaseID: "c", Step: 3}.Check(locked), &gate)
}

func TestZeroReductionSettlesStepTwo(t *testing.T) {
	c := billing.Case{ID: "c", CaseSteps: stepsOf(billing.StepCompleted, billing.StepPending, billing.StepNotStarted, billing.StepNotStarted)}

	require.NoError(t, MarkRequest{CaseID: "c", Step: 2}.Check(c))
	require.NoError(t, MarkRequest{CaseID: "c", Step: 2, ReductionAmount: 0}.Check(c))
}
