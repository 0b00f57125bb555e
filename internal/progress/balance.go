package progress

import "github.com/wolfman30/ace-billing/internal/billing"

// HeuristicStepReduction is the per-step discount of the legacy projection.
const HeuristicStepReduction = 0.10

// HeuristicFinalBalance is the legacy 10%-per-completed-step projection. It
// only feeds the patient overview estimate and is never sent to the server.
func HeuristicFinalBalance(bill float64, completedSteps int) float64 {
	if completedSteps < 0 {
		completedSteps = 0
	}
	if completedSteps > billing.StepCount {
		completedSteps = billing.StepCount
	}
	return bill * (1 - HeuristicStepReduction*float64(completedSteps))
}

// FinalAmount applies the operator-entered reduction to the bill total. This
// is the formula behind the persisted reductionAmount.
func FinalAmount(totalBill, reductionAmount float64) float64 {
	return totalBill - reductionAmount
}

// ReductionPercent is the share of the original balance removed.
func ReductionPercent(original, final float64) float64 {
	if original == 0 {
		return 0
	}
	return (original - final) / original * 100
}

// TotalBillValue sums bill amounts. Callers pass the live rows each time.
func TotalBillValue(amounts ...float64) float64 {
	var sum float64
	for _, a := range amounts {
		sum += a
	}
	return sum
}

// CaseBillTotal sums the current balance of every appointment on the case.
func CaseBillTotal(c billing.Case) float64 {
	amounts := make([]float64, 0, len(c.Appointments))
	for _, a := range c.Appointments {
		amounts = append(amounts, a.CurrentBalance)
	}
	return TotalBillValue(amounts...)
}
