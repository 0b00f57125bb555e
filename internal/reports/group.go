package reports

import (
	"sort"

	"github.com/wolfman30/ace-billing/internal/billing"
)

// ProviderGroup collects the report lines of one provider.
type ProviderGroup struct {
	ProviderName        string               `json:"providerName"`
	Lines               []billing.ReportLine `json:"lines"`
	TotalCurrentBalance float64              `json:"totalCurrentBalance"`
	TotalFinalBalance   float64              `json:"totalFinalBalance"`
	StatusCounts        map[string]int       `json:"statusCounts"`
}

// Totals sums the whole report.
type Totals struct {
	CurrentBalance float64 `json:"currentBalance"`
	FinalBalance   float64 `json:"finalBalance"`
	Appointments   int     `json:"appointments"`
}

// GroupByProvider groups report lines by provider, sorted by provider name.
// Lines without a provider are grouped under "Unknown".
func GroupByProvider(report billing.Report) []ProviderGroup {
	index := map[string]int{}
	var groups []ProviderGroup
	for _, line := range report.Appointments {
		name := line.ProviderName
		if name == "" {
			name = "Unknown"
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, ProviderGroup{ProviderName: name, StatusCounts: map[string]int{}})
		}
		g := &groups[i]
		g.Lines = append(g.Lines, line)
		g.TotalCurrentBalance += line.CurrentBalance
		g.TotalFinalBalance += line.FinalBalance
		status := line.AppointmentStatus
		if status == "" {
			status = string(billing.StepNotStarted)
		}
		g.StatusCounts[status]++
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].ProviderName < groups[b].ProviderName })
	return groups
}

// Total sums the balances of every line in report.
func Total(report billing.Report) Totals {
	var t Totals
	for _, line := range report.Appointments {
		t.CurrentBalance += line.CurrentBalance
		t.FinalBalance += line.FinalBalance
		t.Appointments++
	}
	return t
}
