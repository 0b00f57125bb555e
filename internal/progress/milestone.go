package progress

import "github.com/wolfman30/ace-billing/internal/billing"

// MilestoneCount is the number of display milestones.
const MilestoneCount = 5

var milestoneTitles = [MilestoneCount]string{
	"Active Care",
	"Closed Records Sent",
	"Settled Pending Reductions",
	"Reductions Sent Pending Checks",
	"Closed Checks Received",
}

// Milestone is a display-only checkpoint projected from the case status.
type Milestone struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// MilestoneIndex maps a case status to 1..5. Unknown statuses map to 1.
func MilestoneIndex(status billing.CaseStatus) int {
	switch status {
	case billing.CaseRecordSent:
		return 2
	case billing.CasePendingReductions:
		return 3
	case billing.CasePendingCheck:
		return 4
	case billing.CaseClosed:
		return 5
	default:
		return 1
	}
}

// Milestones renders all five milestones for status.
func Milestones(status billing.CaseStatus) []Milestone {
	current := MilestoneIndex(status)
	out := make([]Milestone, 0, MilestoneCount)
	for i, title := range milestoneTitles {
		state := "pending"
		if current >= i+1 {
			state = "completed"
		}
		out = append(out, Milestone{ID: i + 1, Title: title, Status: state})
	}
	return out
}
