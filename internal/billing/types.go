// Package billing contains the entity types exchanged with the billing API.
package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StepCount is the fixed number of workflow steps on every case.
const StepCount = 4

// ErrInvalidCase is returned when a case payload breaks the step invariant.
var ErrInvalidCase = errors.New("billing: invalid case")

// CaseStatus is the server-owned lifecycle status of a case.
type CaseStatus string

const (
	CaseActive            CaseStatus = "Active"
	CaseRecordSent        CaseStatus = "Record Sent"
	CasePendingReductions CaseStatus = "Pending Reductions"
	CasePendingCheck      CaseStatus = "Pending Check"
	CaseClosed            CaseStatus = "Closed"
)

var caseStatusRank = map[CaseStatus]int{
	CaseActive:            1,
	CaseRecordSent:        2,
	CasePendingReductions: 3,
	CasePendingCheck:      4,
	CaseClosed:            5,
}

// Rank orders statuses from Active (1) to Closed (5). Unknown statuses rank 0.
func (s CaseStatus) Rank() int {
	return caseStatusRank[s]
}

// Valid reports whether s is one of the five known statuses.
func (s CaseStatus) Valid() bool {
	return s.Rank() > 0
}

// Badge returns the display category used by list views.
func (s CaseStatus) Badge() string {
	switch s {
	case CaseActive:
		return "success"
	case CasePendingReductions, CasePendingCheck:
		return "warning"
	case CaseClosed:
		return "info"
	default:
		return "neutral"
	}
}

// StepStatus is the persisted status of a single workflow step.
type StepStatus string

const (
	StepNotStarted StepStatus = "Not Started"
	StepPending    StepStatus = "Pending"
	StepCompleted  StepStatus = "Completed"
)

// Valid reports whether s is a known step status.
func (s StepStatus) Valid() bool {
	switch s {
	case StepNotStarted, StepPending, StepCompleted:
		return true
	}
	return false
}

// CaseStep is one of the four ordered workflow steps.
type CaseStep struct {
	ID     string     `json:"_id"`
	Index  int        `json:"index,omitempty"`
	Status StepStatus `json:"status"`
}

// Appointment is one billable provider encounter attached to a case.
type Appointment struct {
	ID               string   `json:"_id,omitempty"`
	ProviderName     string   `json:"providerName"`
	TreatmentDetails string   `json:"treatmentDetails"`
	ProcedureDate    string   `json:"procedureDate"`
	CurrentBalance   float64  `json:"currentBalance"`
	FinalBalance     *float64 `json:"finalBalance,omitempty"`
	Status           string   `json:"status,omitempty"`
	TypeOfRequest    string   `json:"typeOfRequest,omitempty"`
	DateRangeStart   string   `json:"startDate,omitempty"`
	DateRangeEnd     string   `json:"endDate,omitempty"`
	CreatedAt        string   `json:"createdAt,omitempty"`
}

// Case is a billing/reduction workflow instance for one patient.
type Case struct {
	ID              string        `json:"_id"`
	PatientID       string        `json:"patientId"`
	CaseNumber      string        `json:"caseNumber,omitempty"`
	Status          CaseStatus    `json:"status"`
	ReductionAmount float64       `json:"reductionAmount"`
	ChequeNo        string        `json:"chequeNo,omitempty"`
	CaseSteps       []CaseStep    `json:"caseSteps"`
	Appointments    []Appointment `json:"appointments"`
}

// UnmarshalJSON accepts both `_id` and `id` and tolerates null numbers.
func (c *Case) UnmarshalJSON(data []byte) error {
	type alias Case
	var raw struct {
		alias
		AltID           string   `json:"id"`
		ReductionAmount *float64 `json:"reductionAmount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Case(raw.alias)
	if c.ID == "" {
		c.ID = raw.AltID
	}
	if raw.ReductionAmount != nil {
		c.ReductionAmount = *raw.ReductionAmount
	}
	return nil
}

// Validate enforces the four-step invariant. Unknown case statuses are
// tolerated; they project to the first milestone.
func (c *Case) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil case", ErrInvalidCase)
	}
	if len(c.CaseSteps) != StepCount {
		return fmt.Errorf("%w: %d steps, want %d", ErrInvalidCase, len(c.CaseSteps), StepCount)
	}
	for i := range c.CaseSteps {
		if c.CaseSteps[i].Status == "" {
			c.CaseSteps[i].Status = StepNotStarted
		}
		if !c.CaseSteps[i].Status.Valid() {
			return fmt.Errorf("%w: step %d has status %q", ErrInvalidCase, i+1, c.CaseSteps[i].Status)
		}
		if c.CaseSteps[i].Index == 0 {
			c.CaseSteps[i].Index = i + 1
		}
	}
	return nil
}

// Step returns the 1-indexed step, or false when out of range.
func (c *Case) Step(index int) (CaseStep, bool) {
	if c == nil || index < 1 || index > len(c.CaseSteps) {
		return CaseStep{}, false
	}
	return c.CaseSteps[index-1], true
}

// CaseRef is the summary of a case embedded in a patient record.
type CaseRef struct {
	ID         string     `json:"_id"`
	CaseNumber string     `json:"caseNumber,omitempty"`
	Status     CaseStatus `json:"status"`
}

// Patient is read-only from the console's perspective.
type Patient struct {
	ID               string    `json:"_id"`
	Name             string    `json:"name"`
	DOB              string    `json:"dob,omitempty"`
	Gender           string    `json:"gender,omitempty"`
	RegistrationDate string    `json:"registrationDate,omitempty"`
	ProvidersCount   int       `json:"providersCount"`
	Cases            []CaseRef `json:"cases,omitempty"`
}

// UnmarshalJSON accepts both `_id` and `id`.
func (p *Patient) UnmarshalJSON(data []byte) error {
	type alias Patient
	var raw struct {
		alias
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Patient(raw.alias)
	if p.ID == "" {
		p.ID = raw.AltID
	}
	return nil
}

// PatientDetails is the payload of the single-patient endpoint.
type PatientDetails struct {
	Patient      Patient       `json:"patientDetails"`
	Cases        []Case        `json:"caseDetails,omitempty"`
	Appointments []Appointment `json:"appointmentHistory,omitempty"`
}

// Summary holds the dashboard headline counts.
type Summary struct {
	TotalPatients int `json:"totalPatients"`
	ActiveCases   int `json:"activeCases"`
	Completed     int `json:"completed"`
}

// StatusCounts holds the dashboard status distribution.
type StatusCounts struct {
	PendingReductions int `json:"pendingReductions"`
	ActiveCases       int `json:"activeCases"`
	CompletedCases    int `json:"completedCases"`
}

// Page is one page of a server-paginated list.
type Page[T any] struct {
	List        []T `json:"list"`
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	Total       int `json:"total"`
}

// UnmarshalJSON maps the per-entity total keys onto Total.
func (p *Page[T]) UnmarshalJSON(data []byte) error {
	var raw struct {
		List          []T `json:"list"`
		CurrentPage   int `json:"currentPage"`
		TotalPages    int `json:"totalPages"`
		Total         int `json:"total"`
		TotalCases    int `json:"totalCases"`
		TotalPatients int `json:"totalPatients"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.List = raw.List
	p.CurrentPage = raw.CurrentPage
	p.TotalPages = raw.TotalPages
	p.Total = raw.Total
	if p.Total == 0 {
		p.Total = max(raw.TotalCases, raw.TotalPatients)
	}
	return nil
}

// ReportLine is one appointment row of a patient report.
type ReportLine struct {
	ProviderName      string     `json:"providerName"`
	TreatmentDetails  string     `json:"treatmentDetails"`
	AppointmentDate   string     `json:"appointmentDate"`
	CurrentBalance    float64    `json:"currentBalance"`
	FinalBalance      float64    `json:"finalBalance"`
	AppointmentStatus string     `json:"appointmentStatus"`
	CaseProgress      []CaseStep `json:"caseProgress,omitempty"`
}

// Report is the JSON report generated for one patient.
type Report struct {
	PatientName  string       `json:"patientName"`
	Appointments []ReportLine `json:"appointments"`
}

// UnmarshalJSON falls back to the legacy `patient` key for the name.
func (r *Report) UnmarshalJSON(data []byte) error {
	type alias Report
	var raw struct {
		alias
		Patient string `json:"patient"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Report(raw.alias)
	if r.PatientName == "" {
		r.PatientName = raw.Patient
	}
	return nil
}

// DateOnly renders an API timestamp as YYYY-MM-DD. Values that do not parse
// are returned trimmed to their first ten characters.
func DateOnly(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC().Format("2006-01-02")
		}
	}
	if len(value) > 10 {
		return value[:10]
	}
	return value
}
