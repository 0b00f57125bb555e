// Package appointments is the editable appointment table of an open case.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/wolfman30/ace-billing/internal/billing"
	"github.com/wolfman30/ace-billing/internal/progress"
)

const (
	DefaultStatus        = "Pending"
	DefaultTypeOfRequest = "without Affidavit"
	WithAffidavit        = "with Affidavit"

	dateLayout = "2006-01-02"
)

var (
	// ErrReadOnly is returned when editing a case that is no longer Active.
	ErrReadOnly = errors.New("appointments: case is read-only")
	// ErrUnknownRow is returned when no row has the given id.
	ErrUnknownRow = errors.New("appointments: unknown row")
	// ErrUnknownField is returned for a column the table does not have.
	ErrUnknownField = errors.New("appointments: unknown field")
)

// Field names accepted by SetCell.
const (
	FieldDateOfEntry      = "dateOfEntry"
	FieldStatus           = "status"
	FieldNotes            = "notes"
	FieldTypeOfRequest    = "typeOfRequest"
	FieldFacilityProvider = "facilityProvider"
	FieldProcedureDate    = "procedureDate"
	FieldBillAmount       = "billAmount"
	FieldDateRangeStart   = "dateRangeStart"
	FieldDateRangeEnd     = "dateRangeEnd"
)

// Row is one editable table row.
type Row struct {
	ID               string  `json:"id"`
	DateOfEntry      string  `json:"dateOfEntry"`
	DateRangeStart   string  `json:"dateRangeStart,omitempty"`
	DateRangeEnd     string  `json:"dateRangeEnd,omitempty"`
	Status           string  `json:"status"`
	Notes            string  `json:"notes"`
	TypeOfRequest    string  `json:"typeOfRequest"`
	FacilityProvider string  `json:"facilityProvider"`
	ProcedureDate    string  `json:"procedureDate"`
	BillAmount       float64 `json:"billAmount"`
}

// Validate checks one row before submit.
func (r Row) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FacilityProvider, validation.Required.Error("facility provider is required")),
		validation.Field(&r.BillAmount, validation.Min(0.0).Error("bill amount cannot be negative")),
		validation.Field(&r.ProcedureDate, validation.Date(dateLayout).Error("procedure date must be YYYY-MM-DD")),
		validation.Field(&r.DateRangeStart, validation.Date(dateLayout)),
		validation.Field(&r.DateRangeEnd, validation.Date(dateLayout)),
		validation.Field(&r.Status, validation.In(DefaultStatus, string(billing.StepCompleted), string(billing.StepNotStarted))),
		validation.Field(&r.TypeOfRequest, validation.In(DefaultTypeOfRequest, WithAffidavit)),
	)
}

// Editor holds the rows of one case. It is not safe for concurrent use.
type Editor struct {
	caseID   string
	editable bool
	rows     []Row
}

// New builds an editor from the appointments of c. Rows get sequential ids
// starting at "1".
func New(c billing.Case) *Editor {
	e := &Editor{
		caseID:   c.ID,
		editable: c.Status == billing.CaseActive,
		rows:     make([]Row, 0, len(c.Appointments)),
	}
	for i, a := range c.Appointments {
		status := a.Status
		if status == "" {
			status = DefaultStatus
		}
		typ := a.TypeOfRequest
		if typ == "" {
			typ = DefaultTypeOfRequest
		}
		e.rows = append(e.rows, Row{
			ID:               strconv.Itoa(i + 1),
			DateOfEntry:      billing.DateOnly(a.CreatedAt),
			DateRangeStart:   billing.DateOnly(a.DateRangeStart),
			DateRangeEnd:     billing.DateOnly(a.DateRangeEnd),
			Status:           status,
			Notes:            a.TreatmentDetails,
			TypeOfRequest:    typ,
			FacilityProvider: a.ProviderName,
			ProcedureDate:    billing.DateOnly(a.ProcedureDate),
			BillAmount:       a.CurrentBalance,
		})
	}
	return e
}

// CaseID is the case the rows belong to.
func (e *Editor) CaseID() string { return e.caseID }

// Editable is false whenever the case is not Active.
func (e *Editor) Editable() bool { return e.editable }

// Rows returns a copy of the table.
func (e *Editor) Rows() []Row {
	return append([]Row(nil), e.rows...)
}

// AddRow appends an empty pending row dated now.
func (e *Editor) AddRow(now time.Time) (Row, error) {
	if !e.editable {
		return Row{}, ErrReadOnly
	}
	row := Row{
		ID:            strconv.Itoa(len(e.rows) + 1),
		DateOfEntry:   now.Format(dateLayout),
		Status:        DefaultStatus,
		TypeOfRequest: DefaultTypeOfRequest,
	}
	e.rows = append(e.rows, row)
	return row, nil
}

// SetCell replaces one field of the row with the given id. The bill amount
// falls back to 0 when value does not parse.
func (e *Editor) SetCell(id, field, value string) error {
	if !e.editable {
		return ErrReadOnly
	}
	i := e.find(id)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownRow, id)
	}
	row := &e.rows[i]
	switch field {
	case FieldDateOfEntry:
		row.DateOfEntry = value
	case FieldStatus:
		row.Status = value
	case FieldNotes:
		row.Notes = value
	case FieldTypeOfRequest:
		row.TypeOfRequest = value
	case FieldFacilityProvider:
		row.FacilityProvider = value
	case FieldProcedureDate:
		row.ProcedureDate = value
	case FieldBillAmount:
		amount, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			amount = 0
		}
		row.BillAmount = amount
	case FieldDateRangeStart:
		row.DateRangeStart = value
	case FieldDateRangeEnd:
		row.DateRangeEnd = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// Replace swaps in a full table, as submitted by the view layer.
func (e *Editor) Replace(rows []Row) error {
	if !e.editable {
		return ErrReadOnly
	}
	e.rows = append([]Row(nil), rows...)
	return nil
}

func (e *Editor) find(id string) int {
	for i := range e.rows {
		if e.rows[i].ID == id {
			return i
		}
	}
	return -1
}

// TotalBillValue sums the bill amounts of the current rows.
func (e *Editor) TotalBillValue() float64 {
	amounts := make([]float64, len(e.rows))
	for i, r := range e.rows {
		amounts[i] = r.BillAmount
	}
	return progress.TotalBillValue(amounts...)
}

// Validate checks every row and reports the first failure by row id.
func (e *Editor) Validate() error {
	for _, r := range e.rows {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("row %s: %w", r.ID, err)
		}
	}
	return nil
}

// Normalize maps the rows to the server's appointment shape.
func (e *Editor) Normalize() []billing.Appointment {
	out := make([]billing.Appointment, 0, len(e.rows))
	for _, r := range e.rows {
		notes := r.Notes
		if notes == "" {
			notes = "-"
		}
		out = append(out, billing.Appointment{
			ProviderName:     r.FacilityProvider,
			ProcedureDate:    r.ProcedureDate,
			CurrentBalance:   r.BillAmount,
			Status:           r.Status,
			TreatmentDetails: notes,
			TypeOfRequest:    r.TypeOfRequest,
			DateRangeStart:   r.DateRangeStart,
			DateRangeEnd:     r.DateRangeEnd,
		})
	}
	return out
}

// Updater persists a normalized appointment array.
type Updater interface {
	UpdateAppointments(ctx context.Context, caseID string, appointments []billing.Appointment) error
}

// Submit validates the rows and sends the whole array in one request.
func (e *Editor) Submit(ctx context.Context, u Updater) error {
	if !e.editable {
		return ErrReadOnly
	}
	if err := e.Validate(); err != nil {
		return err
	}
	return u.UpdateAppointments(ctx, e.caseID, e.Normalize())
}
