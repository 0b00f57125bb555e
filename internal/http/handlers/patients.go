package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/ace-billing/internal/app/bootstrap"
	"github.com/wolfman30/ace-billing/internal/billing"
	"github.com/wolfman30/ace-billing/internal/cases"
	"github.com/wolfman30/ace-billing/internal/listing"
	"github.com/wolfman30/ace-billing/internal/patients"
	"github.com/wolfman30/ace-billing/internal/progress"
	"github.com/wolfman30/ace-billing/internal/session"
)

// PatientsHandler serves the patient list and patient detail pages.
type PatientsHandler struct {
	patients *patients.Store
	cases    *cases.Store
	session  *session.Manager
}

// NewPatientsHandler creates a patients handler.
func NewPatientsHandler(app *bootstrap.App) *PatientsHandler {
	return &PatientsHandler{patients: app.Patients, cases: app.Cases, session: app.Session}
}

// PatientListItem is one patient row with its status badge.
type PatientListItem struct {
	billing.Patient
	Badge string `json:"badge"`
}

// PatientListResponse is one page of patients. UIPage is 0-indexed.
type PatientListResponse struct {
	Patients   []PatientListItem `json:"patients"`
	UIPage     int               `json:"page"`
	TotalPages int               `json:"totalPages"`
	Total      int               `json:"total"`
	Search     string            `json:"search,omitempty"`
}

// CaseOverview is a case on the patient detail page.
type CaseOverview struct {
	Case             billing.Case  `json:"case"`
	Progress         progress.View `json:"progress"`
	ReductionPercent float64       `json:"reductionPercent"`
	Badge            string        `json:"badge"`
}

// AppointmentEstimate pairs an appointment with its projected balance.
type AppointmentEstimate struct {
	billing.Appointment
	EstimatedFinalBalance float64 `json:"estimatedFinalBalance"`
}

// PatientDetailResponse is the patient detail page model.
type PatientDetailResponse struct {
	Patient      billing.Patient       `json:"patient"`
	Cases        []CaseOverview        `json:"cases"`
	Appointments []AppointmentEstimate `json:"appointments"`
}

func queryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return fallback
	}
	return v
}

// List handles GET /api/patients?page&search. page is the widget's 0-indexed
// selection.
func (h *PatientsHandler) List(w http.ResponseWriter, r *http.Request) {
	h.session.SetCurrentPage(session.PagePatients)
	q := patients.Query{
		Page:   listing.FromUIPage(queryInt(r, "page", 0)),
		Search: r.URL.Query().Get("search"),
	}
	if err := h.patients.FetchList(r.Context(), q); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patientListResponse(h.patients.Snapshot()))
}

func patientListResponse(snap patients.State) PatientListResponse {
	resp := PatientListResponse{
		Patients:   make([]PatientListItem, 0, len(snap.List.List)),
		UIPage:     max(snap.Query.Page-1, 0),
		TotalPages: snap.List.TotalPages,
		Total:      snap.List.Total,
		Search:     snap.Query.Search,
	}
	for _, p := range snap.List.List {
		badge := "neutral"
		if len(p.Cases) > 0 {
			badge = p.Cases[len(p.Cases)-1].Status.Badge()
		}
		resp.Patients = append(resp.Patients, PatientListItem{Patient: p, Badge: badge})
	}
	return resp
}

// Detail handles GET /api/patients/{id}.
func (h *PatientsHandler) Detail(w http.ResponseWriter, r *http.Request) {
	h.session.SetCurrentPage(session.PagePatientDetails)
	id := chi.URLParam(r, "id")
	if err := h.patients.FetchDetails(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	snap := h.patients.Snapshot()
	if snap.Details == nil {
		jsonError(w, "patient not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, patientDetail(*snap.Details))
}

func patientDetail(d billing.PatientDetails) PatientDetailResponse {
	resp := PatientDetailResponse{
		Patient:      d.Patient,
		Cases:        make([]CaseOverview, 0, len(d.Cases)),
		Appointments: make([]AppointmentEstimate, 0, len(d.Appointments)),
	}
	completed := 0
	for _, c := range d.Cases {
		view := progress.Derive(c)
		resp.Cases = append(resp.Cases, CaseOverview{
			Case:             c,
			Progress:         view,
			ReductionPercent: progress.ReductionPercent(view.TotalBillValue, view.FinalAmount),
			Badge:            c.Status.Badge(),
		})
		completed = max(completed, view.CompletedSteps)
	}
	for _, a := range d.Appointments {
		resp.Appointments = append(resp.Appointments, AppointmentEstimate{
			Appointment:           a,
			EstimatedFinalBalance: progress.HeuristicFinalBalance(a.CurrentBalance, completed),
		})
	}
	return resp
}

// Cases handles GET /api/patients/{id}/cases?page with a 0-indexed page.
func (h *PatientsHandler) Cases(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.cases.FetchList(r.Context(), id, queryInt(r, "page", 0), 0); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cases.Snapshot().List)
}
