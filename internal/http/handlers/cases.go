package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/ace-billing/internal/app/bootstrap"
	"github.com/wolfman30/ace-billing/internal/appointments"
	"github.com/wolfman30/ace-billing/internal/billing"
	"github.com/wolfman30/ace-billing/internal/cases"
	"github.com/wolfman30/ace-billing/internal/progress"
	"github.com/wolfman30/ace-billing/internal/session"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

// CasesHandler serves the balance-reduction screen.
type CasesHandler struct {
	cases   *cases.Store
	session *session.Manager
	logger  *logging.Logger
}

// NewCasesHandler creates a cases handler.
func NewCasesHandler(app *bootstrap.App) *CasesHandler {
	return &CasesHandler{cases: app.Cases, session: app.Session, logger: app.Logger.Component("cases-handler")}
}

// CaseResponse is the balance-reduction page model.
type CaseResponse struct {
	Case           billing.Case       `json:"case"`
	Progress       progress.View      `json:"progress"`
	Rows           []appointments.Row `json:"rows"`
	TotalBillValue float64            `json:"totalBillValue"`
}

func caseResponse(c billing.Case) CaseResponse {
	editor := appointments.New(c)
	return CaseResponse{
		Case:           c,
		Progress:       progress.Derive(c),
		Rows:           editor.Rows(),
		TotalBillValue: editor.TotalBillValue(),
	}
}

// StepCompletion is the mark-complete form.
type StepCompletion struct {
	ReductionAmount float64 `json:"reductionAmount"`
	ChequeNo        string  `json:"chequeNo"`
}

// AppointmentsUpdate is the editor submit body.
type AppointmentsUpdate struct {
	Rows []appointments.Row `json:"rows"`
}

// Get handles GET /api/cases/{id}.
func (h *CasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.session.SetCurrentPage(session.PageBalanceReduction)
	if err := h.cases.FetchCase(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	c, ok := h.cases.Current()
	if !ok {
		jsonError(w, "case not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, caseResponse(c))
}

// load returns the cached case when it matches id, else fetches it.
func (h *CasesHandler) load(r *http.Request, id string) (billing.Case, error) {
	if c, ok := h.cases.Current(); ok && c.ID == id {
		return c, nil
	}
	if err := h.cases.FetchCase(r.Context(), id); err != nil {
		return billing.Case{}, err
	}
	c, ok := h.cases.Current()
	if !ok {
		return billing.Case{}, billing.ErrInvalidCase
	}
	return c, nil
}

// CompleteStep handles POST /api/cases/{id}/steps/{step}/complete.
func (h *CasesHandler) CompleteStep(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	step, err := strconv.Atoi(chi.URLParam(r, "step"))
	if err != nil {
		jsonError(w, "step must be a number", http.StatusBadRequest)
		return
	}
	var body StepCompletion
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	c, err := h.load(r, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	req := progress.MarkRequest{CaseID: id, Step: step, ReductionAmount: body.ReductionAmount, ChequeNo: body.ChequeNo}
	if err := h.cases.UpdateStep(r.Context(), c, req); err != nil {
		var gate *progress.GateError
		if errors.As(err, &gate) {
			h.logger.Info("step completion gated", "case_id", id, "step", step)
		}
		writeStoreError(w, err)
		return
	}
	updated, ok := h.cases.Current()
	if !ok {
		jsonError(w, "case missing after update", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, caseResponse(updated))
}

// UpdateAppointments handles PUT /api/cases/{id}/appointments.
func (h *CasesHandler) UpdateAppointments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body AppointmentsUpdate
	if err := decodeJSON(w, r, &body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	c, err := h.load(r, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	editor := appointments.New(c)
	if err := editor.Replace(body.Rows); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := editor.Submit(r.Context(), h.cases); err != nil {
		writeStoreError(w, err)
		return
	}
	updated, _ := h.cases.Current()
	writeJSON(w, http.StatusOK, caseResponse(updated))
}
