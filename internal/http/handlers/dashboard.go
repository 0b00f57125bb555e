package handlers

import (
	"net/http"

	"github.com/wolfman30/ace-billing/internal/app/bootstrap"
	"github.com/wolfman30/ace-billing/internal/billing"
	"github.com/wolfman30/ace-billing/internal/cases"
	"github.com/wolfman30/ace-billing/internal/notify"
	"github.com/wolfman30/ace-billing/internal/session"
)

// DashboardHandler serves the headline counts.
type DashboardHandler struct {
	cases   *cases.Store
	session *session.Manager
	toasts  *notify.Feed
}

// NewDashboardHandler creates a dashboard handler.
func NewDashboardHandler(app *bootstrap.App) *DashboardHandler {
	return &DashboardHandler{cases: app.Cases, session: app.Session, toasts: app.Toasts}
}

// DashboardResponse is the dashboard page model.
type DashboardResponse struct {
	Summary billing.Summary      `json:"summary"`
	Status  billing.StatusCounts `json:"status"`
	Toasts  []notify.Toast       `json:"toasts"`
}

// Overview handles GET /api/dashboard.
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	h.session.SetCurrentPage(session.PageNone)
	if err := h.cases.FetchSummary(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := h.cases.FetchStatus(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}
	snap := h.cases.Snapshot()
	writeJSON(w, http.StatusOK, DashboardResponse{
		Summary: snap.Summary,
		Status:  snap.Status,
		Toasts:  h.toasts.Recent(),
	})
}
