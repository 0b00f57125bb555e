package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/ace-billing/internal/app/bootstrap"
	"github.com/wolfman30/ace-billing/internal/billing"
	"github.com/wolfman30/ace-billing/internal/reports"
	"github.com/wolfman30/ace-billing/internal/session"
)

// ReportsHandler serves the report page and the spreadsheet download.
type ReportsHandler struct {
	reports *reports.Store
	session *session.Manager
}

// NewReportsHandler creates a reports handler.
func NewReportsHandler(app *bootstrap.App) *ReportsHandler {
	return &ReportsHandler{reports: app.Reports, session: app.Session}
}

// ReportResponse is the report page model.
type ReportResponse struct {
	Report billing.Report          `json:"report"`
	Groups []reports.ProviderGroup `json:"groups"`
	Totals reports.Totals          `json:"totals"`
}

// Get handles GET /api/reports/{patientID}.
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.session.SetCurrentPage(session.PageReports)
	if err := h.reports.Fetch(r.Context(), chi.URLParam(r, "patientID")); err != nil {
		writeStoreError(w, err)
		return
	}
	snap := h.reports.Snapshot()
	if snap.Report == nil {
		jsonError(w, "report not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ReportResponse{
		Report: *snap.Report,
		Groups: reports.GroupByProvider(*snap.Report),
		Totals: reports.Total(*snap.Report),
	})
}

// Download handles GET /api/reports/{patientID}/download.
func (h *ReportsHandler) Download(w http.ResponseWriter, r *http.Request) {
	dl, err := h.reports.Download(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(dl.Body)
}
