package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/wolfman30/ace-billing/internal/apiclient"
	"github.com/wolfman30/ace-billing/internal/appointments"
	"github.com/wolfman30/ace-billing/internal/billing"
	"github.com/wolfman30/ace-billing/internal/http/middleware"
	"github.com/wolfman30/ace-billing/internal/progress"
	"github.com/wolfman30/ace-billing/internal/reports"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(out)
}

// writeStoreError maps a store failure onto a response. The toast for the
// failure has already been pushed by the store.
func writeStoreError(w http.ResponseWriter, err error) {
	var (
		verr   validation.Errors
		gate   *progress.GateError
		apiErr *apiclient.Error
	)
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"redirect": middleware.LoginPath})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "fields": verr})
	case errors.As(err, &gate):
		jsonError(w, gate.Error(), http.StatusConflict)
	case errors.Is(err, appointments.ErrReadOnly):
		jsonError(w, "case is not active", http.StatusConflict)
	case errors.Is(err, appointments.ErrUnknownRow), errors.Is(err, appointments.ErrUnknownField):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, billing.ErrInvalidCase), errors.Is(err, reports.ErrInvalidFormat), errors.Is(err, apiclient.ErrNoData):
		jsonError(w, err.Error(), http.StatusBadGateway)
	case errors.As(err, &apiErr):
		status := http.StatusBadGateway
		if apiErr.Code >= 400 && apiErr.Code < 500 {
			status = apiErr.Code
		}
		jsonError(w, apiErr.Message, status)
	default:
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
