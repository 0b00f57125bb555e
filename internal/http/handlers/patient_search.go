package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/ace-billing/internal/app/bootstrap"
	"github.com/wolfman30/ace-billing/internal/listing"
	"github.com/wolfman30/ace-billing/internal/observability/metrics"
	"github.com/wolfman30/ace-billing/internal/patients"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

// PatientSearchHandler serves debounced search-as-you-type over a WebSocket.
// Each connection owns one list controller.
type PatientSearchHandler struct {
	patients *patients.Store
	delay    time.Duration
	metrics  *metrics.APIMetrics
	logger   *logging.Logger
}

// SearchMessage is one frame sent back to the browser.
type SearchMessage struct {
	Type   string               `json:"type"` // "patients", "error", "pong"
	Result *PatientListResponse `json:"result,omitempty"`
	Query  *listing.Query       `json:"query,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// NewPatientSearchHandler creates the search stream handler.
func NewPatientSearchHandler(app *bootstrap.App) *PatientSearchHandler {
	return &PatientSearchHandler{
		patients: app.Patients,
		delay:    app.Config.SearchDebounce,
		metrics:  app.Metrics,
		logger:   app.Logger.Component("patient-search"),
	}
}

// Stream handles GET /ws/patients. Frames {"type":"search","search":".."}
// and {"type":"page","page":n} (0-indexed) are debounced. A "ping" is
// answered at once with the pending list position.
func (h *PatientSearchHandler) Stream(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn)
	}).ServeHTTP(w, r)
}

func (h *PatientSearchHandler) serveWS(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sendMu sync.Mutex
	reply := func(msg any) {
		sendMu.Lock()
		defer sendMu.Unlock()
		_ = send(conn, msg)
	}

	fetch := func(ctx context.Context, q listing.Query) (patients.State, error) {
		err := h.patients.FetchList(ctx, patients.Query{Page: q.Page, Search: q.Search})
		return h.patients.Snapshot(), err
	}
	apply := func(_ listing.Query, st patients.State, err error) {
		if err != nil {
			reply(SearchMessage{Type: "error", Error: "Failed to fetch patient data"})
			return
		}
		resp := patientListResponse(st)
		reply(SearchMessage{Type: "patients", Result: &resp})
	}
	ctrl := listing.New[patients.State](ctx, fetch, apply, listing.Options{
		Name:    "patients",
		Delay:   h.delay,
		Metrics: h.metrics,
		Logger:  h.logger,
	})
	defer ctrl.Close()

	for {
		var msg inboundFrame
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("patient search stream closed", "error", err)
			return
		}
		switch msg.Type {
		case "search":
			ctrl.SetSearch(msg.Search)
		case "page":
			ctrl.SetPage(listing.FromUIPage(msg.Page))
		case "ping":
			q := ctrl.Query()
			reply(SearchMessage{Type: "pong", Query: &q})
		}
	}
}
