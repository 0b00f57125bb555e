package handlers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/ace-billing/internal/app/bootstrap"
	"github.com/wolfman30/ace-billing/internal/notify"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

// ToastsHandler streams the toast feed over a WebSocket.
type ToastsHandler struct {
	feed   *notify.Feed
	logger *logging.Logger
}

// NewToastsHandler creates a toast stream handler.
func NewToastsHandler(app *bootstrap.App) *ToastsHandler {
	return &ToastsHandler{feed: app.Toasts, logger: app.Logger.Component("toasts-ws")}
}

// ToastMessage is one frame sent to the browser.
type ToastMessage struct {
	Type   string         `json:"type"` // "history", "toast", "pong"
	Toast  *notify.Toast  `json:"toast,omitempty"`
	Toasts []notify.Toast `json:"toasts,omitempty"`
}

type inboundFrame struct {
	Type   string `json:"type"` // "ping", "search", "page"
	Search string `json:"search,omitempty"`
	Page   int    `json:"page,omitempty"`
}

// Stream handles GET /ws/toasts.
func (h *ToastsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn)
	}).ServeHTTP(w, r)
}

func (h *ToastsHandler) serveWS(conn *websocket.Conn) {
	events, cancel := h.feed.Subscribe(32)
	defer cancel()

	if err := websocket.JSON.Send(conn, ToastMessage{Type: "history", Toasts: h.feed.Recent()}); err != nil {
		return
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	pings := make(chan struct{}, 1)
	go func() {
		defer stop()
		for {
			var msg inboundFrame
			if err := websocket.JSON.Receive(conn, &msg); err != nil {
				h.logger.Debug("toast stream closed", "error", err)
				return
			}
			if msg.Type == "ping" {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pings:
			if err := send(conn, ToastMessage{Type: "pong"}); err != nil {
				return
			}
		case t, ok := <-events:
			if !ok {
				return
			}
			if err := send(conn, ToastMessage{Type: "toast", Toast: &t}); err != nil {
				return
			}
		}
	}
}

func send(conn *websocket.Conn, msg any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return websocket.JSON.Send(conn, msg)
}
