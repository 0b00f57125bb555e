package handlers

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/wolfman30/ace-billing/internal/app/bootstrap"
	httpmiddleware "github.com/wolfman30/ace-billing/internal/http/middleware"
	"github.com/wolfman30/ace-billing/internal/session"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

// AuthHandler serves the login form and session checks. Signing in hands the
// browser a client credential; only holders of one see the operator session.
type AuthHandler struct {
	session *session.Manager
	tokens  *httpmiddleware.ClientTokens
	logger  *logging.Logger
}

// NewAuthHandler creates an auth handler over the app session.
func NewAuthHandler(app *bootstrap.App, tokens *httpmiddleware.ClientTokens) *AuthHandler {
	return &AuthHandler{session: app.Session, tokens: tokens, logger: app.Logger.Component("auth-handler")}
}

func (h *AuthHandler) hasCredential(r *http.Request) bool {
	if h.tokens == nil {
		return false
	}
	_, err := h.tokens.FromRequest(r)
	return err == nil
}

// SessionResponse describes the signed-in operator.
type SessionResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *session.User `json:"user,omitempty"`
	CurrentPage   session.Page  `json:"currentPage,omitempty"`
}

func (h *AuthHandler) sessionResponse() SessionResponse {
	snap := h.session.Snapshot()
	return SessionResponse{
		Authenticated: snap.User != nil,
		User:          snap.User,
		CurrentPage:   snap.CurrentPage,
	}
}

// Login handles POST /login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds session.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if h.tokens == nil {
		jsonError(w, "login unavailable", http.StatusServiceUnavailable)
		return
	}
	err := h.session.Login(r.Context(), creds)
	var verr validation.Errors
	switch {
	case err == nil:
		if err := h.tokens.SetCookie(w, creds.Username); err != nil {
			h.logger.Error("failed to issue client credential", "error", err)
			jsonError(w, "login failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, h.sessionResponse())
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "fields": verr})
	case errors.Is(err, session.ErrNoToken):
		jsonError(w, "login failed", http.StatusBadGateway)
	default:
		h.logger.Info("login rejected", "error", err)
		writeStoreError(w, err)
	}
}

// Logout handles POST /logout. Without a valid credential only the caller's
// cookie is cleared; the operator session stays open.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.hasCredential(r) {
		if h.tokens != nil {
			h.tokens.ClearCookie(w)
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.session.Logout(r.Context()); err != nil {
		h.logger.Error("logout failed", "error", err)
		jsonError(w, "logout failed", http.StatusInternalServerError)
		return
	}
	h.tokens.RevokeAll()
	h.tokens.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	if !h.hasCredential(r) {
		writeJSON(w, http.StatusOK, SessionResponse{})
		return
	}
	h.session.CheckSession(r.Context())
	writeJSON(w, http.StatusOK, h.sessionResponse())
}
