package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/ace-billing/pkg/logging"
)

type fixedSession bool

func (f fixedSession) CheckSession(context.Context) bool { return bool(f) }

func newTokens(t *testing.T) *ClientTokens {
	t.Helper()
	tokens, err := NewClientTokens("test-secret", time.Hour, false)
	require.NoError(t, err)
	return tokens
}

func withCookie(t *testing.T, tokens *ClientTokens, r *http.Request) *http.Request {
	t.Helper()
	token, _, err := tokens.Issue("alice")
	require.NoError(t, err)
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	return r
}

func TestRequireSession(t *testing.T) {
	tokens := newTokens(t)

	t.Run("credential and live session pass", func(t *testing.T) {
		var subject string
		rec := httptest.NewRecorder()
		h := RequireSession(fixedSession(true), tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := ClientClaimsFromContext(r.Context())
			subject = claims.Subject
		}))
		h.ServeHTTP(rec, withCookie(t, tokens, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", subject)
	})

	t.Run("live session without credential is rejected", func(t *testing.T) {
		called := false
		req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
		req.Header.Set("Accept", "application/json")
		rec := httptest.NewRecorder()
		RequireSession(fixedSession(true), tokens)(okHandler(&called)).ServeHTTP(rec, req)
		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("credential without live session is rejected", func(t *testing.T) {
		called := false
		rec := httptest.NewRecorder()
		req := withCookie(t, tokens, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
		RequireSession(fixedSession(false), tokens)(okHandler(&called)).ServeHTTP(rec, req)
		assert.False(t, called)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
	})

	t.Run("missing issuer rejects everything", func(t *testing.T) {
		called := false
		rec := httptest.NewRecorder()
		req := withCookie(t, tokens, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
		RequireSession(fixedSession(true), nil)(okHandler(&called)).ServeHTTP(rec, req)
		assert.False(t, called)
	})

	t.Run("browser is redirected", func(t *testing.T) {
		called := false
		rec := httptest.NewRecorder()
		RequireSession(fixedSession(false), tokens)(okHandler(&called)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
		assert.False(t, called)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, LoginPath, rec.Header().Get("Location"))
	})

	t.Run("json client gets 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
		req.Header.Set("Accept", "application/json")
		rec := httptest.NewRecorder()
		RequireSession(fixedSession(false), tokens)(okHandler(nil)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"redirect":"/login"}`, rec.Body.String())
	})
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	var buf bytes.Buffer
	var seen string
	h := RequestLogger(logging.NewWithWriter(&buf, "info"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"component":"http"`)
}
