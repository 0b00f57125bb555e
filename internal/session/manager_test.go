package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/ace-billing/internal/apiclient"
	"github.com/wolfman30/ace-billing/internal/notify"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

type recordingToaster struct {
	mu     sync.Mutex
	toasts []notify.Toast
}

func (r *recordingToaster) Toast(_ context.Context, t notify.Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

func (r *recordingToaster) descriptions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.toasts))
	for _, t := range r.toasts {
		out = append(out, t.Description)
	}
	return out
}

type recordingNavigator struct {
	routes []string
}

func (r *recordingNavigator) Navigate(route string) { r.routes = append(r.routes, route) }

type harness struct {
	client  *apiclient.Client
	manager *Manager
	store   *MemoryStore
	toaster *recordingToaster
	nav     *recordingNavigator
}

func newHarness(t *testing.T, handler http.HandlerFunc, opts ...Option) *harness {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	logger := logging.NewWithWriter(io.Discard, "debug")
	client := apiclient.New(apiclient.Options{BaseURL: ts.URL, Logger: logger})
	h := &harness{
		client:  client,
		store:   NewMemoryStore(),
		toaster: &recordingToaster{},
		nav:     &recordingNavigator{},
	}
	opts = append([]Option{WithToaster(h.toaster), WithNavigator(h.nav)}, opts...)
	h.manager = NewManager(client, h.store, logger, opts...)
	client.SetTokenSource(h.manager)
	client.OnUnauthorized(h.manager.Expire)
	return h
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestLoginPersistsTokenAndUsername(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get(apiclient.TokenHeader))
		var creds Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "alice", creds.Username)
		_, _ = w.Write([]byte(`{"status":true,"data":{"token":"tok-abc"}}`))
	})
	ctx := context.Background()

	require.NoError(t, h.manager.Login(ctx, Credentials{Username: " alice ", Password: "pw"}))

	snap := h.manager.Snapshot()
	require.NotNil(t, snap.User)
	assert.Equal(t, "alice", snap.User.Username)
	assert.False(t, snap.IsLoginLoading)
	assert.Equal(t, "tok-abc", h.manager.Token())

	token, _ := h.store.Get(ctx, KeyToken)
	username, _ := h.store.Get(ctx, KeyUsername)
	assert.Equal(t, "tok-abc", token)
	assert.Equal(t, "alice", username)
}

func TestLoginValidationSkipsRequest(t *testing.T) {
	called := false
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	err := h.manager.Login(context.Background(), Credentials{Username: "alice"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Password is required")
	assert.False(t, called)
}

func TestLoginFailureToastsServerMessage(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid credentials"}`))
	})

	err := h.manager.Login(context.Background(), Credentials{Username: "alice", Password: "bad"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apiclient.ErrRequestFailed)
	assert.Nil(t, h.manager.Snapshot().User)
	assert.False(t, h.manager.Snapshot().IsLoginLoading)
	assert.Equal(t, []string{"Invalid credentials"}, h.toaster.descriptions())
}

func TestLoginWithoutTokenFails(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":{}}`))
	})

	err := h.manager.Login(context.Background(), Credentials{Username: "alice", Password: "pw"})
	assert.True(t, errors.Is(err, ErrNoToken))
	assert.Nil(t, h.manager.Snapshot().User)
}

func TestUnauthorizedResponseExpiresSession(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":false,"message":"Token expired"}`))
	})
	ctx := context.Background()
	require.NoError(t, h.store.Set(ctx, KeyToken, "tok-old"))
	require.NoError(t, h.store.Set(ctx, KeyUsername, "alice"))
	require.True(t, h.manager.Restore(ctx))

	_, err := h.client.Get(ctx, "/cases/c-1")
	require.ErrorIs(t, err, apiclient.ErrUnauthorized)

	assert.Nil(t, h.manager.Snapshot().User)
	token, _ := h.store.Get(ctx, KeyToken)
	username, _ := h.store.Get(ctx, KeyUsername)
	assert.Empty(t, token)
	assert.Empty(t, username)
	assert.Equal(t, []string{LoginRoute}, h.nav.routes)
}

func TestCheckSessionExpiresJWT(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {}, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, h.store.Set(ctx, KeyToken, signedToken(t, now.Add(time.Hour))))
	require.NoError(t, h.store.Set(ctx, KeyUsername, "alice"))
	require.True(t, h.manager.Restore(ctx))
	assert.True(t, h.manager.CheckSession(ctx))

	now = now.Add(2 * time.Hour)
	assert.False(t, h.manager.CheckSession(ctx))
	assert.Nil(t, h.manager.Snapshot().User)
	assert.Equal(t, []string{LoginRoute}, h.nav.routes)
}

func TestRestoreDropsExpiredToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {}, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	require.NoError(t, h.store.Set(ctx, KeyToken, signedToken(t, now.Add(-time.Minute))))

	assert.False(t, h.manager.Restore(ctx))
	token, _ := h.store.Get(ctx, KeyToken)
	assert.Empty(t, token)
}

func TestOpaqueTokenIsAccepted(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx := context.Background()
	require.NoError(t, h.store.Set(ctx, KeyToken, "opaque-token"))

	require.True(t, h.manager.Restore(ctx))
	assert.True(t, h.manager.CheckSession(ctx))
}

func TestLogoutClearsState(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":{"token":"tok-abc"}}`))
	})
	ctx := context.Background()
	require.NoError(t, h.manager.Login(ctx, Credentials{Username: "alice", Password: "pw"}))
	h.manager.SetCurrentPage(PagePatients)

	require.NoError(t, h.manager.Logout(ctx))
	assert.Nil(t, h.manager.Snapshot().User)
	assert.Equal(t, PagePatients, h.manager.Snapshot().CurrentPage)
	assert.Empty(t, h.manager.Token())
	assert.False(t, h.manager.CheckSession(ctx))
}
