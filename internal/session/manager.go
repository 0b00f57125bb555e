// Package session holds the signed-in operator and persists the session
// token between runs.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/ace-billing/internal/apiclient"
	"github.com/wolfman30/ace-billing/internal/notify"
	"github.com/wolfman30/ace-billing/internal/observability/metrics"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

// LoginRoute is where an expired or missing session is sent.
const LoginRoute = "/login"

// ErrNoToken is returned when the login response carried no token.
var ErrNoToken = errors.New("session: login response has no token")

// API is the subset of the billing client used for authentication.
type API interface {
	Post(ctx context.Context, path string, body any, opts ...apiclient.RequestOption) (apiclient.Result, error)
}

// Navigator moves the view layer to a route.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a func to Navigator.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

// Page names the section of the console the operator is on.
type Page string

const (
	PageNone             Page = ""
	PagePatients         Page = "patients"
	PagePatientDetails   Page = "patient-details"
	PageBalanceReduction Page = "balance-reduction"
	PageImport           Page = "import"
	PageReports          Page = "reports"
)

// User is the signed-in operator.
type User struct {
	Username string `json:"username"`
	Token    string `json:"-"`
}

// State is a snapshot of the session slice.
type State struct {
	User           *User `json:"user"`
	IsLoginLoading bool  `json:"isLoginLoading"`
	CurrentPage    Page  `json:"currentPage"`
}

// Credentials is the login form.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate applies the login form rules before any request is made.
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Username, validation.Required.Error("Username is required")),
		validation.Field(&c.Password, validation.Required.Error("Password is required")),
	)
}

// Manager owns the session slice.
type Manager struct {
	api       API
	store     TokenStore
	toaster   notify.Toaster
	navigator Navigator
	metrics   *metrics.APIMetrics
	logger    *logging.Logger
	now       func() time.Time

	mu    sync.RWMutex
	state State
}

// Option configures a Manager.
type Option func(*Manager)

// WithNavigator sets where Expire sends the view layer.
func WithNavigator(n Navigator) Option { return func(m *Manager) { m.navigator = n } }

// WithToaster sets the toast sink for login failures.
func WithToaster(t notify.Toaster) Option { return func(m *Manager) { m.toaster = t } }

// WithMetrics records login outcomes.
func WithMetrics(mt *metrics.APIMetrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithClock overrides time.Now for token expiry checks.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// NewManager creates a session manager. A nil store keeps the session in
// memory only.
func NewManager(api API, store TokenStore, logger *logging.Logger, opts ...Option) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = logging.Default()
	}
	m := &Manager{
		api:    api,
		store:  store,
		logger: logger.Component("session"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token implements apiclient.TokenSource.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.User == nil {
		return ""
	}
	return m.state.User.Token
}

// Snapshot returns a copy of the session slice.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// SetCurrentPage records which console section is active.
func (m *Manager) SetCurrentPage(p Page) {
	m.mu.Lock()
	m.state.CurrentPage = p
	m.mu.Unlock()
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.state.IsLoginLoading = v
	m.mu.Unlock()
}

// Login authenticates against POST /auth/login and persists the token and
// username. Failures are toasted and returned.
func (m *Manager) Login(ctx context.Context, creds Credentials) (err error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if err := creds.Validate(); err != nil {
		return err
	}

	m.setLoading(true)
	defer m.setLoading(false)
	defer func() { m.metrics.ObserveStoreOp("session", "login", err == nil) }()

	res, err := m.api.Post(ctx, "/auth/login", creds, apiclient.WithoutAuth(), apiclient.WithOperation("auth.login"))
	if err != nil {
		msg := res.Message
		if msg == "" {
			msg = "Login failed"
		}
		notify.Error(ctx, m.toaster, msg)
		return fmt.Errorf("session: login: %w", err)
	}

	var body struct {
		Token string `json:"token"`
	}
	if derr := res.Decode(&body); derr != nil || body.Token == "" {
		notify.Error(ctx, m.toaster, "Login failed")
		return ErrNoToken
	}

	m.mu.Lock()
	m.state.User = &User{Username: creds.Username, Token: body.Token}
	m.mu.Unlock()

	if err := m.store.Set(ctx, KeyToken, body.Token); err != nil {
		m.logger.Warn("failed to persist token", "error", err)
	}
	if err := m.store.Set(ctx, KeyUsername, creds.Username); err != nil {
		m.logger.Warn("failed to persist username", "error", err)
	}
	m.logger.Info("operator signed in", "username", creds.Username)
	return nil
}

// Logout drops the in-memory user and the persisted keys.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.state.User = nil
	m.mu.Unlock()
	if err := m.store.Delete(ctx, KeyToken, KeyUsername); err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}
	m.logger.Info("operator signed out")
	return nil
}

// Restore rebuilds the session from persisted keys on boot. It reports
// whether a usable session was found.
func (m *Manager) Restore(ctx context.Context) bool {
	token, err := m.store.Get(ctx, KeyToken)
	if err != nil {
		m.logger.Warn("failed to read persisted token", "error", err)
		return false
	}
	if token == "" {
		return false
	}
	if m.expired(token) {
		m.logger.Info("persisted token expired")
		_ = m.store.Delete(ctx, KeyToken, KeyUsername)
		return false
	}
	username, err := m.store.Get(ctx, KeyUsername)
	if err != nil {
		m.logger.Warn("failed to read persisted username", "error", err)
	}
	m.mu.Lock()
	m.state.User = &User{Username: username, Token: token}
	m.mu.Unlock()
	return true
}

// CheckSession reports whether a signed-in, unexpired session exists. An
// expired token is treated like a 401.
func (m *Manager) CheckSession(ctx context.Context) bool {
	token := m.Token()
	if token == "" {
		return false
	}
	if m.expired(token) {
		m.Expire(ctx)
		return false
	}
	return true
}

// Expire is the 401 path: clear the user and persisted keys and send the
// view layer to the login route.
func (m *Manager) Expire(ctx context.Context) {
	m.mu.Lock()
	m.state.User = nil
	m.mu.Unlock()
	if err := m.store.Delete(ctx, KeyToken, KeyUsername); err != nil {
		m.logger.Warn("failed to clear persisted session", "error", err)
	}
	m.logger.Info("session expired")
	if m.navigator != nil {
		m.navigator.Navigate(LoginRoute)
	}
}

// expired inspects JWT tokens without verifying them; the server holds the
// key. Opaque tokens never expire client-side.
func (m *Manager) expired(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !m.now().Before(claims.ExpiresAt.Time)
}
