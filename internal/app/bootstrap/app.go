// Package bootstrap assembles the client, the session and the stores into
// one application state container shared by the dashboard and the CLI.
package bootstrap

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/ace-billing/internal/apiclient"
	"github.com/wolfman30/ace-billing/internal/cases"
	appconfig "github.com/wolfman30/ace-billing/internal/config"
	"github.com/wolfman30/ace-billing/internal/notify"
	"github.com/wolfman30/ace-billing/internal/observability/metrics"
	"github.com/wolfman30/ace-billing/internal/patients"
	"github.com/wolfman30/ace-billing/internal/reports"
	"github.com/wolfman30/ace-billing/internal/session"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

// Deps are the optional collaborators of an App.
type Deps struct {
	Registerer prometheus.Registerer
	TokenStore session.TokenStore
	Navigator  session.Navigator
	Toaster    notify.Toaster
	Archiver   *reports.Archiver
	HTTPClient *http.Client
}

// App is the explicit application state: every store plus the client they
// share.
type App struct {
	Config   *appconfig.Config
	Logger   *logging.Logger
	Metrics  *metrics.APIMetrics
	Toasts   *notify.Feed
	Client   *apiclient.Client
	Session  *session.Manager
	Cases    *cases.Store
	Patients *patients.Store
	Reports  *reports.Store
}

// NewApp wires the stores. A 401 from any call expires the session. Without
// a Navigator the toast feed is told to redirect; without a Toaster toasts go
// to the feed.
func NewApp(cfg *appconfig.Config, logger *logging.Logger, deps Deps) *App {
	if logger == nil {
		logger = logging.Default()
	}
	m := metrics.NewAPIMetrics(deps.Registerer)
	feed := notify.NewFeed(0, logger)

	var toaster notify.Toaster = feed
	if deps.Toaster != nil {
		toaster = deps.Toaster
	}
	var navigator session.Navigator = feed
	if deps.Navigator != nil {
		navigator = deps.Navigator
	}

	client := apiclient.New(apiclient.Options{
		BaseURL:    cfg.APIBaseURL,
		Timeout:    cfg.APITimeout,
		RateLimit:  cfg.APIRateLimitRPS,
		RateBurst:  cfg.APIRateLimitBurst,
		HTTPClient: deps.HTTPClient,
		Metrics:    m,
		Logger:     logger,
	})

	sess := session.NewManager(client, deps.TokenStore, logger,
		session.WithNavigator(navigator),
		session.WithToaster(toaster),
		session.WithMetrics(m),
	)
	client.SetTokenSource(sess)
	client.OnUnauthorized(sess.Expire)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Toasts:  feed,
		Client:  client,
		Session: sess,
		Cases: cases.NewStore(client, cases.Options{
			PageSize: cfg.CasePageSize,
			Toaster:  toaster,
			Metrics:  m,
			Logger:   logger,
		}),
		Patients: patients.NewStore(client, patients.Options{
			PageSize: cfg.PageSize,
			Toaster:  toaster,
			Metrics:  m,
			Logger:   logger,
		}),
		Reports: reports.NewStore(client, reports.Options{
			Toaster:  toaster,
			Metrics:  m,
			Logger:   logger,
			Archiver: deps.Archiver,
		}),
	}
}
