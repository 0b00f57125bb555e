package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/ace-billing/cmd/mainconfig"
	"github.com/wolfman30/ace-billing/internal/api/router"
	"github.com/wolfman30/ace-billing/internal/app/bootstrap"
	appconfig "github.com/wolfman30/ace-billing/internal/config"
	httpmiddleware "github.com/wolfman30/ace-billing/internal/http/middleware"
	"github.com/wolfman30/ace-billing/internal/reports"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting ace billing dashboard",
		"env", cfg.Env,
		"port", cfg.Port,
		"api", cfg.APIBaseURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, metricsHandler := setupMetrics()

	tokens, err := bootstrap.BuildTokenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build session store", "error", err)
		os.Exit(1)
	}

	app := bootstrap.NewApp(cfg, logger, bootstrap.Deps{
		Registerer: registry,
		TokenStore: tokens,
		Archiver:   setupArchiver(ctx, cfg, logger),
	})
	if app.Session.Restore(ctx) {
		logger.Info("restored operator session", "user", app.Session.Snapshot().User.Username)
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.UIRateLimitRPS, cfg.UIRateLimitBurst)
	go sweepLimiter(ctx, limiter)

	if cfg.SessionSecret == "" {
		logger.Warn("SESSION_SECRET not set, browser sessions will not survive a restart")
	}
	clientTokens, err := httpmiddleware.NewClientTokens(cfg.SessionSecret, cfg.SessionCookieTTL, cfg.SecureCookies())
	if err != nil {
		logger.Error("failed to set up client credentials", "error", err)
		os.Exit(1)
	}

	r := router.New(&router.Config{
		App:                app,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		ClientTokens:       clientTokens,
	})
	srv := newServer(cfg, r)

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (*prometheus.Registry, http.Handler) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// setupArchiver returns nil unless a report archive bucket is configured.
func setupArchiver(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *reports.Archiver {
	if cfg.ReportArchiveBucket == "" {
		return nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config, report archive disabled", "error", err)
		return nil
	}
	return bootstrap.BuildArchiver(mainconfig.NewS3Client(awsCfg, cfg), cfg, logger)
}

func newServer(cfg *appconfig.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// no WriteTimeout: /ws streams stay open
		IdleTimeout: 60 * time.Second,
	}
}

func sweepLimiter(ctx context.Context, limiter *httpmiddleware.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep(10 * time.Minute)
		}
	}
}
