package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/ace-billing/internal/config"
	"github.com/wolfman30/ace-billing/internal/reports"
	"github.com/wolfman30/ace-billing/internal/session"
	"github.com/wolfman30/ace-billing/pkg/logging"
)

// Session backends accepted in SESSION_BACKEND.
const (
	SessionBackendFile   = "file"
	SessionBackendRedis  = "redis"
	SessionBackendMemory = "memory"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildTokenStore picks where the session token and username persist.
func BuildTokenStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (session.TokenStore, error) {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.SessionBackend {
	case "", SessionBackendFile:
		logger.Debug("session store: file", "path", cfg.SessionFile)
		return session.NewFileStore(cfg.SessionFile), nil
	case SessionBackendMemory:
		return session.NewMemoryStore(), nil
	case SessionBackendRedis:
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return nil, fmt.Errorf("bootstrap: session backend redis needs a reachable REDIS_ADDR")
		}
		return session.NewRedisStore(client, cfg.SessionKeyPrefix), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown session backend %q", cfg.SessionBackend)
	}
}

// BuildArchiver returns the report archiver, or nil when no bucket is set.
func BuildArchiver(s3Client reports.S3API, cfg *appconfig.Config, logger *logging.Logger) *reports.Archiver {
	if cfg == nil || strings.TrimSpace(cfg.ReportArchiveBucket) == "" || s3Client == nil {
		return nil
	}
	return reports.NewArchiver(s3Client, cfg.ReportArchiveBucket, logger)
}
