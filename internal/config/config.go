package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Billing API
	APIBaseURL        string
	APITimeout        time.Duration
	APIRateLimitRPS   float64
	APIRateLimitBurst int

	// List behaviour
	PageSize       int
	CasePageSize   int
	SearchDebounce time.Duration

	// Session persistence
	SessionBackend   string
	SessionFile      string
	SessionKeyPrefix string
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool

	// Reports
	ReportDir           string
	ReportArchiveBucket string

	// AWS (report archive)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Dashboard server
	CORSAllowedOrigins []string
	UIRateLimitRPS     float64
	UIRateLimitBurst   int
	SessionSecret      string
	SessionCookieTTL   time.Duration
}

// SecureCookies reports whether the dashboard's session cookie needs HTTPS.
func (c *Config) SecureCookies() bool {
	return c.Env != "development"
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		APIBaseURL:        strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:5000/api"), "/"),
		APITimeout:        getEnvAsDuration("API_TIMEOUT", 30*time.Second),
		APIRateLimitRPS:   getEnvAsFloat("API_RATE_LIMIT_RPS", 10),
		APIRateLimitBurst: getEnvAsInt("API_RATE_LIMIT_BURST", 20),

		PageSize:       getEnvAsInt("PAGE_SIZE", 10),
		CasePageSize:   getEnvAsInt("CASE_PAGE_SIZE", 100),
		SearchDebounce: getEnvAsDuration("SEARCH_DEBOUNCE", 500*time.Millisecond),

		SessionBackend:   strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "file"))),
		SessionFile:      getEnv("SESSION_FILE", defaultSessionFile()),
		SessionKeyPrefix: getEnv("SESSION_KEY_PREFIX", "ace:session:"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),

		ReportDir:           getEnv("REPORT_DIR", "."),
		ReportArchiveBucket: getEnv("REPORT_ARCHIVE_BUCKET", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		UIRateLimitRPS:     getEnvAsFloat("UI_RATE_LIMIT_RPS", 20),
		UIRateLimitBurst:   getEnvAsInt("UI_RATE_LIMIT_BURST", 40),
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		SessionCookieTTL:   getEnvAsDuration("SESSION_COOKIE_TTL", 12*time.Hour),
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".ace-session.json"
	}
	return dir + string(os.PathSeparator) + "ace-billing" + string(os.PathSeparator) + "session.json"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
