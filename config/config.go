package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds everything read from the environment at startup.
type Config struct {
	Port        string
	Env         string
	PublicURL   string
	CORSOrigins []string

	// Upstream collaborators
	APIBaseURL   string
	IdentityURL  string
	ImageHostURL string
	ImageHostKey string
	CheckoutURL  string
	FetchTimeout time.Duration
	CacheMaxAge  time.Duration

	// Sessions
	JWTSecret        string
	SessionTTL       time.Duration
	WorkspaceIdleTTL time.Duration

	// Redis
	RedisAddress     string
	RedisPassword    string
	ReportQueue      string
	DailyReportLimit int

	// Business rules
	MaxFreeIssues int
	PremiumPrice  float64
	BoostPrice    float64

	LogLevel  string
	LogFormat string
	SentryDSN string
}

// Load reads .env (if present) and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("APP_ENV", "development"),
		PublicURL:   strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:5173"), "/"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),

		APIBaseURL:   strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:3000"), "/"),
		IdentityURL:  strings.TrimRight(getEnv("IDENTITY_URL", "http://localhost:3000/auth"), "/"),
		ImageHostURL: getEnv("IMAGE_HOST_URL", "https://api.imgbb.com/1/upload"),
		ImageHostKey: getEnv("IMAGE_HOST_KEY", ""),
		CheckoutURL:  strings.TrimRight(getEnv("CHECKOUT_URL", "http://localhost:3000/create-checkout-session"), "/"),
		FetchTimeout: getDuration("FETCH_TIMEOUT", 15*time.Second),
		CacheMaxAge:  getDuration("CACHE_MAX_AGE", time.Minute),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		SessionTTL:       getDuration("SESSION_TTL", 72*time.Hour),
		WorkspaceIdleTTL: getDuration("WORKSPACE_IDLE_TTL", 30*time.Minute),

		RedisAddress:     getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		ReportQueue:      getEnv("REDIS_QUEUE_FOR_ISSUE_LIMIT", "issue-limit"),
		DailyReportLimit: getInt("DAILY_REPORT_LIMIT", 10),

		MaxFreeIssues: getInt("MAX_FREE_ISSUES", 3),
		PremiumPrice:  getFloat("PREMIUM_PRICE", 1000),
		BoostPrice:    getFloat("BOOST_PRICE", 100),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		SentryDSN: getEnv("SENTRY_DSN", ""),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
