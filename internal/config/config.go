// Package config loads application configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	HTTPAddr    string

	TrialLengthDays int

	IdentityBaseURL string
	IdentityToken   string

	StripeSecretKey    string
	CheckoutSuccessURL string
	CheckoutCancelURL  string
	PortalReturnURL    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	Metrics MetricsConfig
}

// MetricsConfig configures the OTLP metrics exporter.
type MetricsConfig struct {
	Enabled  bool
	Exporter string
	Endpoint string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "tenantcore"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		TrialLengthDays: getenvInt("TRIAL_LENGTH_DAYS", 14),

		IdentityBaseURL: strings.TrimSpace(getenv("IDENTITY_BASE_URL", "")),
		IdentityToken:   strings.TrimSpace(getenv("IDENTITY_API_TOKEN", "")),

		StripeSecretKey:    strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
		CheckoutSuccessURL: getenv("CHECKOUT_SUCCESS_URL", "https://app.tenantcore.dev/billing/success"),
		CheckoutCancelURL:  getenv("CHECKOUT_CANCEL_URL", "https://app.tenantcore.dev/billing/cancel"),
		PortalReturnURL:    getenv("PORTAL_RETURN_URL", "https://app.tenantcore.dev/billing"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tenantcore"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		Metrics: MetricsConfig{
			Enabled:  getenvBool("METRICS_ENABLED", false),
			Exporter: strings.ToLower(getenv("METRICS_EXPORTER", "grpc")),
			Endpoint: strings.TrimSpace(getenv("METRICS_ENDPOINT", "localhost:4317")),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
