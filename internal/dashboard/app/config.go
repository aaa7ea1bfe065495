package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseFile string // Optional: path to SQLite database file (default: ./opsdesk.db)
	SessionFile  string // Optional: path to persisted session records (default: ./data/session.json)
	Env          string // Environment (dev, staging, prod) (default: dev)
	LogLevel     string // Log level (debug, info, warn, error) (default: info)
	LogFormat    string // Log format (json, text) (default: json)
	Port         int    // HTTP server port (default: 8080)

	TOTPIssuer    string        // Issuer label in authenticator apps (default: OpsDesk)
	SessionSecret string        // Required in prod: HS256 key for access tokens
	SessionTTL    time.Duration // Access token lifetime (default: 12h)

	BootstrapAdminPassword string // Optional: password for the seeded admin account
	BootstrapUserPassword  string // Optional: password for the seeded user account

	OAuthClientID      string // Optional: enables device flow and OIDC when set
	OAuthClientSecret  string // Optional: required for the OIDC code exchange
	OAuthTenantID      string
	OAuthRedirectURI   string
	OAuthAuthURL       string
	OAuthDeviceAuthURL string
	OAuthTokenURL      string
	OAuthProfileURL    string
	OAuthScopes        []string

	AutomationBackendURL string // Optional: enables the chat relay when set
	IntegrationsFile     string // Optional: path to the key=value secrets file

	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		DatabaseFile: getEnvOrDefault("OPSDESK_DATABASE_FILE", "opsdesk.db"),
		SessionFile:  getEnvOrDefault("OPSDESK_SESSION_FILE", "data/session.json"),
		Env:          getEnvOrDefault("ENV", "dev"),
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:    getEnvOrDefault("LOG_FORMAT", "json"),
		Port:         getEnvIntOrDefault("PORT", 8080),

		TOTPIssuer:    getEnvOrDefault("OPSDESK_TOTP_ISSUER", "OpsDesk"),
		SessionSecret: os.Getenv("OPSDESK_SESSION_SECRET"),
		SessionTTL:    getEnvDurationOrDefault("OPSDESK_SESSION_TTL", 12*time.Hour),

		BootstrapAdminPassword: os.Getenv("OPSDESK_BOOTSTRAP_ADMIN_PASSWORD"),
		BootstrapUserPassword:  os.Getenv("OPSDESK_BOOTSTRAP_USER_PASSWORD"),

		OAuthClientID:      os.Getenv("OPSDESK_OAUTH_CLIENT_ID"),
		OAuthClientSecret:  os.Getenv("OPSDESK_OAUTH_CLIENT_SECRET"),
		OAuthTenantID:      os.Getenv("OPSDESK_OAUTH_TENANT_ID"),
		OAuthRedirectURI:   os.Getenv("OPSDESK_OAUTH_REDIRECT_URI"),
		OAuthAuthURL:       os.Getenv("OPSDESK_OAUTH_AUTH_URL"),
		OAuthDeviceAuthURL: os.Getenv("OPSDESK_OAUTH_DEVICE_AUTH_URL"),
		OAuthTokenURL:      os.Getenv("OPSDESK_OAUTH_TOKEN_URL"),
		OAuthProfileURL:    os.Getenv("OPSDESK_OAUTH_PROFILE_URL"),
		OAuthScopes:        getEnvListOrDefault("OPSDESK_OAUTH_SCOPES", []string{"openid", "profile", "email", "offline_access"}),

		AutomationBackendURL: os.Getenv("OPSDESK_AUTOMATION_BACKEND_URL"),
		IntegrationsFile:     getEnvOrDefault("OPSDESK_INTEGRATIONS_FILE", "data/integrations.env"),

		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
