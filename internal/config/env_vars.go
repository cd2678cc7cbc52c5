package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	apiBaseURLVar = "PORTAL_API_URL"
	portEnvVar    = "PORT"
	appNameVar    = "APP_NAME"
	credsFileVar  = "CREDENTIALS_FILE"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

// GetAPIBaseURL returns the base URL of the remote portal API
// (e.g. "https://api.example.com/api")
func (EnvVars) GetAPIBaseURL() string {
	return GetEnv(apiBaseURLVar, "http://127.0.0.1:8000/api")
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Portal Session")
}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8000")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// GetCredentialsFile returns the path of the persisted credential store.
// Defaults to ~/.portal/credentials.json
func (EnvVars) GetCredentialsFile() string {
	if path := os.Getenv(credsFileVar); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "credentials.json"
	}
	return filepath.Join(home, ".portal", "credentials.json")
}

// SessionVars reads session lifecycle tunables from the environment.
type SessionVars struct{}

var _ SessionConfig = SessionVars{}

// GetSessionTimeout is the max-age of persisted credentials (default 24h)
func (SessionVars) GetSessionTimeout() time.Duration {
	return minutesEnv("SESSION_TIMEOUT_MINUTES", 24*60)
}

// GetRefreshThreshold is how long before expiry a token counts as
// needing refresh (default 5 minutes)
func (SessionVars) GetRefreshThreshold() time.Duration {
	return minutesEnv("REFRESH_THRESHOLD_MINUTES", 5)
}

// GetRequestTimeout bounds individual API calls (default 30s)
func (SessionVars) GetRequestTimeout() time.Duration {
	if v, err := strconv.Atoi(os.Getenv("REQUEST_TIMEOUT_SECONDS")); err == nil && v > 0 {
		return time.Duration(v) * time.Second
	}
	return 30 * time.Second
}

func minutesEnv(envVar string, defaultMinutes int) time.Duration {
	if v, err := strconv.Atoi(os.Getenv(envVar)); err == nil && v > 0 {
		return time.Duration(v) * time.Minute
	}
	return time.Duration(defaultMinutes) * time.Minute
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
