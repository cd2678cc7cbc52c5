package config

import "time"

type Config interface {
	EnvConfig
	SessionConfig
}

// EnvConfig exposes environment-level settings.
type EnvConfig interface {
	GetAPIBaseURL() string
	GetAppName() string
	GetPort() string
	GetEnv() string
	GetCredentialsFile() string
}

// SessionConfig exposes the tunables of the session lifecycle.
type SessionConfig interface {
	GetSessionTimeout() time.Duration
	GetRefreshThreshold() time.Duration
	GetRequestTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
	SessionVars
}

func New() Config {
	return mainConfig{}
}
