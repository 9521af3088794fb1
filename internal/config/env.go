package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "FILEMGR_CONFIG"
	EnvServerURL = "FILEMGR_SERVER_URL"
	EnvLogLevel  = "FILEMGR_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // FILEMGR_CONFIG: override config file path
	ServerURL  string // FILEMGR_SERVER_URL: server root
	LogLevel   string // FILEMGR_LOG_LEVEL: log level
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		ServerURL:  os.Getenv(EnvServerURL),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
}
