package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain and work without any config file.
const (
	defaultServerURL      = "http://localhost:8080"
	defaultStoreBackend   = BackendSQLite
	defaultKeyPrefix      = "filemgr:"
	defaultClockSkew      = "0s"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultConnectTimeout = "10s"
	defaultDataTimeout    = "60s"
	defaultGuardListen    = "127.0.0.1:8081"
	defaultGuardLoginPath = "/login"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
// Empty paths are filled in from the platform data directory by Resolve.
func DefaultConfig() *Config {
	return &Config{
		ServerURL: defaultServerURL,
		Store: StoreConfig{
			Backend:   defaultStoreBackend,
			KeyPrefix: defaultKeyPrefix,
		},
		Session: SessionConfig{
			ClockSkew: defaultClockSkew,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
		Guard: GuardConfig{
			Listen:      defaultGuardListen,
			LoginPath:   defaultGuardLoginPath,
			PublicPaths: []string{defaultGuardLoginPath, "/auth/"},
		},
	}
}
