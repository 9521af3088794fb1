// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for filemgr. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	ServerURL string        `toml:"server_url" json:"server_url"`
	Store     StoreConfig   `toml:"store" json:"store"`
	Cookie    CookieConfig  `toml:"cookie" json:"cookie"`
	Session   SessionConfig `toml:"session" json:"session"`
	Logging   LoggingConfig `toml:"logging" json:"logging"`
	Network   NetworkConfig `toml:"network" json:"network"`
	Guard     GuardConfig   `toml:"guard" json:"guard"`
}

// StoreConfig selects the durable credential surface. The sqlite backend
// keeps one database file per user; redis lets several hosts share a login.
type StoreConfig struct {
	Backend   string `toml:"backend" json:"backend"`
	Path      string `toml:"path" json:"path"`
	RedisAddr string `toml:"redis_addr" json:"redis_addr"`
	RedisDB   int    `toml:"redis_db" json:"redis_db"`
	KeyPrefix string `toml:"key_prefix" json:"key_prefix"`
}

// CookieConfig locates the cookie surface file read by the route guard.
type CookieConfig struct {
	Path string `toml:"path" json:"path"`
}

// SessionConfig tunes credential validation.
type SessionConfig struct {
	// ClockSkew tolerates a server clock slightly ahead of ours. Zero means
	// a credential is invalid the instant its expiry passes.
	ClockSkew string `toml:"clock_skew" json:"clock_skew"`
}

// LoggingConfig controls log output behavior: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format"`
}

// NetworkConfig controls HTTP client behavior: timeouts, user agent, and
// client-side rate limiting.
type NetworkConfig struct {
	ConnectTimeout    string  `toml:"connect_timeout" json:"connect_timeout"`
	DataTimeout       string  `toml:"data_timeout" json:"data_timeout"`
	UserAgent         string  `toml:"user_agent" json:"user_agent"`
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
}

// GuardConfig configures `filemgr serve`, the cookie-reading route guard.
type GuardConfig struct {
	Listen      string   `toml:"listen" json:"listen"`
	Upstream    string   `toml:"upstream" json:"upstream"`
	LoginPath   string   `toml:"login_path" json:"login_path"`
	PublicPaths []string `toml:"public_paths" json:"public_paths"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	ServerURL  *string // --server flag
	LogLevel   *string // --log-level flag
}

// ClockSkewDuration returns the parsed clock skew. Validate has already
// rejected unparseable values, so errors read as zero.
func (s *SessionConfig) ClockSkewDuration() time.Duration {
	return parseDurationOrZero(s.ClockSkew)
}

// ConnectTimeoutDuration returns the parsed connect timeout.
func (n *NetworkConfig) ConnectTimeoutDuration() time.Duration {
	return parseDurationOrZero(n.ConnectTimeout)
}

// DataTimeoutDuration returns the parsed data timeout.
func (n *NetworkConfig) DataTimeoutDuration() time.Duration {
	return parseDurationOrZero(n.DataTimeout)
}

func parseDurationOrZero(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}
