package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	maxClockSkew      = 5 * time.Minute
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
	maxRedisDB        = 15
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"auto", "text", "json"}
	validBackends   = []string{BackendSQLite, BackendRedis}
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateHTTPURL(cfg.ServerURL); err != nil {
		errs = append(errs, fmt.Errorf("server_url: %w", err))
	}

	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateGuard(&cfg.Guard)...)

	return errors.Join(errs...)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http or https URL, got %q", raw)
	}

	if u.Host == "" {
		return fmt.Errorf("must include a host, got %q", raw)
	}

	return nil
}

func validateStore(s *StoreConfig) []error {
	var errs []error

	if err := oneOf("store.backend", s.Backend, validBackends); err != nil {
		errs = append(errs, err)
	}

	if s.Backend == BackendRedis && s.RedisAddr == "" {
		errs = append(errs, errors.New("store.redis_addr: required when backend is \"redis\""))
	}

	if s.RedisDB < 0 || s.RedisDB > maxRedisDB {
		errs = append(errs, fmt.Errorf("store.redis_db: must be between 0 and %d, got %d", maxRedisDB, s.RedisDB))
	}

	return errs
}

func validateSession(s *SessionConfig) []error {
	d, err := time.ParseDuration(s.ClockSkew)
	if err != nil {
		return []error{fmt.Errorf("session.clock_skew: invalid duration %q", s.ClockSkew)}
	}

	if d < 0 || d > maxClockSkew {
		return []error{fmt.Errorf("session.clock_skew: must be between 0s and %s, got %s", maxClockSkew, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if err := oneOf("logging.log_level", l.LogLevel, validLogLevels); err != nil {
		errs = append(errs, err)
	}

	if err := oneOf("logging.log_format", l.LogFormat, validLogFormats); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, minDuration("network.connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, minDuration("network.data_timeout", n.DataTimeout, minDataTimeout)...)

	if n.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("network.requests_per_second: must not be negative, got %g", n.RequestsPerSecond))
	}

	return errs
}

func validateGuard(g *GuardConfig) []error {
	var errs []error

	if g.Listen == "" {
		errs = append(errs, errors.New("guard.listen: must not be empty"))
	}

	if g.Upstream != "" {
		if err := validateHTTPURL(g.Upstream); err != nil {
			errs = append(errs, fmt.Errorf("guard.upstream: %w", err))
		}
	}

	if !strings.HasPrefix(g.LoginPath, "/") {
		errs = append(errs, fmt.Errorf("guard.login_path: must start with /, got %q", g.LoginPath))
	}

	for _, p := range g.PublicPaths {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("guard.public_paths: path %q must start with /", p))
		}
	}

	return errs
}

func oneOf(field, value string, valid []string) error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}

	return fmt.Errorf("%s: must be one of [%s], got %q", field, strings.Join(valid, ", "), value)
}

func minDuration(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q", field, value)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}
