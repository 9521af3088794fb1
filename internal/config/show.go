package config

import (
	"fmt"
	"io"
	"strings"
)

// RenderEffective writes the resolved configuration as a human-readable
// summary to w. This powers "filemgr config show", giving users visibility
// into the effective values after all override layers have been applied.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", path)
	ew.printf("server_url = %q\n\n", cfg.ServerURL)

	ew.printf("[store]\n")
	ew.printf("  backend    = %q\n", cfg.Store.Backend)

	if cfg.Store.Backend == BackendRedis {
		ew.printf("  redis_addr = %q\n", cfg.Store.RedisAddr)
		ew.printf("  redis_db   = %d\n", cfg.Store.RedisDB)
		ew.printf("  key_prefix = %q\n", cfg.Store.KeyPrefix)
	} else {
		ew.printf("  path       = %q\n", cfg.Store.Path)
	}

	ew.printf("\n[cookie]\n")
	ew.printf("  path = %q\n", cfg.Cookie.Path)

	ew.printf("\n[session]\n")
	ew.printf("  clock_skew = %q\n", cfg.Session.ClockSkew)

	ew.printf("\n[logging]\n")
	ew.printf("  log_level  = %q\n", cfg.Logging.LogLevel)
	ew.printf("  log_format = %q\n", cfg.Logging.LogFormat)

	ew.printf("\n[network]\n")
	ew.printf("  connect_timeout     = %q\n", cfg.Network.ConnectTimeout)
	ew.printf("  data_timeout        = %q\n", cfg.Network.DataTimeout)
	ew.printf("  requests_per_second = %g\n", cfg.Network.RequestsPerSecond)

	if cfg.Network.UserAgent != "" {
		ew.printf("  user_agent          = %q\n", cfg.Network.UserAgent)
	}

	ew.printf("\n[guard]\n")
	ew.printf("  listen       = %q\n", cfg.Guard.Listen)
	ew.printf("  upstream     = %q\n", cfg.Guard.Upstream)
	ew.printf("  login_path   = %q\n", cfg.Guard.LoginPath)
	ew.printf("  public_paths = [%s]\n", joinQuoted(cfg.Guard.PublicPaths))

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func joinQuoted(ss []string) string {
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = fmt.Sprintf("%q", s)
	}

	return strings.Join(quoted, ", ")
}
