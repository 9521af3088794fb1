package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "filemgr"

// File names inside the config and data directories.
const (
	configFileName = "config.toml"
	storeFileName  = "credentials.db"
	cookieFileName = "session.cookie"
	guardPIDName   = "serve.pid"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/filemgr).
// On macOS, uses ~/Library/Application Support/filemgr per Apple guidelines.
// Other platforms fall back to ~/.config/filemgr.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxConfigDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

func linuxConfigDir(home string) string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".config", appName)
}

// DefaultDataDir returns the platform-specific directory for application
// data (the credential database and cookie file).
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/filemgr).
// On macOS, config and data share ~/Library/Application Support/filemgr.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxDataDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func linuxDataDir(home string) string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".local", "share", appName)
}

// DefaultConfigPath returns the full path to the default config file.
// This is used as the fallback when neither FILEMGR_CONFIG nor --config is
// specified.
func DefaultConfigPath() string {
	return joinDir(DefaultConfigDir(), configFileName)
}

// DefaultStorePath returns the default SQLite credential database path.
func DefaultStorePath() string {
	return joinDir(DefaultDataDir(), storeFileName)
}

// DefaultCookiePath returns the default cookie surface path.
func DefaultCookiePath() string {
	return joinDir(DefaultDataDir(), cookieFileName)
}

// DefaultGuardPIDPath returns where `filemgr serve` records its process ID.
func DefaultGuardPIDPath() string {
	return joinDir(DefaultDataDir(), guardPIDName)
}

func joinDir(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}
