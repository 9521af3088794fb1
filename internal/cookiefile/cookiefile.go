// Package cookiefile persists a single HTTP cookie to disk in Set-Cookie
// syntax. It backs the short-lived cookie surface of the credential store,
// which the route guard reads; keeping it in a leaf package lets both
// credstore and the serve command share one loading code path.
package cookiefile

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// FilePerms restricts cookie files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the directory holding the cookie file.
const DirPerms = 0o700

// Load reads the cookie stored at path. Returns (nil, nil) if the file does
// not exist.
func Load(path string) (*http.Cookie, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("cookiefile: reading %s: %w", path, err)
	}

	line := strings.TrimSpace(string(data))
	if line == "" {
		return nil, fmt.Errorf("cookiefile: %s is empty", path)
	}

	c, err := http.ParseSetCookie(line)
	if err != nil {
		return nil, fmt.Errorf("cookiefile: decoding %s: %w", path, err)
	}

	return c, nil
}

// Save writes c to path atomically (write-to-temp + rename) with 0600
// permissions. Never logs cookie values.
func Save(path string, c *http.Cookie) error {
	if err := c.Valid(); err != nil {
		return fmt.Errorf("cookiefile: invalid cookie: %w", err)
	}

	data := []byte(c.String() + "\n")

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("cookiefile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".cookie-*.tmp")
	if err != nil {
		return fmt.Errorf("cookiefile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("cookiefile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cookiefile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("cookiefile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cookiefile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("cookiefile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the cookie file. A missing file is not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("cookiefile: removing %s: %w", path, err)
}
