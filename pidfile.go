package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// lockDirPermissions: owner rwx only, matching the credential files beside it.
const lockDirPermissions = 0o700

// lockFilePermissions: owner rw, group/other r, so `reload` works from any
// shell of the same user.
const lockFilePermissions = 0o644

// errNoGuard means no route guard holds the lock file.
var errNoGuard = errors.New("no running route guard")

// guardRecord is what a running route guard advertises in its lock file.
// Addr is empty until the listener is bound.
type guardRecord struct {
	PID  int    `json:"pid"`
	Addr string `json:"addr,omitempty"`
}

// URL is the address the guard serves on, or "" if not yet bound.
func (r guardRecord) URL() string {
	if r.Addr == "" {
		return ""
	}

	return "http://" + r.Addr
}

// guardLock is the exclusive flock a route guard holds for its lifetime.
// While it is held no second guard can start for the same data directory,
// and the lock file tells `reload` and `status` where the guard is.
type guardLock struct {
	path string
	f    *os.File
	rec  guardRecord
}

// acquireGuardLock takes the lock at path and records the current PID.
func acquireGuardLock(path string) (*guardLock, error) {
	if path == "" {
		return nil, errors.New("guard lock path is empty: cannot determine data directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), lockDirPermissions); err != nil {
		return nil, fmt.Errorf("creating guard lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening guard lock: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		if rec, readErr := readGuardRecord(path); readErr == nil && rec.URL() != "" {
			return nil, fmt.Errorf("another filemgr serve is already running on %s (PID %d)", rec.URL(), rec.PID)
		}

		return nil, fmt.Errorf("another filemgr serve is already running (could not lock %s)", path)
	}

	l := &guardLock{path: path, f: f, rec: guardRecord{PID: os.Getpid()}}
	if err := l.write(); err != nil {
		l.release()

		return nil, err
	}

	return l, nil
}

// advertise records the address the guard's listener is bound to.
func (l *guardLock) advertise(addr string) error {
	l.rec.Addr = addr

	return l.write()
}

func (l *guardLock) write() error {
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncating guard lock: %w", err)
	}

	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding guard lock: %w", err)
	}

	if err := json.NewEncoder(l.f).Encode(l.rec); err != nil {
		return fmt.Errorf("writing guard lock: %w", err)
	}

	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("syncing guard lock: %w", err)
	}

	return nil
}

// release removes the lock file, then drops the lock.
func (l *guardLock) release() {
	os.Remove(l.path)
	l.f.Close()
}

// readGuardRecord decodes the lock file at path without checking that its
// guard is alive.
func readGuardRecord(path string) (guardRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return guardRecord{}, fmt.Errorf("reading guard lock: %w", err)
	}

	var rec guardRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return guardRecord{}, fmt.Errorf("invalid guard lock %s: %w", path, err)
	}

	if rec.PID <= 0 {
		return guardRecord{}, fmt.Errorf("invalid guard lock %s: no PID", path)
	}

	return rec, nil
}

// findGuard returns the record of the guard holding the lock at path. The
// flock, not the PID, decides liveness: a lock file nobody holds is stale
// and is removed.
func findGuard(path string) (guardRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return guardRecord{}, fmt.Errorf("%w (no lock file at %s)", errNoGuard, path)
	}

	if err != nil {
		return guardRecord{}, fmt.Errorf("opening guard lock: %w", err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB); err == nil {
		os.Remove(path)

		return guardRecord{}, fmt.Errorf("%w (stale lock file %s removed)", errNoGuard, path)
	}

	rec, err := readGuardRecord(path)
	if err != nil {
		return guardRecord{}, fmt.Errorf("route guard is starting or its lock is damaged: %w", err)
	}

	return rec, nil
}

// reloadGuard asks the running route guard to reload its config.
func reloadGuard(path string) (guardRecord, error) {
	rec, err := findGuard(path)
	if err != nil {
		return guardRecord{}, err
	}

	proc, err := os.FindProcess(rec.PID)
	if err != nil {
		return guardRecord{}, fmt.Errorf("finding route guard process %d: %w", rec.PID, err)
	}

	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return guardRecord{}, fmt.Errorf("sending SIGHUP to route guard (PID %d): %w", rec.PID, err)
	}

	return rec, nil
}
