package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardLock_Lifecycle(t *testing.T) {
	t.Parallel()

	// Parent directories are created on demand.
	path := filepath.Join(t.TempDir(), "state", "serve.pid")

	lock, err := acquireGuardLock(path)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(lockDirPermissions), info.Mode().Perm())

	rec, err := findGuard(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Empty(t, rec.URL())

	require.NoError(t, lock.advertise("127.0.0.1:8081"))

	rec, err = findGuard(path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8081", rec.URL())

	// A second guard for the same data dir is refused and told where the
	// first one is.
	again, err := acquireGuardLock(path)
	require.Error(t, err)
	assert.Nil(t, again)
	assert.Contains(t, err.Error(), "already running on http://127.0.0.1:8081")

	lock.release()
	assert.NoFileExists(t, path)

	_, err = findGuard(path)
	require.ErrorIs(t, err, errNoGuard)

	// Once released, the next guard may start.
	lock, err = acquireGuardLock(path)
	require.NoError(t, err)
	lock.release()
}

func TestGuardLock_AdvertiseReplacesRecord(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "serve.pid")

	lock, err := acquireGuardLock(path)
	require.NoError(t, err)
	defer lock.release()

	require.NoError(t, lock.advertise("127.0.0.1:40000"))
	require.NoError(t, lock.advertise("[::1]:9"))

	rec, err := readGuardRecord(path)
	require.NoError(t, err)
	assert.Equal(t, guardRecord{PID: os.Getpid(), Addr: "[::1]:9"}, rec)
}

func TestAcquireGuardLock_EmptyPath(t *testing.T) {
	t.Parallel()

	lock, err := acquireGuardLock("")
	require.Error(t, err)
	assert.Nil(t, lock)
}

func TestReadGuardRecord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    guardRecord
		wantErr string
	}{
		{name: "bound", content: `{"pid":4242,"addr":"127.0.0.1:8081"}`, want: guardRecord{PID: 4242, Addr: "127.0.0.1:8081"}},
		{name: "starting", content: `{"pid":77}` + "\n", want: guardRecord{PID: 77}},
		{name: "garbage", content: "4242\nserve", wantErr: "invalid guard lock"},
		{name: "no pid", content: `{"addr":"127.0.0.1:1"}`, wantErr: "no PID"},
		{name: "empty", content: "", wantErr: "invalid guard lock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "serve.pid")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			rec, err := readGuardRecord(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, rec)
		})
	}
}

func TestFindGuard_NoLockFile(t *testing.T) {
	t.Parallel()

	_, err := findGuard(filepath.Join(t.TempDir(), "serve.pid"))
	require.ErrorIs(t, err, errNoGuard)
}

// A record left behind by a crashed guard is not held by anyone, whatever
// PID it names.
func TestFindGuard_RemovesUnheldLockFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "serve.pid")
	require.NoError(t, os.WriteFile(path, []byte(`{"pid":1,"addr":"127.0.0.1:8081"}`), 0o600))

	_, err := findGuard(path)
	require.ErrorIs(t, err, errNoGuard)
	assert.Contains(t, err.Error(), "stale")
	assert.NoFileExists(t, path)
}

func TestReloadGuard_NoGuard(t *testing.T) {
	t.Parallel()

	_, err := reloadGuard(filepath.Join(t.TempDir(), "serve.pid"))
	require.ErrorIs(t, err, errNoGuard)
	assert.Contains(t, err.Error(), "no running route guard")
}

func TestReloadGuard_SignalsRunningGuard(t *testing.T) {
	t.Parallel()

	// This process holds the lock and stands in for the guard; catch the
	// signal instead of dying.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	path := filepath.Join(t.TempDir(), "serve.pid")

	lock, err := acquireGuardLock(path)
	require.NoError(t, err)
	defer lock.release()

	require.NoError(t, lock.advertise("127.0.0.1:8081"))

	rec, err := reloadGuard(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, "http://127.0.0.1:8081", rec.URL())

	select {
	case sig := <-hup:
		assert.Equal(t, syscall.SIGHUP, sig)
	case <-time.After(2 * time.Second):
		t.Fatal("SIGHUP not delivered")
	}
}
