package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/filemgr/internal/config"
	"github.com/tonimelisma/filemgr/internal/credential/credtest"
)

// testCLIContext builds a CLIContext on a throwaway data directory.
func testCLIContext(t *testing.T, serverURL string) (*CLIContext, *bytes.Buffer) {
	t.Helper()

	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.ServerURL = serverURL
	cfg.Store.Path = filepath.Join(dir, "credentials.db")
	cfg.Cookie.Path = filepath.Join(dir, "session.cookie")

	var out bytes.Buffer

	return &CLIContext{
		Flags:  CLIFlags{Quiet: true},
		Cfg:    cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Stdout: &out,
	}, &out
}

func TestBuildStatus_Anonymous(t *testing.T) {
	cc, _ := testCLIContext(t, "http://localhost:1")

	app, err := openSession(context.Background(), cc)
	require.NoError(t, err)
	defer app.Close()

	st := buildStatus(app, cc.Cfg.ServerURL, cc.Cfg.Store.Backend)
	assert.Equal(t, "anonymous", st.State)
	assert.Empty(t, st.Fingerprint)
	assert.False(t, st.Cookie)
	assert.Equal(t, "sqlite", st.Backend)
}

func TestBuildStatus_ExpiredCredential(t *testing.T) {
	cc, _ := testCLIContext(t, "http://localhost:1")
	ctx := context.Background()

	app, err := openSession(ctx, cc)
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.Session.Login(ctx, credtest.Expired(t), nil))

	st := buildStatus(app, cc.Cfg.ServerURL, cc.Cfg.Store.Backend)
	assert.Equal(t, "expired", st.State)
	assert.NotEmpty(t, st.Fingerprint)
	assert.Equal(t, "user-1", st.Subject)
	assert.True(t, st.ExpiresAt.Before(time.Now()))

	// An expired cookie reads as absent, as it would in a browser.
	assert.False(t, st.Cookie)
}

func TestOpenSession_RecoversAcrossProcesses(t *testing.T) {
	cc, _ := testCLIContext(t, "http://localhost:1")
	ctx := context.Background()
	c := credtest.Valid(t, time.Hour)

	first, err := openSession(ctx, cc)
	require.NoError(t, err)
	require.NoError(t, first.Session.Login(ctx, c, nil))
	require.NoError(t, first.Close())

	second, err := openSession(ctx, cc)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, c, second.Session.Credential())
	assert.True(t, second.Session.IsAuthenticated())
	assert.NoError(t, second.requireLogin())
}

func TestOpenSession_RequireLoginWhenAnonymous(t *testing.T) {
	cc, _ := testCLIContext(t, "http://localhost:1")

	app, err := openSession(context.Background(), cc)
	require.NoError(t, err)
	defer app.Close()

	err = app.requireLogin()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filemgr login")
}

func TestOpenSession_RedisUnreachable(t *testing.T) {
	cc, _ := testCLIContext(t, "http://localhost:1")
	cc.Cfg.Store.Backend = config.BackendRedis
	cc.Cfg.Store.RedisAddr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := openSession(ctx, cc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening credential store")
}

func TestPrintStatusText(t *testing.T) {
	cc, out := testCLIContext(t, "http://localhost:1")

	printStatusText(cc, statusOutput{
		Server:      "https://files.example.com",
		Backend:     "sqlite",
		State:       "authenticated",
		Fingerprint: "abc123",
		Subject:     "user-1",
		ExpiresAt:   time.Now().Add(time.Hour),
		Cookie:      true,
	})

	s := out.String()
	assert.Contains(t, s, "https://files.example.com")
	assert.Contains(t, s, "authenticated")
	assert.Contains(t, s, "abc123")
	assert.Contains(t, s, "user-1")
	assert.Contains(t, s, "present")
}

func TestPrintStatusText_Anonymous(t *testing.T) {
	cc, out := testCLIContext(t, "http://localhost:1")

	printStatusText(cc, statusOutput{Server: "s", Backend: "sqlite", State: "anonymous"})

	assert.Contains(t, out.String(), "anonymous")
	assert.NotContains(t, out.String(), "Token:")
}

func TestGuardStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.pid")

	assert.Empty(t, guardStatus(path))

	lock, err := acquireGuardLock(path)
	require.NoError(t, err)
	defer lock.release()

	assert.Contains(t, guardStatus(path), "starting")

	require.NoError(t, lock.advertise("127.0.0.1:8081"))
	assert.Equal(t, fmt.Sprintf("http://127.0.0.1:8081 (PID %d)", os.Getpid()), guardStatus(path))
}

func TestPrintStatusText_Guard(t *testing.T) {
	cc, out := testCLIContext(t, "http://localhost:1")

	printStatusText(cc, statusOutput{Server: "s", Backend: "sqlite", State: "anonymous", Guard: "http://127.0.0.1:8081 (PID 7)"})

	assert.Contains(t, out.String(), "Guard:   http://127.0.0.1:8081 (PID 7)")
}
