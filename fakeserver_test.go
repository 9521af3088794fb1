package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/filemgr/internal/credential"
	"github.com/tonimelisma/filemgr/internal/credential/credtest"
)

const (
	testPassword = "secret"
	takenEmail   = "taken@example.com"
)

// fakeServer is a minimal file-manager server. Issued credentials are both
// usable for requests and exchangeable at /auth/refresh until revoked.
type fakeServer struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	usable   map[credential.Credential]bool
	known    map[credential.Credential]bool
	issued   int
	lastSeen string

	refuseRefresh atomic.Bool
	refreshes     atomic.Int32
	omitUser      atomic.Bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	f := &fakeServer{
		t:      t,
		usable: make(map[credential.Credential]bool),
		known:  make(map[credential.Credential]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", f.handleLogin)
	mux.HandleFunc("POST /auth/register", f.handleRegister)
	mux.HandleFunc("POST /auth/refresh", f.handleRefresh)
	mux.HandleFunc("GET /auth/me", f.authed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"id": "u-1", "email": "ann@example.com", "name": "Ann"})
	}))
	mux.HandleFunc("GET /files", f.authed(func(w http.ResponseWriter, r *http.Request) {
		f.seen(r)
		writeJSON(w, http.StatusOK, map[string]any{"items": []map[string]any{
			{"id": "f2", "name": "b.txt", "path": "/b.txt", "size": 2048, "modified_at": "2026-01-02T03:04:05Z"},
			{"id": "d1", "name": "docs", "path": "/docs", "is_folder": true, "modified_at": "2026-01-02T03:04:05Z"},
			{"id": "f1", "name": "a.txt", "path": "/a.txt", "size": 12, "modified_at": "2026-01-02T03:04:05Z"},
		}})
	}))

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeServer) URL() string {
	return f.srv.URL
}

// issue mints a new credential, each expiring later than the last so no two
// are equal.
func (f *fakeServer) issue() credential.Credential {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.issued++
	c := credtest.Mint(f.t, "user-1", time.Now().Add(time.Duration(f.issued)*time.Hour))
	f.usable[c] = true
	f.known[c] = true

	return c
}

// revokeAccess makes every issued credential fail requests with 401 while
// leaving them exchangeable at /auth/refresh.
func (f *fakeServer) revokeAccess() {
	f.mu.Lock()
	defer f.mu.Unlock()

	clear(f.usable)
}

func (f *fakeServer) seen(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastSeen = r.URL.Query().Get("path")
}

func (f *fakeServer) lastPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.lastSeen
}

func bearerOf(r *http.Request) credential.Credential {
	return credential.Credential(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
}

func (f *fakeServer) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		ok := f.usable[bearerOf(r)]
		f.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token"})

			return
		}

		next(w, r)
	}
}

type authBody struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (f *fakeServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body authBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password != testPassword {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})

		return
	}

	f.writeToken(w, body.Email, "Ann")
}

func (f *fakeServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body authBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad body"})

		return
	}

	if body.Email == takenEmail {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "email already registered"})

		return
	}

	f.writeToken(w, body.Email, body.Name)
}

func (f *fakeServer) writeToken(w http.ResponseWriter, email, name string) {
	out := map[string]any{"token": string(f.issue())}
	if !f.omitUser.Load() {
		out["user"] = map[string]string{"id": "u-1", "email": email, "name": name}
	}

	writeJSON(w, http.StatusOK, out)
}

func (f *fakeServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	f.refreshes.Add(1)

	cur := bearerOf(r)

	f.mu.Lock()
	ok := f.known[cur] && !f.refuseRefresh.Load()
	delete(f.known, cur)
	f.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "refresh rejected"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": string(f.issue())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// cliEnv points the CLI at srv with all state under a fresh temp directory.
type cliEnv struct {
	dir        string
	cookiePath string
}

func newCLIEnv(t *testing.T, serverURL string) *cliEnv {
	t.Helper()

	dir := t.TempDir()
	env := &cliEnv{dir: dir, cookiePath: filepath.Join(dir, "session.cookie")}

	cfg := fmt.Sprintf(`server_url = %q

[store]
path = %q

[cookie]
path = %q

[logging]
log_level = "error"
`, serverURL, filepath.Join(dir, "credentials.db"), env.cookiePath)

	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	t.Setenv("FILEMGR_CONFIG", cfgPath)
	t.Setenv("FILEMGR_SERVER_URL", "")
	t.Setenv("FILEMGR_LOG_LEVEL", "")

	return env
}

// passwordFile writes pw to a file and returns its path.
func (e *cliEnv) passwordFile(t *testing.T, pw string) string {
	t.Helper()

	p := filepath.Join(e.dir, "password")
	require.NoError(t, os.WriteFile(p, []byte(pw+"\n"), 0o600))

	return p
}

// runCLI executes the root command with args and returns what it printed to
// stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--quiet"}, args...))

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

// loginCLI signs in through the CLI and fails the test on error.
func loginCLI(t *testing.T, env *cliEnv) {
	t.Helper()

	_, err := runCLI(t, "login", "ann@example.com", "--password-file", env.passwordFile(t, testPassword))
	require.NoError(t, err)
}

// statusJSON runs `status --json` and decodes it.
func statusJSON(t *testing.T) statusOutput {
	t.Helper()

	out, err := runCLI(t, "status", "--json")
	require.NoError(t, err)

	var st statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &st))

	return st
}
