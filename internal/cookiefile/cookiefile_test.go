package cookiefile

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCookie(expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     "token",
		Value:    "aaa.bbb.ccc",
		Path:     "/",
		Expires:  expires,
		SameSite: http.SameSiteLaxMode,
		Secure:   true,
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	c, err := Load("/nonexistent/path/cookie")
	assert.Nil(t, c)
	assert.NoError(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cookie")
	expires := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, Save(path, testCookie(expires)))

	c, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "token", c.Name)
	assert.Equal(t, "aaa.bbb.ccc", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.True(t, c.Secure)
	assert.True(t, c.Expires.Equal(expires))
}

func TestSave_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie")
	require.NoError(t, Save(path, testCookie(time.Now().Add(time.Hour))))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestSave_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie")

	first := testCookie(time.Now().Add(time.Hour))
	require.NoError(t, Save(path, first))

	second := testCookie(time.Now().Add(2 * time.Hour))
	second.Value = "ddd.eee.fff"
	require.NoError(t, Save(path, second))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ddd.eee.fff", c.Value)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSave_InvalidCookie(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie")

	err := Save(path, &http.Cookie{Name: "bad name", Value: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cookie")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie")
	require.NoError(t, os.WriteFile(path, []byte("=;;;"), FilePerms))

	c, err := Load(path)
	assert.Nil(t, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestLoad_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie")
	require.NoError(t, os.WriteFile(path, nil, FilePerms))

	c, err := Load(path)
	assert.Nil(t, c)
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie")
	require.NoError(t, Save(path, testCookie(time.Now().Add(time.Hour))))

	require.NoError(t, Remove(path))
	require.NoError(t, Remove(path), "second remove is a no-op")

	c, err := Load(path)
	assert.NoError(t, err)
	assert.Nil(t, c)
}
