package credstore

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/tonimelisma/filemgr/internal/cookiefile"
)

// FileCookies is a CookieSurface persisted to a cookie file and, optionally,
// mirrored into an HTTP cookie jar so requests to the server carry it.
type FileCookies struct {
	path string
	jar  http.CookieJar
	url  *url.URL
	now  func() time.Time
}

// NewFileCookies returns a surface stored at path. When jar is non-nil every
// write is mirrored into it for serverURL.
func NewFileCookies(path string, jar http.CookieJar, serverURL *url.URL) *FileCookies {
	return &FileCookies{
		path: path,
		jar:  jar,
		url:  serverURL,
		now:  time.Now,
	}
}

// NewJar returns an in-memory cookie jar using the public suffix list.
func NewJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("credstore: creating cookie jar: %w", err)
	}

	return jar, nil
}

// Path returns the cookie file location.
func (f *FileCookies) Path() string {
	return f.path
}

// Load returns the persisted cookie. An expired cookie reads as absent, as it
// would in a browser.
func (f *FileCookies) Load() (*http.Cookie, error) {
	c, err := cookiefile.Load(f.path)
	if err != nil || c == nil {
		return nil, err
	}

	if !c.Expires.IsZero() && !c.Expires.After(f.now()) {
		return nil, nil //nolint:nilnil // expired cookie is absent
	}

	return c, nil
}

// Save persists c and mirrors it into the jar.
func (f *FileCookies) Save(c *http.Cookie) error {
	if err := cookiefile.Save(f.path, c); err != nil {
		return err
	}

	f.mirror(c)

	return nil
}

// Remove deletes the cookie file and expires the jar entry.
func (f *FileCookies) Remove() error {
	f.mirror(&http.Cookie{Name: Key, Value: "", Path: "/", MaxAge: -1})

	return cookiefile.Remove(f.path)
}

func (f *FileCookies) mirror(c *http.Cookie) {
	if f.jar == nil || f.url == nil {
		return
	}

	f.jar.SetCookies(f.url, []*http.Cookie{c})
}
