package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/"},
		{"/", "/"},
		{"docs", "/docs"},
		{"/docs/", "/docs"},
		{" /docs//reports/../notes ", "/docs/notes"},
		{"/cafe\u0301", "/caf\u00e9"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanPath(tt.in), "input %q", tt.in)
	}
}

func TestValidName(t *testing.T) {
	got, err := validName(" cafe\u0301 ")
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", got)

	for _, bad := range []string{"", "  ", ".", "..", "a/b"} {
		_, err := validName(bad)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", bad)
	}
}

func TestListFolder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/files", r.URL.Path)
		assert.Equal(t, "/docs", r.URL.Query().Get("path"))

		_, _ = w.Write([]byte(`{"items":[
			{"id":"1","name":"reports","path":"/docs/reports","is_folder":true,"modified_at":"2024-03-01T10:00:00Z"},
			{"id":"2","name":"cafe\u0301.txt","path":"/docs/cafe\u0301.txt","size":12,"modified_at":"2024-03-02T11:30:00Z"}
		]}`))
	}))
	defer srv.Close()

	items, err := newTestClient(t, srv.URL).ListFolder(context.Background(), "docs/")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.True(t, items[0].IsFolder)
	assert.Equal(t, "reports", items[0].Name)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), items[0].ModifiedAt)

	assert.False(t, items[1].IsFolder)
	assert.Equal(t, "caf\u00e9.txt", items[1].Name)
	assert.Equal(t, "/docs/caf\u00e9.txt", items[1].Path)
	assert.Equal(t, int64(12), items[1].Size)
}

func TestListFolder_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	items, err := newTestClient(t, srv.URL).ListFolder(context.Background(), "/")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStat_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/stat", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no such item"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Stat(context.Background(), "/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "/missing")
}

func TestStat_BadTimestampFallsBackToNow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"1","name":"a","path":"/a","modified_at":"yesterday"}`))
	}))
	defer srv.Close()

	before := time.Now().UTC()

	item, err := newTestClient(t, srv.URL).Stat(context.Background(), "/a")
	require.NoError(t, err)
	assert.False(t, item.ModifiedAt.Before(before))
}

func TestParseTimestamp_OutOfRange(t *testing.T) {
	before := time.Now().UTC()

	got := parseTimestamp("1601-01-01T00:00:00Z", "x", newTestClient(t, "").logger)
	assert.False(t, got.Before(before))

	got = parseTimestamp("", "x", newTestClient(t, "").logger)
	assert.False(t, got.Before(before))
}

func TestCreateFolder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/files/folder", r.URL.Path)

		var req createFolderRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, createFolderRequest{Parent: "/docs", Name: "caf\u00e9"}, req)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"9","name":"caf\u00e9","path":"/docs/caf\u00e9","is_folder":true,"modified_at":"2024-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	item, err := newTestClient(t, srv.URL).CreateFolder(context.Background(), "docs", "cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, "9", item.ID)
	assert.True(t, item.IsFolder)
}

func TestCreateFolder_InvalidNameMakesNoRequest(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).CreateFolder(context.Background(), "/", "a/b")
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Zero(t, calls.Load())
}

func TestCreateFolder_Conflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).CreateFolder(context.Background(), "/", "docs")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRenameAndMove(t *testing.T) {
	var got []updateItemRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/files", r.URL.Path)

		var req updateItemRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got = append(got, req)

		_, _ = w.Write([]byte(`{"id":"1","name":"x","path":"/x","modified_at":"2024-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	_, err := client.Rename(ctx, "/docs/a.txt", "b.txt")
	require.NoError(t, err)

	_, err = client.Move(ctx, "/docs/b.txt", "/archive", "")
	require.NoError(t, err)

	_, err = client.Move(ctx, "/docs/c.txt", "archive/", "d.txt")
	require.NoError(t, err)

	_, err = client.Rename(ctx, "/docs/c.txt", "..")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = client.Move(ctx, "/docs/c.txt", "/archive", "x/y")
	assert.ErrorIs(t, err, ErrInvalidName)

	assert.Equal(t, []updateItemRequest{
		{Path: "/docs/a.txt", Name: "b.txt"},
		{Path: "/docs/b.txt", Parent: "/archive"},
		{Path: "/docs/c.txt", Parent: "/archive", Name: "d.txt"},
	}, got)
}

func TestDelete(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/docs/old", r.URL.Query().Get("path"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	require.NoError(t, client.Delete(context.Background(), "/docs/old"))

	err := client.Delete(context.Background(), "/")
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Equal(t, int32(1), calls.Load())
}
