package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// File endpoint paths.
const (
	filesPath  = "/files"
	statPath   = "/files/stat"
	folderPath = "/files/folder"
)

// Timestamp validation bounds. Timestamps outside this range are replaced
// with the current time and a warning is logged.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// Item is a file or folder on the server.
type Item struct {
	ID         string
	Name       string
	Path       string
	Size       int64
	IsFolder   bool
	ModifiedAt time.Time
}

// itemResponse mirrors the server's item JSON exactly.
// Unexported: callers use Item via toItem().
type itemResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	IsFolder   bool   `json:"is_folder"`
	ModifiedAt string `json:"modified_at"`
}

type listResponse struct {
	Items []itemResponse `json:"items"`
}

type createFolderRequest struct {
	Parent string `json:"parent"`
	Name   string `json:"name"`
}

type updateItemRequest struct {
	Path   string `json:"path"`
	Name   string `json:"name,omitempty"`
	Parent string `json:"parent,omitempty"`
}

func (r *itemResponse) toItem(logger *slog.Logger) Item {
	return Item{
		ID:         r.ID,
		Name:       norm.NFC.String(r.Name),
		Path:       norm.NFC.String(r.Path),
		Size:       r.Size,
		IsFolder:   r.IsFolder,
		ModifiedAt: parseTimestamp(r.ModifiedAt, r.ID, logger),
	}
}

// parseTimestamp parses an RFC3339 timestamp and validates the year range.
// Invalid or out-of-range timestamps are replaced with time.Now().UTC() and logged.
func parseTimestamp(raw, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		logger.Warn("empty timestamp, using current time",
			slog.String("item_id", itemID),
		)

		return time.Now().UTC()
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp, using current time",
			slog.String("item_id", itemID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Now().UTC()
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("timestamp out of valid range, using current time",
			slog.String("item_id", itemID),
			slog.String("raw", raw),
		)

		return time.Now().UTC()
	}

	return t
}

// CleanPath returns p as an absolute, slash-separated, NFC-normalized path.
// Names typed on macOS arrive decomposed; the server stores composed forms.
func CleanPath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	return norm.NFC.String(path.Clean(p))
}

// validName normalizes a single path element and rejects unusable ones.
func validName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))

	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return name, nil
}

func pathQuery(base, p string) string {
	return base + "?" + url.Values{"path": {CleanPath(p)}}.Encode()
}

// ListFolder returns the children of the folder at dir.
func (c *Client) ListFolder(ctx context.Context, dir string) ([]Item, error) {
	var out listResponse
	if err := c.doJSON(ctx, http.MethodGet, pathQuery(filesPath, dir), nil, &out, nil); err != nil {
		return nil, fmt.Errorf("api: listing %s: %w", CleanPath(dir), err)
	}

	items := make([]Item, 0, len(out.Items))
	for i := range out.Items {
		items = append(items, out.Items[i].toItem(c.logger))
	}

	c.logger.Debug("listed folder",
		slog.String("path", CleanPath(dir)),
		slog.Int("count", len(items)),
	)

	return items, nil
}

// Stat returns the item at p.
func (c *Client) Stat(ctx context.Context, p string) (*Item, error) {
	var out itemResponse
	if err := c.doJSON(ctx, http.MethodGet, pathQuery(statPath, p), nil, &out, nil); err != nil {
		return nil, fmt.Errorf("api: stat %s: %w", CleanPath(p), err)
	}

	item := out.toItem(c.logger)

	return &item, nil
}

// CreateFolder creates a folder called name inside parent.
func (c *Client) CreateFolder(ctx context.Context, parent, name string) (*Item, error) {
	name, err := validName(name)
	if err != nil {
		return nil, err
	}

	req := createFolderRequest{Parent: CleanPath(parent), Name: name}

	var out itemResponse
	if err := c.doJSON(ctx, http.MethodPost, folderPath, req, &out, nil); err != nil {
		return nil, fmt.Errorf("api: creating folder %s in %s: %w", name, req.Parent, err)
	}

	item := out.toItem(c.logger)

	return &item, nil
}

// Rename gives the item at p a new name in the same folder.
func (c *Client) Rename(ctx context.Context, p, newName string) (*Item, error) {
	newName, err := validName(newName)
	if err != nil {
		return nil, err
	}

	return c.update(ctx, updateItemRequest{Path: CleanPath(p), Name: newName})
}

// Move relocates the item at p into newParent, optionally renaming it.
// An empty newName keeps the current name.
func (c *Client) Move(ctx context.Context, p, newParent, newName string) (*Item, error) {
	req := updateItemRequest{Path: CleanPath(p), Parent: CleanPath(newParent)}

	if newName != "" {
		name, err := validName(newName)
		if err != nil {
			return nil, err
		}

		req.Name = name
	}

	return c.update(ctx, req)
}

func (c *Client) update(ctx context.Context, req updateItemRequest) (*Item, error) {
	var out itemResponse
	if err := c.doJSON(ctx, http.MethodPatch, filesPath, req, &out, nil); err != nil {
		return nil, fmt.Errorf("api: updating %s: %w", req.Path, err)
	}

	item := out.toItem(c.logger)

	return &item, nil
}

// Delete removes the item at p. Folders are removed with their contents.
func (c *Client) Delete(ctx context.Context, p string) error {
	if CleanPath(p) == "/" {
		return fmt.Errorf("%w: refusing to delete the root folder", ErrInvalidName)
	}

	if err := c.doJSON(ctx, http.MethodDelete, pathQuery(filesPath, p), nil, nil, nil); err != nil {
		return fmt.Errorf("api: deleting %s: %w", CleanPath(p), err)
	}

	return nil
}
