// Package kvstore provides the durable key/value surface the credential store
// persists to. Two backends exist: a local SQLite file (the default, one per
// user) and Redis (for hosts that share a session across processes).
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kvstore: not found")

// Store is a string key/value store. Implementations are safe for concurrent
// use.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
