// Package storage is the key/blob facade over the durable object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Read when the key has no object.
var ErrNotFound = errors.New("object not found")

// Object describes one stored key.
type Object struct {
	Key       string
	CreatedAt time.Time
}

// Store is a path-addressed blob store. Writes overwrite, deletes of missing
// keys succeed, and only single-key operations are atomic.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Object, error)
	Close() error
}

// ContextKey locates the rolling conversation context of a session.
func ContextKey(userID, sessionID string) string {
	return fmt.Sprintf("users/%s/contexts/%s.json", userID, sessionID)
}

// SessionKey locates a saved session record.
func SessionKey(userID, sessionID string) string {
	return fmt.Sprintf("users/%s/sessions/%s/data.json", userID, sessionID)
}

// SessionPrefix is the namespace holding every saved session of a user.
func SessionPrefix(userID string) string {
	return fmt.Sprintf("users/%s/sessions/", userID)
}
