// Package session keeps the bearer token, the signed-in user and the
// notification log between CLI invocations, and drops them when the server
// or the token's own exp claim says the session is over.
package session

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session: key not found")

// Store is a small key/value store scoped to one profile. A zero ttl keeps
// the value until it is deleted.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Keys used by this module.
const (
	KeySession       = "session"
	KeyNotifications = "notifications"
)
