// Package session issues opaque session tokens bound to a user and expires
// them on a sliding TTL.
package session

import (
	"context"
	"errors"
	"time"

	"chatrelay/internal/presence"
)

var (
	ErrNotFound = errors.New("session: not found")
	ErrExpired  = errors.New("session: expired")
)

// Session represents an authenticated user session.
type Session struct {
	ID         string           `json:"id"`
	UserID     string           `json:"userId"`
	Profile    presence.Profile `json:"profile"`
	IssuedAt   time.Time        `json:"issuedAt"`
	LastActive time.Time        `json:"lastActive"`
}

// Backend persists session records. Implementations hold no expiry logic of
// their own beyond the ttl hint passed to Put.
type Backend interface {
	Put(ctx context.Context, s Session, ttl time.Duration) error
	// Refresh overwrites an existing record only. It reports false when the
	// record is gone, so a revoked or swept session is never written back.
	Refresh(ctx context.Context, s Session, ttl time.Duration) (bool, error)
	// Get returns nil, nil when the session does not exist.
	Get(ctx context.Context, id string) (*Session, error)
	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
	IDs(ctx context.Context) ([]string, error)
}
