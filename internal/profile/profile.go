// Package profile persists user display data keyed by the identity
// provider's subject. The relay touches it only at login and on status
// changes, never on the routing path.
package profile

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"chatrelay/internal/identity"
	"chatrelay/internal/presence"
)

const DefaultDisplayName = "Anonymous User"

var ErrNotFound = errors.New("profile: not found")

type Profile struct {
	Subject     string          `json:"userId"`
	Email       string          `json:"email"`
	DisplayName string          `json:"displayName"`
	AvatarColor string          `json:"avatarColor"`
	Status      presence.Status `json:"status"`
	LastLogin   time.Time       `json:"lastLogin"`
}

// Display returns the part of the profile attached to presence records and
// routed events.
func (p Profile) Display() presence.Profile {
	return presence.Profile{DisplayName: p.DisplayName, AvatarColor: p.AvatarColor}
}

type Store interface {
	// Upsert finds or creates the profile for id, marks it online and
	// stamps the login time.
	Upsert(ctx context.Context, id identity.Identity) (*Profile, error)
	Get(ctx context.Context, subject string) (*Profile, error)
	SetStatus(ctx context.Context, subject string, status presence.Status) error
}

// RandomAvatarColor returns a random #rrggbb colour.
func RandomAvatarColor() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<24))
	if err != nil {
		return "#888888"
	}
	return fmt.Sprintf("#%06x", n.Int64())
}

// newProfile applies the defaults used when a subject logs in for the first time.
func newProfile(id identity.Identity, now time.Time) Profile {
	name := id.DisplayName
	if name == "" {
		name = DefaultDisplayName
	}
	return Profile{
		Subject:     id.Subject,
		Email:       id.Email,
		DisplayName: name,
		AvatarColor: RandomAvatarColor(),
		Status:      presence.StatusOnline,
		LastLogin:   now,
	}
}
