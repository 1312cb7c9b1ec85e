// Package presence tracks which logical users are connected and pushes the
// online roster to every connected client.
package presence

import (
	"errors"
	"time"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	}
	return false
}

var (
	ErrInvalidRegistration = errors.New("presence: user id and connection are required")
	ErrNotConnected        = errors.New("presence: user is not connected")
	ErrInvalidStatus       = errors.New("presence: invalid status")
)

// Profile is display data owned by the caller; the registry stores it verbatim.
type Profile struct {
	DisplayName string `json:"displayName"`
	AvatarColor string `json:"avatarColor"`
}

// Frame is one outbound event addressed to a single connection.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Conn is the transport handle of one live connection. Handles are borrowed:
// nothing in this package ever closes them.
type Conn interface {
	ID() string
	// Send enqueues f without blocking and reports an error when the
	// connection cannot take it.
	Send(f Frame) error
}

// Record is a copy of one user's presence state.
type Record struct {
	UserID   string    `json:"userId"`
	Profile  Profile   `json:"profile"`
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
	Conn     Conn      `json:"-"`
}

// Online reports whether the record currently has an addressable connection.
func (r Record) Online() bool { return r.Conn != nil }
