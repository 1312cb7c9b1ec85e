// Package relay routes point-to-point events between connected users.
// Delivery is best effort: an event reaches the recipient's current
// connection once or not at all, and nothing is queued for offline users.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatrelay/internal/presence"

	"github.com/google/uuid"
)

type Kind string

const (
	KindMessage      Kind = "message"
	KindFile         Kind = "file"
	KindAudio        Kind = "audio"
	KindTyping       Kind = "typing"
	KindStatusUpdate Kind = "statusUpdate"
)

func (k Kind) Valid() bool {
	switch k {
	case KindMessage, KindFile, KindAudio, KindTyping, KindStatusUpdate:
		return true
	}
	return false
}

// label keeps client supplied garbage out of metric labels.
func (k Kind) label() string {
	if k.Valid() {
		return string(k)
	}
	return "unknown"
}

// Payload is the kind specific part of an event. The router never looks
// inside it; it is forwarded as the same value it was decoded into.
type Payload interface {
	Kind() Kind
}

type TextPayload struct {
	Text      string `json:"text"`
	MessageID string `json:"messageId,omitempty"`
}

type FilePayload struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Data     []byte `json:"data"`
}

type AudioPayload struct {
	MimeType        string  `json:"mimeType"`
	DurationSeconds float64 `json:"durationSeconds"`
	Data            []byte  `json:"data"`
}

type TypingPayload struct {
	IsTyping bool `json:"isTyping"`
}

type StatusPayload struct {
	Status presence.Status `json:"status"`
}

func (TextPayload) Kind() Kind   { return KindMessage }
func (FilePayload) Kind() Kind   { return KindFile }
func (AudioPayload) Kind() Kind  { return KindAudio }
func (TypingPayload) Kind() Kind { return KindTyping }
func (StatusPayload) Kind() Kind { return KindStatusUpdate }

// Event is one routed event. It lives for a single routing call.
type Event struct {
	SenderID      string
	SenderProfile presence.Profile
	RecipientID   string
	Kind          Kind
	Payload       Payload
	Timestamp     time.Time
	// Origin is the connection the event was read from. Acks and errors go
	// back to it even after the sender has reconnected elsewhere.
	Origin presence.Conn
}

var ErrMalformed = errors.New("relay: malformed event")

// Inbound is the JSON frame a client sends.
type Inbound struct {
	Type        string          `json:"type"`
	RecipientID string          `json:"recipientId"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   *time.Time      `json:"timestamp,omitempty"`
}

// Event binds the frame to the authenticated sender. Sender fields always
// come from the connection, never from the frame. On error the returned
// event still carries the envelope so the sender can be told what failed.
func (in Inbound) Event(senderID string, profile presence.Profile, now time.Time) (Event, error) {
	ev := Event{
		SenderID:      senderID,
		SenderProfile: profile,
		RecipientID:   strings.TrimSpace(in.RecipientID),
		Kind:          Kind(in.Type),
		Timestamp:     now,
	}
	if in.Timestamp != nil && !in.Timestamp.IsZero() {
		ev.Timestamp = *in.Timestamp
	}
	p, err := decodePayload(ev.Kind, in.Payload)
	if err != nil {
		return ev, err
	}
	ev.Payload = p
	return ev, nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	switch kind {
	case KindMessage:
		var p TextPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if p.Text == "" {
			return nil, fmt.Errorf("%w: empty text", ErrMalformed)
		}
		if p.MessageID == "" {
			p.MessageID = uuid.NewString()
		}
		return p, nil
	case KindFile:
		var p FilePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if len(p.Data) == 0 {
			return nil, fmt.Errorf("%w: empty file", ErrMalformed)
		}
		if p.Size == 0 {
			p.Size = int64(len(p.Data))
		}
		return p, nil
	case KindAudio:
		var p AudioPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if len(p.Data) == 0 {
			return nil, fmt.Errorf("%w: empty audio", ErrMalformed)
		}
		return p, nil
	case KindTyping:
		var p TypingPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return p, nil
	case KindStatusUpdate:
		var p StatusPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, kind)
}
