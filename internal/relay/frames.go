package relay

import (
	"time"

	"chatrelay/internal/presence"
)

// Outbound frame types.
const (
	FramePrivateMessage = "privateMessage"
	FrameFileMessage    = "fileMessage"
	FrameAudioMessage   = "audioMessage"
	FrameUserTyping     = "userTyping"
	FrameStatusUpdate   = "statusUpdate"
	FrameMessageSent    = "messageSent"
	FrameDeliveryStatus = "deliveryStatus"
	FrameError          = "error"
)

func frameType(k Kind) string {
	switch k {
	case KindMessage:
		return FramePrivateMessage
	case KindFile:
		return FrameFileMessage
	case KindAudio:
		return FrameAudioMessage
	case KindTyping:
		return FrameUserTyping
	}
	return FrameStatusUpdate
}

// Delivery is what the recipient receives.
type Delivery struct {
	SenderID      string           `json:"senderId"`
	SenderProfile presence.Profile `json:"senderProfile"`
	Kind          Kind             `json:"kind"`
	Payload       Payload          `json:"payload"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Ack confirms a delivered event to its sender.
type Ack struct {
	Success   bool      `json:"success"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	MessageID string    `json:"messageId,omitempty"`
}

// DeliveryStatus tells the sender an event was not delivered.
type DeliveryStatus struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   Outcome   `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
}

type Typing struct {
	SenderID      string           `json:"senderId"`
	SenderProfile presence.Profile `json:"senderProfile"`
	IsTyping      bool             `json:"isTyping"`
}

// Error codes carried by error frames.
const (
	CodeMalformed          = "malformedEvent"
	CodeStorageUnavailable = "storageUnavailable"
	CodeSessionExpired     = "sessionExpired"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ErrorFrame(code, msg string) presence.Frame {
	return presence.Frame{Type: FrameError, Data: ErrorBody{Code: code, Message: msg}}
}
