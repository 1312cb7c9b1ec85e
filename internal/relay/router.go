package relay

import (
	"context"
	"errors"
	"fmt"

	"chatrelay/internal/metrics"
	"chatrelay/internal/presence"

	"github.com/rs/zerolog/log"
)

type Outcome string

const (
	Delivered        Outcome = "delivered"
	RecipientOffline Outcome = "recipientOffline"
	MalformedEvent   Outcome = "malformedEvent"
	DeliveryFailed   Outcome = "deliveryFailed"
)

// StatusStore persists a user's status outside the process.
type StatusStore interface {
	SetStatus(ctx context.Context, subject string, status presence.Status) error
}

// Notifier is told when the roster changed.
type Notifier interface {
	Notify()
}

// Router 负责点对点事件的查找与转发，所有连接的读协程并发调用它。
type Router struct {
	reg      *presence.Registry
	roster   Notifier
	statuses StatusStore
}

// NewRouter builds a router. statuses may be nil when status changes
// need not outlive the process.
func NewRouter(reg *presence.Registry, roster Notifier, statuses StatusStore) *Router {
	return &Router{reg: reg, roster: roster, statuses: statuses}
}

// Handle dispatches one inbound event by kind.
func (r *Router) Handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case KindTyping:
		p, ok := ev.Payload.(TypingPayload)
		if !ok {
			return
		}
		r.RelayTyping(ev.SenderID, ev.RecipientID, p.IsTyping, ev.SenderProfile)
	case KindStatusUpdate:
		p, ok := ev.Payload.(StatusPayload)
		if !ok {
			r.reply(ev, ErrorFrame(CodeMalformed, "invalid status update"))
			return
		}
		if err := r.RelayStatus(ctx, ev.SenderID, p.Status); err != nil {
			code := CodeStorageUnavailable
			if errors.Is(err, presence.ErrInvalidStatus) || errors.Is(err, presence.ErrNotConnected) {
				code = CodeMalformed
			}
			r.reply(ev, ErrorFrame(code, err.Error()))
		}
	default:
		r.Route(ev)
	}
}

// Route forwards ev to the recipient's current connection and reports the
// outcome to the sender. It never panics.
func (r *Router) Route(ev Event) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("user_id", ev.SenderID).Str("recipient_id", ev.RecipientID).
				Str("kind", string(ev.Kind)).Msg("route panic")
			out = DeliveryFailed
			r.reply(ev, statusFrame(ev, out, "internal error"))
		}
		metrics.RoutedEventsTotal.WithLabelValues(ev.Kind.label(), string(out)).Inc()
	}()

	if reason := validate(ev); reason != "" {
		r.reply(ev, statusFrame(ev, MalformedEvent, reason))
		return MalformedEvent
	}
	conn, ok := r.reg.LookupConnection(ev.RecipientID)
	if !ok {
		r.reply(ev, statusFrame(ev, RecipientOffline, ""))
		return RecipientOffline
	}
	frame := presence.Frame{Type: frameType(ev.Kind), Data: Delivery{
		SenderID:      ev.SenderID,
		SenderProfile: ev.SenderProfile,
		Kind:          ev.Kind,
		Payload:       ev.Payload,
		Timestamp:     ev.Timestamp,
	}}
	if err := conn.Send(frame); err != nil {
		log.Warn().Err(err).Str("user_id", ev.SenderID).Str("recipient_id", ev.RecipientID).
			Str("kind", string(ev.Kind)).Msg("deliver")
		r.reply(ev, statusFrame(ev, DeliveryFailed, "delivery failed"))
		return DeliveryFailed
	}
	ack := Ack{Success: true, Kind: ev.Kind, Timestamp: ev.Timestamp}
	if p, ok := ev.Payload.(TextPayload); ok {
		ack.MessageID = p.MessageID
	}
	r.reply(ev, presence.Frame{Type: FrameMessageSent, Data: ack})
	return Delivered
}

// RelayTyping forwards a typing indicator. Offline recipients and send
// failures are ignored.
func (r *Router) RelayTyping(senderID, recipientID string, isTyping bool, profile presence.Profile) {
	if senderID == "" || recipientID == "" {
		return
	}
	conn, ok := r.reg.LookupConnection(recipientID)
	if !ok {
		return
	}
	_ = conn.Send(presence.Frame{Type: FrameUserTyping, Data: Typing{
		SenderID:      senderID,
		SenderProfile: profile,
		IsTyping:      isTyping,
	}})
}

// RelayStatus 更新在线状态并触发名单广播，随后持久化到资料存储。
// 持久化失败不会回滚内存中的状态。
func (r *Router) RelayStatus(ctx context.Context, userID string, status presence.Status) error {
	if _, err := r.reg.SetStatus(userID, status); err != nil {
		return err
	}
	r.roster.Notify()
	if r.statuses == nil {
		return nil
	}
	if err := r.statuses.SetStatus(ctx, userID, status); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("status", string(status)).Msg("persist status")
		return fmt.Errorf("relay: persist status: %w", err)
	}
	return nil
}

// reply 优先回给事件来源连接；没有来源时才按注册表查找发送方当前连接，
// 发送方已离线时静默丢弃。
func (r *Router) reply(ev Event, f presence.Frame) {
	conn := ev.Origin
	if conn == nil {
		var ok bool
		if conn, ok = r.reg.LookupConnection(ev.SenderID); !ok {
			return
		}
	}
	if err := conn.Send(f); err != nil {
		log.Debug().Err(err).Str("user_id", ev.SenderID).Str("frame", f.Type).Msg("reply")
	}
}

func validate(ev Event) string {
	switch {
	case !ev.Kind.Valid():
		return "unknown event kind"
	case ev.RecipientID == "":
		return "recipient is required"
	case ev.Payload == nil || ev.Payload.Kind() != ev.Kind:
		return "invalid payload"
	}
	return ""
}

func statusFrame(ev Event, out Outcome, reason string) presence.Frame {
	return presence.Frame{Type: FrameDeliveryStatus, Data: DeliveryStatus{
		Kind:      ev.Kind,
		Timestamp: ev.Timestamp,
		Outcome:   out,
		Reason:    reason,
	}}
}
