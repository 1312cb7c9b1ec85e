package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	clog "chatrelay/internal/log"
	"chatrelay/internal/presence"
	"chatrelay/internal/relay"
	"chatrelay/internal/service"
	"chatrelay/internal/session"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait     = 10 * time.Second
	frameTypePing = "ping"
)

var (
	ErrClosed    = errors.New("ws: connection closed")
	ErrQueueFull = errors.New("ws: send queue full")
)

// Client 是一条 WebSocket 连接，实现 presence.Conn。
// 读协程负责入站事件与心跳，写协程独占底层连接的写操作。
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	userID    string
	profile   presence.Profile
	sessionID string

	// 仅在读协程中访问
	lastCheck time.Time
}

func newClient(h *Hub, conn *websocket.Conn, sess *session.Session) *Client {
	return &Client{
		id:        uuid.NewString(),
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, h.opts.SendQueueSize),
		done:      make(chan struct{}),
		userID:    sess.UserID,
		profile:   sess.Profile,
		sessionID: sess.ID,
		lastCheck: time.Now(),
	}
}

func (c *Client) ID() string { return c.id }

// Send 非阻塞入队。队列满说明对端消费过慢，直接断开它，
// 避免拖慢发送方或其他连接。
func (c *Client) Send(f presence.Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		log.Warn().Str("user_id", c.userID).Str("conn_id", c.id).Msg("send queue full, dropping client")
		c.close()
		return ErrQueueFull
	}
}

// close 幂等，可从任意协程调用；读协程随后退出并完成注销。
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) readPump() {
	defer c.hub.disconnect(c)

	pongWait := c.hub.opts.PongTimeout
	c.conn.SetReadLimit(c.hub.opts.MaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.heartbeat()
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				log.Warn().Str("user_id", c.userID).Int64("limit", c.hub.opts.MaxPayloadBytes).Msg("payload too large")
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("user_id", c.userID).Msg("ws read")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var in relay.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			_ = c.Send(relay.ErrorFrame(relay.CodeMalformed, "invalid json"))
			continue
		}
		if in.Type == frameTypePing {
			c.heartbeat()
			continue
		}
		ev, err := in.Event(c.userID, c.profile, time.Now())
		if err != nil {
			log.Debug().Err(err).Str("user_id", c.userID).Str("kind", in.Type).Msg("decode event")
		}
		ev.Origin = c
		c.hub.router.Handle(context.Background(), ev)
	}
}

// heartbeat 刷新 lastSeen，并按 TTL/4 的频率重新校验会话（滑动续期）。
// 会话失效时通知客户端并断开。
func (c *Client) heartbeat() {
	c.hub.reg.Touch(c)
	every := c.hub.opts.SessionTTL / 4
	if every <= 0 || time.Since(c.lastCheck) < every {
		return
	}
	c.lastCheck = time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.hub.auth.Authenticate(ctx, c.sessionID)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrAuthenticationRequired):
		log.Info().Str("user_id", c.userID).Str("session_id", clog.TokenPrefix(c.sessionID)).Msg("session ended, closing connection")
		_ = c.Send(relay.ErrorFrame(relay.CodeSessionExpired, "session expired"))
		// 留出时间让写协程把错误帧发出去
		time.AfterFunc(100*time.Millisecond, c.close)
	default:
		log.Warn().Err(err).Str("user_id", c.userID).Msg("session refresh")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
