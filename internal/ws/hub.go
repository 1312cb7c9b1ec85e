package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"chatrelay/internal/auth"
	"chatrelay/internal/metrics"
	"chatrelay/internal/mw"
	"chatrelay/internal/presence"
	"chatrelay/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Options 控制传输层的资源限制与心跳节奏。
type Options struct {
	Env             string
	AllowedOrigins  []string
	MaxPayloadBytes int64
	PingInterval    time.Duration
	PongTimeout     time.Duration
	SendQueueSize   int
	SessionTTL      time.Duration
}

// Hub 把 WebSocket 连接接入注册表、名单广播与路由器，并记录存活的客户端以便停服时统一断开。
type Hub struct {
	reg      *presence.Registry
	roster   relay.Notifier
	router   *relay.Router
	auth     auth.Authenticator
	statuses relay.StatusStore
	opts     Options
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup

	// statusLocks 按用户串行化状态写回 (userID -> *sync.Mutex)
	statusLocks sync.Map
}

// NewHub wires the transport to the relay core. statuses may be nil.
func NewHub(reg *presence.Registry, roster relay.Notifier, router *relay.Router, a auth.Authenticator, statuses relay.StatusStore, opts Options) *Hub {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = 256
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}
	if opts.MaxPayloadBytes <= 0 {
		opts.MaxPayloadBytes = 100 << 20
	}
	h := &Hub{
		reg:      reg,
		roster:   roster,
		router:   router,
		auth:     a,
		statuses: statuses,
		opts:     opts,
		clients:  make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return mw.OriginAllowed(r.Header.Get("Origin"), r.Host, opts.Env, opts.AllowedOrigins)
		},
	}
	return h
}

// Serve 在升级前校验会话，缺失或失效的会话直接拒绝握手。
func (h *Hub) Serve(c *gin.Context) {
	sess, err := h.auth.Authenticate(c.Request.Context(), auth.SessionToken(c.Request))
	if err != nil {
		status, msg := auth.StatusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Str("user_id", sess.UserID).Msg("ws upgrade")
		return
	}
	client := newClient(h, conn, sess)
	if _, err := h.reg.Register(sess.UserID, client, sess.Profile); err != nil {
		log.Error().Err(err).Str("user_id", sess.UserID).Msg("register connection")
		_ = conn.Close()
		return
	}
	h.add(client)
	h.roster.Notify()
	h.syncStatus(sess.UserID)
	log.Info().Str("user_id", sess.UserID).Str("conn_id", client.id).Msg("ws connected")

	go client.writePump()
	client.readPump()
}

// disconnect 是连接注销的唯一入口，读协程因任何原因退出都会执行。
func (h *Hub) disconnect(c *Client) {
	c.close()
	h.remove(c)
	if _, current := h.reg.Release(c); !current {
		log.Debug().Str("user_id", c.userID).Str("conn_id", c.id).Msg("superseded connection closed")
		return
	}
	h.roster.Notify()
	h.syncStatus(c.userID)
	log.Info().Str("user_id", c.userID).Str("conn_id", c.id).Msg("ws disconnected")
}

// syncStatus 把注册表中的当前状态尽力写回资料存储，失败只记录日志。
// 同一用户的写回串行执行，且在锁内重新读取注册表，所以断线与重连交错时
// 最后一次写入总是反映最新状态。
func (h *Hub) syncStatus(userID string) {
	if h.statuses == nil {
		return
	}
	l, _ := h.statusLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := l.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	status := presence.StatusOffline
	if rec, ok := h.reg.Get(userID); ok {
		status = rec.Status
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.statuses.SetStatus(ctx, userID, status); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("status", string(status)).Msg("persist status")
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()
	metrics.WsConnections.Inc()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		metrics.WsConnections.Dec()
		h.wg.Done()
	}
}

// Online 返回当前存活的连接数（包括已被新连接取代但尚未断开的旧连接）。
func (h *Hub) Online() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown 断开所有连接并等待它们完成注销，或直到 ctx 结束。
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for c := range h.clients {
		c.close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
