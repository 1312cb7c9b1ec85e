package presence

import (
	"context"
	"sync"

	"chatrelay/internal/metrics"

	"github.com/rs/zerolog/log"
)

const FrameUserList = "userList"

// Roster 是推送给客户端的在线名单快照，客户端按 Version 整体替换本地名单。
type Roster struct {
	Version uint64   `json:"version"`
	Users   []Record `json:"users"`
}

// Broadcaster 在成员变化后把在线名单推送给所有在线连接。
// 快照读取与推送在同一把锁内完成，保证各连接收到的快照按版本递增排队，
// 所有变更落定后每个客户端最后收到的都是最新名单。
type Broadcaster struct {
	reg    *Registry
	mu     sync.Mutex
	notify chan struct{}
}

func NewBroadcaster(reg *Registry) *Broadcaster {
	return &Broadcaster{reg: reg, notify: make(chan struct{}, 1)}
}

// BroadcastRoster 同步推送一次完整名单，返回成功入队的连接数。
func (b *Broadcaster) BroadcastRoster() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	version, online := b.reg.Snapshot()
	frame := Frame{Type: FrameUserList, Data: Roster{Version: version, Users: online}}
	sent := 0
	for _, rec := range online {
		if err := rec.Conn.Send(frame); err != nil {
			log.Debug().Err(err).Str("user_id", rec.UserID).Msg("roster send")
			continue
		}
		sent++
	}
	metrics.RosterBroadcastsTotal.Inc()
	metrics.OnlineUsers.Set(float64(len(online)))
	return sent
}

// Notify 请求一次异步广播；多次请求在 Run 处理前会被合并。
func (b *Broadcaster) Notify() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Run 处理 Notify 触发的广播，直到 ctx 结束。
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.notify:
			b.BroadcastRoster()
		}
	}
}
