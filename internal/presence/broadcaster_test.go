package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func rosterOf(t *testing.T, c *fakeConn) Roster {
	t.Helper()
	f, ok := c.last()
	if !ok {
		t.Fatalf("conn %s received no frames", c.id)
	}
	if f.Type != FrameUserList {
		t.Fatalf("conn %s last frame = %s, want %s", c.id, f.Type, FrameUserList)
	}
	return f.Data.(Roster)
}

func TestBroadcaster_PushesRosterToEveryClient(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg)
	a, bob := newFakeConn("a"), newFakeConn("b")
	reg.Register("alice", a, Profile{})
	reg.Register("bob", bob, Profile{})

	if sent := b.BroadcastRoster(); sent != 2 {
		t.Errorf("BroadcastRoster() = %d, want 2", sent)
	}
	for _, c := range []*fakeConn{a, bob} {
		r := rosterOf(t, c)
		if ids := onlineIDs(r.Users); len(ids) != 2 || ids[0] != "alice" || ids[1] != "bob" {
			t.Errorf("conn %s roster = %v, want [alice bob]", c.id, ids)
		}
	}
}

func TestBroadcaster_SkipsFailingConn(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg)
	good, bad := newFakeConn("good"), newFakeConn("bad")
	bad.err = errors.New("queue full")
	reg.Register("alice", good, Profile{})
	reg.Register("bob", bad, Profile{})

	if sent := b.BroadcastRoster(); sent != 1 {
		t.Errorf("BroadcastRoster() = %d, want 1", sent)
	}
	if r := rosterOf(t, good); len(r.Users) != 2 {
		t.Errorf("roster = %v, want both users", onlineIDs(r.Users))
	}
}

func TestBroadcaster_EventuallyConsistent(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	conns := make([]*fakeConn, 20)
	var wg sync.WaitGroup
	for i := range conns {
		conns[i] = newFakeConn(fmt.Sprintf("c%d", i))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%02d", i)
			reg.Register(user, conns[i], Profile{})
			b.Notify()
			if i%3 == 0 {
				reg.Unregister(user)
				b.Notify()
			}
		}(i)
	}
	wg.Wait()
	// one final settled broadcast; the Run loop may still be mid-flight
	b.BroadcastRoster()

	want := onlineIDs(reg.AllOnline())
	deadline := time.Now().Add(time.Second)
	for _, rec := range reg.AllOnline() {
		c := rec.Conn.(*fakeConn)
		for {
			got := onlineIDs(rosterOf(t, c).Users)
			if fmt.Sprint(got) == fmt.Sprint(want) {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("conn %s roster = %v, want %v", c.id, got, want)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestBroadcaster_NotifyCoalesces(t *testing.T) {
	b := NewBroadcaster(NewRegistry())
	for i := 0; i < 10; i++ {
		b.Notify()
	}
	if len(b.notify) != 1 {
		t.Errorf("pending notifications = %d, want 1", len(b.notify))
	}
}
