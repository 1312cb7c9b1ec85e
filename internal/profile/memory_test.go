package profile

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"chatrelay/internal/identity"
	"chatrelay/internal/presence"
)

func TestRandomAvatarColor(t *testing.T) {
	re := regexp.MustCompile(`^#[0-9a-f]{6}$`)
	for i := 0; i < 50; i++ {
		if c := RandomAvatarColor(); !re.MatchString(c) {
			t.Fatalf("RandomAvatarColor() = %q, want #rrggbb", c)
		}
	}
}

func TestMemoryStore_UpsertCreatesThenKeeps(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.Upsert(ctx, identity.Identity{Subject: "sub-1", DisplayName: "Alice", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if first.DisplayName != "Alice" || first.Status != presence.StatusOnline || first.LastLogin.IsZero() {
		t.Errorf("Upsert() = %+v", first)
	}

	if err := s.SetStatus(ctx, "sub-1", presence.StatusOffline); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	again, err := s.Upsert(ctx, identity.Identity{Subject: "sub-1", DisplayName: "Renamed"})
	if err != nil {
		t.Fatalf("Upsert(again) error = %v", err)
	}
	if again.AvatarColor != first.AvatarColor || again.DisplayName != "Alice" {
		t.Errorf("second login changed the stored profile: %+v -> %+v", first, again)
	}
	if again.Status != presence.StatusOnline {
		t.Errorf("Status after login = %q, want online", again.Status)
	}
}

func TestMemoryStore_DefaultDisplayName(t *testing.T) {
	p, err := NewMemoryStore().Upsert(context.Background(), identity.Identity{Subject: "anon"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if p.DisplayName != DefaultDisplayName {
		t.Errorf("DisplayName = %q, want %q", p.DisplayName, DefaultDisplayName)
	}
	if got := p.Display(); got.DisplayName != DefaultDisplayName || got.AvatarColor != p.AvatarColor {
		t.Errorf("Display() = %+v", got)
	}
}

func TestMemoryStore_Unknown(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := s.Get(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if err := s.SetStatus(ctx, "ghost", presence.StatusAway); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetStatus() error = %v, want ErrNotFound", err)
	}
}
