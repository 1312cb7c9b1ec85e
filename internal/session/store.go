package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	clog "chatrelay/internal/log"
	"chatrelay/internal/metrics"
	"chatrelay/internal/presence"

	"github.com/rs/zerolog/log"
)

// Store 负责签发、校验（滑动过期）、吊销会话，并定期清理过期记录。
type Store struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
}

type Option func(*Store)

// WithClock 注入时钟，单测用。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(backend Backend, ttl time.Duration, opts ...Option) *Store {
	s := &Store{backend: backend, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) TTL() time.Duration { return s.ttl }

// Issue creates a fresh session for userID. Storage errors are returned as is.
func (s *Store) Issue(ctx context.Context, userID string, profile presence.Profile) (string, error) {
	if userID == "" {
		return "", errors.New("session: user id is required")
	}
	id, err := GenerateID()
	if err != nil {
		return "", err
	}
	now := s.now()
	sess := Session{ID: id, UserID: userID, Profile: profile, IssuedAt: now, LastActive: now}
	if err := s.backend.Put(ctx, sess, s.ttl); err != nil {
		return "", fmt.Errorf("session: issue: %w", err)
	}
	metrics.SessionsIssuedTotal.Inc()
	return id, nil
}

// Validate returns the session and slides its expiry window forward. A
// session idle for longer than the TTL is rejected even before the sweeper
// has removed it.
func (s *Store) Validate(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	sess, err := s.backend.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session: validate: %w", err)
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	now := s.now()
	if s.expired(*sess, now) {
		return nil, ErrExpired
	}
	sess.LastActive = now
	ok, err := s.backend.Refresh(ctx, *sess, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("session: refresh: %w", err)
	}
	if !ok {
		// revoked or swept after the read
		return nil, ErrNotFound
	}
	return sess, nil
}

// Revoke removes the session; unknown ids are not an error.
func (s *Store) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	return nil
}

// SweepExpired revokes every expired session. A failure on one record is
// collected and the sweep carries on with the rest.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	ids, err := s.backend.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("session: sweep list: %w", err)
	}
	now := s.now()
	var errs []error
	removed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		sess, err := s.backend.Get(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", clog.TokenPrefix(id), err))
			continue
		}
		if sess == nil || !s.expired(*sess, now) {
			continue
		}
		if err := s.backend.Delete(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", clog.TokenPrefix(id), err))
			continue
		}
		removed++
	}
	metrics.SessionsSweptTotal.Add(float64(removed))
	return removed, errors.Join(errs...)
}

// Run 按固定间隔执行 SweepExpired，直到 ctx 结束。
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Int("removed", n).Msg("session sweep")
				continue
			}
			if n > 0 {
				log.Info().Int("removed", n).Msg("session sweep")
			}
		}
	}
}

func (s *Store) expired(sess Session, now time.Time) bool {
	return now.Sub(sess.LastActive) > s.ttl
}
