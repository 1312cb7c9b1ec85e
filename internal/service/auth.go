package service

import (
	"context"
	"errors"
	"fmt"

	"chatrelay/internal/identity"
	clog "chatrelay/internal/log"
	"chatrelay/internal/profile"
	"chatrelay/internal/session"

	"github.com/rs/zerolog/log"
)

// AuthService 串联身份校验、资料持久化与会话签发。
type AuthService struct {
	verifier identity.Verifier
	profiles profile.Store
	sessions *session.Store
}

func NewAuthService(verifier identity.Verifier, profiles profile.Store, sessions *session.Store) *AuthService {
	return &AuthService{verifier: verifier, profiles: profiles, sessions: sessions}
}

// LoginResult 登录成功后返回的数据。
type LoginResult struct {
	SessionID string
	Profile   profile.Profile
}

// Login 校验外部凭证，查找或创建资料，并签发新的会话。
func (s *AuthService) Login(ctx context.Context, credential string) (*LoginResult, error) {
	if credential == "" {
		return nil, ErrMissingCredential
	}
	id, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredential) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrIdentityUnavailable, err)
	}
	p, err := s.profiles.Upsert(ctx, *id)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert profile: %w", ErrStorageUnavailable, err)
	}
	sid, err := s.sessions.Issue(ctx, p.Subject, p.Display())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	log.Info().Str("user_id", p.Subject).Str("session_id", clog.TokenPrefix(sid)).Msg("login")
	return &LoginResult{SessionID: sid, Profile: *p}, nil
}

// Logout 撤销会话，对未知会话幂等。
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

// Authenticate 校验会话并滑动续期。缺失、未知或过期的会话都返回
// ErrAuthenticationRequired，过期时同时可用 errors.Is 匹配 session.ErrExpired。
func (s *AuthService) Authenticate(ctx context.Context, sessionID string) (*session.Session, error) {
	if sessionID == "" {
		return nil, ErrAuthenticationRequired
	}
	sess, err := s.sessions.Validate(ctx, sessionID)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationRequired, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
}

// Profile 返回持久化的资料，供会话查询接口使用。
func (s *AuthService) Profile(ctx context.Context, subject string) (*profile.Profile, error) {
	p, err := s.profiles.Get(ctx, subject)
	if err != nil && !errors.Is(err, profile.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return p, err
}
