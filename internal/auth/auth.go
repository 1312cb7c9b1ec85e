package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"chatrelay/internal/service"
	"chatrelay/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const sessionKey = "session"

// Authenticator resolves a session id to a live session.
type Authenticator interface {
	Authenticate(ctx context.Context, sessionID string) (*session.Session, error)
}

// SessionToken 依次从 Cookie、Authorization Bearer 头和 token 查询参数中取会话 ID。
// 浏览器建立 WebSocket 时无法自定义头部，因此保留查询参数方式。
func SessionToken(r *http.Request) string {
	if c, err := r.Cookie(session.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return r.URL.Query().Get("token")
}

// RequireSession 校验会话并把它挂到 gin.Context 上。
func RequireSession(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := a.Authenticate(c.Request.Context(), SessionToken(c.Request))
		if err != nil {
			status, msg := StatusFor(err)
			if status >= http.StatusInternalServerError {
				log.Error().Err(err).Str("path", c.FullPath()).Msg("authenticate")
			}
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

// StatusFor maps authentication errors to an HTTP status and a client message.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrExpired):
		return http.StatusUnauthorized, "session expired"
	case errors.Is(err, service.ErrAuthenticationRequired):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, service.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

func GetSession(c *gin.Context) *session.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok2 := v.(*session.Session); ok2 {
			return s
		}
	}
	return nil
}

func GetUserID(c *gin.Context) string {
	if s := GetSession(c); s != nil {
		return s.UserID
	}
	return ""
}
