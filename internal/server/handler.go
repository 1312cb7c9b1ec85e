package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"chatrelay/internal/auth"
	"chatrelay/internal/identity"
	"chatrelay/internal/presence"
	"chatrelay/internal/profile"
	"chatrelay/internal/service"
	"chatrelay/internal/session"
	"chatrelay/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	authSvc *service.AuthService
	reg     *presence.Registry
	hub     *ws.Hub
	cookie  session.CookieOptions
	ttl     time.Duration
}

func NewHandler(authSvc *service.AuthService, reg *presence.Registry, hub *ws.Hub, cookie session.CookieOptions, ttl time.Duration) *Handler {
	return &Handler{authSvc: authSvc, reg: reg, hub: hub, cookie: cookie, ttl: ttl}
}

type loginResponse struct {
	UserID    string           `json:"userId"`
	Profile   presence.Profile `json:"profile"`
	Email     string           `json:"email"`
	Status    presence.Status  `json:"status"`
	SessionID string           `json:"sessionId"`
}

// Login 校验外部身份凭证并签发会话 Cookie。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Credential string `json:"credential"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	res, err := h.authSvc.Login(c.Request.Context(), strings.TrimSpace(req.Credential))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingCredential):
			c.JSON(http.StatusBadRequest, gin.H{"error": "credential is required"})
		case errors.Is(err, identity.ErrInvalidCredential):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
		case errors.Is(err, service.ErrIdentityUnavailable), errors.Is(err, service.ErrStorageUnavailable):
			log.Error().Err(err).Msg("login")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		default:
			log.Error().Err(err).Msg("login")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}
	session.SetCookie(c.Writer, res.SessionID, h.ttl, h.cookie)
	c.JSON(http.StatusOK, loginResponse{
		UserID:    res.Profile.Subject,
		Profile:   res.Profile.Display(),
		Email:     res.Profile.Email,
		Status:    res.Profile.Status,
		SessionID: res.SessionID,
	})
}

// Logout 撤销会话并清除 Cookie，未登录时同样返回成功。
func (h *Handler) Logout(c *gin.Context) {
	if err := h.authSvc.Logout(c.Request.Context(), auth.SessionToken(c.Request)); err != nil {
		log.Error().Err(err).Msg("logout")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}
	session.ClearCookie(c.Writer, h.cookie)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Session 返回当前会话对应的用户。
func (h *Handler) Session(c *gin.Context) {
	sess := auth.GetSession(c)
	resp := loginResponse{UserID: sess.UserID, Profile: sess.Profile, Status: presence.StatusOffline}
	if rec, ok := h.reg.Get(sess.UserID); ok {
		resp.Status = rec.Status
	}
	p, err := h.authSvc.Profile(c.Request.Context(), sess.UserID)
	switch {
	case err == nil:
		resp.Email = p.Email
	case errors.Is(err, profile.ErrNotFound):
	default:
		log.Warn().Err(err).Str("user_id", sess.UserID).Msg("session profile")
	}
	c.JSON(http.StatusOK, resp)
}

// ListUsers 返回注册表中的全部记录，包括最近离线的用户。
func (h *Handler) ListUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.reg.All()})
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": h.hub.Online()})
}
