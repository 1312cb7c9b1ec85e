package server

import (
	"chatrelay/internal/auth"
	"chatrelay/internal/config"
	"chatrelay/internal/metrics"
	"chatrelay/internal/mw"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
// WebSocket 路由不挂限速中间件，连接建立后的流量由连接自身的读限制约束。
func SetupRouter(cfg config.Config, h *Handler, limiter *mw.RL) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env, cfg.AllowedOrigins))

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	if limiter != nil {
		api.Use(limiter.Middleware())
	}
	api.POST("/login", h.Login)
	api.POST("/logout", h.Logout)

	authed := api.Group("")
	authed.Use(auth.RequireSession(h.authSvc))
	authed.GET("/session", h.Session)
	authed.GET("/users", h.ListUsers)

	r.GET("/ws", h.hub.Serve)
	return r
}
