package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/internal/config"
	"chatrelay/internal/db"
	"chatrelay/internal/identity"
	clog "chatrelay/internal/log"
	"chatrelay/internal/mw"
	"chatrelay/internal/presence"
	"chatrelay/internal/profile"
	"chatrelay/internal/redis"
	"chatrelay/internal/relay"
	"chatrelay/internal/server"
	"chatrelay/internal/service"
	"chatrelay/internal/session"
	"chatrelay/internal/ws"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接存储并启动 Gin 服务，收到信号后优雅停服。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cleanups []func()

	profiles, closeProfiles := openProfiles(ctx, cfg)
	cleanups = append(cleanups, closeProfiles)

	backend, closeSessions := openSessions(ctx, cfg)
	cleanups = append(cleanups, closeSessions)
	sessions := session.NewStore(backend, cfg.SessionTTL())

	verifier := openVerifier(ctx, cfg)
	authSvc := service.NewAuthService(verifier, profiles, sessions)

	reg := presence.NewRegistry()
	roster := presence.NewBroadcaster(reg)
	router := relay.NewRouter(reg, roster, profiles)
	hub := ws.NewHub(reg, roster, router, authSvc, profiles, ws.Options{
		Env:             cfg.Env,
		AllowedOrigins:  cfg.AllowedOrigins,
		MaxPayloadBytes: cfg.MaxPayloadBytes(),
		PingInterval:    cfg.PingInterval(),
		PongTimeout:     cfg.PongTimeout(),
		SendQueueSize:   cfg.SendQueueSize,
		SessionTTL:      sessions.TTL(),
	})

	// 控制单个 IP+路由的速率，避免登录接口被刷爆。
	limiter := mw.NewRateLimiter(rate.Every(time.Second/20), 40, 2*time.Minute)
	h := server.NewHandler(authSvc, reg, hub, session.CookieOptions{Secure: cfg.CookieSecure}, sessions.TTL())
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.SetupRouter(cfg, h, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	bg, cancelBg := context.WithCancel(context.Background())
	go roster.Run(bg)
	go sessions.Run(bg, cfg.SweepInterval())

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()
	log.Info().Str("port", cfg.Port).Str("profiles", cfg.ProfileBackend).Str("sessions", cfg.SessionBackend).Msg("chatrelay started")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	// Shutdown 不会等待已劫持的 WebSocket 连接，需要单独关闭。
	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ws shutdown")
	}
	cancelBg()
	limiter.Stop()
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	log.Info().Msg("chatrelay stopped cleanly")
}

func openProfiles(ctx context.Context, cfg config.Config) (profile.Store, func()) {
	switch cfg.ProfileBackend {
	case "postgres":
		gdb, err := db.Connect(cfg.DatabaseDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("db connect")
		}
		if err := db.Migrate(gdb); err != nil {
			log.Fatal().Err(err).Msg("db migrate")
		}
		return profile.NewGormStore(gdb), func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
	case "mongo":
		store, err := profile.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatal().Err(err).Msg("mongo connect")
		}
		return store, func() {
			c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = store.Close(c)
		}
	}
	log.Warn().Msg("profiles are kept in memory and lost on restart")
	return profile.NewMemoryStore(), func() {}
}

func openSessions(ctx context.Context, cfg config.Config) (session.Backend, func()) {
	if cfg.SessionBackend == "redis" {
		client, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect")
		}
		return session.NewRedisBackend(client.Client), func() { _ = client.Close() }
	}
	return session.NewMemoryBackend(), func() {}
}

func openVerifier(ctx context.Context, cfg config.Config) identity.Verifier {
	var chain identity.Chain
	if cfg.GoogleClientID != "" {
		google, err := identity.NewGoogle(ctx, cfg.GoogleClientID)
		if err != nil {
			log.Fatal().Err(err).Msg("oidc discovery")
		}
		chain = append(chain, google)
	}
	if cfg.DevTokenSecret != "" {
		log.Warn().Msg("dev credentials are accepted")
		chain = append(chain, identity.NewDev(cfg.DevTokenSecret))
	}
	return chain
}
