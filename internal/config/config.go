package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultDevSecret = "dev-secret-change-me"

type Config struct {
	Port string
	Env  string

	ProfileBackend string
	DatabaseDSN    string
	MongoURI       string
	MongoDatabase  string

	SessionBackend      string
	RedisAddr           string
	RedisPassword       string
	SessionTTLHours     int
	SessionSweepMinutes int
	CookieSecure        bool

	GoogleClientID string
	DevTokenSecret string

	MaxPayloadMB        int
	PingIntervalSeconds int
	PongTimeoutSeconds  int
	SendQueueSize       int
	AllowedOrigins      []string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// getenvInt falls back to def when the value is missing, malformed or not positive.
func getenvInt(key string, def int) int {
	n, err := strconv.Atoi(getenv(key, ""))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func Load() Config {
	env := getenv("APP_ENV", "dev")
	devSecret := ""
	if env == "dev" {
		devSecret = defaultDevSecret
	}
	var origins []string
	for _, o := range strings.Split(getenv("ALLOWED_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return Config{
		Port:                getenv("APP_PORT", "8080"),
		Env:                 env,
		ProfileBackend:      getenv("PROFILE_BACKEND", "memory"),
		DatabaseDSN:         getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=chatrelay port=5432 sslmode=disable TimeZone=UTC"),
		MongoURI:            getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:       getenv("MONGO_DATABASE", "chatrelay"),
		SessionBackend:      getenv("SESSION_BACKEND", "memory"),
		RedisAddr:           getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getenv("REDIS_PASSWORD", ""),
		SessionTTLHours:     getenvInt("SESSION_TTL_HOURS", 24),
		SessionSweepMinutes: getenvInt("SESSION_SWEEP_MINUTES", 10),
		CookieSecure:        getenv("COOKIE_SECURE", strconv.FormatBool(env == "prod")) == "true",
		GoogleClientID:      getenv("GOOGLE_CLIENT_ID", ""),
		DevTokenSecret:      getenv("DEV_TOKEN_SECRET", devSecret),
		MaxPayloadMB:        getenvInt("MAX_PAYLOAD_MB", 100),
		PingIntervalSeconds: getenvInt("PING_INTERVAL_SECONDS", 25),
		PongTimeoutSeconds:  getenvInt("PONG_TIMEOUT_SECONDS", 60),
		SendQueueSize:       getenvInt("SEND_QUEUE_SIZE", 256),
		AllowedOrigins:      origins,
	}
}

// Validate 在启动前检查配置，错误的配置直接终止进程。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: APP_PORT is empty")
	}
	switch cfg.ProfileBackend {
	case "memory":
	case "postgres":
		if cfg.DatabaseDSN == "" {
			return errors.New("config: DATABASE_DSN is required for the postgres profile backend")
		}
	case "mongo":
		if cfg.MongoURI == "" || cfg.MongoDatabase == "" {
			return errors.New("config: MONGO_URI and MONGO_DATABASE are required for the mongo profile backend")
		}
	default:
		return errors.New("config: unknown PROFILE_BACKEND " + strconv.Quote(cfg.ProfileBackend))
	}
	switch cfg.SessionBackend {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR is required for the redis session backend")
		}
	default:
		return errors.New("config: unknown SESSION_BACKEND " + strconv.Quote(cfg.SessionBackend))
	}
	if cfg.SessionTTLHours <= 0 || cfg.SessionSweepMinutes <= 0 {
		return errors.New("config: session ttl and sweep interval must be positive")
	}
	if cfg.PingIntervalSeconds <= 0 || cfg.PingIntervalSeconds >= cfg.PongTimeoutSeconds {
		return errors.New("config: PING_INTERVAL_SECONDS must be positive and less than PONG_TIMEOUT_SECONDS")
	}
	if cfg.GoogleClientID == "" && cfg.DevTokenSecret == "" {
		return errors.New("config: no identity verifier configured")
	}
	if cfg.Env != "dev" && cfg.GoogleClientID == "" {
		return errors.New("config: GOOGLE_CLIENT_ID is required outside dev")
	}
	if cfg.Env != "dev" && cfg.DevTokenSecret == defaultDevSecret {
		return errors.New("config: default DEV_TOKEN_SECRET is only allowed in dev")
	}
	return nil
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SessionSweepMinutes) * time.Minute
}

func (c Config) MaxPayloadBytes() int64 {
	return int64(c.MaxPayloadMB) << 20
}

func (c Config) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

func (c Config) PongTimeout() time.Duration {
	return time.Duration(c.PongTimeoutSeconds) * time.Second
}
