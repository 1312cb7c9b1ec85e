package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init 配置全局 zerolog：dev 环境输出彩色控制台日志并打开 debug，其余环境输出 JSON。
func Init(env string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == "dev" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(cw).With().Timestamp().Logger()
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "chatrelay").Logger()
}

// TokenPrefix 只保留会话 token 的前几位用于日志，避免泄露完整凭证。
func TokenPrefix(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return token[:6] + "…"
}
