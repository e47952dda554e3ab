package utils

import (
	"org-directory/internal/config"
	"org-directory/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis: nil when no address is configured, callers treat nil as "cache disabled"
func OpenRedis(cfg config.Redis) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	logger.L().Debug("redis_env", "addr", cfg.Addr, "db", cfg.DB)
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}
