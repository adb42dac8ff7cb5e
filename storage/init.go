package storage

import (
	"go.uber.org/zap"

	"Habitude/pkg/logger"
	"Habitude/storage/database"
	"Habitude/storage/redis"
)

// 统一 init storage 层

func Init() error {
	if err := database.Init(); err != nil {
		return err
	}

	// Redis 可选，连不上只降级不阻断启动
	if err := redis.Init(); err != nil {
		logger.Logger.Warn("Failed to initialize Redis, day-marker cache falls back to SQLite",
			zap.Error(err),
		)
	}

	return nil
}
