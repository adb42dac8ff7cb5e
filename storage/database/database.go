package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"Habitude/config"
	"Habitude/internal/model"
	"Habitude/pkg/logger"
)

// 本地持久层：离线队列和打卡标记都放在一个嵌入式 SQLite 文件里，
// 进程重启后仍然在。写入走事务，崩溃不会破坏已提交的行。

var (
	db     *gorm.DB
	dbOnce sync.Once
	dbErr  error
)

func Init() error {
	dbOnce.Do(func() {
		path := config.Cfg.SQLitePath

		if err := ensureDirectory(path); err != nil {
			dbErr = err
			logger.Logger.Error("Failed to prepare sqlite directory", zap.Error(err))
			return
		}

		gormCfg := &gorm.Config{
			PrepareStmt:            true,
			SkipDefaultTransaction: false, // 队列写入要求原子落盘
		}

		var gormDB *gorm.DB
		gormDB, dbErr = gorm.Open(sqlite.Open(path), gormCfg)
		if dbErr != nil {
			logger.Logger.Error("Failed to open sqlite database",
				zap.String("path", path),
				zap.Error(dbErr),
			)
			return
		}

		db = gormDB
		if err := Migrate(); err != nil {
			dbErr = err
			logger.Logger.Error("Failed to run database migration", zap.Error(err))
			return
		}

		logger.Logger.Info("Database initialized successfully", zap.String("path", path))
	})

	return dbErr
}

// Migrate 建出离线队列和打卡标记两张表
func Migrate() error {
	return db.AutoMigrate(
		&model.OfflineQueueEntry{},
		&model.CheckInMarker{},
	)
}

func DB() *gorm.DB {
	return db
}

func Close(ctx context.Context) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- sqlDB.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func ensureDirectory(path string) error {
	candidate := strings.TrimSpace(path)
	if candidate == "" || candidate == ":memory:" {
		return nil
	}

	dir := filepath.Dir(candidate)
	if dir == "" || dir == "." {
		return nil
	}

	return os.MkdirAll(dir, 0o755)
}
