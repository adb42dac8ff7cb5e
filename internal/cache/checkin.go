package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"Habitude/storage/redis"
)

const (
	// 当日打卡标记的快速镜像，真实持久化在 SQLite，这里只为省一次落盘查询
	checkinDonePrefix = "checkin:done"

	doneTTL = 48 * time.Hour
)

// MarkCheckinDone 标记某用户某本地日已打卡（best effort，失败由调用方记日志降级）
func MarkCheckinDone(ctx context.Context, day, userID string) error {
	if !redis.Ready() {
		return nil
	}

	key := redis.Key(checkinDonePrefix, day, userID)
	if err := redis.Client().Set(ctx, key, "1", doneTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark checkin done: %w", err)
	}
	return nil
}

// IsCheckinDone 查询快速镜像。second 返回值表示镜像是否可用，
// 不可用时调用方应退回 SQLite 标记。
func IsCheckinDone(ctx context.Context, day, userID string) (bool, bool, error) {
	if !redis.Ready() {
		return false, false, nil
	}

	key := redis.Key(checkinDonePrefix, day, userID)
	_, err := redis.Client().Get(ctx, key).Result()
	if err == goredis.Nil {
		// 镜像没有不代表没打过卡，还要回查持久层
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to check checkin done status: %w", err)
	}

	return true, true, nil
}

// UnmarkCheckinDone 清除标记（测试和数据修复用）
func UnmarkCheckinDone(ctx context.Context, day, userID string) error {
	if !redis.Ready() {
		return nil
	}

	key := redis.Key(checkinDonePrefix, day, userID)
	if err := redis.Client().Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to unmark checkin done: %w", err)
	}
	return nil
}
