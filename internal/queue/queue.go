package queue

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"Habitude/internal/model"
)

// 离线队列：持久化的 FIFO。条目在提交确认成功之前归队列独占，
// 只有两种出口——成功后删除，或按策略显式废弃，绝不静默丢失。
// 每个会话持有自己的 Store 句柄，不做隐式全局单例。

type Store struct {
	db *gorm.DB
}

// NewStore 用注入的数据库句柄构建队列存储
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Append 原子追加一个条目。这一步失败意味着用户动作面临真实丢失风险，
// 调用方必须把它当终态错误向上抛，不允许吞掉。
func (s *Store) Append(ctx context.Context, entry model.OfflineQueueEntry) error {
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append offline queue entry: %w", err)
	}
	return nil
}

// ListFIFO 按入队顺序（最老的在前）返回某用户的全部条目
func (s *Store) ListFIFO(ctx context.Context, userID string) ([]model.OfflineQueueEntry, error) {
	var entries []model.OfflineQueueEntry

	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("enqueued_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list offline queue entries: %w", err)
	}

	return entries, nil
}

// Remove 按标识删除条目，只在拿到服务端确认之后调用
func (s *Store) Remove(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Delete(&model.OfflineQueueEntry{}, id).Error; err != nil {
		return fmt.Errorf("failed to remove offline queue entry %d: %w", id, err)
	}
	return nil
}

// IncrementAttempts 记录一次失败的投递尝试
func (s *Store) IncrementAttempts(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).
		Model(&model.OfflineQueueEntry{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to bump attempts for entry %d: %w", id, err)
	}
	return nil
}

// Count 某用户仍在排队的条目数
func (s *Store) Count(ctx context.Context, userID string) (int64, error) {
	var count int64

	err := s.db.WithContext(ctx).
		Model(&model.OfflineQueueEntry{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count offline queue entries: %w", err)
	}

	return count, nil
}

// MarkerStore 本地打卡标记的持久化，和队列共用一个数据库
type MarkerStore struct {
	db *gorm.DB
}

func NewMarkerStore(db *gorm.DB) *MarkerStore {
	return &MarkerStore{db: db}
}

// Mark 落一条 (用户, 本地日) 标记，重复标记幂等
func (m *MarkerStore) Mark(ctx context.Context, userID, day string, source model.MarkerSource) error {
	marker := model.CheckInMarker{
		UserID:    userID,
		Day:       day,
		Source:    source,
		CreatedAt: time.Now(),
	}

	err := m.db.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, day).
		FirstOrCreate(&marker).Error
	if err != nil {
		return fmt.Errorf("failed to mark check-in day: %w", err)
	}

	return nil
}

// IsMarked 查询某个本地日是否已有打卡标记
func (m *MarkerStore) IsMarked(ctx context.Context, userID, day string) (bool, error) {
	var count int64

	err := m.db.WithContext(ctx).
		Model(&model.CheckInMarker{}).
		Where("user_id = ? AND day = ?", userID, day).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to query check-in marker: %w", err)
	}

	return count > 0, nil
}
