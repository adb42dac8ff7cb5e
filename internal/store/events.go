package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"Habitude/internal/backend"
	"Habitude/internal/model"
	pkgerrors "Habitude/pkg/errors"
)

// 事件缓存：服务端已确认打卡事件的进程内读模型，按 server_timestamp
// 降序（最新在前），游标翻页。游标是上一页最老一条的时间戳，
// 下一页严格早于它（< 而不是 <=），避免边界重复。

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type EventStore struct {
	mu     sync.RWMutex
	client backend.Client
	byUser map[string][]model.CheckInEvent
}

// NewEventStore 用注入的后端客户端构建事件缓存
func NewEventStore(client backend.Client) *EventStore {
	return &EventStore{
		client: client,
		byUser: make(map[string][]model.CheckInEvent),
	}
}

// Fetch 拉取一页事件。cursor 为 nil 表示第一页。
// 后端 schema 未就绪时返回空页而不是错误——"从未建过表"和
// "建了但还没有数据"对调用方必须是同一回事，而且不会把用户永久
// 钉在零历史上：下一次成功拉取照常填充。
func (s *EventStore) Fetch(ctx context.Context, userID string, pageSize int, cursor *time.Time) ([]model.CheckInEvent, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		return nil, pkgerrors.InvalidPageSize
	}

	// 未配置后端时没有事件可拉，历史就是空页
	if s.client == nil {
		return []model.CheckInEvent{}, nil
	}

	events, err := s.client.ListEvents(ctx, userID, pageSize, cursor)
	if err != nil {
		if backend.IsSchemaAbsent(err) {
			return []model.CheckInEvent{}, nil
		}
		return nil, err
	}

	// 防御性排序 + 严格 < 过滤，不信任后端的排序承诺
	sort.Slice(events, func(i, j int) bool {
		return events[i].ServerTimestamp.After(events[j].ServerTimestamp)
	})
	if cursor != nil {
		filtered := events[:0]
		for _, e := range events {
			if e.ServerTimestamp.Before(*cursor) {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	s.absorb(userID, events, cursor == nil)

	return events, nil
}

// Refresh 重拉第一页并替换缓存窗口，drain 之后调用让 UI 看到新事件
func (s *EventStore) Refresh(ctx context.Context, userID string, pageSize int) error {
	_, err := s.Fetch(ctx, userID, pageSize, nil)
	return err
}

// Cached 返回缓存窗口的副本（最新在前）
func (s *EventStore) Cached(userID string) []model.CheckInEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cached := s.byUser[userID]
	out := make([]model.CheckInEvent, len(cached))
	copy(out, cached)
	return out
}

// Accept 把一条刚被服务端确认的事件并入缓存
func (s *EventStore) Accept(event model.CheckInEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := append([]model.CheckInEvent{event}, s.byUser[event.UserID]...)
	s.byUser[event.UserID] = dedupeSorted(merged)
}

// absorb 把新拉到的页并入缓存。第一页替换窗口头部，后续页追加
func (s *EventStore) absorb(userID string, page []model.CheckInEvent, firstPage bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if firstPage {
		window := make([]model.CheckInEvent, len(page))
		copy(window, page)
		s.byUser[userID] = window
		return
	}

	s.byUser[userID] = dedupeSorted(append(s.byUser[userID], page...))
}

func dedupeSorted(events []model.CheckInEvent) []model.CheckInEvent {
	sort.Slice(events, func(i, j int) bool {
		return events[i].ServerTimestamp.After(events[j].ServerTimestamp)
	})

	seen := make(map[string]bool, len(events))
	out := events[:0]
	for _, e := range events {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out
}

// EncodeCursor 把游标序列化成对调用方不透明的字符串
func EncodeCursor(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseCursor 解析游标，空串表示第一页
func ParseCursor(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, pkgerrors.InvalidCursor
	}
	return &t, nil
}
