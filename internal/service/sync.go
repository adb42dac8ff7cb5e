package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"Habitude/config"
	"Habitude/internal/backend"
	"Habitude/internal/cache"
	"Habitude/internal/model"
	"Habitude/internal/queue"
	"Habitude/internal/risk"
	"Habitude/internal/store"
	pkgerrors "Habitude/pkg/errors"
	"Habitude/pkg/logger"
	"Habitude/pkg/snowflake"
	"Habitude/storage/database"
)

// 同步引擎：把"我打卡了"变成一个最终一致的事实。
// 状态机 Submitting -> {Accepted, QueuedOffline, Failed}，
// QueuedOffline 不是终态，后续 drain 成功后转为 Accepted。
//
// 互斥锁串行化同一引擎上的 Submit 和 Drain：drain 进行中到达的
// submit 会等它跑完，绝不在条目中间插队。

type SyncEngine struct {
	mu sync.Mutex

	client  backend.Client // 可能为 nil（未配置后端）
	probe   backend.ConnectivityProbe
	queue   *queue.Store
	markers *queue.MarkerStore
	events  *store.EventStore

	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration

	// 测试注入点
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Deps 引擎的显式依赖，测试用假实现替换
type Deps struct {
	Client  backend.Client
	Probe   backend.ConnectivityProbe
	Queue   *queue.Store
	Markers *queue.MarkerStore
	Events  *store.EventStore

	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewSyncEngine 构建引擎，零值依赖会补上保守默认
func NewSyncEngine(deps Deps) *SyncEngine {
	e := &SyncEngine{
		client:      deps.Client,
		probe:       deps.Probe,
		queue:       deps.Queue,
		markers:     deps.Markers,
		events:      deps.Events,
		maxAttempts: deps.MaxAttempts,
		backoffBase: deps.BackoffBase,
		backoffCap:  deps.BackoffCap,
		now:         deps.Now,
		sleep:       deps.Sleep,
	}

	if e.probe == nil {
		e.probe = backend.StaticProbe(e.client != nil)
	}
	if e.maxAttempts < 1 {
		e.maxAttempts = 3
	}
	if e.backoffBase <= 0 {
		e.backoffBase = 300 * time.Millisecond
	}
	if e.backoffCap <= 0 {
		e.backoffCap = 1200 * time.Millisecond
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.sleep == nil {
		e.sleep = sleepCtx
	}

	return e
}

var (
	syncEngine *SyncEngine
	syncOnce   sync.Once
	syncErr    error
)

// InitSync 按全局配置组装默认引擎，cmd 启动时调用一次
func InitSync() error {
	syncOnce.Do(func() {
		var client backend.Client
		var probe backend.ConnectivityProbe

		if config.Cfg.HasBackend() {
			httpClient, err := backend.NewHTTPClientFromConfig()
			if err != nil {
				syncErr = err
				return
			}
			client = httpClient

			httpProbe, err := backend.NewHTTPProbe(config.Cfg.BackendBaseURL)
			if err != nil {
				syncErr = err
				return
			}
			probe = httpProbe
		} else {
			probe = backend.StaticProbe(false)
		}

		db := database.DB()
		syncEngine = NewSyncEngine(Deps{
			Client:      client,
			Probe:       probe,
			Queue:       queue.NewStore(db),
			Markers:     queue.NewMarkerStore(db),
			Events:      store.NewEventStore(client),
			MaxAttempts: config.Cfg.SyncMaxAttempts,
			BackoffBase: time.Duration(config.Cfg.SyncBackoffBaseMS) * time.Millisecond,
			BackoffCap:  time.Duration(config.Cfg.SyncBackoffCapMS) * time.Millisecond,
		})
	})

	return syncErr
}

// Sync 获取全局引擎
func Sync() *SyncEngine {
	if syncEngine == nil {
		panic("sync engine not initialized, call InitSync() first")
	}
	return syncEngine
}

// Submit 提交一次打卡。
// 返回 Accepted（带服务端事件）或 QueuedOffline；Rejected 和
// PersistenceFailure 以类型化错误返回，绝不抛异常穿出引擎边界。
func (e *SyncEngine) Submit(ctx context.Context, sub model.CheckInSubmission) (*model.SubmitCheckInResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	sub.RiskScore = risk.Score(sub, now)
	day := sub.LocalDay()

	// 前置检查：完全没有连通性信号时跳过网络尝试，直接入队
	if e.client == nil || !e.probe.Online(ctx) {
		logger.Logger.Info("No connectivity, queueing check-in offline",
			zap.String("user_id", sub.UserID),
			zap.String("day", day),
		)
		return e.enqueue(ctx, sub, day)
	}

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		event, err := e.client.SubmitEvent(ctx, sub)
		if err == nil {
			return e.accept(ctx, sub, *event, day)
		}

		switch backend.KindOf(err) {
		case backend.KindRejected:
			// 终态：重试一个被拒绝的提交只会永远错下去
			logger.Logger.Warn("Check-in rejected by backend",
				zap.String("user_id", sub.UserID),
				zap.String("day", day),
				zap.Error(err),
			)
			return nil, pkgerrors.CheckInRejected

		case backend.KindSchemaAbsent:
			// 后端根本收不了这笔写入，烧重试额度没有意义
			logger.Logger.Info("Backend schema absent, queueing check-in offline",
				zap.String("user_id", sub.UserID),
				zap.Error(err),
			)
			return e.enqueue(ctx, sub, day)

		default: // transient
			if attempt < e.maxAttempts {
				delay := e.backoff(attempt)
				logger.Logger.Debug("Transient submit failure, backing off",
					zap.String("user_id", sub.UserID),
					zap.Int("attempt", attempt),
					zap.Duration("delay", delay),
					zap.Error(err),
				)
				if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
					return e.enqueue(ctx, sub, day)
				}
				continue
			}

			logger.Logger.Warn("Retry budget exhausted, queueing check-in offline",
				zap.String("user_id", sub.UserID),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return e.enqueue(ctx, sub, day)
		}
	}

	return e.enqueue(ctx, sub, day)
}

// Drain 按 FIFO 排空离线队列：每个条目只试一次，失败的原位保留，
// 成功的在拿到服务端确认后才删除。跑完刷新事件缓存。
func (e *SyncEngine) Drain(ctx context.Context, userID string) (*model.DrainReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	drainID := uuid.NewString()

	entries, err := e.queue.ListFIFO(ctx, userID)
	if err != nil {
		return nil, pkgerrors.PersistenceFailure
	}

	report := &model.DrainReport{}

	if e.client == nil {
		report.Remaining = len(entries)
		report.FinishedAt = e.now()
		return report, nil
	}

	logger.Logger.Info("Drain pass started",
		zap.String("drain_id", drainID),
		zap.String("user_id", userID),
		zap.Int("queued", len(entries)),
	)

	for _, entry := range entries {
		// drain 只允许在条目之间被打断，单个条目的结果先落盘再继续
		if ctx.Err() != nil {
			break
		}

		report.Attempted++

		event, err := e.client.SubmitEvent(ctx, entry.Submission())
		if err == nil {
			if removeErr := e.queue.Remove(ctx, entry.ID); removeErr != nil {
				// 删除失败：条目留在队列里，幂等键保证下轮重投不会产生重复
				logger.Logger.Error("Failed to remove synced entry, will retry next drain",
					zap.String("drain_id", drainID),
					zap.Int64("entry_id", entry.ID),
					zap.Error(removeErr),
				)
				continue
			}
			e.events.Accept(*event)
			report.Synced++
			continue
		}

		if backend.IsRejected(err) {
			// 按策略显式废弃并留下终态记录，拒绝的提交不允许永远重试
			logger.Logger.Error("Queued check-in rejected by backend, discarding entry",
				zap.String("drain_id", drainID),
				zap.Int64("entry_id", entry.ID),
				zap.String("user_id", userID),
				zap.Error(err),
			)
			if removeErr := e.queue.Remove(ctx, entry.ID); removeErr != nil {
				logger.Logger.Error("Failed to discard rejected entry",
					zap.Int64("entry_id", entry.ID),
					zap.Error(removeErr),
				)
			}
			continue
		}

		// transient / schema absent：保留原有相对顺序，继续下一条
		if bumpErr := e.queue.IncrementAttempts(ctx, entry.ID); bumpErr != nil {
			logger.Logger.Warn("Failed to bump entry attempts",
				zap.Int64("entry_id", entry.ID),
				zap.Error(bumpErr),
			)
		}
	}

	remaining, countErr := e.queue.Count(ctx, userID)
	if countErr == nil {
		report.Remaining = int(remaining)
	}
	report.FinishedAt = e.now()

	if refreshErr := e.events.Refresh(ctx, userID, store.DefaultPageSize); refreshErr != nil {
		logger.Logger.Warn("Failed to refresh event cache after drain",
			zap.String("user_id", userID),
			zap.Error(refreshErr),
		)
	}

	logger.Logger.Info("Drain pass finished",
		zap.String("drain_id", drainID),
		zap.String("user_id", userID),
		zap.Int("attempted", report.Attempted),
		zap.Int("synced", report.Synced),
		zap.Int("remaining", report.Remaining),
	)

	return report, nil
}

// HasCheckedInToday 当天是否已打卡：Redis 镜像 -> SQLite 标记 -> 事件缓存
func (e *SyncEngine) HasCheckedInToday(ctx context.Context, userID string, offsetMinutes int) (*model.TodayCheckInData, error) {
	day := localDay(e.now(), offsetMinutes)

	checked := false

	if done, hit, err := cache.IsCheckinDone(ctx, day, userID); err == nil && hit {
		checked = done
	} else {
		if err != nil {
			logger.Logger.Warn("Day-marker cache lookup failed, falling back to SQLite",
				zap.Error(err),
			)
		}

		marked, err := e.markers.IsMarked(ctx, userID, day)
		if err != nil {
			return nil, pkgerrors.PersistenceFailure
		}
		checked = marked
	}

	if !checked {
		for _, event := range e.events.Cached(userID) {
			if event.Qualifies() && event.ServerTimestamp.UTC().Add(time.Duration(offsetMinutes)*time.Minute).Format("2006-01-02") == day {
				checked = true
				break
			}
		}
	}

	pending, err := e.queue.Count(ctx, userID)
	if err != nil {
		return nil, pkgerrors.PersistenceFailure
	}

	return &model.TodayCheckInData{
		Day:       day,
		CheckedIn: checked,
		Pending:   int(pending),
	}, nil
}

// History 游标翻页查询历史事件
func (e *SyncEngine) History(ctx context.Context, userID string, limit int, rawCursor string) (*model.CheckInHistoryPage, error) {
	cursor, err := store.ParseCursor(rawCursor)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = store.DefaultPageSize
	}

	events, err := e.events.Fetch(ctx, userID, limit, cursor)
	if err != nil {
		return nil, err
	}

	page := &model.CheckInHistoryPage{
		Events:  events,
		HasMore: len(events) == limit,
	}
	if len(events) > 0 {
		page.NextCursor = store.EncodeCursor(events[len(events)-1].ServerTimestamp)
	}

	return page, nil
}

// Streak 连续打卡派生数据：已确认事件 + 仍在队列里的条目
func (e *SyncEngine) Streak(ctx context.Context, userID string, offsetMinutes int) (*model.StreakData, error) {
	events := e.events.Cached(userID)
	if len(events) == 0 && e.client != nil {
		if err := e.events.Refresh(ctx, userID, store.MaxPageSize); err != nil {
			logger.Logger.Warn("Failed to refresh events for streak",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		events = e.events.Cached(userID)
	}

	entries, err := e.queue.ListFIFO(ctx, userID)
	if err != nil {
		return nil, pkgerrors.PersistenceFailure
	}

	queuedDays := make([]string, 0, len(entries))
	for _, entry := range entries {
		queuedDays = append(queuedDays, entry.Submission().LocalDay())
	}

	data := store.ComputeStreak(events, queuedDays, e.now(), offsetMinutes)
	return &data, nil
}

// accept 提交成功后的收尾：并入缓存、落标记
func (e *SyncEngine) accept(ctx context.Context, sub model.CheckInSubmission, event model.CheckInEvent, day string) (*model.SubmitCheckInResponse, error) {
	e.events.Accept(event)

	if err := e.markers.Mark(ctx, sub.UserID, day, model.MarkerSourceServer); err != nil {
		logger.Logger.Warn("Failed to persist check-in marker after accept",
			zap.String("user_id", sub.UserID),
			zap.String("day", day),
			zap.Error(err),
		)
	}
	if err := cache.MarkCheckinDone(ctx, day, sub.UserID); err != nil {
		logger.Logger.Warn("Failed to mirror check-in marker to cache", zap.Error(err))
	}

	logger.Logger.Info("Check-in accepted",
		zap.String("user_id", sub.UserID),
		zap.String("event_id", event.ID),
		zap.String("day", day),
		zap.Int("risk_score", sub.RiskScore),
	)

	return &model.SubmitCheckInResponse{
		State:     model.SubmitStateAccepted,
		RiskScore: sub.RiskScore,
		Event:     &event,
		Day:       day,
	}, nil
}

// enqueue 把提交持久化进离线队列并记录本地完成标记。
// 队列写入失败是真实的数据丢失风险，必须作为终态错误大声上抛。
func (e *SyncEngine) enqueue(ctx context.Context, sub model.CheckInSubmission, day string) (*model.SubmitCheckInResponse, error) {
	id, err := snowflake.NextID()
	if err != nil {
		return nil, pkgerrors.PersistenceFailure
	}

	entry := model.NewOfflineQueueEntry(id, sub, e.now())
	if err := e.queue.Append(ctx, entry); err != nil {
		logger.Logger.Error("Failed to persist offline queue entry",
			zap.String("user_id", sub.UserID),
			zap.String("day", day),
			zap.Error(err),
		)
		return nil, pkgerrors.PersistenceFailure
	}

	if err := e.markers.Mark(ctx, sub.UserID, day, model.MarkerSourceOffline); err != nil {
		logger.Logger.Warn("Failed to persist offline check-in marker",
			zap.String("user_id", sub.UserID),
			zap.String("day", day),
			zap.Error(err),
		)
	}
	if err := cache.MarkCheckinDone(ctx, day, sub.UserID); err != nil {
		logger.Logger.Warn("Failed to mirror check-in marker to cache", zap.Error(err))
	}

	return &model.SubmitCheckInResponse{
		State:     model.SubmitStateQueuedOffline,
		RiskScore: sub.RiskScore,
		Day:       day,
	}, nil
}

// backoff 指数退避：base 按尝试次数翻倍，封顶 cap
func (e *SyncEngine) backoff(attempt int) time.Duration {
	delay := e.backoffBase << (attempt - 1)
	if delay > e.backoffCap {
		delay = e.backoffCap
	}
	return delay
}

func localDay(now time.Time, offsetMinutes int) string {
	return now.UTC().Add(time.Duration(offsetMinutes) * time.Minute).Format("2006-01-02")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
