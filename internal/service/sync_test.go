package service

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"Habitude/internal/backend"
	"Habitude/internal/model"
	"Habitude/internal/queue"
	"Habitude/internal/store"
	pkgerrors "Habitude/pkg/errors"
	"Habitude/pkg/logger"
	"Habitude/pkg/snowflake"
)

func TestMain(m *testing.M) {
	logger.Init()
	if err := snowflake.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type submitOutcome struct {
	err error
}

// fakeBackend 按脚本回答 SubmitEvent：先消费预置的失败，
// 脚本耗尽后默认接受，并把确认过的事件记进自己的事件表。
type fakeBackend struct {
	outcomes []submitOutcome
	calls    []model.CheckInSubmission
	events   []model.CheckInEvent // server_timestamp 降序
}

func (f *fakeBackend) SubmitEvent(ctx context.Context, sub model.CheckInSubmission) (*model.CheckInEvent, error) {
	f.calls = append(f.calls, sub)

	if len(f.outcomes) > 0 {
		next := f.outcomes[0]
		f.outcomes = f.outcomes[1:]
		if next.err != nil {
			return nil, next.err
		}
	}

	event := model.CheckInEvent{
		ID:              fmt.Sprintf("evt-%d", len(f.calls)),
		UserID:          sub.UserID,
		Method:          sub.Method,
		ServerTimestamp: testNow.Add(time.Duration(len(f.calls)) * time.Second),
		Status:          model.CheckInStatusVerified,
		RiskScore:       sub.RiskScore,
	}
	f.events = append([]model.CheckInEvent{event}, f.events...)

	return &event, nil
}

func (f *fakeBackend) ListEvents(ctx context.Context, userID string, limit int, before *time.Time) ([]model.CheckInEvent, error) {
	var out []model.CheckInEvent
	for _, e := range f.events {
		if e.UserID != userID {
			continue
		}
		if before != nil && !e.ServerTimestamp.Before(*before) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func transientErr() error {
	return backend.NewError(backend.KindTransient, 503, "", "upstream unavailable", nil)
}

func schemaAbsentErr() error {
	return backend.NewError(backend.KindSchemaAbsent, 404, "PGRST205", "relation does not exist", nil)
}

func rejectedErr() error {
	return backend.NewError(backend.KindRejected, 422, "VALIDATION_FAILED", "duplicate check-in", nil)
}

type harness struct {
	engine  *SyncEngine
	queue   *queue.Store
	markers *queue.MarkerStore
	slept   *[]time.Duration
}

func newHarness(t *testing.T, fb *fakeBackend, probe backend.ConnectivityProbe, mutate ...func(*Deps)) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.OfflineQueueEntry{}, &model.CheckInMarker{}))

	var client backend.Client
	if fb != nil {
		client = fb
	}

	slept := &[]time.Duration{}
	deps := Deps{
		Client:      client,
		Probe:       probe,
		Queue:       queue.NewStore(db),
		Markers:     queue.NewMarkerStore(db),
		Events:      store.NewEventStore(client),
		MaxAttempts: 3,
		BackoffBase: 300 * time.Millisecond,
		BackoffCap:  1200 * time.Millisecond,
		Now:         func() time.Time { return testNow },
		Sleep: func(ctx context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			return nil
		},
	}
	for _, m := range mutate {
		m(&deps)
	}

	return &harness{
		engine:  NewSyncEngine(deps),
		queue:   deps.Queue,
		markers: deps.Markers,
		slept:   slept,
	}
}

func gpsSubmission(ts time.Time) model.CheckInSubmission {
	accuracy := 15.0
	return model.CheckInSubmission{
		UserID:            "user-1",
		Method:            model.CheckInMethodGPS,
		ClientTimestamp:   ts,
		UTCOffsetMinutes:  480,
		Geo:               &model.GeoPoint{Lat: 31.23, Lng: 121.47, AccuracyMeters: &accuracy},
		DeviceFingerprint: "fp-engine-test",
	}
}

func TestSubmitAcceptedFirstAttempt(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{}
	h := newHarness(t, fb, backend.StaticProbe(true))

	res, err := h.engine.Submit(ctx, gpsSubmission(testNow))
	require.NoError(t, err)

	assert.Equal(t, model.SubmitStateAccepted, res.State)
	require.NotNil(t, res.Event)
	assert.Equal(t, "evt-1", res.Event.ID)
	assert.Equal(t, "2025-06-15", res.Day) // UTC 10:00 在 +8 时区是当天 18:00
	assert.Equal(t, 0, res.RiskScore)
	assert.Len(t, fb.calls, 1)

	marked, err := h.markers.IsMarked(ctx, "user-1", "2025-06-15")
	require.NoError(t, err)
	assert.True(t, marked)

	count, err := h.queue.Count(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSubmitRetriesTransientThenAccepts(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{outcomes: []submitOutcome{{err: transientErr()}}}
	h := newHarness(t, fb, backend.StaticProbe(true))

	res, err := h.engine.Submit(ctx, gpsSubmission(testNow))
	require.NoError(t, err)

	assert.Equal(t, model.SubmitStateAccepted, res.State)
	require.Len(t, fb.calls, 2)
	assert.Equal(t, []time.Duration{300 * time.Millisecond}, *h.slept)

	// 重试的是同一笔逻辑提交，幂等键必须稳定
	assert.Equal(t, fb.calls[0].DedupKey(), fb.calls[1].DedupKey())
}

func TestSubmitQueuesAfterRetryBudget(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{outcomes: []submitOutcome{
		{err: transientErr()}, {err: transientErr()}, {err: transientErr()},
	}}
	h := newHarness(t, fb, backend.StaticProbe(true))

	sub := gpsSubmission(testNow)
	res, err := h.engine.Submit(ctx, sub)
	require.NoError(t, err)

	assert.Equal(t, model.SubmitStateQueuedOffline, res.State)
	assert.Nil(t, res.Event)
	assert.Len(t, fb.calls, 3)
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 600 * time.Millisecond}, *h.slept)

	entries, err := h.queue.ListFIFO(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, sub.DedupKey(), entries[0].Submission().DedupKey())

	// 离线完成同样落当天标记
	marked, err := h.markers.IsMarked(ctx, "user-1", "2025-06-15")
	require.NoError(t, err)
	assert.True(t, marked)
}

func TestSubmitBackoffDoublesAndCaps(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{outcomes: []submitOutcome{
		{err: transientErr()}, {err: transientErr()}, {err: transientErr()},
		{err: transientErr()}, {err: transientErr()},
	}}
	h := newHarness(t, fb, backend.StaticProbe(true), func(d *Deps) {
		d.MaxAttempts = 5
	})

	res, err := h.engine.Submit(ctx, gpsSubmission(testNow))
	require.NoError(t, err)

	assert.Equal(t, model.SubmitStateQueuedOffline, res.State)
	assert.Equal(t, []time.Duration{
		300 * time.Millisecond,
		600 * time.Millisecond,
		1200 * time.Millisecond,
		1200 * time.Millisecond,
	}, *h.slept)
}

func TestSubmitSchemaAbsentQueuesImmediately(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{outcomes: []submitOutcome{{err: schemaAbsentErr()}}}
	h := newHarness(t, fb, backend.StaticProbe(true))

	res, err := h.engine.Submit(ctx, gpsSubmission(testNow))
	require.NoError(t, err)

	assert.Equal(t, model.SubmitStateQueuedOffline, res.State)
	assert.Len(t, fb.calls, 1)
	assert.Empty(t, *h.slept)

	count, err := h.queue.Count(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSubmitRejectedIsTerminal(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{outcomes: []submitOutcome{{err: rejectedErr()}}}
	h := newHarness(t, fb, backend.StaticProbe(true))

	res, err := h.engine.Submit(ctx, gpsSubmission(testNow))
	assert.ErrorIs(t, err, pkgerrors.CheckInRejected)
	assert.Nil(t, res)
	assert.Len(t, fb.calls, 1)

	// 被拒绝的提交绝不进离线队列，也不留完成标记
	count, err := h.queue.Count(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	marked, err := h.markers.IsMarked(ctx, "user-1", "2025-06-15")
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestSubmitOfflineSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{}
	h := newHarness(t, fb, backend.StaticProbe(false))

	res, err := h.engine.Submit(ctx, gpsSubmission(testNow))
	require.NoError(t, err)

	assert.Equal(t, model.SubmitStateQueuedOffline, res.State)
	assert.Empty(t, fb.calls)
}

func TestSubmitWithoutClientQueues(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	res, err := h.engine.Submit(ctx, gpsSubmission(testNow))
	require.NoError(t, err)
	assert.Equal(t, model.SubmitStateQueuedOffline, res.State)
}

func TestSubmitScoresRisk(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	sub := gpsSubmission(testNow.Add(-10 * time.Minute)) // 超出时钟偏移阈值
	sub.Method = model.CheckInMethodManual
	sub.Geo = nil
	sub.DeviceFingerprint = ""

	res, err := h.engine.Submit(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, 90, res.RiskScore) // 40 + 30 + 20
}

func TestDrainSyncsFIFOAndRemoves(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{}
	h := newHarness(t, fb, backend.StaticProbe(false))

	older := gpsSubmission(testNow.Add(-time.Hour))
	newer := gpsSubmission(testNow)

	for _, sub := range []model.CheckInSubmission{older, newer} {
		res, err := h.engine.Submit(ctx, sub)
		require.NoError(t, err)
		require.Equal(t, model.SubmitStateQueuedOffline, res.State)
	}
	require.Empty(t, fb.calls)

	report, err := h.engine.Drain(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 2, report.Synced)
	assert.Zero(t, report.Remaining)
	assert.Equal(t, testNow, report.FinishedAt)

	// 先入队的先投递
	require.Len(t, fb.calls, 2)
	assert.True(t, fb.calls[0].ClientTimestamp.Equal(older.ClientTimestamp))
	assert.True(t, fb.calls[1].ClientTimestamp.Equal(newer.ClientTimestamp))

	count, err := h.queue.Count(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	// drain 后事件缓存能看到刚同步成功的事件
	assert.Len(t, h.engine.events.Cached("user-1"), 2)
}

func TestDrainRetainsTransientFailures(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{outcomes: []submitOutcome{
		{err: transientErr()}, {err: transientErr()},
	}}
	h := newHarness(t, fb, backend.StaticProbe(false))

	older := gpsSubmission(testNow.Add(-time.Hour))
	newer := gpsSubmission(testNow)
	for _, sub := range []model.CheckInSubmission{older, newer} {
		_, err := h.engine.Submit(ctx, sub)
		require.NoError(t, err)
	}

	report, err := h.engine.Drain(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Attempted)
	assert.Zero(t, report.Synced)
	assert.Equal(t, 2, report.Remaining)

	// 失败的条目原位保留，相对顺序不变，尝试数各加一
	entries, err := h.queue.ListFIFO(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].ClientTimestamp.Equal(older.ClientTimestamp))
	assert.Equal(t, 1, entries[0].Attempts)
	assert.Equal(t, 1, entries[1].Attempts)
}

func TestDrainDiscardsRejectedEntries(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{outcomes: []submitOutcome{{err: rejectedErr()}}}
	h := newHarness(t, fb, backend.StaticProbe(false))

	_, err := h.engine.Submit(ctx, gpsSubmission(testNow.Add(-time.Hour)))
	require.NoError(t, err)
	_, err = h.engine.Submit(ctx, gpsSubmission(testNow))
	require.NoError(t, err)

	report, err := h.engine.Drain(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Synced)
	assert.Zero(t, report.Remaining) // 被拒绝的条目被废弃，不会永远重试
}

func TestDrainWithoutClientLeavesQueueIntact(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	_, err := h.engine.Submit(ctx, gpsSubmission(testNow))
	require.NoError(t, err)

	report, err := h.engine.Drain(ctx, "user-1")
	require.NoError(t, err)

	assert.Zero(t, report.Attempted)
	assert.Equal(t, 1, report.Remaining)
}

func TestHasCheckedInToday(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	data, err := h.engine.HasCheckedInToday(ctx, "user-1", 480)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-15", data.Day)
	assert.False(t, data.CheckedIn)
	assert.Zero(t, data.Pending)

	_, err = h.engine.Submit(ctx, gpsSubmission(testNow))
	require.NoError(t, err)

	data, err = h.engine.HasCheckedInToday(ctx, "user-1", 480)
	require.NoError(t, err)
	assert.True(t, data.CheckedIn)
	assert.Equal(t, 1, data.Pending)
}

func TestHistoryPagination(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{}
	h := newHarness(t, fb, backend.StaticProbe(true))

	for i := 0; i < 3; i++ {
		_, err := h.engine.Submit(ctx, gpsSubmission(testNow.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	page, err := h.engine.History(ctx, "user-1", 2, "")
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextCursor)

	page2, err := h.engine.History(ctx, "user-1", 2, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, page2.Events, 1)

	assert.NotEqual(t, page.Events[0].ID, page2.Events[0].ID)
	assert.NotEqual(t, page.Events[1].ID, page2.Events[0].ID)
}

func TestHistoryWithoutBackendIsEmptyNotPanic(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	// 未配置后端时历史是空页，排队中的提交也不会出现在其中
	_, err := h.engine.Submit(ctx, gpsSubmission(testNow))
	require.NoError(t, err)

	page, err := h.engine.History(ctx, "user-1", 20, "")
	require.NoError(t, err)
	assert.Empty(t, page.Events)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)
}

func TestHistoryRejectsBadCursor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeBackend{}, backend.StaticProbe(true))

	_, err := h.engine.History(ctx, "user-1", 20, "yesterday-ish")
	assert.ErrorIs(t, err, pkgerrors.InvalidCursor)
}

func TestStreakCountsQueuedEntries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, nil)

	_, err := h.engine.Submit(ctx, gpsSubmission(testNow))
	require.NoError(t, err)

	data, err := h.engine.Streak(ctx, "user-1", 480)
	require.NoError(t, err)

	assert.Equal(t, 1, data.Total)
	assert.Equal(t, 1, data.Streak)
	assert.Equal(t, 1, data.Stage)
	assert.Equal(t, "seed", data.StageName)
}
