package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"Habitude/internal/model"
)

func eventOn(id string, ts time.Time, status model.CheckInStatus) model.CheckInEvent {
	return model.CheckInEvent{
		ID:              id,
		UserID:          "user-1",
		Method:          model.CheckInMethodGPS,
		ServerTimestamp: ts,
		Status:          status,
	}
}

func TestComputeStreakCountsDistinctDays(t *testing.T) {
	now := time.Date(2025, 1, 10, 18, 0, 0, 0, time.UTC)
	events := []model.CheckInEvent{
		eventOn("e1", time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), model.CheckInStatusVerified),
		eventOn("e2", time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC), model.CheckInStatusVerified),
		eventOn("e3", time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC), model.CheckInStatusPending),
		eventOn("e4", time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC), model.CheckInStatusVerified),
	}

	data := ComputeStreak(events, nil, now, 0)

	assert.Equal(t, 4, data.Total)
	assert.Equal(t, 1, data.Streak) // 1/10 打了，1/9 断了
	assert.Equal(t, 1, data.Stage)
	assert.Equal(t, "seed", data.StageName)
}

func TestComputeStreakWalksBackConsecutiveDays(t *testing.T) {
	now := time.Date(2025, 1, 10, 18, 0, 0, 0, time.UTC)

	var events []model.CheckInEvent
	for i := 0; i < 6; i++ {
		ts := time.Date(2025, 1, 10-i, 9, 0, 0, 0, time.UTC)
		events = append(events, eventOn(fmt.Sprintf("e%d", i), ts, model.CheckInStatusVerified))
	}

	data := ComputeStreak(events, nil, now, 0)

	assert.Equal(t, 6, data.Total)
	assert.Equal(t, 6, data.Streak)
	assert.Equal(t, 2, data.Stage)
	assert.Equal(t, "sprout", data.StageName)
}

func TestComputeStreakZeroWhenTodayMissing(t *testing.T) {
	now := time.Date(2025, 1, 10, 18, 0, 0, 0, time.UTC)
	events := []model.CheckInEvent{
		eventOn("e1", time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC), model.CheckInStatusVerified),
	}

	data := ComputeStreak(events, nil, now, 0)

	assert.Equal(t, 1, data.Total)
	assert.Equal(t, 0, data.Streak)
}

func TestComputeStreakExcludesRejected(t *testing.T) {
	now := time.Date(2025, 1, 10, 18, 0, 0, 0, time.UTC)
	events := []model.CheckInEvent{
		eventOn("e1", time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC), model.CheckInStatusRejected),
	}

	data := ComputeStreak(events, nil, now, 0)

	assert.Equal(t, 0, data.Total)
	assert.Equal(t, 0, data.Streak)
}

func TestComputeStreakIncludesQueuedDays(t *testing.T) {
	// 还没同步成功的离线提交同样计入，本地视图不惩罚用户
	now := time.Date(2025, 1, 10, 18, 0, 0, 0, time.UTC)

	data := ComputeStreak(nil, []string{"2025-01-10", "2025-01-09"}, now, 0)

	assert.Equal(t, 2, data.Total)
	assert.Equal(t, 2, data.Streak)
}

func TestComputeStreakAppliesUTCOffset(t *testing.T) {
	// UTC 1/9 20:00 在 +8 时区已经是 1/10
	now := time.Date(2025, 1, 9, 20, 0, 0, 0, time.UTC)
	events := []model.CheckInEvent{
		eventOn("e1", time.Date(2025, 1, 9, 20, 0, 0, 0, time.UTC), model.CheckInStatusVerified),
	}

	data := ComputeStreak(events, nil, now, 480)

	assert.Equal(t, 1, data.Total)
	assert.Equal(t, 1, data.Streak)

	// 同一时刻按 UTC 看则归属 1/9
	data = ComputeStreak(events, nil, now, 0)
	assert.Equal(t, 1, data.Streak)
}

func TestComputeStreakStageFloors(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		total     int
		stage     int
		stageName string
	}{
		{0, 1, "seed"},
		{5, 1, "seed"},
		{6, 2, "sprout"},
		{15, 2, "sprout"},
		{16, 3, "rooted"},
		{30, 3, "rooted"},
		{31, 4, "evergreen"},
		{60, 4, "evergreen"},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("total_%d", tc.total), func(t *testing.T) {
			days := make([]string, 0, tc.total)
			for i := 0; i < tc.total; i++ {
				days = append(days, now.AddDate(0, 0, -i).Format("2006-01-02"))
			}

			data := ComputeStreak(nil, days, now, 0)

			assert.Equal(t, tc.total, data.Total)
			assert.Equal(t, tc.stage, data.Stage)
			assert.Equal(t, tc.stageName, data.StageName)
		})
	}
}
