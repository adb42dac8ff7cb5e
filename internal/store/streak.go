package store

import (
	"time"

	"Habitude/internal/model"
)

// 连续打卡派生：输入是 {verified, pending} 事件加上仍在离线队列里的
// 条目对应的日子——本地视图不能因为一次还没同步完的提交就惩罚用户。

// 阶段是总打卡天数的单调阶跃函数，四档，下限 0 / 6 / 16 / 31
var (
	stageFloors = [4]int{0, 6, 16, 31}
	stageNames  = [4]string{"seed", "sprout", "rooted", "evergreen"}
)

// ComputeStreak 计算总天数、连续天数和阶段。
// offsetMinutes 是用户当前时区偏移，事件时间戳据此折算成本地日。
func ComputeStreak(events []model.CheckInEvent, queuedDays []string, now time.Time, offsetMinutes int) model.StreakData {
	offset := time.Duration(offsetMinutes) * time.Minute

	days := make(map[string]bool)
	for _, e := range events {
		if !e.Qualifies() {
			continue
		}
		days[e.ServerTimestamp.UTC().Add(offset).Format("2006-01-02")] = true
	}
	for _, d := range queuedDays {
		if d != "" {
			days[d] = true
		}
	}

	total := len(days)

	// 从今天逐日回走，遇到第一个没打卡的日子就停
	streak := 0
	local := now.UTC().Add(offset)
	cursor := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	for days[cursor.Format("2006-01-02")] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}

	stage := 1
	for i := len(stageFloors) - 1; i >= 0; i-- {
		if total >= stageFloors[i] {
			stage = i + 1
			break
		}
	}

	return model.StreakData{
		Total:     total,
		Streak:    streak,
		Stage:     stage,
		StageName: stageNames[stage-1],
	}
}
