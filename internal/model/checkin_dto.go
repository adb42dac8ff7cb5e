package model

import (
	"time"

	"Habitude/pkg/fingerprint"
)

// ========== CheckIn 相关 DTO ==========

// SubmitState 提交结果状态
type SubmitState string

const (
	SubmitStateAccepted      SubmitState = "accepted"
	SubmitStateQueuedOffline SubmitState = "queued_offline"
)

// SubmitCheckInRequest 打卡提交请求
// device_fingerprint 与 device 二选一：前者是客户端已经算好的指纹，
// 后者是原始信号，由服务侧代为派生。
type SubmitCheckInRequest struct {
	Method            string               `json:"method"`
	ClientTimestamp   string               `json:"client_timestamp"` // ISO-8601
	UTCOffsetMinutes  int                  `json:"utc_offset_minutes"`
	Geo               *GeoPoint            `json:"geo,omitempty"`
	DeviceFingerprint string               `json:"device_fingerprint,omitempty"`
	Device            *fingerprint.Signals `json:"device,omitempty"`
	QRSessionID       string               `json:"qr_session_id,omitempty"`
}

// SubmitCheckInResponse 打卡提交响应
// queued_offline 不是失败：对用户呈现为"已保存，将自动同步"。
type SubmitCheckInResponse struct {
	State     SubmitState   `json:"state"`
	RiskScore int           `json:"risk_score"`
	Event     *CheckInEvent `json:"event,omitempty"`
	Day       string        `json:"day"`
}

// TodayCheckInData 当天打卡状态
type TodayCheckInData struct {
	Day       string `json:"day"`
	CheckedIn bool   `json:"checked_in"`
	Pending   int    `json:"pending"` // 仍在离线队列里等待同步的条数
}

// CheckInHistoryQuery 打卡历史查询参数
type CheckInHistoryQuery struct {
	Limit  int    `query:"limit"`
	Cursor string `query:"cursor"`
}

// CheckInHistoryPage 打卡历史分页结果
type CheckInHistoryPage struct {
	Events     []CheckInEvent `json:"events"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}

// StreakData 连续打卡派生数据
type StreakData struct {
	Total     int    `json:"total"`
	Streak    int    `json:"streak"`
	Stage     int    `json:"stage"`
	StageName string `json:"stage_name"`
}

// DrainReport 一次同步（排空离线队列）的结果
type DrainReport struct {
	Attempted  int       `json:"attempted"`
	Synced     int       `json:"synced"`
	Remaining  int       `json:"remaining"`
	FinishedAt time.Time `json:"finished_at"`
}

// ========== Auth 相关 DTO ==========

// IssueTokenRequest 签发调试 token 的请求
type IssueTokenRequest struct {
	UserID string `json:"user_id"`
}

// IssueTokenData 签发结果
type IssueTokenData struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}
