package model

import "time"

// OfflineQueueEntry 没能到达后端的打卡提交，持久化在本地 SQLite 中，
// 由离线队列独占，直到提交成功被删除。提交字段平铺成列，方便排查。
type OfflineQueueEntry struct {
	ID                  int64         `gorm:"primaryKey" json:"id"` // snowflake
	UserID              string        `gorm:"not null;index:idx_offline_queue_user_order,priority:1" json:"user_id"`
	Method              CheckInMethod `gorm:"type:varchar(16);not null" json:"method"`
	ClientTimestamp     time.Time     `gorm:"not null" json:"client_timestamp"`
	UTCOffsetMinutes    int           `gorm:"not null" json:"utc_offset_minutes"`
	GeoLat              *float64      `json:"geo_lat,omitempty"`
	GeoLng              *float64      `json:"geo_lng,omitempty"`
	GeoAccuracyMeters   *float64      `json:"geo_accuracy_meters,omitempty"`
	DeviceFingerprint   string        `gorm:"not null" json:"device_fingerprint"`
	FingerprintDegraded bool          `gorm:"not null;default:false" json:"fingerprint_degraded"`
	QRSessionID         string        `json:"qr_session_id,omitempty"`
	RiskScore           int           `gorm:"not null;default:0" json:"risk_score"`
	Attempts            int           `gorm:"not null;default:0" json:"attempts"`
	EnqueuedAt          time.Time     `gorm:"not null;index:idx_offline_queue_user_order,priority:2" json:"enqueued_at"`
}

// TableName 指定表名
func (OfflineQueueEntry) TableName() string {
	return "offline_queue_entries"
}

// Submission 还原队列条目所包裹的原始提交
func (e OfflineQueueEntry) Submission() CheckInSubmission {
	sub := CheckInSubmission{
		UserID:              e.UserID,
		Method:              e.Method,
		ClientTimestamp:     e.ClientTimestamp,
		UTCOffsetMinutes:    e.UTCOffsetMinutes,
		DeviceFingerprint:   e.DeviceFingerprint,
		FingerprintDegraded: e.FingerprintDegraded,
		QRSessionID:         e.QRSessionID,
		RiskScore:           e.RiskScore,
	}

	if e.GeoLat != nil && e.GeoLng != nil {
		sub.Geo = &GeoPoint{
			Lat:            *e.GeoLat,
			Lng:            *e.GeoLng,
			AccuracyMeters: e.GeoAccuracyMeters,
		}
	}

	return sub
}

// NewOfflineQueueEntry 由提交构建队列条目，id 由调用方生成
func NewOfflineQueueEntry(id int64, sub CheckInSubmission, enqueuedAt time.Time) OfflineQueueEntry {
	entry := OfflineQueueEntry{
		ID:                  id,
		UserID:              sub.UserID,
		Method:              sub.Method,
		ClientTimestamp:     sub.ClientTimestamp,
		UTCOffsetMinutes:    sub.UTCOffsetMinutes,
		DeviceFingerprint:   sub.DeviceFingerprint,
		FingerprintDegraded: sub.FingerprintDegraded,
		QRSessionID:         sub.QRSessionID,
		RiskScore:           sub.RiskScore,
		EnqueuedAt:          enqueuedAt,
	}

	if sub.Geo != nil {
		entry.GeoLat = &sub.Geo.Lat
		entry.GeoLng = &sub.Geo.Lng
		entry.GeoAccuracyMeters = sub.Geo.AccuracyMeters
	}

	return entry
}

// MarkerSource 打卡标记来源
type MarkerSource string

const (
	MarkerSourceServer  MarkerSource = "server"  // 服务端已确认
	MarkerSourceOffline MarkerSource = "offline" // 离线完成，等待同步
)

// CheckInMarker 按 (用户, 本地日) 记录"今天已打卡"，
// 让 UI 的完成态判断不依赖真正的提交是否已经同步成功。
type CheckInMarker struct {
	ID        int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string       `gorm:"not null;uniqueIndex:idx_check_in_markers_user_day,priority:1" json:"user_id"`
	Day       string       `gorm:"type:varchar(10);not null;uniqueIndex:idx_check_in_markers_user_day,priority:2" json:"day"`
	Source    MarkerSource `gorm:"type:varchar(16);not null" json:"source"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (CheckInMarker) TableName() string {
	return "check_in_markers"
}
