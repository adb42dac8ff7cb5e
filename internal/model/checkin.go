package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// CheckInMethod 打卡方式枚举
type CheckInMethod string

const (
	CheckInMethodManual CheckInMethod = "manual" // 手动声明
	CheckInMethodGPS    CheckInMethod = "gps"    // 定位佐证
	CheckInMethodQR     CheckInMethod = "qr"     // 扫码佐证
)

// CheckInStatus 服务端打卡事件状态枚举
type CheckInStatus string

const (
	CheckInStatusPending  CheckInStatus = "pending"
	CheckInStatusVerified CheckInStatus = "verified"
	CheckInStatusRejected CheckInStatus = "rejected"
)

// GeoPoint 定位信息，仅 gps 方式携带
type GeoPoint struct {
	Lat            float64  `json:"lat"`
	Lng            float64  `json:"lng"`
	AccuracyMeters *float64 `json:"accuracy_meters,omitempty"`
}

// CheckInSubmission 客户端发起的一次打卡提交，创建后不可变。
// (UserID, ClientTimestamp, DeviceFingerprint) 三元组唯一标识一次逻辑提交，
// 重试不会在服务端产生重复记录。
type CheckInSubmission struct {
	UserID              string        `json:"user_id"`
	Method              CheckInMethod `json:"method"`
	ClientTimestamp     time.Time     `json:"client_timestamp"`
	UTCOffsetMinutes    int           `json:"utc_offset_minutes"`
	Geo                 *GeoPoint     `json:"geo,omitempty"`
	DeviceFingerprint   string        `json:"device_fingerprint"`
	FingerprintDegraded bool          `json:"fingerprint_degraded,omitempty"`
	QRSessionID         string        `json:"qr_session_id,omitempty"`
	RiskScore           int           `json:"risk_score"`
}

// DedupKey 由去重三元组派生幂等键，服务端可据此丢弃重复提交
func (s CheckInSubmission) DedupKey() string {
	raw := s.UserID + ":" + s.ClientTimestamp.UTC().Format(time.RFC3339Nano) + ":" + s.DeviceFingerprint
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// LocalDay 按客户端时区偏移折算出的打卡归属日（2006-01-02）
func (s CheckInSubmission) LocalDay() string {
	offset := time.Duration(s.UTCOffsetMinutes) * time.Minute
	return s.ClientTimestamp.UTC().Add(offset).Format("2006-01-02")
}

// CheckInEvent 服务端确认后的打卡事件，对引擎只读，
// 状态的后续流转只能通过重新拉取观察到。
type CheckInEvent struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	Method          CheckInMethod `json:"method"`
	ServerTimestamp time.Time     `json:"server_timestamp"`
	Status          CheckInStatus `json:"status"`
	RiskScore       int           `json:"risk_score"`
}

// Qualifies 该事件是否计入连续打卡（rejected 不计）
func (e CheckInEvent) Qualifies() bool {
	return e.Status == CheckInStatusVerified || e.Status == CheckInStatusPending
}
