package risk

import (
	"time"

	"Habitude/internal/model"
	"Habitude/pkg/fingerprint"
)

// 风险评分：纯函数，把一次打卡提交的元数据映射到 0~100 的可疑度。
// 分数只做参考，真正的接受/拒绝是服务端的事，这里绝不拦截提交。

const (
	// MaxScore 评分上限
	MaxScore = 100

	// ClockSkewThreshold 客户端时钟偏移超过该值视为可疑（陈旧/回放/篡改）
	ClockSkewThreshold = 120 * time.Second
	// ClockSkewWeight 时钟偏移权重
	ClockSkewWeight = 40

	// FingerprintWeight 指纹缺失或降级的权重
	FingerprintWeight = 30

	// GeoAccuracyThresholdMeters 定位精度阈值，超过（或缺失精度）则位置声明不可信
	GeoAccuracyThresholdMeters = 100.0
	// GeoWeight 定位风险权重，仅在携带 geo 时评估，最多计一次
	GeoWeight = 20

	// ManualMethodWeight 手动打卡没有传感器佐证的权重
	ManualMethodWeight = 20
)

// Score 计算提交的风险分，各因子独立单调，加和后封顶。
// 对任何输入都不会失败，空字段按最保守的方向计分。
func Score(sub model.CheckInSubmission, now time.Time) int {
	score := 0

	if skew := now.Sub(sub.ClientTimestamp); skew > ClockSkewThreshold || skew < -ClockSkewThreshold {
		score += ClockSkewWeight
	}

	if sub.FingerprintDegraded || fingerprint.IsDegraded(sub.DeviceFingerprint) {
		score += FingerprintWeight
	}

	if sub.Geo != nil {
		if sub.Geo.AccuracyMeters == nil || *sub.Geo.AccuracyMeters > GeoAccuracyThresholdMeters {
			score += GeoWeight
		}
	}

	if sub.Method == model.CheckInMethodManual {
		score += ManualMethodWeight
	}

	if score > MaxScore {
		score = MaxScore
	}

	return score
}
