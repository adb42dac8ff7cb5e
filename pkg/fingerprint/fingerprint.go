package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// 设备指纹：把客户端被动上报的环境信号拼接后做 sha256 + hex，
// 得到一个会话内稳定、跨会话尽量稳定的标识。信号缺失时降级为空串参与拼接，
// 绝不因为某个信号拿不到而报错。

// DegradedPrefix 降级指纹的标记前缀，风险评分会把它按"缺失指纹"处理
const DegradedPrefix = "ua:"

// Signals 客户端被动采集到的环境信号，任何字段都允许为零值
type Signals struct {
	UserAgent    string  `json:"user_agent"`
	Language     string  `json:"language"`
	Timezone     string  `json:"timezone"`
	ScreenWidth  int     `json:"screen_width"`
	ScreenHeight int     `json:"screen_height"`
	PixelRatio   float64 `json:"pixel_ratio"`
	CanvasDigest string  `json:"canvas_digest"` // 客户端渲染画布快照的摘要
}

// Fingerprint 生成结果
type Fingerprint struct {
	Value    string `json:"value"`
	Degraded bool   `json:"degraded"`
}

// Generate 由环境信号派生指纹。只有 UserAgent 之外的信号全部缺失时才降级，
// 降级结果是带标记前缀的原始 UA，调用方必须把它当低可信指纹处理。
func Generate(s Signals) Fingerprint {
	if !s.hasCorroboration() {
		return Fingerprint{
			Value:    DegradedPrefix + s.UserAgent,
			Degraded: true,
		}
	}

	var sb strings.Builder
	sb.WriteString(s.UserAgent)
	sb.WriteString("|")
	sb.WriteString(s.Language)
	sb.WriteString("|")
	sb.WriteString(s.Timezone)
	sb.WriteString("|")
	sb.WriteString(resolution(s.ScreenWidth, s.ScreenHeight, s.PixelRatio))
	sb.WriteString("|")
	sb.WriteString(s.CanvasDigest)

	sum := sha256.Sum256([]byte(sb.String()))

	return Fingerprint{Value: hex.EncodeToString(sum[:])}
}

// IsDegraded 判断一个已有指纹串是否为降级指纹（空串同样视为降级）
func IsDegraded(value string) bool {
	return value == "" || strings.HasPrefix(value, DegradedPrefix)
}

func (s Signals) hasCorroboration() bool {
	return s.Language != "" ||
		s.Timezone != "" ||
		s.ScreenWidth > 0 ||
		s.ScreenHeight > 0 ||
		s.PixelRatio > 0 ||
		s.CanvasDigest != ""
}

func resolution(w, h int, ratio float64) string {
	if w <= 0 && h <= 0 {
		return ""
	}

	res := strconv.Itoa(w) + "x" + strconv.Itoa(h)
	if ratio > 0 {
		res += "@" + strconv.FormatFloat(ratio, 'f', -1, 64)
	}
	return res
}
