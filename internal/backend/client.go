package backend

import (
	"context"
	"time"

	"Habitude/internal/model"
)

// Client 后端打卡 API 协作方。实现必须在网络边界把失败归类为
// 本包的 *Error，调用方只依赖 Kind。
type Client interface {
	// SubmitEvent 提交一次打卡，成功返回服务端确认的事件
	SubmitEvent(ctx context.Context, sub model.CheckInSubmission) (*model.CheckInEvent, error)

	// ListEvents 按 server_timestamp 降序拉取事件。
	// before 非空时只返回严格早于该时刻的事件（游标翻页用）。
	ListEvents(ctx context.Context, userID string, limit int, before *time.Time) ([]model.CheckInEvent, error)
}

// ConnectivityProbe 连通性探测能力。注入接口而不是探测真实网络，
// 让测试可以确定性地模拟在线/离线。
type ConnectivityProbe interface {
	Online(ctx context.Context) bool
}

// StaticProbe 固定返回值的探测器，未配置后端或测试时使用
type StaticProbe bool

func (p StaticProbe) Online(ctx context.Context) bool {
	return bool(p)
}
