package handler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"Habitude/internal/middleware"
	"Habitude/internal/model"
	"Habitude/internal/service"
	pkgerrors "Habitude/pkg/errors"
	"Habitude/pkg/fingerprint"
	"Habitude/pkg/response"
)

// SubmitCheckIn 提交打卡
// POST /v1/check-ins
func SubmitCheckIn(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("user ID not found in context"))
		return
	}

	var req model.SubmitCheckInRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	sub, err := buildSubmission(userID, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	result, err := service.Sync().Submit(ctx, sub)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// GetTodayCheckIn 查询当天打卡状态, 每次登录加载时需要
// GET /v1/check-ins/today
func GetTodayCheckIn(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("user ID not found in context"))
		return
	}

	result, err := service.Sync().HasCheckedInToday(ctx, userID, offsetMinutes(c))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// GetCheckInHistory 分页查询历史打卡记录
// GET /v1/check-ins/history
func GetCheckInHistory(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("user ID not found in context"))
		return
	}

	var query model.CheckInHistoryQuery
	if err := c.BindQuery(&query); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	page, err := service.Sync().History(ctx, userID, query.Limit, query.Cursor)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, page)
}

// GetStreak 查询连续打卡
// GET /v1/check-ins/streak
func GetStreak(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("user ID not found in context"))
		return
	}

	result, err := service.Sync().Streak(ctx, userID, offsetMinutes(c))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, result)
}

// SyncNow 主动触发一次离线队列排空（重连信号或用户手动操作）
// POST /v1/check-ins/sync
func SyncNow(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("user ID not found in context"))
		return
	}

	report, err := service.Sync().Drain(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, report)
}

// buildSubmission 把请求折算成不可变的提交对象
func buildSubmission(userID string, req model.SubmitCheckInRequest) (model.CheckInSubmission, error) {
	var sub model.CheckInSubmission

	method := model.CheckInMethod(req.Method)
	switch method {
	case model.CheckInMethodManual, model.CheckInMethodGPS, model.CheckInMethodQR:
	default:
		return sub, pkgerrors.CheckInInvalid
	}

	ts, err := time.Parse(time.RFC3339, req.ClientTimestamp)
	if err != nil {
		return sub, pkgerrors.CheckInInvalid
	}

	if method == model.CheckInMethodGPS && req.Geo == nil {
		return sub, pkgerrors.GeoRequired
	}
	if method == model.CheckInMethodQR && req.QRSessionID == "" {
		return sub, pkgerrors.QRSessionRequired
	}

	sub = model.CheckInSubmission{
		UserID:           userID,
		Method:           method,
		ClientTimestamp:  ts,
		UTCOffsetMinutes: req.UTCOffsetMinutes,
		QRSessionID:      req.QRSessionID,
	}

	if method == model.CheckInMethodGPS {
		sub.Geo = req.Geo
	}

	switch {
	case req.DeviceFingerprint != "":
		sub.DeviceFingerprint = req.DeviceFingerprint
		sub.FingerprintDegraded = fingerprint.IsDegraded(req.DeviceFingerprint)
	case req.Device != nil:
		fp := fingerprint.Generate(*req.Device)
		sub.DeviceFingerprint = fp.Value
		sub.FingerprintDegraded = fp.Degraded
	default:
		sub.FingerprintDegraded = true
	}

	return sub, nil
}

func offsetMinutes(c *app.RequestContext) int {
	offset, ok := c.GetQuery("utc_offset_minutes")
	if !ok {
		return 0
	}

	minutes, err := strconv.Atoi(offset)
	if err != nil {
		return 0
	}
	return minutes
}
