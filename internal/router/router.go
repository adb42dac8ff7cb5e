package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"Habitude/internal/handler"
	"Habitude/internal/middleware"
)

func Register(h *server.Hertz) {

	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())

	v1 := h.Group("/v1")

	// 认证相关路由
	auth := v1.Group("/auth")
	{
		auth.POST("/token", handler.IssueToken)
	}

	// 打卡路由
	checkIns := v1.Group("/check-ins")
	checkIns.Use(middleware.AuthMiddleware())
	{
		checkIns.POST("", handler.SubmitCheckIn)
		checkIns.GET("/today", handler.GetTodayCheckIn)
		checkIns.GET("/history", handler.GetCheckInHistory)
		checkIns.GET("/streak", handler.GetStreak)
		checkIns.POST("/sync", handler.SyncNow)
	}
}
