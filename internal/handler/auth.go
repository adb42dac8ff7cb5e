package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"Habitude/internal/model"
	pkgerrors "Habitude/pkg/errors"
	"Habitude/pkg/response"
	"Habitude/pkg/token"
)

// IssueToken 为指定用户签发 access token。
// 真正的登录属于外围应用，这个端点只是让本服务的接口可以被独立调通。
// POST /v1/auth/token
func IssueToken(ctx context.Context, c *app.RequestContext) {
	var req model.IssueTokenRequest
	if err := c.BindAndValidate(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	if req.UserID == "" {
		response.Error(ctx, c, pkgerrors.InvalidUserID)
		return
	}

	accessToken, expiresIn, err := token.GenerateToken(req.UserID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, model.IssueTokenData{
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
	})
}
