// Package api_router 提供 HTTP API 路由处理器
package api_router

import (
	"context"
	"errors"

	"github.com/haierkeys/schedule-note-sync/internal/app"
	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/dto"
	"github.com/haierkeys/schedule-note-sync/internal/middleware"
	pkgapp "github.com/haierkeys/schedule-note-sync/pkg/app"
	"github.com/haierkeys/schedule-note-sync/pkg/code"
	"github.com/haierkeys/schedule-note-sync/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 基础 Handler 结构体，封装 App Container
// 所有 API Handler 都应该嵌入此结构体以获得依赖注入能力
type Handler struct {
	App *app.App
}

// NewHandler 创建基础 Handler 实例
func NewHandler(a *app.App) *Handler {
	return &Handler{App: a}
}

// bind 绑定并校验参数，失败时直接输出 400
func (h *Handler) bind(c *gin.Context, params any) bool {
	valid, errs := pkgapp.BindAndValid(c, params)
	if !valid {
		pkgapp.NewResponse(c).ToResponse(code.ErrorInvalidParams.WithDetails(errs.ErrorsToString()).WithData(errs.MapsToString()))
		return false
	}
	return true
}

// respondError maps a domain error onto the response code; notFound names what was missing
// respondError 将领域错误映射为响应码，notFound 指明缺失的实体
func (h *Handler) respondError(c *gin.Context, err error, notFound *code.Code, method string) {
	response := pkgapp.NewResponse(c)

	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		response.ToResponse(code.ErrorInvalidParams.WithDetails(ve.Error()))
		return
	case domain.IsNotFound(err):
		response.ToResponse(notFound)
		return
	case errors.Is(err, domain.ErrLeaseHeld):
		response.ToResponse(code.ErrorLeaseHeld)
		return
	case errors.Is(err, domain.ErrAlreadyRescheduled):
		response.ToResponse(code.ErrorEventRescheduled)
		return
	case errors.Is(err, domain.ErrRecordInUse):
		response.ToResponse(code.ErrorRecordInUse)
		return
	case errors.Is(err, context.DeadlineExceeded):
		response.ToResponse(code.ErrorRequestTimeout)
		return
	}
	if ce, ok := domain.AsConflict(err); ok {
		response.ToResponse(code.ErrorVersionConflict.WithData(dto.ConflictDTO{
			Kind:            ce.Kind,
			Key:             ce.Key,
			ExpectedVersion: ce.ExpectedVersion,
			ServerVersion:   ce.ServerVersion,
		}))
		return
	}

	h.App.Logger().Error(method,
		zap.String(logger.FieldTraceID, middleware.GetTraceIDFromGin(c)),
		zap.String(logger.FieldDeviceID, middleware.GetDeviceID(c)),
		zap.Error(err))
	response.ToResponse(code.ErrorServerInternal.WithDetails(err.Error()))
}
