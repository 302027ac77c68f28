package api_router

import (
	"github.com/haierkeys/schedule-note-sync/internal/app"
	"github.com/haierkeys/schedule-note-sync/internal/dto"
	pkgapp "github.com/haierkeys/schedule-note-sync/pkg/app"
	"github.com/haierkeys/schedule-note-sync/pkg/code"

	"github.com/gin-gonic/gin"
)

// RecordHandler 档案 API 路由处理器
type RecordHandler struct {
	*Handler
}

// NewRecordHandler 创建 RecordHandler 实例
func NewRecordHandler(a *app.App) *RecordHandler {
	return &RecordHandler{Handler: NewHandler(a)}
}

// Resolve 解析档案号为规范档案
func (h *RecordHandler) Resolve(c *gin.Context) {
	params := &dto.RecordResolveRequest{}
	if !h.bind(c, params) {
		return
	}
	rec, err := h.App.RecordService.Resolve(c.Request.Context(), params.RecordNumber, params.Name, params.Phone)
	if err != nil {
		h.respondError(c, err, code.ErrorRecordNotFound, "api_router.record.Resolve")
		return
	}
	out, err := dto.RecordFromDomain(rec)
	if err != nil {
		h.respondError(c, err, code.ErrorRecordNotFound, "api_router.record.Resolve")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(out))
}

// Update 按版本更新档案
func (h *RecordHandler) Update(c *gin.Context) {
	params := &dto.RecordUpdateRequest{}
	if !h.bind(c, params) {
		return
	}
	rec, err := h.App.RecordService.Update(c.Request.Context(), params.UUID, params.Name, params.Phone, params.ExpectedVersion)
	if err != nil {
		h.respondError(c, err, code.ErrorRecordNotFound, "api_router.record.Update")
		return
	}
	out, err := dto.RecordFromDomain(rec)
	if err != nil {
		h.respondError(c, err, code.ErrorRecordNotFound, "api_router.record.Update")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.SuccessUpdate.WithData(out))
}

// Delete 删除档案及其笔记
func (h *RecordHandler) Delete(c *gin.Context) {
	params := &dto.RecordUUIDRequest{}
	if !h.bind(c, params) {
		return
	}
	if err := h.App.RecordService.Delete(c.Request.Context(), params.UUID); err != nil {
		h.respondError(c, err, code.ErrorRecordNotFound, "api_router.record.Delete")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.SuccessDelete)
}
