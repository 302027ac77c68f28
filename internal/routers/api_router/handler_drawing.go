package api_router

import (
	"github.com/haierkeys/schedule-note-sync/internal/app"
	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/dto"
	pkgapp "github.com/haierkeys/schedule-note-sync/pkg/app"
	"github.com/haierkeys/schedule-note-sync/pkg/code"

	"github.com/gin-gonic/gin"
)

// DrawingHandler 日程手绘 API 路由处理器
type DrawingHandler struct {
	*Handler
}

// NewDrawingHandler 创建 DrawingHandler 实例
func NewDrawingHandler(a *app.App) *DrawingHandler {
	return &DrawingHandler{Handler: NewHandler(a)}
}

// Get 获取手绘
func (h *DrawingHandler) Get(c *gin.Context) {
	params := &dto.DrawingKeyRequest{}
	if !h.bind(c, params) {
		return
	}
	key, err := params.Key()
	if err != nil {
		h.respondError(c, err, code.ErrorDrawingNotFound, "api_router.drawing.Get")
		return
	}
	d, err := h.App.DrawingService.Fetch(c.Request.Context(), key)
	if err != nil {
		h.respondError(c, err, code.ErrorDrawingNotFound, "api_router.drawing.Get")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(dto.DrawingFromDomain(d)))
}

// List 按日期范围列出手绘
func (h *DrawingHandler) List(c *gin.Context) {
	params := &dto.DrawingRangeRequest{}
	if !h.bind(c, params) {
		return
	}
	r, err := params.Range()
	if err != nil {
		h.respondError(c, err, code.ErrorDrawingNotFound, "api_router.drawing.List")
		return
	}
	list, err := h.App.DrawingService.List(c.Request.Context(), r)
	if err != nil {
		h.respondError(c, err, code.ErrorDrawingNotFound, "api_router.drawing.List")
		return
	}
	out := make([]*dto.DrawingDTO, 0, len(list))
	for _, d := range list {
		out = append(out, dto.DrawingFromDomain(d))
	}
	pkgapp.NewResponse(c).ToResponseList(code.Success, out, len(out))
}

// Save 按版本保存手绘
func (h *DrawingHandler) Save(c *gin.Context) {
	params := &dto.DrawingSaveRequest{}
	if !h.bind(c, params) {
		return
	}
	key, err := params.Key()
	if err != nil {
		h.respondError(c, err, code.ErrorDrawingNotFound, "api_router.drawing.Save")
		return
	}
	strokes := params.Strokes
	if strokes == nil {
		strokes = []domain.Stroke{}
	}
	d, err := h.App.DrawingService.Save(c.Request.Context(), &domain.ScheduleDrawing{Key: key, Strokes: strokes, Version: params.ExpectedVersion}, params.ExpectedVersion)
	if err != nil {
		h.respondError(c, err, code.ErrorDrawingNotFound, "api_router.drawing.Save")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.SuccessUpdate.WithData(dto.DrawingFromDomain(d)))
}

// Delete 删除手绘
func (h *DrawingHandler) Delete(c *gin.Context) {
	params := &dto.DrawingKeyRequest{}
	if !h.bind(c, params) {
		return
	}
	key, err := params.Key()
	if err != nil {
		h.respondError(c, err, code.ErrorDrawingNotFound, "api_router.drawing.Delete")
		return
	}
	if err := h.App.DrawingService.Delete(c.Request.Context(), key); err != nil {
		h.respondError(c, err, code.ErrorDrawingNotFound, "api_router.drawing.Delete")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.SuccessDelete)
}
