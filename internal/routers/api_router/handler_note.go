package api_router

import (
	"errors"

	"github.com/haierkeys/schedule-note-sync/internal/app"
	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/dto"
	"github.com/haierkeys/schedule-note-sync/internal/middleware"
	pkgapp "github.com/haierkeys/schedule-note-sync/pkg/app"
	"github.com/haierkeys/schedule-note-sync/pkg/code"

	"github.com/gin-gonic/gin"
)

// NoteHandler 笔记 API 路由处理器
type NoteHandler struct {
	*Handler
}

// NewNoteHandler 创建 NoteHandler 实例
func NewNoteHandler(a *app.App) *NoteHandler {
	return &NoteHandler{Handler: NewHandler(a)}
}

// Get 获取档案的笔记
func (h *NoteHandler) Get(c *gin.Context) {
	params := &dto.NoteRecordRequest{}
	if !h.bind(c, params) {
		return
	}
	n, err := h.App.NoteService.Fetch(c.Request.Context(), params.RecordUUID)
	if err != nil {
		h.respondError(c, err, code.ErrorNoteNotFound, "api_router.note.Get")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(dto.NoteFromDomain(n)))
}

// GetByEvent 通过预约获取笔记
func (h *NoteHandler) GetByEvent(c *gin.Context) {
	params := &dto.EventIDRequest{}
	if !h.bind(c, params) {
		return
	}
	n, err := h.App.NoteService.FetchByEvent(c.Request.Context(), params.ID)
	if err != nil {
		h.respondError(c, err, code.ErrorNoteNotFound, "api_router.note.GetByEvent")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(dto.NoteFromDomain(n)))
}

// Save 按版本保存笔记，版本不一致返回 409 及服务端版本
func (h *NoteHandler) Save(c *gin.Context) {
	params := &dto.NoteSaveRequest{}
	if !h.bind(c, params) {
		return
	}
	if params.FormatVersion > domain.NoteFormatVersion {
		pkgapp.NewResponse(c).ToResponse(code.ErrorInvalidParams.WithDetails("unsupported formatVersion"))
		return
	}
	n, err := h.App.NoteService.Save(c.Request.Context(), params.ToDomain(), params.ExpectedVersion)
	if err != nil {
		h.respondError(c, err, code.ErrorRecordNotFound, "api_router.note.Save")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.SuccessUpdate.WithData(dto.NoteFromDomain(n)))
}

// Delete 删除笔记
func (h *NoteHandler) Delete(c *gin.Context) {
	params := &dto.NoteRecordRequest{}
	if !h.bind(c, params) {
		return
	}
	if err := h.App.NoteService.Delete(c.Request.Context(), params.RecordUUID); err != nil {
		h.respondError(c, err, code.ErrorNoteNotFound, "api_router.note.Delete")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.SuccessDelete)
}

// AcquireLease 获取笔记编辑租约
func (h *NoteHandler) AcquireLease(c *gin.Context) {
	params := &dto.NoteRecordRequest{}
	if !h.bind(c, params) {
		return
	}
	n, err := h.App.NoteService.AcquireLease(c.Request.Context(), params.RecordUUID, middleware.GetDeviceID(c))
	if err != nil {
		if errors.Is(err, domain.ErrLeaseHeld) && n != nil {
			pkgapp.NewResponse(c).ToResponse(code.ErrorLeaseHeld.WithData(dto.NoteFromDomain(n)))
			return
		}
		h.respondError(c, err, code.ErrorNoteNotFound, "api_router.note.AcquireLease")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(dto.NoteFromDomain(n)))
}

// ReleaseLease 释放笔记编辑租约
func (h *NoteHandler) ReleaseLease(c *gin.Context) {
	params := &dto.NoteRecordRequest{}
	if !h.bind(c, params) {
		return
	}
	if err := h.App.NoteService.ReleaseLease(c.Request.Context(), params.RecordUUID, middleware.GetDeviceID(c)); err != nil {
		h.respondError(c, err, code.ErrorNoteNotFound, "api_router.note.ReleaseLease")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.SuccessRelease)
}
