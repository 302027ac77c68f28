package api_router

import (
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/app"
	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/dto"
	"github.com/haierkeys/schedule-note-sync/internal/service"
	pkgapp "github.com/haierkeys/schedule-note-sync/pkg/app"
	"github.com/haierkeys/schedule-note-sync/pkg/code"

	"github.com/gin-gonic/gin"
)

// EventHandler 预约 API 路由处理器
type EventHandler struct {
	*Handler
}

// NewEventHandler 创建 EventHandler 实例
func NewEventHandler(a *app.App) *EventHandler {
	return &EventHandler{Handler: NewHandler(a)}
}

// Create 创建预约
func (h *EventHandler) Create(c *gin.Context) {
	params := &dto.EventCreateRequest{}
	if !h.bind(c, params) {
		return
	}
	ev, err := h.App.EventService.Create(c.Request.Context(), &service.EventCreateParams{
		BookUUID:     params.BookUUID,
		RecordNumber: params.RecordNumber,
		Name:         params.Name,
		Phone:        params.Phone,
		StartTime:    time.UnixMilli(params.StartTime).UTC(),
		EndTime:      dto.MsPtrToTime(params.EndTime),
		EventTypes:   params.EventTypes,
	})
	if err != nil {
		h.respondError(c, err, code.ErrorRecordNotFound, "api_router.event.Create")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.SuccessCreate.WithData(dto.EventFromDomain(ev)))
}

// Get 获取预约
func (h *EventHandler) Get(c *gin.Context) {
	params := &dto.EventIDRequest{}
	if !h.bind(c, params) {
		return
	}
	ev, err := h.App.EventService.Get(c.Request.Context(), params.ID)
	if err != nil {
		h.respondError(c, err, code.ErrorEventNotFound, "api_router.event.Get")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(dto.EventFromDomain(ev)))
}

// List 列出日程本在时间范围内的预约
func (h *EventHandler) List(c *gin.Context) {
	params := &dto.EventListRequest{}
	if !h.bind(c, params) {
		return
	}
	r := domain.EventRange{BookUUID: params.BookUUID, IncludeRemoved: params.IncludeRemoved}
	if params.From > 0 {
		r.From = time.UnixMilli(params.From).UTC()
	}
	if params.To > 0 {
		r.To = time.UnixMilli(params.To).UTC()
	}
	list, err := h.App.EventService.List(c.Request.Context(), r)
	if err != nil {
		h.respondError(c, err, code.ErrorEventNotFound, "api_router.event.List")
		return
	}
	out := make([]*dto.EventDTO, 0, len(list))
	for _, e := range list {
		out = append(out, dto.EventFromDomain(e))
	}
	pkgapp.NewResponse(c).ToResponseList(code.Success, out, len(out))
}

// Reschedule 改期预约
func (h *EventHandler) Reschedule(c *gin.Context) {
	params := &dto.EventRescheduleRequest{}
	if !h.bind(c, params) {
		return
	}
	original, next, err := h.App.EventService.Reschedule(c.Request.Context(), params.ID, time.UnixMilli(params.StartTime).UTC(), dto.MsPtrToTime(params.EndTime))
	if err != nil {
		h.respondError(c, err, code.ErrorEventNotFound, "api_router.event.Reschedule")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.SuccessCreate.WithData(dto.EventRescheduleResponse{
		Original: dto.EventFromDomain(original),
		Event:    dto.EventFromDomain(next),
	}))
}

// RefillRecordNumber 补填预约的档案号
func (h *EventHandler) RefillRecordNumber(c *gin.Context) {
	params := &dto.RecordNumberRefillRequest{}
	if !h.bind(c, params) {
		return
	}
	ev, err := h.App.EventService.RefillRecordNumber(c.Request.Context(), params.ID, params.RecordNumber)
	if err != nil {
		h.respondError(c, err, code.ErrorEventNotFound, "api_router.event.RefillRecordNumber")
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.SuccessUpdate.WithData(dto.EventFromDomain(ev)))
}
