package dto

import (
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
)

// EventDTO 预约数据传输对象，时间均为 Unix 毫秒
type EventDTO struct {
	ID              string   `json:"id"`
	BookUUID        string   `json:"bookUuid"`
	RecordUUID      string   `json:"recordUuid"`
	StartTime       int64    `json:"startTime"`
	EndTime         *int64   `json:"endTime,omitempty"`
	IsRemoved       bool     `json:"isRemoved"`
	RemovalReason   string   `json:"removalReason,omitempty"`
	OriginalEventID string   `json:"originalEventId,omitempty"`
	NewEventID      string   `json:"newEventId,omitempty"`
	EventTypes      []string `json:"eventTypes"`
	IsChecked       bool     `json:"isChecked"`
	HasNote         bool     `json:"hasNote"`
	UpdatedAt       int64    `json:"updatedAt"`
}

// EventCreateRequest 创建预约请求参数
type EventCreateRequest struct {
	BookUUID     string   `json:"bookUuid" form:"bookUuid" binding:"required,max=36"`
	RecordNumber string   `json:"recordNumber" form:"recordNumber" binding:"max=64"`
	Name         string   `json:"name" form:"name" binding:"max=255"`
	Phone        string   `json:"phone" form:"phone" binding:"max=64"`
	StartTime    int64    `json:"startTime" form:"startTime" binding:"required"`
	EndTime      *int64   `json:"endTime" form:"endTime"`
	EventTypes   []string `json:"eventTypes" form:"eventTypes" binding:"dive,max=64"`
}

// EventIDRequest 以预约 ID 为参数的请求
type EventIDRequest struct {
	ID string `json:"-" uri:"id" binding:"required"`
}

// EventListRequest lists a book's events with start time in [from, to)
// EventListRequest 列出开始时间在 [from, to) 内的预约
type EventListRequest struct {
	BookUUID       string `json:"bookUuid" form:"book_uuid" binding:"required"`
	From           int64  `json:"from" form:"from"`
	To             int64  `json:"to" form:"to"`
	IncludeRemoved bool   `json:"includeRemoved" form:"include_removed"`
}

// EventRescheduleRequest 改期请求参数
type EventRescheduleRequest struct {
	ID        string `json:"-" uri:"id" binding:"required"`
	StartTime int64  `json:"startTime" form:"startTime" binding:"required"`
	EndTime   *int64 `json:"endTime" form:"endTime"`
}

// EventRescheduleResponse 改期结果：原预约与新预约
type EventRescheduleResponse struct {
	Original *EventDTO `json:"original"`
	Event    *EventDTO `json:"event"`
}

// RecordNumberRefillRequest 补填档案号请求参数
type RecordNumberRefillRequest struct {
	ID           string `json:"-" uri:"id" binding:"required"`
	RecordNumber string `json:"recordNumber" form:"recordNumber" binding:"required,max=64"`
}

// EventFromDomain 领域预约转换为 DTO
func EventFromDomain(e *domain.Event) *EventDTO {
	if e == nil {
		return nil
	}
	out := &EventDTO{
		ID:              e.ID,
		BookUUID:        e.BookUUID,
		RecordUUID:      e.RecordUUID,
		StartTime:       e.StartTime.UnixMilli(),
		IsRemoved:       e.IsRemoved,
		RemovalReason:   e.RemovalReason,
		OriginalEventID: e.OriginalEventID,
		NewEventID:      e.NewEventID,
		EventTypes:      e.EventTypes,
		IsChecked:       e.IsChecked,
		HasNote:         e.HasNote,
		UpdatedAt:       e.UpdatedAt.UnixMilli(),
	}
	if out.EventTypes == nil {
		out.EventTypes = []string{}
	}
	if e.EndTime != nil {
		end := e.EndTime.UnixMilli()
		out.EndTime = &end
	}
	return out
}

// ToDomain DTO 转换为领域预约
func (d *EventDTO) ToDomain() *domain.Event {
	e := &domain.Event{
		ID:              d.ID,
		BookUUID:        d.BookUUID,
		RecordUUID:      d.RecordUUID,
		StartTime:       time.UnixMilli(d.StartTime).UTC(),
		IsRemoved:       d.IsRemoved,
		RemovalReason:   d.RemovalReason,
		OriginalEventID: d.OriginalEventID,
		NewEventID:      d.NewEventID,
		EventTypes:      d.EventTypes,
		IsChecked:       d.IsChecked,
		HasNote:         d.HasNote,
		UpdatedAt:       time.UnixMilli(d.UpdatedAt).UTC(),
	}
	if d.EndTime != nil {
		end := time.UnixMilli(*d.EndTime).UTC()
		e.EndTime = &end
	}
	return e
}

// MsPtrToTime 可空毫秒时间戳转换为可空时间
func MsPtrToTime(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.UnixMilli(*v).UTC()
	return &t
}
