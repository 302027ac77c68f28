package dto

import (
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/pkg/util"
)

// DrawingDTO 日程手绘数据传输对象，Date 格式为 2006-01-02
type DrawingDTO struct {
	BookUUID  string          `json:"bookUuid"`
	Date      string          `json:"date"`
	ViewMode  int             `json:"viewMode"`
	Strokes   []domain.Stroke `json:"strokes"`
	Version   int64           `json:"version"`
	UpdatedAt int64           `json:"updatedAt"`
}

// DrawingKeyRequest 手绘键查询参数
type DrawingKeyRequest struct {
	BookUUID string `json:"bookUuid" form:"book_uuid" binding:"required,max=36"`
	Date     string `json:"date" form:"date" binding:"required"`
	ViewMode int    `json:"viewMode" form:"view_mode" binding:"gte=0"`
}

// DrawingSaveRequest 保存手绘请求参数，键来自查询参数
type DrawingSaveRequest struct {
	BookUUID        string          `json:"-" form:"book_uuid" binding:"required,max=36"`
	Date            string          `json:"-" form:"date" binding:"required"`
	ViewMode        int             `json:"-" form:"view_mode" binding:"gte=0"`
	Strokes         []domain.Stroke `json:"strokes"`
	ExpectedVersion int64           `json:"expectedVersion" binding:"gte=0"`
}

// DrawingRangeRequest lists drawings with date in [from, to)
// DrawingRangeRequest 列出日期在 [from, to) 内的手绘
type DrawingRangeRequest struct {
	BookUUID string `json:"bookUuid" form:"book_uuid" binding:"required,max=36"`
	From     string `json:"from" form:"from" binding:"required"`
	To       string `json:"to" form:"to" binding:"required"`
	ViewMode *int   `json:"viewMode" form:"view_mode"`
}

// Key 解析手绘键
func (r *DrawingKeyRequest) Key() (domain.DrawingKey, error) {
	return parseDrawingKey(r.BookUUID, r.Date, r.ViewMode)
}

// Key 解析手绘键
func (r *DrawingSaveRequest) Key() (domain.DrawingKey, error) {
	return parseDrawingKey(r.BookUUID, r.Date, r.ViewMode)
}

// Range 解析查询范围
func (r *DrawingRangeRequest) Range() (domain.DrawingRange, error) {
	from, err := util.ParseDay(r.From)
	if err != nil {
		return domain.DrawingRange{}, domain.NewValidationError("from", err.Error())
	}
	to, err := util.ParseDay(r.To)
	if err != nil {
		return domain.DrawingRange{}, domain.NewValidationError("to", err.Error())
	}
	return domain.DrawingRange{BookUUID: r.BookUUID, From: from, To: to, ViewMode: r.ViewMode}, nil
}

func parseDrawingKey(book, date string, mode int) (domain.DrawingKey, error) {
	day, err := util.ParseDay(date)
	if err != nil {
		return domain.DrawingKey{}, domain.NewValidationError("date", err.Error())
	}
	return domain.NewDrawingKey(book, day, mode), nil
}

// DrawingFromDomain 领域手绘转换为 DTO
func DrawingFromDomain(d *domain.ScheduleDrawing) *DrawingDTO {
	if d == nil {
		return nil
	}
	strokes := d.Strokes
	if strokes == nil {
		strokes = []domain.Stroke{}
	}
	return &DrawingDTO{
		BookUUID:  d.Key.BookUUID,
		Date:      util.FormatDay(d.Key.Date),
		ViewMode:  d.Key.ViewMode,
		Strokes:   strokes,
		Version:   d.Version,
		UpdatedAt: d.UpdatedAt.UnixMilli(),
	}
}

// ToDomain DTO 转换为领域手绘
func (d *DrawingDTO) ToDomain() (*domain.ScheduleDrawing, error) {
	key, err := parseDrawingKey(d.BookUUID, d.Date, d.ViewMode)
	if err != nil {
		return nil, err
	}
	out := &domain.ScheduleDrawing{Key: key, Strokes: d.Strokes, Version: d.Version}
	if out.Strokes == nil {
		out.Strokes = []domain.Stroke{}
	}
	if d.UpdatedAt > 0 {
		out.UpdatedAt = time.UnixMilli(d.UpdatedAt).UTC()
	}
	return out, nil
}
