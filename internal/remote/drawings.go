package remote

import (
	"context"
	"net/http"
	"strconv"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/dto"
	"github.com/haierkeys/schedule-note-sync/pkg/util"
)

func drawingQuery(key domain.DrawingKey) map[string]string {
	return map[string]string{
		"book_uuid": key.BookUUID,
		"date":      util.FormatDay(key.Date),
		"view_mode": strconv.Itoa(key.ViewMode),
	}
}

// FetchDrawing 获取手绘
func (c *Client) FetchDrawing(ctx context.Context, key domain.DrawingKey) (*domain.ScheduleDrawing, error) {
	var out dto.DrawingDTO
	if err := c.call(ctx, "FetchDrawing", http.MethodGet, "/api/drawings", drawingQuery(key), nil, &out); err != nil {
		return nil, err
	}
	return out.ToDomain()
}

// SaveDrawing 携带期望版本推送手绘
func (c *Client) SaveDrawing(ctx context.Context, drawing *domain.ScheduleDrawing, expectedVersion int64) (*domain.ScheduleDrawing, error) {
	strokes := drawing.Strokes
	if strokes == nil {
		strokes = []domain.Stroke{}
	}
	body := map[string]any{"strokes": strokes, "expectedVersion": expectedVersion}
	var out dto.DrawingDTO
	if err := c.call(ctx, "SaveDrawing", http.MethodPut, "/api/drawings", drawingQuery(drawing.Key), body, &out); err != nil {
		if ce, ok := domain.AsConflict(err); ok && ce.Key == "" {
			ce.Kind, ce.Key, ce.ExpectedVersion = string(domain.KindDrawing), drawing.Key.String(), expectedVersion
		}
		return nil, err
	}
	return out.ToDomain()
}

// DeleteDrawing 删除手绘
func (c *Client) DeleteDrawing(ctx context.Context, key domain.DrawingKey) error {
	return c.call(ctx, "DeleteDrawing", http.MethodDelete, "/api/drawings", drawingQuery(key), nil, nil)
}

// ListDrawings 列出日期范围内的手绘
func (c *Client) ListDrawings(ctx context.Context, r domain.DrawingRange) ([]*domain.ScheduleDrawing, error) {
	q := map[string]string{
		"book_uuid": r.BookUUID,
		"from":      util.FormatDay(r.From),
		"to":        util.FormatDay(r.To),
	}
	if r.ViewMode != nil {
		q["view_mode"] = strconv.Itoa(*r.ViewMode)
	}
	var out listEnvelope[dto.DrawingDTO]
	if err := c.call(ctx, "ListDrawings", http.MethodGet, "/api/drawings/range", q, nil, &out); err != nil {
		return nil, err
	}
	list := make([]*domain.ScheduleDrawing, 0, len(out.List))
	for i := range out.List {
		d, err := out.List[i].ToDomain()
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, nil
}
