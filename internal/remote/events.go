package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/dto"
)

func eventPath(id string) string {
	return "/api/events/" + url.PathEscape(id)
}

func eventsFromDTO(list []*dto.EventDTO) []*domain.Event {
	out := make([]*domain.Event, 0, len(list))
	for _, e := range list {
		out = append(out, e.ToDomain())
	}
	return out
}

// ListEvents 列出日程本在 [From, To) 内的预约
func (c *Client) ListEvents(ctx context.Context, r domain.EventRange) ([]*domain.Event, error) {
	q := map[string]string{"book_uuid": r.BookUUID}
	if !r.From.IsZero() {
		q["from"] = strconv.FormatInt(r.From.UnixMilli(), 10)
	}
	if !r.To.IsZero() {
		q["to"] = strconv.FormatInt(r.To.UnixMilli(), 10)
	}
	if r.IncludeRemoved {
		q["include_removed"] = "true"
	}
	var out listEnvelope[*dto.EventDTO]
	if err := c.call(ctx, "ListEvents", http.MethodGet, "/api/events", q, nil, &out); err != nil {
		return nil, err
	}
	return eventsFromDTO(out.List), nil
}

// GetEvent 获取预约
func (c *Client) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	var out dto.EventDTO
	if err := c.call(ctx, "GetEvent", http.MethodGet, eventPath(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.ToDomain(), nil
}

// CreateEvent 创建预约，档案号为空时创建独立档案
func (c *Client) CreateEvent(ctx context.Context, req *dto.EventCreateRequest) (*domain.Event, error) {
	var out dto.EventDTO
	if err := c.call(ctx, "CreateEvent", http.MethodPost, "/api/events", nil, req, &out); err != nil {
		return nil, err
	}
	return out.ToDomain(), nil
}

// RescheduleEvent returns the soft-removed original and its successor
// RescheduleEvent 返回已软删除的原预约及新预约
func (c *Client) RescheduleEvent(ctx context.Context, id string, start time.Time, end *time.Time) (*domain.Event, *domain.Event, error) {
	body := &dto.EventRescheduleRequest{StartTime: start.UnixMilli()}
	if end != nil {
		v := end.UnixMilli()
		body.EndTime = &v
	}
	var out dto.EventRescheduleResponse
	if err := c.call(ctx, "RescheduleEvent", http.MethodPost, eventPath(id)+"/reschedule", nil, body, &out); err != nil {
		return nil, nil, err
	}
	return out.Original.ToDomain(), out.Event.ToDomain(), nil
}

// RefillRecordNumber 补填档案号
func (c *Client) RefillRecordNumber(ctx context.Context, id, recordNumber string) (*domain.Event, error) {
	var out dto.EventDTO
	body := &dto.RecordNumberRefillRequest{RecordNumber: recordNumber}
	if err := c.call(ctx, "RefillRecordNumber", http.MethodPut, eventPath(id)+"/record-number", nil, body, &out); err != nil {
		return nil, err
	}
	return out.ToDomain(), nil
}

// ResolveRecord 按档案号解析档案
func (c *Client) ResolveRecord(ctx context.Context, recordNumber, name, phone string) (*domain.Record, error) {
	var out dto.RecordDTO
	body := &dto.RecordResolveRequest{RecordNumber: recordNumber, Name: name, Phone: phone}
	if err := c.call(ctx, "ResolveRecord", http.MethodPost, "/api/records/resolve", nil, body, &out); err != nil {
		return nil, err
	}
	return out.ToDomain()
}

// UpdateRecord 按版本更新档案
func (c *Client) UpdateRecord(ctx context.Context, uuid, name, phone string, expectedVersion int64) (*domain.Record, error) {
	var out dto.RecordDTO
	body := &dto.RecordUpdateRequest{Name: name, Phone: phone, ExpectedVersion: expectedVersion}
	if err := c.call(ctx, "UpdateRecord", http.MethodPut, "/api/records/"+url.PathEscape(uuid), nil, body, &out); err != nil {
		return nil, err
	}
	return out.ToDomain()
}

// Health 检查服务端是否可达
func (c *Client) Health(ctx context.Context) (*dto.HealthResponse, error) {
	var out dto.HealthResponse
	if err := c.call(ctx, "Health", http.MethodGet, "/api/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
