package dao

import (
	"context"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/model"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

type eventRepository struct {
	dao *Dao
}

// NewEventRepository 创建预约仓储
func NewEventRepository(dao *Dao) domain.EventRepository {
	return &eventRepository{dao: dao}
}

var _ domain.EventRepository = (*eventRepository)(nil)

func (r *eventRepository) toDomain(m *model.Event) *domain.Event {
	e := &domain.Event{
		ID:              m.ID,
		BookUUID:        m.BookUUID,
		RecordUUID:      m.RecordUUID,
		StartTime:       fromMs(m.StartTime),
		IsRemoved:       m.IsRemoved,
		RemovalReason:   m.RemovalReason,
		OriginalEventID: m.OriginalEventID,
		IsChecked:       m.IsChecked,
		CreatedAt:       fromMs(m.CreatedAt),
		UpdatedAt:       fromMs(m.UpdatedAt),
		EventTypes:      []string{},
	}
	if m.EndTime != nil {
		end := fromMs(*m.EndTime)
		e.EndTime = &end
	}
	if m.NewEventID != nil {
		e.NewEventID = *m.NewEventID
	}
	if m.EventTypes != "" {
		_ = sonic.UnmarshalString(m.EventTypes, &e.EventTypes)
	}
	return e
}

func (r *eventRepository) toModel(e *domain.Event) (*model.Event, error) {
	types := e.EventTypes
	if types == nil {
		types = []string{}
	}
	encoded, err := sonic.MarshalString(types)
	if err != nil {
		return nil, errors.Wrap(err, "encode event types")
	}
	m := &model.Event{
		ID:              e.ID,
		BookUUID:        e.BookUUID,
		RecordUUID:      e.RecordUUID,
		StartTime:       ms(e.StartTime),
		IsRemoved:       e.IsRemoved,
		RemovalReason:   e.RemovalReason,
		OriginalEventID: e.OriginalEventID,
		EventTypes:      encoded,
		IsChecked:       e.IsChecked,
	}
	if e.EndTime != nil {
		end := ms(*e.EndTime)
		m.EndTime = &end
	}
	if e.NewEventID != "" {
		id := e.NewEventID
		m.NewEventID = &id
	}
	return m, nil
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	var m model.Event
	if err := r.dao.DB(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return r.toDomain(&m), nil
}

func (r *eventRepository) Create(ctx context.Context, event *domain.Event) (*domain.Event, error) {
	m, err := r.toModel(event)
	if err != nil {
		return nil, err
	}
	if err := r.dao.DB(ctx).Create(m).Error; err != nil {
		return nil, errors.Wrap(err, "create event")
	}
	return r.toDomain(m), nil
}

func (r *eventRepository) List(ctx context.Context, rg domain.EventRange) ([]*domain.Event, error) {
	q := r.dao.DB(ctx).Model(&model.Event{}).Where("book_uuid = ?", rg.BookUUID)
	if !rg.From.IsZero() {
		q = q.Where("start_time >= ?", ms(rg.From))
	}
	if !rg.To.IsZero() {
		q = q.Where("start_time < ?", ms(rg.To))
	}
	if !rg.IncludeRemoved {
		q = q.Where("is_removed = ?", false)
	}
	var rows []*model.Event
	if err := q.Order("start_time ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	out := make([]*domain.Event, 0, len(rows))
	for _, m := range rows {
		out = append(out, r.toDomain(m))
	}
	return out, nil
}

func (r *eventRepository) MarkRescheduled(ctx context.Context, id, newEventID string) error {
	res := r.dao.DB(ctx).Model(&model.Event{}).
		Where("id = ? AND new_event_id IS NULL AND is_removed = ?", id, false).
		Updates(map[string]any{
			"new_event_id":   newEventID,
			"is_removed":     true,
			"removal_reason": domain.RemovalReasonRescheduled,
			"updated_at":     time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "mark event rescheduled")
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrAlreadyRescheduled
	}
	return nil
}

func (r *eventRepository) UpdateRecordUUID(ctx context.Context, id, recordUUID string) error {
	res := r.dao.DB(ctx).Model(&model.Event{}).Where("id = ?", id).
		Updates(map[string]any{"record_uuid": recordUUID, "updated_at": time.Now().UnixMilli()})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update event record")
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *eventRepository) CountByRecord(ctx context.Context, recordUUID string) (int64, error) {
	var n int64
	err := r.dao.DB(ctx).Model(&model.Event{}).Where("record_uuid = ?", recordUUID).Count(&n).Error
	return n, errors.Wrap(err, "count events by record")
}
