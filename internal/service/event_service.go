package service

import (
	"context"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventCreateParams 创建预约参数
type EventCreateParams struct {
	BookUUID     string
	RecordNumber string
	Name         string
	Phone        string
	StartTime    time.Time
	EndTime      *time.Time
	EventTypes   []string
}

// EventService 预约业务服务接口
type EventService interface {
	// Create resolves the record by number and creates the event
	// Create 按档案号解析档案并创建预约
	Create(ctx context.Context, params *EventCreateParams) (*domain.Event, error)

	// Get 获取预约，HasNote 反映档案当前是否有笔记
	Get(ctx context.Context, id string) (*domain.Event, error)

	// List 列出日程本在时间范围内的预约
	List(ctx context.Context, r domain.EventRange) ([]*domain.Event, error)

	// Reschedule creates the follow-up event and soft-removes the original in one transaction
	// Reschedule 在同一事务中创建改期后的预约并软删除原预约
	Reschedule(ctx context.Context, id string, start time.Time, end *time.Time) (original *domain.Event, next *domain.Event, err error)

	// RefillRecordNumber points the event at the canonical record for number, keeping note content reachable
	// RefillRecordNumber 将预约指向档案号对应的规范档案，并保证笔记内容仍可访问
	RefillRecordNumber(ctx context.Context, id, number string) (*domain.Event, error)
}

type eventService struct {
	tx      domain.Transactor
	records domain.RecordRepository
	events  domain.EventRepository
	notes   domain.NoteRepository
	recSvc  RecordService
	logger  *zap.Logger
}

// NewEventService 创建 EventService 实例
func NewEventService(tx domain.Transactor, records domain.RecordRepository, events domain.EventRepository, notes domain.NoteRepository, recSvc RecordService, lg *zap.Logger) EventService {
	return &eventService{tx: tx, records: records, events: events, notes: notes, recSvc: recSvc, logger: logger.OrNop(lg)}
}

var _ EventService = (*eventService)(nil)

func (s *eventService) Create(ctx context.Context, params *EventCreateParams) (*domain.Event, error) {
	if params.BookUUID == "" {
		return nil, domain.NewValidationError("book_uuid", "is required")
	}
	if params.EndTime != nil && params.EndTime.Before(params.StartTime) {
		return nil, domain.NewValidationError("end_time", "is before start_time")
	}

	var created *domain.Event
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		rec, err := s.recSvc.Resolve(ctx, params.RecordNumber, params.Name, params.Phone)
		if err != nil {
			return err
		}
		created, err = s.events.Create(ctx, &domain.Event{
			ID:         uuid.NewString(),
			BookUUID:   params.BookUUID,
			RecordUUID: rec.UUID,
			StartTime:  params.StartTime,
			EndTime:    params.EndTime,
			EventTypes: params.EventTypes,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, s.fillHasNote(ctx, created)
}

func (s *eventService) Get(ctx context.Context, id string) (*domain.Event, error) {
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return e, s.fillHasNote(ctx, e)
}

func (s *eventService) List(ctx context.Context, r domain.EventRange) ([]*domain.Event, error) {
	list, err := s.events.List(ctx, r)
	if err != nil {
		return nil, err
	}
	return list, s.fillHasNote(ctx, list...)
}

func (s *eventService) Reschedule(ctx context.Context, id string, start time.Time, end *time.Time) (*domain.Event, *domain.Event, error) {
	if end != nil && end.Before(start) {
		return nil, nil, domain.NewValidationError("end_time", "is before start_time")
	}

	var original, next *domain.Event
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		cur, err := s.events.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !cur.CanReschedule() {
			return domain.ErrAlreadyRescheduled
		}
		next, err = s.events.Create(ctx, &domain.Event{
			ID:              uuid.NewString(),
			BookUUID:        cur.BookUUID,
			RecordUUID:      cur.RecordUUID,
			StartTime:       start,
			EndTime:         end,
			OriginalEventID: cur.ID,
			EventTypes:      cur.EventTypes,
			IsChecked:       cur.IsChecked,
		})
		if err != nil {
			return err
		}
		if err := s.events.MarkRescheduled(ctx, cur.ID, next.ID); err != nil {
			return err
		}
		original, err = s.events.GetByID(ctx, cur.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("event rescheduled",
		zap.String(logger.FieldEventID, original.ID),
		zap.String("newEventId", next.ID))
	if err := s.fillHasNote(ctx, original, next); err != nil {
		return nil, nil, err
	}
	return original, next, nil
}

func (s *eventService) RefillRecordNumber(ctx context.Context, id, number string) (*domain.Event, error) {
	if number == "" {
		return nil, domain.NewValidationError("record_number", "is required")
	}

	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		ev, err := s.events.GetByID(ctx, id)
		if err != nil {
			return err
		}
		current, err := s.records.GetByUUID(ctx, ev.RecordUUID)
		if err != nil {
			return err
		}
		if current.RecordNumber == number {
			return nil
		}

		canonical, err := s.records.GetByNumber(ctx, number)
		if domain.IsNotFound(err) {
			if !current.HasNumber() {
				// 档案号未被占用，直接补填到当前档案
				current.RecordNumber = number
				_, err = s.records.UpdateCAS(ctx, current, current.Version)
				return err
			}
			canonical, err = s.records.Create(ctx, &domain.Record{UUID: uuid.NewString(), RecordNumber: number, Name: current.Name, Phone: current.Phone})
		}
		if err != nil {
			return err
		}

		if err := s.events.UpdateRecordUUID(ctx, ev.ID, canonical.UUID); err != nil {
			return err
		}
		remaining, err := s.events.CountByRecord(ctx, current.UUID)
		if err != nil {
			return err
		}
		if err := s.carryNote(ctx, current.UUID, canonical.UUID, remaining == 0); err != nil {
			return err
		}
		if remaining == 0 {
			if err := s.notes.Delete(ctx, current.UUID); err != nil {
				return err
			}
			if err := s.records.Delete(ctx, current.UUID); err != nil {
				return err
			}
		}
		s.logger.Info("record number refilled",
			zap.String(logger.FieldEventID, ev.ID),
			zap.String("fromRecord", current.UUID),
			zap.String(logger.FieldRecordUUID, canonical.UUID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// carryNote makes the note of from reachable through to
// carryNote 让 from 的笔记内容可以通过 to 访问
//
// to 没有笔记时：from 不再被引用则整行转移，否则复制一份；
// 两者都有笔记时：from 的页追加到 to 之后，擦除映射合并，to 的版本加一。
func (s *eventService) carryNote(ctx context.Context, from, to string, orphaned bool) error {
	old, err := s.notes.GetByRecord(ctx, from)
	if domain.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	target, err := s.notes.GetByRecord(ctx, to)
	if domain.IsNotFound(err) {
		if orphaned {
			return s.notes.MoveToRecord(ctx, from, to)
		}
		cp := old.Clone()
		cp.RecordUUID = to
		_, err = s.notes.Create(ctx, cp)
		return err
	}
	if err != nil {
		return err
	}

	domain.MergeNoteInto(target, old)
	_, err = s.notes.UpdateCAS(ctx, target, target.Version)
	return err
}

func (s *eventService) fillHasNote(ctx context.Context, events ...*domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.RecordUUID)
	}
	has, err := s.notes.ExistsFor(ctx, ids)
	if err != nil {
		return err
	}
	for _, e := range events {
		e.HasNote = has[e.RecordUUID]
	}
	return nil
}
