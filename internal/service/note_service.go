package service

import (
	"context"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/pkg/logger"

	"go.uber.org/zap"
)

// NoteService 服务端笔记业务服务接口
type NoteService interface {
	// Fetch 获取档案的笔记
	Fetch(ctx context.Context, recordUUID string) (*domain.Note, error)

	// FetchByEvent 通过预约获取其档案的笔记
	FetchByEvent(ctx context.Context, eventID string) (*domain.Note, error)

	// Save writes the note when the stored version equals expectedVersion; a missing row is created at version 1
	// Save 仅当存储版本等于 expectedVersion 时写入；笔记不存在时以版本 1 创建
	Save(ctx context.Context, note *domain.Note, expectedVersion int64) (*domain.Note, error)

	// Delete 删除笔记
	Delete(ctx context.Context, recordUUID string) error

	// AcquireLease 获取笔记编辑租约
	AcquireLease(ctx context.Context, recordUUID, deviceID string) (*domain.Note, error)

	// ReleaseLease 释放笔记编辑租约
	ReleaseLease(ctx context.Context, recordUUID, deviceID string) error
}

type noteService struct {
	records domain.RecordRepository
	events  domain.EventRepository
	notes   domain.NoteRepository
	config  *ServiceConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewNoteService 创建 NoteService 实例
func NewNoteService(records domain.RecordRepository, events domain.EventRepository, notes domain.NoteRepository, config *ServiceConfig, lg *zap.Logger) NoteService {
	if config == nil {
		config = &ServiceConfig{}
	}
	return &noteService{records: records, events: events, notes: notes, config: config, logger: logger.OrNop(lg), now: time.Now}
}

var _ NoteService = (*noteService)(nil)

func (s *noteService) Fetch(ctx context.Context, recordUUID string) (*domain.Note, error) {
	return s.notes.GetByRecord(ctx, recordUUID)
}

func (s *noteService) FetchByEvent(ctx context.Context, eventID string) (*domain.Note, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.notes.GetByRecord(ctx, ev.RecordUUID)
}

func (s *noteService) Save(ctx context.Context, note *domain.Note, expectedVersion int64) (*domain.Note, error) {
	if err := note.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.records.GetByUUID(ctx, note.RecordUUID); err != nil {
		return nil, err
	}

	_, err := s.notes.GetByRecord(ctx, note.RecordUUID)
	var saved *domain.Note
	switch {
	case domain.IsNotFound(err):
		saved, err = s.notes.Create(ctx, note)
		if err == nil {
			contentWrites.WithLabelValues(string(domain.KindNote), "create").Inc()
		}
	case err != nil:
		return nil, err
	default:
		saved, err = s.notes.UpdateCAS(ctx, note, expectedVersion)
		if err == nil {
			contentWrites.WithLabelValues(string(domain.KindNote), "update").Inc()
		}
	}
	if ce, ok := domain.AsConflict(err); ok {
		ce.ExpectedVersion = expectedVersion
		casConflicts.WithLabelValues(string(domain.KindNote)).Inc()
		s.logger.Info("note save conflict",
			zap.String(logger.FieldRecordUUID, note.RecordUUID),
			zap.Int64("expected", expectedVersion),
			zap.Int64(logger.FieldVersion, ce.ServerVersion))
	}
	return saved, err
}

func (s *noteService) Delete(ctx context.Context, recordUUID string) error {
	return s.notes.Delete(ctx, recordUUID)
}

func (s *noteService) AcquireLease(ctx context.Context, recordUUID, deviceID string) (*domain.Note, error) {
	now := s.now()
	var staleBefore time.Time
	if s.config.Lease.Expiry > 0 {
		staleBefore = now.Add(-s.config.Lease.Expiry)
	}
	n, err := s.notes.AcquireLease(ctx, recordUUID, deviceID, now, staleBefore)
	if err == nil {
		s.logger.Debug("note lease acquired", zap.String(logger.FieldRecordUUID, recordUUID), zap.String(logger.FieldDeviceID, deviceID))
	}
	return n, err
}

func (s *noteService) ReleaseLease(ctx context.Context, recordUUID, deviceID string) error {
	return s.notes.ReleaseLease(ctx, recordUUID, deviceID)
}
