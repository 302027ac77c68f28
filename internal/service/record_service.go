package service

import (
	"context"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordService 档案业务服务接口
type RecordService interface {
	// Get 获取档案
	Get(ctx context.Context, uuid string) (*domain.Record, error)

	// Resolve returns the canonical record for number, creating it when absent; an empty number always creates a new record
	// Resolve 返回档案号对应的规范档案，不存在时创建；档案号为空时总是新建
	Resolve(ctx context.Context, number, name, phone string) (*domain.Record, error)

	// Update 按版本更新档案姓名与电话
	Update(ctx context.Context, uuid, name, phone string, expectedVersion int64) (*domain.Record, error)

	// Delete removes the record and its note; rejected while events still reference it
	// Delete 删除档案及其笔记，仍被预约引用时拒绝
	Delete(ctx context.Context, uuid string) error
}

type recordService struct {
	tx      domain.Transactor
	records domain.RecordRepository
	events  domain.EventRepository
	notes   domain.NoteRepository
	logger  *zap.Logger
}

// NewRecordService 创建 RecordService 实例
func NewRecordService(tx domain.Transactor, records domain.RecordRepository, events domain.EventRepository, notes domain.NoteRepository, lg *zap.Logger) RecordService {
	return &recordService{tx: tx, records: records, events: events, notes: notes, logger: logger.OrNop(lg)}
}

var _ RecordService = (*recordService)(nil)

func (s *recordService) Get(ctx context.Context, uuid string) (*domain.Record, error) {
	return s.records.GetByUUID(ctx, uuid)
}

func (s *recordService) Resolve(ctx context.Context, number, name, phone string) (*domain.Record, error) {
	if number != "" {
		rec, err := s.records.GetByNumber(ctx, number)
		if err == nil {
			return rec, nil
		}
		if !domain.IsNotFound(err) {
			return nil, err
		}
	}

	rec, err := s.records.Create(ctx, &domain.Record{UUID: uuid.NewString(), RecordNumber: number, Name: name, Phone: phone})
	if err != nil && number != "" && domain.IsConflict(err) {
		// 并发创建同一档案号，读取胜出者
		return s.records.GetByNumber(ctx, number)
	}
	return rec, err
}

func (s *recordService) Update(ctx context.Context, uuid, name, phone string, expectedVersion int64) (*domain.Record, error) {
	cur, err := s.records.GetByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	cur.Name = name
	cur.Phone = phone
	rec, err := s.records.UpdateCAS(ctx, cur, expectedVersion)
	if domain.IsConflict(err) {
		casConflicts.WithLabelValues("record").Inc()
	}
	return rec, err
}

func (s *recordService) Delete(ctx context.Context, uuid string) error {
	return s.tx.Transaction(ctx, func(ctx context.Context) error {
		if _, err := s.records.GetByUUID(ctx, uuid); err != nil {
			return err
		}
		n, err := s.events.CountByRecord(ctx, uuid)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrRecordInUse
		}
		if err := s.notes.Delete(ctx, uuid); err != nil {
			return err
		}
		s.logger.Info("record deleted", zap.String(logger.FieldRecordUUID, uuid))
		return s.records.Delete(ctx, uuid)
	})
}
