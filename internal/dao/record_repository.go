package dao

import (
	"context"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/model"

	"github.com/pkg/errors"
)

type recordRepository struct {
	dao *Dao
}

// NewRecordRepository 创建档案仓储
func NewRecordRepository(dao *Dao) domain.RecordRepository {
	return &recordRepository{dao: dao}
}

var _ domain.RecordRepository = (*recordRepository)(nil)

func (r *recordRepository) toDomain(m *model.Record) *domain.Record {
	rec := &domain.Record{
		UUID:      m.UUID,
		Name:      m.Name,
		Phone:     m.Phone,
		Version:   m.Version,
		CreatedAt: fromMs(m.CreatedAt),
		UpdatedAt: fromMs(m.UpdatedAt),
	}
	if m.RecordNumber != nil {
		rec.RecordNumber = *m.RecordNumber
	}
	return rec
}

func (r *recordRepository) toModel(d *domain.Record) *model.Record {
	m := &model.Record{
		UUID:    d.UUID,
		Name:    d.Name,
		Phone:   d.Phone,
		Version: d.Version,
	}
	if d.RecordNumber != "" {
		number := d.RecordNumber
		m.RecordNumber = &number
	}
	return m
}

func (r *recordRepository) GetByUUID(ctx context.Context, uuid string) (*domain.Record, error) {
	var m model.Record
	if err := r.dao.DB(ctx).Where("uuid = ?", uuid).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return r.toDomain(&m), nil
}

func (r *recordRepository) GetByNumber(ctx context.Context, number string) (*domain.Record, error) {
	if number == "" {
		return nil, domain.ErrNotFound
	}
	var m model.Record
	if err := r.dao.DB(ctx).Where("record_number = ?", number).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return r.toDomain(&m), nil
}

func (r *recordRepository) Create(ctx context.Context, record *domain.Record) (*domain.Record, error) {
	m := r.toModel(record)
	m.Version = 1
	taken, err := createOnce(r.dao.DB(ctx), m)
	if err != nil {
		return nil, errors.Wrap(err, "create record")
	}
	if taken {
		return nil, &domain.ConflictError{Kind: "record", Key: record.RecordNumber}
	}
	return r.toDomain(m), nil
}

func (r *recordRepository) UpdateCAS(ctx context.Context, record *domain.Record, expectedVersion int64) (*domain.Record, error) {
	m := r.toModel(record)
	res := r.dao.DB(ctx).Model(&model.Record{}).
		Where("uuid = ? AND version = ?", record.UUID, expectedVersion).
		Updates(map[string]any{
			"record_number": m.RecordNumber,
			"name":          m.Name,
			"phone":         m.Phone,
			"version":       expectedVersion + 1,
		})
	if res.Error != nil {
		if IsDuplicateKey(res.Error) {
			return nil, &domain.ConflictError{Kind: "record", Key: record.UUID, ExpectedVersion: expectedVersion}
		}
		return nil, errors.Wrap(res.Error, "update record")
	}
	if res.RowsAffected == 0 {
		cur, err := r.GetByUUID(ctx, record.UUID)
		if err != nil {
			return nil, err
		}
		return nil, &domain.ConflictError{Kind: "record", Key: record.UUID, ExpectedVersion: expectedVersion, ServerVersion: cur.Version}
	}
	return r.GetByUUID(ctx, record.UUID)
}

func (r *recordRepository) Delete(ctx context.Context, uuid string) error {
	return errors.Wrap(r.dao.DB(ctx).Where("uuid = ?", uuid).Delete(&model.Record{}).Error, "delete record")
}
