package dao

import (
	"context"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type noteRepository struct {
	dao *Dao
}

// NewNoteRepository 创建服务端笔记仓储
func NewNoteRepository(dao *Dao) domain.NoteRepository {
	return &noteRepository{dao: dao}
}

var _ domain.NoteRepository = (*noteRepository)(nil)

func (r *noteRepository) toDomain(m *model.Note) (*domain.Note, error) {
	snap, err := domain.DecodeNoteSnapshot([]byte(m.Payload))
	if err != nil {
		return nil, err
	}
	n := &domain.Note{
		RecordUUID:       m.RecordUUID,
		Version:          m.Version,
		LockedByDeviceID: m.LockedByDeviceID,
		UpdatedAt:        fromMs(m.UpdatedAt),
	}
	snap.Apply(n)
	if m.LockedAt > 0 {
		t := fromMs(m.LockedAt)
		n.LockedAt = &t
	}
	return n, nil
}

func (r *noteRepository) GetByRecord(ctx context.Context, recordUUID string) (*domain.Note, error) {
	var m model.Note
	if err := r.dao.DB(ctx).Where("record_uuid = ?", recordUUID).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return r.toDomain(&m)
}

func (r *noteRepository) Create(ctx context.Context, note *domain.Note) (*domain.Note, error) {
	payload, err := domain.EncodeNoteSnapshot(note)
	if err != nil {
		return nil, err
	}
	m := &model.Note{RecordUUID: note.RecordUUID, Payload: string(payload), Version: 1}
	taken, err := createOnce(r.dao.DB(ctx), m)
	if err != nil {
		return nil, errors.Wrap(err, "create note")
	}
	if taken {
		ce := &domain.ConflictError{Kind: string(domain.KindNote), Key: note.RecordUUID, ExpectedVersion: note.Version}
		if cur, gerr := r.GetByRecord(ctx, note.RecordUUID); gerr == nil {
			ce.ServerVersion = cur.Version
		}
		return nil, ce
	}
	return r.toDomain(m)
}

func (r *noteRepository) UpdateCAS(ctx context.Context, note *domain.Note, expectedVersion int64) (*domain.Note, error) {
	payload, err := domain.EncodeNoteSnapshot(note)
	if err != nil {
		return nil, err
	}
	res := r.dao.DB(ctx).Model(&model.Note{}).
		Where("record_uuid = ? AND version = ?", note.RecordUUID, expectedVersion).
		Updates(map[string]any{
			"payload": string(payload),
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "update note")
	}
	if res.RowsAffected == 0 {
		cur, err := r.GetByRecord(ctx, note.RecordUUID)
		if err != nil {
			return nil, err
		}
		return nil, &domain.ConflictError{Kind: string(domain.KindNote), Key: note.RecordUUID, ExpectedVersion: expectedVersion, ServerVersion: cur.Version}
	}
	return r.GetByRecord(ctx, note.RecordUUID)
}

func (r *noteRepository) Delete(ctx context.Context, recordUUID string) error {
	return errors.Wrap(r.dao.DB(ctx).Where("record_uuid = ?", recordUUID).Delete(&model.Note{}).Error, "delete note")
}

func (r *noteRepository) MoveToRecord(ctx context.Context, fromRecordUUID, toRecordUUID string) error {
	res := r.dao.DB(ctx).Model(&model.Note{}).Where("record_uuid = ?", fromRecordUUID).
		Updates(map[string]any{"record_uuid": toRecordUUID, "version": gorm.Expr("version + 1")})
	if res.Error != nil {
		if IsDuplicateKey(res.Error) {
			return &domain.ConflictError{Kind: string(domain.KindNote), Key: toRecordUUID}
		}
		return errors.Wrap(res.Error, "move note")
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *noteRepository) ExistsFor(ctx context.Context, recordUUIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(recordUUIDs))
	if len(recordUUIDs) == 0 {
		return out, nil
	}
	var found []string
	if err := r.dao.DB(ctx).Model(&model.Note{}).Where("record_uuid IN ?", recordUUIDs).Pluck("record_uuid", &found).Error; err != nil {
		return nil, errors.Wrap(err, "query note existence")
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

func (r *noteRepository) AcquireLease(ctx context.Context, recordUUID, deviceID string, now, staleBefore time.Time) (*domain.Note, error) {
	q := r.dao.DB(ctx).Model(&model.Note{}).Where("record_uuid = ?", recordUUID)
	if staleBefore.IsZero() {
		q = q.Where("(locked_by_device_id = '' OR locked_by_device_id IS NULL OR locked_by_device_id = ?)", deviceID)
	} else {
		q = q.Where("(locked_by_device_id = '' OR locked_by_device_id IS NULL OR locked_by_device_id = ? OR locked_at < ?)", deviceID, staleBefore.UnixMilli())
	}
	res := q.UpdateColumns(map[string]any{
		"locked_by_device_id": deviceID,
		"locked_at":           now.UnixMilli(),
	})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "acquire note lease")
	}
	cur, err := r.GetByRecord(ctx, recordUUID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return cur, domain.ErrLeaseHeld
	}
	return cur, nil
}

func (r *noteRepository) ReleaseLease(ctx context.Context, recordUUID, deviceID string) error {
	res := r.dao.DB(ctx).Model(&model.Note{}).
		Where("record_uuid = ? AND locked_by_device_id = ?", recordUUID, deviceID).
		UpdateColumns(map[string]any{"locked_by_device_id": "", "locked_at": 0})
	return errors.Wrap(res.Error, "release note lease")
}
