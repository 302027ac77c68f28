package cache

import (
	"context"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/model"
	"github.com/haierkeys/schedule-note-sync/pkg/logger"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func noteFromModel(m *model.CacheNote) (*domain.Note, error) {
	snap, err := domain.DecodeNoteSnapshot(m.CacheMeta.Payload)
	if err != nil {
		return nil, err
	}
	n := &domain.Note{
		RecordUUID:       m.RecordUUID,
		Version:          m.CacheMeta.Version,
		LockedByDeviceID: m.LockedByDeviceID,
		Cache:            metaToDomain(m.CacheMeta),
	}
	snap.Apply(n)
	if m.LockedAt > 0 {
		t := time.UnixMilli(m.LockedAt).UTC()
		n.LockedAt = &t
	}
	return n, nil
}

func (s *Store) findNote(ctx context.Context, recordUUID string) (*model.CacheNote, error) {
	var m model.CacheNote
	err := s.db.WithContext(ctx).Where("record_uuid = ?", recordUUID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrap(err, "get cached note")
	}
	return &m, nil
}

// GetNote reads a cached note and counts the hit; a failed counter bump is only logged
// GetNote 读取缓存笔记并计数命中，计数失败只记录日志
func (s *Store) GetNote(ctx context.Context, recordUUID string) (*domain.Note, error) {
	m, err := s.findNote(ctx, recordUUID)
	if err != nil {
		if domain.IsNotFound(err) {
			cacheMisses.WithLabelValues(string(domain.KindNote)).Inc()
		}
		return nil, err
	}
	cacheHits.WithLabelValues(string(domain.KindNote)).Inc()

	err = s.db.WithContext(ctx).Model(&model.CacheNote{}).
		Where("record_uuid = ?", recordUUID).
		UpdateColumn("cache_hit_count", gorm.Expr("cache_hit_count + 1")).Error
	if err != nil {
		s.logger.Warn("cache hit count not updated",
			zap.String(logger.FieldKind, string(domain.KindNote)),
			zap.String(logger.FieldKey, recordUUID),
			zap.Error(err))
	} else {
		m.CacheMeta.CacheHitCount++
	}
	return noteFromModel(m)
}

// PeekNote reads without touching the hit counter
// PeekNote 读取但不增加命中计数
func (s *Store) PeekNote(ctx context.Context, recordUUID string) (*domain.Note, error) {
	m, err := s.findNote(ctx, recordUUID)
	if err != nil {
		return nil, err
	}
	return noteFromModel(m)
}

// UpsertNote stores the snapshot with cached_at=now and a new revision; dirty also enqueues it in the outbox
// and never lowers the cached server version
// UpsertNote 写入快照，cached_at 取当前时间并递增 revision；dirty 时同时写入发件箱，且不会降低已缓存的服务端版本
func (s *Store) UpsertNote(ctx context.Context, note *domain.Note, dirty bool) (*domain.Note, error) {
	if note == nil || note.RecordUUID == "" {
		return nil, domain.NewValidationError("record_uuid", "is required")
	}
	payload, err := domain.EncodeNoteSnapshot(note)
	if err != nil {
		return nil, err
	}
	now := s.nowMs()

	var saved model.CacheNote
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur model.CacheNote
		if err := tx.Where("record_uuid = ?", note.RecordUUID).Limit(1).Find(&cur).Error; err != nil {
			return errors.Wrap(err, "load cached note")
		}
		version := note.Version
		// 本地修改不得回退已确认的服务端版本
		if dirty && cur.CacheMeta.Version > version {
			version = cur.CacheMeta.Version
		}
		saved = model.CacheNote{
			RecordUUID:       note.RecordUUID,
			LockedByDeviceID: note.LockedByDeviceID,
			CacheMeta: model.CacheMeta{
				Payload:       payload,
				Version:       version,
				CachedAt:      now,
				CacheHitCount: cur.CacheMeta.CacheHitCount,
				IsDirty:       dirty,
				Revision:      cur.CacheMeta.Revision + 1,
				SizeBytes:     int64(len(payload)),
			},
		}
		if note.LockedAt != nil {
			saved.LockedAt = note.LockedAt.UnixMilli()
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&saved).Error; err != nil {
			return errors.Wrap(err, "upsert cached note")
		}
		return syncOutbox(tx, domain.KindNote, note.RecordUUID, dirty, saved.CacheMeta.Revision, now)
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx)
	return noteFromModel(&saved)
}

// MarkNoteClean records a successful push of revision; dirty is cleared only if no newer local edit exists
// MarkNoteClean 记录 revision 推送成功；只有不存在更新的本地修改时才清除脏标记
func (s *Store) MarkNoteClean(ctx context.Context, recordUUID string, serverVersion, revision int64) (bool, error) {
	var cleared bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.CacheNote{}).
			Where("record_uuid = ? AND revision = ?", recordUUID, revision).
			Updates(map[string]any{"version": serverVersion, "is_dirty": false})
		if res.Error != nil {
			return errors.Wrap(res.Error, "mark note clean")
		}
		if res.RowsAffected > 0 {
			cleared = true
			return syncOutbox(tx, domain.KindNote, recordUUID, false, revision, 0)
		}
		// 推送期间有新的本地修改：只推进版本号
		return errors.Wrap(tx.Model(&model.CacheNote{}).
			Where("record_uuid = ? AND version < ?", recordUUID, serverVersion).
			Update("version", serverVersion).Error, "advance note version")
	})
	return cleared, err
}

// SetNoteLease 只更新缓存笔记的租约字段
func (s *Store) SetNoteLease(ctx context.Context, recordUUID, deviceID string, lockedAt *time.Time) error {
	var at int64
	if lockedAt != nil {
		at = lockedAt.UnixMilli()
	}
	res := s.db.WithContext(ctx).Model(&model.CacheNote{}).
		Where("record_uuid = ?", recordUUID).
		Updates(map[string]any{"locked_by_device_id": deviceID, "locked_at": at})
	if res.Error != nil {
		return errors.Wrap(res.Error, "set note lease")
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteNote 删除缓存笔记及其发件箱记录
func (s *Store) DeleteNote(ctx context.Context, recordUUID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("record_uuid = ?", recordUUID).Delete(&model.CacheNote{}).Error; err != nil {
			return errors.Wrap(err, "delete cached note")
		}
		return syncOutbox(tx, domain.KindNote, recordUUID, false, 0, 0)
	})
}

func notesFromModels(list []model.CacheNote) ([]*domain.Note, error) {
	out := make([]*domain.Note, 0, len(list))
	for i := range list {
		n, err := noteFromModel(&list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// DirtyNotes 所有待推送的笔记，按写入时间排序
func (s *Store) DirtyNotes(ctx context.Context) ([]*domain.Note, error) {
	var list []model.CacheNote
	if err := s.db.WithContext(ctx).Where("is_dirty = ?", true).Order("cached_at").Find(&list).Error; err != nil {
		return nil, errors.Wrap(err, "list dirty notes")
	}
	return notesFromModels(list)
}

// DirtyNotesIn 指定档案范围内待推送的笔记
func (s *Store) DirtyNotesIn(ctx context.Context, recordUUIDs []string) ([]*domain.Note, error) {
	if len(recordUUIDs) == 0 {
		return []*domain.Note{}, nil
	}
	var list []model.CacheNote
	err := s.db.WithContext(ctx).
		Where("is_dirty = ? AND record_uuid IN ?", true, recordUUIDs).
		Order("cached_at").Find(&list).Error
	if err != nil {
		return nil, errors.Wrap(err, "list dirty notes")
	}
	return notesFromModels(list)
}

// FreshNoteKeys returns which of recordUUIDs are cached and not expired
// FreshNoteKeys 返回 recordUUIDs 中已缓存且未过期的键
func (s *Store) FreshNoteKeys(ctx context.Context, recordUUIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(recordUUIDs))
	if len(recordUUIDs) == 0 {
		return out, nil
	}
	policy, err := s.Policy(ctx)
	if err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Model(&model.CacheNote{}).Where("record_uuid IN ?", recordUUIDs)
	if policy.CacheDurationDays > 0 {
		q = q.Where("(is_dirty = ? OR cached_at >= ?)", true, s.expiryCutoff(policy))
	}
	var keys []string
	if err := q.Pluck("record_uuid", &keys).Error; err != nil {
		return nil, errors.Wrap(err, "list fresh notes")
	}
	for _, k := range keys {
		out[k] = true
	}
	return out, nil
}
