package cache

import (
	"context"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/model"
	"github.com/haierkeys/schedule-note-sync/pkg/logger"
	"github.com/haierkeys/schedule-note-sync/pkg/util"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func drawingFromModel(m *model.CacheDrawing) (*domain.ScheduleDrawing, error) {
	strokes, err := domain.DecodeStrokes(m.CacheMeta.Payload)
	if err != nil {
		return nil, err
	}
	day, err := util.ParseDay(m.Date)
	if err != nil {
		return nil, errors.Wrapf(err, "cached drawing %s", m.CacheKey)
	}
	return &domain.ScheduleDrawing{
		Key:     domain.DrawingKey{BookUUID: m.BookUUID, Date: day, ViewMode: m.ViewMode},
		Strokes: strokes,
		Version: m.CacheMeta.Version,
		Cache:   metaToDomain(m.CacheMeta),
	}, nil
}

func (s *Store) findDrawing(ctx context.Context, key domain.DrawingKey) (*model.CacheDrawing, error) {
	var m model.CacheDrawing
	err := s.db.WithContext(ctx).Where("cache_key = ?", key.String()).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Wrap(err, "get cached drawing")
	}
	return &m, nil
}

// GetDrawing 读取缓存手绘并计数命中
func (s *Store) GetDrawing(ctx context.Context, key domain.DrawingKey) (*domain.ScheduleDrawing, error) {
	m, err := s.findDrawing(ctx, key)
	if err != nil {
		if domain.IsNotFound(err) {
			cacheMisses.WithLabelValues(string(domain.KindDrawing)).Inc()
		}
		return nil, err
	}
	cacheHits.WithLabelValues(string(domain.KindDrawing)).Inc()

	err = s.db.WithContext(ctx).Model(&model.CacheDrawing{}).
		Where("cache_key = ?", m.CacheKey).
		UpdateColumn("cache_hit_count", gorm.Expr("cache_hit_count + 1")).Error
	if err != nil {
		s.logger.Warn("cache hit count not updated",
			zap.String(logger.FieldKind, string(domain.KindDrawing)),
			zap.String(logger.FieldKey, m.CacheKey),
			zap.Error(err))
	} else {
		m.CacheMeta.CacheHitCount++
	}
	return drawingFromModel(m)
}

// PeekDrawing 读取但不增加命中计数
func (s *Store) PeekDrawing(ctx context.Context, key domain.DrawingKey) (*domain.ScheduleDrawing, error) {
	m, err := s.findDrawing(ctx, key)
	if err != nil {
		return nil, err
	}
	return drawingFromModel(m)
}

// UpsertDrawing 写入手绘快照，dirty 时同时写入发件箱
func (s *Store) UpsertDrawing(ctx context.Context, drawing *domain.ScheduleDrawing, dirty bool) (*domain.ScheduleDrawing, error) {
	if drawing == nil {
		return nil, domain.NewValidationError("drawing", "is nil")
	}
	key := domain.NewDrawingKey(drawing.Key.BookUUID, drawing.Key.Date, drawing.Key.ViewMode)
	if err := key.Validate(); err != nil {
		return nil, err
	}
	payload, err := domain.EncodeStrokes(drawing.Strokes)
	if err != nil {
		return nil, err
	}
	now := s.nowMs()
	cacheKey := key.String()

	var saved model.CacheDrawing
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur model.CacheDrawing
		if err := tx.Where("cache_key = ?", cacheKey).Limit(1).Find(&cur).Error; err != nil {
			return errors.Wrap(err, "load cached drawing")
		}
		version := drawing.Version
		if dirty && cur.CacheMeta.Version > version {
			version = cur.CacheMeta.Version
		}
		saved = model.CacheDrawing{
			CacheKey: cacheKey,
			BookUUID: key.BookUUID,
			Date:     util.FormatDay(key.Date),
			ViewMode: key.ViewMode,
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
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&saved).Error; err != nil {
			return errors.Wrap(err, "upsert cached drawing")
		}
		return syncOutbox(tx, domain.KindDrawing, cacheKey, dirty, saved.CacheMeta.Revision, now)
	})
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx)
	return drawingFromModel(&saved)
}

// MarkDrawingClean 记录 revision 推送成功，存在更新的本地修改时只推进版本号
func (s *Store) MarkDrawingClean(ctx context.Context, key domain.DrawingKey, serverVersion, revision int64) (bool, error) {
	cacheKey := key.String()
	var cleared bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.CacheDrawing{}).
			Where("cache_key = ? AND revision = ?", cacheKey, revision).
			Updates(map[string]any{"version": serverVersion, "is_dirty": false})
		if res.Error != nil {
			return errors.Wrap(res.Error, "mark drawing clean")
		}
		if res.RowsAffected > 0 {
			cleared = true
			return syncOutbox(tx, domain.KindDrawing, cacheKey, false, revision, 0)
		}
		return errors.Wrap(tx.Model(&model.CacheDrawing{}).
			Where("cache_key = ? AND version < ?", cacheKey, serverVersion).
			Update("version", serverVersion).Error, "advance drawing version")
	})
	return cleared, err
}

// DeleteDrawing 删除缓存手绘及其发件箱记录
func (s *Store) DeleteDrawing(ctx context.Context, key domain.DrawingKey) error {
	cacheKey := key.String()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cache_key = ?", cacheKey).Delete(&model.CacheDrawing{}).Error; err != nil {
			return errors.Wrap(err, "delete cached drawing")
		}
		return syncOutbox(tx, domain.KindDrawing, cacheKey, false, 0, 0)
	})
}

// DirtyDrawings 所有待推送的手绘
func (s *Store) DirtyDrawings(ctx context.Context) ([]*domain.ScheduleDrawing, error) {
	var list []model.CacheDrawing
	if err := s.db.WithContext(ctx).Where("is_dirty = ?", true).Order("cached_at").Find(&list).Error; err != nil {
		return nil, errors.Wrap(err, "list dirty drawings")
	}
	out := make([]*domain.ScheduleDrawing, 0, len(list))
	for i := range list {
		d, err := drawingFromModel(&list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// FreshDrawingKeys returns the keys that are cached and not expired
// FreshDrawingKeys 返回已缓存且未过期的键
func (s *Store) FreshDrawingKeys(ctx context.Context, keys []domain.DrawingKey) (map[string]bool, error) {
	out := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	policy, err := s.Policy(ctx)
	if err != nil {
		return nil, err
	}
	cacheKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		cacheKeys = append(cacheKeys, k.String())
	}
	q := s.db.WithContext(ctx).Model(&model.CacheDrawing{}).Where("cache_key IN ?", cacheKeys)
	if policy.CacheDurationDays > 0 {
		q = q.Where("(is_dirty = ? OR cached_at >= ?)", true, s.expiryCutoff(policy))
	}
	var found []string
	if err := q.Pluck("cache_key", &found).Error; err != nil {
		return nil, errors.Wrap(err, "list fresh drawings")
	}
	for _, k := range found {
		out[k] = true
	}
	return out, nil
}
