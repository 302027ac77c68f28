package cache

import (
	"context"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Outbox 列出所有待推送的修改，按入队时间排序
func (s *Store) Outbox(ctx context.Context) ([]domain.OutboxEntry, error) {
	var rows []model.CacheOutbox
	if err := s.db.WithContext(ctx).Order("enqueued_at").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list outbox")
	}
	out := make([]domain.OutboxEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.OutboxEntry{
			Kind:       domain.EntityKind(r.Kind),
			Key:        r.EntityKey,
			Revision:   r.Revision,
			Attempts:   r.Attempts,
			LastError:  r.LastError,
			EnqueuedAt: time.UnixMilli(r.EnqueuedAt).UTC(),
			UpdatedAt:  time.UnixMilli(r.UpdatedAt).UTC(),
		})
	}
	return out, nil
}

// RecordAttempt notes a failed push on the outbox row
// RecordAttempt 在发件箱记录上登记一次失败的推送
func (s *Store) RecordAttempt(ctx context.Context, kind domain.EntityKind, key string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := s.db.WithContext(ctx).Model(&model.CacheOutbox{}).
		Where("kind = ? AND entity_key = ?", string(kind), key).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
			"updated_at": s.nowMs(),
		}).Error
	return errors.Wrap(err, "record outbox attempt")
}

// CancelPending drops the unpushed edit of one entity: the outbox row goes and the entry is marked clean
// CancelPending 取消一个实体的未推送修改：删除发件箱记录并将条目标记为干净
func (s *Store) CancelPending(ctx context.Context, kind domain.EntityKind, key string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := syncOutbox(tx, kind, key, false, 0, 0); err != nil {
			return err
		}
		switch kind {
		case domain.KindNote:
			return errors.Wrap(tx.Model(&model.CacheNote{}).Where("record_uuid = ?", key).Update("is_dirty", false).Error, "cancel note")
		case domain.KindDrawing:
			return errors.Wrap(tx.Model(&model.CacheDrawing{}).Where("cache_key = ?", key).Update("is_dirty", false).Error, "cancel drawing")
		}
		return domain.NewValidationError("kind", "unknown entity kind "+string(kind))
	})
}

// RejectPending retires an edit the server refused: when revision is still current the outbox row goes,
// the entry turns clean and its cached_at is zeroed so the next refresh or preload replaces it
// RejectPending 撤下被服务端拒绝的修改：revision 仍为当前值时删除发件箱记录、清除脏标记并将 cached_at 置零，
// 使下次刷新或预加载用服务端副本替换它
func (s *Store) RejectPending(ctx context.Context, kind domain.EntityKind, key string, revision int64) (bool, error) {
	var rejected bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var q *gorm.DB
		switch kind {
		case domain.KindNote:
			q = tx.Model(&model.CacheNote{}).Where("record_uuid = ?", key)
		case domain.KindDrawing:
			q = tx.Model(&model.CacheDrawing{}).Where("cache_key = ?", key)
		default:
			return domain.NewValidationError("kind", "unknown entity kind "+string(kind))
		}
		res := q.Where("revision = ?", revision).Updates(map[string]any{"is_dirty": false, "cached_at": 0})
		if res.Error != nil {
			return errors.Wrap(res.Error, "reject pending edit")
		}
		if res.RowsAffected == 0 {
			// 期间已有新的本地修改，保留待推送
			return nil
		}
		rejected = true
		return syncOutbox(tx, kind, key, false, 0, 0)
	})
	return rejected, err
}

// HasDirty 是否存在未推送的修改
func (s *Store) HasDirty(ctx context.Context) (bool, error) {
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&model.CacheOutbox{}).Count(&n).Error; err != nil {
		return false, errors.Wrap(err, "count outbox")
	}
	if n > 0 {
		return true, nil
	}
	if err := db.Model(&model.CacheNote{}).Where("is_dirty = ?", true).Count(&n).Error; err != nil {
		return false, errors.Wrap(err, "count dirty notes")
	}
	if n > 0 {
		return true, nil
	}
	if err := db.Model(&model.CacheDrawing{}).Where("is_dirty = ?", true).Count(&n).Error; err != nil {
		return false, errors.Wrap(err, "count dirty drawings")
	}
	return n > 0, nil
}
