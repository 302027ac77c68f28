package cache

import (
	"context"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/model"

	"github.com/pkg/errors"
)

type tableStats struct {
	Count int64
	Dirty int64
	Size  int64
	Hits  int64
}

func (s *Store) tableStats(ctx context.Context, m any) (tableStats, error) {
	var ts tableStats
	err := s.db.WithContext(ctx).Model(m).
		Select("COUNT(*) AS count, " +
			"COALESCE(SUM(CASE WHEN is_dirty THEN 1 ELSE 0 END), 0) AS dirty, " +
			"COALESCE(SUM(size_bytes), 0) AS size, " +
			"COALESCE(SUM(cache_hit_count), 0) AS hits").
		Scan(&ts).Error
	return ts, errors.Wrap(err, "cache stats")
}

// Stats 汇总缓存统计
func (s *Store) Stats(ctx context.Context) (domain.CacheStats, error) {
	notes, err := s.tableStats(ctx, &model.CacheNote{})
	if err != nil {
		return domain.CacheStats{}, err
	}
	drawings, err := s.tableStats(ctx, &model.CacheDrawing{})
	if err != nil {
		return domain.CacheStats{}, err
	}
	var pending int64
	if err := s.db.WithContext(ctx).Model(&model.CacheOutbox{}).Count(&pending).Error; err != nil {
		return domain.CacheStats{}, errors.Wrap(err, "count outbox")
	}
	return domain.CacheStats{
		NotesCount:     notes.Count,
		DrawingsCount:  drawings.Count,
		DirtyNotes:     notes.Dirty,
		DirtyDrawings:  drawings.Dirty,
		TotalSizeBytes: notes.Size + drawings.Size,
		TotalHits:      notes.Hits + drawings.Hits,
		PendingOutbox:  pending,
	}, nil
}
