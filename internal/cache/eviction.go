package cache

import (
	"context"
	"sort"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/model"
	"github.com/haierkeys/schedule-note-sync/pkg/logger"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const bytesPerMb = 1024 * 1024

const (
	reasonExpired = "expired"
	reasonLRU     = "lru"
)

// CleanupResult 启动清理结果
type CleanupResult struct {
	Skipped bool
	Expired int64
	Evicted int64
}

func (s *Store) expiryCutoff(p domain.CachePolicy) int64 {
	return s.now().Add(-p.Duration()).UnixMilli()
}

// EvictExpired removes clean entries whose cached_at is strictly older than the cache duration
// EvictExpired 删除 cached_at 早于缓存有效期的干净条目，恰好在边界上的保留
func (s *Store) EvictExpired(ctx context.Context) (int64, error) {
	policy, err := s.Policy(ctx)
	if err != nil {
		return 0, err
	}
	if policy.CacheDurationDays <= 0 {
		return 0, nil
	}
	cutoff := s.expiryCutoff(policy)

	s.evictMu.Lock()
	defer s.evictMu.Unlock()

	db := s.db.WithContext(ctx)
	notes := db.Where("is_dirty = ? AND cached_at < ?", false, cutoff).Delete(&model.CacheNote{})
	if notes.Error != nil {
		return 0, errors.Wrap(notes.Error, "evict expired notes")
	}
	drawings := db.Where("is_dirty = ? AND cached_at < ?", false, cutoff).Delete(&model.CacheDrawing{})
	if drawings.Error != nil {
		return notes.RowsAffected, errors.Wrap(drawings.Error, "evict expired drawings")
	}
	cacheEvictions.WithLabelValues(string(domain.KindNote), reasonExpired).Add(float64(notes.RowsAffected))
	cacheEvictions.WithLabelValues(string(domain.KindDrawing), reasonExpired).Add(float64(drawings.RowsAffected))

	total := notes.RowsAffected + drawings.RowsAffected
	if total > 0 {
		s.logger.Info("cache expired entries evicted", zap.Int64(logger.FieldCount, total))
	}
	return total, nil
}

type lruCandidate struct {
	kind     domain.EntityKind
	key      string
	size     int64
	hits     int64
	cachedAt int64
}

// EvictLRU removes clean entries, least hit first then oldest, until the total size is within targetMb
// EvictLRU 按命中次数升序、缓存时间升序删除干净条目，直到总大小不超过 targetMb
func (s *Store) EvictLRU(ctx context.Context, targetMb int) (int64, error) {
	if targetMb < 0 {
		targetMb = 0
	}
	target := int64(targetMb) * bytesPerMb

	s.evictMu.Lock()
	defer s.evictMu.Unlock()

	total, err := s.totalSize(ctx)
	if err != nil {
		return 0, err
	}
	if total <= target {
		return 0, nil
	}

	candidates, err := s.lruCandidates(ctx)
	if err != nil {
		return 0, err
	}

	db := s.db.WithContext(ctx)
	var evicted int64
	for _, c := range candidates {
		if total <= target {
			break
		}
		var res *gorm.DB
		switch c.kind {
		case domain.KindNote:
			res = db.Where("record_uuid = ? AND is_dirty = ?", c.key, false).Delete(&model.CacheNote{})
		default:
			res = db.Where("cache_key = ? AND is_dirty = ?", c.key, false).Delete(&model.CacheDrawing{})
		}
		if res.Error != nil {
			return evicted, errors.Wrap(res.Error, "evict lru entry")
		}
		if res.RowsAffected > 0 {
			total -= c.size
			evicted++
			cacheEvictions.WithLabelValues(string(c.kind), reasonLRU).Inc()
		}
	}
	if evicted > 0 {
		s.logger.Info("cache lru entries evicted",
			zap.Int64(logger.FieldCount, evicted),
			zap.Int64(logger.FieldSize, total))
	}
	return evicted, nil
}

func (s *Store) lruCandidates(ctx context.Context) ([]lruCandidate, error) {
	db := s.db.WithContext(ctx)

	var notes []struct {
		RecordUUID    string
		SizeBytes     int64
		CacheHitCount int64
		CachedAt      int64
	}
	if err := db.Model(&model.CacheNote{}).
		Select("record_uuid, size_bytes, cache_hit_count, cached_at").
		Where("is_dirty = ?", false).
		Scan(&notes).Error; err != nil {
		return nil, errors.Wrap(err, "list lru notes")
	}

	var drawings []struct {
		CacheKey      string
		SizeBytes     int64
		CacheHitCount int64
		CachedAt      int64
	}
	if err := db.Model(&model.CacheDrawing{}).
		Select("cache_key, size_bytes, cache_hit_count, cached_at").
		Where("is_dirty = ?", false).
		Scan(&drawings).Error; err != nil {
		return nil, errors.Wrap(err, "list lru drawings")
	}

	out := make([]lruCandidate, 0, len(notes)+len(drawings))
	for _, n := range notes {
		out = append(out, lruCandidate{kind: domain.KindNote, key: n.RecordUUID, size: n.SizeBytes, hits: n.CacheHitCount, cachedAt: n.CachedAt})
	}
	for _, d := range drawings {
		out = append(out, lruCandidate{kind: domain.KindDrawing, key: d.CacheKey, size: d.SizeBytes, hits: d.CacheHitCount, cachedAt: d.CachedAt})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].hits != out[j].hits {
			return out[i].hits < out[j].hits
		}
		return out[i].cachedAt < out[j].cachedAt
	})
	return out, nil
}

func (s *Store) totalSize(ctx context.Context) (int64, error) {
	db := s.db.WithContext(ctx)
	var notes, drawings int64
	if err := db.Model(&model.CacheNote{}).Select("COALESCE(SUM(size_bytes), 0)").Scan(&notes).Error; err != nil {
		return 0, errors.Wrap(err, "sum note size")
	}
	if err := db.Model(&model.CacheDrawing{}).Select("COALESCE(SUM(size_bytes), 0)").Scan(&drawings).Error; err != nil {
		return 0, errors.Wrap(err, "sum drawing size")
	}
	return notes + drawings, nil
}

// SizeMb 缓存总大小 (MB)
func (s *Store) SizeMb(ctx context.Context) (float64, error) {
	total, err := s.totalSize(ctx)
	if err != nil {
		return 0, err
	}
	return float64(total) / bytesPerMb, nil
}

// PerformStartupCleanup runs expiry then size eviction when auto cleanup is on
// PerformStartupCleanup 开启自动清理时依次执行过期淘汰与容量淘汰
func (s *Store) PerformStartupCleanup(ctx context.Context) (CleanupResult, error) {
	policy, err := s.Policy(ctx)
	if err != nil {
		return CleanupResult{}, err
	}
	if !policy.AutoCleanup {
		return CleanupResult{Skipped: true}, nil
	}

	var res CleanupResult
	if res.Expired, err = s.EvictExpired(ctx); err != nil {
		return res, err
	}
	// 0 表示不限制容量
	if policy.MaxCacheSizeMb > 0 {
		if res.Evicted, err = s.EvictLRU(ctx, policy.MaxCacheSizeMb); err != nil {
			return res, err
		}
	}

	now := s.now().UTC()
	policy.LastCleanupAt = &now
	if err := s.SavePolicy(ctx, policy); err != nil {
		return res, err
	}
	return res, nil
}

// afterWrite submits a best-effort LRU eviction when the cache grew past its limit
// afterWrite 缓存超过上限时提交一次尽力而为的 LRU 淘汰
func (s *Store) afterWrite(ctx context.Context) {
	if s.pool == nil {
		return
	}
	policy, err := s.Policy(ctx)
	if err != nil || policy.MaxCacheSizeMb <= 0 {
		return
	}
	total, err := s.totalSize(ctx)
	if err != nil || total <= int64(policy.MaxCacheSizeMb)*bytesPerMb {
		return
	}
	if !s.evicting.CompareAndSwap(false, true) {
		return
	}
	max := policy.MaxCacheSizeMb
	err = s.pool.SubmitAsync(context.Background(), func(ctx context.Context) error {
		defer s.evicting.Store(false)
		_, err := s.EvictLRU(ctx, max)
		if err != nil {
			s.logger.Warn("async cache eviction failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		s.evicting.Store(false)
		s.logger.Warn("async cache eviction skipped", zap.Error(err))
	}
}
