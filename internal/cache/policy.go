package cache

import (
	"context"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/model"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const policyRowID = 1

func policyFromModel(m *model.CachePolicy) domain.CachePolicy {
	p := domain.CachePolicy{
		MaxCacheSizeMb:    m.MaxCacheSizeMb,
		CacheDurationDays: m.CacheDurationDays,
		AutoCleanup:       m.AutoCleanup,
	}
	if m.LastCleanupAt > 0 {
		t := time.UnixMilli(m.LastCleanupAt).UTC()
		p.LastCleanupAt = &t
	}
	return p
}

// Policy returns the singleton policy, creating it from the defaults on first use
// Policy 返回单例缓存策略，首次使用时按默认值创建
func (s *Store) Policy(ctx context.Context) (domain.CachePolicy, error) {
	s.policyMu.RLock()
	if s.policy != nil {
		p := *s.policy
		s.policyMu.RUnlock()
		return p, nil
	}
	s.policyMu.RUnlock()

	var m model.CachePolicy
	err := s.db.WithContext(ctx).Where("id = ?", policyRowID).First(&m).Error
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.SavePolicy(ctx, s.defaults); err != nil {
			return domain.CachePolicy{}, err
		}
		return s.defaults, nil
	default:
		return domain.CachePolicy{}, errors.Wrap(err, "load cache policy")
	}

	p := policyFromModel(&m)
	s.policyMu.Lock()
	s.policy = &p
	s.policyMu.Unlock()
	return p, nil
}

// SavePolicy 整行写入缓存策略
func (s *Store) SavePolicy(ctx context.Context, p domain.CachePolicy) error {
	if p.MaxCacheSizeMb < 0 {
		return domain.NewValidationError("max_cache_size_mb", "must not be negative")
	}
	if p.CacheDurationDays < 0 {
		return domain.NewValidationError("cache_duration_days", "must not be negative")
	}
	m := &model.CachePolicy{
		ID:                policyRowID,
		MaxCacheSizeMb:    p.MaxCacheSizeMb,
		CacheDurationDays: p.CacheDurationDays,
		AutoCleanup:       p.AutoCleanup,
	}
	if p.LastCleanupAt != nil {
		m.LastCleanupAt = p.LastCleanupAt.UnixMilli()
	}
	if err := s.db.WithContext(ctx).Save(m).Error; err != nil {
		return errors.Wrap(err, "save cache policy")
	}
	s.policyMu.Lock()
	s.policy = &p
	s.policyMu.Unlock()
	return nil
}
