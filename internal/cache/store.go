// Package cache is the device-local content cache: note and drawing snapshots with
// cache metadata, a durable outbox of unpushed edits, and the eviction engine
// Package cache 设备本地内容缓存：笔记与手绘快照及缓存元数据、未推送修改的持久发件箱、淘汰引擎
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/dao"
	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/model"
	"github.com/haierkeys/schedule-note-sync/pkg/workerpool"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 本地缓存存储
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time

	// pool runs the size-triggered LRU eviction, nil disables it
	// pool 执行超限触发的 LRU 淘汰，为空时不触发
	pool     *workerpool.Pool
	evicting atomic.Bool
	evictMu  sync.Mutex

	defaults domain.CachePolicy
	policyMu sync.RWMutex
	policy   *domain.CachePolicy
}

// Option 存储选项
type Option func(*Store)

// WithClock injects the time source used for cached_at and TTL checks
// WithClock 注入用于 cached_at 与过期判断的时钟
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithWorkerPool 设置异步淘汰使用的 Worker Pool
func WithWorkerPool(p *workerpool.Pool) Option {
	return func(s *Store) { s.pool = p }
}

// WithDefaultPolicy sets the policy written on first use
// WithDefaultPolicy 设置首次使用时写入的缓存策略
func WithDefaultPolicy(p domain.CachePolicy) Option {
	return func(s *Store) { s.defaults = p }
}

// DefaultPolicy 默认缓存策略
func DefaultPolicy() domain.CachePolicy {
	return domain.CachePolicy{MaxCacheSizeMb: 50, CacheDurationDays: 7, AutoCleanup: true}
}

// New 基于已迁移的 gorm 引擎创建缓存存储
func New(db *gorm.DB, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		db:       db,
		logger:   logger,
		now:      time.Now,
		defaults: DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens (and migrates) the SQLite cache database at path
// Open 打开并迁移 path 处的 SQLite 缓存数据库
func Open(path string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := dao.NewDBEngineWithConfig(dao.DatabaseConfig{Type: "sqlite", Path: path}, logger)
	if err != nil {
		return nil, err
	}
	if err := model.AutoMigrateCache(db); err != nil {
		return nil, errors.Wrap(err, "migrate cache tables")
	}
	return db, nil
}

// Close 关闭底层数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Now 当前时间（来自注入的时钟）
func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) nowMs() int64 {
	return s.now().UnixMilli()
}

func metaToDomain(m model.CacheMeta) domain.CacheMeta {
	return domain.CacheMeta{
		CachedAt:      time.UnixMilli(m.CachedAt).UTC(),
		CacheHitCount: m.CacheHitCount,
		IsDirty:       m.IsDirty,
		Revision:      m.Revision,
		SizeBytes:     m.SizeBytes,
	}
}

// syncOutbox keeps the outbox row in step with the dirty flag inside tx
// syncOutbox 在事务内使发件箱记录与脏标记保持一致
func syncOutbox(tx *gorm.DB, kind domain.EntityKind, key string, dirty bool, revision, now int64) error {
	if !dirty {
		return errors.Wrap(tx.Where("kind = ? AND entity_key = ?", string(kind), key).Delete(&model.CacheOutbox{}).Error, "clear outbox")
	}
	row := &model.CacheOutbox{
		Kind:       string(kind),
		EntityKey:  key,
		Revision:   revision,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "entity_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"revision", "updated_at"}),
	}).Create(row).Error
	return errors.Wrap(err, "enqueue outbox")
}
