// Package content is the cache-first read/write facade for notes and drawings
// Package content 笔记与手绘的缓存优先读写门面
package content

import (
	"context"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/cache"
	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/pkg/logger"

	"go.uber.org/zap"
)

// RemoteStore is what the content layer needs from the server
// RemoteStore 内容层对服务端的依赖
type RemoteStore interface {
	FetchNote(ctx context.Context, recordUUID string) (*domain.Note, error)
	SaveNote(ctx context.Context, note *domain.Note, expectedVersion int64) (*domain.Note, error)
	DeleteNote(ctx context.Context, recordUUID string) error
	AcquireLease(ctx context.Context, recordUUID string) (*domain.Note, error)
	ReleaseLease(ctx context.Context, recordUUID string) error
	ListEvents(ctx context.Context, r domain.EventRange) ([]*domain.Event, error)

	FetchDrawing(ctx context.Context, key domain.DrawingKey) (*domain.ScheduleDrawing, error)
	SaveDrawing(ctx context.Context, drawing *domain.ScheduleDrawing, expectedVersion int64) (*domain.ScheduleDrawing, error)
	DeleteDrawing(ctx context.Context, key domain.DrawingKey) error
}

// Config 内容层配置
type Config struct {
	// DeviceID 本设备 ID，用于判断租约归属
	DeviceID string
	// LeaseExpiry 0 means leases never go stale
	// LeaseExpiry 租约有效期，0 表示永不过期
	LeaseExpiry time.Duration
	// PreloadConcurrency 预加载并发数
	PreloadConcurrency int
	// ViewModes 预加载手绘时枚举的视图模式
	ViewModes []int
}

func (c Config) preloadLimit() int {
	if c.PreloadConcurrency <= 0 {
		return 4
	}
	return c.PreloadConcurrency
}

func (c Config) viewModes() []int {
	if len(c.ViewModes) == 0 {
		return []int{0}
	}
	return c.ViewModes
}

type getOptions struct {
	forceRefresh bool
}

// GetOption 读取选项
type GetOption func(*getOptions)

// WithForceRefresh skips the cache and asks the server first
// WithForceRefresh 跳过缓存，先请求服务端
func WithForceRefresh() GetOption {
	return func(o *getOptions) { o.forceRefresh = true }
}

func applyGetOptions(opts []GetOption) getOptions {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Outcome is the result of one push attempt
// Outcome 一次推送尝试的结果
type Outcome[T any] struct {
	Entity T
	State  domain.SyncState
	Err    error
}

// PreloadRange 预加载范围 [From, To)
type PreloadRange struct {
	BookUUID string
	From     time.Time
	To       time.Time
}

// PreloadReport 预加载结果
type PreloadReport struct {
	Requested int
	Skipped   int
	Loaded    int
	Missing   int
	Failed    int
}

// failedPush books a failed push on the outbox; a rejected edit is retired instead of retried
// failedPush 在发件箱登记失败的推送；被拒绝的修改直接撤下而不再重试
func failedPush(ctx context.Context, store *cache.Store, lg *zap.Logger, kind domain.EntityKind, key string, revision int64, state domain.SyncState, cause error) {
	if state == domain.SyncStateRejected {
		retired, err := store.RejectPending(ctx, kind, key, revision)
		if err != nil {
			lg.Warn("rejected edit not retired", zap.String(logger.FieldKey, key), zap.Error(err))
			return
		}
		if retired {
			lg.Warn("edit rejected by server and dropped from outbox",
				zap.String(logger.FieldKind, string(kind)),
				zap.String(logger.FieldKey, key),
				zap.Int64("revision", revision),
				zap.Error(cause))
			return
		}
	}
	if err := store.RecordAttempt(ctx, kind, key, cause); err != nil {
		lg.Warn("outbox attempt not recorded", zap.Error(err))
	}
}
