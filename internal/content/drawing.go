package content

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/cache"
	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/pkg/logger"
	"github.com/haierkeys/schedule-note-sync/pkg/util"
	"github.com/haierkeys/schedule-note-sync/pkg/workerpool"
	"github.com/haierkeys/schedule-note-sync/pkg/writequeue"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const kindDrawing = string(domain.KindDrawing)

// DrawingService cache-first access to schedule drawings; writes of one key are serialized
// DrawingService 缓存优先的日程手绘访问，同一键的写入串行执行
type DrawingService struct {
	store  *cache.Store
	remote RemoteStore
	pool   *workerpool.Pool
	queue  *writequeue.Manager
	config Config
	logger *zap.Logger

	refresh singleflight.Group
	pushes  keyLock
}

// NewDrawingService 创建手绘服务，queue 不能为空
func NewDrawingService(store *cache.Store, remote RemoteStore, pool *workerpool.Pool, queue *writequeue.Manager, cfg Config, lg *zap.Logger) *DrawingService {
	return &DrawingService{store: store, remote: remote, pool: pool, queue: queue, config: cfg, logger: logger.OrNop(lg)}
}

func normalize(key domain.DrawingKey) domain.DrawingKey {
	return domain.NewDrawingKey(key.BookUUID, key.Date, key.ViewMode)
}

// Get 未强制刷新时直接返回缓存；远端失败时回退到缓存
func (s *DrawingService) Get(ctx context.Context, key domain.DrawingKey, opts ...GetOption) (*domain.ScheduleDrawing, error) {
	key = normalize(key)
	o := applyGetOptions(opts)
	if !o.forceRefresh {
		d, err := s.store.GetDrawing(ctx, key)
		if err == nil {
			return d, nil
		}
		if !domain.IsNotFound(err) {
			s.logger.Warn("drawing cache read failed", zap.String(logger.FieldKey, key.String()), zap.Error(err))
		}
	}

	v, _, _ := s.refresh.Do(key.String(), func() (any, error) {
		return s.fetch(ctx, key)
	})
	if d, ok := v.(*domain.ScheduleDrawing); ok && d != nil {
		return d, nil
	}
	return nil, domain.ErrNotFound
}

func (s *DrawingService) fetch(ctx context.Context, key domain.DrawingKey) (*domain.ScheduleDrawing, error) {
	remote, err := s.remote.FetchDrawing(ctx, key)
	if err != nil {
		if local, lerr := s.store.GetDrawing(ctx, key); lerr == nil {
			remoteFallbacks.WithLabelValues(kindDrawing).Inc()
			return local, nil
		}
		if !domain.IsNotFound(err) {
			s.logger.Warn("drawing fetch failed", zap.String(logger.FieldKey, key.String()), zap.Error(err))
		}
		return nil, domain.ErrNotFound
	}

	var out *domain.ScheduleDrawing
	err = s.queue.Execute(ctx, key.String(), func() error {
		if local, lerr := s.store.PeekDrawing(ctx, key); lerr == nil && local.Cache.IsDirty {
			out = local
			return nil
		}
		saved, err := s.store.UpsertDrawing(ctx, remote, false)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	if err != nil {
		s.logger.Warn("drawing cache write failed", zap.String(logger.FieldKey, key.String()), zap.Error(err))
		return remote, nil
	}
	return out, nil
}

func (s *DrawingService) saveLocal(ctx context.Context, drawing *domain.ScheduleDrawing) (*domain.ScheduleDrawing, error) {
	if err := drawing.Validate(); err != nil {
		return nil, err
	}
	d := drawing.Clone()
	d.Key = normalize(d.Key)

	var saved *domain.ScheduleDrawing
	err := s.queue.Execute(ctx, d.Key.String(), func() error {
		if cur, err := s.store.PeekDrawing(ctx, d.Key); err == nil && cur.Version > d.Version {
			d.Version = cur.Version
		}
		var err error
		saved, err = s.store.UpsertDrawing(ctx, d, true)
		return err
	})
	return saved, err
}

// Save 先写入本地并安排立即推送
func (s *DrawingService) Save(ctx context.Context, drawing *domain.ScheduleDrawing) (*domain.ScheduleDrawing, error) {
	saved, err := s.saveLocal(ctx, drawing)
	if err != nil {
		return nil, err
	}
	s.schedulePush(saved.Key)
	return saved, nil
}

// SaveAndWait 本地写入后同步执行一次推送
func (s *DrawingService) SaveAndWait(ctx context.Context, drawing *domain.ScheduleDrawing) (Outcome[*domain.ScheduleDrawing], error) {
	saved, err := s.saveLocal(ctx, drawing)
	if err != nil {
		return Outcome[*domain.ScheduleDrawing]{}, err
	}
	return s.Push(ctx, saved.Key), nil
}

func (s *DrawingService) schedulePush(key domain.DrawingKey) {
	if s.pool == nil {
		return
	}
	err := s.pool.SubmitAsync(context.Background(), func(ctx context.Context) error {
		return s.Push(ctx, key).Err
	})
	if err != nil {
		s.logger.Debug("drawing push left to the sync coordinator", zap.String(logger.FieldKey, key.String()), zap.Error(err))
	}
}

// Push serializes pushes of one key but stays outside its write queue, so local saves never wait on the network
// Push 同一键的推送串行执行，但不占用写队列，本地保存不会等待网络
func (s *DrawingService) Push(ctx context.Context, key domain.DrawingKey) Outcome[*domain.ScheduleDrawing] {
	key = normalize(key)
	unlock, err := s.pushes.Lock(ctx, key.String())
	if err != nil {
		return s.pushed(Outcome[*domain.ScheduleDrawing]{State: domain.SyncStateFailed, Err: err})
	}
	defer unlock()
	return s.push(ctx, key)
}

func (s *DrawingService) push(ctx context.Context, key domain.DrawingKey) Outcome[*domain.ScheduleDrawing] {
	local, err := s.store.PeekDrawing(ctx, key)
	if err != nil {
		if domain.IsNotFound(err) {
			return Outcome[*domain.ScheduleDrawing]{State: domain.SyncStateClean}
		}
		return s.pushed(Outcome[*domain.ScheduleDrawing]{State: domain.SyncStateFailed, Err: err})
	}
	if !local.Cache.IsDirty {
		return Outcome[*domain.ScheduleDrawing]{Entity: local, State: domain.SyncStateClean}
	}

	remote, err := s.remote.SaveDrawing(ctx, local, local.Version)
	if err != nil {
		state := domain.SyncStateFailed
		switch {
		case domain.IsConflict(err):
			state = domain.SyncStateConflict
		case domain.IsValidation(err):
			state = domain.SyncStateRejected
		}
		failedPush(ctx, s.store, s.logger, domain.KindDrawing, key.String(), local.Cache.Revision, state, err)
		s.logger.Debug("drawing push failed",
			zap.String(logger.FieldKey, key.String()),
			zap.Int64(logger.FieldVersion, local.Version),
			zap.String("state", string(state)),
			zap.Error(err))
		return s.pushed(Outcome[*domain.ScheduleDrawing]{Entity: local, State: state, Err: err})
	}
	if _, err := s.store.MarkDrawingClean(ctx, key, remote.Version, local.Cache.Revision); err != nil {
		return s.pushed(Outcome[*domain.ScheduleDrawing]{Entity: local, State: domain.SyncStateFailed, Err: err})
	}
	current, err := s.store.PeekDrawing(ctx, key)
	if err != nil {
		current = remote
	}
	return s.pushed(Outcome[*domain.ScheduleDrawing]{Entity: current, State: domain.SyncStateClean})
}

func (s *DrawingService) pushed(o Outcome[*domain.ScheduleDrawing]) Outcome[*domain.ScheduleDrawing] {
	pushOutcomes.WithLabelValues(kindDrawing, string(o.State)).Inc()
	return o
}

// ResolveConflict 用服务端副本覆盖缓存（服务端优先）
func (s *DrawingService) ResolveConflict(ctx context.Context, key domain.DrawingKey) (*domain.ScheduleDrawing, error) {
	key = normalize(key)
	unlock, err := s.pushes.Lock(ctx, key.String())
	if err != nil {
		return nil, err
	}
	defer unlock()
	remote, err := s.remote.FetchDrawing(ctx, key)
	if err != nil {
		if domain.IsNotFound(err) {
			if derr := s.store.DeleteDrawing(ctx, key); derr != nil {
				return nil, derr
			}
		}
		return nil, err
	}
	var saved *domain.ScheduleDrawing
	err = s.queue.Execute(ctx, key.String(), func() error {
		var err error
		saved, err = s.store.UpsertDrawing(ctx, remote, false)
		return err
	})
	return saved, err
}

// Delete 删除本地手绘，远端删除失败只记录日志
func (s *DrawingService) Delete(ctx context.Context, key domain.DrawingKey) error {
	key = normalize(key)
	err := s.queue.Execute(ctx, key.String(), func() error {
		return s.store.DeleteDrawing(ctx, key)
	})
	if err != nil {
		return err
	}
	if err := s.remote.DeleteDrawing(ctx, key); err != nil && !domain.IsNotFound(err) {
		s.logger.Warn("remote drawing delete failed", zap.String(logger.FieldKey, key.String()), zap.Error(err))
	}
	return nil
}

// Preload caches every day x view mode drawing in [From, To)
// Preload 缓存 [From, To) 内每一天每个视图模式的手绘
func (s *DrawingService) Preload(ctx context.Context, r PreloadRange) (PreloadReport, error) {
	var report PreloadReport
	from, to := util.NormalizeDay(r.From), util.NormalizeDay(r.To)
	var keys []domain.DrawingKey
	for day := from; day.Before(to); day = day.Add(24 * time.Hour) {
		for _, mode := range s.config.viewModes() {
			keys = append(keys, domain.NewDrawingKey(r.BookUUID, day, mode))
		}
	}
	report.Requested = len(keys)

	fresh, err := s.store.FreshDrawingKeys(ctx, keys)
	if err != nil {
		return report, err
	}

	var loaded, missing, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.preloadLimit())
	for _, key := range keys {
		if fresh[key.String()] {
			report.Skipped++
			continue
		}
		g.Go(func() error {
			d, err := s.remote.FetchDrawing(gctx, key)
			switch {
			case domain.IsNotFound(err):
				missing.Add(1)
				return nil
			case err != nil:
				failed.Add(1)
				return nil
			}
			err = s.queue.Execute(gctx, key.String(), func() error {
				if local, lerr := s.store.PeekDrawing(gctx, key); lerr == nil && local.Cache.IsDirty {
					return nil
				}
				_, err := s.store.UpsertDrawing(gctx, d, false)
				return err
			})
			if err != nil {
				failed.Add(1)
				return nil
			}
			loaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report.Loaded = int(loaded.Load())
	report.Missing = int(missing.Load())
	report.Failed = int(failed.Load())
	s.logger.Info("drawings preloaded",
		zap.String(logger.FieldBookUUID, r.BookUUID),
		zap.Int("requested", report.Requested),
		zap.Int("skipped", report.Skipped),
		zap.Int("loaded", report.Loaded),
		zap.Int("failed", report.Failed))
	return report, nil
}
