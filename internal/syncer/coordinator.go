// Package syncer pushes dirty cache entries to the server in resumable batches
// Package syncer 以可恢复的批次将缓存中的脏条目推送到服务端
package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/cache"
	"github.com/haierkeys/schedule-note-sync/internal/content"
	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NoteSyncer 笔记推送与冲突解决
type NoteSyncer interface {
	Push(ctx context.Context, recordUUID string) content.Outcome[*domain.Note]
	ResolveConflict(ctx context.Context, recordUUID string) (*domain.Note, error)
}

// DrawingSyncer 手绘推送与冲突解决
type DrawingSyncer interface {
	Push(ctx context.Context, key domain.DrawingKey) content.Outcome[*domain.ScheduleDrawing]
	ResolveConflict(ctx context.Context, key domain.DrawingKey) (*domain.ScheduleDrawing, error)
}

// EventLister lists a book's events, used to find the records of one book
// EventLister 列出日程本的预约，用于查找某个日程本涉及的档案
type EventLister interface {
	ListEvents(ctx context.Context, r domain.EventRange) ([]*domain.Event, error)
}

// Config 同步协调器配置
type Config struct {
	// Concurrency 单个批次内同时推送的条目数，默认 4
	Concurrency int
}

func (c Config) limit() int {
	if c.Concurrency <= 0 {
		return 4
	}
	return c.Concurrency
}

// Coordinator 同步协调器
type Coordinator struct {
	store    *cache.Store
	notes    NoteSyncer
	drawings DrawingSyncer
	events   EventLister
	config   Config
	logger   *zap.Logger

	// batchMu one batch at a time per device
	// batchMu 每台设备同一时间只运行一个批次
	batchMu sync.Mutex
	running atomic.Int32
	offline atomic.Bool
}

// NewCoordinator 创建同步协调器
func NewCoordinator(store *cache.Store, notes NoteSyncer, drawings DrawingSyncer, events EventLister, cfg Config, lg *zap.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		notes:    notes,
		drawings: drawings,
		events:   events,
		config:   cfg,
		logger:   logger.OrNop(lg),
	}
}

// task is one dirty entry; push returns the item after conflict resolution
type task struct {
	key  string
	push func(ctx context.Context) Item
}

// movedOn reports whether the entry changed since the pushed snapshot, in which case
// the conflict may stem from this device's own earlier push and one more push is due
// movedOn 条目自推送的快照之后是否已变化；此时冲突可能来自本设备更早的推送，应再推送一次
func movedOn(pushed *domain.CacheMeta, pushedVersion int64, cur *domain.CacheMeta, curVersion int64) bool {
	return pushed != nil && cur != nil && cur.IsDirty &&
		(cur.Revision != pushed.Revision || curVersion != pushedVersion)
}

func (c *Coordinator) noteTask(recordUUID string) task {
	return task{key: recordUUID, push: func(ctx context.Context) Item {
		out := c.notes.Push(ctx, recordUUID)
		if out.State == domain.SyncStateConflict && out.Entity != nil {
			if cur, err := c.store.PeekNote(ctx, recordUUID); err == nil &&
				movedOn(&out.Entity.Cache, out.Entity.Version, &cur.Cache, cur.Version) {
				out = c.notes.Push(ctx, recordUUID)
			}
		}
		it := Item{Kind: domain.KindNote, Key: recordUUID, State: out.State, Err: out.Err}
		if out.Entity != nil {
			it.Version = out.Entity.Version
		}
		if out.State != domain.SyncStateConflict {
			return it
		}
		n, err := c.notes.ResolveConflict(ctx, recordUUID)
		if err != nil {
			it.State, it.Err = domain.SyncStateFailed, err
			return it
		}
		it.Version = n.Version
		return it
	}}
}

func (c *Coordinator) drawingTask(key domain.DrawingKey) task {
	return task{key: key.String(), push: func(ctx context.Context) Item {
		out := c.drawings.Push(ctx, key)
		if out.State == domain.SyncStateConflict && out.Entity != nil {
			if cur, err := c.store.PeekDrawing(ctx, key); err == nil &&
				movedOn(&out.Entity.Cache, out.Entity.Version, &cur.Cache, cur.Version) {
				out = c.drawings.Push(ctx, key)
			}
		}
		it := Item{Kind: domain.KindDrawing, Key: key.String(), State: out.State, Err: out.Err}
		if out.Entity != nil {
			it.Version = out.Entity.Version
		}
		if out.State != domain.SyncStateConflict {
			return it
		}
		d, err := c.drawings.ResolveConflict(ctx, key)
		if err != nil {
			it.State, it.Err = domain.SyncStateFailed, err
			return it
		}
		it.Version = d.Version
		return it
	}}
}

// run pushes every task independently; an interrupted batch leaves the rest dirty for the next run
// run 独立推送每个条目，被中断的批次剩余条目保持脏状态等待下次同步
func (c *Coordinator) run(ctx context.Context, kind domain.EntityKind, tasks []task, o syncOptions) (Report, error) {
	c.batchMu.Lock()
	defer c.batchMu.Unlock()
	c.running.Add(1)
	defer c.running.Add(-1)

	start := time.Now()
	report := Report{Kind: kind, Total: len(tasks)}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(c.config.limit())
	for _, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			it := t.push(ctx)
			itemTotal.WithLabelValues(string(kind), string(it.State)).Inc()
			if it.Err != nil && it.State == domain.SyncStateFailed {
				c.logger.Debug("sync entry failed",
					zap.String(logger.FieldKind, string(kind)),
					zap.String(logger.FieldKey, it.Key),
					zap.Error(it.Err))
			}
			mu.Lock()
			report.add(it, o.detail)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	batchTotal.WithLabelValues(string(kind)).Inc()
	batchDuration.WithLabelValues(string(kind)).Observe(report.Duration.Seconds())
	c.observe(report)

	c.logger.Info("sync batch finished",
		zap.String(logger.FieldKind, string(kind)),
		zap.Int("total", report.Total),
		zap.Int("clean", report.Clean),
		zap.Int("conflicts", report.Conflicts),
		zap.Int("rejected", report.Rejected),
		zap.Int("failed", report.Failed),
		zap.Duration(logger.FieldDuration, report.Duration))
	return report, ctx.Err()
}

// observe 根据批次结果更新离线标记
func (c *Coordinator) observe(r Report) {
	switch {
	case r.NetworkFailures > 0 && r.Clean == 0 && r.Conflicts == 0 && r.Rejected == 0:
		c.offline.Store(true)
	case r.Clean > 0 || r.Conflicts > 0 || r.Rejected > 0:
		c.offline.Store(false)
	}
}

// SyncAllDirtyNotes pushes every dirty note
// SyncAllDirtyNotes 推送所有脏笔记
func (c *Coordinator) SyncAllDirtyNotes(ctx context.Context, opts ...Option) (Report, error) {
	dirty, err := c.store.DirtyNotes(ctx)
	if err != nil {
		return Report{Kind: domain.KindNote}, err
	}
	tasks := make([]task, 0, len(dirty))
	for _, n := range dirty {
		tasks = append(tasks, c.noteTask(n.RecordUUID))
	}
	return c.run(ctx, domain.KindNote, tasks, applyOptions(opts))
}

// SyncAllDirtyDrawings 推送所有脏手绘
func (c *Coordinator) SyncAllDirtyDrawings(ctx context.Context, opts ...Option) (Report, error) {
	dirty, err := c.store.DirtyDrawings(ctx)
	if err != nil {
		return Report{Kind: domain.KindDrawing}, err
	}
	tasks := make([]task, 0, len(dirty))
	for _, d := range dirty {
		tasks = append(tasks, c.drawingTask(d.Key))
	}
	return c.run(ctx, domain.KindDrawing, tasks, applyOptions(opts))
}

// SyncDirtyNotesForBook pushes the dirty notes of records that have events in the book
// SyncDirtyNotesForBook 推送在该日程本中有预约的档案的脏笔记
func (c *Coordinator) SyncDirtyNotesForBook(ctx context.Context, bookUUID string, opts ...Option) (Report, error) {
	events, err := c.events.ListEvents(ctx, domain.EventRange{BookUUID: bookUUID})
	if err != nil {
		if domain.IsNetwork(err) {
			c.offline.Store(true)
		}
		return Report{Kind: domain.KindNote}, err
	}
	uuids := make([]string, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if _, ok := seen[e.RecordUUID]; ok || e.RecordUUID == "" {
			continue
		}
		seen[e.RecordUUID] = struct{}{}
		uuids = append(uuids, e.RecordUUID)
	}

	dirty, err := c.store.DirtyNotesIn(ctx, uuids)
	if err != nil {
		return Report{Kind: domain.KindNote}, err
	}
	tasks := make([]task, 0, len(dirty))
	for _, n := range dirty {
		tasks = append(tasks, c.noteTask(n.RecordUUID))
	}
	return c.run(ctx, domain.KindNote, tasks, applyOptions(opts))
}

// SyncAll 先推送笔记再推送手绘
func (c *Coordinator) SyncAll(ctx context.Context, opts ...Option) (Summary, error) {
	var s Summary
	var err error
	if s.Notes, err = c.SyncAllDirtyNotes(ctx, opts...); err != nil {
		return s, err
	}
	s.Drawings, err = c.SyncAllDirtyDrawings(ctx, opts...)
	return s, err
}

// HasPendingChanges 是否存在未推送的本地修改
func (c *Coordinator) HasPendingChanges(ctx context.Context) (bool, error) {
	return c.store.HasDirty(ctx)
}

// Indicator SYNCING while a batch runs, OFFLINE after a batch failed only on transport errors
// Indicator 批次运行中为 SYNCING，批次仅因传输错误失败后为 OFFLINE
func (c *Coordinator) Indicator() domain.Indicator {
	if c.running.Load() > 0 {
		return domain.IndicatorSyncing
	}
	if c.offline.Load() {
		return domain.IndicatorOffline
	}
	return domain.IndicatorOnline
}

// MarkOnline lets a successful health probe clear the offline state
// MarkOnline 健康探测成功后清除离线状态
func (c *Coordinator) MarkOnline(online bool) {
	c.offline.Store(!online)
}
