package content

import (
	"context"
	"sync/atomic"

	"github.com/haierkeys/schedule-note-sync/internal/cache"
	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/pkg/logger"
	"github.com/haierkeys/schedule-note-sync/pkg/workerpool"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const kindNote = string(domain.KindNote)

// NoteService cache-first access to notes, keyed by record UUID
// NoteService 以档案 UUID 为键的缓存优先笔记访问
type NoteService struct {
	store  *cache.Store
	remote RemoteStore
	pool   *workerpool.Pool
	config Config
	logger *zap.Logger

	refresh singleflight.Group
	pushes  keyLock
}

// NewNoteService pool may be nil, in which case Save leaves the push to the sync coordinator
// NewNoteService pool 可为空，此时 Save 不立即推送，交由同步协调器处理
func NewNoteService(store *cache.Store, remote RemoteStore, pool *workerpool.Pool, cfg Config, lg *zap.Logger) *NoteService {
	return &NoteService{store: store, remote: remote, pool: pool, config: cfg, logger: logger.OrNop(lg)}
}

// Get returns the cached note without any network call unless forced; remote failures fall back to the cache
// Get 未强制刷新时直接返回缓存且不访问网络；远端失败时回退到缓存
func (s *NoteService) Get(ctx context.Context, recordUUID string, opts ...GetOption) (*domain.Note, error) {
	o := applyGetOptions(opts)
	if !o.forceRefresh {
		n, err := s.store.GetNote(ctx, recordUUID)
		if err == nil {
			return n, nil
		}
		if !domain.IsNotFound(err) {
			s.logger.Warn("note cache read failed",
				zap.String(logger.FieldRecordUUID, recordUUID),
				zap.Error(err))
		}
	}

	v, _, _ := s.refresh.Do(recordUUID, func() (any, error) {
		return s.fetch(ctx, recordUUID)
	})
	if n, ok := v.(*domain.Note); ok && n != nil {
		return n, nil
	}
	return nil, domain.ErrNotFound
}

// fetch never returns an error other than ErrNotFound
// fetch 只会返回 ErrNotFound 错误
func (s *NoteService) fetch(ctx context.Context, recordUUID string) (*domain.Note, error) {
	remote, err := s.remote.FetchNote(ctx, recordUUID)
	if err != nil {
		if local, lerr := s.store.GetNote(ctx, recordUUID); lerr == nil {
			remoteFallbacks.WithLabelValues(kindNote).Inc()
			s.logger.Debug("note served from cache after remote failure",
				zap.String(logger.FieldRecordUUID, recordUUID),
				zap.Error(err))
			return local, nil
		}
		if !domain.IsNotFound(err) {
			s.logger.Warn("note fetch failed",
				zap.String(logger.FieldRecordUUID, recordUUID),
				zap.Error(err))
		}
		return nil, domain.ErrNotFound
	}

	// 未推送的本地修改优先于服务端副本
	if local, lerr := s.store.PeekNote(ctx, recordUUID); lerr == nil && local.Cache.IsDirty {
		return local, nil
	}
	saved, err := s.store.UpsertNote(ctx, remote, false)
	if err != nil {
		s.logger.Warn("note cache write failed",
			zap.String(logger.FieldRecordUUID, recordUUID),
			zap.Error(err))
		return remote, nil
	}
	return saved, nil
}

// saveLocal stores the note dirty, keeping the highest server version this device knows
// saveLocal 以脏状态写入笔记，保留本设备已知的最高服务端版本
func (s *NoteService) saveLocal(ctx context.Context, note *domain.Note) (*domain.Note, error) {
	if err := note.Validate(); err != nil {
		return nil, err
	}
	n := note.Clone()
	if cur, err := s.store.PeekNote(ctx, n.RecordUUID); err == nil {
		if cur.Version > n.Version {
			n.Version = cur.Version
		}
		if n.LockedByDeviceID == "" && n.LockedAt == nil {
			n.LockedByDeviceID, n.LockedAt = cur.LockedByDeviceID, cur.LockedAt
		}
	}
	return s.store.UpsertNote(ctx, n, true)
}

// Save writes locally and schedules an immediate push; remote problems never fail it
// Save 先写入本地并安排立即推送，远端问题不会导致失败
func (s *NoteService) Save(ctx context.Context, note *domain.Note) (*domain.Note, error) {
	saved, err := s.saveLocal(ctx, note)
	if err != nil {
		return nil, err
	}
	s.schedulePush(saved.RecordUUID)
	return saved, nil
}

// SaveAndWait 本地写入后同步执行一次推送并返回推送结果
func (s *NoteService) SaveAndWait(ctx context.Context, note *domain.Note) (Outcome[*domain.Note], error) {
	saved, err := s.saveLocal(ctx, note)
	if err != nil {
		return Outcome[*domain.Note]{}, err
	}
	return s.Push(ctx, saved.RecordUUID), nil
}

func (s *NoteService) schedulePush(recordUUID string) {
	if s.pool == nil {
		return
	}
	err := s.pool.SubmitAsync(context.Background(), func(ctx context.Context) error {
		return s.Push(ctx, recordUUID).Err
	})
	if err != nil {
		s.logger.Debug("note push left to the sync coordinator",
			zap.String(logger.FieldRecordUUID, recordUUID),
			zap.Error(err))
	}
}

// Push sends the current dirty entry with its version as the expected version.
// Pushes of one record run one at a time, so a later push always starts from the version the earlier one confirmed.
// Push 以当前版本作为期望版本推送脏条目；同一档案的推送逐个执行，后一次推送总是基于前一次确认的版本
func (s *NoteService) Push(ctx context.Context, recordUUID string) Outcome[*domain.Note] {
	unlock, err := s.pushes.Lock(ctx, recordUUID)
	if err != nil {
		return s.pushed(Outcome[*domain.Note]{State: domain.SyncStateFailed, Err: err})
	}
	defer unlock()
	return s.push(ctx, recordUUID)
}

func (s *NoteService) push(ctx context.Context, recordUUID string) Outcome[*domain.Note] {
	local, err := s.store.PeekNote(ctx, recordUUID)
	if err != nil {
		if domain.IsNotFound(err) {
			return Outcome[*domain.Note]{State: domain.SyncStateClean}
		}
		return s.pushed(Outcome[*domain.Note]{State: domain.SyncStateFailed, Err: err})
	}
	if !local.Cache.IsDirty {
		return Outcome[*domain.Note]{Entity: local, State: domain.SyncStateClean}
	}

	remote, err := s.remote.SaveNote(ctx, local, local.Version)
	if err != nil {
		state := domain.SyncStateFailed
		switch {
		case domain.IsConflict(err):
			state = domain.SyncStateConflict
		case domain.IsValidation(err):
			state = domain.SyncStateRejected
		}
		failedPush(ctx, s.store, s.logger, domain.KindNote, recordUUID, local.Cache.Revision, state, err)
		s.logger.Debug("note push failed",
			zap.String(logger.FieldRecordUUID, recordUUID),
			zap.Int64(logger.FieldVersion, local.Version),
			zap.String("state", string(state)),
			zap.Error(err))
		return s.pushed(Outcome[*domain.Note]{Entity: local, State: state, Err: err})
	}

	if _, err := s.store.MarkNoteClean(ctx, recordUUID, remote.Version, local.Cache.Revision); err != nil {
		return s.pushed(Outcome[*domain.Note]{Entity: local, State: domain.SyncStateFailed, Err: err})
	}
	current, err := s.store.PeekNote(ctx, recordUUID)
	if err != nil {
		current = remote
	}
	return s.pushed(Outcome[*domain.Note]{Entity: current, State: domain.SyncStateClean})
}

func (s *NoteService) pushed(o Outcome[*domain.Note]) Outcome[*domain.Note] {
	pushOutcomes.WithLabelValues(kindNote, string(o.State)).Inc()
	return o
}

// ResolveConflict overwrites the cache with the server copy (server wins)
// ResolveConflict 用服务端副本覆盖缓存（服务端优先）
func (s *NoteService) ResolveConflict(ctx context.Context, recordUUID string) (*domain.Note, error) {
	unlock, err := s.pushes.Lock(ctx, recordUUID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	remote, err := s.remote.FetchNote(ctx, recordUUID)
	if err != nil {
		if domain.IsNotFound(err) {
			if derr := s.store.DeleteNote(ctx, recordUUID); derr != nil {
				return nil, derr
			}
		}
		return nil, err
	}
	return s.store.UpsertNote(ctx, remote, false)
}

// Delete removes the note locally; the remote delete is best effort and only logged on failure
// Delete 删除本地笔记，远端删除尽力而为，失败只记录日志
func (s *NoteService) Delete(ctx context.Context, recordUUID string) error {
	if err := s.store.DeleteNote(ctx, recordUUID); err != nil {
		return err
	}
	if err := s.remote.DeleteNote(ctx, recordUUID); err != nil && !domain.IsNotFound(err) {
		s.logger.Warn("remote note delete failed",
			zap.String(logger.FieldRecordUUID, recordUUID),
			zap.Error(err))
	}
	return nil
}

// AcquireLease asks the server for the edit lease and mirrors the lock into the cache
// AcquireLease 向服务端申请编辑租约，并将锁信息写入缓存
func (s *NoteService) AcquireLease(ctx context.Context, recordUUID string) (*domain.Note, error) {
	n, err := s.remote.AcquireLease(ctx, recordUUID)
	if n != nil {
		s.mirrorLease(ctx, n)
	}
	return n, err
}

// ReleaseLease 释放编辑租约并清除缓存中的锁信息
func (s *NoteService) ReleaseLease(ctx context.Context, recordUUID string) error {
	if err := s.remote.ReleaseLease(ctx, recordUUID); err != nil {
		return err
	}
	if err := s.store.SetNoteLease(ctx, recordUUID, "", nil); err != nil && !domain.IsNotFound(err) {
		s.logger.Warn("cached lease not cleared", zap.String(logger.FieldRecordUUID, recordUUID), zap.Error(err))
	}
	return nil
}

func (s *NoteService) mirrorLease(ctx context.Context, n *domain.Note) {
	err := s.store.SetNoteLease(ctx, n.RecordUUID, n.LockedByDeviceID, n.LockedAt)
	if domain.IsNotFound(err) {
		_, err = s.store.UpsertNote(ctx, n, false)
	}
	if err != nil {
		s.logger.Warn("cached lease not updated", zap.String(logger.FieldRecordUUID, n.RecordUUID), zap.Error(err))
	}
}

// LeasedByOther reports whether the cached note shows a live lease held by another device
// LeasedByOther 缓存笔记是否显示其他设备持有未过期的租约
func (s *NoteService) LeasedByOther(ctx context.Context, recordUUID string) bool {
	n, err := s.store.PeekNote(ctx, recordUUID)
	if err != nil {
		return false
	}
	return n.LeasedByOther(s.config.DeviceID, s.store.Now(), s.config.LeaseExpiry)
}

// Preload caches the notes of every record with a note among the book's events in range
// Preload 缓存日程本在范围内所有带笔记预约对应的档案笔记
func (s *NoteService) Preload(ctx context.Context, r PreloadRange) (PreloadReport, error) {
	var report PreloadReport
	events, err := s.remote.ListEvents(ctx, domain.EventRange{BookUUID: r.BookUUID, From: r.From, To: r.To})
	if err != nil {
		return report, err
	}

	seen := make(map[string]struct{}, len(events))
	keys := make([]string, 0, len(events))
	for _, e := range events {
		if !e.HasNote || e.RecordUUID == "" {
			continue
		}
		if _, ok := seen[e.RecordUUID]; ok {
			continue
		}
		seen[e.RecordUUID] = struct{}{}
		keys = append(keys, e.RecordUUID)
	}
	report.Requested = len(keys)

	fresh, err := s.store.FreshNoteKeys(ctx, keys)
	if err != nil {
		return report, err
	}

	var loaded, missing, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.preloadLimit())
	for _, key := range keys {
		if fresh[key] {
			report.Skipped++
			continue
		}
		g.Go(func() error {
			n, err := s.remote.FetchNote(gctx, key)
			switch {
			case domain.IsNotFound(err):
				missing.Add(1)
				return nil
			case err != nil:
				failed.Add(1)
				return nil
			}
			if local, lerr := s.store.PeekNote(gctx, key); lerr == nil && local.Cache.IsDirty {
				loaded.Add(1)
				return nil
			}
			if _, err := s.store.UpsertNote(gctx, n, false); err != nil {
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
	s.logger.Info("notes preloaded",
		zap.String(logger.FieldBookUUID, r.BookUUID),
		zap.Int("requested", report.Requested),
		zap.Int("skipped", report.Skipped),
		zap.Int("loaded", report.Loaded),
		zap.Int("failed", report.Failed))
	return report, nil
}
