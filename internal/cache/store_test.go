package cache

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/pkg/workerpool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeClock) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "cache.sqlite3"), nil)
	require.NoError(t, err)
	clock := newFakeClock()
	s := New(db, nil, append([]Option{WithClock(clock.Now)}, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func testNote(recordUUID string, strokes ...string) *domain.Note {
	page := make([]domain.Stroke, 0, len(strokes))
	for _, id := range strokes {
		page = append(page, domain.Stroke{ID: id, StrokeWidth: 1.5, Points: []domain.Point{{X: 1, Y: 2}}})
	}
	return &domain.Note{RecordUUID: recordUUID, Pages: [][]domain.Stroke{page}}
}

func bigDrawing(day int, points int) *domain.ScheduleDrawing {
	pts := make([]domain.Point, points)
	for i := range pts {
		pts[i] = domain.Point{X: 1, Y: 1}
	}
	return &domain.ScheduleDrawing{
		Key:     domain.NewDrawingKey("book", time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC), 0),
		Strokes: []domain.Stroke{{ID: "s", StrokeWidth: 1, Points: pts}},
	}
}

func TestStore_NoteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	in := testNote("r-1", "a", "b")
	in.ErasedStrokesByEvent = map[string][]string{"e-1": {"x"}}
	in.Version = 3
	saved, err := s.UpsertNote(ctx, in, true)
	require.NoError(t, err)
	assert.True(t, saved.Cache.IsDirty)
	assert.Equal(t, int64(1), saved.Cache.Revision)
	assert.Equal(t, clock.Now().UnixMilli(), saved.Cache.CachedAt.UnixMilli())

	got, err := s.GetNote(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, in.Pages, got.Pages)
	assert.Equal(t, in.ErasedStrokesByEvent, got.ErasedStrokesByEvent)
	assert.Equal(t, int64(3), got.Version)
	assert.True(t, got.Cache.IsDirty)
	assert.Equal(t, int64(1), got.Cache.CacheHitCount)

	entries, err := s.Outbox(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.KindNote, entries[0].Kind)
	assert.Equal(t, "r-1", entries[0].Key)

	_, err = s.GetNote(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_PeekDoesNotCountHits(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.UpsertNote(ctx, testNote("r-1", "a"), false)
	require.NoError(t, err)

	_, err = s.PeekNote(ctx, "r-1")
	require.NoError(t, err)
	got, err := s.PeekNote(ctx, "r-1")
	require.NoError(t, err)
	assert.Zero(t, got.Cache.CacheHitCount)
}

func TestStore_HitCountSurvivesUpsert(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.UpsertNote(ctx, testNote("r-1", "a"), false)
	require.NoError(t, err)
	_, err = s.GetNote(ctx, "r-1")
	require.NoError(t, err)

	saved, err := s.UpsertNote(ctx, testNote("r-1", "a", "b"), true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Cache.CacheHitCount)
	assert.Equal(t, int64(2), saved.Cache.Revision)
}

func TestStore_TTLBoundary(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	require.NoError(t, s.SavePolicy(ctx, domain.CachePolicy{MaxCacheSizeMb: 50, CacheDurationDays: 7, AutoCleanup: true}))

	_, err := s.UpsertNote(ctx, testNote("r-1", "a"), false)
	require.NoError(t, err)

	clock.Advance(7*24*time.Hour - time.Second)
	n, err := s.EvictExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "one second before the boundary")

	clock.Advance(time.Second)
	n, err = s.EvictExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "exactly at the boundary")

	clock.Advance(time.Second)
	n, err = s.EvictExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "one second past the boundary")

	_, err = s.PeekNote(ctx, "r-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_DirtySurvivesEviction(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	_, err := s.UpsertNote(ctx, testNote("dirty", "a"), true)
	require.NoError(t, err)
	_, err = s.UpsertDrawing(ctx, bigDrawing(2, 10), true)
	require.NoError(t, err)
	_, err = s.UpsertNote(ctx, testNote("clean", "a"), false)
	require.NoError(t, err)

	clock.Advance(365 * 24 * time.Hour)

	n, err := s.EvictExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.EvictLRU(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.PeekNote(ctx, "dirty")
	assert.NoError(t, err)
	_, err = s.PeekDrawing(ctx, bigDrawing(2, 10).Key)
	assert.NoError(t, err)
}

func TestStore_EvictLRUOrderAndIdempotence(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	// 三份约 420KB 的手绘，总量超过 1MB
	a, err := s.UpsertDrawing(ctx, bigDrawing(1, 30000), false)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	b, err := s.UpsertDrawing(ctx, bigDrawing(2, 30000), false)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	c, err := s.UpsertDrawing(ctx, bigDrawing(3, 30000), false)
	require.NoError(t, err)

	total := a.Cache.SizeBytes + b.Cache.SizeBytes + c.Cache.SizeBytes
	require.Greater(t, total, int64(bytesPerMb))
	require.LessOrEqual(t, total-a.Cache.SizeBytes, int64(bytesPerMb))

	for i := 0; i < 2; i++ {
		_, err = s.GetDrawing(ctx, b.Key)
		require.NoError(t, err)
	}
	_, err = s.GetDrawing(ctx, c.Key)
	require.NoError(t, err)

	n, err := s.EvictLRU(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.PeekDrawing(ctx, a.Key)
	assert.ErrorIs(t, err, domain.ErrNotFound, "least hit entry goes first")
	_, err = s.PeekDrawing(ctx, b.Key)
	assert.NoError(t, err)
	_, err = s.PeekDrawing(ctx, c.Key)
	assert.NoError(t, err)

	n, err = s.EvictLRU(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.EvictLRU(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = s.EvictLRU(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_EvictLRUTieBreaksByAge(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	older, err := s.UpsertDrawing(ctx, bigDrawing(5, 40000), false)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	newer, err := s.UpsertDrawing(ctx, bigDrawing(6, 40000), false)
	require.NoError(t, err)
	require.Greater(t, older.Cache.SizeBytes+newer.Cache.SizeBytes, int64(bytesPerMb))

	n, err := s.EvictLRU(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = s.PeekDrawing(ctx, older.Key)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.PeekDrawing(ctx, newer.Key)
	assert.NoError(t, err)
}

func TestStore_RevisionGuard(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	first, err := s.UpsertNote(ctx, testNote("r-1", "a"), true)
	require.NoError(t, err)
	// 推送进行中又有新的本地修改
	second, err := s.UpsertNote(ctx, testNote("r-1", "a", "b"), true)
	require.NoError(t, err)

	cleared, err := s.MarkNoteClean(ctx, "r-1", 1, first.Cache.Revision)
	require.NoError(t, err)
	assert.False(t, cleared)

	got, err := s.PeekNote(ctx, "r-1")
	require.NoError(t, err)
	assert.True(t, got.Cache.IsDirty)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, 2, got.StrokeCount())

	cleared, err = s.MarkNoteClean(ctx, "r-1", 2, second.Cache.Revision)
	require.NoError(t, err)
	assert.True(t, cleared)

	got, err = s.PeekNote(ctx, "r-1")
	require.NoError(t, err)
	assert.False(t, got.Cache.IsDirty)
	assert.Equal(t, int64(2), got.Version)

	dirty, err := s.HasDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestStore_DrawingDayNormalization(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	d := &domain.ScheduleDrawing{
		Key:     domain.DrawingKey{BookUUID: "b", Date: time.Date(2026, 3, 4, 17, 45, 0, 0, time.UTC), ViewMode: 1},
		Strokes: []domain.Stroke{{ID: "s1", StrokeWidth: 2}},
	}
	_, err := s.UpsertDrawing(ctx, d, true)
	require.NoError(t, err)

	got, err := s.GetDrawing(ctx, domain.NewDrawingKey("b", time.Date(2026, 3, 4, 1, 0, 0, 0, time.UTC), 1))
	require.NoError(t, err)
	assert.Equal(t, "s1", got.Strokes[0].ID)
	assert.True(t, got.Cache.IsDirty)

	cleared, err := s.MarkDrawingClean(ctx, got.Key, 1, got.Cache.Revision)
	require.NoError(t, err)
	assert.True(t, cleared)

	dirty, err := s.DirtyDrawings(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestStore_StatsAccuracy(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	n1, err := s.UpsertNote(ctx, testNote("r-1", "a"), true)
	require.NoError(t, err)
	n2, err := s.UpsertNote(ctx, testNote("r-2", "a", "b"), false)
	require.NoError(t, err)
	d1, err := s.UpsertDrawing(ctx, bigDrawing(3, 5), true)
	require.NoError(t, err)

	_, err = s.GetNote(ctx, "r-2")
	require.NoError(t, err)
	_, err = s.GetNote(ctx, "r-2")
	require.NoError(t, err)
	_, err = s.GetDrawing(ctx, d1.Key)
	require.NoError(t, err)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.NotesCount)
	assert.Equal(t, int64(1), st.DrawingsCount)
	assert.Equal(t, int64(1), st.DirtyNotes)
	assert.Equal(t, int64(1), st.DirtyDrawings)
	assert.Equal(t, n1.Cache.SizeBytes+n2.Cache.SizeBytes+d1.Cache.SizeBytes, st.TotalSizeBytes)
	assert.Equal(t, int64(3), st.TotalHits)
	assert.Equal(t, int64(2), st.PendingOutbox)

	mb, err := s.SizeMb(ctx)
	require.NoError(t, err)
	assert.InDelta(t, st.TotalSizeMb(), mb, 1e-9)
}

func TestStore_CancelPending(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.UpsertNote(ctx, testNote("r-1", "a"), true)
	require.NoError(t, err)
	require.NoError(t, s.RecordAttempt(ctx, domain.KindNote, "r-1", assert.AnError))

	entries, err := s.Outbox(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Attempts)
	assert.Equal(t, assert.AnError.Error(), entries[0].LastError)

	require.NoError(t, s.CancelPending(ctx, domain.KindNote, "r-1"))

	dirty, err := s.HasDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)
	got, err := s.PeekNote(ctx, "r-1")
	require.NoError(t, err)
	assert.False(t, got.Cache.IsDirty)
}

func TestStore_PolicyDefaultsAndSave(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, WithDefaultPolicy(domain.CachePolicy{MaxCacheSizeMb: 10, CacheDurationDays: 3, AutoCleanup: false}))

	p, err := s.Policy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, p.MaxCacheSizeMb)
	assert.Equal(t, 3, p.CacheDurationDays)
	assert.False(t, p.AutoCleanup)

	assert.True(t, domain.IsValidation(s.SavePolicy(ctx, domain.CachePolicy{MaxCacheSizeMb: -1})))

	p.AutoCleanup = true
	require.NoError(t, s.SavePolicy(ctx, p))

	// 新实例从数据库读取
	fresh := New(s.db, nil)
	got, err := fresh.Policy(ctx)
	require.NoError(t, err)
	assert.True(t, got.AutoCleanup)
	assert.Equal(t, 3, got.CacheDurationDays)
}

func TestStore_StartupCleanupDisabledIsNoop(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	require.NoError(t, s.SavePolicy(ctx, domain.CachePolicy{MaxCacheSizeMb: 1, CacheDurationDays: 1, AutoCleanup: false}))

	_, err := s.UpsertNote(ctx, testNote("r-1", "a"), false)
	require.NoError(t, err)
	clock.Advance(30 * 24 * time.Hour)

	res, err := s.PerformStartupCleanup(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	_, err = s.PeekNote(ctx, "r-1")
	assert.NoError(t, err)

	p, err := s.Policy(ctx)
	require.NoError(t, err)
	assert.Nil(t, p.LastCleanupAt)
}

func TestStore_StartupCleanup(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	require.NoError(t, s.SavePolicy(ctx, domain.CachePolicy{MaxCacheSizeMb: 1, CacheDurationDays: 1, AutoCleanup: true}))

	_, err := s.UpsertNote(ctx, testNote("old", "a"), false)
	require.NoError(t, err)
	clock.Advance(48 * time.Hour)
	_, err = s.UpsertDrawing(ctx, bigDrawing(1, 50000), false)
	require.NoError(t, err)
	_, err = s.UpsertDrawing(ctx, bigDrawing(2, 50000), false)
	require.NoError(t, err)

	res, err := s.PerformStartupCleanup(ctx)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, int64(1), res.Expired)
	assert.Equal(t, int64(1), res.Evicted)

	p, err := s.Policy(ctx)
	require.NoError(t, err)
	require.NotNil(t, p.LastCleanupAt)
	assert.Equal(t, clock.Now().UnixMilli(), p.LastCleanupAt.UnixMilli())
}

func TestStore_SizeTriggeredAsyncEviction(t *testing.T) {
	ctx := context.Background()
	pool := workerpool.New(&workerpool.Config{MaxWorkers: 1, QueueSize: 4}, nil)
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	s, clock := newTestStore(t, WithWorkerPool(pool))
	require.NoError(t, s.SavePolicy(ctx, domain.CachePolicy{MaxCacheSizeMb: 1, CacheDurationDays: 7, AutoCleanup: true}))

	for day := 1; day <= 3; day++ {
		_, err := s.UpsertDrawing(ctx, bigDrawing(day, 30000), false)
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, pool.WaitIdle(waitCtx))

	mb, err := s.SizeMb(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, mb, 1.0)
}

func TestStore_DeleteRemovesOutbox(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	d, err := s.UpsertDrawing(ctx, bigDrawing(9, 3), true)
	require.NoError(t, err)
	require.NoError(t, s.DeleteDrawing(ctx, d.Key))
	_, err = s.UpsertNote(ctx, testNote("r-1"), true)
	require.NoError(t, err)
	require.NoError(t, s.DeleteNote(ctx, "r-1"))

	entries, err := s.Outbox(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_DirtyUpsertKeepsConfirmedVersion(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	first, err := s.UpsertNote(ctx, testNote("r-1", "a"), true)
	require.NoError(t, err)
	cleared, err := s.MarkNoteClean(ctx, "r-1", 3, first.Cache.Revision)
	require.NoError(t, err)
	require.True(t, cleared)

	// 本地编辑基于推送前读到的旧版本
	stale := testNote("r-1", "a", "b")
	stale.Version = 0
	got, err := s.UpsertNote(ctx, stale, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.True(t, got.Cache.IsDirty)

	// 服务端副本按原样写入
	server := testNote("r-1", "z")
	server.Version = 2
	got, err = s.UpsertNote(ctx, server, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)

	d := bigDrawing(2, 1)
	saved, err := s.UpsertDrawing(ctx, d, true)
	require.NoError(t, err)
	_, err = s.MarkDrawingClean(ctx, d.Key, 5, saved.Cache.Revision)
	require.NoError(t, err)
	d.Version = 1
	savedDrawing, err := s.UpsertDrawing(ctx, d, true)
	require.NoError(t, err)
	assert.Equal(t, int64(5), savedDrawing.Version)
}

func TestStore_RejectPending(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	first, err := s.UpsertNote(ctx, testNote("r-1", "a"), true)
	require.NoError(t, err)
	second, err := s.UpsertNote(ctx, testNote("r-1", "a", "b"), true)
	require.NoError(t, err)

	// 旧 revision 被拒绝时，新的本地修改仍待推送
	rejected, err := s.RejectPending(ctx, domain.KindNote, "r-1", first.Cache.Revision)
	require.NoError(t, err)
	assert.False(t, rejected)
	entries, err := s.Outbox(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	rejected, err = s.RejectPending(ctx, domain.KindNote, "r-1", second.Cache.Revision)
	require.NoError(t, err)
	assert.True(t, rejected)

	dirty, err := s.HasDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)
	fresh, err := s.FreshNoteKeys(ctx, []string{"r-1"})
	require.NoError(t, err)
	assert.False(t, fresh["r-1"], "rejected entry must be refetched")

	_, err = s.RejectPending(ctx, domain.EntityKind("bogus"), "x", 1)
	assert.True(t, domain.IsValidation(err))
}
