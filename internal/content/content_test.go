package content

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/cache"
	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/pkg/workerpool"
	"github.com/haierkeys/schedule-note-sync/pkg/writequeue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOffline = errors.New("connection refused")

// fakeRemote is an in-memory server with compare-and-swap writes
type fakeRemote struct {
	mu       sync.Mutex
	device   string
	notes    map[string]*domain.Note
	drawings map[string]*domain.ScheduleDrawing
	events   []*domain.Event

	offline     atomic.Bool
	fetches     atomic.Int32
	deletes     atomic.Int32
	inFlight    atomic.Int32
	overlapped  atomic.Bool
	saveLatency time.Duration

	// noteGate holds every SaveNote until a value arrives or it is closed
	noteGate     chan struct{}
	noteSaves    atomic.Int32
	noteInFlight atomic.Int32
	reject       atomic.Bool
}

func newFakeRemote(device string) *fakeRemote {
	return &fakeRemote{
		device:   device,
		notes:    make(map[string]*domain.Note),
		drawings: make(map[string]*domain.ScheduleDrawing),
	}
}

func (f *fakeRemote) down(op string) error {
	if f.offline.Load() {
		return &domain.NetworkError{Op: op, Err: errOffline}
	}
	return nil
}

func (f *fakeRemote) FetchNote(_ context.Context, recordUUID string) (*domain.Note, error) {
	f.fetches.Add(1)
	if err := f.down("fetch note"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[recordUUID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return n.Clone(), nil
}

func (f *fakeRemote) SaveNote(_ context.Context, note *domain.Note, expected int64) (*domain.Note, error) {
	if err := f.down("save note"); err != nil {
		return nil, err
	}
	f.noteSaves.Add(1)
	f.noteInFlight.Add(1)
	defer f.noteInFlight.Add(-1)
	if f.noteGate != nil {
		<-f.noteGate
	}
	if f.reject.Load() {
		return nil, domain.NewValidationError("pages", "too many strokes")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	next := note.Clone()
	next.Cache = domain.CacheMeta{}
	if cur, ok := f.notes[note.RecordUUID]; ok {
		if cur.Version != expected {
			return nil, &domain.ConflictError{Kind: "note", Key: note.RecordUUID, ExpectedVersion: expected, ServerVersion: cur.Version}
		}
		next.Version = cur.Version + 1
		next.LockedByDeviceID, next.LockedAt = cur.LockedByDeviceID, cur.LockedAt
	} else {
		next.Version = 1
	}
	f.notes[note.RecordUUID] = next
	return next.Clone(), nil
}

func (f *fakeRemote) DeleteNote(_ context.Context, recordUUID string) error {
	f.deletes.Add(1)
	if err := f.down("delete note"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.notes, recordUUID)
	return nil
}

func (f *fakeRemote) AcquireLease(_ context.Context, recordUUID string) (*domain.Note, error) {
	if err := f.down("acquire lease"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[recordUUID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if n.LockedByDeviceID != "" && n.LockedByDeviceID != f.device {
		return n.Clone(), domain.ErrLeaseHeld
	}
	now := time.Now()
	n.LockedByDeviceID, n.LockedAt = f.device, &now
	return n.Clone(), nil
}

func (f *fakeRemote) ReleaseLease(_ context.Context, recordUUID string) error {
	if err := f.down("release lease"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.notes[recordUUID]; ok && n.LockedByDeviceID == f.device {
		n.LockedByDeviceID, n.LockedAt = "", nil
	}
	return nil
}

func (f *fakeRemote) ListEvents(_ context.Context, r domain.EventRange) ([]*domain.Event, error) {
	if err := f.down("list events"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Event
	for _, e := range f.events {
		if e.BookUUID == r.BookUUID && !e.StartTime.Before(r.From) && e.StartTime.Before(r.To) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRemote) FetchDrawing(_ context.Context, key domain.DrawingKey) (*domain.ScheduleDrawing, error) {
	f.fetches.Add(1)
	if err := f.down("fetch drawing"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drawings[key.String()]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d.Clone(), nil
}

func (f *fakeRemote) SaveDrawing(_ context.Context, drawing *domain.ScheduleDrawing, expected int64) (*domain.ScheduleDrawing, error) {
	if err := f.down("save drawing"); err != nil {
		return nil, err
	}
	if f.inFlight.Add(1) > 1 {
		f.overlapped.Store(true)
	}
	defer f.inFlight.Add(-1)
	time.Sleep(f.saveLatency)
	if f.reject.Load() {
		return nil, domain.NewValidationError("strokes", "too many strokes")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	next := drawing.Clone()
	next.Cache = domain.CacheMeta{}
	if cur, ok := f.drawings[drawing.Key.String()]; ok {
		if cur.Version != expected {
			return nil, &domain.ConflictError{Kind: "drawing", Key: drawing.Key.String(), ExpectedVersion: expected, ServerVersion: cur.Version}
		}
		next.Version = cur.Version + 1
	} else {
		next.Version = 1
	}
	f.drawings[drawing.Key.String()] = next
	return next.Clone(), nil
}

func (f *fakeRemote) DeleteDrawing(_ context.Context, key domain.DrawingKey) error {
	f.deletes.Add(1)
	if err := f.down("delete drawing"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.drawings, key.String())
	return nil
}

// bumpNote simulates another device saving the note on the server
func (f *fakeRemote) bumpNote(recordUUID string, strokeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.notes[recordUUID]
	n.Pages = [][]domain.Stroke{{stroke(strokeID)}}
	n.Version++
}

func stroke(id string) domain.Stroke {
	return domain.Stroke{ID: id, StrokeWidth: 2, Points: []domain.Point{{X: 3, Y: 4}}}
}

func note(recordUUID string, ids ...string) *domain.Note {
	page := make([]domain.Stroke, 0, len(ids))
	for _, id := range ids {
		page = append(page, stroke(id))
	}
	return &domain.Note{RecordUUID: recordUUID, Pages: [][]domain.Stroke{page}}
}

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	db, err := cache.Open(filepath.Join(t.TempDir(), "cache.sqlite3"), nil)
	require.NoError(t, err)
	s := cache.New(db, nil, cache.WithClock(func() time.Time { return testNow }))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newNoteService(t *testing.T, pool *workerpool.Pool) (*NoteService, *cache.Store, *fakeRemote) {
	t.Helper()
	store := newTestStore(t)
	remote := newFakeRemote("device-a")
	return NewNoteService(store, remote, pool, Config{DeviceID: "device-a"}, nil), store, remote
}

func newDrawingService(t *testing.T) (*DrawingService, *cache.Store, *fakeRemote) {
	t.Helper()
	store := newTestStore(t)
	remote := newFakeRemote("device-a")
	queue := writequeue.New(nil, nil)
	t.Cleanup(func() { _ = queue.Shutdown(context.Background()) })
	svc := NewDrawingService(store, remote, nil, queue, Config{DeviceID: "device-a", ViewModes: []int{0, 1}}, nil)
	return svc, store, remote
}

func TestNoteService_GetServesCacheWithoutNetwork(t *testing.T) {
	ctx := context.Background()
	svc, _, remote := newNoteService(t, nil)
	remote.notes["r1"] = &domain.Note{RecordUUID: "r1", Pages: [][]domain.Stroke{{stroke("s1")}}, Version: 4}

	n, err := svc.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n.Version)
	assert.Equal(t, int32(1), remote.fetches.Load())

	remote.offline.Store(true)
	n, err = svc.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "s1", n.Pages[0][0].ID)
	assert.Equal(t, int32(1), remote.fetches.Load(), "cache hit must not touch the network")
}

func TestNoteService_ForceRefreshFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	svc, _, remote := newNoteService(t, nil)
	remote.notes["r1"] = &domain.Note{RecordUUID: "r1", Version: 1}

	_, err := svc.Get(ctx, "r1")
	require.NoError(t, err)
	remote.bumpNote("r1", "s2")

	n, err := svc.Get(ctx, "r1", WithForceRefresh())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n.Version)

	remote.offline.Store(true)
	n, err = svc.Get(ctx, "r1", WithForceRefresh())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n.Version)

	_, err = svc.Get(ctx, "missing", WithForceRefresh())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNoteService_GetMissing(t *testing.T) {
	svc, _, _ := newNoteService(t, nil)
	_, err := svc.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNoteService_ForceRefreshKeepsDirtyEdit(t *testing.T) {
	ctx := context.Background()
	svc, store, remote := newNoteService(t, nil)
	remote.notes["r1"] = &domain.Note{RecordUUID: "r1", Version: 3, Pages: [][]domain.Stroke{{stroke("server")}}}

	_, err := svc.Save(ctx, note("r1", "local"))
	require.NoError(t, err)

	n, err := svc.Get(ctx, "r1", WithForceRefresh())
	require.NoError(t, err)
	assert.Equal(t, "local", n.Pages[0][0].ID)
	assert.True(t, n.Cache.IsDirty)

	dirty, err := store.HasDirty(ctx)
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestNoteService_SaveRejectsInvalidNote(t *testing.T) {
	svc, _, _ := newNoteService(t, nil)
	_, err := svc.Save(context.Background(), &domain.Note{})
	assert.True(t, domain.IsValidation(err))
}

func TestNoteService_SaveAndWaitPushes(t *testing.T) {
	ctx := context.Background()
	svc, store, remote := newNoteService(t, nil)

	out, err := svc.SaveAndWait(ctx, note("r1", "a"))
	require.NoError(t, err)
	require.NoError(t, out.Err)
	assert.Equal(t, domain.SyncStateClean, out.State)
	assert.Equal(t, int64(1), out.Entity.Version)
	assert.False(t, out.Entity.Cache.IsDirty)
	assert.Equal(t, int64(1), remote.notes["r1"].Version)

	out, err = svc.SaveAndWait(ctx, note("r1", "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStateClean, out.State)
	assert.Equal(t, int64(2), out.Entity.Version)

	dirty, err := store.HasDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestNoteService_SaveSchedulesPush(t *testing.T) {
	ctx := context.Background()
	pool := workerpool.New(nil, nil)
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })
	svc, store, remote := newNoteService(t, pool)

	saved, err := svc.Save(ctx, note("r1", "a"))
	require.NoError(t, err)
	assert.True(t, saved.Cache.IsDirty)

	require.NoError(t, pool.WaitIdle(ctx))
	n, err := store.PeekNote(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, n.Cache.IsDirty)
	assert.Equal(t, int64(1), n.Version)
	assert.Contains(t, remote.notes, "r1")
}

func TestNoteService_OfflineSaveStaysDirty(t *testing.T) {
	ctx := context.Background()
	svc, store, remote := newNoteService(t, nil)
	remote.offline.Store(true)

	out, err := svc.SaveAndWait(ctx, note("r1", "a"))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStateFailed, out.State)
	assert.True(t, domain.IsNetwork(out.Err))

	outbox, err := store.Outbox(ctx)
	require.NoError(t, err)
	require.Len(t, outbox, 1)
	assert.Equal(t, 1, outbox[0].Attempts)
	assert.NotEmpty(t, outbox[0].LastError)

	remote.offline.Store(false)
	pushed := svc.Push(ctx, "r1")
	assert.Equal(t, domain.SyncStateClean, pushed.State)
}

func TestNoteService_OverlappingPushesKeepLaterEdit(t *testing.T) {
	ctx := context.Background()
	svc, store, remote := newNoteService(t, nil)
	remote.noteGate = make(chan struct{})

	first := make(chan Outcome[*domain.Note], 1)
	go func() {
		out, err := svc.SaveAndWait(ctx, note("r1", "edit1"))
		assert.NoError(t, err)
		first <- out
	}()
	require.Eventually(t, func() bool { return remote.noteInFlight.Load() == 1 }, time.Second, time.Millisecond)

	// 第一次推送仍在进行时产生新的修改，并由另一路径立即推送
	_, err := svc.Save(ctx, note("r1", "edit2"))
	require.NoError(t, err)
	second := make(chan Outcome[*domain.Note], 1)
	go func() { second <- svc.Push(ctx, "r1") }()

	close(remote.noteGate)
	out1, out2 := <-first, <-second
	assert.Equal(t, domain.SyncStateClean, out1.State)
	assert.Equal(t, domain.SyncStateClean, out2.State)
	require.NoError(t, out2.Err)

	assert.Equal(t, int32(2), remote.noteSaves.Load())
	assert.Equal(t, int64(2), remote.notes["r1"].Version)
	assert.Equal(t, "edit2", remote.notes["r1"].Pages[0][0].ID)

	n, err := store.PeekNote(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, n.Cache.IsDirty)
	assert.Equal(t, int64(2), n.Version)
	assert.Equal(t, "edit2", n.Pages[0][0].ID)
}

func TestNoteService_RejectedEditIsNotRetried(t *testing.T) {
	ctx := context.Background()
	svc, store, remote := newNoteService(t, nil)
	remote.reject.Store(true)

	out, err := svc.SaveAndWait(ctx, note("r1", "a"))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStateRejected, out.State)
	assert.True(t, domain.IsValidation(out.Err))

	dirty, err := store.HasDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)

	again := svc.Push(ctx, "r1")
	assert.Equal(t, domain.SyncStateClean, again.State)
	assert.Equal(t, int32(1), remote.noteSaves.Load(), "rejected edit was pushed again")

	// 新的本地修改照常推送
	remote.reject.Store(false)
	out, err = svc.SaveAndWait(ctx, note("r1", "b"))
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStateClean, out.State)
	assert.Equal(t, "b", remote.notes["r1"].Pages[0][0].ID)
}

func TestDrawingService_RejectedEditIsNotRetried(t *testing.T) {
	ctx := context.Background()
	svc, store, remote := newDrawingService(t)
	remote.reject.Store(true)
	key := domain.NewDrawingKey("b", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 0)

	out, err := svc.SaveAndWait(ctx, &domain.ScheduleDrawing{Key: key, Strokes: []domain.Stroke{stroke("s1")}})
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStateRejected, out.State)

	outbox, err := store.Outbox(ctx)
	require.NoError(t, err)
	assert.Empty(t, outbox)
	d, err := store.PeekDrawing(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Cache.IsDirty)
}

func TestNoteService_ConflictThenServerWins(t *testing.T) {
	ctx := context.Background()
	svc, store, remote := newNoteService(t, nil)
	remote.notes["r1"] = &domain.Note{RecordUUID: "r1", Version: 1, Pages: [][]domain.Stroke{{stroke("v1")}}}

	_, err := svc.Get(ctx, "r1")
	require.NoError(t, err)
	remote.bumpNote("r1", "other-device")

	out, err := svc.SaveAndWait(ctx, &domain.Note{RecordUUID: "r1", Version: 1, Pages: [][]domain.Stroke{{stroke("mine")}}})
	require.NoError(t, err)
	require.Equal(t, domain.SyncStateConflict, out.State)
	ce, ok := domain.AsConflict(out.Err)
	require.True(t, ok)
	assert.Equal(t, int64(2), ce.ServerVersion)

	resolved, err := svc.ResolveConflict(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), resolved.Version)
	assert.Equal(t, "other-device", resolved.Pages[0][0].ID)
	assert.False(t, resolved.Cache.IsDirty)

	dirty, err := store.HasDirty(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestNoteService_ResolveConflictDropsRemotelyDeleted(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newNoteService(t, nil)
	_, err := svc.Save(ctx, note("r1", "a"))
	require.NoError(t, err)

	_, err = svc.ResolveConflict(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.PeekNote(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNoteService_DeleteIgnoresRemoteFailure(t *testing.T) {
	ctx := context.Background()
	svc, store, remote := newNoteService(t, nil)
	_, err := svc.Save(ctx, note("r1", "a"))
	require.NoError(t, err)
	remote.offline.Store(true)

	require.NoError(t, svc.Delete(ctx, "r1"))
	assert.Equal(t, int32(1), remote.deletes.Load())
	_, err = store.PeekNote(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNoteService_Preload(t *testing.T) {
	ctx := context.Background()
	svc, _, remote := newNoteService(t, nil)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	remote.notes["r1"] = &domain.Note{RecordUUID: "r1", Version: 1}
	remote.notes["r2"] = &domain.Note{RecordUUID: "r2", Version: 1}
	remote.events = []*domain.Event{
		{ID: "e1", BookUUID: "b", RecordUUID: "r1", StartTime: day.Add(9 * time.Hour), HasNote: true},
		{ID: "e2", BookUUID: "b", RecordUUID: "r2", StartTime: day.Add(10 * time.Hour), HasNote: true},
		{ID: "e3", BookUUID: "b", RecordUUID: "r2", StartTime: day.Add(11 * time.Hour), HasNote: true},
		{ID: "e4", BookUUID: "b", RecordUUID: "r3", StartTime: day.Add(12 * time.Hour), HasNote: true},
		{ID: "e5", BookUUID: "b", RecordUUID: "r4", StartTime: day.Add(13 * time.Hour)},
		{ID: "e6", BookUUID: "other", RecordUUID: "r5", StartTime: day.Add(13 * time.Hour), HasNote: true},
	}
	_, err := svc.Get(ctx, "r1")
	require.NoError(t, err)

	report, err := svc.Preload(ctx, PreloadRange{BookUUID: "b", From: day, To: day.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, PreloadReport{Requested: 3, Skipped: 1, Loaded: 1, Missing: 1}, report)

	remote.offline.Store(true)
	n, err := svc.Get(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, "r2", n.RecordUUID)
}

func TestNoteService_LeaseMirroring(t *testing.T) {
	ctx := context.Background()
	svc, _, remote := newNoteService(t, nil)
	lockedAt := testNow.Add(-time.Minute)
	remote.notes["r1"] = &domain.Note{RecordUUID: "r1", Version: 1, LockedByDeviceID: "device-b", LockedAt: &lockedAt}

	n, err := svc.AcquireLease(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrLeaseHeld)
	require.NotNil(t, n)
	assert.Equal(t, "device-b", n.LockedByDeviceID)
	assert.True(t, svc.LeasedByOther(ctx, "r1"))

	remote.notes["r1"].LockedByDeviceID, remote.notes["r1"].LockedAt = "", nil
	n, err = svc.AcquireLease(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "device-a", n.LockedByDeviceID)
	assert.False(t, svc.LeasedByOther(ctx, "r1"))

	require.NoError(t, svc.ReleaseLease(ctx, "r1"))
	assert.Empty(t, remote.notes["r1"].LockedByDeviceID)
	assert.False(t, svc.LeasedByOther(ctx, "r1"))
}

func TestDrawingService_GetNormalizesDay(t *testing.T) {
	ctx := context.Background()
	svc, _, remote := newDrawingService(t)
	afternoon := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)

	_, err := svc.Save(ctx, &domain.ScheduleDrawing{
		Key:     domain.DrawingKey{BookUUID: "b", Date: afternoon},
		Strokes: []domain.Stroke{stroke("s1")},
	})
	require.NoError(t, err)
	remote.offline.Store(true)

	d, err := svc.Get(ctx, domain.DrawingKey{BookUUID: "b", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, "s1", d.Strokes[0].ID)
	assert.True(t, d.Cache.IsDirty)
}

func TestDrawingService_ConcurrentSavesAreSerialized(t *testing.T) {
	ctx := context.Background()
	svc, store, remote := newDrawingService(t)
	remote.saveLatency = 5 * time.Millisecond
	key := domain.NewDrawingKey("b", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 0)

	const writers = 8
	outcomes := make([]Outcome[*domain.ScheduleDrawing], writers)
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i], errs[i] = svc.SaveAndWait(ctx, &domain.ScheduleDrawing{
				Key:     key,
				Strokes: []domain.Stroke{stroke(fmt.Sprintf("w%d", i))},
			})
		}()
	}
	wg.Wait()

	assert.False(t, remote.overlapped.Load(), "pushes of one drawing must not overlap")
	for i := range writers {
		require.NoError(t, errs[i])
		assert.Equal(t, domain.SyncStateClean, outcomes[i].State, "writer %d", i)
	}

	local, err := store.PeekDrawing(ctx, key)
	require.NoError(t, err)
	assert.False(t, local.Cache.IsDirty)
	assert.Equal(t, int64(writers), local.Cache.Revision)

	remote.mu.Lock()
	server := remote.drawings[key.String()].Clone()
	remote.mu.Unlock()
	assert.Equal(t, server.Version, local.Version)
	require.Len(t, server.Strokes, 1)
	// 最后一次本地写入就是服务端的最终内容
	assert.Equal(t, local.Strokes[0].ID, server.Strokes[0].ID)
}

func TestDrawingService_SaveDoesNotWaitForPush(t *testing.T) {
	ctx := context.Background()
	svc, store, remote := newDrawingService(t)
	remote.saveLatency = 300 * time.Millisecond
	key := domain.NewDrawingKey("b", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 0)

	done := make(chan Outcome[*domain.ScheduleDrawing], 1)
	go func() {
		out, err := svc.SaveAndWait(ctx, &domain.ScheduleDrawing{Key: key, Strokes: []domain.Stroke{stroke("s1")}})
		assert.NoError(t, err)
		done <- out
	}()
	require.Eventually(t, func() bool { return remote.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	began := time.Now()
	_, err := svc.Save(ctx, &domain.ScheduleDrawing{Key: key, Strokes: []domain.Stroke{stroke("s2")}})
	require.NoError(t, err)
	assert.Less(t, time.Since(began), 150*time.Millisecond, "local save waited on the network")

	out := <-done
	assert.Equal(t, domain.SyncStateClean, out.State)
	local, err := store.PeekDrawing(ctx, key)
	require.NoError(t, err)
	assert.True(t, local.Cache.IsDirty, "edit made during the push stays pending")
	assert.Equal(t, int64(1), local.Version)

	out = svc.Push(ctx, key)
	require.NoError(t, out.Err)
	assert.Equal(t, domain.SyncStateClean, out.State)
	assert.Equal(t, int64(2), out.Entity.Version)
	assert.Equal(t, "s2", remote.drawings[key.String()].Strokes[0].ID)
}

func TestDrawingService_ConflictAndResolve(t *testing.T) {
	ctx := context.Background()
	svc, _, remote := newDrawingService(t)
	key := domain.NewDrawingKey("b", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 1)
	remote.drawings[key.String()] = &domain.ScheduleDrawing{Key: key, Version: 5, Strokes: []domain.Stroke{stroke("server")}}

	out, err := svc.SaveAndWait(ctx, &domain.ScheduleDrawing{Key: key, Version: 4, Strokes: []domain.Stroke{stroke("mine")}})
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStateConflict, out.State)

	d, err := svc.ResolveConflict(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(5), d.Version)
	assert.Equal(t, "server", d.Strokes[0].ID)
	assert.False(t, d.Cache.IsDirty)
}

func TestDrawingService_DeleteAndPreload(t *testing.T) {
	ctx := context.Background()
	svc, store, remote := newDrawingService(t)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	k1 := domain.NewDrawingKey("b", day, 0)
	k2 := domain.NewDrawingKey("b", day.Add(24*time.Hour), 1)
	remote.drawings[k1.String()] = &domain.ScheduleDrawing{Key: k1, Version: 1}
	remote.drawings[k2.String()] = &domain.ScheduleDrawing{Key: k2, Version: 2}

	report, err := svc.Preload(ctx, PreloadRange{BookUUID: "b", From: day, To: day.Add(72 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, PreloadReport{Requested: 6, Loaded: 2, Missing: 4}, report)

	report, err = svc.Preload(ctx, PreloadRange{BookUUID: "b", From: day, To: day.Add(72 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 0, report.Loaded)

	remote.offline.Store(true)
	require.NoError(t, svc.Delete(ctx, k2))
	_, err = store.PeekDrawing(ctx, k2)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
