package syncer_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/app"
	"github.com/haierkeys/schedule-note-sync/internal/cache"
	"github.com/haierkeys/schedule-note-sync/internal/content"
	"github.com/haierkeys/schedule-note-sync/internal/dao"
	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/dto"
	"github.com/haierkeys/schedule-note-sync/internal/remote"
	"github.com/haierkeys/schedule-note-sync/internal/routers"
	"github.com/haierkeys/schedule-note-sync/internal/syncer"
	"github.com/haierkeys/schedule-note-sync/pkg/writequeue"

	"github.com/creasty/defaults"
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	url string
	app *app.App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &app.AppConfig{}
	require.NoError(t, defaults.Set(cfg))
	cfg.Database.Path = filepath.Join(t.TempDir(), "server.sqlite3")
	cfg.App.RateLimitCapacity = 0

	db, err := dao.NewDBEngineWithConfig(cfg.GetDatabaseConfig(), nil)
	require.NoError(t, err)
	a, err := app.NewApp(cfg, zap.NewNop(), db)
	require.NoError(t, err)

	srv := httptest.NewServer(routers.NewRouter(a, nil, opentracing.NoopTracer{}))
	t.Cleanup(func() {
		srv.Close()
		_ = a.Shutdown(context.Background())
	})
	return &testServer{url: srv.URL, app: a}
}

type device struct {
	remote   *remote.Client
	store    *cache.Store
	notes    *content.NoteService
	drawings *content.DrawingService
	sync     *syncer.Coordinator
}

func newDevice(t *testing.T, srv *testServer, id string) *device {
	t.Helper()
	token, err := srv.app.TokenManager.Generate(id)
	require.NoError(t, err)

	db, err := cache.Open(filepath.Join(t.TempDir(), id+".sqlite3"), nil)
	require.NoError(t, err)
	store := cache.New(db, nil)
	queue := writequeue.New(nil, nil)
	t.Cleanup(func() {
		_ = queue.Shutdown(context.Background())
		_ = store.Close()
	})

	rc := remote.New(remote.Config{ServerURL: srv.url, DeviceID: id, Token: token, Timeout: 5 * time.Second}, opentracing.NoopTracer{}, nil)
	cfg := content.Config{DeviceID: id}
	notes := content.NewNoteService(store, rc, nil, cfg, nil)
	drawings := content.NewDrawingService(store, rc, nil, queue, cfg, nil)
	return &device{
		remote:   rc,
		store:    store,
		notes:    notes,
		drawings: drawings,
		sync:     syncer.NewCoordinator(store, notes, drawings, rc, syncer.Config{}, nil),
	}
}

func strokes(ids ...string) []domain.Stroke {
	out := make([]domain.Stroke, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Stroke{ID: id, StrokeWidth: 1.5, Points: []domain.Point{{X: 10, Y: 20}}})
	}
	return out
}

var start = time.Date(2026, 4, 7, 9, 0, 0, 0, time.UTC)

func createEvent(t *testing.T, d *device, number string, at time.Time) *domain.Event {
	t.Helper()
	e, err := d.remote.CreateEvent(context.Background(), &dto.EventCreateRequest{
		BookUUID:     "book-1",
		RecordNumber: number,
		Name:         "Alice",
		StartTime:    at.UnixMilli(),
	})
	require.NoError(t, err)
	return e
}

func TestTwoDevices_ConflictServerWins(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	a, b := newDevice(t, srv, "device-a"), newDevice(t, srv, "device-b")
	ev := createEvent(t, a, "N-100", start)

	out, err := a.notes.SaveAndWait(ctx, &domain.Note{RecordUUID: ev.RecordUUID, Pages: [][]domain.Stroke{strokes("a1")}})
	require.NoError(t, err)
	require.Equal(t, domain.SyncStateClean, out.State)
	base := out.Entity.Version

	cached, err := b.notes.Get(ctx, ev.RecordUUID)
	require.NoError(t, err)
	assert.Equal(t, base, cached.Version)

	out, err = a.notes.SaveAndWait(ctx, &domain.Note{RecordUUID: ev.RecordUUID, Pages: [][]domain.Stroke{strokes("a1", "a2")}})
	require.NoError(t, err)
	require.Equal(t, domain.SyncStateClean, out.State)
	assert.Equal(t, base+1, out.Entity.Version)

	_, err = b.notes.Save(ctx, &domain.Note{RecordUUID: ev.RecordUUID, Pages: [][]domain.Stroke{strokes("b1")}})
	require.NoError(t, err)
	pending, err := b.sync.HasPendingChanges(ctx)
	require.NoError(t, err)
	assert.True(t, pending)

	report, err := b.sync.SyncAllDirtyNotes(ctx, syncer.WithDetail())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Conflicts)
	require.Len(t, report.Items, 1)
	assert.Equal(t, base+1, report.Items[0].Version)

	got, err := b.notes.Get(ctx, ev.RecordUUID)
	require.NoError(t, err)
	assert.False(t, got.Cache.IsDirty)
	assert.Equal(t, "a2", got.Pages[0][1].ID)

	pending, err = b.sync.HasPendingChanges(ctx)
	require.NoError(t, err)
	assert.False(t, pending)

	out, err = b.notes.SaveAndWait(ctx, &domain.Note{RecordUUID: ev.RecordUUID, Pages: [][]domain.Stroke{strokes("a1", "a2", "b2")}})
	require.NoError(t, err)
	require.Equal(t, domain.SyncStateClean, out.State)
	assert.Equal(t, base+2, out.Entity.Version)

	fresh, err := a.notes.Get(ctx, ev.RecordUUID, content.WithForceRefresh())
	require.NoError(t, err)
	assert.Equal(t, base+2, fresh.Version)
	assert.Equal(t, 3, fresh.StrokeCount())
	assert.Equal(t, domain.IndicatorOnline, b.sync.Indicator())
}

func TestTwoDevices_SharedRecordSharesNote(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	a, b := newDevice(t, srv, "device-a"), newDevice(t, srv, "device-b")

	first := createEvent(t, a, "N-200", start)
	second := createEvent(t, a, "N-200", start.Add(24*time.Hour))
	require.Equal(t, first.RecordUUID, second.RecordUUID)

	_, err := a.notes.SaveAndWait(ctx, &domain.Note{RecordUUID: first.RecordUUID, Pages: [][]domain.Stroke{strokes("s1", "s2")}})
	require.NoError(t, err)

	viaEvent, err := b.remote.FetchNoteByEvent(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, viaEvent.StrokeCount())

	report, err := b.notes.Preload(ctx, content.PreloadRange{BookUUID: "book-1", From: start, To: start.Add(48 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Requested)
	assert.Equal(t, 1, report.Loaded)

	cached, err := b.store.PeekNote(ctx, second.RecordUUID)
	require.NoError(t, err)
	assert.Equal(t, 2, cached.StrokeCount())
}

func TestTwoDevices_RefillKeepsNoteContent(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	a, b := newDevice(t, srv, "device-a"), newDevice(t, srv, "device-b")

	canonical := createEvent(t, a, "N-300", start)
	walkIn := createEvent(t, b, "", start.Add(time.Hour))
	require.NotEqual(t, canonical.RecordUUID, walkIn.RecordUUID)

	_, err := a.notes.SaveAndWait(ctx, &domain.Note{RecordUUID: canonical.RecordUUID, Pages: [][]domain.Stroke{strokes("c1")}})
	require.NoError(t, err)
	_, err = b.notes.SaveAndWait(ctx, &domain.Note{RecordUUID: walkIn.RecordUUID, Pages: [][]domain.Stroke{strokes("w1", "w2")}})
	require.NoError(t, err)

	refilled, err := b.remote.RefillRecordNumber(ctx, walkIn.ID, "N-300")
	require.NoError(t, err)
	assert.Equal(t, canonical.RecordUUID, refilled.RecordUUID)

	merged, err := a.notes.Get(ctx, canonical.RecordUUID, content.WithForceRefresh())
	require.NoError(t, err)
	require.Len(t, merged.Pages, 2)
	assert.Equal(t, "c1", merged.Pages[0][0].ID)
	assert.Equal(t, 3, merged.StrokeCount())

	_, err = b.remote.FetchNote(ctx, walkIn.RecordUUID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTwoDevices_DrawingConflictAndBookSync(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	a, b := newDevice(t, srv, "device-a"), newDevice(t, srv, "device-b")
	key := domain.NewDrawingKey("book-1", start, 1)

	out, err := a.drawings.SaveAndWait(ctx, &domain.ScheduleDrawing{Key: key, Strokes: strokes("d1")})
	require.NoError(t, err)
	require.Equal(t, domain.SyncStateClean, out.State)

	_, err = b.drawings.Save(ctx, &domain.ScheduleDrawing{Key: key, Strokes: strokes("d2")})
	require.NoError(t, err)
	ev := createEvent(t, b, "N-400", start)
	_, err = b.notes.Save(ctx, &domain.Note{RecordUUID: ev.RecordUUID, Pages: [][]domain.Stroke{strokes("n1")}})
	require.NoError(t, err)

	notes, err := b.sync.SyncDirtyNotesForBook(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, 1, notes.Clean)

	summary, err := b.sync.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Notes.Total)
	assert.Equal(t, 1, summary.Drawings.Conflicts)

	got, err := b.drawings.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "d1", got.Strokes[0].ID)
	assert.False(t, got.Cache.IsDirty)
}
