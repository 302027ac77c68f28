package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/dao"
	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServices struct {
	records  RecordService
	events   EventService
	notes    NoteService
	drawings DrawingService
}

func newTestServices(t *testing.T, cfg *ServiceConfig) *testServices {
	t.Helper()
	db, err := dao.NewDBEngineWithConfig(dao.DatabaseConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "server.db")}, nil)
	require.NoError(t, err)
	require.NoError(t, model.AutoMigrateServer(db))
	d := dao.New(db, nil)
	t.Cleanup(func() { _ = d.Close() })

	recordRepo := dao.NewRecordRepository(d)
	eventRepo := dao.NewEventRepository(d)
	noteRepo := dao.NewNoteRepository(d)
	recSvc := NewRecordService(d, recordRepo, eventRepo, noteRepo, nil)
	return &testServices{
		records:  recSvc,
		events:   NewEventService(d, recordRepo, eventRepo, noteRepo, recSvc, nil),
		notes:    NewNoteService(recordRepo, eventRepo, noteRepo, cfg, nil),
		drawings: NewDrawingService(dao.NewDrawingRepository(d), nil),
	}
}

func page(ids ...string) []domain.Stroke {
	out := make([]domain.Stroke, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Stroke{ID: id, StrokeWidth: 1, Points: []domain.Point{{X: 1, Y: 1}}})
	}
	return out
}

func TestEventService_SharedRecordSharesNote(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, nil)
	start := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	a, err := s.events.Create(ctx, &EventCreateParams{BookUUID: "b1", RecordNumber: "N-1", Name: "Bob", StartTime: start})
	require.NoError(t, err)
	b, err := s.events.Create(ctx, &EventCreateParams{BookUUID: "b1", RecordNumber: "N-1", StartTime: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, a.RecordUUID, b.RecordUUID)

	// 空档案号总是新建独立档案
	c, err := s.events.Create(ctx, &EventCreateParams{BookUUID: "b1", StartTime: start})
	require.NoError(t, err)
	d, err := s.events.Create(ctx, &EventCreateParams{BookUUID: "b1", StartTime: start})
	require.NoError(t, err)
	assert.NotEqual(t, c.RecordUUID, d.RecordUUID)

	_, err = s.notes.Save(ctx, &domain.Note{RecordUUID: a.RecordUUID, Pages: [][]domain.Stroke{page("s1")}}, 0)
	require.NoError(t, err)

	viaB, err := s.notes.FetchByEvent(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, viaB.StrokeCount())

	gotB, err := s.events.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, gotB.HasNote)
	gotC, err := s.events.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, gotC.HasNote)
}

func TestEventService_RescheduleChain(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, nil)
	start := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	ev, err := s.events.Create(ctx, &EventCreateParams{BookUUID: "b1", RecordNumber: "R-1", StartTime: start, EventTypes: []string{"checkup"}})
	require.NoError(t, err)

	original, next, err := s.events.Reschedule(ctx, ev.ID, start.Add(48*time.Hour), nil)
	require.NoError(t, err)
	assert.True(t, original.IsRemoved)
	assert.Equal(t, domain.RemovalReasonRescheduled, original.RemovalReason)
	assert.Equal(t, next.ID, original.NewEventID)
	assert.Equal(t, ev.ID, next.OriginalEventID)
	assert.Equal(t, ev.RecordUUID, next.RecordUUID)
	assert.Equal(t, []string{"checkup"}, next.EventTypes)

	_, _, err = s.events.Reschedule(ctx, ev.ID, start.Add(72*time.Hour), nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyRescheduled)

	// 新预约可以继续改期
	_, third, err := s.events.Reschedule(ctx, next.ID, start.Add(96*time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, next.ID, third.OriginalEventID)

	active, err := s.events.List(ctx, domain.EventRange{BookUUID: "b1"})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, third.ID, active[0].ID)
}

func TestEventService_RefillMovesNoteWhenCanonicalHasNone(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, nil)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	canonicalEvent, err := s.events.Create(ctx, &EventCreateParams{BookUUID: "b1", RecordNumber: "C-1", StartTime: start})
	require.NoError(t, err)
	loose, err := s.events.Create(ctx, &EventCreateParams{BookUUID: "b1", StartTime: start})
	require.NoError(t, err)
	_, err = s.notes.Save(ctx, &domain.Note{RecordUUID: loose.RecordUUID, Pages: [][]domain.Stroke{page("a", "b")}}, 0)
	require.NoError(t, err)

	refilled, err := s.events.RefillRecordNumber(ctx, loose.ID, "C-1")
	require.NoError(t, err)
	assert.Equal(t, canonicalEvent.RecordUUID, refilled.RecordUUID)
	assert.True(t, refilled.HasNote)

	n, err := s.notes.FetchByEvent(ctx, canonicalEvent.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n.StrokeCount())

	_, err = s.records.Get(ctx, loose.RecordUUID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEventService_RefillMergesWhenBothHaveNotes(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, nil)
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	canonicalEvent, err := s.events.Create(ctx, &EventCreateParams{BookUUID: "b1", RecordNumber: "C-1", StartTime: start})
	require.NoError(t, err)
	loose, err := s.events.Create(ctx, &EventCreateParams{BookUUID: "b1", RecordNumber: "OLD-9", StartTime: start})
	require.NoError(t, err)

	_, err = s.notes.Save(ctx, &domain.Note{
		RecordUUID:           canonicalEvent.RecordUUID,
		Pages:                [][]domain.Stroke{page("c1")},
		ErasedStrokesByEvent: map[string][]string{"e": {"x"}},
	}, 0)
	require.NoError(t, err)
	_, err = s.notes.Save(ctx, &domain.Note{
		RecordUUID:           loose.RecordUUID,
		Pages:                [][]domain.Stroke{page("o1"), page("o2")},
		ErasedStrokesByEvent: map[string][]string{"e": {"x", "y"}},
	}, 0)
	require.NoError(t, err)

	_, err = s.events.RefillRecordNumber(ctx, loose.ID, "C-1")
	require.NoError(t, err)

	merged, err := s.notes.Fetch(ctx, canonicalEvent.RecordUUID)
	require.NoError(t, err)
	require.Len(t, merged.Pages, 3)
	assert.Equal(t, "c1", merged.Pages[0][0].ID)
	assert.Equal(t, "o1", merged.Pages[1][0].ID)
	assert.Equal(t, []string{"x", "y"}, merged.ErasedStrokesByEvent["e"])
	assert.Equal(t, int64(2), merged.Version)

	_, err = s.notes.Fetch(ctx, loose.RecordUUID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEventService_RefillFillsUnusedNumberInPlace(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, nil)

	ev, err := s.events.Create(ctx, &EventCreateParams{BookUUID: "b1", StartTime: time.Now()})
	require.NoError(t, err)

	refilled, err := s.events.RefillRecordNumber(ctx, ev.ID, "NEW-1")
	require.NoError(t, err)
	assert.Equal(t, ev.RecordUUID, refilled.RecordUUID)

	rec, err := s.records.Get(ctx, ev.RecordUUID)
	require.NoError(t, err)
	assert.Equal(t, "NEW-1", rec.RecordNumber)
}

func TestNoteService_SaveCAS(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, nil)
	rec, err := s.records.Resolve(ctx, "", "", "")
	require.NoError(t, err)

	_, err = s.notes.Save(ctx, &domain.Note{RecordUUID: "no-such-record"}, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.notes.Save(ctx, &domain.Note{RecordUUID: rec.UUID, Pages: [][]domain.Stroke{{{ID: "", StrokeWidth: 1}}}}, 0)
	assert.True(t, domain.IsValidation(err))

	v1, err := s.notes.Save(ctx, &domain.Note{RecordUUID: rec.UUID, Pages: [][]domain.Stroke{page("a")}}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1.Version)

	v2, err := s.notes.Save(ctx, &domain.Note{RecordUUID: rec.UUID, Pages: [][]domain.Stroke{page("a", "b")}}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2.Version)

	_, err = s.notes.Save(ctx, &domain.Note{RecordUUID: rec.UUID, Pages: [][]domain.Stroke{page("z")}}, 1)
	ce, ok := domain.AsConflict(err)
	require.True(t, ok)
	assert.Equal(t, int64(1), ce.ExpectedVersion)
	assert.Equal(t, int64(2), ce.ServerVersion)

	cur, err := s.notes.Fetch(ctx, rec.UUID)
	require.NoError(t, err)
	assert.Equal(t, 2, cur.StrokeCount())
}

func TestNoteService_LeaseExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, &ServiceConfig{Lease: LeaseServiceConfig{Expiry: time.Minute}})
	rec, err := s.records.Resolve(ctx, "L-1", "", "")
	require.NoError(t, err)
	_, err = s.notes.AcquireLease(ctx, rec.UUID, "dev-a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.notes.Save(ctx, &domain.Note{RecordUUID: rec.UUID}, 0)
	require.NoError(t, err)

	ns := s.notes.(*noteService)
	base := time.Now()
	ns.now = func() time.Time { return base }

	n, err := s.notes.AcquireLease(ctx, rec.UUID, "dev-a")
	require.NoError(t, err)
	assert.Equal(t, "dev-a", n.LockedByDeviceID)

	_, err = s.notes.AcquireLease(ctx, rec.UUID, "dev-b")
	assert.ErrorIs(t, err, domain.ErrLeaseHeld)

	// 租约不阻止其他设备保存
	_, err = s.notes.Save(ctx, &domain.Note{RecordUUID: rec.UUID, Pages: [][]domain.Stroke{page("b")}}, 1)
	require.NoError(t, err)

	ns.now = func() time.Time { return base.Add(2 * time.Minute) }
	n, err = s.notes.AcquireLease(ctx, rec.UUID, "dev-b")
	require.NoError(t, err)
	assert.Equal(t, "dev-b", n.LockedByDeviceID)
}

func TestRecordService_DeleteRejectedWhileReferenced(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, nil)
	ev, err := s.events.Create(ctx, &EventCreateParams{BookUUID: "b1", RecordNumber: "D-1", StartTime: time.Now()})
	require.NoError(t, err)
	assert.ErrorIs(t, s.records.Delete(ctx, ev.RecordUUID), domain.ErrRecordInUse)

	rec, err := s.records.Resolve(ctx, "", "Solo", "")
	require.NoError(t, err)
	_, err = s.notes.Save(ctx, &domain.Note{RecordUUID: rec.UUID}, 0)
	require.NoError(t, err)
	require.NoError(t, s.records.Delete(ctx, rec.UUID))
	_, err = s.notes.Fetch(ctx, rec.UUID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	updated, err := s.records.Update(ctx, ev.RecordUUID, "Dana", "555", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	_, err = s.records.Update(ctx, ev.RecordUUID, "Dana", "556", 1)
	assert.True(t, domain.IsConflict(err))
}

func TestDrawingService_SaveAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, nil)
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	key := domain.NewDrawingKey("b1", day, 0)

	v1, err := s.drawings.Save(ctx, &domain.ScheduleDrawing{Key: key, Strokes: page("d1")}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1.Version)

	_, err = s.drawings.Save(ctx, &domain.ScheduleDrawing{Key: key, Strokes: page("d2")}, 0)
	assert.True(t, domain.IsConflict(err))

	_, err = s.drawings.Save(ctx, &domain.ScheduleDrawing{Key: domain.DrawingKey{Date: day}}, 0)
	assert.True(t, domain.IsValidation(err))

	list, err := s.drawings.List(ctx, domain.DrawingRange{BookUUID: "b1", From: day, To: day.AddDate(0, 0, 1)})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "d1", list[0].Strokes[0].ID)
}
