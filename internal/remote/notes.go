package remote

import (
	"context"
	"net/http"
	"net/url"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/dto"
)

func notePath(recordUUID string) string {
	return "/api/notes/" + url.PathEscape(recordUUID)
}

// FetchNote 获取档案的笔记
func (c *Client) FetchNote(ctx context.Context, recordUUID string) (*domain.Note, error) {
	var out dto.NoteDTO
	if err := c.call(ctx, "FetchNote", http.MethodGet, notePath(recordUUID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.ToDomain(), nil
}

// FetchNoteByEvent 通过预约获取笔记
func (c *Client) FetchNoteByEvent(ctx context.Context, eventID string) (*domain.Note, error) {
	var out dto.NoteDTO
	if err := c.call(ctx, "FetchNoteByEvent", http.MethodGet, "/api/events/"+url.PathEscape(eventID)+"/note", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.ToDomain(), nil
}

// SaveNote pushes a snapshot with expectedVersion; the server answers with the stored note
// SaveNote 携带期望版本推送快照，服务端返回存储后的笔记
func (c *Client) SaveNote(ctx context.Context, note *domain.Note, expectedVersion int64) (*domain.Note, error) {
	snap := domain.SnapshotOf(note)
	body := &dto.NoteSaveRequest{
		FormatVersion:        snap.FormatVersion,
		Pages:                snap.Pages,
		ErasedStrokesByEvent: snap.ErasedStrokesByEvent,
		ExpectedVersion:      expectedVersion,
	}
	var out dto.NoteDTO
	if err := c.call(ctx, "SaveNote", http.MethodPut, notePath(note.RecordUUID), nil, body, &out); err != nil {
		if ce, ok := domain.AsConflict(err); ok && ce.Key == "" {
			ce.Kind, ce.Key, ce.ExpectedVersion = string(domain.KindNote), note.RecordUUID, expectedVersion
		}
		return nil, err
	}
	return out.ToDomain(), nil
}

// DeleteNote 删除笔记
func (c *Client) DeleteNote(ctx context.Context, recordUUID string) error {
	return c.call(ctx, "DeleteNote", http.MethodDelete, notePath(recordUUID), nil, nil, nil)
}

// AcquireLease returns the note with its lease; on ErrLeaseHeld the note shows the current holder
// AcquireLease 返回带租约信息的笔记，ErrLeaseHeld 时笔记中为当前持有者
func (c *Client) AcquireLease(ctx context.Context, recordUUID string) (*domain.Note, error) {
	var out dto.NoteDTO
	err := c.call(ctx, "AcquireLease", http.MethodPost, notePath(recordUUID)+"/lease", nil, nil, &out)
	if err != nil {
		if out.RecordUUID != "" {
			return out.ToDomain(), err
		}
		return nil, err
	}
	return out.ToDomain(), nil
}

// ReleaseLease 释放租约
func (c *Client) ReleaseLease(ctx context.Context, recordUUID string) error {
	return c.call(ctx, "ReleaseLease", http.MethodDelete, notePath(recordUUID)+"/lease", nil, nil, nil)
}
