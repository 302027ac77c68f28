package dto

import (
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
)

// NoteDTO carries a note snapshot plus its server version and lease state
// NoteDTO 笔记快照及其服务端版本与租约状态
type NoteDTO struct {
	RecordUUID           string              `json:"recordUuid"`
	FormatVersion        int                 `json:"formatVersion"`
	Pages                [][]domain.Stroke   `json:"pages"`
	ErasedStrokesByEvent map[string][]string `json:"erasedStrokesByEvent,omitempty"`
	Version              int64               `json:"version"`
	LockedByDeviceID     string              `json:"lockedByDeviceId,omitempty"`
	LockedAt             int64               `json:"lockedAt,omitempty"`
	UpdatedAt            int64               `json:"updatedAt"`
}

// NoteRecordRequest 以档案 UUID 为参数的笔记请求
type NoteRecordRequest struct {
	RecordUUID string `json:"-" uri:"record_uuid" binding:"required"`
}

// NoteSaveRequest saves a note snapshot; ExpectedVersion 0 means the device has never seen a server copy
// NoteSaveRequest 保存笔记快照，ExpectedVersion 为 0 表示设备从未拿到过服务端副本
type NoteSaveRequest struct {
	RecordUUID           string              `json:"-" uri:"record_uuid" binding:"required"`
	FormatVersion        int                 `json:"formatVersion" binding:"gte=0"`
	Pages                [][]domain.Stroke   `json:"pages"`
	ErasedStrokesByEvent map[string][]string `json:"erasedStrokesByEvent"`
	ExpectedVersion      int64               `json:"expectedVersion" binding:"gte=0"`
}

// ConflictDTO 409 响应携带的冲突信息
type ConflictDTO struct {
	Kind            string `json:"kind"`
	Key             string `json:"key"`
	ExpectedVersion int64  `json:"expectedVersion"`
	ServerVersion   int64  `json:"serverVersion"`
}

// NoteFromDomain 领域笔记转换为 DTO
func NoteFromDomain(n *domain.Note) *NoteDTO {
	if n == nil {
		return nil
	}
	snap := domain.SnapshotOf(n)
	out := &NoteDTO{
		RecordUUID:           n.RecordUUID,
		FormatVersion:        snap.FormatVersion,
		Pages:                snap.Pages,
		ErasedStrokesByEvent: snap.ErasedStrokesByEvent,
		Version:              n.Version,
		LockedByDeviceID:     n.LockedByDeviceID,
		UpdatedAt:            n.UpdatedAt.UnixMilli(),
	}
	if n.LockedAt != nil {
		out.LockedAt = n.LockedAt.UnixMilli()
	}
	return out
}

// ToDomain DTO 转换为领域笔记
func (d *NoteDTO) ToDomain() *domain.Note {
	n := &domain.Note{
		RecordUUID:           d.RecordUUID,
		Pages:                d.Pages,
		ErasedStrokesByEvent: d.ErasedStrokesByEvent,
		Version:              d.Version,
		LockedByDeviceID:     d.LockedByDeviceID,
	}
	if n.Pages == nil {
		n.Pages = [][]domain.Stroke{}
	}
	if d.UpdatedAt > 0 {
		n.UpdatedAt = time.UnixMilli(d.UpdatedAt).UTC()
	}
	if d.LockedAt > 0 {
		t := time.UnixMilli(d.LockedAt).UTC()
		n.LockedAt = &t
	}
	return n
}

// ToDomain 保存请求转换为领域笔记
func (r *NoteSaveRequest) ToDomain() *domain.Note {
	pages := r.Pages
	if pages == nil {
		pages = [][]domain.Stroke{}
	}
	return &domain.Note{
		RecordUUID:           r.RecordUUID,
		Pages:                pages,
		ErasedStrokesByEvent: r.ErasedStrokesByEvent,
		Version:              r.ExpectedVersion,
	}
}
