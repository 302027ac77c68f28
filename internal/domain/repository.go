package domain

import (
	"context"
	"time"
)

// Transactor runs fn inside one database transaction carried by ctx
// Transactor 在 ctx 携带的同一个数据库事务中执行 fn
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RecordRepository 档案仓储接口
type RecordRepository interface {
	// GetByUUID 根据 UUID 获取档案
	GetByUUID(ctx context.Context, uuid string) (*Record, error)

	// GetByNumber 根据档案号获取档案
	GetByNumber(ctx context.Context, number string) (*Record, error)

	// Create 创建档案
	Create(ctx context.Context, record *Record) (*Record, error)

	// UpdateCAS 仅当版本等于 expectedVersion 时更新，成功后版本加一
	UpdateCAS(ctx context.Context, record *Record, expectedVersion int64) (*Record, error)

	// Delete 删除档案
	Delete(ctx context.Context, uuid string) error
}

// EventRepository 预约仓储接口
type EventRepository interface {
	// GetByID 根据 ID 获取预约
	GetByID(ctx context.Context, id string) (*Event, error)

	// Create 创建预约
	Create(ctx context.Context, event *Event) (*Event, error)

	// List 按日程本与时间范围列出预约
	List(ctx context.Context, r EventRange) ([]*Event, error)

	// MarkRescheduled sets new_event_id once and soft-removes the event
	// MarkRescheduled 只写一次 new_event_id 并软删除预约
	MarkRescheduled(ctx context.Context, id, newEventID string) error

	// UpdateRecordUUID 将预约指向另一个档案
	UpdateRecordUUID(ctx context.Context, id, recordUUID string) error

	// CountByRecord 统计引用档案的预约数量
	CountByRecord(ctx context.Context, recordUUID string) (int64, error)
}

// NoteRepository 服务端笔记仓储接口
type NoteRepository interface {
	// GetByRecord 根据档案获取笔记
	GetByRecord(ctx context.Context, recordUUID string) (*Note, error)

	// Create 创建版本为 1 的笔记，唯一约束冲突时返回 *ConflictError
	Create(ctx context.Context, note *Note) (*Note, error)

	// UpdateCAS 仅当版本等于 expectedVersion 时更新，否则返回 *ConflictError
	UpdateCAS(ctx context.Context, note *Note, expectedVersion int64) (*Note, error)

	// Delete 删除笔记
	Delete(ctx context.Context, recordUUID string) error

	// MoveToRecord 将笔记转移到另一个档案
	MoveToRecord(ctx context.Context, fromRecordUUID, toRecordUUID string) error

	// ExistsFor 返回有笔记的档案集合
	ExistsFor(ctx context.Context, recordUUIDs []string) (map[string]bool, error)

	// AcquireLease takes the lease when free, already owned by deviceID, or last taken before staleBefore
	// AcquireLease 当租约空闲、已属于 deviceID 或早于 staleBefore 时获取租约
	AcquireLease(ctx context.Context, recordUUID, deviceID string, now, staleBefore time.Time) (*Note, error)

	// ReleaseLease 释放 deviceID 持有的租约
	ReleaseLease(ctx context.Context, recordUUID, deviceID string) error
}

// DrawingRepository 服务端手绘仓储接口
type DrawingRepository interface {
	// Get 根据键获取手绘
	Get(ctx context.Context, key DrawingKey) (*ScheduleDrawing, error)

	// List 按范围列出手绘
	List(ctx context.Context, r DrawingRange) ([]*ScheduleDrawing, error)

	// Create 创建版本为 1 的手绘，唯一约束冲突时返回 *ConflictError
	Create(ctx context.Context, drawing *ScheduleDrawing) (*ScheduleDrawing, error)

	// UpdateCAS 仅当版本等于 expectedVersion 时更新，否则返回 *ConflictError
	UpdateCAS(ctx context.Context, drawing *ScheduleDrawing, expectedVersion int64) (*ScheduleDrawing, error)

	// Delete 删除手绘
	Delete(ctx context.Context, key DrawingKey) error
}
