// Package domain 定义领域模型和接口
package domain

import "time"

// Record 档案（人员）领域模型
// A Record is the identity shared by every Event that carries its record number.
// 携带相同档案号的所有预约共享同一个档案。
type Record struct {
	UUID         string
	RecordNumber string
	Name         string
	Phone        string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasNumber 档案是否填写了档案号
func (r *Record) HasNumber() bool {
	return r != nil && r.RecordNumber != ""
}

// RemovalReasonRescheduled 改期导致的软删除原因
const RemovalReasonRescheduled = "rescheduled"

// Event 预约领域模型
type Event struct {
	ID              string
	BookUUID        string
	RecordUUID      string
	StartTime       time.Time
	EndTime         *time.Time
	IsRemoved       bool
	RemovalReason   string
	OriginalEventID string
	NewEventID      string
	EventTypes      []string
	IsChecked       bool
	HasNote         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsRescheduled 预约是否已被改期
func (e *Event) IsRescheduled() bool {
	return e.NewEventID != ""
}

// CanReschedule an event can move forward in the chain only once, and never after removal
// CanReschedule 预约只能改期一次，已删除的预约不能改期
func (e *Event) CanReschedule() bool {
	return !e.IsRemoved && !e.IsRescheduled()
}

// EventRange 预约查询范围 [From, To)
type EventRange struct {
	BookUUID       string
	From           time.Time
	To             time.Time
	IncludeRemoved bool
}
