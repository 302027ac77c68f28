package domain

import "time"

// EntityKind 缓存实体类型
type EntityKind string

const (
	KindNote    EntityKind = "note"
	KindDrawing EntityKind = "drawing"
)

// CachePolicy 设备端缓存策略（单例）
type CachePolicy struct {
	MaxCacheSizeMb    int
	CacheDurationDays int
	AutoCleanup       bool
	LastCleanupAt     *time.Time
}

// Duration 缓存有效期
func (p CachePolicy) Duration() time.Duration {
	return time.Duration(p.CacheDurationDays) * 24 * time.Hour
}

// CacheStats 缓存统计
type CacheStats struct {
	NotesCount     int64
	DrawingsCount  int64
	DirtyNotes     int64
	DirtyDrawings  int64
	TotalSizeBytes int64
	TotalHits      int64
	PendingOutbox  int64
}

// TotalSizeMb 缓存总大小 (MB)
func (s CacheStats) TotalSizeMb() float64 {
	return float64(s.TotalSizeBytes) / (1024 * 1024)
}

// OutboxEntry a durable record that a local edit still has to reach the server
// OutboxEntry 本地修改尚未送达服务端的持久记录
type OutboxEntry struct {
	Kind       EntityKind
	Key        string
	Revision   int64
	Attempts   int
	LastError  string
	EnqueuedAt time.Time
	UpdatedAt  time.Time
}

// SyncState 单条记录的同步状态
type SyncState string

const (
	SyncStateDirty    SyncState = "DIRTY"
	SyncStateClean    SyncState = "CLEAN"
	SyncStateConflict SyncState = "CONFLICT"
	SyncStateFailed   SyncState = "FAILED"
	// SyncStateRejected the server refused the payload as invalid, retrying cannot succeed
	// SyncStateRejected 服务端判定内容无效而拒绝，重试不会成功
	SyncStateRejected SyncState = "REJECTED"
)

// Indicator 同步状态指示
type Indicator string

const (
	IndicatorOnline  Indicator = "ONLINE"
	IndicatorOffline Indicator = "OFFLINE"
	IndicatorSyncing Indicator = "SYNCING"
)
