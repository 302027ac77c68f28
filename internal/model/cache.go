package model

// CacheMeta columns shared by every cache table, all times are unix milliseconds
// CacheMeta 所有缓存表共有的列，时间均为 Unix 毫秒
type CacheMeta struct {
	Payload       []byte `gorm:"column:payload" json:"payload"`
	Version       int64  `gorm:"column:version;not null" json:"version"`
	CachedAt      int64  `gorm:"column:cached_at;not null;index" json:"cachedAt"`
	CacheHitCount int64  `gorm:"column:cache_hit_count;not null" json:"cacheHitCount"`
	IsDirty       bool   `gorm:"column:is_dirty;not null;index" json:"isDirty"`
	Revision      int64  `gorm:"column:revision;not null" json:"revision"`
	SizeBytes     int64  `gorm:"column:size_bytes;not null" json:"sizeBytes"`
}

const TableNameCacheNote = "cache_note"

// CacheNote mapped from table <cache_note>
type CacheNote struct {
	RecordUUID       string    `gorm:"column:record_uuid;primaryKey;size:36" json:"recordUuid"`
	CacheMeta        CacheMeta `gorm:"embedded" json:"meta"`
	LockedByDeviceID string    `gorm:"column:locked_by_device_id;size:64" json:"lockedByDeviceId"`
	LockedAt         int64     `gorm:"column:locked_at" json:"lockedAt"`
}

// TableName CacheNote's table name
func (*CacheNote) TableName() string {
	return TableNameCacheNote
}

const TableNameCacheDrawing = "cache_drawing"

// CacheDrawing mapped from table <cache_drawing>, CacheKey is domain.DrawingKey.String()
// CacheDrawing 映射 cache_drawing 表，CacheKey 为 domain.DrawingKey.String()
type CacheDrawing struct {
	CacheKey  string    `gorm:"column:cache_key;primaryKey;size:96" json:"cacheKey"`
	BookUUID  string    `gorm:"column:book_uuid;size:36;not null;index:idx_cache_drawing_book_date,priority:1" json:"bookUuid"`
	Date      string    `gorm:"column:date;size:10;not null;index:idx_cache_drawing_book_date,priority:2" json:"date"`
	ViewMode  int       `gorm:"column:view_mode;not null" json:"viewMode"`
	CacheMeta CacheMeta `gorm:"embedded" json:"meta"`
}

// TableName CacheDrawing's table name
func (*CacheDrawing) TableName() string {
	return TableNameCacheDrawing
}

const TableNameCachePolicy = "cache_policy"

// CachePolicy mapped from table <cache_policy>, a single row with ID 1
// CachePolicy 映射 cache_policy 表，只有 ID 为 1 的一行
type CachePolicy struct {
	ID                int64 `gorm:"column:id;primaryKey" json:"id"`
	MaxCacheSizeMb    int   `gorm:"column:max_cache_size_mb;not null" json:"maxCacheSizeMb"`
	CacheDurationDays int   `gorm:"column:cache_duration_days;not null" json:"cacheDurationDays"`
	AutoCleanup       bool  `gorm:"column:auto_cleanup;not null" json:"autoCleanup"`
	LastCleanupAt     int64 `gorm:"column:last_cleanup_at" json:"lastCleanupAt"`
}

// TableName CachePolicy's table name
func (*CachePolicy) TableName() string {
	return TableNameCachePolicy
}

const TableNameCacheOutbox = "cache_outbox"

// CacheOutbox mapped from table <cache_outbox>, one row per entity with an unpushed local edit
// CacheOutbox 映射 cache_outbox 表，每个存在未推送本地修改的实体一行
type CacheOutbox struct {
	Kind       string `gorm:"column:kind;primaryKey;size:16" json:"kind"`
	EntityKey  string `gorm:"column:entity_key;primaryKey;size:96" json:"entityKey"`
	Revision   int64  `gorm:"column:revision;not null" json:"revision"`
	Attempts   int    `gorm:"column:attempts;not null" json:"attempts"`
	LastError  string `gorm:"column:last_error;type:text" json:"lastError"`
	EnqueuedAt int64  `gorm:"column:enqueued_at;not null;index" json:"enqueuedAt"`
	UpdatedAt  int64  `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName CacheOutbox's table name
func (*CacheOutbox) TableName() string {
	return TableNameCacheOutbox
}
