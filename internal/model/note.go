package model

const TableNameNote = "note"

// Note mapped from table <note>, one row per record
// Note 映射 note 表，每个档案一行
type Note struct {
	RecordUUID       string `gorm:"column:record_uuid;primaryKey;size:36" json:"recordUuid"`
	Payload          string `gorm:"column:payload;type:text;not null" json:"payload"`
	Version          int64  `gorm:"column:version;not null" json:"version"`
	LockedByDeviceID string `gorm:"column:locked_by_device_id;size:64" json:"lockedByDeviceId"`
	LockedAt         int64  `gorm:"column:locked_at" json:"lockedAt"`
	CreatedAt        int64  `gorm:"column:created_at;autoCreateTime:milli" json:"createdAt"`
	UpdatedAt        int64  `gorm:"column:updated_at;autoUpdateTime:milli" json:"updatedAt"`
}

// TableName Note's table name
func (*Note) TableName() string {
	return TableNameNote
}

const TableNameDrawing = "schedule_drawing"

// Drawing mapped from table <schedule_drawing>
type Drawing struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	BookUUID  string `gorm:"column:book_uuid;size:36;not null;uniqueIndex:idx_drawing_key,priority:1" json:"bookUuid"`
	Date      string `gorm:"column:date;size:10;not null;uniqueIndex:idx_drawing_key,priority:2" json:"date"`
	ViewMode  int    `gorm:"column:view_mode;not null;uniqueIndex:idx_drawing_key,priority:3" json:"viewMode"`
	Strokes   string `gorm:"column:strokes;type:text;not null" json:"strokes"`
	Version   int64  `gorm:"column:version;not null" json:"version"`
	CreatedAt int64  `gorm:"column:created_at;autoCreateTime:milli" json:"createdAt"`
	UpdatedAt int64  `gorm:"column:updated_at;autoUpdateTime:milli" json:"updatedAt"`
}

// TableName Drawing's table name
func (*Drawing) TableName() string {
	return TableNameDrawing
}
