package model

const TableNameRecord = "record"

// Record mapped from table <record>
// RecordNumber is NULL when empty so that the unique index only covers filled numbers.
// 档案号为空时存 NULL，唯一索引只约束已填写的档案号。
type Record struct {
	UUID         string  `gorm:"column:uuid;primaryKey;size:36" json:"uuid"`
	RecordNumber *string `gorm:"column:record_number;size:64;uniqueIndex:idx_record_number" json:"recordNumber"`
	Name         string  `gorm:"column:name;size:255" json:"name"`
	Phone        string  `gorm:"column:phone;size:64" json:"phone"`
	Version      int64   `gorm:"column:version;not null" json:"version"`
	CreatedAt    int64   `gorm:"column:created_at;autoCreateTime:milli" json:"createdAt"`
	UpdatedAt    int64   `gorm:"column:updated_at;autoUpdateTime:milli" json:"updatedAt"`
}

// TableName Record's table name
func (*Record) TableName() string {
	return TableNameRecord
}

const TableNameEvent = "event"

// Event mapped from table <event>
type Event struct {
	ID              string  `gorm:"column:id;primaryKey;size:36" json:"id"`
	BookUUID        string  `gorm:"column:book_uuid;size:36;not null;index:idx_event_book_start,priority:1" json:"bookUuid"`
	RecordUUID      string  `gorm:"column:record_uuid;size:36;not null;index:idx_event_record" json:"recordUuid"`
	StartTime       int64   `gorm:"column:start_time;not null;index:idx_event_book_start,priority:2" json:"startTime"`
	EndTime         *int64  `gorm:"column:end_time" json:"endTime"`
	IsRemoved       bool    `gorm:"column:is_removed;not null" json:"isRemoved"`
	RemovalReason   string  `gorm:"column:removal_reason;size:64" json:"removalReason"`
	OriginalEventID string  `gorm:"column:original_event_id;size:36" json:"originalEventId"`
	NewEventID      *string `gorm:"column:new_event_id;size:36" json:"newEventId"`
	EventTypes      string  `gorm:"column:event_types;type:text" json:"eventTypes"`
	IsChecked       bool    `gorm:"column:is_checked;not null" json:"isChecked"`
	CreatedAt       int64   `gorm:"column:created_at;autoCreateTime:milli" json:"createdAt"`
	UpdatedAt       int64   `gorm:"column:updated_at;autoUpdateTime:milli" json:"updatedAt"`
}

// TableName Event's table name
func (*Event) TableName() string {
	return TableNameEvent
}
