package logger

// 统一的日志字段命名常量
// 用于确保整个项目中日志字段命名的一致性，便于日志查询和分析
const (
	// FieldTraceID 追踪 ID 字段
	FieldTraceID = "traceId"

	// FieldDeviceID 设备 ID 字段
	FieldDeviceID = "deviceId"

	// FieldAction 操作类型字段
	FieldAction = "action"

	// FieldMethod 方法名称字段
	FieldMethod = "method"

	// FieldError 错误信息字段
	FieldError = "error"

	// FieldDuration 耗时字段
	FieldDuration = "duration"

	// FieldKind 缓存实体类型字段 (note / drawing)
	FieldKind = "kind"

	// FieldKey 缓存实体键字段
	FieldKey = "key"

	// FieldRecordUUID 档案 UUID 字段
	FieldRecordUUID = "recordUuid"

	// FieldEventID 预约 ID 字段
	FieldEventID = "eventId"

	// FieldBookUUID 日程本 UUID 字段
	FieldBookUUID = "bookUuid"

	// FieldVersion 版本号字段
	FieldVersion = "version"

	// FieldSize 缓存大小字段
	FieldSize = "size"

	// FieldCount 数量字段
	FieldCount = "count"
)
