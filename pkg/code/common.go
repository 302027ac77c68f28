package code

import "net/http"

var (
	Success        = NewSuss(1, lang{en: "Success", zh_cn: "成功"})
	SuccessCreate  = NewSuss(2, lang{en: "Created", zh_cn: "创建成功"})
	SuccessUpdate  = NewSuss(3, lang{en: "Updated", zh_cn: "更新成功"})
	SuccessDelete  = NewSuss(4, lang{en: "Deleted", zh_cn: "删除成功"})
	SuccessRelease = NewSuss(5, lang{en: "Lease released", zh_cn: "编辑租约已释放"})

	ErrorServerInternal = NewError(500, http.StatusInternalServerError, lang{en: "Internal server error", zh_cn: "服务器内部错误"})
	ErrorDBQuery        = NewError(501, http.StatusInternalServerError, lang{en: "Database query failed", zh_cn: "数据库查询失败"})
	ErrorInvalidParams  = NewError(400, http.StatusBadRequest, lang{en: "Invalid parameters", zh_cn: "参数错误"})
	ErrorTooManyRequest = NewError(429, http.StatusTooManyRequests, lang{en: "Too many requests", zh_cn: "请求过多"})
	ErrorNotFoundAPI    = NewError(404, http.StatusNotFound, lang{en: "API not found", zh_cn: "接口不存在"})
	ErrorRequestTimeout = NewError(408, http.StatusRequestTimeout, lang{en: "Request timeout", zh_cn: "请求超时"})

	ErrorNotDeviceAuthToken     = NewError(401, http.StatusUnauthorized, lang{en: "Missing device credentials", zh_cn: "缺少设备凭证"})
	ErrorInvalidDeviceAuthToken = NewError(402, http.StatusUnauthorized, lang{en: "Invalid device credentials", zh_cn: "设备凭证无效"})

	ErrorRecordNotFound  = NewError(4041, http.StatusNotFound, lang{en: "Record not found", zh_cn: "档案不存在"})
	ErrorEventNotFound   = NewError(4042, http.StatusNotFound, lang{en: "Event not found", zh_cn: "预约不存在"})
	ErrorNoteNotFound    = NewError(4043, http.StatusNotFound, lang{en: "Note not found", zh_cn: "笔记不存在"})
	ErrorDrawingNotFound = NewError(4044, http.StatusNotFound, lang{en: "Drawing not found", zh_cn: "手绘不存在"})

	ErrorVersionConflict  = NewError(4091, http.StatusConflict, lang{en: "Version conflict", zh_cn: "版本冲突"})
	ErrorEventRescheduled = NewError(4092, http.StatusConflict, lang{en: "Event already rescheduled or removed", zh_cn: "预约已改期或已删除"})
	ErrorRecordInUse      = NewError(4093, http.StatusConflict, lang{en: "Record still referenced by events", zh_cn: "档案仍被预约引用"})
	ErrorLeaseHeld        = NewError(4231, http.StatusLocked, lang{en: "Note is being edited on another device", zh_cn: "笔记正在其他设备上编辑"})
)
