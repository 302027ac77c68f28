package middleware

import (
	"github.com/haierkeys/schedule-note-sync/pkg/app"
	"github.com/haierkeys/schedule-note-sync/pkg/code"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderDeviceID 设备 ID 请求头
	HeaderDeviceID = "X-Device-ID"
	// HeaderDeviceToken 设备凭证请求头
	HeaderDeviceToken = "X-Device-Token"
	// DeviceIDKey gin.Context 中存储设备 ID 的键
	DeviceIDKey = "device_id"
)

// DeviceAuthToken requires X-Device-ID and an X-Device-Token issued to that device
// DeviceAuthToken 要求请求携带 X-Device-ID 以及签发给该设备的 X-Device-Token
func DeviceAuthToken(tm app.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := app.NewResponse(c)

		deviceID := c.GetHeader(HeaderDeviceID)
		token := c.GetHeader(HeaderDeviceToken)
		if deviceID == "" || token == "" {
			response.ToResponse(code.ErrorNotDeviceAuthToken)
			c.Abort()
			return
		}

		if err := tm.Validate(token, deviceID); err != nil {
			response.ToResponse(code.ErrorInvalidDeviceAuthToken)
			c.Abort()
			return
		}
		c.Set(DeviceIDKey, deviceID)

		c.Next()
	}
}

// GetDeviceID 从 gin.Context 获取已认证的设备 ID
func GetDeviceID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(DeviceIDKey)
}
