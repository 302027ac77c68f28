package util

import (
	"sync"

	"github.com/denisbrodbeck/machineid"
)

var (
	deviceID     string
	deviceIDOnce sync.Once
)

// DefaultDeviceID returns a stable per-machine device id derived from the machine id, hashed with appID
// DefaultDeviceID 返回基于机器 ID 并以 appID 加盐哈希的稳定设备 ID
// An empty string is returned when the machine id cannot be read.
// 无法读取机器 ID 时返回空字符串。
func DefaultDeviceID(appID string) string {
	deviceIDOnce.Do(func() {
		id, err := machineid.ProtectedID(appID)
		if err == nil && len(id) >= 16 {
			deviceID = id[:16]
		}
	})
	return deviceID
}
