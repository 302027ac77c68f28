// Package service implements the server business logic layer
// Package service 实现服务端业务逻辑层
package service

import "time"

// ServiceConfig service layer configuration
// ServiceConfig 服务层配置
type ServiceConfig struct {
	Lease LeaseServiceConfig // Note lease config // 笔记租约配置
}

// LeaseServiceConfig note lease configuration
// LeaseServiceConfig 笔记编辑租约配置
type LeaseServiceConfig struct {
	// Expiry a lease older than this can be taken over, 0 means leases never go stale
	// Expiry 超过该时长的租约可被接管，0 表示租约永不过期
	Expiry time.Duration
}
