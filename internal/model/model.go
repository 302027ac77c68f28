// Package model gorm table models for the server database and the device cache database
// Package model 服务端数据库与设备端缓存数据库的 gorm 表模型
package model

import (
	"gorm.io/gorm"
)

// ServerModels 服务端表
func ServerModels() []any {
	return []any{&Record{}, &Event{}, &Note{}, &Drawing{}}
}

// CacheModels 设备端缓存表
func CacheModels() []any {
	return []any{&CacheNote{}, &CacheDrawing{}, &CachePolicy{}, &CacheOutbox{}}
}

// AutoMigrateServer 自动迁移服务端表
func AutoMigrateServer(db *gorm.DB) error {
	return db.AutoMigrate(ServerModels()...)
}

// AutoMigrateCache 自动迁移设备端缓存表
func AutoMigrateCache(db *gorm.DB) error {
	return db.AutoMigrate(CacheModels()...)
}
