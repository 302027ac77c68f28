// Package app 提供应用容器，封装所有依赖和服务
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/dao"
	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/internal/model"
	"github.com/haierkeys/schedule-note-sync/internal/service"
	pkgapp "github.com/haierkeys/schedule-note-sync/pkg/app"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App 服务端应用容器，封装所有依赖和服务
type App struct {
	// 基础设施（注入的依赖）
	config *AppConfig
	logger *zap.Logger
	DB     *gorm.DB
	Dao    *dao.Dao

	StartTime time.Time

	// Repository 层
	RecordRepo  domain.RecordRepository
	EventRepo   domain.EventRepository
	NoteRepo    domain.NoteRepository
	DrawingRepo domain.DrawingRepository

	// Service 层
	RecordService  service.RecordService
	EventService   service.EventService
	NoteService    service.NoteService
	DrawingService service.DrawingService

	// 基础设施组件
	TokenManager pkgapp.TokenManager

	// 关闭控制
	shutdownOnce sync.Once
}

// NewApp 创建应用容器实例
// 初始化所有依赖并进行依赖注入
// cfg: 应用配置（必须）
// logger: zap 日志器（必须）
// db: 数据库连接（必须）
func NewApp(cfg *AppConfig, logger *zap.Logger, db *gorm.DB) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	a := &App{
		config:    cfg,
		logger:    logger,
		DB:        db,
		StartTime: time.Now(),
	}

	if cfg.Database.AutoMigrate {
		if err := model.AutoMigrateServer(db); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	a.Dao = dao.New(db, logger)

	// 初始化 TokenManager
	a.TokenManager = pkgapp.NewTokenManager(pkgapp.TokenConfig{
		SecretKey: cfg.Security.DeviceTokenKey,
		Expiry:    cfg.GetTokenExpiry(),
	})

	// 初始化 Repository 层
	a.RecordRepo = dao.NewRecordRepository(a.Dao)
	a.EventRepo = dao.NewEventRepository(a.Dao)
	a.NoteRepo = dao.NewNoteRepository(a.Dao)
	a.DrawingRepo = dao.NewDrawingRepository(a.Dao)

	svcConfig := &service.ServiceConfig{
		Lease: service.LeaseServiceConfig{Expiry: cfg.GetLeaseExpiry()},
	}

	// 初始化 Service 层（依赖注入）
	a.RecordService = service.NewRecordService(a.Dao, a.RecordRepo, a.EventRepo, a.NoteRepo, logger)
	a.EventService = service.NewEventService(a.Dao, a.RecordRepo, a.EventRepo, a.NoteRepo, a.RecordService, logger)
	a.NoteService = service.NewNoteService(a.RecordRepo, a.EventRepo, a.NoteRepo, svcConfig, logger)
	a.DrawingService = service.NewDrawingService(a.DrawingRepo, logger)

	logger.Info("App container initialized successfully",
		zap.String("database", cfg.Database.Type),
		zap.Duration("leaseExpiry", svcConfig.Lease.Expiry))

	return a, nil
}

// Config 获取应用配置
func (a *App) Config() *AppConfig {
	return a.config
}

// Logger 获取日志器
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Version 获取版本信息
func (a *App) Version() pkgapp.VersionInfo {
	return pkgapp.VersionInfo{
		Version:   Version,
		GitTag:    GitTag,
		BuildTime: BuildTime,
	}
}

// IsProductionMode 是否为生产模式
func (a *App) IsProductionMode() bool {
	return a.config.Log.Production
}

// DefaultShutdownTimeout 默认关闭超时时间
const DefaultShutdownTimeout = 30 * time.Second

// Shutdown 关闭应用容器并释放数据库连接
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.shutdownOnce.Do(func() {
		a.logger.Info("App container shutting down...")
		if cerr := a.Dao.Close(); cerr != nil {
			err = fmt.Errorf("failed to close database: %w", cerr)
			return
		}
		a.logger.Info("Database connection closed")
	})
	return err
}
