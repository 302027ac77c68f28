package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/haierkeys/schedule-note-sync/internal/cache"
	"github.com/haierkeys/schedule-note-sync/internal/content"
	"github.com/haierkeys/schedule-note-sync/internal/remote"
	"github.com/haierkeys/schedule-note-sync/internal/syncer"
	"github.com/haierkeys/schedule-note-sync/pkg/workerpool"
	"github.com/haierkeys/schedule-note-sync/pkg/writequeue"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

// Device 设备端引擎容器：本地缓存、远端客户端、内容层与同步协调器
type Device struct {
	config *AppConfig
	logger *zap.Logger

	ID string

	Store  *cache.Store
	Remote *remote.Client

	// 异步推送与异步淘汰
	WorkerPool *workerpool.Pool
	// 手绘同键写入串行化
	WriteQueue *writequeue.Manager

	Notes    *content.NoteService
	Drawings *content.DrawingService
	Syncer   *syncer.Coordinator

	shutdownOnce sync.Once
}

// NewDevice opens the cache database and wires the device engine
// NewDevice 打开缓存数据库并组装设备端引擎
func NewDevice(cfg *AppConfig, logger *zap.Logger, tracer opentracing.Tracer) (*Device, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	id := cfg.DeviceID()
	if id == "" {
		return nil, fmt.Errorf("device id is not configured and the machine id is unavailable")
	}

	db, err := cache.Open(cfg.Device.CachePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	d := &Device{config: cfg, logger: logger, ID: id}

	poolCfg := cfg.GetWorkerPoolConfig()
	d.WorkerPool = workerpool.New(&poolCfg, logger)
	queueCfg := cfg.GetWriteQueueConfig()
	d.WriteQueue = writequeue.New(&queueCfg, logger)

	d.Store = cache.New(db, logger,
		cache.WithWorkerPool(d.WorkerPool),
		cache.WithDefaultPolicy(cfg.GetCachePolicy()))

	d.Remote = remote.New(remote.Config{
		ServerURL: cfg.Device.ServerURL,
		DeviceID:  id,
		Token:     cfg.Device.Token,
		Timeout:   cfg.GetRequestTimeout(),
	}, tracer, logger)

	contentCfg := content.Config{
		DeviceID:           id,
		LeaseExpiry:        cfg.GetLeaseExpiry(),
		PreloadConcurrency: cfg.Device.PreloadConcurrency,
		ViewModes:          cfg.Device.ViewModes,
	}
	d.Notes = content.NewNoteService(d.Store, d.Remote, d.WorkerPool, contentCfg, logger)
	d.Drawings = content.NewDrawingService(d.Store, d.Remote, d.WorkerPool, d.WriteQueue, contentCfg, logger)
	d.Syncer = syncer.NewCoordinator(d.Store, d.Notes, d.Drawings, d.Remote,
		syncer.Config{Concurrency: cfg.Device.SyncConcurrency}, logger)

	logger.Info("Device engine initialized",
		zap.String("deviceId", id),
		zap.String("server", cfg.Device.ServerURL),
		zap.String("cache", cfg.Device.CachePath))
	return d, nil
}

// Config 获取应用配置
func (d *Device) Config() *AppConfig {
	return d.config
}

// Logger 获取日志器
func (d *Device) Logger() *zap.Logger {
	return d.logger
}

// Probe asks the server for its health and updates the sync indicator
// Probe 探测服务端健康状态并更新同步状态指示
func (d *Device) Probe(ctx context.Context) error {
	_, err := d.Remote.Health(ctx)
	d.Syncer.MarkOnline(err == nil)
	return err
}

// Shutdown drains pending async pushes, stops the write queue and closes the cache
// Shutdown 等待异步推送完成，停止写队列并关闭缓存
func (d *Device) Shutdown(ctx context.Context) error {
	var err error
	d.shutdownOnce.Do(func() {
		if perr := d.WorkerPool.Shutdown(ctx); perr != nil {
			d.logger.Warn("worker pool shutdown", zap.Error(perr))
		}
		if qerr := d.WriteQueue.Shutdown(ctx); qerr != nil {
			d.logger.Warn("write queue shutdown", zap.Error(qerr))
		}
		if cerr := d.Store.Close(); cerr != nil {
			err = fmt.Errorf("failed to close cache: %w", cerr)
		}
	})
	return err
}
