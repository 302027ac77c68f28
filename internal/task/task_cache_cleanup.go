package task

import (
	"context"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/app"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func init() {
	Register(NewCacheCleanupTask)
}

// CacheCleanupTask runs TTL and size eviction on a cron schedule
// CacheCleanupTask 按 cron 计划执行过期淘汰与容量淘汰
type CacheCleanupTask struct {
	device   *app.Device
	schedule cron.Schedule
}

// NewCacheCleanupTask accepts standard five field expressions and descriptors such as @every 6h
// NewCacheCleanupTask 支持标准五段表达式与 @every 6h 之类的描述符
func NewCacheCleanupTask(d *app.Device) (Task, error) {
	expr := d.Config().Device.CleanupCron
	if expr == "" {
		return nil, nil
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "parse cleanup cron %q", expr)
	}
	return &CacheCleanupTask{device: d, schedule: schedule}, nil
}

func (t *CacheCleanupTask) Name() string {
	return "CacheCleanup"
}

func (t *CacheCleanupTask) LoopInterval() time.Duration {
	return 0
}

// IsStartupRun 启动清理由 device watch 在注册任务前完成
func (t *CacheCleanupTask) IsStartupRun() bool {
	return false
}

func (t *CacheCleanupTask) Schedule() cron.Schedule {
	return t.schedule
}

func (t *CacheCleanupTask) Run(ctx context.Context) error {
	res, err := t.device.Store.PerformStartupCleanup(ctx)
	if err != nil {
		return err
	}
	if !res.Skipped {
		t.device.Logger().Info("task log",
			zap.String("task", t.Name()),
			zap.Int64("expired", res.Expired),
			zap.Int64("evicted", res.Evicted))
	}
	return nil
}
