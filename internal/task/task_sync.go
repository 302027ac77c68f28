package task

import (
	"context"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/app"

	"go.uber.org/zap"
)

func init() {
	Register(NewSyncTask)
}

// SyncTask pushes every dirty note and drawing on an interval
// SyncTask 定时推送所有脏笔记与脏手绘
type SyncTask struct {
	device   *app.Device
	interval time.Duration
}

// NewSyncTask 同步间隔为 0 时禁用
func NewSyncTask(d *app.Device) (Task, error) {
	interval := d.Config().GetSyncInterval()
	if interval <= 0 {
		return nil, nil
	}
	return &SyncTask{device: d, interval: interval}, nil
}

func (t *SyncTask) Name() string {
	return "DeviceSync"
}

func (t *SyncTask) LoopInterval() time.Duration {
	return t.interval
}

func (t *SyncTask) IsStartupRun() bool {
	return true
}

// Run 没有待推送修改时跳过
func (t *SyncTask) Run(ctx context.Context) error {
	pending, err := t.device.Syncer.HasPendingChanges(ctx)
	if err != nil || !pending {
		return err
	}
	summary, err := t.device.Syncer.SyncAll(ctx)
	if err != nil {
		return err
	}
	if summary.Failed() > 0 {
		t.device.Logger().Warn("task log",
			zap.String("task", t.Name()),
			zap.Int("failedNotes", summary.Notes.Failed),
			zap.Int("failedDrawings", summary.Drawings.Failed))
	}
	return nil
}
