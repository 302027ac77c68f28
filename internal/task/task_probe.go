package task

import (
	"context"
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/app"
)

func init() {
	Register(NewProbeTask)
}

// ProbeTask keeps the sync indicator current while no batch runs
// ProbeTask 在没有批次运行时保持同步状态指示最新
type ProbeTask struct {
	device *app.Device
}

func NewProbeTask(d *app.Device) (Task, error) {
	return &ProbeTask{device: d}, nil
}

func (t *ProbeTask) Name() string {
	return "ServerProbe"
}

func (t *ProbeTask) LoopInterval() time.Duration {
	return time.Minute
}

func (t *ProbeTask) IsStartupRun() bool {
	return true
}

// Run 服务端不可达不是任务错误
func (t *ProbeTask) Run(ctx context.Context) error {
	_ = t.device.Probe(ctx)
	return nil
}
