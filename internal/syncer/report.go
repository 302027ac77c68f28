package syncer

import (
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
)

// Item 单条记录的同步结果
type Item struct {
	Kind    domain.EntityKind
	Key     string
	State   domain.SyncState
	Version int64
	Err     error
}

// Report summarizes one batch; Conflicts counts entries resolved in favour of the server.
// Total counts the selected entries, those skipped by a cancelled batch fall in no bucket.
// Report 一次批量同步的汇总，Conflicts 为以服务端副本解决的冲突数；Total 为选中的条目数，批次取消后跳过的条目不计入任何分类
type Report struct {
	Kind      domain.EntityKind
	Total     int
	Clean     int
	Conflicts int
	// Rejected edits the server refused as invalid; they leave the outbox and are not retried
	// Rejected 被服务端判定无效的修改，已移出发件箱且不再重试
	Rejected int
	Failed   int
	// NetworkFailures failures caused by transport errors, a subset of Failed
	// NetworkFailures 传输错误导致的失败，属于 Failed 的子集
	NetworkFailures int
	Items           []Item
	Duration        time.Duration
}

func (r *Report) add(it Item, detail bool) {
	switch it.State {
	case domain.SyncStateClean:
		r.Clean++
	case domain.SyncStateConflict:
		r.Conflicts++
	case domain.SyncStateRejected:
		r.Rejected++
	default:
		r.Failed++
		if domain.IsNetwork(it.Err) {
			r.NetworkFailures++
		}
	}
	if detail {
		r.Items = append(r.Items, it)
	}
}

// Summary SyncAll 的结果
type Summary struct {
	Notes    Report
	Drawings Report
}

// Failed 两类实体失败数之和
func (s Summary) Failed() int {
	return s.Notes.Failed + s.Drawings.Failed
}

type syncOptions struct {
	detail bool
}

// Option 同步选项
type Option func(*syncOptions)

// WithDetail keeps the per-entry items in the report
// WithDetail 在报告中保留逐条结果
func WithDetail() Option {
	return func(o *syncOptions) { o.detail = true }
}

func applyOptions(opts []Option) syncOptions {
	var o syncOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
