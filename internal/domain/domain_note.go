package domain

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// NoteFormatVersion current note snapshot format version
// NoteFormatVersion 当前笔记快照格式版本
const NoteFormatVersion = 1

var validate = validator.New()

// CacheMeta per-entry cache metadata, meaningful on the device only
// CacheMeta 缓存元数据，仅在设备端有意义
type CacheMeta struct {
	CachedAt      time.Time
	CacheHitCount int64
	IsDirty       bool
	// Revision grows on every local write
	// Revision 每次本地写入递增
	Revision  int64
	SizeBytes int64
}

// Point 笔画上的一个点
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke 一笔手写笔画
type Stroke struct {
	ID          string  `json:"id" validate:"required,max=64"`
	EventUUID   string  `json:"event_uuid,omitempty" validate:"max=64"`
	Points      []Point `json:"points"`
	StrokeWidth float64 `json:"stroke_width" validate:"gt=0"`
	Color       int64   `json:"color"`
	StrokeType  string  `json:"stroke_type,omitempty" validate:"max=32"`
}

// Note 笔记领域模型，一个档案对应一条笔记
type Note struct {
	RecordUUID           string              `validate:"required"`
	Pages                [][]Stroke          `validate:"dive,dive"`
	ErasedStrokesByEvent map[string][]string `validate:"-"`
	Version              int64               `validate:"gte=0"`
	LockedByDeviceID     string              `validate:"-"`
	LockedAt             *time.Time          `validate:"-"`
	UpdatedAt            time.Time           `validate:"-"`
	Cache                CacheMeta           `validate:"-"`
}

// Validate checks structural validity before a note is stored or pushed
// Validate 在笔记写入或推送前校验结构
func (n *Note) Validate() error {
	if n == nil {
		return NewValidationError("note", "is nil")
	}
	return wrapValidation(validate.Struct(n))
}

// StrokeCount 笔记中笔画总数
func (n *Note) StrokeCount() int {
	total := 0
	for _, page := range n.Pages {
		total += len(page)
	}
	return total
}

// LeasedByOther reports whether another device holds a lease that has not expired
// LeasedByOther 判断是否有其他设备持有未过期的编辑租约
func (n *Note) LeasedByOther(deviceID string, now time.Time, expiry time.Duration) bool {
	if n == nil || n.LockedByDeviceID == "" || n.LockedAt == nil {
		return false
	}
	if n.LockedByDeviceID == deviceID {
		return false
	}
	if expiry > 0 && !now.Before(n.LockedAt.Add(expiry)) {
		return false
	}
	return true
}

// Clone returns a deep copy
// Clone 返回深拷贝
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	c.Pages = make([][]Stroke, len(n.Pages))
	for i, page := range n.Pages {
		c.Pages[i] = cloneStrokes(page)
	}
	if n.ErasedStrokesByEvent != nil {
		c.ErasedStrokesByEvent = make(map[string][]string, len(n.ErasedStrokesByEvent))
		for k, v := range n.ErasedStrokesByEvent {
			c.ErasedStrokesByEvent[k] = append([]string(nil), v...)
		}
	}
	if n.LockedAt != nil {
		t := *n.LockedAt
		c.LockedAt = &t
	}
	return &c
}

func cloneStrokes(src []Stroke) []Stroke {
	if src == nil {
		return nil
	}
	out := make([]Stroke, len(src))
	for i, s := range src {
		s.Points = append([]Point(nil), s.Points...)
		out[i] = s
	}
	return out
}
