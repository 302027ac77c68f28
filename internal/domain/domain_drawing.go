package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/haierkeys/schedule-note-sync/pkg/util"
)

// DrawingKey identifies a schedule drawing overlay
// DrawingKey 日程手绘的唯一键 (book_uuid, 日期, 视图模式)
type DrawingKey struct {
	BookUUID string
	Date     time.Time
	ViewMode int
}

// NewDrawingKey builds a key with the date normalized to its day
// NewDrawingKey 构造键并将日期归一化到天
func NewDrawingKey(bookUUID string, date time.Time, viewMode int) DrawingKey {
	return DrawingKey{BookUUID: bookUUID, Date: util.NormalizeDay(date), ViewMode: viewMode}
}

func (k DrawingKey) String() string {
	return k.BookUUID + "|" + util.FormatDay(k.Date) + "|" + strconv.Itoa(k.ViewMode)
}

// Validate 校验键的各部分
func (k DrawingKey) Validate() error {
	if k.BookUUID == "" {
		return NewValidationError("book_uuid", "is required")
	}
	if k.Date.IsZero() {
		return NewValidationError("date", "is required")
	}
	if k.ViewMode < 0 {
		return NewValidationError("view_mode", "must not be negative")
	}
	return nil
}

// ParseDrawingKey parses the String() form
// ParseDrawingKey 解析 String() 生成的键
func ParseDrawingKey(s string) (DrawingKey, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return DrawingKey{}, fmt.Errorf("invalid drawing key %q", s)
	}
	day, err := util.ParseDay(parts[1])
	if err != nil {
		return DrawingKey{}, fmt.Errorf("invalid drawing key date %q: %w", parts[1], err)
	}
	mode, err := strconv.Atoi(parts[2])
	if err != nil {
		return DrawingKey{}, fmt.Errorf("invalid drawing key view mode %q: %w", parts[2], err)
	}
	return DrawingKey{BookUUID: parts[0], Date: day, ViewMode: mode}, nil
}

// ScheduleDrawing 日程手绘领域模型
type ScheduleDrawing struct {
	Key       DrawingKey
	Strokes   []Stroke
	Version   int64
	UpdatedAt time.Time
	Cache     CacheMeta
}

// Validate 在写入或推送前校验手绘
func (d *ScheduleDrawing) Validate() error {
	if d == nil {
		return NewValidationError("drawing", "is nil")
	}
	if err := d.Key.Validate(); err != nil {
		return err
	}
	if d.Version < 0 {
		return NewValidationError("version", "must not be negative")
	}
	for i := range d.Strokes {
		if err := wrapValidation(validate.Struct(&d.Strokes[i])); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy
// Clone 返回深拷贝
func (d *ScheduleDrawing) Clone() *ScheduleDrawing {
	if d == nil {
		return nil
	}
	c := *d
	c.Strokes = cloneStrokes(d.Strokes)
	return &c
}

// DrawingRange 手绘查询范围 [From, To)，ViewMode 为空表示所有视图
type DrawingRange struct {
	BookUUID string
	From     time.Time
	To       time.Time
	ViewMode *int
}
