package domain

import (
	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// NoteSnapshot is the wire and storage form of a note body
// NoteSnapshot 笔记内容在传输与存储中的形式
type NoteSnapshot struct {
	FormatVersion        int                 `json:"formatVersion"`
	Pages                [][]Stroke          `json:"pages"`
	ErasedStrokesByEvent map[string][]string `json:"erasedStrokesByEvent,omitempty"`
}

// SnapshotOf 从笔记生成快照
func SnapshotOf(n *Note) NoteSnapshot {
	pages := n.Pages
	if pages == nil {
		pages = [][]Stroke{}
	}
	return NoteSnapshot{
		FormatVersion:        NoteFormatVersion,
		Pages:                pages,
		ErasedStrokesByEvent: n.ErasedStrokesByEvent,
	}
}

// Apply copies the snapshot body into n
// Apply 将快照内容写入 n
func (s NoteSnapshot) Apply(n *Note) {
	n.Pages = s.Pages
	n.ErasedStrokesByEvent = s.ErasedStrokesByEvent
}

// EncodeNoteSnapshot 编码笔记快照
func EncodeNoteSnapshot(n *Note) ([]byte, error) {
	b, err := sonic.Marshal(SnapshotOf(n))
	if err != nil {
		return nil, errors.Wrap(err, "encode note snapshot")
	}
	return b, nil
}

// DecodeNoteSnapshot decodes a snapshot; a missing formatVersion is read as version 1
// DecodeNoteSnapshot 解码快照，缺少 formatVersion 时按版本 1 处理
func DecodeNoteSnapshot(b []byte) (NoteSnapshot, error) {
	var s NoteSnapshot
	if len(b) == 0 {
		return NoteSnapshot{FormatVersion: NoteFormatVersion, Pages: [][]Stroke{}}, nil
	}
	if err := sonic.Unmarshal(b, &s); err != nil {
		return s, errors.Wrap(err, "decode note snapshot")
	}
	if s.FormatVersion == 0 {
		s.FormatVersion = 1
	}
	if s.FormatVersion > NoteFormatVersion {
		return s, errors.Errorf("unsupported note snapshot format version %d", s.FormatVersion)
	}
	if s.Pages == nil {
		s.Pages = [][]Stroke{}
	}
	return s, nil
}

// EncodeStrokes 编码手绘笔画
func EncodeStrokes(strokes []Stroke) ([]byte, error) {
	if strokes == nil {
		strokes = []Stroke{}
	}
	b, err := sonic.Marshal(strokes)
	if err != nil {
		return nil, errors.Wrap(err, "encode strokes")
	}
	return b, nil
}

// DecodeStrokes 解码手绘笔画
func DecodeStrokes(b []byte) ([]Stroke, error) {
	strokes := []Stroke{}
	if len(b) == 0 {
		return strokes, nil
	}
	if err := sonic.Unmarshal(b, &strokes); err != nil {
		return nil, errors.Wrap(err, "decode strokes")
	}
	return strokes, nil
}

// MergeNoteInto appends src pages after dst pages and unions the erased stroke maps
// MergeNoteInto 将 src 的页追加到 dst 之后，并合并擦除笔画映射
func MergeNoteInto(dst, src *Note) {
	for _, page := range src.Pages {
		dst.Pages = append(dst.Pages, cloneStrokes(page))
	}
	if len(src.ErasedStrokesByEvent) == 0 {
		return
	}
	if dst.ErasedStrokesByEvent == nil {
		dst.ErasedStrokesByEvent = make(map[string][]string, len(src.ErasedStrokesByEvent))
	}
	for eventID, ids := range src.ErasedStrokesByEvent {
		seen := make(map[string]struct{}, len(dst.ErasedStrokesByEvent[eventID]))
		for _, id := range dst.ErasedStrokesByEvent[eventID] {
			seen[id] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				dst.ErasedStrokesByEvent[eventID] = append(dst.ErasedStrokesByEvent[eventID], id)
				seen[id] = struct{}{}
			}
		}
	}
}
