// Package dto Defines data transfer objects shared by the server handlers and the remote client
// Package dto 定义服务端处理器与远端客户端共用的数据传输对象
package dto

import (
	"time"

	"github.com/haierkeys/schedule-note-sync/internal/domain"
	"github.com/haierkeys/schedule-note-sync/pkg/convert"
	"github.com/pkg/errors"
)

// RecordDTO 档案数据传输对象
type RecordDTO struct {
	UUID         string `json:"uuid"`
	RecordNumber string `json:"recordNumber"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Version      int64  `json:"version"`
	UpdatedAt    int64  `json:"updatedAt" copier:"-"`
}

// RecordResolveRequest resolves a record number to its canonical record, an empty number always creates a new record
// RecordResolveRequest 将档案号解析为规范档案，档案号为空时总是新建档案
type RecordResolveRequest struct {
	RecordNumber string `json:"recordNumber" form:"recordNumber" binding:"max=64"`
	Name         string `json:"name" form:"name" binding:"max=255"`
	Phone        string `json:"phone" form:"phone" binding:"max=64"`
}

// RecordUpdateRequest 档案更新请求参数
type RecordUpdateRequest struct {
	UUID            string `json:"-" uri:"uuid" binding:"required"`
	Name            string `json:"name" form:"name" binding:"max=255"`
	Phone           string `json:"phone" form:"phone" binding:"max=64"`
	ExpectedVersion int64  `json:"expectedVersion" form:"expectedVersion" binding:"gte=1"`
}

// RecordUUIDRequest 以档案 UUID 为参数的请求
type RecordUUIDRequest struct {
	UUID string `json:"-" uri:"uuid" binding:"required"`
}

// RecordFromDomain 领域档案转换为 DTO
func RecordFromDomain(r *domain.Record) (*RecordDTO, error) {
	if r == nil {
		return nil, nil
	}
	out := &RecordDTO{}
	if err := convert.StructAssign(r, out); err != nil {
		return nil, errors.Wrap(err, "record to dto")
	}
	out.UpdatedAt = r.UpdatedAt.UnixMilli()
	return out, nil
}

// ToDomain DTO 转换为领域档案
func (d *RecordDTO) ToDomain() (*domain.Record, error) {
	out := &domain.Record{}
	if err := convert.StructAssign(d, out); err != nil {
		return nil, errors.Wrap(err, "record from dto")
	}
	if d.UpdatedAt > 0 {
		out.UpdatedAt = time.UnixMilli(d.UpdatedAt).UTC()
	}
	return out, nil
}
