package domain

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNotFound entity does not exist (or was deleted remotely)
	// ErrNotFound 实体不存在（或已在远端删除）
	ErrNotFound = errors.New("not found")
	// ErrLeaseHeld another device holds the note lease
	// ErrLeaseHeld 其他设备持有笔记编辑租约
	ErrLeaseHeld = errors.New("note lease held by another device")
	// ErrAlreadyRescheduled event already moved forward in its chain or was removed
	// ErrAlreadyRescheduled 预约已改期或已删除
	ErrAlreadyRescheduled = errors.New("event already rescheduled or removed")
	// ErrRecordInUse record is still referenced by events
	// ErrRecordInUse 档案仍被预约引用
	ErrRecordInUse = errors.New("record still referenced by events")
)

// NetworkError transport-level failure (timeout, connection refused, 5xx)
// NetworkError 传输层失败（超时、连接拒绝、5xx）
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ConflictError the server's stored version differs from the expected version
// ConflictError 服务端存储的版本与期望版本不一致
type ConflictError struct {
	Kind            string
	Key             string
	ExpectedVersion int64
	ServerVersion   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s %s: expected %d, server has %d", e.Kind, e.Key, e.ExpectedVersion, e.ServerVersion)
}

// ValidationError payload rejected as malformed; never retried
// ValidationError 负载格式非法，不会重试
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func wrapValidation(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return NewValidationError(fe.Namespace(), "failed on "+fe.Tag())
	}
	return NewValidationError("", err.Error())
}

// IsNetwork 是否为网络错误
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsConflict 是否为版本冲突
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// AsConflict 提取版本冲突错误
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	ok := errors.As(err, &ce)
	return ce, ok
}

// IsNotFound 是否为不存在错误
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation 是否为校验错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
