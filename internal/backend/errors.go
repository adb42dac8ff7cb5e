package backend

import (
	"errors"
	"fmt"
)

// 网络边界处一次性产出的类型化错误。
// 上层只允许对 Kind 做模式匹配，禁止再去匹配错误文案子串。

// Kind 后端错误分类
type Kind int

const (
	// KindTransient 网络不可达、超时、5xx，值得有限重试
	KindTransient Kind = iota + 1
	// KindSchemaAbsent 后端存储尚未建表/Schema 缓存未命中，立即重试没有意义
	KindSchemaAbsent
	// KindRejected 后端明确拒绝（校验失败等），终态，绝不进离线队列
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindSchemaAbsent:
		return "schema_absent"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error 后端调用失败的统一载体
type Error struct {
	Kind       Kind
	StatusCode int    // 0 表示没有收到 HTTP 响应
	Code       string // 后端返回的错误码，可能为空
	Message    string
	cause      error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend %s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("backend %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError 构造类型化后端错误
func NewError(kind Kind, statusCode int, code, message string, cause error) *Error {
	return &Error{
		Kind:       kind,
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		cause:      cause,
	}
}

// KindOf 提取错误分类，非后端错误一律按 Transient 处理（保守：先重试再入队）
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindTransient
}

// IsSchemaAbsent 后端存储未就绪
func IsSchemaAbsent(err error) bool {
	return KindOf(err) == KindSchemaAbsent
}

// IsTransient 瞬时故障
func IsTransient(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == KindTransient
	}
	return err != nil
}

// IsRejected 后端明确拒绝
func IsRejected(err error) bool {
	return KindOf(err) == KindRejected
}
