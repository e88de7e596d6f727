// internal/types/errors.go

package types

import (
	"errors"
	"fmt"
)

// ErrorKind 核心错误分类，公开 API 统一返回带分类的错误
type ErrorKind int

const (
	KindInvalidArgument ErrorKind = iota + 1
	KindNotFound
	KindPreconditionFailed
	KindTransient
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindNotFound:
		return "NotFound"
	case KindPreconditionFailed:
		return "PreconditionFailed"
	case KindTransient:
		return "Transient"
	case KindInternal:
		return "Internal"
	}
	return "Unknown"
}

// Error 带分类的错误，支持 errors.Is/As 链
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按分类匹配，使 errors.Is(err, types.NotFoundf("")) 风格的判断可用
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func InvalidArgumentf(format string, args ...interface{}) *Error {
	return newf(KindInvalidArgument, format, args...)
}

func NotFoundf(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func PreconditionFailedf(format string, args ...interface{}) *Error {
	return newf(KindPreconditionFailed, format, args...)
}

func Transientf(format string, args ...interface{}) *Error {
	return newf(KindTransient, format, args...)
}

func Internalf(format string, args ...interface{}) *Error {
	return newf(KindInternal, format, args...)
}

// WrapTransient 把底层仓储错误包装为 Transient
func WrapTransient(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Msg: msg, Err: err}
}

// KindOf 提取错误分类，非 *Error 一律视为 Internal
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
