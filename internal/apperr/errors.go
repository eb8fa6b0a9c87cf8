// Package apperr 定义了面向调用方的错误分类。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 是错误类别。
type Kind string

const (
	KindValidation Kind = "ValidationError"
	KindNotFound   Kind = "NotFoundError"
	KindExternal   Kind = "ExternalServiceError"
	KindParse      Kind = "ParseError"
)

var (
	// ErrPayloadTooLarge 标记超出大小上限的请求或文件。
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrBusy 标记正在导入中的会话槽位。
	ErrBusy = errors.New("ingestion in progress")
	// ErrQueryFailed 标记生成的 SQL 无法执行。
	ErrQueryFailed = errors.New("generated query failed")
)

// Error 携带类别、可读信息与可选的原始查询语句。
type Error struct {
	Kind    Kind
	Message string
	// Query 是导致失败的生成语句，仅在表格查询失败时设置。
	Query string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation 创建一个输入校验错误。
func Validation(msg string, err error) *Error {
	return &Error{Kind: KindValidation, Message: msg, Err: err}
}

// NotFound 创建一个资源不存在错误。
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// External 创建一个外部服务错误。
func External(msg string, err error) *Error {
	return &Error{Kind: KindExternal, Message: msg, Err: err}
}

// Parse 创建一个解析错误。
func Parse(msg string, err error) *Error {
	return &Error{Kind: KindParse, Message: msg, Err: err}
}

// QueryFailed 创建一个可恢复的查询错误，并附带生成的语句。
func QueryFailed(query string, err error) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: "generated query could not be executed",
		Query:   query,
		Err:     fmt.Errorf("%w: %v", ErrQueryFailed, err),
	}
}

// KindOf 返回 err 链上第一个 *Error 的类别，找不到时返回空字符串。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is 报告 err 是否属于指定类别。
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus 把错误映射为 HTTP 状态码。
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		switch {
		case errors.Is(e, ErrPayloadTooLarge):
			return http.StatusRequestEntityTooLarge
		case errors.Is(e, ErrBusy):
			return http.StatusConflict
		case errors.Is(e, ErrQueryFailed):
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindExternal:
		return http.StatusBadGateway
	case KindParse:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
