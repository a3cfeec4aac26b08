package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"sync"
)

// Code 表示控制台内统一的错误码。
type Code string

// Severity 描述错误的严重程度，用于审计日志分级。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message    string
	Severity   Severity
	HTTPStatus int
	// Recoverable 表示操作员可以手动重试（例如重新点击），核心层从不自动重试。
	Recoverable bool
}

const (
	CodeUnknown Code = "UNKNOWN"

	// 以下六类构成链上交互层的错误分类。
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeChainRead           Code = "CHAIN_READ_ERROR"
	CodeNetworkSwitchFailed Code = "NETWORK_SWITCH_FAILED"
	CodeUserRejected        Code = "USER_REJECTED"
	CodeDispatch            Code = "DISPATCH_ERROR"
	CodeReverted            Code = "REVERTED"

	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodePublishFailure        Code = "PUBLISH_FAILURE"
)

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown: {
			Message:    "unknown error",
			Severity:   SeverityCritical,
			HTTPStatus: http.StatusInternalServerError,
		},
		CodeValidation: {
			Message:    "validation failed",
			Severity:   SeverityInfo,
			HTTPStatus: http.StatusBadRequest,
		},
		CodeChainRead: {
			Message:     "chain read failed",
			Severity:    SeverityWarning,
			HTTPStatus:  http.StatusInternalServerError,
			Recoverable: true,
		},
		CodeNetworkSwitchFailed: {
			Message:     "network switch failed",
			Severity:    SeverityWarning,
			HTTPStatus:  http.StatusInternalServerError,
			Recoverable: true,
		},
		CodeUserRejected: {
			Message:     "request rejected by user",
			Severity:    SeverityInfo,
			HTTPStatus:  http.StatusInternalServerError,
			Recoverable: true,
		},
		CodeDispatch: {
			Message:     "transaction dispatch failed",
			Severity:    SeverityWarning,
			HTTPStatus:  http.StatusInternalServerError,
			Recoverable: true,
		},
		CodeReverted: {
			Message:    "transaction reverted",
			Severity:   SeverityWarning,
			HTTPStatus: http.StatusInternalServerError,
		},
		CodeInitializationFailure: {
			Message:    "service not initialized",
			Severity:   SeverityCritical,
			HTTPStatus: http.StatusServiceUnavailable,
		},
		CodeStorageFailure: {
			Message:     "storage failure",
			Severity:    SeverityCritical,
			HTTPStatus:  http.StatusInternalServerError,
			Recoverable: true,
		},
		CodePublishFailure: {
			Message:     "notice publish failed",
			Severity:    SeverityWarning,
			HTTPStatus:  http.StatusInternalServerError,
			Recoverable: true,
		},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是控制台内统一的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
	severity *Severity
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = &sev
	}
}

// New 创建一个新的错误实例。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型，底层错误信息原样保留。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Validation 是 New(CodeValidation, ...) 的简写。
func Validation(message string, opts ...Option) *Error {
	return New(CodeValidation, message, opts...)
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 判断是否相同错误码。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回错误信息，不含底层原因。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// HasCode 判断错误链中是否包含指定错误码。
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatusOf 返回错误对应的 HTTP 状态码。
func HTTPStatusOf(err error) int {
	return AttributesOf(CodeOf(err)).HTTPStatus
}

// Recoverable 判断操作员能否手动重试。
func Recoverable(err error) bool {
	if e, ok := From(err); ok {
		return AttributesOf(e.Code()).Recoverable
	}
	return false
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
