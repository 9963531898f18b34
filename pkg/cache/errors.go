package cache

import (
	apperr "festcache/pkg/error"
)

// CacheError 缓存层错误
type CacheError struct {
	apperr.BaseError
}

const (
	// ErrCodeClosed 缓存已关闭后仍被调用。
	ErrCodeClosed apperr.ErrorCode = "CACHE_CLOSED"
	// ErrCodeNotInteger Incr 遇到了无法解释为整数的值。
	ErrCodeNotInteger apperr.ErrorCode = "CACHE_NOT_INTEGER"
	// ErrCodeOverflow Incr 的结果超出 int64 范围。
	ErrCodeOverflow apperr.ErrorCode = "CACHE_OVERFLOW"
	// ErrCodeValueTooLarge 单个值超过内存上限。
	ErrCodeValueTooLarge apperr.ErrorCode = "CACHE_VALUE_TOO_LARGE"
	// ErrCodeConfigInvalid 构造参数无效。
	ErrCodeConfigInvalid apperr.ErrorCode = "CONFIG_INVALID"
	// ErrCodeBackendUnavailable 远程后端不可用（连接失败或熔断器打开）。
	ErrCodeBackendUnavailable apperr.ErrorCode = "BACKEND_UNAVAILABLE"
	// ErrCodeSerializeFailed 值无法序列化。
	ErrCodeSerializeFailed apperr.ErrorCode = "SERIALIZE_FAILED"
)

var (
	ErrClosed             = NewCacheError(ErrCodeClosed, "cache is closed")
	ErrNotInteger         = NewCacheError(ErrCodeNotInteger, "value is not an integer")
	ErrOverflow           = NewCacheError(ErrCodeOverflow, "increment would overflow int64")
	ErrValueTooLarge      = NewCacheError(ErrCodeValueTooLarge, "value exceeds cache memory limit")
	ErrConfigInvalid      = NewCacheError(ErrCodeConfigInvalid, "invalid cache configuration")
	ErrBackendUnavailable = NewCacheError(ErrCodeBackendUnavailable, "cache backend unavailable")
)

func NewCacheError(code apperr.ErrorCode, message string) *CacheError {
	return &CacheError{
		BaseError: *apperr.NewError(code, message),
	}
}

func wrapCacheError(code apperr.ErrorCode, message string, cause error) *CacheError {
	return &CacheError{
		BaseError: *apperr.WrapError(code, message, cause),
	}
}
