package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure reported by the local control API.
type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeUnknownChannel     ErrorCode = "UNKNOWN_CHANNEL"
	ErrCodeUnmappableKey      ErrorCode = "UNMAPPABLE_KEY"
	ErrCodeSessionUnavailable ErrorCode = "SESSION_UNAVAILABLE"
	ErrCodeClientClosed       ErrorCode = "CLIENT_CLOSED"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// AppError carries a code and HTTP status alongside the underlying cause.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair that is rendered in the error response.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	appErr := NewAppError(code, message, httpStatus)
	appErr.Cause = err
	return appErr
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewUnknownChannelError(label string) *AppError {
	return NewAppError(ErrCodeUnknownChannel, fmt.Sprintf("unknown channel %q", label), http.StatusNotFound)
}

func NewUnmappableKeyError(code string) *AppError {
	return NewAppError(ErrCodeUnmappableKey, fmt.Sprintf("key %q has no virtual-key code", code), http.StatusUnprocessableEntity)
}

func NewSessionUnavailableError(err error) *AppError {
	return WrapError(err, ErrCodeSessionUnavailable, "session unavailable", http.StatusServiceUnavailable)
}

func NewClientClosedError() *AppError {
	return NewAppError(ErrCodeClientClosed, "client is closed", http.StatusGone)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(err error) *AppError {
	return WrapError(err, ErrCodeInternal, "internal error", http.StatusInternalServerError)
}

// IsAppError reports whether err is, or wraps, an *AppError.
func IsAppError(err error) bool {
	return GetAppError(err) != nil
}

// GetAppError returns the first *AppError in err's chain, or nil.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// Rule maps a sentinel error to a constructor used by Classify.
type Rule struct {
	Target error
	Build  func(err error) *AppError
}

// Classify converts err into an *AppError. An error that already is one is
// returned as is; otherwise the first rule whose target matches errors.Is wins,
// and anything else becomes an internal error.
func Classify(err error, rules ...Rule) *AppError {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		return appErr
	}
	for _, r := range rules {
		if stderrors.Is(err, r.Target) {
			return r.Build(err)
		}
	}
	return NewInternalError(err)
}
