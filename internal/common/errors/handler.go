// internal/common/errors/handler.go
package errors

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"
)

// Logger is the subset of logger.Logger the error handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// ErrorHandler turns arbitrary errors into StandardErrors and logs them once.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle normalizes err, logs it against operation and returns the HTTP status
// and the StandardError to send back to the caller.
func (h *ErrorHandler) Handle(operation string, err error) (int, *StandardError) {
	stdErr := Normalize(err)
	status := HTTPStatus(stdErr.Code)

	fields := map[string]interface{}{
		"operation":     operation,
		"errorCode":     stdErr.Code,
		"errorMessage":  stdErr.Message,
		"errorDetails":  stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
		"status":        status,
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("operation failed", fields)
	} else {
		h.logger.Warn("operation rejected", fields)
	}
	return status, stdErr
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("gateway", err)
	}
	if stderrors.Is(err, context.Canceled) {
		return NewUploadSupersededError()
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// HTTPStatus maps an error code to the status the gateway answers with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidUploadFile,
		ErrCodeInvalidRequest,
		ErrCodeInvalidFilterFormat,
		ErrCodeInvalidWeights,
		ErrCodeInvalidRankRequest,
		ErrCodeNothingToShortlist:
		return http.StatusBadRequest
	case ErrCodeUploadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeAuthenticationFailed, ErrCodeSessionExpired:
		return http.StatusUnauthorized
	case ErrCodeAccessDenied:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeStaleBatch, ErrCodeNoShortlist, ErrCodeUploadSuperseded, ErrCodeRankSuperseded:
		return http.StatusConflict
	case ErrCodeTimeout, ErrCodeRankingTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeExternalService,
		ErrCodeUploadFailed,
		ErrCodeRankingFailed,
		ErrCodeSaveFilteredFailed,
		ErrCodeInvalidResponseBody:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
