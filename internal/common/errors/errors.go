// Package errors provides the standardized error taxonomy used across the
// screening gateway and its backend collaborators.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidUploadFile ErrorCode = "INVALID_UPLOAD_FILE"
	ErrCodeUploadTooLarge    ErrorCode = "UPLOAD_TOO_LARGE"
	ErrCodeUploadFailed      ErrorCode = "UPLOAD_FAILED"
	ErrCodeUploadSuperseded  ErrorCode = "UPLOAD_SUPERSEDED"

	ErrCodeInvalidFilterFormat ErrorCode = "INVALID_FILTER_FORMAT"
	ErrCodeNothingToShortlist  ErrorCode = "NOTHING_TO_SHORTLIST"
	ErrCodeSaveFilteredFailed  ErrorCode = "SAVE_FILTERED_FAILED"

	ErrCodeInvalidWeights      ErrorCode = "INVALID_WEIGHTS"
	ErrCodeInvalidRankRequest  ErrorCode = "INVALID_RANK_REQUEST"
	ErrCodeRankingFailed       ErrorCode = "RANKING_FAILED"
	ErrCodeRankingTimeout      ErrorCode = "RANKING_TIMEOUT"
	ErrCodeRankSuperseded      ErrorCode = "RANK_SUPERSEDED"
	ErrCodeStaleBatch          ErrorCode = "STALE_BATCH"
	ErrCodeNoShortlist         ErrorCode = "NO_SHORTLIST"
	ErrCodeInvalidResponseBody ErrorCode = "INVALID_RESPONSE_BODY"

	ErrCodeSessionStateCorrupt ErrorCode = "SESSION_STATE_CORRUPT"
	ErrCodePersistenceFailed   ErrorCode = "PERSISTENCE_FAILED"

	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeSessionExpired       ErrorCode = "SESSION_EXPIRED"
	ErrCodeAccessDenied         ErrorCode = "ACCESS_DENIED"

	ErrCodeInvalidRequest  ErrorCode = "INVALID_REQUEST"
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout         ErrorCode = "TIMEOUT_ERROR"
	ErrCodeNotFound        ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is matches on Code so errors.Is(err, &StandardError{Code: X}) works.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInvalidUploadFileError is returned for non-PDF or unreadable uploads.
func NewInvalidUploadFileError(details string) *StandardError {
	return newError(ErrCodeInvalidUploadFile, "Only PDF files are allowed", details, false)
}

func NewUploadTooLargeError(size, limit int64) *StandardError {
	return newError(ErrCodeUploadTooLarge, "File size exceeds the upload limit",
		fmt.Sprintf("size %d bytes, limit %d bytes", size, limit), false).
		WithMetadata("size", size).
		WithMetadata("limit", limit)
}

// NewUploadFailedError wraps a collaborator failure during extraction.
func NewUploadFailedError(err error) *StandardError {
	return newError(ErrCodeUploadFailed, "Failed to upload and process the CV file", err.Error(), true)
}

func NewUploadSupersededError() *StandardError {
	return newError(ErrCodeUploadSuperseded, "Upload was superseded or cancelled", "", false)
}

func NewInvalidFilterFormatError(details string) *StandardError {
	return newError(ErrCodeInvalidFilterFormat, "Invalid filter criteria", details, false)
}

func NewNothingToShortlistError() *StandardError {
	return newError(ErrCodeNothingToShortlist, "No candidates to move to the short list",
		"the filtered view is empty", false)
}

func NewSaveFilteredFailedError(err error) *StandardError {
	return newError(ErrCodeSaveFilteredFailed, "Failed to save the filtered long list", err.Error(), true)
}

// NewInvalidWeightsError reports a weight vector that does not sum to 1.0.
func NewInvalidWeightsError(total float64) *StandardError {
	return newError(ErrCodeInvalidWeights,
		fmt.Sprintf("Total weight must equal 1.0 (current: %.2f)", total), "", false).
		WithMetadata("total", total)
}

func NewInvalidRankRequestError(details string) *StandardError {
	return newError(ErrCodeInvalidRankRequest, "Invalid ranking parameters", details, false)
}

func NewRankingFailedError(err error) *StandardError {
	return newError(ErrCodeRankingFailed, "Failed to rank the short list", err.Error(), true)
}

func NewRankingTimeoutError() *StandardError {
	return newError(ErrCodeRankingTimeout, "Ranking request timed out", "", true)
}

func NewRankSupersededError() *StandardError {
	return newError(ErrCodeRankSuperseded, "Ranking was superseded or cancelled", "", false)
}

// NewStaleBatchError is returned when a response targets a batch that is no
// longer current.
func NewStaleBatchError(expected, actual int64) *StandardError {
	return newError(ErrCodeStaleBatch, "Response targets a batch that is no longer current",
		fmt.Sprintf("response batch %d, current batch %d", expected, actual), false).
		WithMetadata("responseBatchId", expected).
		WithMetadata("currentBatchId", actual)
}

func NewNoShortlistError() *StandardError {
	return newError(ErrCodeNoShortlist, "No short list has been handed off yet", "", false)
}

func NewInvalidResponseBodyError(service, details string) *StandardError {
	return newError(ErrCodeInvalidResponseBody,
		fmt.Sprintf("Unexpected response from %s", service), details, false)
}

func NewSessionStateCorruptError(details string) *StandardError {
	return newError(ErrCodeSessionStateCorrupt, "Persisted session state is unreadable", details, false)
}

func NewPersistenceFailedError(op string, err error) *StandardError {
	return newError(ErrCodePersistenceFailed,
		fmt.Sprintf("Persistence operation '%s' failed", op), err.Error(), true)
}

func NewAuthenticationError(details string) *StandardError {
	return newError(ErrCodeAuthenticationFailed, "Authentication failed", details, false)
}

func NewSessionExpiredError() *StandardError {
	return newError(ErrCodeSessionExpired, "Your session has expired. Please log in again.", "", false)
}

func NewAccessDeniedError(details string) *StandardError {
	return newError(ErrCodeAccessDenied, "Access denied", details, false)
}

// Generic constructors

// NewInvalidRequestError is returned for malformed gateway requests.
func NewInvalidRequestError(details string) *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid request", details, false)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService,
		fmt.Sprintf("External service '%s' error", service), err.Error(), true)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), err.Error(), true)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newError(ErrCodeNotFound, fmt.Sprintf("Resource not found in %s", service), details, false)
}

// ==========================
// 3. Utility Functions
// ==========================

// GetRetryCount returns how many times a caller may retry an operation that
// failed with code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeExternalService,
		ErrCodePersistenceFailed,
		ErrCodeSaveFilteredFailed:
		return 3

	case ErrCodeTimeout,
		ErrCodeUploadFailed,
		ErrCodeRankingFailed:
		return 2

	case ErrCodeRankingTimeout:
		return 1

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "UPLOAD"):
		return "UPLOAD"
	case strings.Contains(codeStr, "RANK") || strings.Contains(codeStr, "WEIGHTS") ||
		strings.Contains(codeStr, "SHORTLIST") || strings.Contains(codeStr, "STALE"):
		return "RANKING"
	case strings.Contains(codeStr, "SESSION") || strings.Contains(codeStr, "AUTH") ||
		strings.Contains(codeStr, "ACCESS"):
		return "AUTH"
	case strings.Contains(codeStr, "PERSISTENCE"):
		return "STORAGE"
	case strings.Contains(codeStr, "EXTERNAL") || strings.Contains(codeStr, "TIMEOUT"):
		return "BACKEND"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "FILTER"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
