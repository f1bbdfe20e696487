package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ map[string]interface{}) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Warn(msg string, _ map[string]interface{})  { l.warns = append(l.warns, msg) }

func TestInvalidWeightsMessage(t *testing.T) {
	err := NewInvalidWeightsError(0.9)
	assert.Equal(t, "Total weight must equal 1.0 (current: 0.90)", err.Message)
	assert.False(t, err.Retryable)
	assert.Equal(t, 0.9, err.Metadata["total"])
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"standard", NewStaleBatchError(1, 2), ErrCodeStaleBatch},
		{"wrapped standard", fmt.Errorf("ranking: %w", NewRankingFailedError(stderrors.New("502"))), ErrCodeRankingFailed},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"cancelled", fmt.Errorf("upload: %w", context.Canceled), ErrCodeUploadSuperseded},
		{"plain", stderrors.New("boom"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Code)
		})
	}

	assert.Nil(t, Normalize(nil))
}

func TestStandardError_Is(t *testing.T) {
	err := fmt.Errorf("wrap: %w", NewStaleBatchError(3, 4))
	assert.True(t, stderrors.Is(err, &StandardError{Code: ErrCodeStaleBatch}))
	assert.False(t, stderrors.Is(err, &StandardError{Code: ErrCodeRankingFailed}))
}

func TestErrorHandler_Handle(t *testing.T) {
	log := &recordingLogger{}
	h := NewErrorHandler(log)

	status, stdErr := h.Handle("shortlist.rank", NewInvalidWeightsError(1.1))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrCodeInvalidWeights, stdErr.Code)
	assert.Len(t, log.warns, 1)

	status, _ = h.Handle("longlist.upload", stderrors.New("nil pointer"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Len(t, log.errors, 1)
}

func TestRetryAndCategory(t *testing.T) {
	assert.Equal(t, 3, GetRetryCount(ErrCodeExternalService))
	assert.Equal(t, 0, GetRetryCount(ErrCodeInvalidWeights))
	assert.True(t, IsRetryableErrorCode(ErrCodeRankingTimeout))

	assert.Equal(t, "UPLOAD", GetErrorCategory(ErrCodeUploadTooLarge))
	assert.Equal(t, "RANKING", GetErrorCategory(ErrCodeStaleBatch))
	assert.Equal(t, "AUTH", GetErrorCategory(ErrCodeSessionExpired))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidFilterFormat))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}
