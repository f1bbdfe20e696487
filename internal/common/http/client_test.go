package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "cv-screening/internal/common/errors"
	"cv-screening/internal/common/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(timeout time.Duration) *Client {
	return NewClient("resume", timeout, WithObservability(observability.NewNoop()))
}

func TestDoJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(7), body["pdf_id"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := newTestClient(time.Second).DoJSON(context.Background(), Request{
		Operation: "save_filtered",
		Method:    http.MethodPost,
		URL:       srv.URL,
		Token:     "tok",
		Body:      map[string]interface{}{"pdf_id": 7},
	}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestDoJSON_StatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      apperrors.ErrorCode
		retryable bool
		details   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"detail":"Token expired"}`, apperrors.ErrCodeSessionExpired, false, "Token expired"},
		{"forbidden", http.StatusForbidden, `{"message":"no cv access"}`, apperrors.ErrCodeAccessDenied, false, "no cv access"},
		{"not found", http.StatusNotFound, ``, apperrors.ErrCodeNotFound, false, "Not Found"},
		{"bad request", http.StatusBadRequest, `{"detail":[{"msg":"field required"}]}`, apperrors.ErrCodeExternalService, false, `[{"msg":"field required"}]`},
		{"server error", http.StatusBadGateway, `upstream down`, apperrors.ErrCodeExternalService, true, "upstream down"},
		{"gateway timeout", http.StatusGatewayTimeout, ``, apperrors.ErrCodeTimeout, true, "Gateway Timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			err := newTestClient(time.Second).DoJSON(context.Background(), Request{
				Operation: "op", Method: http.MethodGet, URL: srv.URL,
			}, nil)

			var stdErr *apperrors.StandardError
			require.True(t, errors.As(err, &stdErr), "got %v", err)
			assert.Equal(t, tt.code, stdErr.Code)
			assert.Equal(t, tt.retryable, stdErr.Retryable)
			assert.Equal(t, tt.status, StatusCode(err))
			assert.Contains(t, stdErr.Details, tt.details)
		})
	}
}

func TestDoJSON_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := newTestClient(time.Second).DoJSON(context.Background(), Request{Operation: "op", Method: http.MethodGet, URL: srv.URL}, &out)
	assert.ErrorIs(t, err, &apperrors.StandardError{Code: apperrors.ErrCodeInvalidResponseBody})
}

func TestDoJSON_Cancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := newTestClient(5*time.Second).DoJSON(ctx, Request{Operation: "op", Method: http.MethodGet, URL: srv.URL}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoJSON_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	err := newTestClient(20*time.Millisecond).DoJSON(context.Background(), Request{Operation: "op", Method: http.MethodGet, URL: srv.URL}, nil)
	assert.ErrorIs(t, err, &apperrors.StandardError{Code: apperrors.ErrCodeTimeout})
}

func TestUpload_Multipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("cv_file")
		require.NoError(t, err)
		defer file.Close()
		content, _ := io.ReadAll(file)

		assert.Equal(t, "cvs.pdf", header.Filename)
		assert.Equal(t, "%PDF-1.7 body", string(content))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"rows": 0})
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := newTestClient(time.Second).Upload(context.Background(),
		Request{Operation: "upload", Method: http.MethodPost, URL: srv.URL},
		"cv_file", "cvs.pdf", stringsReader("%PDF-1.7 body"), &out)
	require.NoError(t, err)
	assert.Equal(t, float64(0), out["rows"])
}

func stringsReader(s string) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		_, _ = io.WriteString(pw, s)
		_ = pw.Close()
	}()
	return pr
}
