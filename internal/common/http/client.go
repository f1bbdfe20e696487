// internal/common/http/client.go
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "cv-screening/internal/common/errors"
	"cv-screening/internal/common/logger"
	"cv-screening/internal/common/metrics"
	"cv-screening/internal/common/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	maxErrorBody = 64 << 10

	// SlowRequestThreshold is the duration past which a call is logged as slow.
	SlowRequestThreshold = 5 * time.Second
)

// Client sends JSON and multipart requests to one backend service, attaching
// the bearer token, a request id, a span and duration metrics to each call.
type Client struct {
	httpClient *http.Client
	service    string
	obs        *observability.Observability
	logger     logger.Logger
}

// Option customizes NewClient.
type Option func(*Client)

func WithObservability(obs *observability.Observability) Option {
	return func(c *Client) { c.obs = obs }
}

// WithLogger logs each call's duration, warning on slow ones.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.logger = log }
}

// WithHTTPClient replaces the underlying client, e.g. with an httptest one.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(service string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		service:    service,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req.WithContext(ctx))
}

// Request describes one call.
type Request struct {
	Operation string
	Method    string
	URL       string
	Token     string
	Body      interface{}
}

// DoJSON sends r.Body as JSON (when non-nil) and decodes the reply into out
// (when non-nil).
func (c *Client) DoJSON(ctx context.Context, r Request, out interface{}) error {
	var body io.Reader
	if r.Body != nil {
		buf, err := json.Marshal(r.Body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", r.Operation, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", r.Operation, err)
	}
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(ctx, r, req, out)
}

// Upload streams reader as a multipart form file under field.
func (c *Client) Upload(ctx context.Context, r Request, field, filename string, reader io.Reader, out interface{}) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile(field, filename)
		if err == nil {
			_, err = io.Copy(part, reader)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return fmt.Errorf("build %s request: %w", r.Operation, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	err = c.send(ctx, r, req, out)
	_ = pr.Close()
	return err
}

func (c *Client) send(ctx context.Context, r Request, req *http.Request, out interface{}) (err error) {
	ctx, span := c.obs.StartSpan(ctx, c.service+"."+r.Operation,
		attribute.String("http.method", r.Method),
		attribute.String("http.url", r.URL),
	)
	start := time.Now()
	status := "error"
	defer func() {
		elapsed := time.Since(start)
		metrics.BackendRequestDuration.WithLabelValues(c.service, r.Operation, status).Observe(elapsed.Seconds())
		c.obs.RecordRequest(ctx, c.service, r.Operation, status, elapsed)
		observability.EndSpan(span, err)
		c.logDuration(r, status, elapsed)
	}()

	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return c.statusError(resp.StatusCode, raw)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewInvalidResponseBodyError(c.service, err.Error())
	}
	return nil
}

func (c *Client) logDuration(r Request, status string, elapsed time.Duration) {
	if c.logger == nil {
		return
	}
	fields := map[string]interface{}{
		"service":    c.service,
		"operation":  r.Operation,
		"method":     r.Method,
		"url":        r.URL,
		"status":     status,
		"durationMs": elapsed.Milliseconds(),
	}
	if elapsed > SlowRequestThreshold {
		c.logger.Warn("slow backend request", fields)
		return
	}
	c.logger.Debug("backend request", fields)
}

func (c *Client) transportError(ctx context.Context, err error) error {
	// a cancelled caller is not a backend failure; keep the context error
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return fmt.Errorf("%s request: %w", c.service, ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return apperrors.NewTimeoutError(c.service, err)
	}
	return apperrors.NewExternalServiceError(c.service, err)
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// statusError maps a non-2xx reply onto the error taxonomy.
func (c *Client) statusError(code int, body []byte) error {
	msg := backendMessage(body)
	if msg == "" {
		msg = http.StatusText(code)
	}

	var stdErr *apperrors.StandardError
	switch {
	case code == http.StatusUnauthorized:
		stdErr = apperrors.NewSessionExpiredError()
		stdErr.Details = msg
	case code == http.StatusForbidden:
		stdErr = apperrors.NewAccessDeniedError(msg)
	case code == http.StatusNotFound:
		stdErr = apperrors.NewResourceNotFoundError(c.service, msg)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		stdErr = apperrors.NewTimeoutError(c.service, errors.New(msg))
	case code >= 500:
		stdErr = apperrors.NewExternalServiceError(c.service, errors.New(msg))
	default:
		stdErr = apperrors.NewExternalServiceError(c.service, errors.New(msg))
		stdErr.Retryable = false
	}
	return stdErr.WithMetadata("status", code)
}

// backendMessage pulls a human-readable message out of an error body.
// FastAPI replies with {"detail": ...}; others use "message" or "error".
func backendMessage(body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	for _, key := range []string{"detail", "message", "error"} {
		switch v := payload[key].(type) {
		case string:
			return v
		case nil:
			continue
		default:
			if buf, err := json.Marshal(v); err == nil {
				return string(buf)
			}
		}
	}
	return ""
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var stdErr *apperrors.StandardError
	if !errors.As(err, &stdErr) || stdErr.Metadata == nil {
		return 0
	}
	code, _ := stdErr.Metadata["status"].(int)
	return code
}
