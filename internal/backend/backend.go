// Package backend holds the HTTP clients for the extraction/ranking service
// and the auth service.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	apperrors "cv-screening/internal/common/errors"
	httpclient "cv-screening/internal/common/http"
)

const unauthorizedReason = "unauthorized"

// Session is the slice of the session manager the clients need: the bearer
// token, and a way to drop the session when the backend rejects it.
type Session interface {
	Token() string
	Logout(ctx context.Context, reason string) bool
}

type baseClient struct {
	http    *httpclient.Client
	baseURL string
	session Session
}

func newBaseClient(service, baseURL string, session Session, opts ...httpclient.Option) baseClient {
	// deadlines are set per call on the context
	return baseClient{
		http:    httpclient.NewClient(service, 0, opts...),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		session: session,
	}
}

func (c *baseClient) url(path string) string {
	return c.baseURL + path
}

func (c *baseClient) token() string {
	if c.session == nil {
		return ""
	}
	return c.session.Token()
}

// call runs one JSON request under timeout and logs the session out on 401.
func (c *baseClient) call(ctx context.Context, timeout time.Duration, r httpclient.Request, out interface{}) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := c.http.DoJSON(ctx, r, out)
	c.checkUnauthorized(ctx, r, err)
	return err
}

func (c *baseClient) checkUnauthorized(ctx context.Context, r httpclient.Request, err error) {
	if r.Token == "" || c.session == nil {
		return
	}
	if errors.Is(err, &apperrors.StandardError{Code: apperrors.ErrCodeSessionExpired}) {
		c.session.Logout(context.WithoutCancel(ctx), unauthorizedReason)
	}
}

// isCancellation reports whether err came from the caller giving up rather
// than from the backend.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// keepAs reports whether err already carries one of codes.
func keepAs(err error, codes ...apperrors.ErrorCode) bool {
	var stdErr *apperrors.StandardError
	if !errors.As(err, &stdErr) {
		return false
	}
	for _, code := range codes {
		if stdErr.Code == code {
			return true
		}
	}
	return false
}

// firstOf returns the first non-nil value among keys.
func firstOf(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func asBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	default:
		return false
	}
}

// asInt64 accepts integral JSON numbers and numeric strings.
func asInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%v is not an integer", t)
		}
		return int64(t), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	case nil:
		return 0, errors.New("missing value")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
