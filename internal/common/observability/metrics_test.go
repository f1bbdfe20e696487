package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpan_RecordsErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	obs := withRecorder(t, recorder)

	_, span := obs.StartSpan(context.Background(), "resume.upload", attribute.String("file", "cvs.pdf"))
	EndSpan(span, errors.New("502 bad gateway"))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "resume.upload", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), attribute.String("file", "cvs.pdf"))

	require.NoError(t, obs.Shutdown(context.Background()))
}

func withRecorder(t *testing.T, recorder *tracetest.SpanRecorder) *Observability {
	t.Helper()
	obs, err := New("screening-test", WithSpanProcessor(recorder))
	require.NoError(t, err)
	return obs
}

func TestRecordRequest_NilSafe(t *testing.T) {
	var obs *Observability
	assert.NotPanics(t, func() {
		obs.RecordRequest(context.Background(), "resume", "rank", "ok", time.Second)
		_, span := obs.StartSpan(context.Background(), "x")
		EndSpan(span, nil)
	})
	assert.NoError(t, obs.Shutdown(context.Background()))
}
