package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestZapWrapper_FieldsAndErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).WithFields(map[string]interface{}{"component": "store"})

	log.WithError(errors.New("boom")).Warn("persist failed", map[string]interface{}{
		"batchId": int64(7),
		"cause":   errors.New("disk full"),
	})

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "persist failed", entries[0].Message)
		assert.Equal(t, "store", ctx["component"])
		assert.Equal(t, int64(7), ctx["batchId"])
		assert.Equal(t, "boom", ctx["error"])
		assert.Equal(t, "disk full", ctx["cause"])
	}
}

func TestNewStructured_FallsBackOnBadSink(t *testing.T) {
	log := NewStructured("info", "json", "/nonexistent-dir/for/sure/log.txt")
	assert.NotPanics(t, func() {
		log.Info("still works", nil)
	})
}
