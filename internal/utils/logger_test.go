package utils

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newCapturedLogger() (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(handler)), &buf
}

func TestLogBatch_LevelEscalation(t *testing.T) {
	logger, buf := newCapturedLogger()

	logger.LogBatch("optimization_sweep", 10, 10, 0, "1.2s")
	assert.Contains(t, buf.String(), `"level":"INFO"`)
	assert.Contains(t, buf.String(), `"operation":"optimization_sweep"`)

	buf.Reset()
	logger.LogBatch("optimization_sweep", 10, 7, 3, "1.2s")
	assert.Contains(t, buf.String(), `"level":"WARN"`)

	buf.Reset()
	logger.LogBatch("optimization_sweep", 10, 0, 10, "1.2s")
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}

func TestLogBatch_CarriesExtraFields(t *testing.T) {
	logger, buf := newCapturedLogger()

	logger.LogBatch("optimization_sweep", 5, 5, 0, "800ms", "recommendations_applied", 3)

	assert.Contains(t, buf.String(), `"recommendations_applied":3`)
	assert.Contains(t, buf.String(), `"total":5`)
}

func TestLogError_IncludesWrappedError(t *testing.T) {
	logger, buf := newCapturedLogger()

	logger.LogError(errors.New("connection refused"), "Failed to load review history", "user_id", "user-1")

	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), "connection refused")
	assert.Contains(t, buf.String(), `"user_id":"user-1"`)
}

func TestToSlogLogger_RoundTrip(t *testing.T) {
	base := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	logger := FromSlogLogger(base)
	assert.Same(t, base, ToSlogLogger(logger))
}
