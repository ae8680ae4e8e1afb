package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JGnft17/clawtographer/internal/logging"
)

func TestRunHandler_InjectsRunID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.Component(logging.New(&buf, "debug", "json"), "dispatch")

	ctx := logging.WithRunID(context.Background(), "01JABCDEF")
	logger.InfoContext(ctx, "completed", "done", 1, "total", 2)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "01JABCDEF", record["run_id"])
	assert.Equal(t, "dispatch", record["component"])
	assert.Equal(t, "clawtographer", record["service"])
	assert.Equal(t, "completed", record["msg"])
}

func TestRunHandler_NoRunID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.New(&buf, "info", "json")
	logger.Info("scan finished")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	_, ok := record["run_id"]
	assert.False(t, ok, "run_id should be absent without context")
}

func TestNew_LevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.New(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.True(t, strings.Contains(out, "level=WARN"))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "DEBUG", logging.ParseLevel("debug").String())
	assert.Equal(t, "WARN", logging.ParseLevel("Warning").String())
	assert.Equal(t, "ERROR", logging.ParseLevel("error").String())
	assert.Equal(t, "INFO", logging.ParseLevel("bogus").String())
}

func TestComponent_NilLogger(t *testing.T) {
	t.Parallel()

	logger := logging.Component(nil, "scan")
	require.NotNil(t, logger)
	logger.Error("dropped")
}
