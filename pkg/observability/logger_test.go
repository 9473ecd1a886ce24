package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	dec := json.NewDecoder(buf)
	for dec.More() {
		var line map[string]interface{}
		require.NoError(t, dec.Decode(&line))
		out = append(out, line)
	}
	return out
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.WithField("period", "monthly").
		WithFields(map[string]interface{}{"sessions": 3}).
		WithError(errors.New("boom")).
		Infof("computed %s", "snapshot")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "computed snapshot", lines[0]["msg"])
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "monthly", lines[0]["period"])
	assert.Equal(t, float64(3), lines[0]["sessions"])
	assert.Equal(t, "boom", lines[0]["error"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Errorf("shown %d", 2)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Equal(t, "shown 2", lines[1]["msg"])
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NopLogger()
	assert.Same(t, logger, logger.WithError(nil))
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		" WARN ":  WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"info":    InfoLevel,
		"bogus":   InfoLevel,
	}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, want, ParseLogLevel(input))
		})
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf).WithField("component", "test")

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("hello")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "test", lines[0]["component"])

	assert.NotNil(t, FromContext(context.Background()))
}
