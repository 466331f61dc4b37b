package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(t *testing.T, level, format string) (*Logger, *bytes.Buffer) {
	t.Helper()

	output := &bytes.Buffer{}
	logger, err := New(&Config{
		Level:      level,
		Format:     format,
		TimeFormat: time.RFC3339,
		writer:     output,
	})
	require.NoError(t, err)

	return logger, output
}

func TestNew_JSONFields(t *testing.T) {
	logger, output := newBufferedLogger(t, "info", "json")

	logger.Info("job submitted", slog.String("job_id", "abc"), slog.Int("attempt", 1))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &entry))

	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "job submitted", entry["msg"])
	assert.Equal(t, "abc", entry["job_id"])
	assert.Equal(t, float64(1), entry["attempt"])
	assert.Contains(t, entry, "time")
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		suppress  func(l *Logger)
		emit      func(l *Logger)
		wantLevel string
	}{
		{
			level:     "info",
			suppress:  func(l *Logger) { l.Debug("hidden") },
			emit:      func(l *Logger) { l.Info("shown") },
			wantLevel: "INFO",
		},
		{
			level:     "warn",
			suppress:  func(l *Logger) { l.Info("hidden") },
			emit:      func(l *Logger) { l.Warn("shown") },
			wantLevel: "WARN",
		},
		{
			level:     "error",
			suppress:  func(l *Logger) { l.Warn("hidden") },
			emit:      func(l *Logger) { l.Error("shown") },
			wantLevel: "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, output := newBufferedLogger(t, tt.level, "json")

			tt.suppress(logger)
			tt.emit(logger)

			lines := strings.Split(strings.TrimSpace(output.String()), "\n")
			require.Len(t, lines, 1, "suppressed level must not be logged")

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, "shown", entry["msg"])
		})
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	logger, output := newBufferedLogger(t, "info", "console")

	logger.Info("worker started")

	// tint abbreviates the level to "INF"
	assert.Contains(t, output.String(), "INF")
	assert.Contains(t, output.String(), "worker started")
}

func TestNew_SourceLocation(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{
		Level:        "info",
		Format:       "json",
		EnableSource: true,
		writer:       output,
	})
	require.NoError(t, err)

	logger.Info("message with source")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &entry))

	require.Contains(t, entry, "source")
	source := entry["source"].(map[string]interface{})
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")

	logger, err := New(&Config{
		Level:  "info",
		Format: "json",
		Output: path,
	})
	require.NoError(t, err)

	logger.Info("first run")

	// A second logger on the same path must append, not truncate
	logger2, err := New(&Config{
		Level:  "info",
		Format: "json",
		Output: path,
	})
	require.NoError(t, err)
	logger2.Info("second run")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "first run")
	assert.Contains(t, lines[1], "second run")
}

func TestNew_FileOutputBadPath(t *testing.T) {
	_, err := New(&Config{
		Level:  "info",
		Format: "json",
		Output: filepath.Join(t.TempDir(), "no-such-dir", "worker.log"),
	})
	assert.Error(t, err)
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{level: "debug", expected: slog.LevelDebug},
		{level: "info", expected: slog.LevelInfo},
		{level: "warn", expected: slog.LevelWarn},
		{level: "warning", expected: slog.LevelWarn},
		{level: "error", expected: slog.LevelError},
		{level: "invalid", expected: slog.LevelInfo},
		{level: "", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestLogger_With(t *testing.T) {
	logger, output := newBufferedLogger(t, "info", "json")

	serviceLogger := logger.With(slog.String("service", "worker"))
	serviceLogger.Info("reconcile pass complete", slog.Int("stale", 0))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &entry))

	assert.Equal(t, "worker", entry["service"])
	assert.Equal(t, float64(0), entry["stale"])
}

func TestLogger_WithGroup(t *testing.T) {
	logger, output := newBufferedLogger(t, "info", "json")

	logger.WithGroup("job").Info("claimed", slog.String("id", "abc"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(output.Bytes(), &entry))

	require.Contains(t, entry, "job")
	group := entry["job"].(map[string]interface{})
	assert.Equal(t, "abc", group["id"])
}
