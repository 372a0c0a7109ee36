package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/examprep/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		want  slog.Level
		known bool
	}{
		{"debug", slog.LevelDebug, true},
		{"", slog.LevelInfo, true},
		{"WARNING", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"loud", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, known := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.known, known, tt.in)
	}
}

func TestJSONOutputRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, closer := newWithOutput(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	defer closer.Close()

	log.Info("hidden")
	log.Warn("sync failed", "user", "u1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sync failed", entry["msg"])
	assert.Equal(t, "u1", entry["user"])
	assert.Equal(t, "WARN", entry["level"])
}

func TestRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examprep.log")
	var buf bytes.Buffer
	log, closer := newWithOutput(config.LogConfig{Format: "text", File: path, MaxSizeMB: 1}, &buf)

	log.Info("session started", "user", "u1")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "session started")
	assert.Contains(t, buf.String(), "user=u1")
}
