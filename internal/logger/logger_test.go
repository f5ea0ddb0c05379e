package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(ProductionConfig(), &buf)

	log.Info("catalog loaded", zap.Int("products", 3))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "catalog loaded", entry["msg"])
	assert.EqualValues(t, 3, entry["products"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(Config{Level: "warn", Format: "json"}, &buf)

	log.Info("dropped")
	log.Warn("kept")
	require.NoError(t, log.Sync())

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
