package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestDefaultLoggerIsNoop(t *testing.T) {
	// Logging before Init must not panic.
	assert.NotPanics(t, func() {
		Info("hello")
		Sugar.Debugf("value %d", 1)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestInitWriter_FiltersByLevel(t *testing.T) {
	defer InitWithFileConfig("info", FileConfig{}, false)

	var buf bytes.Buffer
	InitWriter("warn", &buf)

	Info("quiet")
	Warn("loud", zap.String("key", "value"))
	Sync()

	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "loud")
	assert.Contains(t, out, "value")
	assert.Contains(t, out, "WARN")
}

func TestInitWithFileConfig_WritesFile(t *testing.T) {
	defer InitWithFileConfig("info", FileConfig{}, false)

	logFile := filepath.Join(t.TempDir(), "slamview.log")
	cfg := DefaultFileConfig(logFile)
	cfg.Compress = false

	require.NoError(t, InitWithFileConfig("debug", cfg, false))
	Sugar.Debugf("[LOADER] loaded profile %s", "kitchen")
	Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[LOADER] loaded profile kitchen"))
}

func TestInitWithFileConfig_NoOutputsIsNoop(t *testing.T) {
	require.NoError(t, InitWithFileConfig("debug", FileConfig{}, false))
	assert.NotPanics(t, func() { Error("dropped") })
}

func TestDefaultFileConfig(t *testing.T) {
	cfg := DefaultFileConfig("x.log")
	assert.Equal(t, "x.log", cfg.Path)
	assert.Equal(t, 50, cfg.MaxSizeMB)
	assert.Equal(t, 3, cfg.MaxBackups)
	assert.Equal(t, 7, cfg.MaxAgeDays)
	assert.True(t, cfg.Compress)
}
