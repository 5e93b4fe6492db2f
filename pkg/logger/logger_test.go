package logger

import (
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
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestGetWithoutInitIsNop(t *testing.T) {
	globalMu.Lock()
	global = nil
	globalMu.Unlock()

	l := Get()
	require.NotNil(t, l)
	l.Info("discarded", zap.String("k", "v"))
}

func TestInitInstallsGlobal(t *testing.T) {
	require.NoError(t, InitWith("warn", "json"))
	l := Get()
	assert.False(t, l.Zap().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Zap().Core().Enabled(zapcore.WarnLevel))

	child := l.Named("league").With(zap.String("week", "2026-10-11"))
	assert.NotNil(t, child)
}
