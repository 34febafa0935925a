package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNewZapLogger_Level(t *testing.T) {
	l := NewZapLogger(&ZapLoggerConfig{Encoding: "json", Level: "warn"})
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestNewZapLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	l := NewZapLogger(&ZapLoggerConfig{IsDevelopment: true, Encoding: "console", Level: "loud"})
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}
