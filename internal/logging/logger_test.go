package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	testCases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"":        zapcore.InfoLevel,
		"WARNING": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
	}
	for level, want := range testCases {
		logger, err := NewLogger(level, "json")
		if err != nil {
			t.Fatalf("NewLogger(%q) error: %v", level, err)
		}
		if !logger.Core().Enabled(want) {
			t.Fatalf("level %q: expected %s enabled", level, want)
		}
		if want > zapcore.DebugLevel && logger.Core().Enabled(want-1) {
			t.Fatalf("level %q: expected %s disabled", level, want-1)
		}
	}
}

func TestNewLoggerFormats(t *testing.T) {
	if _, err := NewLogger("info", "console"); err != nil {
		t.Fatalf("console format: %v", err)
	}
	if _, err := NewLogger("info", "xml"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
