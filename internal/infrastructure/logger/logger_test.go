package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Modes(t *testing.T) {
	tests := []struct {
		mode, level string
		want        zapcore.Level
	}{
		{"production", "", zapcore.InfoLevel},
		{"prod", "warn", zapcore.WarnLevel},
		{"development", "", zapcore.DebugLevel},
		{"", "error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		l, err := New(tt.mode, tt.level)
		if err != nil {
			t.Fatalf("New(%q, %q): %v", tt.mode, tt.level, err)
		}
		if !l.Core().Enabled(tt.want) {
			t.Errorf("New(%q, %q): %s should be enabled", tt.mode, tt.level, tt.want)
		}
		if tt.want > zapcore.DebugLevel && l.Core().Enabled(tt.want-1) {
			t.Errorf("New(%q, %q): %s should be disabled", tt.mode, tt.level, tt.want-1)
		}
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New("prod", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestRedact(t *testing.T) {
	if got := Redact(""); got != "" {
		t.Errorf("empty secret: %q", got)
	}
	if got := Redact("abc"); got != "[REDACTED]" {
		t.Errorf("short secret: %q", got)
	}
	if got := Redact("sk-123456789"); got != "sk-1…[REDACTED]" {
		t.Errorf("long secret: %q", got)
	}
}
