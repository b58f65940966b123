package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
		enabled       zapcore.Level
	}{
		{level: "debug", format: "console", enabled: zapcore.DebugLevel},
		{level: "warn", format: "json", enabled: zapcore.WarnLevel},
		{level: "info", format: "", enabled: zapcore.InfoLevel},
		{level: "loud", format: "console", wantErr: true},
		{level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		logger, err := New(tt.level, tt.format)
		if tt.wantErr {
			if err == nil {
				t.Errorf("New(%q, %q): expected error", tt.level, tt.format)
			}
			continue
		}
		if err != nil {
			t.Fatalf("New(%q, %q): %v", tt.level, tt.format, err)
		}
		if !logger.Core().Enabled(tt.enabled) {
			t.Errorf("New(%q, %q): level %s should be enabled", tt.level, tt.format, tt.enabled)
		}
		if tt.enabled > zapcore.DebugLevel && logger.Core().Enabled(tt.enabled-1) {
			t.Errorf("New(%q, %q): level %s should be disabled", tt.level, tt.format, tt.enabled-1)
		}
	}
}
