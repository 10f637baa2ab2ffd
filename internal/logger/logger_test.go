package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	Use(zap.New(core))
	t.Cleanup(func() { Use(nil) })

	Debug("dropped %d", 1)
	Info("dropped %d", 2)
	Warn("kept %d", 3)
	Error("kept %d", 4)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Message != "kept 3" {
		t.Errorf("first message = %q, want %q", entries[0].Message, "kept 3")
	}
}

func TestUninitializedIsNoop(t *testing.T) {
	Use(nil)
	Info("nothing happens %s", "here")
	Sync()
}
