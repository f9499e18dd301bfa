package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("TEST", &buf)

	l.Debug("hidden %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("Debug message emitted at default level: %q", buf.String())
	}

	l.Info("shown %d", 2)
	if !strings.Contains(buf.String(), "shown 2") {
		t.Errorf("Expected info message in output, got %q", buf.String())
	}

	buf.Reset()
	l.SetLevel(LevelTrace)
	l.WithPrefix("child").Trace("deep")
	out := buf.String()
	if !strings.Contains(out, "deep") || !strings.Contains(out, "component=child") {
		t.Errorf("Expected trace message from child logger, got %q", out)
	}
	if !l.Enabled(LevelDebug) {
		t.Error("Debug should be enabled at trace level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
		ok    bool
	}{
		{"ERROR", LevelError, true},
		{"warn", LevelWarn, true},
		{"Debug", LevelDebug, true},
		{"TRACE", LevelTrace, true},
		{"bogus", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}
