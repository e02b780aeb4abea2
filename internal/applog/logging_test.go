package applog

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LogLevelWarn, Output: &buf, Prefix: "test"})

	l.Debug("should not appear")
	l.Info("should not appear either")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Fatalf("expected filtered output, got: %s", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Fatalf("expected warn/error messages, got: %s", out)
	}
}

func TestLoggerWithFieldIsImmutable(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: LogLevelDebug, Output: &buf})
	child := base.WithField("session", "abc")

	base.Debug("base message")
	child.Debug("child message")

	out := buf.String()
	if strings.Contains(strings.Split(out, "\n")[0], "session=abc") {
		t.Fatalf("base logger should not have inherited field: %s", out)
	}
	if !strings.Contains(out, "session=abc") {
		t.Fatalf("child logger missing field: %s", out)
	}
}

func TestLoggerDisable(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LogLevelDebug, Output: &buf})
	l.Disable()
	l.Error("should be suppressed")
	if buf.Len() != 0 {
		t.Fatalf("expected no output while disabled, got: %s", buf.String())
	}
	l.Enable()
	l.Error("visible")
	if buf.Len() == 0 {
		t.Fatal("expected output after enabling")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"WARN":    LogLevelWarn,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
		"bogus":   LogLevelInfo,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDebugJSONPrettyPrints(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LogLevelDebug, Output: &buf})
	l.DebugJSON("request", []byte(`{"a":1,"b":2}`))
	if !strings.Contains(buf.String(), "\n  \"a\"") {
		t.Fatalf("expected pretty-printed JSON with indentation, got: %s", buf.String())
	}
}

// TestDebugJSONTagsRequestFields verifies DebugJSON pulls "seq" and
// "command"/"event" straight out of the framed DAP message via gjson and
// tags the printed line with them, without the caller needing to build a
// WithRequest logger itself at every Send/readLoop call site.
func TestDebugJSONTagsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LogLevelDebug, Output: &buf})

	l.DebugJSON("recv", []byte(`{"seq":7,"type":"request","command":"next"}`))
	if !strings.Contains(buf.String(), "seq=7, command=next") {
		t.Fatalf("expected seq/command fields, got: %s", buf.String())
	}

	buf.Reset()
	l.DebugJSON("send", []byte(`{"seq":8,"type":"event","event":"stopped"}`))
	if !strings.Contains(buf.String(), "seq=8, event=stopped") {
		t.Fatalf("expected seq/event fields, got: %s", buf.String())
	}
}

// TestWithSessionAndWithRequestOrderFieldsDeterministically checks the
// ordered []field storage: two loggers built from the same calls in the
// same order must print those fields in that order every time, unlike the
// teacher's map[string]any which would shuffle them.
func TestWithSessionAndWithRequestOrderFieldsDeterministically(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: LogLevelDebug, Output: &buf})
	child := base.WithComponent("debugger").WithSession("abc-123").WithRequest(5, "evaluate")

	child.Info("handling request")

	out := strings.TrimSpace(buf.String())
	if !strings.HasSuffix(out, "{component=debugger, session=abc-123, seq=5, command=evaluate}") {
		t.Fatalf("expected fields in call order, got: %s", out)
	}
}
