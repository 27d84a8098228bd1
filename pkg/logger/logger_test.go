package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/wonny/ddalkkak/backend/pkg/config"
)

func newBufferLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	log := NewWithWriter(&config.Config{Env: "test", LogLevel: level, LogFormat: "json"}, &buf)
	return log, &buf
}

// lines decodes every JSON line written to buf
func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewWithWriter_StampsServiceAndEnv(t *testing.T) {
	log, buf := newBufferLogger("info")
	log.Info("Collection started")

	entries := lines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 line, got %d", len(entries))
	}
	e := entries[0]
	if e["service"] != ServiceName {
		t.Errorf("service = %v, want %s", e["service"], ServiceName)
	}
	if e["env"] != "test" {
		t.Errorf("env = %v, want test", e["env"])
	}
	if e["level"] != "info" || e["message"] != "Collection started" {
		t.Errorf("unexpected entry: %v", e)
	}
	if _, ok := e["time"]; !ok {
		t.Error("expected a timestamp")
	}
}

func TestLevelIsPerLogger(t *testing.T) {
	quiet, quietBuf := newBufferLogger("error")
	loud, loudBuf := newBufferLogger("debug")

	quiet.Info("dropped")
	quiet.Warn("dropped")
	quiet.Error("kept")
	loud.Debug("kept")

	if n := len(lines(t, quietBuf)); n != 1 {
		t.Errorf("error-level logger wrote %d lines, want 1", n)
	}
	if n := len(lines(t, loudBuf)); n != 1 {
		t.Errorf("debug-level logger wrote %d lines, want 1", n)
	}
	if quiet.Level() != zerolog.ErrorLevel || loud.Level() != zerolog.DebugLevel {
		t.Errorf("levels = %v/%v", quiet.Level(), loud.Level())
	}
}

func TestWithFields(t *testing.T) {
	log, buf := newBufferLogger("debug")

	log.WithField("module", "collector").
		WithFields(map[string]interface{}{"stage": "stage2", "total": 500}).
		Info("Stage started")

	e := lines(t, buf)[0]
	if e["module"] != "collector" || e["stage"] != "stage2" {
		t.Errorf("missing fields: %v", e)
	}
	if e["total"] != float64(500) {
		t.Errorf("total = %v, want 500", e["total"])
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	log, buf := newBufferLogger("info")

	_ = log.WithField("ticker", "AAPL")
	log.Info("plain")

	if _, ok := lines(t, buf)[0]["ticker"]; ok {
		t.Error("parent logger gained a child field")
	}
}

func TestWithError(t *testing.T) {
	log, buf := newBufferLogger("info")
	log.WithError(errors.New("chart unavailable")).Warn("Benchmark chart unavailable")

	e := lines(t, buf)[0]
	if e["error"] != "chart unavailable" {
		t.Errorf("error = %v", e["error"])
	}
	if e["level"] != "warn" {
		t.Errorf("level = %v", e["level"])
	}
}

func TestWithTrace(t *testing.T) {
	log, buf := newBufferLogger("info")

	root := eris.New("connection reset")
	log.WithTrace(eris.Wrap(root, "store: upsert")).Error("Data collection failed")

	e := lines(t, buf)[0]
	if !strings.Contains(e["error"].(string), "store: upsert") {
		t.Errorf("error = %v", e["error"])
	}
	trace, ok := e["trace"].(map[string]interface{})
	if !ok {
		t.Fatalf("trace = %T, want object", e["trace"])
	}
	if _, ok := trace["root"]; !ok {
		t.Errorf("trace has no root: %v", trace)
	}
}

func TestWithTrace_NilIsNoop(t *testing.T) {
	log, _ := newBufferLogger("info")
	if log.WithTrace(nil) != log {
		t.Error("WithTrace(nil) should return the same logger")
	}
}

func TestWithDate(t *testing.T) {
	log, buf := newBufferLogger("info")
	log.WithDate(time.Date(2026, 3, 2, 17, 30, 0, 0, time.UTC)).Info("Starting data collection")

	if got := lines(t, buf)[0]["date"]; got != "2026-03-02" {
		t.Errorf("date = %v, want 2026-03-02", got)
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&config.Config{Env: "development", LogLevel: "info", LogFormat: "console"}, &buf)
	log.WithField("ticker", "MSFT").Info("Detail fetched")

	out := buf.String()
	if !strings.Contains(out, "Detail fetched") || !strings.Contains(out, "ticker=MSFT") {
		t.Errorf("unexpected console output: %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Error("console format should not be JSON")
	}
}
