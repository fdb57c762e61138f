package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config LogConfig
	}{
		{name: "json format", config: LogConfig{Level: "info", Format: "json"}},
		{name: "text format", config: LogConfig{Level: "debug", Format: "text"}},
		{name: "defaults", config: LogConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if logger := NewLogger(tt.config); logger == nil {
				t.Fatal("NewLogger() returned nil")
			}
		})
	}
}

func TestLogLevelFromString(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := LogLevelFromString(tt.level); got != tt.want {
				t.Errorf("LogLevelFromString(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})

	key := "sk-" + strings.Repeat("a", 48)
	logger.Info("calling provider with "+key,
		"api_key", "plain-value",
		"err", errors.New("request failed: "+key),
		"hf", "hf_"+strings.Repeat("b", 34),
	)

	line := buf.String()
	if strings.Contains(line, key) {
		t.Fatalf("openai key leaked: %s", line)
	}
	if strings.Contains(line, "plain-value") {
		t.Fatalf("sensitive key not redacted: %s", line)
	}
	if strings.Contains(line, "hf_bbbb") {
		t.Fatalf("hugging face token leaked: %s", line)
	}
	if !strings.Contains(line, "[REDACTED]") {
		t.Fatalf("expected redaction marker: %s", line)
	}
}

func TestLoggerAddsContextIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})

	ctx := AddRunID(AddRequestID(context.Background(), "req-1"), "run-1")
	logger.InfoContext(ctx, "pair graded")

	entry := decodeLine(t, &buf)
	if entry["request_id"] != "req-1" {
		t.Errorf("request_id = %v, want req-1", entry["request_id"])
	}
	if entry["run_id"] != "run-1" {
		t.Errorf("run_id = %v, want run-1", entry["run_id"])
	}
}

func TestLoggerWithAttrsRedacts(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf}).With("token", "abc")
	logger.Warn("sample skipped")

	entry := decodeLine(t, &buf)
	if entry["token"] != "[REDACTED]" {
		t.Errorf("token = %v, want [REDACTED]", entry["token"])
	}
}

func TestGetIDsFromEmptyContext(t *testing.T) {
	ctx := context.Background()
	if GetRequestID(ctx) != "" || GetRunID(ctx) != "" {
		t.Fatal("expected empty IDs")
	}
}
