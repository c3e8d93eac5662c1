package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"pulsera/pkg/logging"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"debug", zerolog.DebugLevel, true},
		{" WARNING ", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"", zerolog.InfoLevel, false},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tc := range cases {
		got, ok := logging.ParseLevel(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("parse %q: got %v,%v want %v,%v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNewJSONFormat(t *testing.T) {
	t.Setenv(logging.EnvLogLevel, "")
	t.Setenv(logging.EnvLogFormat, "")
	var buf bytes.Buffer
	logger := logging.New("pulserad", logging.Config{Level: "info", Format: logging.FormatJSON, Out: &buf})
	logger.Debug().Msg("hidden")
	logger.Info().Str("transport", "udp").Msg("listening")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["app"] != "pulserad" || rec["transport"] != "udp" || rec["message"] != "listening" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(logging.EnvLogLevel, "debug")
	t.Setenv(logging.EnvLogFormat, "json")
	t.Setenv(logging.EnvLogNoColor, "true")
	var buf bytes.Buffer
	logger := logging.New("test", logging.Config{Level: "error", Format: logging.FormatConsole, Out: &buf})
	logger.Debug().Msg("visible")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("expected json output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("debug line missing: %q", buf.String())
	}
}

func TestConsoleNoColor(t *testing.T) {
	t.Setenv(logging.EnvLogLevel, "")
	t.Setenv(logging.EnvLogFormat, "")
	t.Setenv(logging.EnvLogNoColor, "")
	var buf bytes.Buffer
	logger := logging.New("test", logging.Config{Level: "info", NoColor: true, Out: &buf})
	logger.Info().Msg("plain")
	if strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("unexpected colour codes: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "plain") {
		t.Fatalf("message missing: %q", buf.String())
	}
}
