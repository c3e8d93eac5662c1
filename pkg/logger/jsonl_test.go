package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pulsera/pkg/crossing"
	"pulsera/pkg/logger"
	"pulsera/pkg/protocol"
)

func TestJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	writer := logger.NewJSONLWriter(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan protocol.Packet, 2)
	done := make(chan error, 1)
	go func() {
		done <- writer.Consume(ctx, ch)
	}()

	ts := time.Date(2026, 2, 5, 16, 0, 0, 0, time.UTC)
	report, _ := protocol.ReportFromInts(1, 90)
	ch <- protocol.Packet{
		Kind:      protocol.KindLog,
		Timestamp: ts,
		Payload:   []byte("hi"),
		Data:      "hi",
	}
	ch <- protocol.Packet{
		Kind:      protocol.KindReport,
		Timestamp: ts,
		Payload:   protocol.Encode(report),
		Data:      crossing.Advise(report, crossing.QuadrantNorth),
	}
	close(ch)
	if err := <-done; err != nil {
		t.Fatalf("consume: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("json unmarshal failed: %v", err)
	}
	if rec["kind"] != "0xff" {
		t.Fatalf("unexpected kind: %v", rec["kind"])
	}
	if rec["payload_hex"] != "6869" {
		t.Fatalf("unexpected payload_hex: %v", rec["payload_hex"])
	}
	if rec["text"] != "hi" || rec["data"] != "hi" {
		t.Fatalf("unexpected text record: %v", rec)
	}
	tsValue, ok := rec["ts"].(string)
	if !ok || tsValue == "" {
		t.Fatalf("missing ts field")
	}
	if _, err := time.Parse(time.RFC3339Nano, tsValue); err != nil {
		t.Fatalf("invalid ts format: %v", err)
	}

	rec = map[string]any{}
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("json unmarshal failed: %v", err)
	}
	if rec["kind"] != "0x01" || rec["payload_hex"] != "015a00" || rec["command"] != "VIBRATE_START" {
		t.Fatalf("unexpected advice record: %v", rec)
	}
	data, ok := rec["data"].(map[string]any)
	if !ok || data["signal_quadrant"] != "east" {
		t.Fatalf("unexpected advice data: %v", rec["data"])
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONLWriterStopsOnError(t *testing.T) {
	writer := logger.NewJSONLWriter(failingWriter{})
	ch := make(chan protocol.Packet, 1)
	ch <- protocol.Packet{Kind: protocol.KindLog, Data: "x"}
	if err := writer.Consume(context.Background(), ch); err == nil {
		t.Fatalf("expected write error")
	}
}

func TestOpenFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packets.jsonl")
	for i := 0; i < 2; i++ {
		f, err := logger.OpenFile(path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := logger.NewJSONLWriter(f).Write(protocol.Packet{Kind: protocol.KindLog, Data: "x"}); err != nil {
			t.Fatalf("write: %v", err)
		}
		_ = f.Close()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n := strings.Count(string(raw), "\n"); n != 2 {
		t.Fatalf("expected 2 lines, got %d", n)
	}
}
