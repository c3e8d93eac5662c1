// Package logger records every decoded packet as one JSON line.
package logger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"pulsera/pkg/crossing"
	"pulsera/pkg/protocol"
)

type JSONLWriter struct {
	enc *json.Encoder
}

type jsonRecord struct {
	TS         string `json:"ts"`
	Kind       string `json:"kind"`
	PayloadHex string `json:"payload_hex"`
	Command    string `json:"command,omitempty"`
	Data       any    `json:"data,omitempty"`
	Text       string `json:"text,omitempty"`
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{enc: enc}
}

// OpenFile appends to path, creating it when missing.
func OpenFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open jsonl: %w", err)
	}
	return f, nil
}

func (j *JSONLWriter) Write(pkt protocol.Packet) error {
	rec := jsonRecord{
		TS:         pkt.Timestamp.UTC().Format(time.RFC3339Nano),
		Kind:       pkt.Kind.String(),
		PayloadHex: hex.EncodeToString(pkt.Payload),
		Data:       pkt.Data,
	}
	switch v := pkt.Data.(type) {
	case string:
		rec.Text = v
	case crossing.Advice:
		rec.Command = string(v.Command)
	}
	return j.enc.Encode(rec)
}

// Consume writes packets until in is closed or ctx is done. It stops at
// the first write error.
func (j *JSONLWriter) Consume(ctx context.Context, in <-chan protocol.Packet) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt, ok := <-in:
			if !ok {
				return nil
			}
			if err := j.Write(pkt); err != nil {
				return err
			}
		}
	}
}
