package protocol_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"pulsera/pkg/protocol"
)

func TestParsePacketBuiltinKinds(t *testing.T) {
	protocol.ResetRegistry()
	want, _ := protocol.ReportFromInts(2, 90)

	for _, tc := range []struct {
		kind    protocol.Kind
		payload []byte
	}{
		{protocol.KindReport, protocol.Encode(want)},
		{protocol.KindLegacy, protocol.EncodeLegacy(want)},
		{protocol.KindText, []byte(protocol.FormatText(want))},
	} {
		data, err := protocol.ParsePacket(tc.kind, tc.payload)
		if err != nil {
			t.Fatalf("kind %s: %v", tc.kind, err)
		}
		got, ok := data.(protocol.SignalReport)
		if !ok {
			t.Fatalf("kind %s: expected SignalReport, got %T", tc.kind, data)
		}
		if !got.Equal(want) {
			t.Fatalf("kind %s: got %v want %v", tc.kind, got, want)
		}
	}

	data, err := protocol.ParsePacket(protocol.KindHeading, protocol.EncodeHeading(42))
	if err != nil {
		t.Fatalf("heading: %v", err)
	}
	if h, ok := data.(protocol.Heading); !ok || h != 42 {
		t.Fatalf("unexpected heading data: %#v", data)
	}

	data, err = protocol.ParsePacket(protocol.KindLog, []byte("boot\x00"))
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if s, ok := data.(string); !ok || s != "boot" {
		t.Fatalf("unexpected log data: %#v", data)
	}
}

func TestParsePacketPropagatesDecodeError(t *testing.T) {
	protocol.ResetRegistry()
	_, err := protocol.ParsePacket(protocol.KindReport, []byte{5, 0, 0})
	if !errors.Is(err, protocol.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestParsePacketUnknown(t *testing.T) {
	protocol.ResetRegistry()
	data, err := protocol.ParsePacket(0x7E, []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, ok := data.(protocol.RawPacket)
	if !ok {
		t.Fatalf("expected RawPacket, got %T", data)
	}
	if raw.Kind != 0x7E || !bytes.Equal(raw.Payload, []byte{0x01, 0x02}) {
		t.Fatalf("unexpected raw packet: %#v", raw)
	}

	out, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal raw: %v", err)
	}
	if string(out) != `{"kind":"0x7e","payload_hex":"0102"}` {
		t.Fatalf("unexpected raw json: %s", out)
	}
}

func TestRegisterCustomKind(t *testing.T) {
	protocol.ResetRegistry()
	defer protocol.ResetRegistry()

	protocol.Register(0x40, func(p []byte) (any, error) { return len(p), nil })
	data, err := protocol.ParsePacket(0x40, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, ok := data.(int); !ok || n != 3 {
		t.Fatalf("unexpected custom data: %#v", data)
	}

	protocol.Register(protocol.KindLog, nil)
	data, _ = protocol.ParsePacket(protocol.KindLog, []byte("x"))
	if _, ok := data.(protocol.RawPacket); !ok {
		t.Fatalf("expected unregistered kind to fall back to RawPacket, got %T", data)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	r, _ := protocol.ReportFromInts(1, 0)
	frame := protocol.EncodeFrame(protocol.KindReport, protocol.Encode(r))
	if frame[len(frame)-1] != 0x00 {
		t.Fatalf("frame must end with delimiter: %v", frame)
	}
	if bytes.IndexByte(frame[:len(frame)-1], 0x00) >= 0 {
		t.Fatalf("frame body must not contain 0x00: %v", frame)
	}

	kind, payload, err := protocol.DecodeFrame(frame)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if kind != protocol.KindReport {
		t.Fatalf("unexpected kind: %s", kind)
	}
	got, err := protocol.Decode(payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !got.Equal(r) {
		t.Fatalf("unexpected report: %v", got)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	if _, _, err := protocol.DecodeFrame(nil); !errors.Is(err, protocol.ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
	if _, _, err := protocol.DecodeFrame([]byte{0x05, 0x01}); !errors.Is(err, protocol.ErrInvalidFrame) {
		t.Fatalf("expected ErrInvalidFrame, got %v", err)
	}
}

func TestEncodePayloadByFormat(t *testing.T) {
	r, _ := protocol.ReportFromInts(1, 270)
	for _, name := range []string{protocol.DatagramCompact, protocol.DatagramLegacy, protocol.DatagramText} {
		kind, err := protocol.KindForFormat(name)
		if err != nil {
			t.Fatalf("format %s: %v", name, err)
		}
		payload, err := protocol.EncodePayload(kind, r)
		if err != nil {
			t.Fatalf("encode %s: %v", name, err)
		}
		data, err := protocol.ParsePacket(kind, payload)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		if got := data.(protocol.SignalReport); !got.Equal(r) {
			t.Fatalf("format %s: got %v want %v", name, got, r)
		}
	}
	if _, err := protocol.KindForFormat("morse"); err == nil {
		t.Fatalf("expected unknown format error")
	}
	if _, err := protocol.EncodePayload(protocol.KindHeading, r); err == nil {
		t.Fatalf("heading kind must not carry a report")
	}
}

func TestEncodePayloadRejectsZeroReport(t *testing.T) {
	var zero protocol.SignalReport
	if got := protocol.Encode(zero); !bytes.Equal(got, []byte{0, 0, 0}) {
		t.Fatalf("unexpected raw encoding: %x", got)
	}
	if _, err := protocol.Decode(protocol.Encode(zero)); !errors.Is(err, protocol.ErrInvalidState) {
		t.Fatalf("zero report must not decode, got %v", err)
	}
	for _, kind := range []protocol.Kind{protocol.KindReport, protocol.KindLegacy, protocol.KindText} {
		if _, err := protocol.EncodePayload(kind, zero); !errors.Is(err, protocol.ErrInvalidState) {
			t.Fatalf("kind %s: expected invalid state, got %v", kind, err)
		}
	}
}
