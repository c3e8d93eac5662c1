package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// LegacySize is the size of the controller firmware's raw struct
// { int estado; int angulo; } as sent over ESP-NOW: two little-endian int32.
const LegacySize = 4 + 4

// HeadingSize is the wire length of a compass heading: u16 little-endian.
const HeadingSize = 2

// EncodeLegacy returns r in the firmware struct layout.
func EncodeLegacy(r SignalReport) []byte {
	buf := make([]byte, LegacySize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(int32(r.state)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(r.angle)))
	return buf
}

// DecodeLegacy parses the firmware struct layout. Trailing bytes are ignored.
func DecodeLegacy(b []byte) (SignalReport, error) {
	if len(b) < LegacySize {
		return SignalReport{}, fmt.Errorf("%w: got %d bytes, want %d", ErrTruncatedMessage, len(b), LegacySize)
	}
	state := int32(binary.LittleEndian.Uint32(b[0:4]))
	angle := int32(binary.LittleEndian.Uint32(b[4:8]))
	return ReportFromInts(int(state), int(angle))
}

// FormatText returns the "state,angle" text form used by the BLE bridge.
func FormatText(r SignalReport) string {
	return strconv.Itoa(int(r.state)) + "," + strconv.Itoa(r.angle.Degrees())
}

// ParseText parses a "state,angle" notification. NUL padding and
// surrounding whitespace are ignored.
func ParseText(payload []byte) (SignalReport, error) {
	if idx := bytes.IndexByte(payload, 0x00); idx >= 0 {
		payload = payload[:idx]
	}
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return SignalReport{}, fmt.Errorf("%w: empty", ErrTruncatedMessage)
	}

	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		return SignalReport{}, fmt.Errorf("%w: %q", ErrMalformedText, text)
	}
	state, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return SignalReport{}, fmt.Errorf("%w: state %q", ErrMalformedText, parts[0])
	}
	angle, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return SignalReport{}, fmt.Errorf("%w: angle %q", ErrMalformedText, parts[1])
	}
	return ReportFromInts(state, angle)
}

func EncodeHeading(h Heading) []byte {
	return binary.LittleEndian.AppendUint16(make([]byte, 0, HeadingSize), uint16(h))
}

// DecodeHeading parses a compass heading sent by the wearable.
func DecodeHeading(b []byte) (Heading, error) {
	if len(b) < HeadingSize {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrTruncatedMessage, len(b), HeadingSize)
	}
	v := binary.LittleEndian.Uint16(b[0:2])
	if v >= 360 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidHeading, v)
	}
	return Heading(v), nil
}

// ParseLog converts a device log payload into a Go string.
func ParseLog(payload []byte) string {
	if idx := bytes.IndexByte(payload, 0x00); idx >= 0 {
		payload = payload[:idx]
	}
	return strings.TrimRight(string(payload), "\x00")
}
