package protocol

import (
	"encoding/binary"
	"fmt"
)

// ReportSize is the fixed wire length of a SignalReport:
// [state u8][angle u16 little-endian].
const ReportSize = 1 + 2

// Encode returns the wire form of r. It does not validate: the zero
// SignalReport encodes to [0 0 0], which Decode rejects. Build reports with
// NewSignalReport or ReportFromInts, or use EncodePayload, which checks.
func Encode(r SignalReport) []byte {
	return AppendReport(make([]byte, 0, ReportSize), r)
}

// AppendReport appends the wire form of r to dst.
func AppendReport(dst []byte, r SignalReport) []byte {
	dst = append(dst, byte(r.state))
	return binary.LittleEndian.AppendUint16(dst, uint16(r.angle))
}

// Decode parses and validates a SignalReport. Bytes after the first
// ReportSize are ignored so that padded radio payloads still decode.
func Decode(b []byte) (SignalReport, error) {
	if len(b) < ReportSize {
		return SignalReport{}, fmt.Errorf("%w: got %d bytes, want %d", ErrTruncatedMessage, len(b), ReportSize)
	}
	return ReportFromInts(int(b[0]), int(binary.LittleEndian.Uint16(b[1:3])))
}
