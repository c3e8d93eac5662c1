package protocol

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
)

// Kind tags the payload inside a stream frame.
type Kind uint8

const (
	KindReport  Kind = 0x01
	KindLegacy  Kind = 0x02
	KindText    Kind = 0x03
	KindHeading Kind = 0x04
	KindLog     Kind = 0xFF
)

func (k Kind) String() string {
	return fmt.Sprintf("0x%02x", uint8(k))
}

// ParseFunc decodes a frame payload into a concrete Go value.
type ParseFunc func(payload []byte) (any, error)

var (
	registryMu sync.RWMutex
	registry   = defaultRegistry()
)

func defaultRegistry() map[Kind]ParseFunc {
	return map[Kind]ParseFunc{
		KindReport:  func(p []byte) (any, error) { return Decode(p) },
		KindLegacy:  func(p []byte) (any, error) { return DecodeLegacy(p) },
		KindText:    func(p []byte) (any, error) { return ParseText(p) },
		KindHeading: func(p []byte) (any, error) { return DecodeHeading(p) },
		KindLog:     func(p []byte) (any, error) { return ParseLog(p), nil },
	}
}

// RawPacket preserves payloads of unregistered kinds for downstream consumers.
type RawPacket struct {
	Kind    Kind
	Payload []byte
}

func (rp RawPacket) MarshalJSON() ([]byte, error) {
	type rawPacketJSON struct {
		Kind       string `json:"kind"`
		PayloadHex string `json:"payload_hex"`
	}
	return json.Marshal(rawPacketJSON{
		Kind:       rp.Kind.String(),
		PayloadHex: hex.EncodeToString(rp.Payload),
	})
}

// Register maps a frame kind to a parser, replacing any previous one.
func Register(kind Kind, fn ParseFunc) {
	registryMu.Lock()
	if fn == nil {
		delete(registry, kind)
	} else {
		registry[kind] = fn
	}
	registryMu.Unlock()
}

// ResetRegistry restores the built-in kinds.
func ResetRegistry() {
	registryMu.Lock()
	registry = defaultRegistry()
	registryMu.Unlock()
}

// ParsePacket decodes a payload according to its kind.
func ParsePacket(kind Kind, payload []byte) (any, error) {
	registryMu.RLock()
	fn, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return RawPacket{Kind: kind, Payload: append([]byte(nil), payload...)}, nil
	}
	return fn(payload)
}

// EncodeFrame builds a 0x00-terminated COBS frame holding kind and payload.
func EncodeFrame(kind Kind, payload []byte) []byte {
	raw := make([]byte, 0, 1+len(payload))
	raw = append(raw, byte(kind))
	raw = append(raw, payload...)
	return append(CobsEncode(raw), 0x00)
}

// DecodeFrame reverses EncodeFrame. The trailing delimiter is optional.
func DecodeFrame(frame []byte) (Kind, []byte, error) {
	if n := len(frame); n > 0 && frame[n-1] == 0x00 {
		frame = frame[:n-1]
	}
	decoded, err := CobsDecode(frame)
	if err != nil {
		return 0, nil, err
	}
	if len(decoded) == 0 {
		return 0, nil, ErrEmptyFrame
	}
	return Kind(decoded[0]), decoded[1:], nil
}

// Datagram format names, as used by configs and the CLI.
const (
	DatagramCompact = "compact"
	DatagramLegacy  = "legacy"
	DatagramText    = "text"
)

// KindForFormat maps a datagram format name to its frame kind.
func KindForFormat(name string) (Kind, error) {
	switch name {
	case DatagramCompact, "":
		return KindReport, nil
	case DatagramLegacy:
		return KindLegacy, nil
	case DatagramText:
		return KindText, nil
	default:
		return 0, fmt.Errorf("protocol: unknown datagram format %q", name)
	}
}

// EncodePayload validates r and encodes it in the wire form carried by
// kind.
func EncodePayload(kind Kind, r SignalReport) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	switch kind {
	case KindReport:
		return Encode(r), nil
	case KindLegacy:
		return EncodeLegacy(r), nil
	case KindText:
		return []byte(FormatText(r)), nil
	default:
		return nil, fmt.Errorf("protocol: kind %s does not carry a report", kind)
	}
}
