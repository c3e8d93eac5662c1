package foxglove

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// Subprotocol is the websocket subprotocol foxglove clients negotiate.
const Subprotocol = "foxglove.websocket.v1"

const (
	OpServerInfo  = "serverInfo"
	OpAdvertise   = "advertise"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"

	BinaryOpMessageData = 0x01

	messageDataHeader = 1 + 4 + 8
)

var (
	ErrShortMessageData = errors.New("foxglove: message data shorter than header")
	ErrUnknownOp        = errors.New("foxglove: unknown client op")
)

type ServerInfoMsg struct {
	Op                 string            `json:"op"`
	Name               string            `json:"name"`
	Capabilities       []string          `json:"capabilities"`
	SupportedEncodings []string          `json:"supportedEncodings,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	SessionID          string            `json:"sessionId,omitempty"`
}

type Channel struct {
	ID             uint64 `json:"id"`
	Topic          string `json:"topic"`
	Encoding       string `json:"encoding"`
	SchemaName     string `json:"schemaName"`
	SchemaEncoding string `json:"schemaEncoding,omitempty"`
	Schema         string `json:"schema,omitempty"`
}

func (c ChannelConfig) channel() Channel {
	return Channel{
		ID:             c.ID,
		Topic:          c.Topic,
		Encoding:       c.Encoding,
		SchemaName:     c.SchemaName,
		SchemaEncoding: c.SchemaEncoding,
		Schema:         c.Schema,
	}
}

type AdvertiseMsg struct {
	Op       string    `json:"op"`
	Channels []Channel `json:"channels"`
}

type Subscription struct {
	ID        uint32 `json:"id"`
	ChannelID uint64 `json:"channelId"`
}

type SubscribeMsg struct {
	Op            string         `json:"op"`
	Subscriptions []Subscription `json:"subscriptions"`
}

type UnsubscribeMsg struct {
	Op              string   `json:"op"`
	SubscriptionIDs []uint32 `json:"subscriptionIds"`
}

// ParseClientMessage decodes a text frame from a viewer into a
// SubscribeMsg or an UnsubscribeMsg.
func ParseClientMessage(data []byte) (any, error) {
	var header struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("foxglove: client message: %w", err)
	}

	switch header.Op {
	case OpSubscribe:
		var msg SubscribeMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("foxglove: subscribe: %w", err)
		}
		return msg, nil
	case OpUnsubscribe:
		var msg UnsubscribeMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("foxglove: unsubscribe: %w", err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, header.Op)
	}
}

// EncodeMessageData builds the binary messageData frame: opcode,
// subscription id, log time in nanoseconds, then the payload.
func EncodeMessageData(subscriptionID uint32, logTime uint64, payload []byte) []byte {
	out := make([]byte, messageDataHeader+len(payload))
	out[0] = BinaryOpMessageData
	binary.LittleEndian.PutUint32(out[1:5], subscriptionID)
	binary.LittleEndian.PutUint64(out[5:13], logTime)
	copy(out[messageDataHeader:], payload)
	return out
}

// DecodeMessageData splits a messageData frame. The payload aliases frame.
func DecodeMessageData(frame []byte) (subscriptionID uint32, logTime uint64, payload []byte, err error) {
	if len(frame) < messageDataHeader {
		return 0, 0, nil, ErrShortMessageData
	}
	if frame[0] != BinaryOpMessageData {
		return 0, 0, nil, fmt.Errorf("foxglove: unexpected binary op 0x%02x", frame[0])
	}
	return binary.LittleEndian.Uint32(frame[1:5]), binary.LittleEndian.Uint64(frame[5:13]), frame[messageDataHeader:], nil
}
