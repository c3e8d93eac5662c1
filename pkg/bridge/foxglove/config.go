package foxglove

const PacketSchema = `{
  "type": "object",
  "properties": {
    "kind": { "type": "string" },
    "ts": { "type": "string" },
    "payload_hex": { "type": "string" },
    "data": { "type": ["object", "string", "number"] },
    "text": { "type": "string" }
  },
  "required": ["kind", "payload_hex"]
}`

const SignalSchema = `{
  "type": "object",
  "properties": {
    "state": { "type": "string", "enum": ["active", "inactive"] },
    "angle": { "type": "integer", "enum": [0, 90, 180, 270] },
    "signal_quadrant": { "type": "string" },
    "user_quadrant": { "type": "string" },
    "aligned": { "type": "boolean" },
    "command": { "type": "string" }
  },
  "required": ["state", "angle", "command"]
}`

const MarkerSchema = `{
  "type": "object",
  "properties": {
    "header": { "type": "object" },
    "ns": { "type": "string" },
    "id": { "type": "integer" },
    "type": { "type": "integer" },
    "action": { "type": "integer" },
    "pose": { "type": "object" },
    "scale": { "type": "object" },
    "color": { "type": "object" }
  }
}`

const LogSchema = `{
  "type": "object",
  "properties": {
    "timestamp": {
      "type": "object",
      "properties": { "sec": { "type": "integer" }, "nsec": { "type": "integer" } }
    },
    "level": { "type": "integer" },
    "message": { "type": "string" },
    "name": { "type": "string" },
    "file": { "type": "string" },
    "line": { "type": "integer" }
  }
}`

// ChannelConfig describes one advertised foxglove channel.
type ChannelConfig struct {
	ID             uint64
	Topic          string
	Encoding       string
	SchemaName     string
	SchemaEncoding string
	Schema         string
}

type Config struct {
	WSAddr  string
	Name    string
	SendBuf int
	FrameID string
	LogName string

	Packet ChannelConfig
	Signal ChannelConfig
	Marker ChannelConfig
	Log    ChannelConfig
}

func DefaultConfig() Config {
	return Config{
		WSAddr:  "127.0.0.1:8765",
		Name:    "pulsera",
		SendBuf: 256,
		FrameID: "crossing",
		LogName: "pulsera.device",
		Packet: ChannelConfig{
			ID:             1,
			Topic:          "pulsera/packet",
			Encoding:       "json",
			SchemaName:     "pulsera.Packet",
			SchemaEncoding: "jsonschema",
			Schema:         PacketSchema,
		},
		Signal: ChannelConfig{
			ID:             2,
			Topic:          "pulsera/signal",
			Encoding:       "json",
			SchemaName:     "pulsera.Advice",
			SchemaEncoding: "jsonschema",
			Schema:         SignalSchema,
		},
		Marker: ChannelConfig{
			ID:             3,
			Topic:          "pulsera/marker",
			Encoding:       "json",
			SchemaName:     "visualization_msgs/Marker",
			SchemaEncoding: "jsonschema",
			Schema:         MarkerSchema,
		},
		Log: ChannelConfig{
			ID:             4,
			Topic:          "pulsera/log",
			Encoding:       "json",
			SchemaName:     "foxglove.Log",
			SchemaEncoding: "jsonschema",
			Schema:         LogSchema,
		},
	}
}

func (c ChannelConfig) withDefaults(def ChannelConfig) ChannelConfig {
	if c.ID == 0 {
		c.ID = def.ID
	}
	if c.Topic == "" {
		c.Topic = def.Topic
	}
	if c.Encoding == "" {
		c.Encoding = def.Encoding
	}
	if c.SchemaName == "" {
		c.SchemaName = def.SchemaName
	}
	if c.SchemaEncoding == "" {
		c.SchemaEncoding = def.SchemaEncoding
	}
	if c.Schema == "" {
		c.Schema = def.Schema
	}
	return c
}

// normalize fills unset fields from DefaultConfig and moves colliding
// channel IDs past the highest one in use.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.WSAddr == "" {
		c.WSAddr = def.WSAddr
	}
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.SendBuf <= 0 {
		c.SendBuf = def.SendBuf
	}
	if c.FrameID == "" {
		c.FrameID = def.FrameID
	}
	if c.LogName == "" {
		c.LogName = def.LogName
	}
	c.Packet = c.Packet.withDefaults(def.Packet)
	c.Signal = c.Signal.withDefaults(def.Signal)
	c.Marker = c.Marker.withDefaults(def.Marker)
	c.Log = c.Log.withDefaults(def.Log)

	channels := []*ChannelConfig{&c.Packet, &c.Signal, &c.Marker, &c.Log}
	var highest uint64
	for _, ch := range channels {
		highest = max(highest, ch.ID)
	}
	seen := make(map[uint64]struct{}, len(channels))
	for _, ch := range channels {
		if _, dup := seen[ch.ID]; dup {
			highest++
			ch.ID = highest
		}
		seen[ch.ID] = struct{}{}
	}
	return c
}
