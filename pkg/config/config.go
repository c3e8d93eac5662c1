// Package config loads and validates pulserad settings from TOML or YAML.
package config

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	toml "github.com/pelletier/go-toml/v2"

	"pulsera/pkg/protocol"
)

const DefaultConfigPath = "pulsera.toml"

const (
	TransportUDP    = "udp"
	TransportTCP    = "tcp"
	TransportSerial = "serial"
)

type Config struct {
	Receiver   ReceiverConfig `toml:"receiver" yaml:"receiver"`
	Crossing   CrossingConfig `toml:"crossing" yaml:"crossing"`
	Log        LogConfig      `toml:"log" yaml:"log"`
	Foxglove   FoxgloveConfig `toml:"foxglove" yaml:"foxglove"`
	API        APIConfig      `toml:"api" yaml:"api"`
	Influx     InfluxConfig   `toml:"influx" yaml:"influx"`
	configPath string
}

type ReceiverConfig struct {
	Transport      string       `toml:"transport" yaml:"transport"`
	Addr           string       `toml:"addr" yaml:"addr"`
	Reconnect      string       `toml:"reconnect" yaml:"reconnect"`
	Buf            int          `toml:"buf" yaml:"buf"`
	ReaderBuf      int          `toml:"reader_buf" yaml:"reader_buf"`
	DatagramFormat string       `toml:"datagram_format" yaml:"datagram_format"`
	Serial         SerialConfig `toml:"serial" yaml:"serial"`

	// ReplyAddr receives each advice as a command datagram followed by the
	// wearer's quadrant byte. Empty disables replies.
	ReplyAddr string `toml:"reply_addr,omitempty" yaml:"reply_addr,omitempty"`
}

type SerialConfig struct {
	Port        string `toml:"port" yaml:"port"`
	Baud        int    `toml:"baud" yaml:"baud"`
	ReadTimeout string `toml:"read_timeout" yaml:"read_timeout"`
}

type CrossingConfig struct {
	ConfirmThreshold int `toml:"confirm_threshold" yaml:"confirm_threshold"`
	// Heading fixes the wearer's heading in degrees for stationary installs.
	Heading *float64 `toml:"heading,omitempty" yaml:"heading,omitempty"`
}

type LogConfig struct {
	Level     string `toml:"level" yaml:"level"`
	Format    string `toml:"format" yaml:"format"`
	NoColor   bool   `toml:"no_color" yaml:"no_color"`
	JSONLPath string `toml:"jsonl_path,omitempty" yaml:"jsonl_path,omitempty"`
}

type FoxgloveConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	WSAddr  string `toml:"ws_addr" yaml:"ws_addr"`
	Name    string `toml:"name" yaml:"name"`
	FrameID string `toml:"frame_id" yaml:"frame_id"`
	LogName string `toml:"log_name" yaml:"log_name"`
}

type APIConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Addr    string `toml:"addr" yaml:"addr"`
}

type InfluxConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	URL     string `toml:"url" yaml:"url"`
	Token   string `toml:"token,omitempty" yaml:"token,omitempty"`
	Org     string `toml:"org" yaml:"org"`
	Bucket  string `toml:"bucket" yaml:"bucket"`
	Device  string `toml:"device,omitempty" yaml:"device,omitempty"`

	WriteTimeout string `toml:"write_timeout" yaml:"write_timeout"`
}

func Default() Config {
	return Config{
		Receiver: ReceiverConfig{
			Transport:      TransportUDP,
			Addr:           "0.0.0.0:4210",
			Reconnect:      "1s",
			Buf:            256,
			ReaderBuf:      64 * 1024,
			DatagramFormat: protocol.DatagramCompact,
			Serial: SerialConfig{
				Port:        "/dev/ttyUSB0",
				Baud:        115200,
				ReadTimeout: "100ms",
			},
		},
		Crossing: CrossingConfig{
			ConfirmThreshold: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Foxglove: FoxgloveConfig{
			WSAddr:  "127.0.0.1:8765",
			Name:    "pulsera",
			FrameID: "crossing",
			LogName: "pulsera.device",
		},
		API: APIConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8080",
		},
		Influx: InfluxConfig{
			URL:          "http://localhost:8086",
			Org:          "pulsera",
			Bucket:       "signals",
			WriteTimeout: "5s",
		},
	}
}

// LoadOrDefault reads path when it exists. The bool reports whether it did.
func LoadOrDefault(path string) (Config, bool, error) {
	cfg := Default()
	cfg.configPath = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.normalize()
			return cfg, false, nil
		}
		return Config{}, false, fmt.Errorf("read config: %w", err)
	}
	if err := decode(path, data, &cfg); err != nil {
		return Config{}, true, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, true, err
	}
	return cfg, true, nil
}

// Load reads a config from a file path or a file://, http(s):// or s3://
// URL. The format follows the extension: .yaml and .yml are YAML,
// anything else TOML.
func Load(ctx context.Context, src string) (Config, error) {
	data, err := loadURL(ctx, src)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	cfg.configPath = src
	if err := decode(src, data, &cfg); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) Save(p string) error {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(p) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = toml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(p)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	cfg.configPath = p
	return nil
}

func (cfg *Config) ConfigPath() string {
	return cfg.configPath
}

func decode(src string, data []byte, cfg *Config) error {
	if isYAML(src) {
		if err := yaml.UnmarshalWithOptions(data, cfg, yaml.DisallowUnknownField()); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
		return nil
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func isYAML(src string) bool {
	if i := strings.IndexAny(src, "?#"); i >= 0 && strings.Contains(src, "://") {
		src = src[:i]
	}
	switch strings.ToLower(path.Ext(src)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func (cfg *Config) Validate() error {
	r := cfg.Receiver
	switch r.Transport {
	case TransportUDP, TransportTCP:
		if r.Addr == "" {
			return fmt.Errorf("receiver.addr is required for %s", r.Transport)
		}
	case TransportSerial:
		if r.Serial.Port == "" {
			return fmt.Errorf("receiver.serial.port is required")
		}
		if r.Serial.Baud <= 0 {
			return fmt.Errorf("receiver.serial.baud must be positive: %d", r.Serial.Baud)
		}
	default:
		return fmt.Errorf("receiver.transport must be udp, tcp or serial: %q", r.Transport)
	}
	if _, err := cfg.DatagramKind(); err != nil {
		return fmt.Errorf("receiver.datagram_format: %w", err)
	}
	if _, err := cfg.ReconnectInterval(); err != nil {
		return fmt.Errorf("receiver.reconnect: %w", err)
	}
	if _, err := cfg.SerialReadTimeout(); err != nil {
		return fmt.Errorf("receiver.serial.read_timeout: %w", err)
	}
	if r.ReplyAddr != "" {
		if _, _, err := net.SplitHostPort(r.ReplyAddr); err != nil {
			return fmt.Errorf("receiver.reply_addr: %w", err)
		}
	}
	if cfg.Crossing.ConfirmThreshold <= 0 {
		return fmt.Errorf("crossing.confirm_threshold must be positive: %d", cfg.Crossing.ConfirmThreshold)
	}
	if h := cfg.Crossing.Heading; h != nil && (*h < 0 || *h >= 360) {
		return fmt.Errorf("crossing.heading out of range [0,360): %v", *h)
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json: %q", cfg.Log.Format)
	}
	if cfg.Influx.Enabled && (cfg.Influx.URL == "" || cfg.Influx.Org == "" || cfg.Influx.Bucket == "") {
		return fmt.Errorf("influx.url, influx.org and influx.bucket are required when influx is enabled")
	}
	if _, err := cfg.InfluxWriteTimeout(); err != nil {
		return fmt.Errorf("influx.write_timeout: %w", err)
	}
	return nil
}

// DatagramKind is the payload kind assumed for unframed UDP datagrams.
func (cfg *Config) DatagramKind() (protocol.Kind, error) {
	return protocol.KindForFormat(cfg.Receiver.DatagramFormat)
}

func (cfg *Config) ReconnectInterval() (time.Duration, error) {
	return parsePositiveDuration(cfg.Receiver.Reconnect)
}

func (cfg *Config) SerialReadTimeout() (time.Duration, error) {
	return parsePositiveDuration(cfg.Receiver.Serial.ReadTimeout)
}

func (cfg *Config) InfluxWriteTimeout() (time.Duration, error) {
	return parsePositiveDuration(cfg.Influx.WriteTimeout)
}

func parsePositiveDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive: %s", raw)
	}
	return d, nil
}

func (cfg *Config) normalize() {
	def := Default()

	cfg.Receiver.Transport = strings.ToLower(strings.TrimSpace(cfg.Receiver.Transport))
	if cfg.Receiver.Transport == "" {
		cfg.Receiver.Transport = def.Receiver.Transport
	}
	if cfg.Receiver.Addr == "" {
		cfg.Receiver.Addr = def.Receiver.Addr
	}
	if cfg.Receiver.Reconnect == "" {
		cfg.Receiver.Reconnect = def.Receiver.Reconnect
	}
	if cfg.Receiver.Buf <= 0 {
		cfg.Receiver.Buf = def.Receiver.Buf
	}
	if cfg.Receiver.ReaderBuf <= 0 {
		cfg.Receiver.ReaderBuf = def.Receiver.ReaderBuf
	}
	cfg.Receiver.ReplyAddr = strings.TrimSpace(cfg.Receiver.ReplyAddr)
	cfg.Receiver.DatagramFormat = strings.ToLower(strings.TrimSpace(cfg.Receiver.DatagramFormat))
	if cfg.Receiver.DatagramFormat == "" {
		cfg.Receiver.DatagramFormat = def.Receiver.DatagramFormat
	}
	if cfg.Receiver.Serial.Port == "" {
		cfg.Receiver.Serial.Port = def.Receiver.Serial.Port
	}
	if cfg.Receiver.Serial.Baud == 0 {
		cfg.Receiver.Serial.Baud = def.Receiver.Serial.Baud
	}
	if cfg.Receiver.Serial.ReadTimeout == "" {
		cfg.Receiver.Serial.ReadTimeout = def.Receiver.Serial.ReadTimeout
	}

	if cfg.Crossing.ConfirmThreshold == 0 {
		cfg.Crossing.ConfirmThreshold = def.Crossing.ConfirmThreshold
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}

	if cfg.Foxglove.WSAddr == "" {
		cfg.Foxglove.WSAddr = def.Foxglove.WSAddr
	}
	if cfg.Foxglove.Name == "" {
		cfg.Foxglove.Name = def.Foxglove.Name
	}
	if cfg.Foxglove.FrameID == "" {
		cfg.Foxglove.FrameID = def.Foxglove.FrameID
	}
	if cfg.Foxglove.LogName == "" {
		cfg.Foxglove.LogName = def.Foxglove.LogName
	}

	if cfg.API.Addr == "" {
		cfg.API.Addr = def.API.Addr
	}

	if cfg.Influx.URL == "" {
		cfg.Influx.URL = def.Influx.URL
	}
	if cfg.Influx.Org == "" {
		cfg.Influx.Org = def.Influx.Org
	}
	if cfg.Influx.Bucket == "" {
		cfg.Influx.Bucket = def.Influx.Bucket
	}
	if cfg.Influx.WriteTimeout == "" {
		cfg.Influx.WriteTimeout = def.Influx.WriteTimeout
	}

	if cfg.configPath == "" {
		cfg.configPath = DefaultConfigPath
	}
}
