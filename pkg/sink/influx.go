// Package sink stores crossing advice in InfluxDB.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"pulsera/pkg/crossing"
	"pulsera/pkg/protocol"
)

const Measurement = "signal_report"

// PointWriter is the blocking write API of an InfluxDB client.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type InfluxConfig struct {
	URL          string
	Token        string
	Org          string
	Bucket       string
	Device       string
	WriteTimeout time.Duration
}

type InfluxSink struct {
	writer  PointWriter
	device  string
	timeout time.Duration
	logger  zerolog.Logger
	closer  func()
}

func NewInfluxSink(writer PointWriter, device string, logger zerolog.Logger) *InfluxSink {
	return &InfluxSink{
		writer:  writer,
		device:  device,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Dial connects a blocking writer to the configured bucket.
func Dial(cfg InfluxConfig, logger zerolog.Logger) (*InfluxSink, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("sink: influx url, org and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	s := NewInfluxSink(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), cfg.Device, logger)
	if cfg.WriteTimeout > 0 {
		s.timeout = cfg.WriteTimeout
	}
	s.closer = client.Close
	return s, nil
}

func (s *InfluxSink) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// PointFromAdvice builds one point per judged report. Packets carrying
// anything else yield nil.
func PointFromAdvice(pkt protocol.Packet, device string) *write.Point {
	advice, ok := pkt.Data.(crossing.Advice)
	if !ok {
		return nil
	}
	ts := pkt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	tags := map[string]string{
		"state":   advice.Report.State().String(),
		"command": string(advice.Command),
	}
	if device != "" {
		tags["device"] = device
	}
	fields := map[string]interface{}{
		"state_code":      int64(advice.Report.State()),
		"angle":           int64(advice.Report.Angle().Degrees()),
		"signal_quadrant": int64(advice.SignalQuadrant),
		"user_quadrant":   int64(advice.UserQuadrant),
		"aligned":         advice.Aligned,
	}
	return influxdb2.NewPoint(Measurement, tags, fields, ts)
}

func (s *InfluxSink) Write(ctx context.Context, pkt protocol.Packet) error {
	p := PointFromAdvice(pkt, s.device)
	if p == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.writer.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write influx point: %w", err)
	}
	return nil
}

// Consume writes advice until ctx is done or in is closed. Write errors are
// logged and the packet dropped.
func (s *InfluxSink) Consume(ctx context.Context, in <-chan protocol.Packet) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-in:
			if !ok {
				return
			}
			if err := s.Write(ctx, pkt); err != nil {
				s.logger.Warn().Err(err).Msg("influx write failed")
			}
		}
	}
}
