package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"pulsera/pkg/config"
	"pulsera/pkg/protocol"
	"pulsera/pkg/transport"
)

type MockCmd struct {
	Transport string        `help:"udp sends datagrams to --addr; tcp listens on --addr for a receiver" enum:"udp,tcp" default:"udp"`
	Addr      string        `help:"destination (udp) or listen address (tcp)" default:"127.0.0.1:4210"`
	Format    string        `help:"datagram payload format" enum:"compact,legacy,text" default:"compact"`
	Angle     int           `help:"mounting angle of the simulated signal" default:"90"`
	Interval  time.Duration `help:"time between reports" default:"500ms"`
	Phase     int           `help:"reports per light phase before it changes" default:"6"`
	Count     int           `help:"stop after this many reports, 0 runs until interrupted"`
}

func (c *MockCmd) Run(rt *runtime) error {
	angle, err := protocol.ParseAngle(c.Angle)
	if err != nil {
		return err
	}
	cfg, err := rt.loadConfig()
	if err != nil {
		return err
	}
	log := rt.logger(cfg, rt.stderr)
	sim := &mockController{angle: angle, phase: c.Phase}

	switch c.Transport {
	case config.TransportTCP:
		return runMockTCP(rt.ctx, c.Addr, sim, c.Interval, c.Count, log)
	default:
		kind, err := protocol.KindForFormat(c.Format)
		if err != nil {
			return err
		}
		tx, err := transport.DialUDP(c.Addr)
		if err != nil {
			return err
		}
		defer tx.Close()
		return runMockUDP(rt.ctx, tx, kind, sim, c.Interval, c.Count, log)
	}
}

// mockController cycles a signal between walk and don't-walk phases while
// a simulated wearer turns slowly on the spot.
type mockController struct {
	angle protocol.Angle
	phase int
	seq   int
}

func (m *mockController) report() protocol.SignalReport {
	phase := m.phase
	if phase <= 0 {
		phase = 1
	}
	state := protocol.StateActive
	if (m.seq/phase)%2 == 1 {
		state = protocol.StateInactive
	}
	r, _ := protocol.NewSignalReport(state, m.angle)
	return r
}

func (m *mockController) heading() protocol.Heading {
	return protocol.Heading((m.seq * 15) % 360)
}

// frames returns the stream frames for the current tick and advances.
func (m *mockController) frames() [][]byte {
	r := m.report()
	out := [][]byte{
		protocol.EncodeFrame(protocol.KindHeading, protocol.EncodeHeading(m.heading())),
		protocol.EncodeFrame(protocol.KindReport, protocol.Encode(r)),
	}
	phase := max(m.phase, 1)
	if m.seq%phase == 0 {
		out = append(out, protocol.EncodeFrame(protocol.KindLog, []byte("phase "+r.State().String())))
	}
	m.seq++
	return out
}

type datagramSender interface {
	Send(payload []byte) error
}

func runMockUDP(ctx context.Context, tx datagramSender, kind protocol.Kind, sim *mockController, interval time.Duration, count int, log zerolog.Logger) error {
	return tick(ctx, interval, count, func() error {
		r := sim.report()
		sim.seq++
		payload, err := protocol.EncodePayload(kind, r)
		if err != nil {
			return err
		}
		log.Debug().Stringer("report", r).Hex("payload", payload).Msg("mock datagram")
		return tx.Send(payload)
	})
}

// runMockTCP serves one receiver connection at a time, the way the radio
// bridge does.
func runMockTCP(ctx context.Context, addr string, sim *mockController, interval time.Duration, count int, log zerolog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("mock listen: %w", err)
	}
	defer ln.Close()
	context.AfterFunc(ctx, func() { _ = ln.Close() })
	log.Info().Str("addr", ln.Addr().String()).Msg("mock controller waiting for receiver")

	sent := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("mock accept: %w", err)
		}
		log.Info().Str("peer", conn.RemoteAddr().String()).Msg("receiver connected")
		remaining := 0
		if count > 0 {
			remaining = count - sent
		}
		err = tick(ctx, interval, remaining, func() error {
			for _, frame := range sim.frames() {
				if _, err := conn.Write(frame); err != nil {
					return err
				}
			}
			sent++
			return nil
		})
		_ = conn.Close()
		if ctx.Err() != nil || (count > 0 && sent >= count) {
			return nil
		}
		if err != nil {
			log.Warn().Err(err).Msg("receiver dropped")
		}
	}
}

// tick calls fn every interval, count times or until ctx is done when
// count is zero.
func tick(ctx context.Context, interval time.Duration, count int, fn func() error) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 0; count <= 0 || n < count; n++ {
		if err := fn(); err != nil {
			return err
		}
		if count > 0 && n+1 >= count {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
