package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"pulsera/pkg/api"
	"pulsera/pkg/bridge/foxglove"
	"pulsera/pkg/config"
	"pulsera/pkg/crossing"
	"pulsera/pkg/engine"
	"pulsera/pkg/logger"
	"pulsera/pkg/sink"
	"pulsera/pkg/transport"
	"pulsera/pkg/tui"
)

type ServerCmd struct {
	Transport string `help:"override receiver.transport (udp, tcp or serial)"`
	Addr      string `help:"override receiver.addr"`
	JSONL     string `help:"write packets as JSON lines to this path, - for stdout" name:"jsonl"`
	TUI       bool   `help:"show the terminal monitor" name:"tui"`
}

func (c *ServerCmd) Run(rt *runtime) error {
	cfg, err := rt.loadConfig()
	if err != nil {
		return err
	}
	if c.Transport != "" {
		cfg.Receiver.Transport = c.Transport
	}
	if c.Addr != "" {
		cfg.Receiver.Addr = c.Addr
	}
	if c.JSONL != "" {
		cfg.Log.JSONLPath = c.JSONL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logOut := rt.stderr
	if c.TUI {
		logOut = io.Discard
	}
	log := rt.logger(cfg, logOut)

	ctx, cancel := context.WithCancel(rt.ctx)
	defer cancel()

	var jsonlOut io.Writer
	switch cfg.Log.JSONLPath {
	case "":
	case "-":
		jsonlOut = rt.stdout
	default:
		f, err := logger.OpenFile(cfg.Log.JSONLPath)
		if err != nil {
			return err
		}
		defer f.Close()
		jsonlOut = f
	}

	srv, err := startServer(ctx, cfg, log, jsonlOut)
	if err != nil {
		return err
	}
	if c.TUI {
		err := tui.Run(ctx, srv.hub.SubscribeAs("tui", 0), nil, rt.stdout)
		cancel()
		return err
	}
	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}

type server struct {
	hub      *engine.Hub
	pipeline *engine.Pipeline
	api      *api.Server
}

// startServer wires the receiver, pipeline and enabled sinks. Everything
// stops when ctx is done.
func startServer(ctx context.Context, cfg config.Config, log zerolog.Logger, jsonlOut io.Writer) (*server, error) {
	hub := engine.NewHub(engine.WithHubLogger(log))
	go hub.Run(ctx)

	tracker := crossing.NewTracker(cfg.Crossing.ConfirmThreshold)
	if cfg.Crossing.Heading != nil {
		tracker.Seed(*cfg.Crossing.Heading)
	}

	frames := make(chan []byte, cfg.Receiver.Buf)
	pipeOpts := []engine.PipelineOption{
		engine.WithLogger(log),
		engine.WithTransportLabel(cfg.Receiver.Transport),
	}
	onErr := transport.WithErrorHandler(func(err error) {
		log.Warn().Err(err).Str("transport", cfg.Receiver.Transport).Msg("receiver error")
	})

	reconnect, err := cfg.ReconnectInterval()
	if err != nil {
		return nil, err
	}
	switch cfg.Receiver.Transport {
	case config.TransportUDP:
		kind, err := cfg.DatagramKind()
		if err != nil {
			return nil, err
		}
		rx, err := transport.StartUDP(ctx, cfg.Receiver.Addr, frames, onErr)
		if err != nil {
			return nil, err
		}
		pipeOpts = append(pipeOpts, engine.WithDatagramKind(kind))
		log.Info().Str("addr", rx.Addr().String()).Str("format", cfg.Receiver.DatagramFormat).Msg("udp receiver listening")
	case config.TransportTCP:
		transport.StartListener(ctx, cfg.Receiver.Addr, frames,
			transport.WithReconnectInterval(reconnect),
			transport.WithBufferSize(cfg.Receiver.ReaderBuf),
			onErr,
		)
		log.Info().Str("addr", cfg.Receiver.Addr).Msg("tcp receiver dialing")
	case config.TransportSerial:
		readTimeout, err := cfg.SerialReadTimeout()
		if err != nil {
			return nil, err
		}
		transport.StartSerialListener(ctx, cfg.Receiver.Serial.Port, frames,
			transport.WithBaudRate(cfg.Receiver.Serial.Baud),
			transport.WithReadTimeout(readTimeout),
			transport.WithReconnectInterval(reconnect),
			transport.WithBufferSize(cfg.Receiver.ReaderBuf),
			onErr,
		)
		log.Info().Str("port", cfg.Receiver.Serial.Port).Int("baud", cfg.Receiver.Serial.Baud).Msg("serial receiver opened")
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Receiver.Transport)
	}

	if cfg.Receiver.ReplyAddr != "" {
		reply, err := transport.DialUDP(cfg.Receiver.ReplyAddr)
		if err != nil {
			return nil, err
		}
		context.AfterFunc(ctx, func() { _ = reply.Close() })
		pipeOpts = append(pipeOpts, engine.WithCommandSender(reply))
		log.Info().Str("addr", cfg.Receiver.ReplyAddr).Msg("advice replies enabled")
	}

	pipeline := engine.NewPipeline(hub, tracker, pipeOpts...)
	s := &server{hub: hub, pipeline: pipeline}

	if jsonlOut != nil {
		w := logger.NewJSONLWriter(jsonlOut)
		sub := hub.SubscribeAs("jsonl", 0)
		go func() {
			if err := w.Consume(ctx, sub); err != nil {
				log.Error().Err(err).Msg("jsonl writer stopped")
			}
		}()
	}

	if cfg.Foxglove.Enabled {
		fcfg := foxglove.DefaultConfig()
		fcfg.WSAddr = cfg.Foxglove.WSAddr
		fcfg.Name = cfg.Foxglove.Name
		fcfg.FrameID = cfg.Foxglove.FrameID
		fcfg.LogName = cfg.Foxglove.LogName
		fox := foxglove.NewServer(fcfg, hub, foxglove.WithLogger(log))
		go func() {
			if err := fox.Run(ctx); err != nil {
				log.Error().Err(err).Msg("foxglove bridge stopped")
			}
		}()
	}

	if cfg.API.Enabled {
		s.api = api.NewServer(log)
		go s.api.Consume(ctx, hub.SubscribeAs("api", 0))
		go func() {
			if err := s.api.Run(ctx, cfg.API.Addr); err != nil {
				log.Error().Err(err).Msg("status api stopped")
			}
		}()
	}

	if cfg.Influx.Enabled {
		writeTimeout, err := cfg.InfluxWriteTimeout()
		if err != nil {
			return nil, err
		}
		influx, err := sink.Dial(sink.InfluxConfig{
			URL:          cfg.Influx.URL,
			Token:        influxToken(cfg.Influx.Token),
			Org:          cfg.Influx.Org,
			Bucket:       cfg.Influx.Bucket,
			Device:       cfg.Influx.Device,
			WriteTimeout: writeTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		sub := hub.SubscribeAs("influx", 0)
		go func() {
			defer influx.Close()
			influx.Consume(ctx, sub)
		}()
	}

	// Sinks subscribe before the first frame is parsed.
	go pipeline.Run(ctx, frames)
	return s, nil
}

// influxToken falls back to INFLUX_TOKEN so tokens can stay out of files.
func influxToken(token string) string {
	if token != "" {
		return token
	}
	return os.Getenv("INFLUX_TOKEN")
}
