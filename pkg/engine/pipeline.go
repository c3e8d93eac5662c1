package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pulsera/pkg/crossing"
	"pulsera/pkg/metrics"
	"pulsera/pkg/protocol"
)

// Pipeline turns raw transport payloads into packets on a Hub.
type Pipeline struct {
	hub          *Hub
	tracker      *crossing.Tracker
	framed       bool
	datagramKind protocol.Kind
	transport    string
	logger       zerolog.Logger
	now          func() time.Time
	replies      CommandSender
}

// CommandSender carries advice back to the wearable, one payload per
// write. transport.UDPSender satisfies it.
type CommandSender interface {
	Send(payload []byte) error
}

type PipelineOption func(*Pipeline)

// WithCommandSender replies to every judged report with the command text
// followed by a single byte holding the wearer's quadrant.
func WithCommandSender(sender CommandSender) PipelineOption {
	return func(p *Pipeline) {
		p.replies = sender
	}
}

// WithDatagramKind treats every input as one unframed payload of kind.
func WithDatagramKind(kind protocol.Kind) PipelineOption {
	return func(p *Pipeline) {
		p.framed = false
		p.datagramKind = kind
	}
}

func WithTransportLabel(name string) PipelineOption {
	return func(p *Pipeline) {
		if name != "" {
			p.transport = name
		}
	}
}

func WithLogger(logger zerolog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPipeline(hub *Hub, tracker *crossing.Tracker, opts ...PipelineOption) *Pipeline {
	if tracker == nil {
		tracker = crossing.NewTracker(crossing.DefaultConfirmThreshold)
	}
	p := &Pipeline{
		hub:       hub,
		tracker:   tracker,
		framed:    true,
		transport: "stream",
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Tracker() *crossing.Tracker {
	return p.tracker
}

// Run consumes frames until ctx is done or frames is closed.
func (p *Pipeline) Run(ctx context.Context, frames <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			pkt, err := p.Handle(frame)
			if err != nil {
				continue
			}
			if err := p.hub.PublishContext(ctx, pkt); err != nil {
				return
			}
		}
	}
}

// Handle decodes one frame. Reports become crossing.Advice judged against
// the tracker's current quadrant; headings update the tracker and become
// crossing.Orientation.
func (p *Pipeline) Handle(frame []byte) (protocol.Packet, error) {
	metrics.FrameReceived(p.transport)

	kind := p.datagramKind
	payload := frame
	if p.framed {
		var err error
		kind, payload, err = protocol.DecodeFrame(frame)
		if err != nil {
			p.reject(kind, frame, err)
			return protocol.Packet{}, err
		}
	}

	data, err := protocol.ParsePacket(kind, payload)
	if err != nil {
		p.reject(kind, payload, err)
		return protocol.Packet{}, err
	}

	switch v := data.(type) {
	case protocol.SignalReport:
		metrics.ReportDecoded(v)
		advice := crossing.Advise(v, p.tracker.Quadrant())
		metrics.AdviceIssued(string(advice.Command))
		p.reply(advice)
		data = advice
	case protocol.Heading:
		data = p.tracker.Observe(v.Degrees())
	}

	return protocol.Packet{
		Kind:      kind,
		Timestamp: p.now(),
		Payload:   append([]byte(nil), payload...),
		Data:      data,
	}, nil
}

func (p *Pipeline) reply(advice crossing.Advice) {
	if p.replies == nil {
		return
	}
	if err := p.replies.Send([]byte(advice.Command)); err != nil {
		p.logger.Warn().Err(err).Str("command", string(advice.Command)).Msg("reply command")
		return
	}
	if err := p.replies.Send([]byte{byte(advice.UserQuadrant)}); err != nil {
		p.logger.Warn().Err(err).Stringer("quadrant", advice.UserQuadrant).Msg("reply quadrant")
	}
}

func (p *Pipeline) reject(kind protocol.Kind, payload []byte, err error) {
	metrics.DecodeFailed(err)
	p.logger.Debug().
		Err(err).
		Str("transport", p.transport).
		Stringer("kind", kind).
		Hex("payload", payload).
		Msg("drop payload")
}
