// Package metrics exposes receive-side counters through Prometheus.
package metrics

import (
	"errors"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"pulsera/pkg/protocol"
)

var (
	registerOnce sync.Once

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsera",
			Subsystem: "receiver",
			Name:      "frames_received_total",
			Help:      "Frames or datagrams delivered by the transport.",
		},
		[]string{"transport"},
	)
	decodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsera",
			Subsystem: "receiver",
			Name:      "decode_failures_total",
			Help:      "Payloads rejected by the codec, by reason.",
		},
		[]string{"reason"},
	)
	reportsDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsera",
			Subsystem: "receiver",
			Name:      "reports_total",
			Help:      "Validated signal reports, by state and angle.",
		},
		[]string{"state", "angle"},
	)
	adviceIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsera",
			Subsystem: "crossing",
			Name:      "advice_total",
			Help:      "Advice issued to the wearer, by command.",
		},
		[]string{"command"},
	)
	hubDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsera",
			Subsystem: "hub",
			Name:      "dropped_total",
			Help:      "Packets a subscriber missed because its buffer was full.",
		},
		[]string{"subscriber"},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesReceived, decodeFailures, reportsDecoded, adviceIssued, hubDropped)
	})
}

func FrameReceived(transport string) {
	Register()
	framesReceived.WithLabelValues(transport).Inc()
}

func DecodeFailed(err error) {
	Register()
	decodeFailures.WithLabelValues(Reason(err)).Inc()
}

func ReportDecoded(r protocol.SignalReport) {
	Register()
	reportsDecoded.WithLabelValues(r.State().String(), strconv.Itoa(r.Angle().Degrees())).Inc()
}

func AdviceIssued(command string) {
	Register()
	adviceIssued.WithLabelValues(command).Inc()
}

func PacketDropped(subscriber string) {
	Register()
	hubDropped.WithLabelValues(subscriber).Inc()
}

// Reason maps a codec error to a stable label value.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, protocol.ErrTruncatedMessage):
		return "truncated"
	case errors.Is(err, protocol.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, protocol.ErrInvalidAngle):
		return "invalid_angle"
	case errors.Is(err, protocol.ErrMalformedText):
		return "malformed_text"
	case errors.Is(err, protocol.ErrInvalidHeading):
		return "invalid_heading"
	case errors.Is(err, protocol.ErrEmptyFrame), errors.Is(err, protocol.ErrInvalidFrame):
		return "bad_frame"
	default:
		return "other"
	}
}
