package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the signal state carried by a report.
type State uint8

const (
	// StateActive means the light is green/on.
	StateActive State = 1
	// StateInactive means the light is red/off.
	StateInactive State = 2
)

// ParseState converts a wire integer into a State.
func ParseState(v int) (State, error) {
	s := State(v)
	if v < 0 || v > 0xFF || !s.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidState, v)
	}
	return s, nil
}

func (s State) Valid() bool {
	return s == StateActive || s == StateInactive
}

func (s State) IsActive() bool {
	return s == StateActive
}

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Angle is the quarter-turn mounting rotation of the signal housing.
type Angle uint16

const (
	Angle0   Angle = 0
	Angle90  Angle = 90
	Angle180 Angle = 180
	Angle270 Angle = 270
)

// Angles lists every valid mounting angle in ascending order.
var Angles = [...]Angle{Angle0, Angle90, Angle180, Angle270}

// ParseAngle converts a wire integer (degrees) into an Angle.
func ParseAngle(v int) (Angle, error) {
	a := Angle(v)
	if v < 0 || v > 0xFFFF || !a.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAngle, v)
	}
	return a, nil
}

func (a Angle) Valid() bool {
	switch a {
	case Angle0, Angle90, Angle180, Angle270:
		return true
	default:
		return false
	}
}

func (a Angle) Degrees() int {
	return int(a)
}

func (a Angle) String() string {
	return fmt.Sprintf("%d°", uint16(a))
}

// SignalReport is one snapshot of a traffic signal: its state and the
// angle its housing is mounted at. The zero value is not a valid report;
// build one with NewSignalReport, ReportFromInts or Decode.
type SignalReport struct {
	state State
	angle Angle
}

// NewSignalReport validates both fields and returns the report.
func NewSignalReport(state State, angle Angle) (SignalReport, error) {
	if !state.Valid() {
		return SignalReport{}, fmt.Errorf("%w: %d", ErrInvalidState, uint8(state))
	}
	if !angle.Valid() {
		return SignalReport{}, fmt.Errorf("%w: %d", ErrInvalidAngle, uint16(angle))
	}
	return SignalReport{state: state, angle: angle}, nil
}

// ReportFromInts builds a report from raw integers as found on the wire.
func ReportFromInts(state int, angle int) (SignalReport, error) {
	s, err := ParseState(state)
	if err != nil {
		return SignalReport{}, err
	}
	a, err := ParseAngle(angle)
	if err != nil {
		return SignalReport{}, err
	}
	return SignalReport{state: s, angle: a}, nil
}

func (r SignalReport) State() State { return r.state }

func (r SignalReport) Angle() Angle { return r.angle }

// Equal reports whether both fields match.
func (r SignalReport) Equal(other SignalReport) bool {
	return r.state == other.state && r.angle == other.angle
}

// Validate returns an error when r did not come from a validating constructor.
func (r SignalReport) Validate() error {
	_, err := NewSignalReport(r.state, r.angle)
	return err
}

func (r SignalReport) String() string {
	return fmt.Sprintf("%s@%s", r.state, r.angle)
}

func (r SignalReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		State string `json:"state"`
		Angle int    `json:"angle"`
	}{
		State: r.state.String(),
		Angle: r.angle.Degrees(),
	})
}

// Heading is a compass heading in whole degrees, [0, 360).
type Heading uint16

func (h Heading) Degrees() float64 {
	return float64(h)
}

// Packet is the normalized unit flowing through the receive pipeline.
type Packet struct {
	Kind      Kind
	Timestamp time.Time
	Payload   []byte
	Data      any
}
