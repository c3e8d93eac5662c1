package crossing

import "pulsera/pkg/protocol"

// Command is the instruction relayed to the wearable's actuator. It goes
// out as plain text, followed by the wearer's quadrant as one byte.
type Command string

const (
	CommandVibrateStart Command = "VIBRATE_START"
	CommandVibrateStop  Command = "VIBRATE_STOP"
)

// Advice is the outcome of judging one report against the wearer's heading.
type Advice struct {
	Report         protocol.SignalReport `json:"report"`
	SignalQuadrant Quadrant              `json:"signal_quadrant"`
	UserQuadrant   Quadrant              `json:"user_quadrant"`
	Aligned        bool                  `json:"aligned"`
	Command        Command               `json:"command"`
}

func (a Advice) Safe() bool {
	return a.Command == CommandVibrateStart
}

// Aligned reports whether a wearer walking in user crosses the road the
// signal at angle controls: the crossing runs perpendicular to the
// direction the housing faces.
func Aligned(angle protocol.Angle, user Quadrant) bool {
	switch SignalQuadrant(angle) {
	case QuadrantEast, QuadrantWest:
		return user == QuadrantSouth || user == QuadrantNorth
	case QuadrantSouth, QuadrantNorth:
		return user == QuadrantEast || user == QuadrantWest
	default:
		return false
	}
}

// Advise judges r on its own; no earlier report influences the result.
func Advise(r protocol.SignalReport, user Quadrant) Advice {
	aligned := Aligned(r.Angle(), user)
	cmd := CommandVibrateStop
	if r.State().IsActive() && aligned {
		cmd = CommandVibrateStart
	}
	return Advice{
		Report:         r,
		SignalQuadrant: SignalQuadrant(r.Angle()),
		UserQuadrant:   user,
		Aligned:        aligned,
		Command:        cmd,
	}
}

// Orientation is the wearer's latest compass reading.
type Orientation struct {
	Heading   float64  `json:"heading"`
	Direction string   `json:"direction"`
	Quadrant  Quadrant `json:"quadrant"`
}
