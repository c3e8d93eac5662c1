// Package crossing turns signal reports into walk/wait advice for the wearer.
package crossing

import (
	"math"

	"pulsera/pkg/protocol"
)

// Quadrant is a 90° sector of the compass.
type Quadrant uint8

const (
	QuadrantUnknown Quadrant = 0
	QuadrantEast    Quadrant = 1
	QuadrantSouth   Quadrant = 2
	QuadrantWest    Quadrant = 3
	QuadrantNorth   Quadrant = 4
)

func (q Quadrant) String() string {
	switch q {
	case QuadrantEast:
		return "east"
	case QuadrantSouth:
		return "south"
	case QuadrantWest:
		return "west"
	case QuadrantNorth:
		return "north"
	default:
		return "unknown"
	}
}

func (q Quadrant) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// NormalizeHeading folds deg into [0, 360).
func NormalizeHeading(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// QuadrantFromHeading maps a compass heading to its quadrant. Boundaries
// at 135, 225 and 315 belong to the earlier quadrant.
func QuadrantFromHeading(deg float64) Quadrant {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return QuadrantUnknown
	}
	deg = NormalizeHeading(deg)
	switch {
	case deg >= 45 && deg <= 135:
		return QuadrantEast
	case deg > 135 && deg <= 225:
		return QuadrantSouth
	case deg > 225 && deg <= 315:
		return QuadrantWest
	default:
		return QuadrantNorth
	}
}

// SignalQuadrant is the quadrant a signal housing faces at angle a.
func SignalQuadrant(a protocol.Angle) Quadrant {
	switch a {
	case protocol.Angle90:
		return QuadrantEast
	case protocol.Angle180:
		return QuadrantSouth
	case protocol.Angle270:
		return QuadrantWest
	case protocol.Angle0:
		return QuadrantNorth
	default:
		return QuadrantUnknown
	}
}

// Direction names the eight-point compass direction for deg. Cardinal
// sectors are 60° wide and intercardinal ones 30°.
func Direction(deg float64) string {
	deg = NormalizeHeading(deg)
	switch {
	case deg >= 330 || deg < 30:
		return "N"
	case deg < 60:
		return "NE"
	case deg < 120:
		return "E"
	case deg < 150:
		return "SE"
	case deg < 210:
		return "S"
	case deg < 240:
		return "SW"
	case deg < 300:
		return "W"
	default:
		return "NW"
	}
}
