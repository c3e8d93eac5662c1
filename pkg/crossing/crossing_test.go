package crossing_test

import (
	"encoding/json"
	"math"
	"sync"
	"testing"

	"pulsera/pkg/crossing"
	"pulsera/pkg/protocol"
)

func TestQuadrantFromHeading(t *testing.T) {
	cases := []struct {
		deg  float64
		want crossing.Quadrant
	}{
		{0, crossing.QuadrantNorth},
		{44.9, crossing.QuadrantNorth},
		{45, crossing.QuadrantEast},
		{135, crossing.QuadrantEast},
		{135.1, crossing.QuadrantSouth},
		{225, crossing.QuadrantSouth},
		{270, crossing.QuadrantWest},
		{315, crossing.QuadrantWest},
		{315.5, crossing.QuadrantNorth},
		{-90, crossing.QuadrantWest},
		{450, crossing.QuadrantEast},
		{math.NaN(), crossing.QuadrantUnknown},
	}
	for _, tc := range cases {
		if got := crossing.QuadrantFromHeading(tc.deg); got != tc.want {
			t.Fatalf("heading %v: got %s want %s", tc.deg, got, tc.want)
		}
	}
}

func TestSignalQuadrantMatchesHeading(t *testing.T) {
	for _, a := range protocol.Angles {
		if got, want := crossing.SignalQuadrant(a), crossing.QuadrantFromHeading(float64(a.Degrees())); got != want {
			t.Fatalf("angle %s: got %s want %s", a, got, want)
		}
	}
	if crossing.SignalQuadrant(45) != crossing.QuadrantUnknown {
		t.Fatalf("invalid angle should map to unknown quadrant")
	}
}

func TestDirection(t *testing.T) {
	cases := map[float64]string{
		0: "N", 29: "N", 30: "NE", 59: "NE", 60: "E", 119: "E", 120: "SE",
		150: "S", 209: "S", 210: "SW", 240: "W", 299: "W", 300: "NW", 329: "NW", 330: "N", 359.9: "N",
	}
	for deg, want := range cases {
		if got := crossing.Direction(deg); got != want {
			t.Fatalf("direction %v: got %s want %s", deg, got, want)
		}
	}
}

func TestAligned(t *testing.T) {
	cases := []struct {
		angle protocol.Angle
		user  crossing.Quadrant
		want  bool
	}{
		{protocol.Angle90, crossing.QuadrantNorth, true},
		{protocol.Angle90, crossing.QuadrantSouth, true},
		{protocol.Angle90, crossing.QuadrantEast, false},
		{protocol.Angle270, crossing.QuadrantWest, false},
		{protocol.Angle0, crossing.QuadrantEast, true},
		{protocol.Angle180, crossing.QuadrantWest, true},
		{protocol.Angle180, crossing.QuadrantSouth, false},
		{protocol.Angle0, crossing.QuadrantUnknown, false},
	}
	for _, tc := range cases {
		if got := crossing.Aligned(tc.angle, tc.user); got != tc.want {
			t.Fatalf("aligned(%s,%s): got %v want %v", tc.angle, tc.user, got, tc.want)
		}
	}
}

func TestAdvise(t *testing.T) {
	green, _ := protocol.ReportFromInts(1, 90)
	red, _ := protocol.ReportFromInts(2, 90)

	advice := crossing.Advise(green, crossing.QuadrantNorth)
	if !advice.Safe() || advice.Command != crossing.CommandVibrateStart {
		t.Fatalf("expected start advice, got %+v", advice)
	}
	if advice.SignalQuadrant != crossing.QuadrantEast || !advice.Aligned {
		t.Fatalf("unexpected advice details: %+v", advice)
	}

	if advice := crossing.Advise(red, crossing.QuadrantNorth); advice.Safe() {
		t.Fatalf("red light must not be safe: %+v", advice)
	}
	if advice := crossing.Advise(green, crossing.QuadrantEast); advice.Safe() {
		t.Fatalf("misaligned path must not be safe: %+v", advice)
	}
	if advice := crossing.Advise(green, crossing.QuadrantUnknown); advice.Command != crossing.CommandVibrateStop {
		t.Fatalf("unknown heading must stop vibration: %+v", advice)
	}
}

func TestAdviceJSON(t *testing.T) {
	r, _ := protocol.ReportFromInts(1, 0)
	raw, err := json.Marshal(crossing.Advise(r, crossing.QuadrantWest))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"report":{"state":"active","angle":0},"signal_quadrant":"north","user_quadrant":"west","aligned":true,"command":"VIBRATE_START"}`
	if string(raw) != want {
		t.Fatalf("unexpected json:\n got %s\nwant %s", raw, want)
	}
}

func TestTrackerRequiresConfirmation(t *testing.T) {
	tr := crossing.NewTracker(3)
	if tr.Quadrant() != crossing.QuadrantUnknown {
		t.Fatalf("new tracker should start unknown")
	}
	if _, ok := tr.Heading(); ok {
		t.Fatalf("new tracker should have no heading")
	}

	tr.Observe(90)
	tr.Observe(91)
	if tr.Quadrant() != crossing.QuadrantUnknown {
		t.Fatalf("quadrant confirmed too early")
	}
	o := tr.Observe(92)
	if o.Quadrant != crossing.QuadrantEast || tr.Quadrant() != crossing.QuadrantEast {
		t.Fatalf("expected east after 3 readings, got %s", o.Quadrant)
	}
	if o.Direction != "E" || o.Heading != 92 {
		t.Fatalf("unexpected orientation: %+v", o)
	}

	tr.Observe(180)
	tr.Observe(181)
	tr.Observe(90)
	tr.Observe(182)
	tr.Observe(183)
	if tr.Quadrant() != crossing.QuadrantEast {
		t.Fatalf("interrupted run must not switch quadrant")
	}
	tr.Observe(184)
	if tr.Quadrant() != crossing.QuadrantSouth {
		t.Fatalf("expected south, got %s", tr.Quadrant())
	}
}

func TestTrackerSeed(t *testing.T) {
	tr := crossing.NewTracker(0)
	tr.Seed(-10)
	if tr.Quadrant() != crossing.QuadrantNorth {
		t.Fatalf("expected north, got %s", tr.Quadrant())
	}
	h, ok := tr.Heading()
	if !ok || h != 350 {
		t.Fatalf("unexpected seeded heading: %v %v", h, ok)
	}
	tr.Observe(270)
	if tr.Quadrant() != crossing.QuadrantNorth {
		t.Fatalf("single reading must not override seed")
	}
}

func TestTrackerConcurrent(t *testing.T) {
	tr := crossing.NewTracker(2)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.Observe(float64(i % 360))
			_ = tr.Quadrant()
		}(i)
	}
	wg.Wait()
}
