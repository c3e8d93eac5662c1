package crossing

import "sync"

// DefaultConfirmThreshold is how many consecutive agreeing readings a new
// quadrant needs before it replaces the current one.
const DefaultConfirmThreshold = 5

// Tracker debounces compass headings into a stable quadrant.
type Tracker struct {
	mu         sync.Mutex
	threshold  int
	current    Quadrant
	candidate  Quadrant
	confirmed  int
	heading    float64
	hasHeading bool
}

func NewTracker(threshold int) *Tracker {
	if threshold <= 0 {
		threshold = DefaultConfirmThreshold
	}
	return &Tracker{threshold: threshold}
}

// Observe records a heading and returns the wearer's orientation.
func (t *Tracker) Observe(deg float64) Orientation {
	deg = NormalizeHeading(deg)
	q := QuadrantFromHeading(deg)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.heading = deg
	t.hasHeading = true
	if q == t.candidate {
		t.confirmed++
	} else {
		t.candidate = q
		t.confirmed = 1
	}
	if t.confirmed >= t.threshold {
		t.current = t.candidate
	}
	return Orientation{Heading: deg, Direction: Direction(deg), Quadrant: t.current}
}

// Seed fixes the quadrant immediately, for installs with a known heading.
func (t *Tracker) Seed(deg float64) {
	deg = NormalizeHeading(deg)
	q := QuadrantFromHeading(deg)

	t.mu.Lock()
	t.heading = deg
	t.hasHeading = true
	t.current = q
	t.candidate = q
	t.confirmed = t.threshold
	t.mu.Unlock()
}

func (t *Tracker) Quadrant() Quadrant {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *Tracker) Heading() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.heading, t.hasHeading
}
