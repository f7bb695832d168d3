// Package schedule turns a release instant into per-attempt timings.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

// DefaultLead is how long before its flush instant an attempt opens and
// primes its connection. Long enough for DNS, TCP and TLS; short enough that
// the remote side does not drop the idle connection.
const DefaultLead = 5 * time.Second

// ErrAlreadyReleased is returned for plans whose instants have already passed.
var ErrAlreadyReleased = errors.New("target resource appears already released")

// Plan holds the two instants of one attempt.
type Plan struct {
	Index      int
	PrestageAt time.Time
	FlushAt    time.Time
}

// Check reports ErrAlreadyReleased when either instant is before now.
func (p Plan) Check(now time.Time) error {
	if p.PrestageAt.Before(now) {
		return fmt.Errorf("%w: attempt %d should have connected at %s",
			ErrAlreadyReleased, p.Index, p.PrestageAt.UTC().Format(time.RFC3339Nano))
	}
	if p.FlushAt.Before(now) {
		return fmt.Errorf("%w: attempt %d should have flushed at %s",
			ErrAlreadyReleased, p.Index, p.FlushAt.UTC().Format(time.RFC3339Nano))
	}
	return nil
}

// Scheduler computes attempt plans for one race. It is a value type and
// safe to share between attempts.
type Scheduler struct {
	Release    time.Time     // authoritative release instant
	Correction time.Duration // clock offset correction, usually negative
	Spread     time.Duration // stagger between successive attempts
	Lead       time.Duration // pre-stage lead, DefaultLead when zero
}

// New creates a Scheduler with the default lead.
func New(release time.Time, correction, spread time.Duration) Scheduler {
	return Scheduler{
		Release:    release,
		Correction: correction,
		Spread:     spread,
		Lead:       DefaultLead,
	}
}

// Plan computes attempt i:
//
//	flush    = release + correction + i*spread
//	prestage = flush - lead
func (s Scheduler) Plan(i int) Plan {
	lead := s.Lead
	if lead <= 0 {
		lead = DefaultLead
	}
	flush := s.Release.Add(s.Correction).Add(time.Duration(i) * s.Spread)
	return Plan{
		Index:      i,
		PrestageAt: flush.Add(-lead),
		FlushAt:    flush,
	}
}

// Plans computes the first n plans.
func (s Scheduler) Plans(n int) []Plan {
	plans := make([]Plan, 0, n)
	for i := 0; i < n; i++ {
		plans = append(plans, s.Plan(i))
	}
	return plans
}

// CorrectionFromMillis converts a fire-early offset in milliseconds into the
// correction added to the release instant.
func CorrectionFromMillis(ms int) time.Duration {
	return -time.Duration(ms) * time.Millisecond
}
