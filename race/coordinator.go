// Package race fires staggered, pre-staged attempts at a release instant
// and aggregates their outcomes.
//
// Each attempt sleeps until its pre-stage instant, opens and primes its own
// connection, sleeps until its flush instant, writes the withheld terminator
// and parses the status line. Attempts share only read-only inputs; a failing
// attempt never affects its siblings.
package race

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/st-keller/namerace/schedule"
	"github.com/st-keller/namerace/wire"
)

// DefaultReadTimeout bounds the wait for a status line after the flush.
const DefaultReadTimeout = 10 * time.Second

// Config configures a Coordinator.
type Config struct {
	Clock       schedule.Clock // SystemClock when nil
	ReadTimeout time.Duration  // DefaultReadTimeout when zero
	Reporter    Reporter       // optional
	Logger      *zap.Logger
}

// Coordinator runs races over one shared Dialer.
type Coordinator struct {
	dialer      Dialer
	clock       schedule.Clock
	readTimeout time.Duration
	reporter    Reporter
	log         *zap.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(d Dialer, cfg Config) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = schedule.SystemClock{}
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Reporter == nil {
		cfg.Reporter = nopReporter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Coordinator{
		dialer:      d,
		clock:       cfg.Clock,
		readTimeout: cfg.ReadTimeout,
		reporter:    cfg.Reporter,
		log:         cfg.Logger,
	}
}

// Race describes one acquisition opportunity.
type Race struct {
	ID        string
	Request   wire.Request
	Scheduler schedule.Scheduler
	Attempts  int
}

// Result aggregates the outcomes of a race, indexed by attempt.
type Result struct {
	RaceID   string
	Outcomes []Outcome
}

// Won reports whether any attempt was accepted.
func (r Result) Won() bool {
	return Aggregate(r.Outcomes)
}

// Count returns how many attempts ended in state s.
func (r Result) Count(s State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == s {
			n++
		}
	}
	return n
}

// Aggregate is the logical OR of the outcomes' success flags.
func Aggregate(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Success {
			return true
		}
	}
	return false
}

// Run spawns every attempt concurrently and waits for all of them; there
// is no early exit on the first success. Cancelling ctx ends attempts that
// are still waiting.
func (c *Coordinator) Run(ctx context.Context, r Race) Result {
	outcomes := make([]Outcome, r.Attempts)
	plans := r.Scheduler.Plans(r.Attempts)

	c.log.Info("Race scheduled",
		zap.String("race_id", r.ID),
		zap.Int("attempts", r.Attempts),
		zap.Time("release", r.Scheduler.Release),
		zap.Duration("correction", r.Scheduler.Correction),
		zap.Duration("spread", r.Scheduler.Spread))

	var wg sync.WaitGroup
	for i, plan := range plans {
		wg.Add(1)
		go func(i int, plan schedule.Plan) {
			defer wg.Done()
			outcomes[i] = newAttempt(r.ID, plan, r.Request, c).run(ctx)
		}(i, plan)
	}
	wg.Wait()

	result := Result{RaceID: r.ID, Outcomes: outcomes}
	c.log.Info("Race finished",
		zap.String("race_id", r.ID),
		zap.Bool("won", result.Won()),
		zap.Int("completed", result.Count(StateCompleted)),
		zap.Int("failed", result.Count(StateFailed)),
		zap.Int("abandoned", result.Count(StateAbandoned)))
	return result
}
