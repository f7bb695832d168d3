package race

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/st-keller/namerace/schedule"
	"github.com/st-keller/namerace/wire"
)

// Dialer opens a ready TLS connection to the target. It is shared by all
// attempts and must be safe for concurrent use.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// Outcome is the immutable result of one attempt.
type Outcome struct {
	Index       int
	State       State // final state
	Success     bool
	Status      int // parsed status code, 0 when none was read
	Plan        schedule.Plan
	FlushedAt   time.Time // when the terminator write began
	CompletedAt time.Time // wall clock at completion or failure
	Latency     time.Duration
	Err         error   // *AttemptError unless the attempt completed
	History     []State // every state the attempt passed through
}

// Event is a progress notification from an attempt.
type Event struct {
	RaceID    string
	Attempt   int
	State     State
	Timestamp time.Time
	Status    int
	Success   bool
	Err       error
}

// Reporter receives progress events. It is called from attempt goroutines
// concurrently.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

type nopReporter struct{}

func (nopReporter) Report(Event) {}

// attempt drives one connection through its lifecycle. It owns its
// connection and buffers; nothing in it is shared with sibling attempts.
type attempt struct {
	raceID      string
	plan        schedule.Plan
	req         wire.Request
	dialer      Dialer
	clock       schedule.Clock
	readTimeout time.Duration
	reporter    Reporter

	state   State
	history []State
}

func newAttempt(raceID string, plan schedule.Plan, req wire.Request, c *Coordinator) *attempt {
	return &attempt{
		raceID:      raceID,
		plan:        plan,
		req:         req,
		dialer:      c.dialer,
		clock:       c.clock,
		readTimeout: c.readTimeout,
		reporter:    c.reporter,
		state:       StateScheduled,
		history:     []State{StateScheduled},
	}
}

func (a *attempt) moveTo(to State) {
	if err := transition(a.state, to); err != nil {
		// Only reachable through a bug in run; keep the attempt consistent.
		panic(err)
	}
	a.state = to
	a.history = append(a.history, to)
}

func (a *attempt) emit(o Outcome) {
	a.reporter.Report(Event{
		RaceID:    a.raceID,
		Attempt:   a.plan.Index,
		State:     a.state,
		Timestamp: a.clock.Now().UTC(),
		Status:    o.Status,
		Success:   o.Success,
		Err:       o.Err,
	})
}

func (a *attempt) finish(to State, o Outcome) Outcome {
	a.moveTo(to)
	o.Index = a.plan.Index
	o.State = a.state
	o.Plan = a.plan
	o.History = append([]State(nil), a.history...)
	if o.CompletedAt.IsZero() {
		o.CompletedAt = a.clock.Now().UTC()
	}
	a.emit(o)
	return o
}

func (a *attempt) abandon(op string, err error) Outcome {
	return a.finish(StateAbandoned, Outcome{Err: &AttemptError{Kind: KindAbandoned, Op: op, Err: err}})
}

func (a *attempt) fail(op string, err error, o Outcome) Outcome {
	o.Err = classify(op, err)
	return a.finish(StateFailed, o)
}

// run executes the attempt: wait, connect and stage, wait, flush, read.
func (a *attempt) run(ctx context.Context) Outcome {
	if err := a.plan.Check(a.clock.Now()); err != nil {
		return a.abandon("schedule", err)
	}
	if err := a.clock.SleepUntil(ctx, a.plan.PrestageAt); err != nil {
		return a.fail("wait", err, Outcome{})
	}

	a.moveTo(StateConnecting)
	conn, err := a.dialer.Dial(ctx)
	if err != nil {
		return a.fail("dial", err, Outcome{})
	}
	defer conn.Close()

	partial := a.req.NewPartial()
	if err := partial.Stage(conn); err != nil {
		return a.fail("stage", err, Outcome{})
	}
	a.moveTo(StateStaged)
	a.emit(Outcome{})

	if now := a.clock.Now(); a.plan.FlushAt.Before(now) {
		return a.abandon("stage", fmt.Errorf("%w: staging finished %s after the flush instant",
			schedule.ErrAlreadyReleased, now.Sub(a.plan.FlushAt)))
	}
	if err := a.clock.SleepUntil(ctx, a.plan.FlushAt); err != nil {
		return a.fail("wait", err, Outcome{})
	}
	if err := conn.SetDeadline(a.plan.FlushAt.Add(a.readTimeout)); err != nil {
		return a.fail("flush", err, Outcome{})
	}

	flushedAt := a.clock.Now()
	if err := partial.Complete(conn); err != nil {
		return a.fail("flush", err, Outcome{FlushedAt: flushedAt})
	}
	a.moveTo(StateTransmitted)
	a.moveTo(StateAwaitingResponse)

	status, err := wire.ReadStatus(conn)
	completedAt := a.clock.Now()
	o := Outcome{
		Status:      status,
		FlushedAt:   flushedAt,
		CompletedAt: completedAt.UTC(),
		Latency:     completedAt.Sub(flushedAt),
	}
	if err != nil {
		return a.fail("read", err, o)
	}
	o.Success = status == wire.StatusAccepted
	return a.finish(StateCompleted, o)
}
