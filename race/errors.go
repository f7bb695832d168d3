package race

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/st-keller/namerace/schedule"
	"github.com/st-keller/namerace/wire"
)

// Kind classifies why an attempt did not complete.
type Kind string

const (
	KindTransport Kind = "transport"
	KindProtocol  Kind = "protocol"
	KindTimeout   Kind = "timeout"
	KindAbandoned Kind = "abandoned"
	KindCanceled  Kind = "canceled"
)

// AttemptError is the error carried by a failed or abandoned attempt.
type AttemptError struct {
	Kind Kind
	Op   string // dial, stage, flush, read, wait
	Err  error
}

func (e *AttemptError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// classify wraps err with the kind matching its cause.
func classify(op string, err error) *AttemptError {
	var ne net.Error
	switch {
	case errors.Is(err, schedule.ErrAlreadyReleased):
		return &AttemptError{Kind: KindAbandoned, Op: op, Err: err}
	case errors.Is(err, context.Canceled):
		return &AttemptError{Kind: KindCanceled, Op: op, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return &AttemptError{Kind: KindTimeout, Op: op, Err: err}
	case errors.Is(err, wire.ErrMalformedStatus):
		return &AttemptError{Kind: KindProtocol, Op: op, Err: err}
	default:
		return &AttemptError{Kind: KindTransport, Op: op, Err: err}
	}
}

// KindOf returns the Kind of err, or "" when err is not an AttemptError.
func KindOf(err error) Kind {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
