package schedule

import (
	"errors"
	"fmt"
	"time"
)

// DefaultMaxAuthAge bounds how far after authentication a release may lie.
// Short-lived tokens expire before a race further out could run.
const DefaultMaxAuthAge = 24 * time.Hour

// ErrPolicyRejected is returned when a race is refused before scheduling.
var ErrPolicyRejected = errors.New("release instant rejected by policy")

// Policy guards a race against credentials that will not outlive it.
type Policy struct {
	MaxAuthAge time.Duration
}

// Check rejects a release instant more than MaxAuthAge after authAt.
// A zero authAt means the credential lifetime is unknown and is accepted.
func (p Policy) Check(release, authAt time.Time) error {
	if authAt.IsZero() {
		return nil
	}
	maxAge := p.MaxAuthAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAuthAge
	}
	if gap := release.Sub(authAt); gap > maxAge {
		return fmt.Errorf("%w: release %s is %s after authentication (max %s)",
			ErrPolicyRejected, release.UTC().Format(time.RFC3339), gap.Round(time.Second), maxAge)
	}
	return nil
}
