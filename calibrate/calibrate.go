// Package calibrate estimates one-way network latency to the target host.
//
// A probe primes a connection with a request carrying a placeholder
// credential, then times the terminator flush until the first status bytes
// arrive. Half of that round trip, minus the time the service spends
// processing, is the adjustment subtracted from every scheduled flush.
package calibrate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/st-keller/namerace/telemetry"
	"github.com/st-keller/namerace/wire"
)

// Server processing estimates per endpoint.
const (
	AvailabilityProcessing = 40 * time.Millisecond
	CatalogProcessing      = 60 * time.Millisecond
)

const (
	DefaultSamples     = 1
	DefaultInterval    = 250 * time.Millisecond
	DefaultReadTimeout = 10 * time.Second
)

// ErrCalibration wraps every failed measurement.
var ErrCalibration = errors.New("calibration failed")

// Policy decides what a failed calibration means for the race.
type Policy int

const (
	// PolicyAbort fails the race when calibration fails.
	PolicyAbort Policy = iota
	// PolicyZero races with a zero correction when calibration fails.
	PolicyZero
)

func (p Policy) String() string {
	switch p {
	case PolicyAbort:
		return "abort"
	case PolicyZero:
		return "zero"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps a config value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "abort":
		return PolicyAbort, nil
	case "zero":
		return PolicyZero, nil
	default:
		return PolicyAbort, fmt.Errorf("unknown calibration policy %q (want abort or zero)", s)
	}
}

// Dialer opens a ready TLS connection to the target.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// Measurement is the result of a calibration.
type Measurement struct {
	Samples    []time.Duration // raw round trips, in probe order
	RTT        time.Duration   // median round trip
	Processing time.Duration   // processing estimate subtracted
	Adjustment time.Duration   // one-way latency estimate, never negative
	Clamped    bool            // rtt was below the processing estimate
	Degraded   bool            // calibration failed and PolicyZero applied
	Err        error           // failure behind a degraded measurement
}

// Correction is the value added to the release instant.
func (m Measurement) Correction() time.Duration {
	return -m.Adjustment
}

// Adjustment computes (rtt - processing) / 2 in whole milliseconds,
// truncating toward zero. A round trip shorter than the processing
// estimate is clamped to zero and reported as clamped, even when the
// truncated quotient is already zero, so the race never fires later than
// the release instant.
func Adjustment(rttMs, processingMs int64) (adj int64, clamped bool) {
	if rttMs < processingMs {
		return 0, true
	}
	return (rttMs - processingMs) / 2, false
}

// Config configures a Calibrator.
type Config struct {
	Samples     int           // probes per calibration, DefaultSamples when zero
	Interval    time.Duration // minimum spacing between probes
	ReadTimeout time.Duration
	Policy      Policy
	Tracker     *telemetry.LatencyTracker // optional
	Label       string                    // tracker target, "calibration" when empty
	Logger      *zap.Logger
}

// Calibrator runs latency probes against one target.
type Calibrator struct {
	dialer      Dialer
	samples     int
	interval    time.Duration
	readTimeout time.Duration
	policy      Policy
	tracker     *telemetry.LatencyTracker
	label       string
	log         *zap.Logger
}

// New creates a Calibrator.
func New(d Dialer, cfg Config) *Calibrator {
	if cfg.Samples <= 0 {
		cfg.Samples = DefaultSamples
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Label == "" {
		cfg.Label = "calibration"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Calibrator{
		dialer:      d,
		samples:     cfg.Samples,
		interval:    cfg.Interval,
		readTimeout: cfg.ReadTimeout,
		policy:      cfg.Policy,
		tracker:     cfg.Tracker,
		label:       cfg.Label,
		log:         cfg.Logger,
	}
}

// Calibrate probes the target and derives the adjustment. Any probe failure
// ends the calibration; the configured Policy then decides whether that is
// returned as an error or as a degraded zero measurement.
func (c *Calibrator) Calibrate(ctx context.Context, probe wire.Request, processing time.Duration) (Measurement, error) {
	m, err := c.measure(ctx, probe, processing)
	if err == nil {
		return m, nil
	}

	err = fmt.Errorf("%w: %w", ErrCalibration, err)
	if c.policy == PolicyZero {
		c.log.Warn("Calibration failed, racing with zero correction", zap.Error(err))
		return Measurement{Processing: processing, Degraded: true, Err: err}, nil
	}
	return Measurement{}, err
}

func (c *Calibrator) measure(ctx context.Context, probe wire.Request, processing time.Duration) (Measurement, error) {
	limiter := rate.NewLimiter(rate.Every(c.interval), 1)
	samples := make([]time.Duration, 0, c.samples)

	for i := 0; i < c.samples; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return Measurement{}, err
		}
		rtt, err := c.probe(ctx, probe)
		if err != nil {
			return Measurement{}, fmt.Errorf("probe %d: %w", i, err)
		}
		c.log.Debug("Calibration probe", zap.Int("probe", i), zap.Duration("rtt", rtt))
		samples = append(samples, rtt)
	}

	rtt := median(samples)
	adj, clamped := Adjustment(rtt.Milliseconds(), processing.Milliseconds())
	m := Measurement{
		Samples:    samples,
		RTT:        rtt,
		Processing: processing,
		Adjustment: time.Duration(adj) * time.Millisecond,
		Clamped:    clamped,
	}
	c.log.Info("Calibration complete",
		zap.Duration("rtt", rtt),
		zap.Duration("adjustment", m.Adjustment),
		zap.Bool("clamped", clamped),
		zap.Int("samples", len(samples)))
	return m, nil
}

// probe times one terminator flush on a fresh connection.
func (c *Calibrator) probe(ctx context.Context, req wire.Request) (time.Duration, error) {
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	p := req.NewPartial()
	if err := p.Stage(conn); err != nil {
		return 0, err
	}
	if err := conn.SetDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return 0, fmt.Errorf("failed to set deadline: %w", err)
	}

	start := time.Now()
	if err := p.Complete(conn); err != nil {
		c.trackFailure(time.Since(start), err)
		return 0, err
	}
	if _, err := wire.ReadStatus(conn); err != nil {
		c.trackFailure(time.Since(start), err)
		return 0, err
	}
	rtt := time.Since(start)

	if c.tracker != nil {
		c.tracker.TrackSuccess(c.label, rtt)
	}
	return rtt, nil
}

func (c *Calibrator) trackFailure(latency time.Duration, err error) {
	if c.tracker != nil {
		c.tracker.TrackFailure(c.label, latency, err.Error())
	}
}

func median(samples []time.Duration) time.Duration {
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
