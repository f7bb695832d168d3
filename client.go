package namerace

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/st-keller/namerace/calibrate"
	"github.com/st-keller/namerace/race"
	"github.com/st-keller/namerace/schedule"
	"github.com/st-keller/namerace/telemetry"
	"github.com/st-keller/namerace/transport"
	"github.com/st-keller/namerace/wire"
)

// Latency tracker targets.
const (
	TargetCalibration = "calibration"
	TargetRace        = "race"
)

// ErrNoResolver is returned by Run when the client has no ReleaseResolver.
var ErrNoResolver = errors.New("no release resolver configured")

// Credential is the bearer token used for a race. IssuedAt is the auth
// instant; zero when unknown.
type Credential struct {
	Token    string
	IssuedAt time.Time
}

// Credential lets a fixed credential act as its own TokenProvider.
func (c Credential) Credential(context.Context) (Credential, error) {
	if c.Token == "" {
		return Credential{}, fmt.Errorf("empty token")
	}
	return c, nil
}

// TokenProvider supplies the credential for a race.
type TokenProvider interface {
	Credential(ctx context.Context) (Credential, error)
}

// ReleaseResolver returns the instant a name becomes claimable.
type ReleaseResolver interface {
	ReleaseInstant(ctx context.Context, name, previousHolder string) (time.Time, error)
}

// EligibilityChecker reports whether the account behind token may change
// its name now. A nil error means it may.
type EligibilityChecker interface {
	CheckEligibility(ctx context.Context, token string) error
}

// Config holds client configuration. Zero durations fall back to the
// package defaults of the subsystem that uses them.
type Config struct {
	Host string // SNI and Host header
	Port int
	Addr string // optional dial address override, host:port

	Mode   race.Mode
	Spread time.Duration // gap between consecutive attempts
	Lead   time.Duration // pre-stage lead before each flush

	OffsetMs           int  // fire this many ms early; ignored with AutoOffset
	AutoOffset         bool // calibrate before each race
	CalibrationSamples int
	CalibrationPolicy  calibrate.Policy

	DialTimeout time.Duration
	ReadTimeout time.Duration
	MaxAuthAge  time.Duration
	EventBuffer int

	RootCAs     *x509.CertPool // system roots when nil
	Resolver    ReleaseResolver
	Tokens      TokenProvider
	Eligibility EligibilityChecker // consulted before Regular races only
	Clock       schedule.Clock
	Logger      *zap.Logger
}

// Validate checks if the config is usable.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("Host required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("Port out of range: %d", c.Port)
	}
	if c.Mode != race.Regular && c.Mode != race.Catalog {
		return fmt.Errorf("Mode invalid: %d", int(c.Mode))
	}
	if c.Spread < 0 {
		return fmt.Errorf("Spread must be >= 0")
	}
	if c.Lead < 0 {
		return fmt.Errorf("Lead must be >= 0")
	}
	if c.CalibrationSamples < 0 {
		return fmt.Errorf("CalibrationSamples must be >= 0")
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	if c.MaxAuthAge < 0 {
		return fmt.Errorf("MaxAuthAge must be >= 0")
	}
	if c.EventBuffer < 0 {
		return fmt.Errorf("EventBuffer must be >= 0")
	}
	return nil
}

// Client runs races against one host.
type Client struct {
	config      Config
	connector   *transport.Connector
	calibrator  *calibrate.Calibrator
	coordinator *race.Coordinator
	policy      schedule.Policy
	clock       schedule.Clock
	log         *zap.Logger

	events  *telemetry.EventLog
	latency *telemetry.LatencyTracker
}

// New creates a client. It does not open any connection.
func New(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Clock == nil {
		config.Clock = schedule.SystemClock{}
	}
	if config.Lead == 0 {
		config.Lead = schedule.DefaultLead
	}
	if config.MaxAuthAge == 0 {
		config.MaxAuthAge = schedule.DefaultMaxAuthAge
	}
	if config.EventBuffer == 0 {
		config.EventBuffer = telemetry.DefaultEventBuffer
	}

	connector, err := transport.NewConnector(transport.ConnectorConfig{
		Host:        config.Host,
		Port:        config.Port,
		Addr:        config.Addr,
		RootCAs:     config.RootCAs,
		DialTimeout: config.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build connector: %w", err)
	}

	c := &Client{
		config:    config,
		connector: connector,
		policy:    schedule.Policy{MaxAuthAge: config.MaxAuthAge},
		clock:     config.Clock,
		log:       config.Logger,
		events:    telemetry.NewEventLog(config.EventBuffer, config.Logger),
		latency:   telemetry.NewLatencyTracker(),
	}
	c.calibrator = calibrate.New(connector, calibrate.Config{
		Samples:     config.CalibrationSamples,
		ReadTimeout: config.ReadTimeout,
		Policy:      config.CalibrationPolicy,
		Tracker:     c.latency,
		Label:       TargetCalibration,
		Logger:      config.Logger,
	})
	c.coordinator = race.NewCoordinator(connector, race.Config{
		Clock:       config.Clock,
		ReadTimeout: config.ReadTimeout,
		Reporter:    race.ReporterFunc(c.report),
		Logger:      config.Logger,
	})

	c.log.Info("Race client initialized",
		zap.String("host", connector.Host()),
		zap.String("addr", connector.Addr()),
		zap.Stringer("mode", config.Mode),
		zap.Int("attempts", config.Mode.Attempts()))
	return c, nil
}

// GetEvents returns the event log of the client.
func (c *Client) GetEvents() *telemetry.EventLog {
	return c.events
}

// GetLatency returns the latency tracker of the client.
func (c *Client) GetLatency() *telemetry.LatencyTracker {
	return c.latency
}

// Calibrate measures the latency to the host with a probe shaped like the
// race request of the configured mode. The probe carries a placeholder
// token.
func (c *Client) Calibrate(ctx context.Context, name string) (calibrate.Measurement, error) {
	probe, err := c.config.Mode.Request(c.connector.Host(), name, wire.PlaceholderToken)
	if err != nil {
		return calibrate.Measurement{}, fmt.Errorf("failed to build probe: %w", err)
	}
	processing := calibrate.AvailabilityProcessing
	if c.config.Mode == race.Catalog {
		processing = calibrate.CatalogProcessing
	}
	return c.calibrator.Calibrate(ctx, probe, processing)
}

// Target is one race to run.
type Target struct {
	Name       string
	Release    time.Time
	Credential Credential
}

// Report is the outcome of one race with its diagnostics.
type Report struct {
	Info        telemetry.RunInfo
	Release     time.Time
	Correction  time.Duration
	Measurement *calibrate.Measurement // nil unless calibrated
	Result      race.Result
	Latency     []telemetry.LatencySummary
}

// Won reports whether the race claimed the name.
func (r Report) Won() bool { return r.Result.Won() }

// Race runs one race for t. Race-level failures (policy rejection, name
// change cooldown, request construction, calibration under PolicyAbort) are returned before any
// attempt is scheduled. Attempt failures are only reported in the Result.
func (c *Client) Race(ctx context.Context, t Target) (Report, error) {
	info := telemetry.NewRunInfo(t.Name, c.config.Mode.String(), c.connector.Host(), c.config.Mode.Attempts())
	report := Report{Info: info, Release: t.Release.UTC()}

	if err := c.policy.Check(t.Release, t.Credential.IssuedAt); err != nil {
		c.raceError("Race rejected by credential policy", info, err)
		return report, err
	}

	if c.config.Mode == race.Regular && c.config.Eligibility != nil {
		if err := c.config.Eligibility.CheckEligibility(ctx, t.Credential.Token); err != nil {
			err = fmt.Errorf("name change eligibility: %w", err)
			c.raceError("Race rejected by eligibility check", info, err)
			return report, err
		}
	}

	req, err := c.config.Mode.Request(c.connector.Host(), t.Name, t.Credential.Token)
	if err != nil {
		err = fmt.Errorf("failed to build request: %w", err)
		c.raceError("Race request invalid", info, err)
		return report, err
	}

	correction := schedule.CorrectionFromMillis(c.config.OffsetMs)
	if c.config.AutoOffset {
		m, err := c.Calibrate(ctx, t.Name)
		if err != nil {
			c.raceError("Calibration failed", info, err)
			return report, err
		}
		report.Measurement = &m
		correction = m.Correction()
		c.events.Info("Calibrated", map[string]interface{}{
			"race_id":    info.RaceID,
			"rtt_ms":     m.RTT.Milliseconds(),
			"adjust_ms":  m.Adjustment.Milliseconds(),
			"clamped":    m.Clamped,
			"degraded":   m.Degraded,
			"processing": m.Processing.Milliseconds(),
		})
	}
	report.Correction = correction

	scheduler := schedule.New(t.Release, correction, c.config.Spread)
	scheduler.Lead = c.config.Lead

	c.events.Info("Race started", info.Fields())
	report.Result = c.coordinator.Run(ctx, race.Race{
		ID:        info.RaceID,
		Request:   req,
		Scheduler: scheduler,
		Attempts:  info.Attempts,
	})
	c.trackOutcomes(report.Result.Outcomes)
	report.Latency = c.latency.Summaries()

	fields := info.Fields()
	fields["won"] = report.Won()
	c.events.Info("Race finished", fields)
	return report, nil
}

// Run resolves the release instant of name and races for it.
func (c *Client) Run(ctx context.Context, name, previousHolder string) (Report, error) {
	if c.config.Resolver == nil {
		return Report{}, ErrNoResolver
	}
	if c.config.Tokens == nil {
		return Report{}, fmt.Errorf("no token provider configured")
	}
	release, err := c.config.Resolver.ReleaseInstant(ctx, name, previousHolder)
	if err != nil {
		return Report{}, fmt.Errorf("failed to resolve release of %q: %w", name, err)
	}
	cred, err := c.config.Tokens.Credential(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to get credential: %w", err)
	}
	c.log.Info("Release resolved", zap.String("name", name), zap.Time("release", release))
	return c.Race(ctx, Target{Name: name, Release: release, Credential: cred})
}

// RunQueue races names in order and stops at the first win. A name that
// cannot be raced is skipped; its error is joined into the returned error.
func (c *Client) RunQueue(ctx context.Context, names []string, previousHolder string) ([]Report, error) {
	var (
		reports []Report
		errs    []error
	)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := c.Run(ctx, name, previousHolder)
		if err != nil {
			c.log.Warn("Skipping name", zap.String("name", name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		reports = append(reports, report)
		if report.Won() {
			break
		}
	}
	return reports, errors.Join(errs...)
}

func (c *Client) raceError(msg string, info telemetry.RunInfo, err error) {
	fields := info.Fields()
	fields["error"] = err.Error()
	c.events.Error(msg, fields)
}

func (c *Client) trackOutcomes(outcomes []race.Outcome) {
	for _, o := range outcomes {
		if o.FlushedAt.IsZero() {
			continue
		}
		if o.State == race.StateCompleted {
			c.latency.TrackSuccess(TargetRace, o.Latency)
			continue
		}
		msg := ""
		if o.Err != nil {
			msg = o.Err.Error()
		}
		c.latency.TrackFailure(TargetRace, o.Latency, msg)
	}
}

// report maps attempt progress onto the event log.
func (c *Client) report(e race.Event) {
	fields := map[string]interface{}{
		"race_id": e.RaceID,
		"attempt": e.Attempt,
		"state":   string(e.State),
		"at":      e.Timestamp.Format(time.RFC3339Nano),
	}
	if e.Status != 0 {
		fields["status"] = e.Status
	}
	if e.Err != nil {
		fields["error"] = e.Err.Error()
		fields["kind"] = string(race.KindOf(e.Err))
	}

	switch e.State {
	case race.StateCompleted:
		if e.Success {
			c.events.Info("Attempt accepted", fields)
		} else {
			c.events.Info("Attempt rejected", fields)
		}
	case race.StateFailed:
		c.events.Warn("Attempt failed", fields)
	case race.StateAbandoned:
		c.events.Warn("Attempt abandoned", fields)
	default:
		c.events.Debug("Attempt "+string(e.State), fields)
	}
}
