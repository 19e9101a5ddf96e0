package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/tempsense/internal/metrics"
	"github.com/nerrad567/tempsense/internal/reading"
	"github.com/nerrad567/tempsense/internal/retry"
	"github.com/nerrad567/tempsense/internal/source"
)

// Source produces one measurement per call and never fails.
type Source interface {
	Acquire(ctx context.Context) source.Measurement
}

// Transport is the publishing connection owned by the controller.
type Transport interface {
	Connect(ctx context.Context) retry.Result
	Publish(topic string, payload []byte) error
	IsConnected() bool
	Close() error
}

// Store persists readings.
type Store interface {
	Write(ctx context.Context, r reading.Reading) error
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the controller settings.
type Config struct {
	DeviceID      string
	Topic         string
	Interval      time.Duration
	PublishPolicy retry.Policy
	WriteTimeout  time.Duration // 0 means no timeout
}

// Report describes one finished cycle.
type Report struct {
	Reading    reading.Reading
	Fallback   bool
	AcquireErr error        // reason for the fallback, if any
	Publish    retry.Result // outcome of the publish stage
	PersistErr error        // nil when the store write succeeded
	Duration   time.Duration
}

// Published reports whether the reading reached the broker.
func (r Report) Published() bool {
	return r.Publish.OK()
}

// Persisted reports whether the reading was stored.
func (r Report) Persisted() bool {
	return r.PersistErr == nil
}

// Controller orchestrates cycles. It is the single owner of its Transport.
type Controller struct {
	cfg       Config
	source    Source
	transport Transport
	store     Store

	logger  Logger
	metrics *metrics.Metrics
	now     func() time.Time
	sleep   retry.Sleeper
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSleeper replaces the wait used for publish backoff and the interval.
func WithSleeper(s retry.Sleeper) Option {
	return func(c *Controller) { c.sleep = s }
}

// New creates a Controller.
//
// Parameters:
//   - cfg: Device ID, topic, interval, publish retry policy, write timeout
//   - src: Temperature source
//   - tr: Broker transport (owned by the controller from here on)
//   - st: Reading store
//
// Returns:
//   - *Controller: Ready to Run
func New(cfg Config, src Source, tr Transport, st Store, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg,
		source:    src,
		transport: tr,
		store:     st,
		logger:    noopLogger{},
		now:       time.Now,
		sleep:     retry.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects, then runs cycles separated by the interval until ctx is
// cancelled. The transport is closed on return.
//
// A failed initial connect is logged and not fatal; every publish attempt
// reconnects on demand.
func (c *Controller) Run(ctx context.Context) {
	defer c.closeTransport()

	if res := c.transport.Connect(ctx); !res.OK() {
		c.logger.Warn("initial broker connect failed, will retry each cycle",
			"outcome", res.Outcome.String(),
			"attempts", res.Attempts,
			"error", res.Err,
		)
	}
	c.metrics.SetConnected(c.transport.IsConnected())

	c.logger.Info("publish loop started",
		"device_id", c.cfg.DeviceID,
		"topic", c.cfg.Topic,
		"interval", c.cfg.Interval,
	)

	for ctx.Err() == nil {
		c.RunOnce(ctx)

		if err := c.sleep(ctx, c.cfg.Interval); err != nil {
			break
		}
	}

	c.logger.Info("publish loop stopped", "reason", context.Cause(ctx))
}

// RunOnce runs a single acquire, publish, persist cycle.
func (c *Controller) RunOnce(ctx context.Context) Report {
	start := c.now()
	stageCtx := context.WithoutCancel(ctx)

	m := c.source.Acquire(stageCtx)
	c.metrics.ObserveAcquisition(m.Fallback)
	if m.Fallback {
		c.metrics.ObserveStage(metrics.StageAcquire, "fallback")
	} else {
		c.metrics.ObserveStage(metrics.StageAcquire, "success")
	}

	r := reading.New(c.cfg.DeviceID, c.now(), m.Value)
	report := Report{Reading: r, Fallback: m.Fallback, AcquireErr: m.Err}

	report.Publish = c.publish(ctx, r)
	report.PersistErr = c.persist(stageCtx, r)
	report.Duration = c.now().Sub(start)

	temp, _ := r.Temperature.Float64()
	c.metrics.ObserveCycle(temp, r.Timestamp, report.Duration)
	c.metrics.SetConnected(c.transport.IsConnected())

	c.logger.Info("cycle complete",
		"device_id", r.DeviceID,
		"timestamp", r.Timestamp,
		"temperature", r.Temperature.String(),
		"fallback", report.Fallback,
		"published", report.Published(),
		"publish_attempts", report.Publish.Attempts,
		"persisted", report.Persisted(),
	)
	return report
}

// publish sends the reading, reconnecting before any attempt that finds the
// transport down.
func (c *Controller) publish(ctx context.Context, r reading.Reading) retry.Result {
	payload, err := reading.Encode(r)
	if err != nil {
		c.logger.Error("cannot encode reading", "error", err)
		c.metrics.ObserveStage(metrics.StagePublish, retry.Exhausted.String())
		return retry.Result{Outcome: retry.Exhausted, Err: err}
	}

	res := retry.Do(ctx, c.cfg.PublishPolicy, c.sleep,
		func(_ context.Context, _ int) error {
			if !c.transport.IsConnected() {
				cr := c.transport.Connect(ctx)
				c.metrics.ObserveStage(metrics.StageConnect, cr.Outcome.String())
				if !cr.OK() {
					return fmt.Errorf("%w: %w", ErrConnectExhausted, cr.Err)
				}
			}
			return c.transport.Publish(c.cfg.Topic, payload)
		},
		func(n int, err error, wait time.Duration) {
			c.logger.Warn("publish attempt failed",
				"attempt", n,
				"max_attempts", c.cfg.PublishPolicy.MaxAttempts,
				"retry_in", wait,
				"error", err,
			)
		},
	)

	c.metrics.ObserveStage(metrics.StagePublish, res.Outcome.String())
	if !res.OK() {
		c.logger.Error("publish gave up",
			"outcome", res.Outcome.String(),
			"attempts", res.Attempts,
			"error", res.Err,
		)
	}
	return res
}

// persist writes the reading once. Failures are logged and returned.
func (c *Controller) persist(ctx context.Context, r reading.Reading) error {
	if c.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WriteTimeout)
		defer cancel()
	}

	if err := c.store.Write(ctx, r); err != nil {
		c.metrics.ObserveStage(metrics.StagePersist, "failure")
		c.logger.Error("store write failed",
			"device_id", r.DeviceID,
			"timestamp", r.Timestamp,
			"error", err,
		)
		return err
	}

	c.metrics.ObserveStage(metrics.StagePersist, "success")
	return nil
}

func (c *Controller) closeTransport() {
	if err := c.transport.Close(); err != nil {
		c.logger.Warn("transport close failed", "error", err)
	}
	c.metrics.SetConnected(false)
}
