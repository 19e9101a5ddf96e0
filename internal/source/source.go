package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"github.com/nerrad567/tempsense/internal/infrastructure/config"
	"github.com/nerrad567/tempsense/internal/metrics"
	"github.com/nerrad567/tempsense/internal/reading"
)

const (
	// maxResponseSize caps the body read from the provider.
	maxResponseSize = 1 << 20

	breakerName = "measurement-source"

	defaultTimeout = 10 * time.Second
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Measurement is the result of one acquisition.
type Measurement struct {
	Value    decimal.Decimal
	Fallback bool  // Value is synthetic
	Err      error // why the provider value was not used
}

// Source fetches temperatures from the configured provider.
type Source struct {
	url     string
	timeout time.Duration
	min     decimal.Decimal
	max     decimal.Decimal

	client  *http.Client
	breaker *gobreaker.CircuitBreaker[decimal.Decimal]
	rng     *rand.Rand
	logger  Logger
	metrics *metrics.Metrics
}

// Option configures a Source.
type Option func(*Source)

// WithRand sets the generator used for fallback values.
func WithRand(r *rand.Rand) Option {
	return func(s *Source) { s.rng = r }
}

// WithHTTPClient replaces the HTTP client. Its Timeout is left as given;
// the per-request timeout still applies through the request context.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.client = c }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(s *Source) { s.logger = l }
}

// WithMetrics records breaker transitions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Source) { s.metrics = m }
}

// New creates a Source from configuration.
//
// Parameters:
//   - cfg: Provider URL, request timeout, fallback range, breaker settings
//   - opts: Optional overrides (random source, HTTP client, logger, metrics)
//
// Returns:
//   - *Source: Ready to Fetch
func New(cfg config.SourceConfig, opts ...Option) *Source {
	s := &Source{
		url:     cfg.URL,
		timeout: cfg.Timeout,
		min:     decimal.NewFromFloat(cfg.FallbackMin),
		max:     decimal.NewFromFloat(cfg.FallbackMax),
		client:  &http.Client{},
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // Not security sensitive
		logger:  noopLogger{},
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}

	for _, opt := range opts {
		opt(s)
	}

	if n := cfg.Breaker.ConsecutiveFailures; n > 0 {
		s.breaker = gobreaker.NewCircuitBreaker[decimal.Decimal](gobreaker.Settings{
			Name:        breakerName,
			MaxRequests: 1,
			Timeout:     cfg.Breaker.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(n) //nolint:gosec // n validated positive
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				s.logger.Info("circuit breaker state change",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
				s.metrics.SetBreakerState(stateValue(to))
			},
		})
	}

	return s
}

// Fetch returns the current temperature, or a fallback value on any failure.
func (s *Source) Fetch(ctx context.Context) decimal.Decimal {
	return s.Acquire(ctx).Value
}

// Acquire is Fetch with the fallback reason exposed.
func (s *Source) Acquire(ctx context.Context) Measurement {
	v, err := s.fetchProvider(ctx)
	if err != nil {
		fb := s.fallback()
		s.logger.Warn("temperature acquisition failed, using fallback",
			"url", s.url,
			"error", err,
			"fallback", fb.String(),
		)
		return Measurement{Value: fb, Fallback: true, Err: err}
	}

	v = reading.Round(v)
	s.logger.Debug("temperature acquired", "value", v.String())
	return Measurement{Value: v}
}

// BreakerState returns the breaker state name, or "disabled".
func (s *Source) BreakerState() string {
	if s.breaker == nil {
		return "disabled"
	}
	return s.breaker.State().String()
}

func (s *Source) fetchProvider(ctx context.Context) (decimal.Decimal, error) {
	if s.breaker == nil {
		return s.fetchOnce(ctx)
	}

	v, err := s.breaker.Execute(func() (decimal.Decimal, error) {
		return s.fetchOnce(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return decimal.Decimal{}, fmt.Errorf("%w: %w", ErrBreakerOpen, err)
	}
	return v, err
}

// fetchOnce performs a single bounded HTTP request.
func (s *Source) fetchOnce(ctx context.Context) (decimal.Decimal, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.url, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: creating request: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decimal.Decimal{}, fmt.Errorf("%w: HTTP %d", ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: reading body: %w", ErrRequestFailed, err)
	}

	return parseObservation(body)
}

// observation is the subset of the provider document we read.
type observation struct {
	Value []struct {
		Value json.RawMessage `json:"value"`
	} `json:"value"`
}

// parseObservation extracts the last value from the document.
func parseObservation(body []byte) (decimal.Decimal, error) {
	var obs observation
	if err := json.Unmarshal(body, &obs); err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if len(obs.Value) == 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: empty value array", ErrNoData)
	}

	raw := obs.Value[len(obs.Value)-1].Value
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Decimal{}, fmt.Errorf("%w: last element has no value", ErrNoData)
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: %w", ErrDecode, err)
		}
	}

	v, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: value %q: %w", ErrDecode, text, err)
	}
	return v, nil
}

// fallback draws a value uniformly from [min, max], rounded to two places.
func (s *Source) fallback() decimal.Decimal {
	span := s.max.Sub(s.min)
	v := reading.Round(s.min.Add(span.Mul(decimal.NewFromFloat(s.rng.Float64()))))

	if v.LessThan(s.min) {
		return s.min
	}
	if v.GreaterThan(s.max) {
		return s.max
	}
	return v
}

// stateValue maps breaker states to the metric encoding.
func stateValue(st gobreaker.State) float64 {
	switch st {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
