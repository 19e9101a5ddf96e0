package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/tempsense/internal/infrastructure/config"
	"github.com/nerrad567/tempsense/internal/retry"
)

// ConnectionState is the lifecycle state of a Client.
type ConnectionState int

const (
	// Disconnected is the initial state and the state after any failure.
	Disconnected ConnectionState = iota

	// Connecting is held while Connect is running its attempts.
	Connecting

	// Connected means the last connect succeeded and nothing has failed since.
	Connected
)

// String returns the state name used in logs.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
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

// Client is a single-owner MQTT publishing connection with an explicit
// ConnectionState.
//
// It never reconnects on its own. A failed publish or a broker-reported
// connection loss moves it to Disconnected, and the owner calls Connect
// again when it next needs the connection.
//
// Thread Safety:
//   - The state is guarded by a mutex because paho reports connection loss
//     from its own goroutine. Connect, Publish and Close are meant to be
//     called from one goroutine.
type Client struct {
	cfg      config.MQTTConfig
	clientID string
	qos      byte
	options  *pahomqtt.ClientOptions

	policy retry.Policy
	sleep  retry.Sleeper
	logger Logger

	// newClient builds the paho client for each connect attempt.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	connectTimeout time.Duration
	publishTimeout time.Duration

	mu     sync.Mutex
	state  ConnectionState
	client pahomqtt.Client
	closed bool
}

// New creates a Disconnected client from configuration.
//
// No network I/O happens here. TLS credentials are loaded eagerly so a
// missing certificate fails at startup rather than on the first connect.
//
// Parameters:
//   - cfg: MQTT configuration (broker, TLS paths, topic, QoS, connect retry)
//
// Returns:
//   - *Client: Disconnected client; call Connect before Publish
//   - error: ErrInvalidQoS or ErrTLSConfig
func New(cfg config.MQTTConfig) (*Client, error) {
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled {
		var err error
		tlsConfig, err = buildTLSConfig(cfg.TLS, cfg.Broker.Host)
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		cfg:            cfg,
		clientID:       clientIDFor(cfg.Broker),
		qos:            byte(cfg.QoS),
		policy:         retry.Policy(cfg.ConnectRetry),
		sleep:          retry.Sleep,
		logger:         noopLogger{},
		newClient:      pahomqtt.NewClient,
		connectTimeout: defaultConnectTimeout + time.Second,
		publishTimeout: defaultPublishTimeout,
	}

	c.options = buildClientOptions(cfg, c.clientID, tlsConfig)
	c.options.SetConnectionLostHandler(c.handleConnectionLost)

	return c, nil
}

// SetLogger sets the logger for connection events.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// SetSleeper replaces the wait used between connect attempts.
func (c *Client) SetSleeper(sleep retry.Sleeper) {
	if sleep == nil {
		sleep = retry.Sleep
	}
	c.sleep = sleep
}

// ClientID returns the MQTT client identifier in use.
func (c *Client) ClientID() string {
	return c.clientID
}

// Connect establishes the broker connection, retrying per the connect policy.
//
// Calling Connect while Connected is a no-op success with zero attempts.
// On exhaustion the client stays Disconnected. Cancelling ctx stops the
// loop during a backoff wait but never aborts an attempt in flight.
//
// Returns:
//   - retry.Result: Success, Exhausted, or RetryableFailure on cancellation
func (c *Client) Connect(ctx context.Context) retry.Result {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return retry.Result{Outcome: retry.Exhausted, Err: ErrClientClosed}
	case c.state == Connected:
		c.mu.Unlock()
		return retry.Result{Outcome: retry.Success}
	}
	c.state = Connecting
	c.mu.Unlock()

	res := retry.Do(ctx, c.policy, c.sleep,
		func(_ context.Context, n int) error {
			return c.connectOnce(n)
		},
		func(n int, err error, wait time.Duration) {
			c.logger.Warn("mqtt connect attempt failed",
				"attempt", n,
				"max_attempts", c.policy.MaxAttempts,
				"retry_in", wait,
				"error", err,
			)
		},
	)

	if !res.OK() {
		c.setState(Disconnected)
		c.logger.Error("mqtt connect gave up",
			"outcome", res.Outcome.String(),
			"attempts", res.Attempts,
			"error", res.Err,
		)
		return res
	}

	c.logger.Info("mqtt connected",
		"broker", c.cfg.Broker.Host,
		"client_id", c.clientID,
		"attempts", res.Attempts,
	)
	return res
}

// connectOnce runs a single paho connect with a fresh client.
func (c *Client) connectOnce(attempt int) error {
	cl := c.newClient(c.options)
	c.logger.Debug("mqtt connecting", "attempt", attempt, "client_id", c.clientID)

	token := cl.Connect()
	if !token.WaitTimeout(c.connectTimeout) {
		cl.Disconnect(0)
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, c.connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.mu.Lock()
	c.client = cl
	c.state = Connected
	c.mu.Unlock()

	if c.cfg.StatusTopic != "" {
		// Best effort; the retained LWT covers the offline case.
		cl.Publish(c.cfg.StatusTopic, c.qos, true, statusPayload(c.clientID, "online", ""))
	}
	return nil
}

// handleConnectionLost is invoked by paho from its own goroutine.
func (c *Client) handleConnectionLost(cl pahomqtt.Client, err error) {
	c.mu.Lock()
	if cl != c.client {
		c.mu.Unlock()
		return
	}
	c.state = Disconnected
	c.mu.Unlock()

	c.logger.Warn("mqtt connection lost", "error", err)
}

// markFailed moves to Disconnected after a publish failure and tears down
// the transport if paho still holds it open.
func (c *Client) markFailed(cl pahomqtt.Client) {
	c.mu.Lock()
	if cl == c.client {
		c.state = Disconnected
	}
	c.mu.Unlock()

	if cl.IsConnectionOpen() {
		cl.Disconnect(0)
	}
}

func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the state is Connected.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// Close gracefully disconnects from the broker. It is idempotent.
//
// When a status topic is configured and the client is Connected, a retained
// graceful offline status is published first. Failures on the way out are
// logged, never returned.
//
// Returns:
//   - error: Always nil
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cl := c.client
	wasConnected := c.state == Connected
	c.state = Disconnected
	c.mu.Unlock()

	if cl == nil {
		return nil
	}

	if wasConnected && c.cfg.StatusTopic != "" {
		token := cl.Publish(c.cfg.StatusTopic, c.qos, true, statusPayload(c.clientID, "offline", "graceful_shutdown"))
		if !token.WaitTimeout(c.publishTimeout) {
			c.logger.Warn("mqtt offline status timed out", "topic", c.cfg.StatusTopic)
		} else if err := token.Error(); err != nil {
			c.logger.Warn("mqtt offline status failed", "topic", c.cfg.StatusTopic, "error", err)
		}
	}

	cl.Disconnect(defaultDisconnectQuiesce)
	c.logger.Info("mqtt disconnected", "client_id", c.clientID)
	return nil
}

// HealthCheck reports whether the connection is usable.
//
// Returns:
//   - error: nil if Connected, ErrNotConnected otherwise, or ctx.Err() wrapped
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}
