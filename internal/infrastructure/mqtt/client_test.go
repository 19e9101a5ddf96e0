package mqtt

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/tempsense/internal/infrastructure/config"
	"github.com/nerrad567/tempsense/internal/retry"
)

const testTopic = "iot/weather"

// testConfig returns a plain-TCP configuration with a 3-attempt connect policy.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "tempsense-test",
		},
		Topic: testTopic,
		QoS:   1,
		ConnectRetry: config.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 5 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   1,
		},
	}
}

// newTestClient returns a client wired to a fake broker and a sleeper that
// records waits instead of sleeping.
func newTestClient(t *testing.T, cfg config.MQTTConfig) (*Client, *fakeBroker, *[]time.Duration) {
	t.Helper()

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	broker := &fakeBroker{}
	c.newClient = broker.newClient

	waits := &[]time.Duration{}
	c.SetSleeper(func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	})
	return c, broker, waits
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_InitialState(t *testing.T) {
	c, _, _ := newTestClient(t, testConfig())

	if c.State() != Disconnected {
		t.Errorf("State() = %v, want disconnected", c.State())
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true before Connect")
	}
	if c.ClientID() != "tempsense-test" {
		t.Errorf("ClientID() = %q, want configured ID", c.ClientID())
	}
}

func TestNew_GeneratedClientID(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = ""
	cfg.Broker.ClientIDPrefix = "sensor"

	a, _, _ := newTestClient(t, cfg)
	b, _, _ := newTestClient(t, cfg)

	if !strings.HasPrefix(a.ClientID(), "sensor-") {
		t.Errorf("ClientID() = %q, want sensor-<uuid>", a.ClientID())
	}
	if len(a.ClientID()) != len("sensor-")+36 {
		t.Errorf("ClientID() = %q, want a 36 character UUID suffix", a.ClientID())
	}
	if a.ClientID() == b.ClientID() {
		t.Error("generated client IDs should differ between clients")
	}
}

func TestNew_InvalidQoS(t *testing.T) {
	cfg := testConfig()
	cfg.QoS = 3

	if _, err := New(cfg); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("New() error = %v, want ErrInvalidQoS", err)
	}
}

func TestNew_OptionsDisableAutoReconnect(t *testing.T) {
	c, broker, _ := newTestClient(t, testConfig())
	c.Connect(context.Background())

	opts := broker.options
	if opts.AutoReconnect || opts.ConnectRetry {
		t.Error("paho auto-reconnect and connect-retry must be disabled")
	}
	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker URL = %q, want tcp://127.0.0.1:1883", got)
	}
	if opts.WillEnabled {
		t.Error("LWT should not be set without a status topic")
	}
}

// =============================================================================
// Connect
// =============================================================================

func TestConnect_Success(t *testing.T) {
	c, broker, waits := newTestClient(t, testConfig())

	res := c.Connect(context.Background())

	if !res.OK() || res.Attempts != 1 {
		t.Fatalf("Connect() = %+v, want success on first attempt", res)
	}
	if c.State() != Connected {
		t.Errorf("State() = %v, want connected", c.State())
	}
	if broker.connectCalls != 1 || len(*waits) != 0 {
		t.Errorf("connect calls = %d, waits = %v", broker.connectCalls, *waits)
	}
}

func TestConnect_RetriesThenSucceeds(t *testing.T) {
	c, broker, waits := newTestClient(t, testConfig())
	broker.connectFailures = 2

	res := c.Connect(context.Background())

	if !res.OK() || res.Attempts != 3 {
		t.Fatalf("Connect() = %+v, want success on attempt 3", res)
	}
	if len(*waits) != 2 || (*waits)[0] != 5*time.Second {
		t.Errorf("waits = %v, want two 5s waits", *waits)
	}
}

func TestConnect_ExhaustsAndStaysDisconnected(t *testing.T) {
	c, broker, waits := newTestClient(t, testConfig())
	broker.connectFailures = 100

	res := c.Connect(context.Background())

	if res.Outcome != retry.Exhausted {
		t.Fatalf("Outcome = %v, want exhausted", res.Outcome)
	}
	if res.Attempts != 3 || broker.connectCalls != 3 {
		t.Errorf("attempts = %d, connect calls = %d; want 3", res.Attempts, broker.connectCalls)
	}
	if !errors.Is(res.Err, ErrConnectionFailed) {
		t.Errorf("Err = %v, want ErrConnectionFailed", res.Err)
	}
	if c.State() != Disconnected {
		t.Errorf("State() = %v, want disconnected", c.State())
	}
	if len(*waits) != 2 {
		t.Errorf("waits = %v, want 2", *waits)
	}
}

func TestConnect_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectRetry.MaxAttempts = 1
	c, broker, _ := newTestClient(t, cfg)
	broker.connectHang = true

	res := c.Connect(context.Background())

	if res.Outcome != retry.Exhausted || !errors.Is(res.Err, ErrConnectionFailed) {
		t.Fatalf("Connect() = %+v, want exhausted with ErrConnectionFailed", res)
	}
	if got := broker.last().disconnects; len(got) != 1 {
		t.Errorf("timed out client disconnects = %v, want one", got)
	}
}

func TestConnect_AlreadyConnectedIsNoop(t *testing.T) {
	c, broker, _ := newTestClient(t, testConfig())
	c.Connect(context.Background())

	res := c.Connect(context.Background())

	if !res.OK() || res.Attempts != 0 {
		t.Errorf("second Connect() = %+v, want no-op success", res)
	}
	if broker.connectCalls != 1 {
		t.Errorf("connect calls = %d, want 1", broker.connectCalls)
	}
}

func TestConnect_CancelledStopsLoop(t *testing.T) {
	c, broker, _ := newTestClient(t, testConfig())
	broker.connectFailures = 100

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.Connect(ctx)

	if res.Outcome != retry.RetryableFailure || broker.connectCalls != 1 {
		t.Errorf("Connect() = %+v after %d calls, want retryable failure after 1", res, broker.connectCalls)
	}
	if c.State() != Disconnected {
		t.Errorf("State() = %v, want disconnected", c.State())
	}
}

func TestConnect_AfterClose(t *testing.T) {
	c, _, _ := newTestClient(t, testConfig())
	_ = c.Close()

	if res := c.Connect(context.Background()); !errors.Is(res.Err, ErrClientClosed) {
		t.Errorf("Connect() after Close = %+v, want ErrClientClosed", res)
	}
}

// =============================================================================
// Publish
// =============================================================================

func TestPublish_Connected(t *testing.T) {
	c, broker, _ := newTestClient(t, testConfig())
	c.Connect(context.Background())

	payload := []byte(`{"deviceId":"sensor-01","temperature":"22.5","timestamp":1700000000}`)
	if err := c.Publish(testTopic, payload); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msgs := broker.messages(testTopic)
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].qos != 1 || msgs[0].retained {
		t.Errorf("qos = %d, retained = %v; want 1, false", msgs[0].qos, msgs[0].retained)
	}
	if string(msgs[0].payload) != string(payload) {
		t.Errorf("payload = %s", msgs[0].payload)
	}
}

func TestPublish_NotConnected(t *testing.T) {
	c, broker, _ := newTestClient(t, testConfig())

	if err := c.Publish(testTopic, []byte("{}")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if len(broker.published) != 0 {
		t.Error("nothing should reach the broker while disconnected")
	}
}

func TestPublish_FailureDisconnects(t *testing.T) {
	c, broker, _ := newTestClient(t, testConfig())
	c.Connect(context.Background())
	broker.set(func(b *fakeBroker) { b.publishErr = errors.New("broken pipe") })

	err := c.Publish(testTopic, []byte("{}"))

	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("Publish() error = %v, want ErrPublishFailed", err)
	}
	if c.State() != Disconnected {
		t.Errorf("State() = %v, want disconnected after publish failure", c.State())
	}
	if got := broker.last().disconnects; len(got) != 1 || got[0] != 0 {
		t.Errorf("disconnects = %v, want one immediate disconnect", got)
	}
}

func TestPublish_TimeoutDisconnects(t *testing.T) {
	c, broker, _ := newTestClient(t, testConfig())
	c.Connect(context.Background())
	broker.set(func(b *fakeBroker) { b.publishHang = true })

	if err := c.Publish(testTopic, []byte("{}")); !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("Publish() error = %v, want ErrPublishFailed", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after publish timeout")
	}
}

func TestPublish_ReconnectAfterFailure(t *testing.T) {
	c, broker, _ := newTestClient(t, testConfig())
	c.Connect(context.Background())
	broker.set(func(b *fakeBroker) { b.publishErr = errors.New("reset") })
	_ = c.Publish(testTopic, []byte("{}"))
	broker.set(func(b *fakeBroker) { b.publishErr = nil })

	if res := c.Connect(context.Background()); !res.OK() || res.Attempts != 1 {
		t.Fatalf("reconnect = %+v, want success", res)
	}
	if err := c.Publish(testTopic, []byte("{}")); err != nil {
		t.Errorf("Publish() after reconnect error = %v", err)
	}
	if broker.connectCalls != 2 {
		t.Errorf("connect calls = %d, want 2", broker.connectCalls)
	}
}

func TestPublish_InvalidInput(t *testing.T) {
	c, _, _ := newTestClient(t, testConfig())
	c.Connect(context.Background())

	if err := c.Publish("iot/#", []byte("{}")); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("wildcard topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish(testTopic, make([]byte, maxPayloadSize+1)); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload error = %v, want ErrPublishFailed", err)
	}
	if !c.IsConnected() {
		t.Error("input validation must not change the connection state")
	}
}

// =============================================================================
// Connection loss, Close, HealthCheck
// =============================================================================

func TestConnectionLost(t *testing.T) {
	c, broker, _ := newTestClient(t, testConfig())
	c.Connect(context.Background())

	broker.options.OnConnectionLost(broker.last(), errors.New("keepalive timeout"))

	if c.State() != Disconnected {
		t.Errorf("State() = %v, want disconnected", c.State())
	}
}

func TestConnectionLost_StaleClientIgnored(t *testing.T) {
	c, broker, _ := newTestClient(t, testConfig())
	c.Connect(context.Background())
	stale := &fakePaho{broker: broker}

	broker.options.OnConnectionLost(stale, errors.New("old connection"))

	if c.State() != Connected {
		t.Errorf("State() = %v, want connected", c.State())
	}
}

func TestClose_Idempotent(t *testing.T) {
	c, broker, _ := newTestClient(t, testConfig())
	c.Connect(context.Background())

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if got := broker.last().disconnects; len(got) != 1 || got[0] != defaultDisconnectQuiesce {
		t.Errorf("disconnects = %v, want one quiesced disconnect", got)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}

func TestClose_NeverConnected(t *testing.T) {
	c, _, _ := newTestClient(t, testConfig())
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestStatusTopic(t *testing.T) {
	cfg := testConfig()
	cfg.StatusTopic = "iot/weather/status"
	c, broker, _ := newTestClient(t, cfg)

	c.Connect(context.Background())
	if !broker.options.WillEnabled || broker.options.WillTopic != cfg.StatusTopic || !broker.options.WillRetained {
		t.Error("expected a retained LWT on the status topic")
	}

	broker.set(func(b *fakeBroker) { b.publishErr = errors.New("gone") })
	if err := c.Close(); err != nil {
		t.Errorf("Close() must swallow the offline status error, got %v", err)
	}
	broker.set(func(b *fakeBroker) { b.publishErr = nil })

	msgs := broker.messages(cfg.StatusTopic)
	if len(msgs) != 1 || !strings.Contains(string(msgs[0].payload), `"status":"online"`) || !msgs[0].retained {
		t.Errorf("status messages = %+v, want one retained online status", msgs)
	}
}

func TestHealthCheck(t *testing.T) {
	c, _, _ := newTestClient(t, testConfig())

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() before connect = %v, want ErrNotConnected", err)
	}

	c.Connect(context.Background())
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) = %v, want context.Canceled", err)
	}
}

func TestConnectionState_String(t *testing.T) {
	for s, want := range map[ConnectionState]string{
		Disconnected:       "disconnected",
		Connecting:         "connecting",
		Connected:          "connected",
		ConnectionState(9): "unknown",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}

// =============================================================================
// TLS
// =============================================================================

// writeTestPKI writes a self-signed CA certificate plus a client key pair
// signed by it, returning the three PEM paths.
func writeTestPKI(t *testing.T) (caFile, certFile, keyFile string) {
	t.Helper()
	dir := t.TempDir()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate CA key: %v", err)
	}
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "tempsense test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create CA cert: %v", err)
	}

	clientKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	clientTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "sensor-01"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	clientDER, err := x509.CreateCertificate(rand.Reader, clientTmpl, caTmpl, &clientKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create client cert: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(clientKey)
	if err != nil {
		t.Fatalf("marshal client key: %v", err)
	}

	write := func(name, blockType string, der []byte) string {
		path := filepath.Join(dir, name)
		data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return path
	}

	return write("ca.pem", "CERTIFICATE", caDER),
		write("client.pem", "CERTIFICATE", clientDER),
		write("client.key", "EC PRIVATE KEY", keyDER)
}

func TestBuildTLSConfig(t *testing.T) {
	ca, cert, key := writeTestPKI(t)

	tlsCfg, err := buildTLSConfig(config.MQTTTLSConfig{Enabled: true, CAFile: ca, CertFile: cert, KeyFile: key}, "broker.example.com")
	if err != nil {
		t.Fatalf("buildTLSConfig() error = %v", err)
	}

	if tlsCfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", tlsCfg.MinVersion)
	}
	if tlsCfg.ServerName != "broker.example.com" {
		t.Errorf("ServerName = %q", tlsCfg.ServerName)
	}
	if len(tlsCfg.Certificates) != 1 || tlsCfg.RootCAs == nil {
		t.Error("expected one client certificate and a root CA pool")
	}
}

func TestBuildTLSConfig_Errors(t *testing.T) {
	ca, cert, key := writeTestPKI(t)
	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cfg  config.MQTTTLSConfig
	}{
		{"missing CA", config.MQTTTLSConfig{CAFile: "/nonexistent/ca.pem", CertFile: cert, KeyFile: key}},
		{"CA without certificates", config.MQTTTLSConfig{CAFile: garbage, CertFile: cert, KeyFile: key}},
		{"missing key", config.MQTTTLSConfig{CAFile: ca, CertFile: cert, KeyFile: "/nonexistent/key.pem"}},
		{"mismatched pair", config.MQTTTLSConfig{CAFile: ca, CertFile: cert, KeyFile: garbage}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildTLSConfig(tt.cfg, "localhost"); !errors.Is(err, ErrTLSConfig) {
				t.Errorf("buildTLSConfig() error = %v, want ErrTLSConfig", err)
			}
		})
	}
}

func TestNew_TLSEnabled(t *testing.T) {
	ca, cert, key := writeTestPKI(t)
	cfg := testConfig()
	cfg.Broker.Port = 8883
	cfg.TLS = config.MQTTTLSConfig{Enabled: true, CAFile: ca, CertFile: cert, KeyFile: key}

	c, broker, _ := newTestClient(t, cfg)
	c.Connect(context.Background())

	if got := broker.options.Servers[0].String(); got != "ssl://127.0.0.1:8883" {
		t.Errorf("broker URL = %q, want ssl://127.0.0.1:8883", got)
	}
	if broker.options.TLSConfig == nil || broker.options.TLSConfig.MinVersion != tls.VersionTLS12 {
		t.Error("expected TLS 1.2+ config on the paho options")
	}
}

func TestNew_TLSMissingFiles(t *testing.T) {
	cfg := testConfig()
	cfg.TLS = config.MQTTTLSConfig{Enabled: true, CAFile: "/nonexistent/ca.pem"}

	if _, err := New(cfg); !errors.Is(err, ErrTLSConfig) {
		t.Errorf("New() error = %v, want ErrTLSConfig", err)
	}
}

// =============================================================================
// Topics
// =============================================================================

func TestValidatePublishTopic(t *testing.T) {
	tests := []struct {
		topic string
		valid bool
	}{
		{"iot/weather", true},
		{"iot/weather/sensor-01", true},
		{"", false},
		{"iot/+/weather", false},
		{"iot/#", false},
		{"iot/\x00", false},
		{strings.Repeat("a", maxTopicLength+1), false},
	}

	for _, tt := range tests {
		err := ValidatePublishTopic(tt.topic)
		if tt.valid && err != nil {
			t.Errorf("ValidatePublishTopic(%.20q) = %v, want nil", tt.topic, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidTopic) {
			t.Errorf("ValidatePublishTopic(%.20q) = %v, want ErrInvalidTopic", tt.topic, err)
		}
	}
}
