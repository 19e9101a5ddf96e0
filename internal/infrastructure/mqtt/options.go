package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/nerrad567/tempsense/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds a single connect attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for a PUBACK.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on Close.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultClientIDPrefix is used when neither a client ID nor a prefix is configured.
	defaultClientIDPrefix = "sensor"

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// clientIDFor returns the configured client ID, or "<prefix>-<uuid>".
func clientIDFor(cfg config.MQTTBrokerConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	prefix := cfg.ClientIDPrefix
	if prefix == "" {
		prefix = defaultClientIDPrefix
	}
	return prefix + "-" + uuid.NewString()
}

// buildTLSConfig loads the mutual TLS credentials named in cfg.
//
// Parameters:
//   - cfg: Paths to the root CA, client certificate, and private key (PEM)
//   - serverName: Broker host name checked against its certificate
//
// Returns:
//   - *tls.Config: TLS 1.2+ config presenting the client certificate
//   - error: ErrTLSConfig if a file is missing or malformed
func buildTLSConfig(cfg config.MQTTTLSConfig, serverName string) (*tls.Config, error) {
	caPEM, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading CA file: %w", ErrTLSConfig, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("%w: no certificates found in %s", ErrTLSConfig, cfg.CAFile)
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: loading client key pair: %w", ErrTLSConfig, err)
	}

	return &tls.Config{
		MinVersion:   tlsMinVersion,
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		ServerName:   serverName,
	}, nil
}

// buildClientOptions creates paho options for one connection.
//
// Auto-reconnect and connect-retry are switched off: the owner of the
// Client decides when to reconnect, and each Connect call is bounded by the
// configured retry policy instead of paho's own loop.
func buildClientOptions(cfg config.MQTTConfig, clientID string, tlsConfig *tls.Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if tlsConfig != nil {
		scheme = "ssl"
		opts.SetTLSConfig(tlsConfig)
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.StatusTopic != "" {
		opts.SetBinaryWill(cfg.StatusTopic, statusPayload(clientID, "offline", "unexpected_disconnect"), byte(cfg.QoS), true)
	}

	return opts
}

// status is the retained document written to the status topic.
type status struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func statusPayload(clientID, state, reason string) []byte {
	data, err := json.Marshal(status{
		Status:    state,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return []byte(`{"status":"` + state + `"}`)
	}
	return data
}
