// Package mqtt provides the publishing transport for tempsense.
//
// A Client owns one connection to an MQTT broker and exposes its lifecycle
// as an explicit ConnectionState:
//
//	Disconnected --Connect--> Connecting --ok--> Connected
//	     ^                        |                  |
//	     +------- exhausted ------+                  |
//	     +---- publish failure / connection lost ----+
//
// Connect retries according to the configured policy and reports a
// retry.Result. Publish is a single attempt. Reconnecting is always the
// caller's decision; paho's auto-reconnect is disabled.
//
// # Security
//
// With TLS enabled the client presents a certificate and verifies the
// broker against a private root CA (mutual TLS, version 1.2 or later), as
// required by managed IoT brokers.
//
// # Status topic
//
// If status_topic is configured, the client registers a retained Last Will
// ("offline", unexpected_disconnect), publishes "online" after connecting,
// and "offline" (graceful_shutdown) on Close.
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if res := client.Connect(ctx); !res.OK() {
//	    // retry on the next cycle
//	}
//	err = client.Publish(cfg.MQTT.Topic, payload)
package mqtt
