package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends payload to topic with the configured QoS, not retained.
//
// Publish never retries. Any transport failure or acknowledgement timeout
// moves the client to Disconnected so the owner knows to Connect again.
//
// Parameters:
//   - topic: Publish topic (no wildcards)
//   - payload: Message body, at most 1MB
//
// Returns:
//   - error: ErrNotConnected unless Connected, ErrInvalidTopic, or
//     ErrPublishFailed wrapping the cause
func (c *Client) Publish(topic string, payload []byte) error {
	if err := ValidatePublishTopic(topic); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	c.mu.Lock()
	cl := c.client
	connected := c.state == Connected
	c.mu.Unlock()

	if !connected || cl == nil {
		return ErrNotConnected
	}

	token := cl.Publish(topic, c.qos, false, payload)
	if !token.WaitTimeout(c.publishTimeout) {
		c.markFailed(cl)
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, c.publishTimeout)
	}
	if err := token.Error(); err != nil {
		c.markFailed(cl)
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
