package mqtt

import (
	"fmt"
	"strings"
)

// maxTopicLength is the MQTT limit on a UTF-8 encoded topic name.
const maxTopicLength = 65535

// ValidatePublishTopic checks that topic can be published to.
//
// Publish topics must be non-empty, contain no wildcards (+ or #), and fit
// the MQTT length limit.
//
// Returns:
//   - error: ErrInvalidTopic describing the problem, nil if valid
func ValidatePublishTopic(topic string) error {
	switch {
	case topic == "":
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	case strings.ContainsAny(topic, "+#"):
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidTopic, topic)
	case len(topic) > maxTopicLength:
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidTopic, len(topic), maxTopicLength)
	case strings.ContainsRune(topic, 0):
		return fmt.Errorf("%w: topic contains a NUL character", ErrInvalidTopic)
	}
	return nil
}
