package adapter

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// matchTopic checks if a topic matches a topic filter with MQTT wildcards.
// Supports:
// - '+' matches a single level
// - '#' matches multiple levels (must be last character)
func matchTopic(filter, topic string) bool {
	// MQTT-4.7.2-1: a Topic Filter starting with a wildcard character
	// (# or +) must not match a Topic Name beginning with a $ character.
	if len(topic) > 0 && topic[0] == '$' {
		if len(filter) > 0 && (filter[0] == '+' || filter[0] == '#') {
			return false
		}
	}

	fIdx := 0
	tIdx := 0
	fLen := len(filter)
	tLen := len(topic)

	for fIdx <= fLen {
		var fLevel string
		var fNext int

		if idx := strings.IndexByte(filter[fIdx:], '/'); idx >= 0 {
			fNext = fIdx + idx
			fLevel = filter[fIdx:fNext]
		} else {
			fNext = fLen
			fLevel = filter[fIdx:]
		}

		if fLevel == "#" {
			return true
		}

		if tIdx > tLen {
			return false
		}

		var tLevel string
		var tNext int

		if idx := strings.IndexByte(topic[tIdx:], '/'); idx >= 0 {
			tNext = tIdx + idx
			tLevel = topic[tIdx:tNext]
		} else {
			tNext = tLen
			tLevel = topic[tIdx:]
		}

		if fLevel == "+" {
			// Single-level wildcard matches this level
		} else if fLevel != tLevel {
			return false
		}

		if fNext == fLen {
			fIdx = fLen + 1
		} else {
			fIdx = fNext + 1
		}

		if tNext == tLen {
			tIdx = tLen + 1
		} else {
			tIdx = tNext + 1
		}
	}

	return tIdx > tLen
}

// matchSubscriptions implements §4.8 Subscription Match: among the
// subscriptions whose filter matches topic AND whose CreatedAt is strictly
// before messageTime (P7), pick the highest granted QoS, capped at
// serverMax and short-circuiting once that cap is reached.
func matchSubscriptions(subs []Subscription, topic string, messageTime time.Time, serverMax QoS) (best QoS, matched bool) {
	for _, sub := range subs {
		if !sub.CreatedAt.Before(messageTime) {
			continue
		}
		if !matchTopic(sub.TopicFilter, topic) {
			continue
		}
		q := minQoS(sub.QoS, serverMax)
		if !matched || q > best {
			best = q
			matched = true
		}
		if best >= serverMax {
			break
		}
	}
	return best, matched
}

// MQTT specification limits (defaults when not configured).
const (
	DefaultMaxTopicLength    = 65535
	DefaultMaxPayloadSize    = 268435455 // 256MB - 1
	DefaultMaxIncomingPacket = 268435455 // 256MB - 1
)

func getLimit(configured, defaultLimit int) int {
	if configured > 0 {
		return configured
	}
	return defaultLimit
}

// validateSubscribeTopic validates a topic filter for subscribing. Filters
// may contain wildcards but must follow MQTT rules.
func validateSubscribeTopic(topic string, maxTopicLength int) error {
	if topic == "" {
		return fmt.Errorf("topic filter cannot be empty")
	}

	maxLen := getLimit(maxTopicLength, DefaultMaxTopicLength)
	if len(topic) > maxLen {
		return fmt.Errorf("topic filter length %d exceeds maximum %d", len(topic), maxLen)
	}

	if strings.Contains(topic, "\x00") {
		return fmt.Errorf("topic filter contains null byte which is not allowed")
	}

	if !utf8.ValidString(topic) {
		return fmt.Errorf("topic filter is not valid UTF-8")
	}

	parts := strings.Split(topic, "/")
	for i, part := range parts {
		if strings.Contains(part, "+") && part != "+" {
			return fmt.Errorf("single-level wildcard '+' must occupy entire topic level")
		}
		if strings.Contains(part, "#") {
			if part != "#" {
				return fmt.Errorf("multi-level wildcard '#' must occupy entire topic level")
			}
			if i != len(parts)-1 {
				return fmt.Errorf("multi-level wildcard '#' must be the last character")
			}
		}
	}

	return nil
}

// validatePayload validates message payload size against the configured
// maximum.
func validatePayload(payload []byte, maxPayloadSize int) error {
	maxSize := getLimit(maxPayloadSize, DefaultMaxPayloadSize)
	if len(payload) > maxSize {
		return fmt.Errorf("payload size %d exceeds maximum %d", len(payload), maxSize)
	}
	return nil
}
