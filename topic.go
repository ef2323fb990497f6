package mqttier

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	topicSeparator      = '/'
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
	sharedPrefix        = "$share/"
)

// ValidateTopicName checks a topic a message can be published to.
func ValidateTopicName(topic string) error {
	switch {
	case topic == "":
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	case len(topic) > maxUint16:
		return &EncodingError{Field: "topic", Length: len(topic), err: ErrStringTooLong}
	case !utf8.ValidString(topic):
		return fmt.Errorf("%w: not UTF-8", ErrInvalidTopic)
	case strings.ContainsAny(topic, "+#\x00"):
		return fmt.Errorf("%w: %q contains a wildcard or NUL", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateTopicFilter checks a subscription filter. Violations are reported
// as *InvalidFilterError.
func ValidateTopicFilter(filter string) error {
	switch {
	case filter == "":
		return NewInvalidFilterError(filter, "empty filter")
	case len(filter) > maxUint16:
		return NewInvalidFilterError(filter[:32]+"...", "longer than 65535 bytes")
	case !utf8.ValidString(filter):
		return NewInvalidFilterError(filter, "not UTF-8")
	case strings.IndexByte(filter, 0) >= 0:
		return NewInvalidFilterError(filter, "contains NUL")
	}

	inner := filter
	if strings.HasPrefix(filter, sharedPrefix) {
		rest := filter[len(sharedPrefix):]
		idx := strings.IndexByte(rest, topicSeparator)
		if idx <= 0 || idx == len(rest)-1 {
			return NewInvalidFilterError(filter, "shared subscription needs $share/{group}/{filter}")
		}
		if strings.ContainsAny(rest[:idx], "+#") {
			return NewInvalidFilterError(filter, "share name contains a wildcard")
		}
		inner = rest[idx+1:]
	}

	levels := strings.Split(inner, string(topicSeparator))
	for i, level := range levels {
		if strings.Contains(level, singleLevelWildcard) && level != singleLevelWildcard {
			return NewInvalidFilterError(filter, "'+' must occupy a whole level")
		}
		if strings.Contains(level, multiLevelWildcard) {
			if level != multiLevelWildcard {
				return NewInvalidFilterError(filter, "'#' must occupy a whole level")
			}
			if i != len(levels)-1 {
				return NewInvalidFilterError(filter, "'#' must be the last level")
			}
		}
	}
	return nil
}

// TopicMatch reports whether topic matches filter. Shared subscription
// filters match on their inner filter.
//
// Topics beginning with '$' never match a filter whose first level is a
// wildcard.
func TopicMatch(filter, topic string) bool {
	filter = sharedInnerFilter(filter)
	if filter == "" || topic == "" {
		return false
	}
	if topic[0] == '$' && (filter[0] == '+' || filter[0] == '#') {
		return false
	}
	return matchLevels(filter, topic)
}

// matchLevels walks filter and topic level by level without allocating.
func matchLevels(filter, topic string) bool {
	topicDone := false
	for {
		flevel, frest, fmore := strings.Cut(filter, "/")
		if flevel == multiLevelWildcard {
			return true
		}
		if topicDone {
			return false
		}
		tlevel, trest, tmore := strings.Cut(topic, "/")
		if flevel != singleLevelWildcard && flevel != tlevel {
			return false
		}
		if !fmore {
			return !tmore
		}
		filter, topic = frest, trest
		topicDone = !tmore
	}
}

func sharedInnerFilter(filter string) string {
	if !strings.HasPrefix(filter, sharedPrefix) {
		return filter
	}
	rest := filter[len(sharedPrefix):]
	if idx := strings.IndexByte(rest, topicSeparator); idx >= 0 {
		return rest[idx+1:]
	}
	return ""
}
