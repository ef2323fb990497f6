package mqttier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTopicName(t *testing.T) {
	tests := []struct {
		topic string
		valid bool
	}{
		{"a", true},
		{"a/b/c", true},
		{"/leading", true},
		{"trailing/", true},
		{"$SYS/broker", true},
		{"", false},
		{"a/+", false},
		{"a/#", false},
		{"a\x00b", false},
		{"\xff", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			err := ValidateTopicName(tt.topic)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTopic)
			}
		})
	}

	err := ValidateTopicName(strings.Repeat("a", 65536))
	assert.ErrorIs(t, err, ErrStringTooLong)
}

func TestValidateTopicFilter(t *testing.T) {
	tests := []struct {
		filter string
		valid  bool
	}{
		{"a/b", true},
		{"#", true},
		{"+", true},
		{"a/+/c", true},
		{"a/#", true},
		{"+/+/#", true},
		{"$share/group/a/+", true},
		{"", false},
		{"a/#/c", false},
		{"a#", false},
		{"a/b+", false},
		{"$share/group", false},
		{"$share//a", false},
		{"$share/gr+oup/a", false},
		{"a\x00", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			err := ValidateTopicFilter(tt.filter)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var filterErr *InvalidFilterError
			require.ErrorAs(t, err, &filterErr)
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestTopicMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		match  bool
	}{
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
		{"a/+", "a/b", true},
		{"a/+", "a/b/c", false},
		{"a/+/c", "a/b/c", true},
		{"a/#", "a", true},
		{"a/#", "a/b/c", true},
		{"#", "a/b", true},
		{"+", "a", true},
		{"+", "a/b", false},
		{"+/+", "/a", true},
		{"a/+", "a/", true},
		{"a", "a/b", false},
		{"a/b", "a", false},
		{"#", "$SYS/x", false},
		{"+/x", "$SYS/x", false},
		{"$SYS/#", "$SYS/x", true},
		{"$share/g/a/+", "a/b", true},
		{"$share/g/a/+", "b/b", false},
		{"", "a", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+" "+tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.match, TopicMatch(tt.filter, tt.topic))
		})
	}
}

func BenchmarkTopicMatch(b *testing.B) {
	for b.Loop() {
		TopicMatch("sensors/+/temperature/#", "sensors/kitchen/temperature/celsius")
	}
}
