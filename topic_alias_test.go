package mqttier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishWithAlias(topic string, alias uint16) *PublishPacket {
	p := &PublishPacket{Topic: topic}
	if alias > 0 {
		p.Props.Set(PropTopicAlias, alias)
	}
	return p
}

func TestTopicAliasesResolve(t *testing.T) {
	a := newTopicAliases(5)

	require.NoError(t, a.resolve(publishWithAlias("sensors/1", 2)))

	p := publishWithAlias("", 2)
	require.NoError(t, a.resolve(p))
	assert.Equal(t, "sensors/1", p.Topic)

	// Re-registering replaces the mapping.
	require.NoError(t, a.resolve(publishWithAlias("sensors/2", 2)))
	p = publishWithAlias("", 2)
	require.NoError(t, a.resolve(p))
	assert.Equal(t, "sensors/2", p.Topic)

	p = publishWithAlias("plain", 0)
	require.NoError(t, a.resolve(p))
	assert.Equal(t, "plain", p.Topic)
}

func TestTopicAliasesErrors(t *testing.T) {
	tests := []struct {
		name   string
		max    uint16
		packet *PublishPacket
		want   error
	}{
		{"empty topic without alias", 5, publishWithAlias("", 0), ErrTopicAliasInvalid},
		{"alias above maximum", 5, publishWithAlias("a", 6), ErrTopicAliasInvalid},
		{"aliases disabled", 0, publishWithAlias("a", 1), ErrTopicAliasInvalid},
		{"unknown alias", 5, publishWithAlias("", 3), ErrTopicAliasNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTopicAliases(tt.max).resolve(tt.packet)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	zero := &PublishPacket{Topic: "a"}
	zero.Props.Set(PropTopicAlias, uint16(0))
	assert.ErrorIs(t, newTopicAliases(5).resolve(zero), ErrTopicAliasInvalid)
}
