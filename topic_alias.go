package mqttier

import (
	"errors"
	"fmt"
)

var (
	ErrTopicAliasInvalid  = errors.New("topic alias invalid")
	ErrTopicAliasNotFound = errors.New("topic alias not found")
)

// topicAliases resolves the aliases a broker uses in PUBLISH packets once
// the client advertised a Topic Alias Maximum in CONNECT. The table is
// scoped to one network connection and owned by the event loop.
type topicAliases struct {
	max    uint16
	topics map[uint16]string
}

func newTopicAliases(maxAlias uint16) *topicAliases {
	return &topicAliases{max: maxAlias, topics: make(map[uint16]string)}
}

// resolve registers or looks up the alias of p and fills in its topic.
// A PUBLISH with neither a topic nor an alias is rejected as well.
func (a *topicAliases) resolve(p *PublishPacket) error {
	if !p.Props.Has(PropTopicAlias) {
		if p.Topic == "" {
			return fmt.Errorf("%w: empty topic without alias", ErrTopicAliasInvalid)
		}
		return nil
	}

	alias := p.Props.GetUint16(PropTopicAlias)
	if alias == 0 || alias > a.max {
		return fmt.Errorf("%w: %d exceeds maximum %d", ErrTopicAliasInvalid, alias, a.max)
	}
	if p.Topic != "" {
		a.topics[alias] = p.Topic
		return nil
	}
	topic, ok := a.topics[alias]
	if !ok {
		return fmt.Errorf("%w: %d", ErrTopicAliasNotFound, alias)
	}
	p.Topic = topic
	return nil
}
