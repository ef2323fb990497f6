package mqttier

import "fmt"

const presenceTopicFormat = "client/%s/online"

var (
	presenceOnline  = []byte(`{"online":true}`)
	presenceOffline = []byte(`{"online":false}`)
)

// PresenceTopic returns the retained status topic WithPresence maintains.
func PresenceTopic(clientID string) string {
	return fmt.Sprintf(presenceTopicFormat, clientID)
}

// setWill fills the CONNECT will. Presence takes precedence over WithWill
// since the broker accepts a single will per session.
func (c *Client) setWill(p *ConnectPacket) {
	o := c.options
	switch {
	case o.presence:
		p.WillFlag = true
		p.WillTopic = PresenceTopic(c.ClientID())
		p.WillPayload = presenceOffline
		p.WillRetain = true
		p.WillQoS = 1
		p.WillProps.Set(PropContentType, "application/json")
	case o.willTopic != "":
		p.WillFlag = true
		p.WillTopic = o.willTopic
		p.WillPayload = o.willPayload
		p.WillRetain = o.willRetain
		p.WillQoS = o.willQoS
		if o.willProps != nil {
			p.WillProps = *o.willProps
		}
	}
}

// sendPresence publishes the retained status message through the normal
// publish path.
func (c *Client) sendPresence(online bool) {
	payload := presenceOffline
	if online {
		payload = presenceOnline
	}
	msg := &Message{
		Topic:       PresenceTopic(c.ClientID()),
		Payload:     payload,
		QoS:         1,
		Retain:      true,
		ContentType: "application/json",
	}
	c.submitPublish(msg, newToken())
}
