package mqttier

import (
	"slices"
	"time"
)

// packetIDs hands out packet identifiers 1..65535. An identifier stays
// reserved until released, which happens on final acknowledgement or final
// failure of the exchange it belongs to.
type packetIDs struct {
	used map[uint16]struct{}
	next uint16
}

func newPacketIDs() *packetIDs {
	return &packetIDs{used: make(map[uint16]struct{}), next: 1}
}

func (p *packetIDs) allocate() (uint16, error) {
	if len(p.used) >= maxUint16 {
		return 0, ErrPacketIDExhausted
	}
	for {
		id := p.next
		p.next++
		if p.next == 0 {
			p.next = 1
		}
		if _, taken := p.used[id]; !taken {
			p.used[id] = struct{}{}
			return id, nil
		}
	}
}

// reserve marks id as used, for identifiers restored from a session store.
func (p *packetIDs) reserve(id uint16) {
	p.used[id] = struct{}{}
}

func (p *packetIDs) release(id uint16) {
	delete(p.used, id)
}

func (p *packetIDs) inUse() int {
	return len(p.used)
}

type outboundState uint8

const (
	awaitingPuback outboundState = iota + 1
	awaitingPubrec
	awaitingPubcomp
)

// outbound is one QoS>0 publish the broker has not finished acknowledging.
type outbound struct {
	seq       uint64
	packetID  uint16
	msg       *Message
	state     outboundState
	attempts  int
	firstSent time.Time
	sentAt    time.Time
	token     *Token
}

// packet returns what must be (re)sent for the current leg: the PUBLISH,
// flagged DUP after the first attempt, or the PUBREL once PUBREC arrived.
func (o *outbound) packet() Packet {
	if o.state == awaitingPubcomp {
		return &PubrelPacket{PacketID: o.packetID}
	}
	p := o.msg.toPublish(o.packetID)
	p.DUP = o.attempts > 0
	return p
}

func (o *outbound) record() InflightRecord {
	return InflightRecord{PacketID: o.packetID, Message: o.msg, Released: o.state == awaitingPubcomp}
}

// inflight tracks outbound exchanges by packet id.
type inflight struct {
	entries map[uint16]*outbound
	seq     uint64
}

func newInflight() *inflight {
	return &inflight{entries: make(map[uint16]*outbound)}
}

func (f *inflight) add(o *outbound) {
	f.seq++
	o.seq = f.seq
	f.entries[o.packetID] = o
}

func (f *inflight) get(id uint16) (*outbound, bool) {
	o, ok := f.entries[id]
	return o, ok
}

func (f *inflight) remove(id uint16) (*outbound, bool) {
	o, ok := f.entries[id]
	if ok {
		delete(f.entries, id)
	}
	return o, ok
}

func (f *inflight) len() int {
	return len(f.entries)
}

// ordered returns entries in the order they were first sent.
func (f *inflight) ordered() []*outbound {
	out := make([]*outbound, 0, len(f.entries))
	for _, o := range f.entries {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b *outbound) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}

// due returns entries whose last send is at least interval old.
func (f *inflight) due(now time.Time, interval time.Duration) []*outbound {
	var out []*outbound
	for _, o := range f.ordered() {
		if !o.sentAt.IsZero() && now.Sub(o.sentAt) >= interval {
			out = append(out, o)
		}
	}
	return out
}
