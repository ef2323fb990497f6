package mqttier

const defaultReceiveMaximum = 65535

// flowControl enforces the broker's Receive Maximum: the number of QoS>0
// publishes the client may have unacknowledged at once. A zero maximum
// means the protocol default.
type flowControl struct {
	maximum  uint16
	inFlight uint16
}

func newFlowControl(maximum uint16) *flowControl {
	f := &flowControl{}
	f.setMaximum(maximum)
	return f
}

func (f *flowControl) setMaximum(maximum uint16) {
	if maximum == 0 {
		maximum = defaultReceiveMaximum
	}
	f.maximum = maximum
}

func (f *flowControl) available() uint16 {
	if f.inFlight >= f.maximum {
		return 0
	}
	return f.maximum - f.inFlight
}

// tryAcquire takes one slot if any is free.
func (f *flowControl) tryAcquire() bool {
	if f.inFlight >= f.maximum {
		return false
	}
	f.inFlight++
	return true
}

func (f *flowControl) release() {
	if f.inFlight > 0 {
		f.inFlight--
	}
}

// reset sets the in-flight count, used after a reconnect replays n entries.
func (f *flowControl) reset(n int) {
	f.inFlight = uint16(min(n, defaultReceiveMaximum))
}
