package tcpstack

// retransmissionTimer counts elapsed ticks against a backing-off RTO.
type retransmissionTimer struct {
	initialRTO    uint64
	calculatedRTO uint64
	elapsed       uint64
	running       bool
}

func newRetransmissionTimer(rto uint64) retransmissionTimer {
	return retransmissionTimer{
		initialRTO:    rto,
		calculatedRTO: rto,
	}
}

// start begins counting from zero unless the timer is already running.
func (t *retransmissionTimer) start() {
	if t.running {
		return
	}
	t.running = true
	t.elapsed = 0
}

func (t *retransmissionTimer) restart() {
	t.running = true
	t.elapsed = 0
}

func (t *retransmissionTimer) stop() {
	t.running = false
	t.elapsed = 0
}

// advance adds ms and reports whether the current RTO has expired.
func (t *retransmissionTimer) advance(ms uint64) bool {
	if !t.running {
		return false
	}
	t.elapsed += ms
	return t.elapsed >= t.calculatedRTO
}

func (t *retransmissionTimer) backoff() {
	t.calculatedRTO *= 2
}

func (t *retransmissionTimer) resetRTO() {
	t.calculatedRTO = t.initialRTO
}
