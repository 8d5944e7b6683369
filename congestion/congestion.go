// Package congestion implements the RDT sender's TCP-style congestion
// controller: slow start, congestion avoidance, fast retransmit and
// timeout-driven multiplicative decrease.
//
// This completes the fields the teacher's transport/tcp sender left as
// commented-out placeholders (sndCwnd, sndSsthresh, dupAckCount,
// fastRecovery) — see DESIGN.md.
package congestion

// defaultSsthresh is the initial slow-start threshold: large enough that a
// fresh connection spends its first several segments in slow start before
// any loss event is observed, which is the usual TCP Reno convention.
const defaultSsthresh = 64.0

// Controller tracks cwnd/ssthresh and the duplicate-ack state needed for
// fast retransmit, per §4.1.
type Controller struct {
	cwnd     float64
	ssthresh float64
	dupAcks  map[int]int
}

// New returns a controller in the initial slow-start state: cwnd = 1,
// ssthresh = defaultSsthresh.
func New() *Controller {
	return &Controller{
		cwnd:     1,
		ssthresh: defaultSsthresh,
		dupAcks:  make(map[int]int),
	}
}

// Cwnd returns the current congestion window, in segments.
func (c *Controller) Cwnd() float64 {
	return c.cwnd
}

// Ssthresh returns the current slow-start threshold.
func (c *Controller) Ssthresh() float64 {
	return c.ssthresh
}

// OnAck advances cwnd for one acknowledged segment: additive-by-one during
// slow start, additive-by-1/cwnd during congestion avoidance.
func (c *Controller) OnAck() {
	if c.cwnd < c.ssthresh {
		c.cwnd++
	} else {
		c.cwnd += 1 / c.cwnd
	}
}

// OnTimeout reacts to the global inactivity timeout: halve (at least down to
// 2) the threshold and drop back to the start of slow start.
func (c *Controller) OnTimeout() {
	c.ssthresh = max(c.cwnd/2, 2)
	c.cwnd = 1
}

// OnTripleDupAck reacts to a fast-retransmit trigger: halve the threshold as
// on timeout, but enter fast recovery at ssthresh rather than dropping to 1.
func (c *Controller) OnTripleDupAck() {
	c.ssthresh = max(c.cwnd/2, 2)
	c.cwnd = max(c.ssthresh, 1)
}

// RegisterAck folds one incoming ack into the duplicate-ack counter keyed by
// the reply's own expectedSeq (the missing byte, per §4.1). It reports
// whether this ack is the third duplicate for that key, in which case the
// caller should retransmit the entry keyed by expectedSeq and call
// OnTripleDupAck.
//
// A non-duplicate reply (ack <= expectedSeq) clears any counter already
// held for the key equal to its ack, i.e. the hole that reply's segment
// fills; the source never did this, which the spec's open
// questions call out as worth fixing to avoid spurious future fast
// retransmits once the hole has been filled by ordinary progress.
func (c *Controller) RegisterAck(ack, expectedSeq int) bool {
	if ack > expectedSeq {
		c.dupAcks[expectedSeq]++
		if c.dupAcks[expectedSeq] >= 3 {
			delete(c.dupAcks, expectedSeq)
			return true
		}
		return false
	}
	delete(c.dupAcks, ack)
	return false
}
