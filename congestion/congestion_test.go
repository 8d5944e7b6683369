package congestion

import "testing"

func TestSlowStartAdvance(t *testing.T) {
	c := New()
	if c.Cwnd() != 1 {
		t.Fatalf("initial cwnd = %v, want 1", c.Cwnd())
	}
	for i := 0; i < 3; i++ {
		c.OnAck()
	}
	if got := c.Cwnd(); got != 4 {
		t.Fatalf("cwnd after 3 acks in slow start = %v, want 4", got)
	}
}

func TestCongestionAvoidanceAdvance(t *testing.T) {
	c := New()
	c.cwnd = c.ssthresh // force into congestion avoidance
	before := c.Cwnd()
	c.OnAck()
	if got := c.Cwnd(); got <= before || got >= before+1 {
		t.Fatalf("congestion-avoidance ack moved cwnd from %v to %v, want a fractional increase", before, got)
	}
}

func TestOnTimeoutResetsToSlowStart(t *testing.T) {
	c := New()
	for i := 0; i < 10; i++ {
		c.OnAck()
	}
	c.OnTimeout()
	if c.Cwnd() != 1 {
		t.Fatalf("cwnd after timeout = %v, want 1", c.Cwnd())
	}
	if c.Ssthresh() < 2 {
		t.Fatalf("ssthresh after timeout = %v, want >= 2", c.Ssthresh())
	}
}

func TestOnTimeoutSsthreshFloor(t *testing.T) {
	c := New()
	c.cwnd = 1 // cwnd/2 = 0.5, below the floor of 2
	c.OnTimeout()
	if c.Ssthresh() != 2 {
		t.Fatalf("ssthresh floor not enforced: got %v, want 2", c.Ssthresh())
	}
}

// TestTripleDupAck reproduces scenario 3 of §8: sequence 1000 is dropped,
// segments 2000/3000/4000 arrive and each produces an ack whose cumulative
// field has advanced past the stuck expected_seq of 1000. The third such
// ack must trigger fast retransmit without collapsing cwnd to 1.
func TestTripleDupAck(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.OnAck()
	}
	cwndBeforeLoss := c.Cwnd()

	if got := c.RegisterAck(2000, 1000); got {
		t.Fatalf("first duplicate ack incorrectly triggered fast retransmit")
	}
	if got := c.RegisterAck(3000, 1000); got {
		t.Fatalf("second duplicate ack incorrectly triggered fast retransmit")
	}
	got := c.RegisterAck(4000, 1000)
	if !got {
		t.Fatalf("third duplicate ack did not trigger fast retransmit")
	}

	c.OnTripleDupAck()
	if c.Cwnd() < 1 {
		t.Fatalf("cwnd fell below 1 after fast retransmit: %v", c.Cwnd())
	}
	if c.Cwnd() == 1 && cwndBeforeLoss > 2 {
		t.Fatalf("fast retransmit collapsed cwnd to 1 instead of entering fast recovery at ssthresh")
	}
	if c.Ssthresh() < 2 {
		t.Fatalf("ssthresh after fast retransmit = %v, want >= 2", c.Ssthresh())
	}
}

func TestRegisterAckClearsCounterOnAdvance(t *testing.T) {
	c := New()
	c.RegisterAck(2000, 1000)
	c.RegisterAck(3000, 1000)
	// The hole at 1000 is filled by an ordinary, in-order ack.
	c.RegisterAck(1000, 2000)

	// The counter for key 1000 must have been cleared: one more duplicate
	// for that key starts a fresh count instead of firing as the third.
	if got := c.RegisterAck(4000, 1000); got {
		t.Fatalf("fast retransmit fired on key 1000 after its counter should have been cleared")
	}

	// A later hole keeps its own count.
	if got := c.RegisterAck(6000, 5000); got {
		t.Fatalf("fast retransmit fired on a fresh hole after only one duplicate")
	}
}
