// Package rdtsender implements the RDT sender loop: reading input bytes,
// filling the congestion window, processing acknowledgments and scheduling
// retransmissions, per §4.2 of the spec. Its shape is adapted from the
// teacher's transport/tcp sender (transport/tcp/snd.go): a small struct
// holding send-cursor state plus a congestion controller, driven by a
// single poll loop rather than the teacher's goroutine-per-endpoint model.
package rdtsender

import (
	"io"
	"net"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/rs/xid"

	"github.com/jakexx360/rdtraft/congestion"
	"github.com/jakexx360/rdtraft/segment"
)

const (
	// pollTimeout bounds how long one Read blocks before the loop goes
	// back to checking retransmit and inactivity deadlines. §5 calls for
	// a short nonzero poll in place of the source's 0.
	pollTimeout = 10 * time.Millisecond

	// eofRepeats is how many back-to-back EOF segments terminate the
	// stream, per §4.2 termination.
	eofRepeats = 5

	// DefaultRetransmitFactor scales cwnd into the per-entry retransmit
	// deadline: 0.2 * cwnd seconds, per §4.2 step 1, unless overridden
	// with SetTimeouts.
	DefaultRetransmitFactor = 200 * time.Millisecond

	// DefaultInactivityTimeout is the global no-ack-received deadline,
	// per §4.2 step 2, unless overridden with SetTimeouts.
	DefaultInactivityTimeout = 1 * time.Second
)

// conn is the subset of net.Conn the sender needs; it lets tests substitute
// an in-memory pipe for a real UDP socket.
type conn interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	SetReadDeadline(t time.Time) error
}

// Snapshot is the sender's externally-observable state, published once per
// loop iteration for the metrics collector to read.
type Snapshot struct {
	Cwnd            float64
	Ssthresh        float64
	Outstanding     int
	BytesSent       int
	BytesAcked      int
	TerminatedClean bool
}

// Sender drives one RDT transfer from an io.Reader to a connected datagram
// conn.
type Sender struct {
	conn conn
	cc   *congestion.Controller
	tx   *txBuffer

	input     io.Reader
	inputDone bool

	sendBase    int // sendBase is the offset of the oldest unacknowledged byte
	nextToSend  int // nextToSend is the offset of the next byte to read from input
	expectedSeq int // expectedSeq mirrors the receiver's last-known cumulative position

	lastAckTime time.Time

	retransmitFactor  time.Duration
	inactivityTimeout time.Duration

	onSnapshot func(Snapshot)
}

// New constructs a Sender reading payload bytes from r and exchanging
// segments over c.
func New(c conn, r io.Reader) *Sender {
	return &Sender{
		conn:              c,
		cc:                congestion.New(),
		tx:                newTxBuffer(),
		input:             r,
		lastAckTime:       time.Now(),
		retransmitFactor:  DefaultRetransmitFactor,
		inactivityTimeout: DefaultInactivityTimeout,
		onSnapshot:        func(Snapshot) {},
	}
}

// OnSnapshot registers a callback invoked once per loop iteration with the
// sender's current state, for the metrics package to consume.
func (s *Sender) OnSnapshot(f func(Snapshot)) {
	s.onSnapshot = f
}

// SetTimeouts overrides the retransmit-factor and inactivity-timeout
// tunables, letting cmd/rdtsend apply values loaded from config.Config.
func (s *Sender) SetTimeouts(retransmitFactor, inactivityTimeout time.Duration) {
	s.retransmitFactor = retransmitFactor
	s.inactivityTimeout = inactivityTimeout
}

// Dial opens a connected UDP socket to addr, as the RDT CLI's single
// positional HOST:PORT argument names it.
func Dial(addr string) (*net.UDPConn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	c, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return c, nil
}

// Run executes the sender loop to completion: it returns nil once the input
// is exhausted and every outstanding segment has been acknowledged, and
// returns a non-nil error only if the connection itself fails outright.
func (s *Sender) Run() error {
	buf := make([]byte, segment.MaxDatagram)

	for {
		now := time.Now()

		// Step 1: retransmit pass.
		s.retransmitPass(now)

		// Step 2: global inactivity timeout.
		if now.Sub(s.lastAckTime) >= s.inactivityTimeout {
			s.cc.OnTimeout()
			s.lastAckTime = now
			glog.Warningf("rdtsender: inactivity timeout, cwnd reset to %v", s.cc.Cwnd())
		}

		// Step 3: receive one datagram, bounded by a short poll.
		if err := s.conn.SetReadDeadline(now.Add(pollTimeout)); err != nil {
			return errors.WithStack(err)
		}
		n, err := s.conn.Read(buf)
		if err == nil {
			s.handleDatagram(buf[:n])
		} else if !isTimeout(err) {
			return errors.WithStack(err)
		}

		// Step 5: window refill, only once every outstanding segment has
		// been acknowledged.
		if s.tx.Empty() {
			if s.refill() {
				s.publishSnapshot(true)
				return nil
			}
		}

		s.publishSnapshot(false)
	}
}

func (s *Sender) publishSnapshot(done bool) {
	s.onSnapshot(Snapshot{
		Cwnd:            s.cc.Cwnd(),
		Ssthresh:        s.cc.Ssthresh(),
		Outstanding:     s.tx.Len(),
		BytesSent:       s.nextToSend,
		BytesAcked:      s.sendBase,
		TerminatedClean: done,
	})
}

// retransmitPass resends every outstanding entry whose deadline has
// elapsed, per §4.2 step 1.
func (s *Sender) retransmitPass(now time.Time) {
	deadline := time.Duration(float64(s.retransmitFactor) * s.cc.Cwnd())
	trace := xid.New().String()
	s.tx.ForEach(func(seq int, e *outstandingEntry) {
		if now.Sub(e.lastSendTime) < deadline {
			return
		}
		if err := s.send(e.segment); err != nil {
			glog.Errorf("rdtsender[%s]: retransmit of seq %d failed: %v", trace, seq, err)
			return
		}
		s.tx.Touch(seq, now)
	})
}

// handleDatagram decodes and applies one incoming ack, per §4.3.
func (s *Sender) handleDatagram(b []byte) {
	a, err := segment.DecodeAck(b)
	if err != nil {
		// Malformed/corrupt message: drop silently.
		return
	}

	s.lastAckTime = time.Now()

	// These are independent checks, not an if/else: an out-of-order ack
	// can simultaneously confirm delivery of the segment it names (so it
	// is removed from the outstanding set) and bump the duplicate-ack
	// counter for the hole it's still stuck behind.
	triple := s.cc.RegisterAck(a.Ack, a.ExpectedSeq)

	if _, ok := s.tx.Get(a.Ack); ok {
		s.tx.Remove(a.Ack)
		s.cc.OnAck()
		s.expectedSeq = a.ExpectedSeq
		if a.ExpectedSeq > s.sendBase {
			s.sendBase = a.ExpectedSeq
		}
	}

	if triple {
		s.fastRetransmit(a.ExpectedSeq)
	}
}

// fastRetransmit resends the segment keyed by seq immediately, outside the
// normal retransmit-deadline pass, and folds the triple-dup-ack event into
// the congestion controller.
func (s *Sender) fastRetransmit(seq int) {
	s.cc.OnTripleDupAck()
	if e, ok := s.tx.Get(seq); ok {
		if err := s.send(e.segment); err == nil {
			s.tx.Touch(seq, time.Now())
		}
	}
}

// refill reads up to floor(cwnd) new payloads from input once the window is
// empty, per §4.2 step 5. It returns true once input is exhausted and there
// is nothing left outstanding, at which point the caller should terminate.
func (s *Sender) refill() bool {
	window := int(s.cc.Cwnd())
	if window < 1 {
		window = 1
	}

	for i := 0; i < window && !s.inputDone; i++ {
		chunk := make([]byte, segment.DataSize)
		n, err := io.ReadFull(s.input, chunk)
		if n > 0 {
			seg := segment.NewData(s.nextToSend, chunk[:n])
			if err := s.send(seg); err != nil {
				glog.Errorf("rdtsender: send of seq %d failed: %v", s.nextToSend, err)
			}
			s.tx.Add(s.nextToSend, seg, time.Now())
			s.nextToSend += n
		}
		if err != nil {
			s.inputDone = true
		}
	}

	if s.inputDone && s.tx.Empty() {
		s.terminate()
		return true
	}
	return false
}

// terminate sends the EOF burst, per §4.2 termination.
func (s *Sender) terminate() {
	eof := segment.NewEOF(s.nextToSend)
	for i := 0; i < eofRepeats; i++ {
		if err := s.send(eof); err != nil {
			glog.Warningf("rdtsender: EOF segment %d/%d failed: %v", i+1, eofRepeats, err)
		}
	}
}

func (s *Sender) send(seg segment.Segment) error {
	b, err := segment.Encode(seg)
	if err != nil {
		return err
	}
	if len(b) > segment.MaxDatagram {
		return errors.Errorf("rdtsender: encoded segment of %d bytes exceeds MaxDatagram", len(b))
	}
	_, err = s.conn.Write(b)
	return err
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
