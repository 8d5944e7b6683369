package rdtsender

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/jakexx360/rdtraft/segment"
)

// fakeReceiver drives the far end of a net.Pipe the way an RDT receiver
// would: ack each data segment cumulatively, optionally dropping one
// sequence number once. net.Pipe has no buffering, so each ack is written
// from its own goroutine; like a datagram send, it never holds up reading
// the sender's next segment.
type fakeReceiver struct {
	conn       net.Conn
	dropOnce   map[int]bool
	received   []int
	eofCount   int
	expectNext int
}

func (f *fakeReceiver) run(t *testing.T, done chan<- struct{}) {
	buf := make([]byte, segment.MaxDatagram)
	for {
		f.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, err := f.conn.Read(buf)
		if err != nil {
			if f.eofCount == 0 {
				close(done)
			}
			return
		}
		seg, err := segment.Decode(buf[:n])
		if err != nil {
			t.Errorf("fakeReceiver: decode failed: %v", err)
			continue
		}
		if seg.Eof {
			f.eofCount++
			if f.eofCount == 1 {
				close(done)
			}
			continue
		}

		if f.dropOnce[seg.Sequence] {
			delete(f.dropOnce, seg.Sequence)
			continue
		}

		f.received = append(f.received, seg.Sequence)
		if seg.Sequence == f.expectNext {
			f.expectNext += len(seg.Data)
		}
		// ack names the segment just processed; expected_seq is the
		// receiver's running cumulative position, which only advances
		// when that segment filled the next contiguous hole (§4.3).
		ack, _ := segment.EncodeAck(segment.Ack{Ack: seg.Sequence, ExpectedSeq: f.expectNext})
		go f.conn.Write(ack)
	}
}

func TestHappyPath(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	input := bytes.Repeat([]byte("a"), 3000)
	s := New(client, bytes.NewReader(input))

	recv := &fakeReceiver{conn: server, dropOnce: map[int]bool{}}
	done := make(chan struct{})
	go recv.run(t, done)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run() }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned an error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("sender did not terminate in time")
	}

	<-done
	want := []int{0, 1000, 2000}
	if len(recv.received) != len(want) {
		t.Fatalf("received sequences = %v, want %v", recv.received, want)
	}
	for i, seq := range want {
		if recv.received[i] != seq {
			t.Fatalf("received sequences = %v, want %v", recv.received, want)
		}
	}
}

func TestSingleLoss(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	input := bytes.Repeat([]byte("b"), 3000)
	s := New(client, bytes.NewReader(input))

	recv := &fakeReceiver{conn: server, dropOnce: map[int]bool{1000: true}}
	done := make(chan struct{})
	go recv.run(t, done)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run() }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned an error: %v", err)
		}
	case <-time.After(8 * time.Second):
		t.Fatalf("sender did not terminate after a single loss")
	}
	<-done

	seen := map[int]bool{}
	for _, seq := range recv.received {
		seen[seq] = true
	}
	for _, want := range []int{0, 1000, 2000} {
		if !seen[want] {
			t.Fatalf("sequence %d was never delivered after retransmission: received %v", want, recv.received)
		}
	}
}
