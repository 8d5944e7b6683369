package raftmsg

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

const dialTimeout = 200 * time.Millisecond

// Hub owns one replica's unix-domain endpoint: it accepts connections from
// peers and clients, decodes their envelopes onto a single channel the
// event loop selects on, and dials peers lazily to send. Only the event
// loop ever calls Send or reads Incoming; the accept/read goroutines never
// touch replica state directly, preserving §5's "only the replica's loop
// mutates [state]" even though acceptance itself can't avoid a goroutine
// per connection (the same shape as the teacher's dnsproxy accept loop).
type Hub struct {
	self     Address
	ln       net.Listener
	incoming chan Envelope
	outbound map[Address]net.Conn
}

// Listen binds self's unix-domain socket and starts accepting connections.
func Listen(self Address) (*Hub, error) {
	ln, err := net.Listen("unix", string(self))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	h := &Hub{
		self:     self,
		ln:       ln,
		incoming: make(chan Envelope, 256),
		outbound: make(map[Address]net.Conn),
	}
	go h.acceptLoop()
	return h, nil
}

func (h *Hub) acceptLoop() {
	for {
		c, err := h.ln.Accept()
		if err != nil {
			return
		}
		go h.readLoop(c)
	}
}

func (h *Hub) readLoop(c net.Conn) {
	defer c.Close()
	r := NewReader(c)
	for {
		e, err := r.Next()
		if err != nil {
			return
		}
		h.incoming <- e
	}
}

// Incoming is the channel the event loop polls with a bounded timeout, per
// §4.4 step 2 ("non-blocking wait up to 10ms on the message socket").
func (h *Hub) Incoming() <-chan Envelope {
	return h.incoming
}

// Send delivers e to dst, dialing lazily and caching the connection for
// reuse. Send is only ever called from the event loop, so the outbound map
// needs no lock.
func (h *Hub) Send(dst Address, e Envelope) error {
	conn, ok := h.outbound[dst]
	if !ok {
		c, err := net.DialTimeout("unix", string(dst), dialTimeout)
		if err != nil {
			return errors.WithStack(err)
		}
		conn = c
		h.outbound[dst] = conn
	}

	conn.SetWriteDeadline(time.Now().Add(dialTimeout))
	if err := WriteEnvelope(conn, e); err != nil {
		conn.Close()
		delete(h.outbound, dst)
		return err
	}
	return nil
}

// Close releases the listener and every cached outbound connection.
func (h *Hub) Close() error {
	for _, c := range h.outbound {
		c.Close()
	}
	return h.ln.Close()
}
