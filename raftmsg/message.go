// Package raftmsg implements the RAFT wire protocol (§6): a tagged sum
// type over the RPC kinds exchanged between replicas and clients, JSON
// encoded one object per line over a stream-oriented unix-domain endpoint.
//
// Address doubles as a filesystem path, adapted directly from the
// teacher's types.Address, whose own doc comment already anticipates "the
// case of unix endpoints" — exactly this wire format's addressing scheme:
// a replica's id literally is the path of the unix socket it listens on.
package raftmsg

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/jakexx360/rdtraft/raftlog"
)

// Address is a replica or client identifier. For replicas it is the path of
// the unix socket the replica is bound to.
type Address string

// Broadcast is the destination address meaning "every peer", per §6.
const Broadcast Address = "FFFF"

// Kind tags which of the RPC/client message shapes an Envelope carries.
type Kind string

const (
	KindGet                Kind = "get"
	KindPut                Kind = "put"
	KindOk                 Kind = "ok"
	KindFail               Kind = "fail"
	KindRedirect           Kind = "redirect"
	KindAppendEntries      Kind = "appendEntries"
	KindAppendEntriesReply Kind = "appendEntriesReply"
	KindRequestVote        Kind = "requestVote"
	KindVote               Kind = "vote"
)

// Envelope is the single message type every RPC and client exchange is
// encoded as, tagged by Type. Not every field is meaningful for every Kind.
// Decode rejects unknown Type tags; it does not check that the fields a
// Kind uses are present, so a missing field decodes to its zero value.
type Envelope struct {
	Src    Address `json:"src"`
	Dst    Address `json:"dst"`
	Leader Address `json:"leader"`
	Type   Kind    `json:"type"`

	MID   string `json:"MID,omitempty"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`

	Term         int              `json:"term,omitempty"`
	Entries      []raftlog.Entry  `json:"entries,omitempty"`
	LeaderCommit int              `json:"leaderCommit,omitempty"`
	PrevLogTerm  int              `json:"prevLogTerm"`
	PrevLogIndex int              `json:"prevLogIndex"`
	Success      bool             `json:"success,omitempty"`

	LastLogIndex int  `json:"lastLogIndex,omitempty"`
	LastLogTerm  int  `json:"lastLogTerm,omitempty"`
	Vote         bool `json:"vote,omitempty"`
}

var validKinds = map[Kind]bool{
	KindGet: true, KindPut: true, KindOk: true, KindFail: true,
	KindRedirect: true, KindAppendEntries: true, KindAppendEntriesReply: true,
	KindRequestVote: true, KindVote: true,
}

// Encode marshals an envelope to a single line (no embedded newline is ever
// produced by JSON encoding of these field types).
func Encode(e Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

// Decode unmarshals an envelope and rejects unknown message types. Per the
// error-handling design, a malformed message is reported to the caller,
// which is expected to drop it silently rather than crash the loop.
func Decode(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, errors.WithStack(err)
	}
	if !validKinds[e.Type] {
		return Envelope{}, errors.Errorf("raftmsg: unknown message type %q", e.Type)
	}
	return e, nil
}

// Reader reads newline-delimited envelopes off a stream-oriented
// connection, framing the "stream-oriented unix-domain endpoint" §6
// mandates but leaves to the implementer.
type Reader struct {
	s *bufio.Scanner
}

// NewReader wraps r for reading one envelope per line.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &Reader{s: s}
}

// Next blocks until the next envelope arrives, returning io.EOF once the
// underlying stream closes. A malformed line is reported as an error, not
// wrapped in io.EOF, so callers can distinguish "drop and keep reading"
// from "connection is gone".
func (r *Reader) Next() (Envelope, error) {
	if !r.s.Scan() {
		if err := r.s.Err(); err != nil {
			return Envelope{}, errors.WithStack(err)
		}
		return Envelope{}, io.EOF
	}
	return Decode(r.s.Bytes())
}

// WriteEnvelope frames e as a newline-terminated line and writes it to w.
func WriteEnvelope(w io.Writer, e Envelope) error {
	b, err := Encode(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}
