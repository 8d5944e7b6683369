// Package segment implements the RDT wire codec: the text segment and ack
// objects exchanged between sender and receiver, and the MD5 integrity
// checksum that protects a segment against corruption.
//
// A segment carries one chunk of the byte stream being transferred, keyed by
// its byte offset (sequence). An ack carries the receiver's cumulative
// progress. Both are encoded as JSON, one object per datagram.
package segment

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

const (
	// DataSize is the maximum payload carried by one data segment.
	DataSize = 1000

	// MaxDatagram is the largest encoded segment the wire accepts; a
	// datagram that decodes into something whose re-encoding would exceed
	// this is rejected by the caller before it is ever sent.
	MaxDatagram = 1500
)

// Segment is one application payload plus its metadata, sent sender -> receiver.
type Segment struct {
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Ack      bool   `json:"ack"`
	Eof      bool   `json:"eof"`
	Checksum string `json:"checksum"`
}

// Ack is the receiver's cumulative-acknowledgment reply, receiver -> sender.
type Ack struct {
	Ack         int `json:"ack"`
	ExpectedSeq int `json:"expected_seq"`
}

// checksum computes the MD5 hex digest over the concatenation of the other
// four fields' string forms, in the order sequence, data, ack, eof.
func checksum(sequence int, data string, ack, eof bool) string {
	h := md5.New()
	h.Write([]byte(strconv.Itoa(sequence)))
	h.Write([]byte(data))
	h.Write([]byte(strconv.FormatBool(ack)))
	h.Write([]byte(strconv.FormatBool(eof)))
	return hex.EncodeToString(h.Sum(nil))
}

// NewData builds a data segment carrying payload at the given byte offset.
func NewData(sequence int, payload []byte) Segment {
	s := Segment{Sequence: sequence, Data: string(payload)}
	s.Checksum = checksum(s.Sequence, s.Data, s.Ack, s.Eof)
	return s
}

// NewEOF builds an end-of-stream segment at the given byte offset.
func NewEOF(sequence int) Segment {
	s := Segment{Sequence: sequence, Eof: true}
	s.Checksum = checksum(s.Sequence, s.Data, s.Ack, s.Eof)
	return s
}

// Valid reports whether s's checksum field matches its other fields.
func (s Segment) Valid() bool {
	return s.Checksum == checksum(s.Sequence, s.Data, s.Ack, s.Eof)
}

// Encode marshals a segment to its wire form. Callers should drop segments
// whose encoded form would exceed MaxDatagram rather than send them.
func Encode(s Segment) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

// Decode unmarshals a segment and rejects it if the checksum does not
// verify. Per the error-handling design, malformed or corrupt input is
// reported to the caller, which is expected to drop it silently.
func Decode(b []byte) (Segment, error) {
	var s Segment
	if err := json.Unmarshal(b, &s); err != nil {
		return Segment{}, errors.WithStack(err)
	}
	if !s.Valid() {
		return Segment{}, errors.New("segment: checksum mismatch")
	}
	return s, nil
}

// EncodeAck marshals an ack reply to its wire form.
func EncodeAck(a Ack) ([]byte, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

// DecodeAck unmarshals an ack reply.
func DecodeAck(b []byte) (Ack, error) {
	var a Ack
	if err := json.Unmarshal(b, &a); err != nil {
		return Ack{}, errors.WithStack(err)
	}
	return a, nil
}
