package segment

import "testing"

func TestDataRoundTrip(t *testing.T) {
	s := NewData(2000, []byte("hello world"))

	b, err := Encode(s)
	if err != nil {
		t.Fatalf("Encode failed unexpectedly: %v", err)
	}

	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode failed unexpectedly: %v", err)
	}
	if got != s {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, s)
	}
}

func TestEOFRoundTrip(t *testing.T) {
	s := NewEOF(3000)
	if s.Data != "" {
		t.Fatalf("EOF segment carries non-empty data: %q", s.Data)
	}

	b, err := Encode(s)
	if err != nil {
		t.Fatalf("Encode failed unexpectedly: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode failed unexpectedly: %v", err)
	}
	if !got.Eof {
		t.Fatalf("decoded segment lost its eof flag")
	}
}

func TestDecodeRejectsCorruptChecksum(t *testing.T) {
	s := NewData(0, []byte("payload"))
	b, err := Encode(s)
	if err != nil {
		t.Fatalf("Encode failed unexpectedly: %v", err)
	}

	// Flip a byte in the JSON-encoded data field without touching the
	// checksum field, to force a mismatch.
	corrupt := make([]byte, len(b))
	copy(corrupt, b)
	for i, c := range corrupt {
		if c == 'p' {
			corrupt[i] = 'q'
			break
		}
	}

	if _, err := Decode(corrupt); err == nil {
		t.Fatalf("Decode accepted a segment with a corrupted checksum")
	}
}

func TestAckRoundTrip(t *testing.T) {
	a := Ack{Ack: 2000, ExpectedSeq: 2000}
	b, err := EncodeAck(a)
	if err != nil {
		t.Fatalf("EncodeAck failed unexpectedly: %v", err)
	}
	got, err := DecodeAck(b)
	if err != nil {
		t.Fatalf("DecodeAck failed unexpectedly: %v", err)
	}
	if got != a {
		t.Fatalf("ack round trip mismatch: got %+v, want %+v", got, a)
	}
}
