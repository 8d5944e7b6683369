package rdtsender

import (
	"time"

	"github.com/jakexx360/rdtraft/segment"
)

// outstandingEntry is a sent, unacknowledged segment and the time it was
// last put on the wire.
type outstandingEntry struct {
	segment      segment.Segment
	lastSendTime time.Time
}

// txBuffer is the ordered map from byte-sequence-number to outstanding
// entry. Entries are uniquely keyed by sequence number; once removed by an
// ack they are never resurrected (§3 invariants).
type txBuffer struct {
	entries map[int]*outstandingEntry
	// order preserves insertion order so callers that need to walk the
	// buffer from the oldest entry (retransmit passes, window-empty
	// checks) don't depend on Go's randomized map iteration.
	order []int
}

func newTxBuffer() *txBuffer {
	return &txBuffer{entries: make(map[int]*outstandingEntry)}
}

// Add records seq as outstanding as of now. Add must not be called twice
// for the same seq without an intervening Remove.
func (b *txBuffer) Add(seq int, s segment.Segment, now time.Time) {
	if _, exists := b.entries[seq]; exists {
		return
	}
	b.entries[seq] = &outstandingEntry{segment: s, lastSendTime: now}
	b.order = append(b.order, seq)
}

// Remove deletes the entry keyed by seq, if any, and reports whether it was
// present.
func (b *txBuffer) Remove(seq int) bool {
	if _, ok := b.entries[seq]; !ok {
		return false
	}
	delete(b.entries, seq)
	for i, s := range b.order {
		if s == seq {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the entry keyed by seq, if present.
func (b *txBuffer) Get(seq int) (*outstandingEntry, bool) {
	e, ok := b.entries[seq]
	return e, ok
}

// Empty reports whether every outstanding entry has been acknowledged.
func (b *txBuffer) Empty() bool {
	return len(b.entries) == 0
}

// Len reports the number of outstanding entries.
func (b *txBuffer) Len() int {
	return len(b.entries)
}

// Touch updates the last-send-time of the entry keyed by seq, as required
// on every retransmit.
func (b *txBuffer) Touch(seq int, now time.Time) {
	if e, ok := b.entries[seq]; ok {
		e.lastSendTime = now
	}
}

// ForEach calls f for every outstanding entry in the order it was added.
func (b *txBuffer) ForEach(f func(seq int, e *outstandingEntry)) {
	for _, seq := range b.order {
		if e, ok := b.entries[seq]; ok {
			f(seq, e)
		}
	}
}
