// Package raftlog implements the replicated log entry and the small set of
// pure helpers that the election and replication subsystems share: term
// lookups with the index -1 => term -1 convention, the up-to-date
// comparison used to decide votes, and conflict-aware suffix reconciliation
// used when a follower applies an AppendEntries.
package raftlog

// Entry is one state-machine command, plus the bookkeeping needed to reply
// to the client that submitted it once it's applied (§3).
type Entry struct {
	Term int `json:"term"`
	Key  string `json:"key"`
	Value string `json:"value"`

	// ClientID and RequestID identify the client message this entry
	// originated from, so the leader that accepted it can reply once it
	// is applied, or redirect the client if the entry is truncated away.
	ClientID string `json:"clientId"`
	RequestID string `json:"requestId"`

	// ReceivedBy is the id of the replica that accepted this entry while
	// it was leader. Only that replica ever replies to the client for it.
	ReceivedBy string `json:"receivedBy"`
}

// LastIndex returns the index of the final entry in log, or -1 if empty.
func LastIndex(log []Entry) int {
	return len(log) - 1
}

// TermAt returns the term of the entry at idx, or -1 if idx is -1 (the
// convention used throughout §4.5/§4.6 for "before the start of the log").
func TermAt(log []Entry, idx int) int {
	if idx < 0 {
		return -1
	}
	return log[idx].Term
}

// IsUpToDate reports whether a log ending at (lastTerm, lastIndex) is at
// least as up-to-date as one ending at (otherTerm, otherIndex): a higher
// last term wins outright; an equal last term is broken by index (§4.5).
func IsUpToDate(lastTerm, lastIndex, otherTerm, otherIndex int) bool {
	if lastTerm != otherTerm {
		return lastTerm > otherTerm
	}
	return lastIndex >= otherIndex
}

// Reconcile applies §4.6 step 5 to a follower's local log: entries is the
// candidate suffix the leader sent starting just after prevIndex. Any
// prefix of entries whose term already matches what's stored locally is
// redundant and is kept as-is; the local log is truncated immediately after
// the last such redundant entry, and the non-redundant remainder of entries
// is appended.
//
// It returns the reconciled log and the entries that were truncated away
// (in order), so the caller can redirect their originating clients.
func Reconcile(local []Entry, prevIndex int, entries []Entry) (newLog []Entry, truncated []Entry) {
	matched := 0
	for _, e := range entries {
		idx := prevIndex + 1 + matched
		if idx < len(local) && local[idx].Term == e.Term {
			matched++
			continue
		}
		break
	}

	keepThrough := prevIndex + 1 + matched

	if keepThrough < len(local) {
		truncated = append(truncated, local[keepThrough:]...)
	}

	newLog = make([]Entry, 0, keepThrough+len(entries)-matched)
	newLog = append(newLog, local[:keepThrough]...)
	newLog = append(newLog, entries[matched:]...)
	return newLog, truncated
}
