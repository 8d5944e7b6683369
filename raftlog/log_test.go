package raftlog

import "testing"

func TestTermAtEmptyLog(t *testing.T) {
	if got := TermAt(nil, -1); got != -1 {
		t.Fatalf("TermAt(nil, -1) = %d, want -1", got)
	}
}

func TestIsUpToDate(t *testing.T) {
	cases := []struct {
		lastTerm, lastIndex   int
		otherTerm, otherIndex int
		want                  bool
	}{
		{2, 5, 1, 100, true},  // higher term wins regardless of index
		{1, 100, 2, 5, false}, // lower term loses regardless of index
		{2, 5, 2, 5, true},    // equal, tie goes to >=
		{2, 3, 2, 5, false},   // equal term, shorter log loses
		{2, 5, 2, 3, true},    // equal term, longer log wins
	}
	for _, c := range cases {
		got := IsUpToDate(c.lastTerm, c.lastIndex, c.otherTerm, c.otherIndex)
		if got != c.want {
			t.Fatalf("IsUpToDate(%d,%d,%d,%d) = %v, want %v",
				c.lastTerm, c.lastIndex, c.otherTerm, c.otherIndex, got, c.want)
		}
	}
}

func TestReconcileNoOpOnExactMatch(t *testing.T) {
	local := []Entry{{Term: 1}, {Term: 1}, {Term: 2}}
	entries := []Entry{{Term: 1}, {Term: 2}}

	newLog, truncated := Reconcile(local, 0, entries)

	if len(truncated) != 0 {
		t.Fatalf("reapplying identical entries truncated %d entries, want 0", len(truncated))
	}
	if len(newLog) != len(local) {
		t.Fatalf("reapplying identical entries changed log length: got %d, want %d", len(newLog), len(local))
	}
}

func TestReconcileTruncatesConflict(t *testing.T) {
	local := []Entry{
		{Term: 1, Key: "a"},
		{Term: 1, Key: "b"},
		{Term: 1, Key: "stale", ReceivedBy: "S1", ClientID: "C1", RequestID: "R1"},
	}
	entries := []Entry{
		{Term: 2, Key: "fresh"},
	}

	newLog, truncated := Reconcile(local, 1, entries)

	if len(truncated) != 1 || truncated[0].Key != "stale" {
		t.Fatalf("expected the conflicting entry to be truncated, got %+v", truncated)
	}
	if len(newLog) != 3 || newLog[2].Key != "fresh" {
		t.Fatalf("conflicting entry not replaced: %+v", newLog)
	}
}

func TestReconcileAppendsNewSuffix(t *testing.T) {
	local := []Entry{{Term: 1, Key: "a"}}
	entries := []Entry{{Term: 1, Key: "a"}, {Term: 1, Key: "b"}, {Term: 1, Key: "c"}}

	newLog, truncated := Reconcile(local, -1, entries)

	if len(truncated) != 0 {
		t.Fatalf("pure append truncated entries unexpectedly: %+v", truncated)
	}
	if len(newLog) != 3 {
		t.Fatalf("pure append produced wrong length log: %+v", newLog)
	}
}
