package raft

import (
	"time"

	"github.com/golang/glog"

	"github.com/jakexx360/rdtraft/raftlog"
	"github.com/jakexx360/rdtraft/raftmsg"
)

// appendEntriesRPCTimeout is the in-flight window §4.6's update-followers
// rule names: a peer is skipped on this pass unless its last AppendEntries
// has been answered, or it's been outstanding longer than this.
const appendEntriesRPCTimeout = 20 * time.Millisecond

// batchSize caps how many log entries one AppendEntries carries, per
// §4.6's `BATCH = 50`.
const batchSize = 50

// broadcastAppendEntries sends every peer whatever entries it's missing
// (possibly none, i.e. a heartbeat), skipping any peer with an RPC still
// in flight per §4.6's update-followers rule.
func (r *Replica) broadcastAppendEntries() {
	now := time.Now()
	for _, p := range r.peers {
		prog := r.progress[p]
		if prog.inFlight && now.Sub(prog.sentAt) < appendEntriesRPCTimeout {
			continue
		}

		prevIndex := prog.nextIndex - 1
		prevTerm := raftlog.TermAt(r.log, prevIndex)

		var entries []raftlog.Entry
		if prog.nextIndex <= raftlog.LastIndex(r.log) {
			end := prog.nextIndex + batchSize
			if last := raftlog.LastIndex(r.log) + 1; end > last {
				end = last
			}
			entries = append(entries, r.log[prog.nextIndex:end]...)
		}

		prog.inFlight = true
		prog.sentCount = len(entries)
		prog.sentAt = now

		r.send(p, raftmsg.Envelope{
			Type:         raftmsg.KindAppendEntries,
			PrevLogIndex: prevIndex,
			PrevLogTerm:  prevTerm,
			Entries:      entries,
			LeaderCommit: r.commitIndex,
		})
	}
}

// handleAppendEntries implements the follower side of §4.6: reset the
// election timer and adopt the sender as leader before anything else: step
// 3 then short-circuits empty-entries heartbeats with no reply, and only a
// non-empty AppendEntries runs the prevLogIndex/prevLogTerm consistency
// check, conflict-aware suffix reconciliation, and commit-index advance.
func (r *Replica) handleAppendEntries(env raftmsg.Envelope) {
	r.resetElectionDeadline()

	if env.Term >= r.currentTerm {
		r.state = Follower
		r.leaderID = env.Src
		r.drainPending()
	}

	if len(env.Entries) == 0 {
		return
	}

	if env.Term < r.currentTerm {
		r.send(env.Src, raftmsg.Envelope{Type: raftmsg.KindAppendEntriesReply, Success: false})
		return
	}

	if env.PrevLogIndex >= 0 {
		if env.PrevLogIndex >= len(r.log) || r.log[env.PrevLogIndex].Term != env.PrevLogTerm {
			r.send(env.Src, raftmsg.Envelope{Type: raftmsg.KindAppendEntriesReply, Success: false})
			return
		}
	}

	newLog, truncated := raftlog.Reconcile(r.log, env.PrevLogIndex, env.Entries)
	r.log = newLog
	r.failTruncatedClients(truncated)

	if env.LeaderCommit > r.commitIndex {
		last := raftlog.LastIndex(r.log)
		if env.LeaderCommit < last {
			r.commitIndex = env.LeaderCommit
		} else {
			r.commitIndex = last
		}
		r.applyCommitted()
	}

	r.send(env.Src, raftmsg.Envelope{
		Type:         raftmsg.KindAppendEntriesReply,
		Success:      true,
		LastLogIndex: env.PrevLogIndex + len(env.Entries),
	})
}

// handleAppendEntriesReply implements the leader side: on success advance
// that peer's progress and recompute the commit index; on failure back off
// nextIndex by one and let the following heartbeat retry (§4.6). Either way
// the peer's in-flight RPC is now answered, so it's cleared to let the next
// update-followers pass send again without waiting out the timeout.
func (r *Replica) handleAppendEntriesReply(env raftmsg.Envelope) {
	if r.state != Leader {
		return
	}
	prog, ok := r.progress[env.Src]
	if !ok {
		return
	}
	prog.inFlight = false

	if !env.Success {
		if prog.nextIndex > 0 {
			prog.nextIndex--
		}
		return
	}

	if env.LastLogIndex > prog.matchIndex {
		prog.matchIndex = env.LastLogIndex
		prog.nextIndex = env.LastLogIndex + 1
	}

	r.advanceCommitIndex()
}

// advanceCommitIndex finds the highest index replicated to a quorum whose
// term matches the current term, and applies any newly committed entries
// (§4.4's "commit only entries from the current term" safety rule).
func (r *Replica) advanceCommitIndex() {
	for n := raftlog.LastIndex(r.log); n > r.commitIndex; n-- {
		if r.log[n].Term != r.currentTerm {
			continue
		}
		count := 1 // ourselves
		for _, prog := range r.progress {
			if prog.matchIndex >= n {
				count++
			}
		}
		if count >= quorum(len(r.peers)+1) {
			r.commitIndex = n
			r.applyCommitted()
			return
		}
	}
}

// applyCommitted applies every committed-but-not-yet-applied entry to the
// state machine in strictly increasing order (§4.4 step 1), replying to
// the client if this replica is the one that originally accepted it.
func (r *Replica) applyCommitted() {
	for r.lastApplied < r.commitIndex {
		r.lastApplied++
		e := r.log[r.lastApplied]
		r.stateMachine[e.Key] = e.Value

		if e.ReceivedBy != string(r.id) || e.ClientID == "" {
			continue
		}
		if _, seen := r.dedupe.Get(e.ClientID + ":" + e.RequestID); seen {
			continue
		}
		r.dedupe.SetDefault(e.ClientID+":"+e.RequestID, struct{}{})
		r.send(raftmsg.Address(e.ClientID), raftmsg.Envelope{
			Type: raftmsg.KindOk,
			MID:  e.RequestID,
			Key:  e.Key,
		})
	}
	glog.V(2).Infof("raft[%s]: applied through index %d (commit %d)", r.id, r.lastApplied, r.commitIndex)
}

// failTruncatedClients redirects clients whose in-flight entries this
// replica accepted as leader and that were discarded by a log conflict,
// since this replica is no longer able to honor them (§4.6's truncation
// note).
func (r *Replica) failTruncatedClients(truncated []raftlog.Entry) {
	for _, e := range truncated {
		if e.ClientID == "" || e.ReceivedBy != string(r.id) {
			continue
		}
		r.send(raftmsg.Address(e.ClientID), raftmsg.Envelope{
			Type: raftmsg.KindRedirect,
			MID:  e.RequestID,
		})
	}
}
