package raft

import (
	"github.com/jakexx360/rdtraft/ilist"
	"github.com/jakexx360/rdtraft/raftlog"
	"github.com/jakexx360/rdtraft/raftmsg"
)

// handleGet answers a client read directly from the state machine when
// this replica is leader; §4.7 treats reads as not requiring a log entry.
// Any other replica redirects, and a replica mid-election queues the
// request to answer once it learns who's leader.
func (r *Replica) handleGet(env raftmsg.Envelope) {
	if r.state != Leader {
		r.redirectOrQueue(env)
		return
	}
	value, ok := r.stateMachine[env.Key]
	if !ok {
		r.send(env.Src, raftmsg.Envelope{Type: raftmsg.KindFail, MID: env.MID, Key: env.Key})
		return
	}
	r.send(env.Src, raftmsg.Envelope{Type: raftmsg.KindOk, MID: env.MID, Key: env.Key, Value: value})
}

// handlePut appends a new entry to the leader's log, or redirects/queues
// when this replica isn't leader. A request already seen through the
// dedupe cache is answered without appending a duplicate entry (§4.4's
// at-most-once guarantee).
func (r *Replica) handlePut(env raftmsg.Envelope) {
	if r.state != Leader {
		r.redirectOrQueue(env)
		return
	}

	dedupeKey := string(env.Src) + ":" + env.MID
	if _, seen := r.dedupe.Get(dedupeKey); seen {
		r.send(env.Src, raftmsg.Envelope{Type: raftmsg.KindOk, MID: env.MID, Key: env.Key})
		return
	}

	r.log = append(r.log, raftlog.Entry{
		Term:       r.currentTerm,
		Key:        env.Key,
		Value:      env.Value,
		ClientID:   string(env.Src),
		RequestID:  env.MID,
		ReceivedBy: string(r.id),
	})

	r.broadcastAppendEntries()
}

// redirectOrQueue replies with a redirect to the known leader, or, if no
// leader is known (an election is in flight), parks the request on the
// pre-election FIFO to be replayed once one is elected.
func (r *Replica) redirectOrQueue(env raftmsg.Envelope) {
	if r.leaderID != "" {
		r.send(env.Src, raftmsg.Envelope{Type: raftmsg.KindRedirect, MID: env.MID})
		return
	}
	r.pending.PushBack(&queuedEntry{env: env})
}

// drainPending replays every request parked while the leader was unknown,
// now that one has been learned — either because this replica won the
// election, or because it just heard from the leader via AppendEntries
// (§4.7: "on leader-known ... drain in FIFO order"). If this replica isn't
// the leader itself, replaying a request simply redirects it, same as any
// other request arriving after the leader is known.
func (r *Replica) drainPending() {
	for e := r.pending.PopFront(); e != nil; e = r.pending.PopFront() {
		q := e.(*queuedEntry)
		switch q.env.Type {
		case raftmsg.KindGet:
			r.handleGet(q.env)
		case raftmsg.KindPut:
			r.handlePut(q.env)
		}
	}
}

var _ ilist.Linker = (*queuedEntry)(nil)
