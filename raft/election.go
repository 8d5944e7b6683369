package raft

import (
	"time"

	"github.com/golang/glog"

	"github.com/jakexx360/rdtraft/raftlog"
	"github.com/jakexx360/rdtraft/raftmsg"
)

// startElection begins a new candidacy: increments the term, votes for
// itself, and broadcasts RequestVote to every peer (§4.5).
func (r *Replica) startElection() {
	r.state = Candidate
	r.currentTerm++
	r.votedFor = r.id
	r.votes = map[raftmsg.Address]bool{r.id: true}
	r.leaderID = ""
	r.resetElectionDeadline()

	glog.Infof("raft[%s]: starting election for term %d", r.id, r.currentTerm)

	lastIndex := raftlog.LastIndex(r.log)
	lastTerm := raftlog.TermAt(r.log, lastIndex)

	r.broadcastToPeers(func(raftmsg.Address) raftmsg.Envelope {
		return raftmsg.Envelope{
			Type:         raftmsg.KindRequestVote,
			LastLogIndex: lastIndex,
			LastLogTerm:  lastTerm,
		}
	})
}

// handleRequestVote implements the voting rule of §4.5: grant a vote only
// if the candidate's term is current, we haven't already voted this term
// for someone else, and its log is at least as up-to-date as ours.
func (r *Replica) handleRequestVote(env raftmsg.Envelope) {
	grant := false
	switch {
	case env.Term < r.currentTerm:
		// stale candidate, reply with our term so it steps down.
	case r.votedFor != "" && r.votedFor != env.Src && env.Term == r.currentTerm:
		// already committed our vote this term.
	default:
		lastIndex := raftlog.LastIndex(r.log)
		lastTerm := raftlog.TermAt(r.log, lastIndex)
		if raftlog.IsUpToDate(env.LastLogTerm, env.LastLogIndex, lastTerm, lastIndex) {
			grant = true
			r.votedFor = env.Src
			r.resetElectionDeadline()
		}
	}

	r.send(env.Src, raftmsg.Envelope{Type: raftmsg.KindVote, Vote: grant})
}

// handleVote tallies a vote reply and, once a quorum including ourself is
// reached, transitions to leader.
func (r *Replica) handleVote(env raftmsg.Envelope) {
	if r.state != Candidate || env.Term < r.currentTerm {
		return
	}
	if !env.Vote {
		return
	}
	r.votes[env.Src] = true
	if len(r.votes) >= quorum(len(r.peers)+1) {
		r.becomeLeader()
	}
}

func quorum(clusterSize int) int {
	return clusterSize/2 + 1
}

// becomeLeader initializes per-peer progress and immediately sends a
// heartbeat to establish authority (§4.6).
func (r *Replica) becomeLeader() {
	r.state = Leader
	r.leaderID = r.id
	glog.Infof("raft[%s]: elected leader for term %d", r.id, r.currentTerm)

	next := raftlog.LastIndex(r.log) + 1
	for _, p := range r.peers {
		r.progress[p] = &progress{nextIndex: next, matchIndex: -1}
	}

	r.broadcastAppendEntries()
	r.heartbeatDeadline = time.Now().Add(r.heartbeatInterval)

	r.drainPending()
}

// becomeFollower steps down to follower for a newly observed higher term
// (§4.5/§4.6: any RPC or reply carrying a higher term forces this). Per
// §9's resolution of handle_append_entries_reply's leader-adoption hazard,
// leaderID is cleared rather than guessed at: the reply's source is a
// follower, not the new leader, so we wait for the next AppendEntries to
// learn who actually holds it. Until then, redirectOrQueue treats an empty
// leaderID as "unknown" and queues rather than bouncing a client back to a
// leader that just stepped down.
func (r *Replica) becomeFollower(term int) {
	if term <= r.currentTerm && r.state == Follower {
		return
	}
	r.state = Follower
	r.currentTerm = term
	r.votedFor = ""
	r.votes = map[raftmsg.Address]bool{}
	r.leaderID = ""
	r.resetElectionDeadline()
}
