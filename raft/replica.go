// Package raft implements a single replica of the key-value replication
// protocol (§4.4-§4.7): leader election, log replication, and the
// client-facing get/put interface, all driven from one cooperative event
// loop with no locks or shared memory, in the same style as the teacher's
// single-endpoint architecture. Messages are raftmsg.Envelope values
// exchanged over a raftmsg.Hub; replicated commands are raftlog.Entry
// values.
package raft

import (
	"math/rand"
	"time"

	"github.com/golang/glog"
	gocache "github.com/patrickmn/go-cache"

	"github.com/jakexx360/rdtraft/ilist"
	"github.com/jakexx360/rdtraft/raftlog"
	"github.com/jakexx360/rdtraft/raftmsg"
)

// State is one of the three roles a replica can hold (§3).
type State int

const (
	Follower State = iota
	Candidate
	Leader
)

func (s State) String() string {
	switch s {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

const (
	pollInterval = 10 * time.Millisecond
	dedupeExpiry = 30 * time.Second
	dedupeSweep  = time.Minute

	// DefaultHeartbeatInterval, DefaultElectionTimeoutFloor and
	// DefaultElectionTimeoutWindow are the timings New applies unless
	// overridden with SetTimeouts.
	DefaultHeartbeatInterval     = 150 * time.Millisecond
	DefaultElectionTimeoutFloor  = 300 * time.Millisecond
	DefaultElectionTimeoutWindow = 300 * time.Millisecond
)

// progress tracks a leader's replication bookkeeping for one peer (§3's
// Peer-progress entity: next-index, match-index, in-flight-RPC). inFlight
// is true while an AppendEntries sent to this peer hasn't yet been
// answered; sentCount/sentAt are the "(count_of_entries_sent, now)" pair
// §4.6 says to record. sentAt decides when a stalled RPC may be retried;
// sentCount is recorded but not read.
type progress struct {
	nextIndex  int
	matchIndex int

	inFlight  bool
	sentCount int
	sentAt    time.Time
}

// queuedEntry wraps an entry waiting to be proposed once a pending election
// resolves, linked into the pre-election FIFO (§4.7's queueing note).
type queuedEntry struct {
	ilist.Entry
	env raftmsg.Envelope
}

// Snapshot is a point-in-time, read-only view of a replica's state, safe to
// publish to the metrics package (guarded by tmutex so a concurrent scrape
// never blocks the event loop).
type Snapshot struct {
	ID          raftmsg.Address
	State       State
	Term        int
	CommitIndex int
	LogLength   int
	LeaderID    raftmsg.Address
}

// Replica is one node of the cluster.
type Replica struct {
	id    raftmsg.Address
	peers []raftmsg.Address
	hub   *raftmsg.Hub

	state       State
	currentTerm int
	votedFor    raftmsg.Address
	log         []raftlog.Entry
	commitIndex int
	lastApplied int
	leaderID    raftmsg.Address

	progress map[raftmsg.Address]*progress
	votes    map[raftmsg.Address]bool

	electionDeadline  time.Time
	heartbeatDeadline time.Time

	heartbeatInterval     time.Duration
	electionTimeoutFloor  time.Duration
	electionTimeoutWindow time.Duration

	pending *ilist.List // pre-election client requests (§4.7)

	stateMachine map[string]string
	dedupe       *gocache.Cache // client request ids already applied

	onSnapshot func(Snapshot)

	rng *rand.Rand
}

// New constructs a replica that listens on id and knows about peers.
func New(id raftmsg.Address, peers []raftmsg.Address, hub *raftmsg.Hub) *Replica {
	prog := make(map[raftmsg.Address]*progress, len(peers))
	for _, p := range peers {
		prog[p] = &progress{}
	}
	return &Replica{
		id:                    id,
		peers:                 peers,
		hub:                   hub,
		state:                 Follower,
		commitIndex:           -1,
		lastApplied:           -1,
		heartbeatInterval:     DefaultHeartbeatInterval,
		electionTimeoutFloor:  DefaultElectionTimeoutFloor,
		electionTimeoutWindow: DefaultElectionTimeoutWindow,
		progress:              prog,
		votes:                 make(map[raftmsg.Address]bool, len(peers)),
		pending:               &ilist.List{},
		stateMachine:          make(map[string]string),
		dedupe:                gocache.New(dedupeExpiry, dedupeSweep),
		rng:                   rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(len(id)))),
	}
}

// OnSnapshot registers a callback invoked once per loop iteration with the
// replica's current state, for the metrics exporter to consume.
func (r *Replica) OnSnapshot(f func(Snapshot)) {
	r.onSnapshot = f
}

// SetTimeouts overrides the heartbeat interval and election timeout
// range, letting cmd/raftreplica apply values loaded from config.Config.
func (r *Replica) SetTimeouts(heartbeat, electionFloor, electionWindow time.Duration) {
	r.heartbeatInterval = heartbeat
	r.electionTimeoutFloor = electionFloor
	r.electionTimeoutWindow = electionWindow
}

func (r *Replica) resetElectionDeadline() {
	var jitter time.Duration
	if r.electionTimeoutWindow > 0 {
		jitter = time.Duration(r.rng.Int63n(int64(r.electionTimeoutWindow)))
	}
	r.electionDeadline = time.Now().Add(r.electionTimeoutFloor + jitter)
}

// Run is the replica's single event loop: it polls the hub for incoming
// envelopes on a bounded timeout, same cadence as the sender's §4.2 loop,
// and otherwise reacts only to its own deadline timers. Exactly one
// goroutine ever touches replica state.
func (r *Replica) Run(stop <-chan struct{}) {
	r.resetElectionDeadline()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case env := <-r.hub.Incoming():
			r.handleEnvelope(env)
		case now := <-ticker.C:
			r.tick(now)
		}
		if r.onSnapshot != nil {
			r.onSnapshot(r.snapshot())
		}
	}
}

func (r *Replica) snapshot() Snapshot {
	return Snapshot{
		ID:          r.id,
		State:       r.state,
		Term:        r.currentTerm,
		CommitIndex: r.commitIndex,
		LogLength:   len(r.log),
		LeaderID:    r.leaderID,
	}
}

func (r *Replica) tick(now time.Time) {
	switch r.state {
	case Leader:
		if now.After(r.heartbeatDeadline) {
			r.broadcastAppendEntries()
			r.heartbeatDeadline = now.Add(r.heartbeatInterval)
		}
	default:
		if now.After(r.electionDeadline) {
			r.startElection()
		}
	}
}

func (r *Replica) handleEnvelope(env raftmsg.Envelope) {
	if env.Term > r.currentTerm {
		r.becomeFollower(env.Term)
	}

	switch env.Type {
	case raftmsg.KindRequestVote:
		r.handleRequestVote(env)
	case raftmsg.KindVote:
		r.handleVote(env)
	case raftmsg.KindAppendEntries:
		r.handleAppendEntries(env)
	case raftmsg.KindAppendEntriesReply:
		r.handleAppendEntriesReply(env)
	case raftmsg.KindGet:
		r.handleGet(env)
	case raftmsg.KindPut:
		r.handlePut(env)
	default:
		glog.Warningf("raft[%s]: dropping envelope of unexpected type %q", r.id, env.Type)
	}
}

func (r *Replica) send(dst raftmsg.Address, env raftmsg.Envelope) {
	env.Src = r.id
	env.Dst = dst
	env.Leader = r.leaderID
	env.Term = r.currentTerm
	if err := r.hub.Send(dst, env); err != nil {
		glog.V(1).Infof("raft[%s]: send to %s failed: %v", r.id, dst, err)
	}
}

func (r *Replica) broadcastToPeers(build func(peer raftmsg.Address) raftmsg.Envelope) {
	for _, p := range r.peers {
		r.send(p, build(p))
	}
}
