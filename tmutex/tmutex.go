// Package tmutex provides a mutual-exclusion lock that also supports a
// non-blocking TryLock, adapted from the teacher's scaffolded-but-unused
// tmutex package. It guards the metrics snapshot (metrics package): the
// event loop publishes a new snapshot on every iteration and must never
// block behind a concurrent Prometheus scrape, so the publisher uses
// TryLock and skips an update rather than stall the loop.
package tmutex

import "sync/atomic"

// Mutex is a mutual exclusion primitive that implements TryLock in addition
// to Lock and Unlock.
type Mutex struct {
	v  int32
	ch chan struct{}
}

// New returns a ready-to-use, unlocked Mutex.
func New() *Mutex {
	m := &Mutex{}
	m.Init()
	return m
}

// Init initializes the mutex. Only needed when a Mutex is embedded by value
// rather than constructed with New.
func (m *Mutex) Init() {
	m.v = 1
	m.ch = make(chan struct{}, 1)
}

// Lock acquires the mutex, waiting for a release if it's currently held.
func (m *Mutex) Lock() {
	for {
		if atomic.CompareAndSwapInt32(&m.v, 1, 0) {
			return
		}
		<-m.ch
	}
}

// TryLock acquires the mutex if it is free, without blocking.
func (m *Mutex) TryLock() bool {
	return atomic.CompareAndSwapInt32(&m.v, 1, 0)
}

// Unlock releases the mutex.
func (m *Mutex) Unlock() {
	atomic.SwapInt32(&m.v, 1)

	select {
	case m.ch <- struct{}{}:
	default:
	}
}
