// Package metrics exports prometheus.Collector implementations for both
// the RDT sender and the RAFT replica, following the same
// Describe/Collect/guarded-snapshot shape as the teacher pack's TCP-info
// exporter (runZeroInc/sockstats' pkg/exporter).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jakexx360/rdtraft/rdtsender"
	"github.com/jakexx360/rdtraft/tmutex"
)

// RDTCollector publishes the most recent congestion/transmit snapshot a
// Sender reports through its OnSnapshot callback. Publication happens from
// the sender's own event-loop goroutine while Collect runs from an HTTP
// handler goroutine, so the snapshot is guarded with tmutex: the publisher
// uses TryLock and drops an update rather than ever block the send loop.
type RDTCollector struct {
	mu   *tmutex.Mutex
	have bool
	snap rdtsender.Snapshot

	cwnd            *prometheus.Desc
	ssthresh        *prometheus.Desc
	outstanding     *prometheus.Desc
	bytesSent       *prometheus.Desc
	bytesAcked      *prometheus.Desc
	terminatedClean *prometheus.Desc
}

// NewRDTCollector constructs a collector with the given constant labels
// (e.g. the destination address), matching sockstats' constLabels pattern.
func NewRDTCollector(constLabels prometheus.Labels) *RDTCollector {
	return &RDTCollector{
		mu:              tmutex.New(),
		cwnd:            prometheus.NewDesc("rdt_cwnd_segments", "current congestion window, in segments", nil, constLabels),
		ssthresh:        prometheus.NewDesc("rdt_ssthresh_segments", "current slow-start threshold, in segments", nil, constLabels),
		outstanding:     prometheus.NewDesc("rdt_outstanding_segments", "segments sent but not yet acknowledged", nil, constLabels),
		bytesSent:       prometheus.NewDesc("rdt_bytes_sent_total", "payload bytes sent so far", nil, constLabels),
		bytesAcked:      prometheus.NewDesc("rdt_bytes_acked_total", "payload bytes acknowledged so far", nil, constLabels),
		terminatedClean: prometheus.NewDesc("rdt_terminated_clean", "1 once the transfer has completed its EOF burst", nil, constLabels),
	}
}

// Update publishes a new snapshot. Safe to call from the sender's loop on
// every iteration; a concurrent scrape never stalls it.
func (c *RDTCollector) Update(s rdtsender.Snapshot) {
	if !c.mu.TryLock() {
		return
	}
	defer c.mu.Unlock()
	c.snap = s
	c.have = true
}

// Describe implements prometheus.Collector.
func (c *RDTCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.cwnd
	descs <- c.ssthresh
	descs <- c.outstanding
	descs <- c.bytesSent
	descs <- c.bytesAcked
	descs <- c.terminatedClean
}

// Collect implements prometheus.Collector.
func (c *RDTCollector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	snap, have := c.snap, c.have
	c.mu.Unlock()
	if !have {
		return
	}

	metrics <- prometheus.MustNewConstMetric(c.cwnd, prometheus.GaugeValue, snap.Cwnd)
	metrics <- prometheus.MustNewConstMetric(c.ssthresh, prometheus.GaugeValue, snap.Ssthresh)
	metrics <- prometheus.MustNewConstMetric(c.outstanding, prometheus.GaugeValue, float64(snap.Outstanding))
	metrics <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(snap.BytesSent))
	metrics <- prometheus.MustNewConstMetric(c.bytesAcked, prometheus.CounterValue, float64(snap.BytesAcked))
	clean := 0.0
	if snap.TerminatedClean {
		clean = 1.0
	}
	metrics <- prometheus.MustNewConstMetric(c.terminatedClean, prometheus.GaugeValue, clean)
}
