// Command rdtsend streams stdin to a UDP peer using the rdtsender
// reliable-transfer state machine, showing a live transmit progress bar on
// stderr. Flag and error-reporting shape follow the pack's dnsproxy
// command (cmd/dnsproxy/main.go): a run() that returns an error, and a
// stackTracer-aware failure path via xlog.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/charmbracelet/x/ansi"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"

	"github.com/jakexx360/rdtraft/config"
	"github.com/jakexx360/rdtraft/metrics"
	"github.com/jakexx360/rdtraft/rdtsender"
	"github.com/jakexx360/rdtraft/xlog"
)

func main() {
	if err := run(); err != nil {
		xlog.Fatal(err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "optional path to a toml tunables file")
	metricsAddr := flag.String("metrics-addr", "", "optional address to serve Prometheus metrics on")
	bufferBytes := flag.Int("socket-buffer-bytes", 0, "override the UDP socket's send/receive buffer size")
	flag.Parse()

	if flag.NArg() != 1 {
		return errors.New("usage: rdtsend HOST:PORT")
	}
	addr := flag.Arg(0)

	var cfg *config.Config
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = c
	}

	conn, err := rdtsender.Dial(addr)
	if err != nil {
		return errors.Wrapf(err, "dialing %s", addr)
	}
	defer conn.Close()

	if bytes := socketBufferBytes(cfg, *bufferBytes); bytes > 0 {
		if err := metrics.TuneSocketBuffers(conn, bytes); err != nil {
			fmt.Fprintf(os.Stderr, "rdtsend: warning: %v\n", err)
		}
	}

	s := rdtsender.New(conn, os.Stdin)
	if cfg != nil {
		s.SetTimeouts(
			cfg.RetransmitFactorOr(rdtsender.DefaultRetransmitFactor),
			cfg.InactivityTimeoutOr(rdtsender.DefaultInactivityTimeout),
		)
	}

	collector := metrics.NewRDTCollector(prometheus.Labels{"destination": addr})
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collector)
		go serveMetrics(*metricsAddr, reg)
	}

	bar := progressbar.DefaultBytes(-1, fmt.Sprintf("sending to %s", addr))
	defer bar.Close()

	var lastSent int
	s.OnSnapshot(func(snap rdtsender.Snapshot) {
		collector.Update(snap)
		if delta := snap.BytesSent - lastSent; delta > 0 {
			bar.Add(delta)
			lastSent = snap.BytesSent
		}
		statusLine(snap)
	})

	if err := s.Run(); err != nil {
		return errors.Wrap(err, "rdt transfer failed")
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

func socketBufferBytes(cfg *config.Config, flagValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	if cfg != nil {
		return cfg.RDT.SocketBufferBytes
	}
	return 0
}

// statusLine redraws a single status line below the progress bar with the
// current congestion-control state: a carriage return followed by x/ansi's
// erase-line sequence.
func statusLine(snap rdtsender.Snapshot) {
	fmt.Fprintf(os.Stderr, "\r%scwnd=%.1f ssthresh=%.1f outstanding=%d",
		ansi.EraseEntireLine, snap.Cwnd, snap.Ssthresh, snap.Outstanding)
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	_ = http.ListenAndServe(addr, mux)
}
