// Command raftreplica runs one replica of the replicated key-value store.
// Usage mirrors §6: "replica <my-id> <peer-id>...", each id being the path
// of the unix-domain socket that replica listens on.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jakexx360/rdtraft/config"
	"github.com/jakexx360/rdtraft/metrics"
	"github.com/jakexx360/rdtraft/raft"
	"github.com/jakexx360/rdtraft/raftmsg"
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
	flag.Parse()

	if flag.NArg() < 1 {
		return errors.New("usage: raftreplica <my-id> [peer-id...]")
	}

	var cfg *config.Config
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = c
	}

	id := raftmsg.Address(flag.Arg(0))
	peers := make([]raftmsg.Address, 0, flag.NArg()-1)
	for _, p := range flag.Args()[1:] {
		peers = append(peers, raftmsg.Address(p))
	}

	os.Remove(string(id)) // a stale socket from a prior crash must not block Listen

	hub, err := raftmsg.Listen(id)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", id)
	}
	defer hub.Close()

	r := raft.New(id, peers, hub)
	if cfg != nil {
		r.SetTimeouts(
			cfg.HeartbeatIntervalOr(raft.DefaultHeartbeatInterval),
			cfg.ElectionTimeoutFloorOr(raft.DefaultElectionTimeoutFloor),
			cfg.ElectionTimeoutWindowOr(raft.DefaultElectionTimeoutWindow),
		)
	}

	collector := metrics.NewRAFTCollector(string(id))
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collector)
		go serveMetrics(*metricsAddr, reg)
	}
	r.OnSnapshot(collector.Update)

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		close(stop)
	}()

	r.Run(stop)
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	_ = http.ListenAndServe(addr, mux)
}
