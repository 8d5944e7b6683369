// Package config loads the tunables both cmd/rdtsend and cmd/raftreplica
// accept through an optional -config flag, in the same toml.DecodeFile
// pattern the pack's dnsproxy command uses for its own config file.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config holds every tunable either binary's defaults can override. Zero
// values mean "use the package default": the *Or accessors return their
// fallback for an empty or unparseable value.
type Config struct {
	RDT struct {
		RetransmitFactor  string `toml:"retransmit_factor"`
		InactivityTimeout string `toml:"inactivity_timeout"`
		SocketBufferBytes int    `toml:"socket_buffer_bytes"`
	} `toml:"rdt"`

	Raft struct {
		HeartbeatInterval     string `toml:"heartbeat_interval"`
		ElectionTimeoutFloor  string `toml:"election_timeout_floor"`
		ElectionTimeoutWindow string `toml:"election_timeout_window"`
	} `toml:"raft"`

	MetricsAddr string `toml:"metrics_addr"`
}

// Load reads and decodes the toml file at path.
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, errors.WithStack(err)
	}
	return &c, nil
}

// RetransmitFactorOr parses the configured retransmit factor, or returns
// fallback if unset/unparseable.
func (c *Config) RetransmitFactorOr(fallback time.Duration) time.Duration {
	return durationOr(c.RDT.RetransmitFactor, fallback)
}

// InactivityTimeoutOr parses the configured inactivity timeout, or returns
// fallback if unset/unparseable.
func (c *Config) InactivityTimeoutOr(fallback time.Duration) time.Duration {
	return durationOr(c.RDT.InactivityTimeout, fallback)
}

// HeartbeatIntervalOr parses the configured RAFT heartbeat interval, or
// returns fallback if unset/unparseable.
func (c *Config) HeartbeatIntervalOr(fallback time.Duration) time.Duration {
	return durationOr(c.Raft.HeartbeatInterval, fallback)
}

// ElectionTimeoutFloorOr parses the configured election timeout floor, or
// returns fallback if unset/unparseable.
func (c *Config) ElectionTimeoutFloorOr(fallback time.Duration) time.Duration {
	return durationOr(c.Raft.ElectionTimeoutFloor, fallback)
}

// ElectionTimeoutWindowOr parses the configured election timeout jitter
// window, or returns fallback if unset/unparseable.
func (c *Config) ElectionTimeoutWindowOr(fallback time.Duration) time.Duration {
	return durationOr(c.Raft.ElectionTimeoutWindow, fallback)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
