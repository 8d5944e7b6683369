package metrics

import (
	"net"

	"github.com/higebu/netfd"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// TuneSocketBuffers raises a UDP socket's send/receive buffers to bytes,
// the same raw-fd path sockstats uses to read TCP_INFO: recover the file
// descriptor with netfd, then operate on it with golang.org/x/sys/unix.
// cmd/rdtsend calls this once at startup, when a buffer size is set by
// flag or config, so a large in-flight window doesn't stall on the
// kernel's default socket buffer size.
func TuneSocketBuffers(conn net.Conn, bytes int) error {
	fd := netfd.GetFdFromConn(conn)
	if fd < 0 {
		return errors.New("metrics: could not recover file descriptor from connection")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, bytes); err != nil {
		return errors.Wrap(err, "metrics: SO_SNDBUF")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, bytes); err != nil {
		return errors.Wrap(err, "metrics: SO_RCVBUF")
	}
	return nil
}
