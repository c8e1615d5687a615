//go:build unix

package gossip

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddr lets several receivers on the same host bind the group port.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})

	return errors.Join(err, serr)
}
