//go:build unix

package wol

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// broadcastControl sets SO_BROADCAST explicitly. The net package already
// enables it on UDP sockets on most platforms.
func broadcastControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}
